package claims

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"

	"frendlend/core/events"
	"frendlend/crypto"
	nativecommon "frendlend/native/common"
)

var permitDomain = []byte("frendlend/claims/permit-create-claim")

// PermitDigest is the message an owner signs to approve an operator off-line.
func PermitDigest(owner, operator common.Address, count, nonce uint64, deadline int64) []byte {
	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:8], count)
	binary.BigEndian.PutUint64(buf[8:16], nonce)
	binary.BigEndian.PutUint64(buf[16:24], uint64(deadline))
	return crypto.Keccak256(permitDomain, owner.Bytes(), operator.Bytes(), buf[:])
}

// PermitNonce returns the nonce the next permit from owner must carry.
func (e *Engine) PermitNonce(owner common.Address) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.PermitNonce(owner)
}

// Permit applies a signed approval. Anyone may submit it; the signature must
// come from owner and the deadline must not have passed.
func (e *Engine) Permit(owner, operator common.Address, count uint64, deadline int64, sig []byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if deadline != 0 && e.now() > deadline {
		return ErrPermitExpired
	}
	nonce, err := e.state.PermitNonce(owner)
	if err != nil {
		return err
	}
	signer, err := crypto.RecoverAddress(PermitDigest(owner, operator, count, nonce, deadline), sig)
	if err != nil || signer != owner {
		return ErrInvalidPermit
	}
	if err := e.state.SetPermitNonce(owner, nonce+1); err != nil {
		return err
	}
	if err := e.state.SetClaimApproval(owner, operator, count); err != nil {
		return err
	}
	e.emit(events.ClaimApproval{Owner: owner, Operator: operator, Count: count, ViaPermit: true})
	return nil
}
