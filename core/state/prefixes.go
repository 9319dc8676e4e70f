package state

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

var (
	tokenBalancePrefix   = []byte("token/balance/")
	tokenAllowancePrefix = []byte("token/allowance/")

	claimCountKey        = []byte("claims/count")
	claimsSettingsKey    = []byte("claims/settings")
	claimRecordPrefix    = []byte("claims/record/")
	claimApprovalPrefix  = []byte("claims/approval/")
	claimPermitPrefix    = []byte("claims/permit-nonce/")
	claimFeeExemptPrefix = []byte("claims/fee-exempt/")

	lendingSettingsKey     = []byte("lending/settings")
	lendingOfferPrefix     = []byte("lending/offer/")
	lendingOfferMetaPrefix = []byte("lending/offer-meta/")
	lendingLoanPrefix      = []byte("lending/loan/")
	lendingFeeBalancePfx   = []byte("lending/fees/balance/")
	lendingFeeTokensKey    = []byte("lending/fees/tokens")
	lendingBlacklistPrefix = []byte("lending/fees/blacklist/")
	lendingWhitelistPrefix = []byte("lending/fees/whitelist/")
	lendingCallbackPrefix  = []byte("lending/callback/")
)

func compositeKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return buf
}

func idBytes(id uint64) []byte {
	var out [8]byte
	binary.BigEndian.PutUint64(out[:], id)
	return out[:]
}

func tokenBalanceKey(token, owner common.Address) []byte {
	return compositeKey(tokenBalancePrefix, token.Bytes(), owner.Bytes())
}

func tokenAllowanceKey(token, owner, spender common.Address) []byte {
	return compositeKey(tokenAllowancePrefix, token.Bytes(), owner.Bytes(), spender.Bytes())
}

func claimRecordKey(id uint64) []byte { return compositeKey(claimRecordPrefix, idBytes(id)) }

func claimApprovalKey(owner, operator common.Address) []byte {
	return compositeKey(claimApprovalPrefix, owner.Bytes(), operator.Bytes())
}

func claimPermitNonceKey(owner common.Address) []byte {
	return compositeKey(claimPermitPrefix, owner.Bytes())
}

func claimFeeExemptKey(account common.Address) []byte {
	return compositeKey(claimFeeExemptPrefix, account.Bytes())
}

func lendingOfferKey(id uint64) []byte { return compositeKey(lendingOfferPrefix, idBytes(id)) }

func lendingOfferMetaKey(id uint64) []byte { return compositeKey(lendingOfferMetaPrefix, idBytes(id)) }

func lendingLoanKey(claimID uint64) []byte { return compositeKey(lendingLoanPrefix, idBytes(claimID)) }

func lendingFeeBalanceKey(token common.Address) []byte {
	return compositeKey(lendingFeeBalancePfx, token.Bytes())
}

func lendingBlacklistKey(token common.Address) []byte {
	return compositeKey(lendingBlacklistPrefix, token.Bytes())
}

func lendingWhitelistKey(token common.Address) []byte {
	return compositeKey(lendingWhitelistPrefix, token.Bytes())
}

func lendingCallbackKey(contract common.Address, selector [4]byte) []byte {
	return compositeKey(lendingCallbackPrefix, contract.Bytes(), selector[:])
}
