// Package crypto wraps secp256k1 keys, Ethereum style addresses and the
// encrypted keystore used by lendctl.
package crypto

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidAddress   = errors.New("crypto: invalid address")
	ErrInvalidSignature = errors.New("crypto: invalid signature")
)

const digestLength = 32

// PrivateKey signs request and permit digests.
type PrivateKey struct {
	*ecdsa.PrivateKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return &PrivateKey{key}, nil
}

// PrivateKeyFromHex parses a hex encoded key, with or without 0x.
func PrivateKeyFromHex(s string) (*PrivateKey, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: parse key: %w", err)
	}
	return &PrivateKey{key}, nil
}

func (k *PrivateKey) Bytes() []byte { return ethcrypto.FromECDSA(k.PrivateKey) }

func (k *PrivateKey) Address() common.Address {
	return ethcrypto.PubkeyToAddress(k.PublicKey)
}

// Sign returns a 65 byte [R || S || V] signature with V in {0, 1}.
func (k *PrivateKey) Sign(digest []byte) ([]byte, error) {
	if len(digest) != digestLength {
		return nil, fmt.Errorf("crypto: digest is %d bytes, want %d", len(digest), digestLength)
	}
	return ethcrypto.Sign(digest, k.PrivateKey)
}

// RecoverAddress returns the account that signed digest. V may be 0/1 or
// 27/28.
func RecoverAddress(digest, sig []byte) (common.Address, error) {
	if len(digest) != digestLength || len(sig) != ethcrypto.SignatureLength {
		return common.Address{}, ErrInvalidSignature
	}
	rsv := make([]byte, len(sig))
	copy(rsv, sig)
	if v := rsv[ethcrypto.RecoveryIDOffset]; v == 27 || v == 28 {
		rsv[ethcrypto.RecoveryIDOffset] = v - 27
	}
	pub, err := ethcrypto.SigToPub(digest, rsv)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// ParseAddress decodes a 0x hex address and rejects anything
// common.HexToAddress would silently truncate or pad.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// ModuleAddress is the account holding a native module's balances: the low
// 20 bytes of keccak256("module:" + name).
func ModuleAddress(name string) common.Address {
	return common.BytesToAddress(Keccak256([]byte("module:" + strings.TrimSpace(name))))
}

func Keccak256(data ...[]byte) []byte { return ethcrypto.Keccak256(data...) }
