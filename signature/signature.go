// Package signature verifies EIP-712 bid signatures.
package signature

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

var (
	// ErrInvalidSignature indicates the signature isn't a 65 bytes hex string.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrSignatureMismatch indicates the signature doesn't recover to the claimed signer.
	ErrSignatureMismatch = errors.New("signature does not match signer")
)

// Parse decodes a hex encoded [R || S || V] signature. The 0x prefix is optional and V
// must be one of 0, 1, 27 or 28.
func Parse(sig string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(sig, "0x"), "0X"))
	if err != nil {
		return nil, ErrInvalidSignature
	}
	if len(raw) != crypto.SignatureLength {
		return nil, ErrInvalidSignature
	}
	switch raw[crypto.RecoveryIDOffset] {
	case 0, 1, 27, 28:
	default:
		return nil, ErrInvalidSignature
	}
	return raw, nil
}

// Verify checks that sig over hash was produced by signer.
func Verify(signer common.Address, hash common.Hash, sig string) error {
	raw, err := Parse(sig)
	if err != nil {
		return err
	}
	// Wallets produce V in {27, 28}; the recovery id is in {0, 1}.
	if raw[crypto.RecoveryIDOffset] >= 27 {
		raw[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(hash.Bytes(), raw)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSignatureMismatch, err)
	}
	if crypto.PubkeyToAddress(*pub) != signer {
		return ErrSignatureMismatch
	}
	return nil
}

// HashTypedData returns the EIP-712 signing hash of td.
func HashTypedData(td apitypes.TypedData) (common.Hash, error) {
	h, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return common.Hash{}, fmt.Errorf("hashing typed data: %s", err)
	}
	return common.BytesToHash(h), nil
}

// Sign signs hash with key and returns the signature in wallet format (V in {27, 28}).
func Sign(hash common.Hash, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}
