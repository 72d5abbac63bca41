package signature_test

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pikapool/pikapool-api/signature"
	"github.com/pikapool/pikapool-api/tests"
	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	t.Parallel()

	p := tests.NewPayload(t)
	hash, err := signature.HashTypedData(p.TypedData)
	require.NoError(t, err)

	require.NoError(t, signature.Verify(tests.SignerAddress(), hash, p.Signature))
	// Without 0x prefix.
	require.NoError(t, signature.Verify(tests.SignerAddress(), hash, strings.TrimPrefix(p.Signature, "0x")))

	// Recovery id in {0, 1}.
	raw, err := signature.Parse(p.Signature)
	require.NoError(t, err)
	raw[crypto.RecoveryIDOffset] -= 27
	require.NoError(t, signature.Verify(tests.SignerAddress(), hash, hexutil.Encode(raw)))

	// A recovery id outside {0, 1, 27, 28} is malformed, not a mismatch.
	raw[crypto.RecoveryIDOffset] = 29
	err = signature.Verify(tests.SignerAddress(), hash, hexutil.Encode(raw))
	require.ErrorIs(t, err, signature.ErrInvalidSignature)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	err = signature.Verify(crypto.PubkeyToAddress(other.PublicKey), hash, p.Signature)
	require.ErrorIs(t, err, signature.ErrSignatureMismatch)
}

func TestVerifyByteFlips(t *testing.T) {
	t.Parallel()

	p := tests.NewPayload(t)
	hash, err := signature.HashTypedData(p.TypedData)
	require.NoError(t, err)
	raw, err := signature.Parse(p.Signature)
	require.NoError(t, err)

	for i := range raw {
		flipped := make([]byte, len(raw))
		copy(flipped, raw)
		flipped[i] ^= 0xff
		require.Error(t, signature.Verify(tests.SignerAddress(), hash, hexutil.Encode(flipped)), "byte %d", i)
	}

	hash[0] ^= 0x01
	require.Error(t, signature.Verify(tests.SignerAddress(), hash, p.Signature))
}

func TestParse(t *testing.T) {
	t.Parallel()

	for _, sig := range []string{
		"",
		"0x",
		"0x1234",
		"0x" + strings.Repeat("zz", crypto.SignatureLength),
		"0x" + strings.Repeat("00", crypto.SignatureLength+1),
		// V out of range.
		"0x" + strings.Repeat("ab", crypto.SignatureLength-1) + "02",
		"0x" + strings.Repeat("ab", crypto.SignatureLength-1) + "1a",
		"0x" + strings.Repeat("ab", crypto.SignatureLength-1) + "1d",
		"0x" + strings.Repeat("ab", crypto.SignatureLength),
	} {
		_, err := signature.Parse(sig)
		require.ErrorIs(t, err, signature.ErrInvalidSignature, sig)
	}

	for _, v := range []string{"00", "01", "1b", "1c"} {
		raw, err := signature.Parse("0x" + strings.Repeat("ab", crypto.SignatureLength-1) + v)
		require.NoError(t, err, v)
		require.Len(t, raw, crypto.SignatureLength)
	}
}

func TestHashTypedData(t *testing.T) {
	t.Parallel()

	h1, err := signature.HashTypedData(tests.NewTypedData())
	require.NoError(t, err)
	h2, err := signature.HashTypedData(tests.NewTypedData())
	require.NoError(t, err)
	require.Equal(t, h1, h2)

	td := tests.NewTypedData()
	td.Message["tip"] = "0x0"
	h3, err := signature.HashTypedData(td)
	require.NoError(t, err)
	require.NotEqual(t, h1, h3)

	td = tests.NewTypedData()
	td.Message["auctionAddress"] = "not-an-address"
	_, err = signature.HashTypedData(td)
	require.Error(t, err)
}
