// Package tests has helpers shared by tests of several packages.
package tests

import (
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pikapool/pikapool-api/bid"
	"github.com/pikapool/pikapool-api/signature"
	"github.com/stretchr/testify/require"
)

const (
	ChainID     = "1"
	AuctionName = "LeafyGreens_Public_Sale"

	// Amount, BasePrice and Tip are the message values of the default payload:
	// 5 units at 0.25 ETH plus a 0.1 ETH tip.
	Amount    = "0x5"
	BasePrice = "0x03782dace9d90000"
	Tip       = "0x016345785d8a0000"

	StartBlock = 100
	EndBlock   = 200

	signerKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
)

var (
	AuctionAddress     = common.HexToAddress("0xFeebabE6b0418eC13b30aAdF129F5DcDd4f70CeA")
	SettlementContract = common.HexToAddress("0xd2090025857B9C7B24387741f120538E928A3a59")

	// Cost is amount*(basePrice+tip) of the default payload: 1.75 ETH.
	Cost = mustBig("1750000000000000000")
)

// SignerKey returns the key signing payloads by default.
func SignerKey() *ecdsa.PrivateKey {
	key, err := crypto.HexToECDSA(signerKeyHex)
	if err != nil {
		panic(err)
	}
	return key
}

// SignerAddress returns the address of SignerKey.
func SignerAddress() common.Address {
	return crypto.PubkeyToAddress(SignerKey().PublicKey)
}

// NewAuction returns the auction the default payload bids on. It's open between
// StartBlock and EndBlock.
func NewAuction() bid.Auction {
	return bid.Auction{
		Address:            AuctionAddress,
		Name:               AuctionName,
		StartBlock:         StartBlock,
		EndBlock:           EndBlock,
		SettlementContract: SettlementContract,
		BasePrice:          mustBig("250000000000000000"),
	}
}

// NewTypedData returns a valid bid typed data.
func NewTypedData() apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Bid": {
				{Name: "auctionName", Type: "string"},
				{Name: "auctionAddress", Type: "address"},
				{Name: "amount", Type: "uint256"},
				{Name: "basePrice", Type: "uint256"},
				{Name: "tip", Type: "uint256"},
			},
		},
		PrimaryType: "Bid",
		Domain: apitypes.TypedDataDomain{
			Name:              bid.DomainName,
			Version:           bid.DomainVersion,
			ChainId:           (*math.HexOrDecimal256)(big.NewInt(1)),
			VerifyingContract: SettlementContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"auctionName":    AuctionName,
			"auctionAddress": AuctionAddress.Hex(),
			"amount":         Amount,
			"basePrice":      BasePrice,
			"tip":            Tip,
		},
	}
}

// PayloadOption customizes a payload built by NewPayload.
type PayloadOption func(*payloadConfig)

type payloadConfig struct {
	key       *ecdsa.PrivateKey
	mutations []func(*apitypes.TypedData)
	sender    *string
	signature *string
}

// WithKey signs the payload with key and uses its address as sender.
func WithKey(key *ecdsa.PrivateKey) PayloadOption {
	return func(c *payloadConfig) {
		c.key = key
	}
}

// WithTypedData modifies the typed data before signing.
func WithTypedData(f func(*apitypes.TypedData)) PayloadOption {
	return func(c *payloadConfig) {
		c.mutations = append(c.mutations, f)
	}
}

// WithMessageValue sets a message field before signing.
func WithMessageValue(field string, v interface{}) PayloadOption {
	return WithTypedData(func(td *apitypes.TypedData) {
		td.Message[field] = v
	})
}

// WithSender overrides the sender after signing.
func WithSender(sender string) PayloadOption {
	return func(c *payloadConfig) {
		c.sender = &sender
	}
}

// WithSignature overrides the signature.
func WithSignature(sig string) PayloadOption {
	return func(c *payloadConfig) {
		c.signature = &sig
	}
}

// NewPayload returns a signed payload. If the typed data can't be hashed, for example
// because an address field was broken on purpose, the signature is zeroed.
func NewPayload(t *testing.T, opts ...PayloadOption) bid.Payload {
	t.Helper()
	c := payloadConfig{key: SignerKey()}
	for _, opt := range opts {
		opt(&c)
	}

	td := NewTypedData()
	for _, m := range c.mutations {
		m(&td)
	}

	p := bid.Payload{
		TypedData: td,
		Sender:    crypto.PubkeyToAddress(c.key.PublicKey).Hex(),
		Signature: "0x" + strings.Repeat("00", crypto.SignatureLength),
	}
	if hash, err := signature.HashTypedData(td); err == nil {
		p.Signature, err = signature.Sign(hash, c.key)
		require.NoError(t, err)
	}
	if c.sender != nil {
		p.Sender = *c.sender
	}
	if c.signature != nil {
		p.Signature = *c.signature
	}
	return p
}

// NewBody returns the JSON encoding of NewPayload.
func NewBody(t *testing.T, opts ...PayloadOption) []byte {
	t.Helper()
	data, err := json.Marshal(NewPayload(t, opts...))
	require.NoError(t, err)
	return data
}

// NewBid returns an admitted bid built from the default payload.
func NewBid(t *testing.T, opts ...PayloadOption) bid.Bid {
	t.Helper()
	p := NewPayload(t, opts...)
	values, err := p.ParseValues()
	require.NoError(t, err)
	hash, err := signature.HashTypedData(p.TypedData)
	require.NoError(t, err)
	return bid.Bid{
		Payload:    p,
		Values:     values,
		Auction:    NewAuction(),
		Signer:     common.HexToAddress(p.Sender),
		Hash:       hash,
		ReceivedAt: time.Now().UTC(),
	}
}

func mustBig(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("invalid number " + s)
	}
	return n
}
