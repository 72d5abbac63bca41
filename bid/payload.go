package bid

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

const (
	// DomainName is the EIP-712 domain name every bid must be signed under.
	DomainName = "Pikapool Auction"
	// DomainVersion is the accepted EIP-712 domain version.
	DomainVersion = "1"
	// PrimaryType is the EIP-712 primary type of a bid.
	PrimaryType = "Bid"
)

// ErrInvalidBid is returned when the typed data isn't a Pikapool bid. It doesn't say
// which check failed on purpose.
var ErrInvalidBid = errors.New("typed_data is not a valid Pikapool Bid")

// expectedTypes is the only accepted EIP-712 type declaration for a bid.
var expectedTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	PrimaryType: {
		{Name: "auctionName", Type: "string"},
		{Name: "auctionAddress", Type: "address"},
		{Name: "amount", Type: "uint256"},
		{Name: "basePrice", Type: "uint256"},
		{Name: "tip", Type: "uint256"},
	},
}

// Payload is a signed bid as received on the wire.
type Payload struct {
	TypedData apitypes.TypedData `json:"typedData"`
	Sender    string             `json:"sender"`
	Signature string             `json:"signature"`
}

// DecodePayload strictly decodes a payload. Unknown fields and trailing data are rejected.
func DecodePayload(data []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var p Payload
	if err := dec.Decode(&p); err != nil {
		return Payload{}, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Payload{}, errors.New("unexpected data after payload")
	}
	return p, nil
}

// Validate checks that the typed data has the Pikapool bid schema, domain and primary type.
func (p Payload) Validate() error {
	if !typesEqual(p.TypedData.Types, expectedTypes) {
		return ErrInvalidBid
	}
	domain := p.TypedData.Domain
	if domain.Name != DomainName || domain.Version != DomainVersion || domain.ChainId == nil {
		return ErrInvalidBid
	}
	if p.TypedData.PrimaryType != PrimaryType {
		return ErrInvalidBid
	}
	return nil
}

// ChainID returns the domain chain id in base 10, or an empty string if missing.
func (p Payload) ChainID() string {
	if p.TypedData.Domain.ChainId == nil {
		return ""
	}
	return (*big.Int)(p.TypedData.Domain.ChainId).String()
}

// VerifyingContract returns the domain verifying contract. The bool is false if it
// isn't a hex address.
func (p Payload) VerifyingContract() (common.Address, bool) {
	vc := p.TypedData.Domain.VerifyingContract
	if !common.IsHexAddress(vc) {
		return common.Address{}, false
	}
	return common.HexToAddress(vc), true
}

// CID returns a content identifier of the canonical JSON encoding of the payload.
func (p Payload) CID() (cid.Cid, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return cid.Undef, fmt.Errorf("marshaling payload: %s", err)
	}
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("hashing payload: %s", err)
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

func typesEqual(got, want apitypes.Types) bool {
	if len(got) != len(want) {
		return false
	}
	for name, wantFields := range want {
		gotFields, ok := got[name]
		if !ok || len(gotFields) != len(wantFields) {
			return false
		}
		seen := make(map[apitypes.Type]struct{}, len(gotFields))
		for _, f := range gotFields {
			seen[f] = struct{}{}
		}
		if len(seen) != len(wantFields) {
			return false
		}
		for _, f := range wantFields {
			if _, ok := seen[f]; !ok {
				return false
			}
		}
	}
	return true
}
