package bid_test

import (
	"encoding/json"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/pikapool/pikapool-api/bid"
	"github.com/pikapool/pikapool-api/tests"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload(t *testing.T) {
	t.Parallel()

	want := tests.NewPayload(t)
	got, err := bid.DecodePayload(tests.NewBody(t))
	require.NoError(t, err)
	require.Equal(t, want.Sender, got.Sender)
	require.Equal(t, want.Signature, got.Signature)
	require.NoError(t, got.Validate())
	require.Equal(t, "1", got.ChainID())

	body := tests.NewBody(t)
	_, err = bid.DecodePayload(append(body[:len(body)-1], []byte(`,"memo":"hi"}`)...))
	require.Error(t, err)

	_, err = bid.DecodePayload(append(tests.NewBody(t), []byte(" 1")...))
	require.EqualError(t, err, "unexpected data after payload")

	_, err = bid.DecodePayload([]byte(`{"typedData":`))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	t.Run("field order is ignored", func(t *testing.T) {
		t.Parallel()
		p := tests.NewPayload(t, tests.WithTypedData(func(td *apitypes.TypedData) {
			fields := td.Types["Bid"]
			fields[0], fields[4] = fields[4], fields[0]
		}))
		require.NoError(t, p.Validate())
	})

	mutations := map[string]func(*apitypes.TypedData){
		"domain name":       func(td *apitypes.TypedData) { td.Domain.Name = "Pikapool Auctions" },
		"domain version":    func(td *apitypes.TypedData) { td.Domain.Version = "1.0" },
		"primary type":      func(td *apitypes.TypedData) { td.PrimaryType = "Ask" },
		"chain id":          func(td *apitypes.TypedData) { td.Domain.ChainId = nil },
		"missing bid type":  func(td *apitypes.TypedData) { delete(td.Types, "Bid") },
		"extra type":        func(td *apitypes.TypedData) { td.Types["Ask"] = td.Types["Bid"] },
		"field type":        func(td *apitypes.TypedData) { td.Types["Bid"][2].Type = "uint128" },
		"field name":        func(td *apitypes.TypedData) { td.Types["Bid"][2].Name = "units" },
		"missing field":     func(td *apitypes.TypedData) { td.Types["Bid"] = td.Types["Bid"][:4] },
		"duplicated field":  func(td *apitypes.TypedData) { td.Types["Bid"][4] = td.Types["Bid"][3] },
		"domain field type": func(td *apitypes.TypedData) { td.Types["EIP712Domain"][2].Type = "uint64" },
	}
	for name, mutate := range mutations {
		mutate := mutate
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			p := tests.NewPayload(t, tests.WithTypedData(mutate))
			require.ErrorIs(t, p.Validate(), bid.ErrInvalidBid)
		})
	}
}

func TestParseValues(t *testing.T) {
	t.Parallel()

	v, err := tests.NewPayload(t).ParseValues()
	require.NoError(t, err)
	require.Equal(t, tests.AuctionName, v.AuctionName)
	require.Equal(t, tests.AuctionAddress.Hex(), v.AuctionAddress)
	require.Equal(t, int64(5), v.Amount.Int64())
	require.Equal(t, "250000000000000000", v.BasePrice.String())
	require.Equal(t, "100000000000000000", v.Tip.String())
	require.Equal(t, tests.Cost, v.Cost())

	// Decimal and hex encodings are equivalent.
	v, err = tests.NewPayload(t, tests.WithMessageValue("basePrice", "250000000000000000")).ParseValues()
	require.NoError(t, err)
	require.Equal(t, tests.Cost, v.Cost())

	tcs := []struct {
		name  string
		opt   tests.PayloadOption
		field string
		msg   string
	}{
		{
			name:  "auction name not a string",
			opt:   tests.WithMessageValue("auctionName", 7),
			field: "auctionName",
			msg:   "auctionName parsing error",
		},
		{
			name:  "amount not a string",
			opt:   tests.WithMessageValue("amount", 5),
			field: "amount",
			msg:   "amount parsing error",
		},
		{
			name:  "empty amount",
			opt:   tests.WithMessageValue("amount", ""),
			field: "amount",
			msg:   "amount parsing error: empty value",
		},
		{
			name:  "amount overflows",
			opt:   tests.WithMessageValue("amount", "0x1"+strings.Repeat("0", 64)),
			field: "amount",
		},
		{
			name:  "missing tip",
			opt:   tests.WithTypedData(func(td *apitypes.TypedData) { delete(td.Message, "tip") }),
			field: "tip",
			msg:   "tip parsing error",
		},
	}
	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := tests.NewPayload(t, tc.opt).ParseValues()
			var fieldErr *bid.FieldError
			require.True(t, errors.As(err, &fieldErr))
			require.Equal(t, tc.field, fieldErr.Field)
			if tc.msg != "" {
				require.EqualError(t, err, tc.msg)
			}
		})
	}

	p := tests.NewPayload(t)
	p.TypedData.Message = nil
	_, err = p.ParseValues()
	require.ErrorIs(t, err, bid.ErrMessageNotObject)
}

func TestVerifyingContract(t *testing.T) {
	t.Parallel()

	vc, ok := tests.NewPayload(t).VerifyingContract()
	require.True(t, ok)
	require.Equal(t, tests.SettlementContract, vc)

	p := tests.NewPayload(t, tests.WithTypedData(func(td *apitypes.TypedData) {
		td.Domain.VerifyingContract = "settlement"
	}))
	_, ok = p.VerifyingContract()
	require.False(t, ok)
}

func TestCID(t *testing.T) {
	t.Parallel()

	p := tests.NewPayload(t)
	c1, err := p.CID()
	require.NoError(t, err)
	require.EqualValues(t, 1, c1.Version())

	decoded, err := bid.DecodePayload(tests.NewBody(t))
	require.NoError(t, err)
	c2, err := decoded.CID()
	require.NoError(t, err)
	require.Equal(t, c1, c2)

	p.Signature = "0x00"
	c3, err := p.CID()
	require.NoError(t, err)
	require.NotEqual(t, c1, c3)
}

func TestIDs(t *testing.T) {
	t.Parallel()

	a := tests.NewAuction()
	require.Equal(t, "feebabe6b0418ec13b30aadf129f5dcdd4f70cea-100", a.ID())

	b := tests.NewBid(t)
	b.ReceivedAt = time.Date(2022, 3, 1, 12, 0, 0, 0, time.UTC)
	id := b.ID()
	require.Len(t, id, 64)
	require.Equal(t, id, b.ID())

	// Same instant in another location.
	b.ReceivedAt = b.ReceivedAt.In(time.FixedZone("UTC-3", -3*60*60))
	require.Equal(t, id, b.ID())

	b.ReceivedAt = b.ReceivedAt.Add(time.Nanosecond)
	require.NotEqual(t, id, b.ID())
}

func TestFormatEther(t *testing.T) {
	t.Parallel()

	require.Equal(t, "1.75", bid.FormatEther(tests.Cost))
	require.Equal(t, "0.25", bid.FormatEther(tests.NewAuction().BasePrice))
	require.Equal(t, "0", bid.FormatEther(big.NewInt(0)))
	require.Equal(t, "0.000000000000000001", bid.FormatEther(big.NewInt(1)))
	require.Equal(t, "0", bid.FormatEther(nil))
}

func TestPayloadJSON(t *testing.T) {
	t.Parallel()

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(tests.NewBody(t), &raw))
	require.Contains(t, raw, "typedData")
	require.Contains(t, raw, "sender")
	require.Contains(t, raw, "signature")
	require.Equal(t, `"`+tests.SignerAddress().Hex()+`"`, string(raw["sender"]))
}
