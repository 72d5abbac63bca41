package bid

import (
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Auction is the auction state as recorded by the chain sync process.
type Auction struct {
	Address            common.Address
	Name               string
	StartBlock         uint64
	EndBlock           uint64
	SettlementContract common.Address
	BasePrice          *big.Int
}

// ID identifies an auction by contract and start block.
func (a Auction) ID() string {
	return hex.EncodeToString(a.Address.Bytes()) + "-" + strconv.FormatUint(a.StartBlock, 10)
}

// Bid is an admitted bid. It is created once every admission check passed and isn't
// modified afterwards.
type Bid struct {
	Payload    Payload
	Values     Values
	Auction    Auction
	Signer     common.Address
	Hash       common.Hash
	ReceivedAt time.Time
}

// ID returns the bid identity: sha256(sender || signature || received time).
func (b Bid) ID() string {
	h := sha256.New()
	h.Write([]byte(b.Payload.Sender))
	h.Write([]byte(b.Payload.Signature))
	h.Write([]byte(b.ReceivedAt.UTC().Format(time.RFC3339Nano)))
	return hex.EncodeToString(h.Sum(nil))
}

// FormatEther renders an amount in wei as a decimal ether string.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).String()
}
