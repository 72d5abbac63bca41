// Package bidstore defines the durable storage of admitted bids.
package bidstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pikapool/pikapool-api/bid"
	"github.com/pikapool/pikapool-api/connguard"
)

var (
	// ErrNotFound is returned if the bid doesn't exist.
	ErrNotFound = errors.New("bid not found")
	// ErrConcurrentBid is returned when the insert lost a race against another bid of the
	// same signer for the same auction.
	ErrConcurrentBid = errors.New("concurrent bid from the same signer")
)

// Status is the status of a stored bid.
type Status int

const (
	// StatusUnspecified indicates an unknown status.
	StatusUnspecified Status = iota
	// StatusSubmitted is the status of the active bid of a signer in an auction.
	StatusSubmitted
	// StatusReplaced is the status of a bid superseded by a newer one from the same signer.
	StatusReplaced
)

// String returns the status as stored in the database.
func (s Status) String() string {
	switch s {
	case StatusSubmitted:
		return "submitted"
	case StatusReplaced:
		return "replaced"
	default:
		return "unspecified"
	}
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "submitted":
		return StatusSubmitted, nil
	case "replaced":
		return StatusReplaced, nil
	default:
		return StatusUnspecified, fmt.Errorf("unknown bid status %q", s)
	}
}

// StoredBid is a persisted bid.
type StoredBid struct {
	ID                 string
	CID                string
	ChainID            string
	AuctionID          string
	AuctionAddress     string
	AuctionName        string
	SettlementContract string
	Signer             string
	Signature          string
	Units              string
	BasePrice          string
	Tip                string
	Status             Status
	ReplacedBy         string
	SubmittedAt        time.Time
	StatusUpdatedAt    time.Time
}

// Store persists admitted bids.
type Store interface {
	connguard.Connectable

	// InsertBid stores b as the signer's submitted bid for the auction, marking any
	// previously submitted bid of the signer for that auction as replaced by it. It
	// returns the new bid id.
	InsertBid(ctx context.Context, b bid.Bid) (string, error)
}
