package fakebidstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/pikapool/pikapool-api/bid"
	"github.com/pikapool/pikapool-api/bidstore"
)

var errNotConnected = errors.New("fake bid store not connected")

// FakeBidStore is an in-memory bidstore.Store.
type FakeBidStore struct {
	lock sync.Mutex

	connected bool
	// InsertErr, if set, is returned by InsertBid.
	InsertErr error

	bids  map[string]bidstore.StoredBid
	order []string
}

var _ bidstore.Store = (*FakeBidStore)(nil)

// New returns an empty, disconnected FakeBidStore.
func New() *FakeBidStore {
	return &FakeBidStore{bids: map[string]bidstore.StoredBid{}}
}

func (s *FakeBidStore) IsConnected(context.Context) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.connected
}

func (s *FakeBidStore) Connect(context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.connected = true
	return nil
}

func (s *FakeBidStore) Ping(context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.connected {
		return errNotConnected
	}
	return nil
}

func (s *FakeBidStore) InsertBid(_ context.Context, b bid.Bid) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.connected {
		return "", errNotConnected
	}
	if s.InsertErr != nil {
		return "", s.InsertErr
	}

	id := b.ID()
	c, err := b.Payload.CID()
	if err != nil {
		return "", err
	}
	if _, ok := s.bids[id]; ok {
		return "", errors.New("duplicate bid id")
	}
	now := time.Now()
	auctionID := b.Auction.ID()
	signer := strings.ToLower(b.Signer.Hex())
	for prevID, prev := range s.bids {
		if prev.AuctionID == auctionID && prev.Signer == signer && prev.Status == bidstore.StatusSubmitted {
			prev.Status = bidstore.StatusReplaced
			prev.ReplacedBy = id
			prev.StatusUpdatedAt = now
			s.bids[prevID] = prev
		}
	}
	s.bids[id] = bidstore.StoredBid{
		ID:                 id,
		CID:                c.String(),
		ChainID:            b.Payload.ChainID(),
		AuctionID:          auctionID,
		AuctionAddress:     strings.ToLower(b.Auction.Address.Hex()),
		AuctionName:        b.Auction.Name,
		SettlementContract: strings.ToLower(b.Auction.SettlementContract.Hex()),
		Signer:             signer,
		Signature:          b.Payload.Signature,
		Units:              b.Values.Amount.String(),
		BasePrice:          b.Values.BasePrice.String(),
		Tip:                b.Values.Tip.String(),
		Status:             bidstore.StatusSubmitted,
		SubmittedAt:        b.ReceivedAt,
		StatusUpdatedAt:    now,
	}
	s.order = append(s.order, id)
	return id, nil
}

// Helpers for tests

// GetBid returns a stored bid.
func (s *FakeBidStore) GetBid(_ context.Context, id string) (bidstore.StoredBid, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	sb, ok := s.bids[id]
	if !ok {
		return bidstore.StoredBid{}, bidstore.ErrNotFound
	}
	return sb, nil
}

// Bids returns all stored bids in insertion order.
func (s *FakeBidStore) Bids() []bidstore.StoredBid {
	s.lock.Lock()
	defer s.lock.Unlock()
	res := make([]bidstore.StoredBid, 0, len(s.order))
	for _, id := range s.order {
		res = append(res, s.bids[id])
	}
	return res
}
