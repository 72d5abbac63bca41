// Package admission decides whether a signed bid is accepted. A bid is admitted when its
// typed data is a well formed Pikapool bid signed by the sender, it matches an open
// auction, and the signer approved and holds enough funds to pay for it.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pikapool/pikapool-api/bid"
	"github.com/pikapool/pikapool-api/bidstore"
	"github.com/pikapool/pikapool-api/cache"
	"github.com/pikapool/pikapool-api/connguard"
	"github.com/pikapool/pikapool-api/msgbroker"
	"github.com/pikapool/pikapool-api/signature"
	"go.opentelemetry.io/otel/metric"
)

var log = logging.Logger("admission")

// Result identifies an admitted bid.
type Result struct {
	ID  string
	CID cid.Cid
}

// Admitter runs the admission pipeline. It's safe for concurrent use.
type Admitter struct {
	cache connguard.Pool[cache.Cache]
	store connguard.Pool[bidstore.Store]
	mb    msgbroker.MsgBroker
	now   func() time.Time

	metricRequests  metric.Int64Counter
	metricDuration  metric.Int64Histogram
	metricPublished metric.Int64Counter
}

// Option configures an Admitter.
type Option func(*Admitter)

// WithClock sets the clock used to timestamp received bids.
func WithClock(now func() time.Time) Option {
	return func(a *Admitter) {
		a.now = now
	}
}

// New returns an Admitter. mb may be nil, in which case admitted bids aren't published.
func New(
	cachePool connguard.Pool[cache.Cache],
	storePool connguard.Pool[bidstore.Store],
	mb msgbroker.MsgBroker,
	opts ...Option) (*Admitter, error) {
	if cachePool == nil {
		return nil, errors.New("cache pool is nil")
	}
	if storePool == nil {
		return nil, errors.New("store pool is nil")
	}
	a := &Admitter{
		cache: cachePool,
		store: storePool,
		mb:    mb,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.initMetrics(); err != nil {
		return nil, fmt.Errorf("initializing metrics: %s", err)
	}
	return a, nil
}

// Admit checks and stores the bid in body. Rejections are returned as *Error.
func (a *Admitter) Admit(ctx context.Context, body []byte) (res Result, err error) {
	start := time.Now()
	defer func() { a.onAdmit(ctx, start, err) }()

	// The connections are shared, so a client going away mustn't abort calls on them.
	ctx = context.WithoutCancel(ctx)
	receivedAt := a.now().UTC()

	if len(body) == 0 {
		return Result{}, newError(MalformedRequest, "Request body missing", nil)
	}
	payload, err := bid.DecodePayload(body)
	if err != nil {
		return Result{}, newError(MalformedRequest, err.Error(), err)
	}
	if err := payload.Validate(); err != nil {
		return Result{}, newError(SchemaValidation, err.Error(), err)
	}
	if !common.IsHexAddress(payload.Sender) {
		return Result{}, newError(FieldParse, "Invalid signer address", nil)
	}
	signer := common.HexToAddress(payload.Sender)
	values, err := payload.ParseValues()
	if err != nil {
		return Result{}, newError(FieldParse, err.Error(), err)
	}
	if !common.IsHexAddress(values.AuctionAddress) {
		return Result{}, newError(FieldParse, "Invalid auction contract address", nil)
	}
	auctionAddr := common.HexToAddress(values.AuctionAddress)

	hash, err := signature.HashTypedData(payload.TypedData)
	if err != nil {
		return Result{}, newError(SignatureInvalid, err.Error(), err)
	}
	if err := signature.Verify(signer, hash, payload.Signature); err != nil {
		if errors.Is(err, signature.ErrSignatureMismatch) {
			return Result{}, newError(SignatureMismatch, "Signature does not match signer", err)
		}
		return Result{}, newError(SignatureInvalid, "Invalid signature", err)
	}

	var auction bid.Auction
	err = a.cache.Do(ctx, func(c cache.Cache) error {
		var err error
		auction, err = authorize(ctx, c, payload, values, auctionAddr, signer)
		return err
	})
	if err != nil {
		return Result{}, infraError(err)
	}

	c, err := payload.CID()
	if err != nil {
		return Result{}, infraError(err)
	}
	b := bid.Bid{
		Payload:    payload,
		Values:     values,
		Auction:    auction,
		Signer:     signer,
		Hash:       hash,
		ReceivedAt: receivedAt,
	}
	var id string
	err = a.store.Do(ctx, func(s bidstore.Store) error {
		var err error
		id, err = s.InsertBid(ctx, b)
		return err
	})
	if err != nil {
		return Result{}, infraError(err)
	}
	log.Infof("admitted bid %s from %s in auction %s", id, signer, auction.ID())

	a.publish(ctx, b)

	return Result{ID: id, CID: c}, nil
}

// authorize checks the bid against the auction state and the signer funds, and
// returns the auction.
func authorize(
	ctx context.Context,
	c cache.Cache,
	payload bid.Payload,
	values bid.Values,
	auctionAddr, signer common.Address) (bid.Auction, error) {
	chainID := payload.ChainID()
	auction, ok, err := c.GetAuction(ctx, chainID, auctionAddr, values.AuctionName)
	if err != nil {
		return bid.Auction{}, fmt.Errorf("get auction: %w", err)
	}
	if !ok {
		return bid.Auction{}, newError(BusinessRuleViolation, "Specified auction does not exist", nil)
	}
	if vc, ok := payload.VerifyingContract(); !ok || vc != auction.SettlementContract {
		return bid.Auction{}, newError(BusinessRuleViolation,
			"Specified settlement contract does not match auction settlement contract", nil)
	}
	if auction.BasePrice == nil || values.BasePrice.Cmp(auction.BasePrice) != 0 {
		return bid.Auction{}, newError(BusinessRuleViolation, "Specified base_price does not match auction base_price", nil)
	}

	synced, err := c.GetSyncedBlock(ctx, chainID, auction.SettlementContract)
	if err != nil {
		return bid.Auction{}, fmt.Errorf("get synced block: %w", err)
	}
	if synced < auction.StartBlock {
		return bid.Auction{}, newError(BusinessRuleViolation, "Auction has not started", nil)
	}
	if synced > auction.EndBlock {
		return bid.Auction{}, newError(BusinessRuleViolation, "Auction has ended", nil)
	}

	funds, ok, err := c.GetSignerApproveAndBalAmts(ctx, chainID, auction.SettlementContract, signer)
	if err != nil {
		return bid.Auction{}, fmt.Errorf("get signer funds: %w", err)
	}
	if !ok {
		return bid.Auction{}, newError(Unauthorized, "Signer has not approved the settlement contract", nil)
	}
	cost := values.Cost()
	if funds.Approved.Cmp(cost) < 0 {
		return bid.Auction{}, newError(Unauthorized, "Signer approval amount is insufficient", nil)
	}
	if funds.Balance.Cmp(cost) < 0 {
		return bid.Auction{}, newError(Unauthorized, "Signer token balance is insufficient", nil)
	}
	return auction, nil
}

func (a *Admitter) publish(ctx context.Context, b bid.Bid) {
	if a.mb == nil {
		return
	}
	err := msgbroker.PublishMsgBidAdmitted(ctx, a.mb, b)
	a.onPublish(ctx, err)
	if err != nil {
		log.Errorf("publishing admitted bid %s: %s", b.ID(), err)
	}
}
