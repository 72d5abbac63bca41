package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	logger "github.com/ipfs/go-log/v2"
	"github.com/jackc/pgconn"
	"github.com/pikapool/pikapool-api/bid"
	"github.com/pikapool/pikapool-api/bidstore"
	"github.com/pikapool/pikapool-api/cmd/bidd/store/migrations"
	"github.com/pikapool/pikapool-api/storeutil"
)

var (
	log = logger.Logger("store")

	errNotConnected = errors.New("postgres connection isn't open")
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
)

const replaceSubmittedBidQuery = `
UPDATE bids
SET status = 'replaced', replaced_by = $1, status_last_updated = $2
WHERE auction_id = $3 AND signer = $4 AND status = 'submitted'`

const insertBidQuery = `
INSERT INTO bids (
    bid_id, cid, chain_id, auction_id, auction_address, auction_name, settlement_contract,
    signer, signature, signed_hash, units, base_price, tip, typed_data, status,
    submitted_timestamp, status_last_updated)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 'submitted', $15, $16)`

const getBidQuery = `
SELECT bid_id, cid, chain_id, auction_id, auction_address, auction_name, settlement_contract,
    signer, signature, units::text, base_price::text, tip::text, status::text,
    COALESCE(replaced_by, ''), submitted_timestamp, status_last_updated
FROM bids WHERE bid_id = $1`

// Store is a Postgres bidstore.Store. It isn't safe for concurrent use; share it
// through a connguard.Guard.
type Store struct {
	postgresURI string
	conn        *sql.DB
}

var _ bidstore.Store = (*Store)(nil)

// New returns a disconnected Store. Migrations run on the first Connect.
func New(postgresURI string) (*Store, error) {
	if postgresURI == "" {
		return nil, errors.New("postgres uri is empty")
	}
	return &Store{postgresURI: postgresURI}, nil
}

// IsConnected returns true if a connection pool is open.
func (s *Store) IsConnected(context.Context) bool {
	return s.conn != nil
}

// Connect migrates the database and opens a new connection pool.
func (s *Store) Connect(ctx context.Context) error {
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			log.Warnf("closing previous postgres connection: %s", err)
		}
		s.conn = nil
	}
	conn, err := storeutil.MigrateAndConnectToDB(s.postgresURI, migrations.FS)
	if err != nil {
		return fmt.Errorf("initializing db connection: %s", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return fmt.Errorf("pinging db: %s", err)
	}
	s.conn = conn
	return nil
}

// Ping runs a trivial query.
func (s *Store) Ping(ctx context.Context) error {
	if s.conn == nil {
		return errNotConnected
	}
	var one int
	if err := s.conn.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("select 1: %s", err)
	}
	return nil
}

// InsertBid stores b and supersedes the signer's previous submitted bid for the same
// auction in a single serializable transaction.
func (s *Store) InsertBid(ctx context.Context, b bid.Bid) (string, error) {
	if s.conn == nil {
		return "", errNotConnected
	}
	id := b.ID()
	c, err := b.Payload.CID()
	if err != nil {
		return "", err
	}
	typedData, err := json.Marshal(b.Payload.TypedData)
	if err != nil {
		return "", fmt.Errorf("marshaling typed data: %s", err)
	}

	start := time.Now()
	now := start.UTC()
	auctionID := b.Auction.ID()
	signer := strings.ToLower(b.Signer.Hex())
	err = storeutil.WithTx(ctx, s.conn, func(txn *sql.Tx) error {
		res, err := txn.ExecContext(ctx, replaceSubmittedBidQuery, id, now, auctionID, signer)
		if err != nil {
			return fmt.Errorf("replacing submitted bid: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			log.Debugf("bid %s replaces %d submitted bid(s) of %s in auction %s", id, n, signer, auctionID)
		}
		if _, err := txn.ExecContext(ctx, insertBidQuery,
			id,
			c.String(),
			b.Payload.ChainID(),
			auctionID,
			strings.ToLower(b.Auction.Address.Hex()),
			b.Auction.Name,
			strings.ToLower(b.Auction.SettlementContract.Hex()),
			signer,
			b.Payload.Signature,
			b.Hash.Hex(),
			b.Values.Amount.String(),
			b.Values.BasePrice.String(),
			b.Values.Tip.String(),
			string(typedData),
			b.ReceivedAt.UTC(),
			now,
		); err != nil {
			return fmt.Errorf("inserting bid: %w", err)
		}
		return nil
	})
	if err != nil {
		if isConflict(err) {
			return "", fmt.Errorf("%w: %s", bidstore.ErrConcurrentBid, err)
		}
		return "", err
	}
	log.Debugf("inserting bid %s took %dms", id, time.Since(start).Milliseconds())
	return id, nil
}

// GetBid returns a stored bid. If not found returns bidstore.ErrNotFound.
func (s *Store) GetBid(ctx context.Context, id string) (bidstore.StoredBid, error) {
	if s.conn == nil {
		return bidstore.StoredBid{}, errNotConnected
	}
	var (
		sb     bidstore.StoredBid
		status string
	)
	err := s.conn.QueryRowContext(ctx, getBidQuery, id).Scan(
		&sb.ID,
		&sb.CID,
		&sb.ChainID,
		&sb.AuctionID,
		&sb.AuctionAddress,
		&sb.AuctionName,
		&sb.SettlementContract,
		&sb.Signer,
		&sb.Signature,
		&sb.Units,
		&sb.BasePrice,
		&sb.Tip,
		&status,
		&sb.ReplacedBy,
		&sb.SubmittedAt,
		&sb.StatusUpdatedAt,
	)
	if err == sql.ErrNoRows {
		return bidstore.StoredBid{}, bidstore.ErrNotFound
	}
	if err != nil {
		return bidstore.StoredBid{}, fmt.Errorf("get bid: %s", err)
	}
	if sb.Status, err = bidstore.ParseStatus(status); err != nil {
		return bidstore.StoredBid{}, err
	}
	return sb, nil
}

// Close closes the connection pool, if any.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("closing sql connection: %s", err)
	}
	s.conn = nil
	return nil
}

func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation || pgErr.Code == pgSerializationFailure
	}
	return false
}
