// Package rediscache implements cache.Cache on top of the Redis database filled by the
// chain sync process.
//
// Key layout (hex is lowercase, without 0x):
//   {chainID}:auction:{auction}                   hash: startBlock endBlock settlementContract basePrice [name]
//   {chainID}:{settlement[:4]}:syncedBlock        string: block number
//   {chainID}:{settlement[:4]}:{signer}           hash: lastApproveValue lastBalanceValue
package rediscache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pikapool/pikapool-api/bid"
	"github.com/pikapool/pikapool-api/cache"
	"github.com/redis/go-redis/v9"
)

var (
	log = logging.Logger("rediscache")

	errNotConnected = errors.New("redis client isn't connected")
)

var (
	auctionFields = []string{"startBlock", "endBlock", "settlementContract", "basePrice"}
	// auctionNameField is optional. When recorded, it must match the requested name.
	auctionNameField = "name"
	signerFields  = []string{"lastApproveValue", "lastBalanceValue"}
)

// Cache is a Redis backed cache.Cache. It isn't safe for concurrent use; share it
// through a connguard.Guard.
type Cache struct {
	opts   *redis.Options
	client *redis.Client
}

var _ cache.Cache = (*Cache)(nil)

// New returns a disconnected Cache for redisURL.
func New(redisURL string) (*Cache, error) {
	if redisURL == "" {
		return nil, errors.New("redis url is empty")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %s", err)
	}
	return &Cache{opts: opts}, nil
}

// IsConnected returns true if a client was created.
func (c *Cache) IsConnected(context.Context) bool {
	return c.client != nil
}

// Connect (re)creates the client and checks the server answers.
func (c *Cache) Connect(ctx context.Context) error {
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			log.Warnf("closing previous redis client: %s", err)
		}
		c.client = nil
	}
	client := redis.NewClient(c.opts)
	if err := ping(ctx, client); err != nil {
		_ = client.Close()
		return err
	}
	c.client = client
	return nil
}

// Ping checks the connection is alive.
func (c *Cache) Ping(ctx context.Context) error {
	if c.client == nil {
		return errNotConnected
	}
	return ping(ctx, c.client)
}

// GetAuction returns the auction recorded for the contract. An auction whose recorded
// name differs from name isn't found.
func (c *Cache) GetAuction(
	ctx context.Context,
	chainID string,
	auction common.Address,
	name string) (bid.Auction, bool, error) {
	if c.client == nil {
		return bid.Auction{}, false, errNotConnected
	}
	key := AuctionKey(chainID, auction)
	vals, found, err := c.hmget(ctx, key, auctionFields, auctionNameField)
	if err != nil || !found {
		return bid.Auction{}, false, err
	}
	if recorded := vals[len(auctionFields)]; recorded != "" && recorded != name {
		log.Debugf("auction %s is named %q, not %q", key, recorded, name)
		return bid.Auction{}, false, nil
	}

	startBlock, err := strconv.ParseUint(vals[0], 10, 64)
	if err != nil {
		return bid.Auction{}, false, fmt.Errorf("parsing start block of %s: %s", key, err)
	}
	endBlock, err := strconv.ParseUint(vals[1], 10, 64)
	if err != nil {
		return bid.Auction{}, false, fmt.Errorf("parsing end block of %s: %s", key, err)
	}
	if !common.IsHexAddress(vals[2]) {
		return bid.Auction{}, false, fmt.Errorf("invalid settlement contract %q in %s", vals[2], key)
	}
	basePrice, ok := cache.ParseAmount(vals[3])
	if !ok {
		return bid.Auction{}, false, fmt.Errorf("invalid base price %q in %s", vals[3], key)
	}

	return bid.Auction{
		Address:            auction,
		Name:               name,
		StartBlock:         startBlock,
		EndBlock:           endBlock,
		SettlementContract: common.HexToAddress(vals[2]),
		BasePrice:          basePrice,
	}, true, nil
}

// GetSyncedBlock returns the last block processed by the sync process for the
// settlement contract.
func (c *Cache) GetSyncedBlock(ctx context.Context, chainID string, settlementContract common.Address) (uint64, error) {
	if c.client == nil {
		return 0, errNotConnected
	}
	key := SyncedBlockKey(chainID, settlementContract)
	s, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, fmt.Errorf("%s: %w", key, cache.ErrSyncedBlockNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	block, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing synced block %q: %s", s, err)
	}
	return block, nil
}

// GetSignerApproveAndBalAmts returns the signer approval and balance for the settlement
// contract.
func (c *Cache) GetSignerApproveAndBalAmts(
	ctx context.Context,
	chainID string,
	settlementContract, signer common.Address) (cache.SignerFunds, bool, error) {
	if c.client == nil {
		return cache.SignerFunds{}, false, errNotConnected
	}
	key := SignerKey(chainID, settlementContract, signer)
	vals, found, err := c.hmget(ctx, key, signerFields)
	if err != nil || !found {
		return cache.SignerFunds{}, false, err
	}
	approved, ok := cache.ParseApproval(vals[0])
	if !ok {
		return cache.SignerFunds{}, false, fmt.Errorf("invalid approve value %q in %s", vals[0], key)
	}
	balance, ok := cache.ParseAmount(vals[1])
	if !ok {
		return cache.SignerFunds{}, false, fmt.Errorf("invalid balance value %q in %s", vals[1], key)
	}
	return cache.SignerFunds{Approved: approved, Balance: balance}, true, nil
}

// Close closes the client, if any.
func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

// hmget returns the required fields of a hash followed by the optional ones. found is
// false if none of the required fields exist, and an error is returned if only some of
// them do. Missing optional fields are empty.
func (c *Cache) hmget(ctx context.Context, key string, required []string, optional ...string) ([]string, bool, error) {
	fields := append(append([]string{}, required...), optional...)
	raw, err := c.client.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return nil, false, fmt.Errorf("hmget %s: %w", key, err)
	}
	vals := make([]string, len(fields))
	var missing int
	for i, v := range raw {
		if v == nil {
			if i < len(required) {
				missing++
			}
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, false, fmt.Errorf("unexpected type %T for %s.%s", v, key, fields[i])
		}
		vals[i] = s
	}
	switch missing {
	case 0:
		return vals, true, nil
	case len(required):
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("incomplete record %s", key)
	}
}

func ping(ctx context.Context, client *redis.Client) error {
	res, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if res != "PONG" {
		return fmt.Errorf("ping returned unexpected result %q", res)
	}
	return nil
}

// AuctionKey is the hash key of an auction.
func AuctionKey(chainID string, auction common.Address) string {
	return fmt.Sprintf("%s:auction:%s", chainID, hexAddr(auction))
}

// SyncedBlockKey is the key of the synced block of a settlement contract.
func SyncedBlockKey(chainID string, settlementContract common.Address) string {
	return fmt.Sprintf("%s:%s:syncedBlock", chainID, hexAddr(settlementContract)[:4])
}

// SignerKey is the hash key of a signer approval and balance.
func SignerKey(chainID string, settlementContract, signer common.Address) string {
	return fmt.Sprintf("%s:%s:%s", chainID, hexAddr(settlementContract)[:4], hexAddr(signer))
}

func hexAddr(a common.Address) string {
	return hex.EncodeToString(a.Bytes())
}
