package fakecache

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pikapool/pikapool-api/bid"
	"github.com/pikapool/pikapool-api/cache"
)

var errNotConnected = errors.New("fake cache not connected")

// FakeCache is an in-memory cache.Cache.
type FakeCache struct {
	lock sync.Mutex

	connected bool
	// ConnectErr and PingErr, if set, are returned by Connect and Ping.
	ConnectErr error
	PingErr    error
	connects   int
	pings      int

	auctions     map[string]bid.Auction
	syncedBlocks map[string]uint64
	funds        map[string]cache.SignerFunds
}

var _ cache.Cache = (*FakeCache)(nil)

// New returns an empty, disconnected FakeCache.
func New() *FakeCache {
	return &FakeCache{
		auctions:     map[string]bid.Auction{},
		syncedBlocks: map[string]uint64{},
		funds:        map[string]cache.SignerFunds{},
	}
}

func (c *FakeCache) IsConnected(context.Context) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.connected
}

func (c *FakeCache) Connect(context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.connects++
	if c.ConnectErr != nil {
		c.connected = false
		return c.ConnectErr
	}
	c.connected = true
	return nil
}

func (c *FakeCache) Ping(context.Context) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.pings++
	if !c.connected {
		return errNotConnected
	}
	return c.PingErr
}

func (c *FakeCache) GetAuction(
	_ context.Context,
	chainID string,
	auction common.Address,
	name string) (bid.Auction, bool, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.connected {
		return bid.Auction{}, false, errNotConnected
	}
	a, ok := c.auctions[contractKey(chainID, auction)]
	if !ok || (a.Name != "" && a.Name != name) {
		return bid.Auction{}, false, nil
	}
	a.Name = name
	return a, true, nil
}

func (c *FakeCache) GetSyncedBlock(_ context.Context, chainID string, settlementContract common.Address) (uint64, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.connected {
		return 0, errNotConnected
	}
	n, ok := c.syncedBlocks[contractKey(chainID, settlementContract)]
	if !ok {
		return 0, cache.ErrSyncedBlockNotFound
	}
	return n, nil
}

func (c *FakeCache) GetSignerApproveAndBalAmts(
	_ context.Context,
	chainID string,
	settlementContract, signer common.Address) (cache.SignerFunds, bool, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if !c.connected {
		return cache.SignerFunds{}, false, errNotConnected
	}
	f, ok := c.funds[signerKey(chainID, settlementContract, signer)]
	return f, ok, nil
}

// Helpers for tests

// SetAuction records an auction. An empty name matches any requested name.
func (c *FakeCache) SetAuction(chainID string, a bid.Auction) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.auctions[contractKey(chainID, a.Address)] = a
}

// SetSyncedBlock records the synced block of a settlement contract.
func (c *FakeCache) SetSyncedBlock(chainID string, settlementContract common.Address, block uint64) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.syncedBlocks[contractKey(chainID, settlementContract)] = block
}

// SetSignerFunds records a signer approval and balance.
func (c *FakeCache) SetSignerFunds(chainID string, settlementContract, signer common.Address, approved, balance *big.Int) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.funds[signerKey(chainID, settlementContract, signer)] = cache.SignerFunds{Approved: approved, Balance: balance}
}

// Disconnect simulates a dropped connection.
func (c *FakeCache) Disconnect() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.connected = false
}

// Connects returns how many times Connect was called.
func (c *FakeCache) Connects() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.connects
}

// Pings returns how many times Ping was called.
func (c *FakeCache) Pings() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.pings
}

func contractKey(chainID string, contract common.Address) string {
	return chainID + "/" + strings.ToLower(contract.Hex())
}

func signerKey(chainID string, contract, signer common.Address) string {
	return contractKey(chainID, contract) + "/" + strings.ToLower(signer.Hex())
}
