package chain

import (
	"context"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	pluserrors "github.com/tendant/pluser/pkg/errors"
	"github.com/tendant/pluser/pkg/eventlog"
)

// Config configures a Chain.
type Config struct {
	// ChainID is bound into every typed-data domain. Defaults to 31337.
	ChainID *big.Int
	// Clock defaults to SystemClock.
	Clock Clock
	// Events defaults to an in-memory log.
	Events eventlog.Repository
}

// DefaultChainID is the chain id of a local development network.
var DefaultChainID = big.NewInt(31337)

// Chain is a single-writer, totally ordered execution environment for
// contracts. Contract state lives in the contracts themselves and is
// guarded by the chain lock: mutations happen inside Execute, reads
// inside Execute or View.
type Chain struct {
	mu        sync.RWMutex
	chainID   *big.Int
	clock     Clock
	events    eventlog.Repository
	lastTime  uint64
	claimed   map[common.Address]string
	createSeq map[common.Address]uint64
}

// New creates a chain from cfg, filling in defaults.
func New(cfg Config) *Chain {
	chainID := cfg.ChainID
	if chainID == nil {
		chainID = DefaultChainID
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	events := cfg.Events
	if events == nil {
		events = eventlog.NewInMemRepository()
	}
	return &Chain{
		chainID:   new(big.Int).Set(chainID),
		clock:     clock,
		events:    events,
		claimed:   make(map[common.Address]string),
		createSeq: make(map[common.Address]uint64),
	}
}

// ChainID returns a copy of the chain id.
func (c *Chain) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Events returns the event log the chain appends to.
func (c *Chain) Events() eventlog.Repository {
	return c.events
}

// Execute runs fn as one atomic call made by sender. fn must validate
// before staging any mutation with Call.Defer. If fn fails nothing is
// applied. If it succeeds its events are appended to the log and only then
// are the staged mutations applied, in order.
func (c *Chain) Execute(ctx context.Context, sender common.Address, fn func(call *Call) error) ([]eventlog.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.clock.Now()
	if ts < c.lastTime {
		ts = c.lastTime
	}

	call := &Call{
		ctx:       ctx,
		chain:     c,
		sender:    sender,
		timestamp: ts,
		claims:    make(map[common.Address]string),
		createSeq: make(map[common.Address]uint64),
	}
	if err := fn(call); err != nil {
		slog.Warn("Call reverted", "sender", sender.Hex(), "timestamp", ts, "error", err)
		return nil, err
	}

	var stored []eventlog.Event
	if len(call.events) > 0 {
		var err error
		stored, err = c.events.Append(ctx, call.events...)
		if err != nil {
			slog.Error("Failed to append events, call discarded", "sender", sender.Hex(), "error", err)
			return nil, pluserrors.InternalWrap(err, "failed to record call events")
		}
	}

	c.lastTime = ts
	for addr, kind := range call.claims {
		c.claimed[addr] = kind
	}
	for addr, seq := range call.createSeq {
		c.createSeq[addr] = seq
	}
	for _, effect := range call.effects {
		effect()
	}
	return stored, nil
}

// View runs fn under the read lock.
func (c *Chain) View(fn func()) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn()
}

// Now returns the timestamp the next call would observe, without
// consuming it.
func (c *Chain) Now() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if now := c.clock.Now(); now > c.lastTime {
		return now
	}
	return c.lastTime
}

// KindOf returns the contract kind claimed at addr, or "" when free.
// Must be called inside Execute or View.
func (c *Chain) KindOf(addr common.Address) string {
	return c.claimed[addr]
}

// Create2Address is the deterministic address a deployer obtains for salt
// and kind.
func Create2Address(deployer common.Address, salt [32]byte, kind string) common.Address {
	return crypto.CreateAddress2(deployer, salt, crypto.Keccak256([]byte(kind)))
}
