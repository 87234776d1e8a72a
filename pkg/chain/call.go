package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	pluserrors "github.com/tendant/pluser/pkg/errors"
	"github.com/tendant/pluser/pkg/eventlog"
)

// Call is the context of one Execute. It is only valid inside the fn
// passed to Execute.
type Call struct {
	ctx       context.Context
	chain     *Chain
	sender    common.Address
	timestamp uint64
	events    []eventlog.Event
	effects   []func()
	claims    map[common.Address]string
	createSeq map[common.Address]uint64
}

func (c *Call) Context() context.Context {
	return c.ctx
}

// Sender is the caller of the outermost operation.
func (c *Call) Sender() common.Address {
	return c.sender
}

// Timestamp is the block time of the call. It is the same for every read
// within one call.
func (c *Call) Timestamp() uint64 {
	return c.timestamp
}

func (c *Call) ChainID() *big.Int {
	return c.chain.ChainID()
}

// Emit records an event. Events are stored only if the call succeeds.
func (c *Call) Emit(emitter common.Address, name string, args map[string]string) {
	c.events = append(c.events, eventlog.Event{
		BlockTime: c.timestamp,
		Emitter:   emitter,
		Sender:    c.sender,
		Name:      name,
		Args:      args,
	})
}

// Defer stages a mutation to run after the call's events are stored.
func (c *Call) Defer(effect func()) {
	c.effects = append(c.effects, effect)
}

// Claimed reports whether addr is taken, including by this call.
func (c *Call) Claimed(addr common.Address) bool {
	if _, ok := c.claims[addr]; ok {
		return true
	}
	_, ok := c.chain.claimed[addr]
	return ok
}

// Claim reserves addr for a contract of kind. Fails with ALREADY_EXISTS if
// the address is taken.
func (c *Call) Claim(addr common.Address, kind string) error {
	if c.Claimed(addr) {
		return pluserrors.AlreadyExists(kind, addr.Hex())
	}
	c.claims[addr] = kind
	return nil
}

// Create2 claims the deterministic address of (deployer, salt, kind).
func (c *Call) Create2(deployer common.Address, salt [32]byte, kind string) (common.Address, error) {
	addr := Create2Address(deployer, salt, kind)
	if err := c.Claim(addr, kind); err != nil {
		return common.Address{}, err
	}
	return addr, nil
}

// Create claims the next sequential address of deployer, the way a plain
// contract creation derives it from the deployer's nonce.
func (c *Call) Create(deployer common.Address, kind string) (common.Address, error) {
	seq, ok := c.createSeq[deployer]
	if !ok {
		seq = c.chain.createSeq[deployer]
	}
	addr := crypto.CreateAddress(deployer, seq)
	if err := c.Claim(addr, kind); err != nil {
		return common.Address{}, err
	}
	c.createSeq[deployer] = seq + 1
	return addr, nil
}
