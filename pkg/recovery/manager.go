package recovery

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tendant/pluser/pkg/chain"
	"github.com/tendant/pluser/pkg/typeddata"
)

const (
	// RequestTimeout is how long a recovery request stays locked.
	RequestTimeout = 3 * 24 * time.Hour
	// SessionLifetime is how long a device session stays active.
	SessionLifetime = time.Hour
	// SignatureLifetime bounds how long a session nonce can be signed for
	// after it is issued.
	SignatureLifetime = 15 * time.Minute

	DomainName    = "RecoveryManager"
	DomainVersion = "1"
)

// Wallet is the account a Manager protects, seen from the module side.
type Wallet interface {
	Address() common.Address
	Owner() common.Address
	IsOwner(addr common.Address) bool
	ReplaceOwner(call *chain.Call, module, oldOwner, newOwner common.Address) error
}

// State of the recovery state machine.
type State string

const (
	StateIdle           State = "idle"
	StateRequestPending State = "request_pending"
)

// Request is the pending device replacement. The zero value means none.
type Request struct {
	Key        common.Address `json:"key"`
	UnlockTime uint64         `json:"unlock_time"`
}

// Pending reports whether r is an actual request.
func (r Request) Pending() bool {
	return r.Key != (common.Address{})
}

// Config binds a Manager to its account and signers.
type Config struct {
	Address           common.Address
	Wallet            Wallet
	AuthKey           common.Address
	Guard             common.Address
	TwoFactorVerifier common.Address
	ChainID           *big.Int
	Verifier          typeddata.Verifier
}

// Manager is the recovery module of one account. It runs two independent
// channels that both end in swapping the account's owner:
//
//   - the timelocked request channel driven by the auth key and co-signed
//     by the two-factor verifier (CreateRequest, CancelRequest, Recovery),
//     replay-protected by requestNonce;
//   - the session channel in which the current device key installs a new
//     one immediately with a fresh auth key signature (AddDevice),
//     replay-protected by nonce.
//
// Readers must be called inside chain.Execute or chain.View.
type Manager struct {
	address           common.Address
	wallet            Wallet
	authKey           common.Address
	guard             common.Address
	twoFactorVerifier common.Address
	domain            typeddata.Domain
	verifier          typeddata.Verifier

	requestNonce uint64
	request      Request

	nonce         uint64
	nonceIssuedAt uint64
	sessions      map[common.Address]uint64
	initialized   bool
}

// New creates a Manager from cfg.
func New(cfg Config) (*Manager, error) {
	if cfg.Wallet == nil {
		return nil, fmt.Errorf("wallet is required")
	}
	if cfg.AuthKey == (common.Address{}) {
		return nil, fmt.Errorf("auth key is required")
	}
	if cfg.TwoFactorVerifier == (common.Address{}) {
		return nil, fmt.Errorf("two-factor verifier is required")
	}
	if cfg.ChainID == nil {
		return nil, fmt.Errorf("chain id is required")
	}
	verifier := cfg.Verifier
	if verifier == nil {
		verifier = typeddata.NewECDSAVerifier()
	}

	return &Manager{
		address:           cfg.Address,
		wallet:            cfg.Wallet,
		authKey:           cfg.AuthKey,
		guard:             cfg.Guard,
		twoFactorVerifier: cfg.TwoFactorVerifier,
		domain: typeddata.Domain{
			Name:              DomainName,
			Version:           DomainVersion,
			ChainID:           new(big.Int).Set(cfg.ChainID),
			VerifyingContract: cfg.Address,
		},
		verifier: verifier,
		sessions: make(map[common.Address]uint64),
	}, nil
}

func (m *Manager) Address() common.Address {
	return m.address
}

// RequestTimeout returns the request timelock.
func (m *Manager) RequestTimeout() time.Duration {
	return RequestTimeout
}

// Wallet returns the protected account's address.
func (m *Manager) Wallet() common.Address {
	return m.wallet.Address()
}

func (m *Manager) AuthKey() common.Address {
	return m.authKey
}

func (m *Manager) Guard() common.Address {
	return m.guard
}

func (m *Manager) TwoFactorVerifier() common.Address {
	return m.twoFactorVerifier
}

// Domain is the typed-data domain recovery signatures are made under.
func (m *Manager) Domain() typeddata.Domain {
	d := m.domain
	d.ChainID = new(big.Int).Set(m.domain.ChainID)
	return d
}

func (m *Manager) RequestNonce() uint64 {
	return m.requestNonce
}

// Request returns the pending request, or the zero Request when idle.
func (m *Manager) Request() Request {
	return m.request
}

func (m *Manager) State() State {
	if m.request.Pending() {
		return StateRequestPending
	}
	return StateIdle
}

// Nonce is the session channel nonce.
func (m *Manager) Nonce() uint64 {
	return m.nonce
}

// NonceIssuedAt is the block time at which the current session nonce
// became valid.
func (m *Manager) NonceIssuedAt() uint64 {
	return m.nonceIssuedAt
}

// SignatureDeadline is the last block time at which an AddDevice signed
// over the current nonce is accepted.
func (m *Manager) SignatureDeadline() uint64 {
	return m.nonceIssuedAt + seconds(SignatureLifetime)
}

// TimeoutBySessionKey returns when key's session ends, 0 if it never had one.
func (m *Manager) TimeoutBySessionKey(key common.Address) uint64 {
	return m.sessions[key]
}

// IsSessionActive reports whether key has a session that has not ended at now.
func (m *Manager) IsSessionActive(key common.Address, now uint64) bool {
	return now < m.sessions[key]
}

func seconds(d time.Duration) uint64 {
	return uint64(d / time.Second)
}
