package factory

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tendant/pluser/pkg/account"
	"github.com/tendant/pluser/pkg/chain"
	pluserrors "github.com/tendant/pluser/pkg/errors"
	"github.com/tendant/pluser/pkg/guard"
	"github.com/tendant/pluser/pkg/recovery"
	"github.com/tendant/pluser/pkg/typeddata"
)

const (
	DomainName    = "PluserFactory"
	DomainVersion = "1.0.0"
)

// Contract kinds claimed on the chain.
const (
	KindFactory         = "pluser-factory"
	KindAccount         = "account"
	KindGuard           = "two-factor-guard"
	KindRecoveryManager = "recovery-manager"
)

// Deployment records one account created by the factory.
type Deployment struct {
	AuthKey         common.Address `json:"auth_key"`
	DeviceKey       common.Address `json:"device_key"`
	Account         common.Address `json:"account"`
	Guard           common.Address `json:"guard"`
	RecoveryManager common.Address `json:"recovery_manager"`
	CreatedAt       uint64         `json:"created_at"`
}

// AccountCreated is the result of Deploy, mirroring the event it emits.
type AccountCreated struct {
	AuthKey         common.Address `json:"auth_key"`
	Account         common.Address `json:"account"`
	DeviceKey       common.Address `json:"device_key"`
	RecoveryManager common.Address `json:"recovery_manager"`
}

// Config configures a factory.
type Config struct {
	// Address is where the factory lives. When zero, Install derives it
	// from Owner's creation sequence.
	Address           common.Address
	Owner             common.Address
	TwoFactorVerifier common.Address
	Deployers         []common.Address
	Verifier          typeddata.Verifier
}

type instance struct {
	deployment Deployment
	account    *account.Account
	guard      *guard.TwoFactorGuard
	manager    *recovery.Manager
}

// Factory is the only way guarded accounts come into existence. It owns
// the authorized deployer set and the registry of what it created.
//
// Readers must be called inside chain.Execute or chain.View.
type Factory struct {
	address           common.Address
	owner             common.Address
	twoFactorVerifier common.Address
	chainID           *big.Int
	domain            typeddata.Domain
	verifier          typeddata.Verifier

	deployers  map[common.Address]bool
	byAccount  map[common.Address]*instance
	byManager  map[common.Address]*instance
	byAuthKey  map[common.Address][]*instance
	deployment []*instance
}

// Install deploys a factory on ch in a call sent by cfg.Owner. The initial
// deployers are authorized in the same call.
func Install(ctx context.Context, ch *chain.Chain, cfg Config) (*Factory, error) {
	if cfg.Owner == (common.Address{}) {
		return nil, fmt.Errorf("factory owner is required")
	}
	if cfg.TwoFactorVerifier == (common.Address{}) {
		return nil, fmt.Errorf("two-factor verifier is required")
	}

	var f *Factory
	_, err := ch.Execute(ctx, cfg.Owner, func(call *chain.Call) error {
		addr := cfg.Address
		if addr == (common.Address{}) {
			var err error
			if addr, err = call.Create(cfg.Owner, KindFactory); err != nil {
				return err
			}
		} else if err := call.Claim(addr, KindFactory); err != nil {
			return err
		}

		f = newFactory(addr, cfg, call.ChainID())
		call.Emit(addr, "FactoryDeployed", map[string]string{
			"owner":             cfg.Owner.Hex(),
			"twoFactorVerifier": cfg.TwoFactorVerifier.Hex(),
		})
		seen := make(map[common.Address]bool)
		for _, d := range cfg.Deployers {
			if seen[d] {
				continue
			}
			seen[d] = true
			if err := f.AddDeployer(call, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Factory installed", "address", f.address.Hex(), "owner", f.owner.Hex(), "deployers", len(cfg.Deployers))
	return f, nil
}

func newFactory(addr common.Address, cfg Config, chainID *big.Int) *Factory {
	verifier := cfg.Verifier
	if verifier == nil {
		verifier = typeddata.NewECDSAVerifier()
	}
	return &Factory{
		address:           addr,
		owner:             cfg.Owner,
		twoFactorVerifier: cfg.TwoFactorVerifier,
		chainID:           chainID,
		domain: typeddata.Domain{
			Name:              DomainName,
			Version:           DomainVersion,
			ChainID:           chainID,
			VerifyingContract: addr,
		},
		verifier:  verifier,
		deployers: make(map[common.Address]bool),
		byAccount: make(map[common.Address]*instance),
		byManager: make(map[common.Address]*instance),
		byAuthKey: make(map[common.Address][]*instance),
	}
}

// Salt is the CREATE2 salt of the (authKey, deviceKey) pair.
func Salt(authKey, deviceKey common.Address) [32]byte {
	return crypto.Keccak256Hash(authKey.Bytes(), deviceKey.Bytes())
}

// Predict returns the addresses Deploy would assign to the pair.
func (f *Factory) Predict(authKey, deviceKey common.Address) Deployment {
	salt := Salt(authKey, deviceKey)
	return Deployment{
		AuthKey:         authKey,
		DeviceKey:       deviceKey,
		Account:         chain.Create2Address(f.address, salt, KindAccount),
		Guard:           chain.Create2Address(f.address, salt, KindGuard),
		RecoveryManager: chain.Create2Address(f.address, salt, KindRecoveryManager),
	}
}

// Deploy creates an account owned by deviceKey, its two-factor guard and
// its recovery manager bound to authKey. The sender must be an authorized
// deployer and signature must be authKey's signature over
// CreateAccount{authKey, deviceKey}.
func (f *Factory) Deploy(call *chain.Call, authKey, deviceKey common.Address, signature []byte) (AccountCreated, error) {
	if !f.deployers[call.Sender()] {
		return AccountCreated{}, pluserrors.New(pluserrors.ErrCodeNotDeployer, "not deployer").
			WithDetail("sender", call.Sender().Hex())
	}
	if authKey == (common.Address{}) {
		return AccountCreated{}, pluserrors.InvalidInput("authKey", "zero address")
	}
	if deviceKey == (common.Address{}) {
		return AccountCreated{}, pluserrors.InvalidInput("deviceKey", "zero address")
	}

	payload := typeddata.CreateAccount{AuthKey: authKey, DeviceKey: deviceKey}
	if err := typeddata.VerifyTyped(f.verifier, f.domain, payload, signature, authKey, authKey.Hex()); err != nil {
		return AccountCreated{}, err
	}

	salt := Salt(authKey, deviceKey)
	accountAddr, err := call.Create2(f.address, salt, KindAccount)
	if err != nil {
		return AccountCreated{}, err
	}
	guardAddr, err := call.Create2(f.address, salt, KindGuard)
	if err != nil {
		return AccountCreated{}, err
	}
	managerAddr, err := call.Create2(f.address, salt, KindRecoveryManager)
	if err != nil {
		return AccountCreated{}, err
	}

	acc := account.New(accountAddr, f.chainID, f.verifier)
	g := guard.New(guardAddr, f.twoFactorVerifier, f.verifier)
	m, err := recovery.New(recovery.Config{
		Address:           managerAddr,
		Wallet:            acc,
		AuthKey:           authKey,
		Guard:             guardAddr,
		TwoFactorVerifier: f.twoFactorVerifier,
		ChainID:           f.chainID,
		Verifier:          f.verifier,
	})
	if err != nil {
		return AccountCreated{}, pluserrors.InternalWrap(err, "failed to create recovery manager")
	}

	if err := acc.Setup(call, deviceKey, guardAddr, g, managerAddr); err != nil {
		return AccountCreated{}, err
	}
	if err := m.Initialize(call, deviceKey); err != nil {
		return AccountCreated{}, err
	}

	created := AccountCreated{
		AuthKey:         authKey,
		Account:         accountAddr,
		DeviceKey:       deviceKey,
		RecoveryManager: managerAddr,
	}
	call.Emit(f.address, "AccountCreated", map[string]string{
		"authKey":         authKey.Hex(),
		"account":         accountAddr.Hex(),
		"deviceKey":       deviceKey.Hex(),
		"recoveryManager": managerAddr.Hex(),
	})

	inst := &instance{
		deployment: Deployment{
			AuthKey:         authKey,
			DeviceKey:       deviceKey,
			Account:         accountAddr,
			Guard:           guardAddr,
			RecoveryManager: managerAddr,
			CreatedAt:       call.Timestamp(),
		},
		account: acc,
		guard:   g,
		manager: m,
	}
	call.Defer(func() {
		f.byAccount[accountAddr] = inst
		f.byManager[managerAddr] = inst
		f.byAuthKey[authKey] = append(f.byAuthKey[authKey], inst)
		f.deployment = append(f.deployment, inst)
		slog.Info("Account created", "account", accountAddr.Hex(), "authKey", authKey.Hex(), "deviceKey", deviceKey.Hex())
	})
	return created, nil
}

// AddDeployer authorizes addr to call Deploy. Only the factory owner may
// call it. Adding a member again changes nothing and emits nothing.
func (f *Factory) AddDeployer(call *chain.Call, addr common.Address) error {
	if call.Sender() != f.owner {
		return pluserrors.PermissionDenied("caller is not the owner").WithDetail("sender", call.Sender().Hex())
	}
	if addr == (common.Address{}) {
		return pluserrors.InvalidInput("deployer", "zero address")
	}
	if f.deployers[addr] {
		slog.Debug("Deployer already authorized", "deployer", addr.Hex())
		return nil
	}

	call.Emit(f.address, "DeployerAdded", map[string]string{"deployer": addr.Hex()})
	call.Defer(func() {
		f.deployers[addr] = true
	})
	return nil
}

func (f *Factory) Address() common.Address {
	return f.address
}

func (f *Factory) Owner() common.Address {
	return f.owner
}

// TwoFactorVerifier is the second signer every guard created here requires.
func (f *Factory) TwoFactorVerifier() common.Address {
	return f.twoFactorVerifier
}

// Domain is the typed-data domain of CreateAccount signatures.
func (f *Factory) Domain() typeddata.Domain {
	return f.domain
}

func (f *Factory) IsDeployer(addr common.Address) bool {
	return f.deployers[addr]
}

// Deployers returns the authorized deployers sorted by address.
func (f *Factory) Deployers() []common.Address {
	out := make([]common.Address, 0, len(f.deployers))
	for d := range f.deployers {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Cmp(out[j]) < 0
	})
	return out
}

// Deployment looks up a deployment by account address.
func (f *Factory) Deployment(accountAddr common.Address) (Deployment, bool) {
	inst, ok := f.byAccount[accountAddr]
	if !ok {
		return Deployment{}, false
	}
	return inst.deployment, true
}

// ByRecoveryManager looks up a deployment by recovery manager address.
func (f *Factory) ByRecoveryManager(managerAddr common.Address) (Deployment, bool) {
	inst, ok := f.byManager[managerAddr]
	if !ok {
		return Deployment{}, false
	}
	return inst.deployment, true
}

// ByAuthKey lists the deployments recoverable by authKey in creation order.
func (f *Factory) ByAuthKey(authKey common.Address) []Deployment {
	out := make([]Deployment, 0, len(f.byAuthKey[authKey]))
	for _, inst := range f.byAuthKey[authKey] {
		out = append(out, inst.deployment)
	}
	return out
}

// Deployments lists every deployment in creation order.
func (f *Factory) Deployments() []Deployment {
	out := make([]Deployment, 0, len(f.deployment))
	for _, inst := range f.deployment {
		out = append(out, inst.deployment)
	}
	return out
}

func (f *Factory) Account(addr common.Address) (*account.Account, bool) {
	inst, ok := f.byAccount[addr]
	if !ok {
		return nil, false
	}
	return inst.account, true
}

func (f *Factory) Guard(accountAddr common.Address) (*guard.TwoFactorGuard, bool) {
	inst, ok := f.byAccount[accountAddr]
	if !ok {
		return nil, false
	}
	return inst.guard, true
}

func (f *Factory) RecoveryManager(addr common.Address) (*recovery.Manager, bool) {
	inst, ok := f.byManager[addr]
	if !ok {
		return nil, false
	}
	return inst.manager, true
}
