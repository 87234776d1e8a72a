package account

import (
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tendant/pluser/pkg/chain"
	pluserrors "github.com/tendant/pluser/pkg/errors"
	"github.com/tendant/pluser/pkg/typeddata"
)

// Threshold is the number of owner signatures an account requires.
const Threshold = 1

// Guard inspects every transaction before the account checks owner
// signatures, and again once the transaction is recorded. A non-nil error
// from either hook rejects the transaction.
type Guard interface {
	CheckTransaction(tx Transaction, txHash common.Hash, signatures []byte, sender common.Address) error
	CheckAfterExecution(txHash common.Hash, success bool) error
}

// Account is a minimal multi-owner wallet: an owner set with threshold
// one, an optional transaction guard and a set of modules allowed to swap
// owners.
//
// Readers must be called inside chain.Execute or chain.View.
type Account struct {
	address     common.Address
	domain      typeddata.Domain
	verifier    typeddata.Verifier
	owners      []common.Address
	guardAddr   common.Address
	guard       Guard
	modules     map[common.Address]bool
	nonce       uint64
	initialized bool
}

// New creates an uninitialized account at address. A nil verifier means
// plain ECDSA recovery.
func New(address common.Address, chainID *big.Int, verifier typeddata.Verifier) *Account {
	if verifier == nil {
		verifier = typeddata.NewECDSAVerifier()
	}
	return &Account{
		address: address,
		domain: typeddata.Domain{
			ChainID:           new(big.Int).Set(chainID),
			VerifyingContract: address,
		},
		verifier: verifier,
		modules:  make(map[common.Address]bool),
	}
}

// Setup installs the sole owner, the guard and one module. It may run once.
func (a *Account) Setup(call *chain.Call, owner common.Address, guardAddr common.Address, guard Guard, module common.Address) error {
	if a.initialized {
		return pluserrors.New(pluserrors.ErrCodeAlreadyExists, "account already initialized")
	}
	if owner == (common.Address{}) {
		return pluserrors.InvalidInput("owner", "zero address")
	}

	if guard != nil {
		call.Emit(a.address, "ChangedGuard", map[string]string{"guard": guardAddr.Hex()})
	}
	if module != (common.Address{}) {
		call.Emit(a.address, "EnabledModule", map[string]string{"module": module.Hex()})
	}
	call.Emit(a.address, "SafeSetup", map[string]string{
		"initiator": call.Sender().Hex(),
		"owners":    owner.Hex(),
		"threshold": fmt.Sprint(Threshold),
	})

	call.Defer(func() {
		a.owners = []common.Address{owner}
		a.guardAddr = guardAddr
		a.guard = guard
		if module != (common.Address{}) {
			a.modules[module] = true
		}
		a.initialized = true
	})
	return nil
}

// TransactionHash is the digest owners sign to approve tx at nonce.
func (a *Account) TransactionHash(tx Transaction, nonce uint64) (common.Hash, error) {
	return typeddata.Hash(a.domain, safeTx{tx: tx, nonce: nonce})
}

// ExecTransaction approves tx at the current nonce. The guard runs first,
// then the first signature must come from an owner. Execution itself is
// recorded, not performed.
func (a *Account) ExecTransaction(call *chain.Call, tx Transaction, signatures []byte) (common.Hash, error) {
	if !a.initialized {
		return common.Hash{}, pluserrors.NotFound("account", a.address.Hex())
	}

	txHash, err := a.TransactionHash(tx, a.nonce)
	if err != nil {
		return common.Hash{}, pluserrors.InternalWrap(err, "failed to hash transaction")
	}

	if a.guard != nil {
		if err := a.guard.CheckTransaction(tx, txHash, signatures, call.Sender()); err != nil {
			return common.Hash{}, err
		}
	}

	if len(signatures) < Threshold*typeddata.SignatureLength {
		return common.Hash{}, pluserrors.New(pluserrors.ErrCodeNotEnoughSignatures, "not enough signatures")
	}
	signer, err := a.verifier.Recover(txHash, signatures[:typeddata.SignatureLength])
	if err != nil || !a.IsOwner(signer) {
		return common.Hash{}, pluserrors.InvalidSignature("owner").WithDetail("recovered", signer.Hex())
	}

	call.Emit(a.address, "ExecutionSuccess", map[string]string{
		"txHash":    txHash.Hex(),
		"to":        tx.To.Hex(),
		"operation": tx.Operation.String(),
		"nonce":     fmt.Sprint(a.nonce),
	})
	call.Defer(func() {
		a.nonce++
		slog.Info("Transaction executed", "account", a.address.Hex(), "txHash", txHash.Hex(), "nonce", a.nonce)
	})

	if a.guard != nil {
		if err := a.guard.CheckAfterExecution(txHash, true); err != nil {
			return common.Hash{}, err
		}
	}
	return txHash, nil
}

// ReplaceOwner swaps oldOwner for newOwner on behalf of an enabled module.
func (a *Account) ReplaceOwner(call *chain.Call, module, oldOwner, newOwner common.Address) error {
	if !a.modules[module] {
		return pluserrors.PermissionDenied("method can only be called from an enabled module").
			WithDetail("module", module.Hex())
	}
	if newOwner == (common.Address{}) {
		return pluserrors.InvalidInput("owner", "zero address")
	}
	if a.IsOwner(newOwner) {
		return pluserrors.New(pluserrors.ErrCodeKeyAlreadyOwner, "address is already an owner").
			WithDetail("owner", newOwner.Hex())
	}
	idx := a.ownerIndex(oldOwner)
	if idx < 0 {
		return pluserrors.InvalidInput("owner", oldOwner.Hex()+" is not an owner")
	}

	call.Emit(a.address, "RemovedOwner", map[string]string{"owner": oldOwner.Hex()})
	call.Emit(a.address, "AddedOwner", map[string]string{"owner": newOwner.Hex()})
	call.Defer(func() {
		a.owners[idx] = newOwner
	})
	return nil
}

func (a *Account) ownerIndex(addr common.Address) int {
	for i, o := range a.owners {
		if o == addr {
			return i
		}
	}
	return -1
}

func (a *Account) Address() common.Address {
	return a.address
}

func (a *Account) Owners() []common.Address {
	return append([]common.Address(nil), a.owners...)
}

func (a *Account) IsOwner(addr common.Address) bool {
	return addr != (common.Address{}) && a.ownerIndex(addr) >= 0
}

// Owner returns the sole owner, or the zero address before setup.
func (a *Account) Owner() common.Address {
	if len(a.owners) == 0 {
		return common.Address{}
	}
	return a.owners[0]
}

func (a *Account) GetGuard() common.Address {
	return a.guardAddr
}

func (a *Account) IsModuleEnabled(module common.Address) bool {
	return a.modules[module]
}

func (a *Account) Modules() []common.Address {
	out := make([]common.Address, 0, len(a.modules))
	for m := range a.modules {
		out = append(out, m)
	}
	return out
}

func (a *Account) Nonce() uint64 {
	return a.nonce
}

func (a *Account) Initialized() bool {
	return a.initialized
}

func (a *Account) String() string {
	owners := make([]string, len(a.owners))
	for i, o := range a.owners {
		owners[i] = o.Hex()
	}
	return fmt.Sprintf("Account(%s owners=[%s] nonce=%d)", a.address.Hex(), strings.Join(owners, ","), a.nonce)
}
