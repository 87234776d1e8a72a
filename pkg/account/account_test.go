package account

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/pluser/pkg/chain"
	pluserrors "github.com/tendant/pluser/pkg/errors"
	"github.com/tendant/pluser/pkg/eventlog"
	"github.com/tendant/pluser/pkg/typeddata"
)

var (
	accountAddr = common.HexToAddress("0x00000000000000000000000000000000000acc01")
	guardAddr   = common.HexToAddress("0x0000000000000000000000000000000000009a4d")
	moduleAddr  = common.HexToAddress("0x000000000000000000000000000000000000b0d1")
	deployer    = common.HexToAddress("0x000000000000000000000000000000000000de91")
)

type stubGuard struct {
	err      error
	afterErr error
	calls    int
	executed []common.Hash
}

func (g *stubGuard) CheckTransaction(tx Transaction, txHash common.Hash, signatures []byte, sender common.Address) error {
	g.calls++
	return g.err
}

func (g *stubGuard) CheckAfterExecution(txHash common.Hash, success bool) error {
	if success {
		g.executed = append(g.executed, txHash)
	}
	return g.afterErr
}

func newKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func setupAccount(t *testing.T, owner common.Address, g Guard) (*chain.Chain, *Account) {
	t.Helper()
	ch := chain.New(chain.Config{Clock: chain.NewManualClock(1_700_000_000)})
	acc := New(accountAddr, ch.ChainID(), typeddata.NewECDSAVerifier())
	_, err := ch.Execute(context.Background(), deployer, func(call *chain.Call) error {
		return acc.Setup(call, owner, guardAddr, g, moduleAddr)
	})
	require.NoError(t, err)
	return ch, acc
}

func signTx(t *testing.T, acc *Account, key *ecdsa.PrivateKey, tx Transaction) []byte {
	t.Helper()
	hash, err := acc.TransactionHash(tx, acc.Nonce())
	require.NoError(t, err)
	sig, err := typeddata.Sign(key, hash)
	require.NoError(t, err)
	return sig
}

func TestSetup(t *testing.T) {
	_, owner := newKey(t)
	ch, acc := setupAccount(t, owner, &stubGuard{})
	ctx := context.Background()

	assert.Equal(t, []common.Address{owner}, acc.Owners())
	assert.Equal(t, owner, acc.Owner())
	assert.Equal(t, guardAddr, acc.GetGuard())
	assert.True(t, acc.IsModuleEnabled(moduleAddr))
	assert.True(t, acc.Initialized())

	events, err := ch.Events().List(ctx, eventlog.Filter{})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "ChangedGuard", events[0].Name)
	assert.Equal(t, guardAddr.Hex(), events[0].Args["guard"])
	assert.Equal(t, "EnabledModule", events[1].Name)
	assert.Equal(t, "SafeSetup", events[2].Name)

	t.Run("OnlyOnce", func(t *testing.T) {
		_, err := ch.Execute(ctx, deployer, func(call *chain.Call) error {
			return acc.Setup(call, owner, guardAddr, nil, moduleAddr)
		})
		assert.True(t, pluserrors.IsCode(err, pluserrors.ErrCodeAlreadyExists))
	})
}

func TestExecTransaction(t *testing.T) {
	ownerKey, owner := newKey(t)
	strangerKey, _ := newKey(t)
	ctx := context.Background()
	tx := Transaction{To: common.HexToAddress("0x1234"), Value: big.NewInt(1), Data: []byte{0xde, 0xad}, Operation: Call}

	t.Run("OwnerSignature", func(t *testing.T) {
		g := &stubGuard{}
		ch, acc := setupAccount(t, owner, g)
		sig := signTx(t, acc, ownerKey, tx)

		var txHash common.Hash
		_, err := ch.Execute(ctx, owner, func(call *chain.Call) error {
			var err error
			txHash, err = acc.ExecTransaction(call, tx, sig)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, 1, g.calls)
		assert.Equal(t, []common.Hash{txHash}, g.executed)
		assert.Equal(t, uint64(1), acc.Nonce())

		events, err := ch.Events().List(ctx, eventlog.Filter{Name: "ExecutionSuccess"})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, txHash.Hex(), events[0].Args["txHash"])

		// the same signature is bound to the consumed nonce
		_, err = ch.Execute(ctx, owner, func(call *chain.Call) error {
			_, err := acc.ExecTransaction(call, tx, sig)
			return err
		})
		assert.True(t, pluserrors.IsCode(err, pluserrors.ErrCodeSignatureInvalid))
	})

	t.Run("StrangerSignature", func(t *testing.T) {
		ch, acc := setupAccount(t, owner, nil)
		sig := signTx(t, acc, strangerKey, tx)

		_, err := ch.Execute(ctx, owner, func(call *chain.Call) error {
			_, err := acc.ExecTransaction(call, tx, sig)
			return err
		})
		assert.True(t, pluserrors.IsCode(err, pluserrors.ErrCodeSignatureInvalid))
		assert.Equal(t, uint64(0), acc.Nonce())
	})

	t.Run("TooShort", func(t *testing.T) {
		ch, acc := setupAccount(t, owner, nil)
		_, err := ch.Execute(ctx, owner, func(call *chain.Call) error {
			_, err := acc.ExecTransaction(call, tx, make([]byte, 10))
			return err
		})
		assert.True(t, pluserrors.IsCode(err, pluserrors.ErrCodeNotEnoughSignatures))
	})

	t.Run("GuardRejects", func(t *testing.T) {
		g := &stubGuard{err: pluserrors.New(pluserrors.ErrCodeOnlyCallsAllowed, "only calls allowed")}
		ch, acc := setupAccount(t, owner, g)
		sig := signTx(t, acc, ownerKey, tx)

		_, err := ch.Execute(ctx, owner, func(call *chain.Call) error {
			_, err := acc.ExecTransaction(call, tx, sig)
			return err
		})
		assert.True(t, pluserrors.IsCode(err, pluserrors.ErrCodeOnlyCallsAllowed))
		assert.Equal(t, uint64(0), acc.Nonce())
		assert.Empty(t, g.executed)
	})

	t.Run("GuardRejectsAfterExecution", func(t *testing.T) {
		g := &stubGuard{afterErr: pluserrors.New(pluserrors.ErrCodePermissionDenied, "post check failed")}
		ch, acc := setupAccount(t, owner, g)
		sig := signTx(t, acc, ownerKey, tx)

		_, err := ch.Execute(ctx, owner, func(call *chain.Call) error {
			_, err := acc.ExecTransaction(call, tx, sig)
			return err
		})
		assert.True(t, pluserrors.IsCode(err, pluserrors.ErrCodePermissionDenied))
		assert.Len(t, g.executed, 1)
		assert.Equal(t, uint64(0), acc.Nonce())

		events, err := ch.Events().List(ctx, eventlog.Filter{Name: "ExecutionSuccess"})
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("NilVerifierDefaultsToECDSA", func(t *testing.T) {
		ch := chain.New(chain.Config{Clock: chain.NewManualClock(1_700_000_000)})
		acc := New(accountAddr, ch.ChainID(), nil)
		_, err := ch.Execute(ctx, deployer, func(call *chain.Call) error {
			return acc.Setup(call, owner, common.Address{}, nil, moduleAddr)
		})
		require.NoError(t, err)
		sig := signTx(t, acc, ownerKey, tx)

		_, err = ch.Execute(ctx, owner, func(call *chain.Call) error {
			_, err := acc.ExecTransaction(call, tx, sig)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, uint64(1), acc.Nonce())
	})

	t.Run("Uninitialized", func(t *testing.T) {
		ch := chain.New(chain.Config{})
		acc := New(accountAddr, ch.ChainID(), typeddata.NewECDSAVerifier())
		_, err := ch.Execute(ctx, owner, func(call *chain.Call) error {
			_, err := acc.ExecTransaction(call, tx, nil)
			return err
		})
		assert.True(t, pluserrors.IsCode(err, pluserrors.ErrCodeNotFound))
	})
}

func TestTransactionHash(t *testing.T) {
	_, owner := newKey(t)
	_, acc := setupAccount(t, owner, nil)
	tx := Transaction{To: common.HexToAddress("0x1234"), Operation: Call}

	h0, err := acc.TransactionHash(tx, 0)
	require.NoError(t, err)
	h1, err := acc.TransactionHash(tx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, h0, h1)

	delegate := tx
	delegate.Operation = DelegateCall
	hd, err := acc.TransactionHash(delegate, 0)
	require.NoError(t, err)
	assert.NotEqual(t, h0, hd)

	other := New(common.HexToAddress("0xacc2"), big.NewInt(31337), typeddata.NewECDSAVerifier())
	ho, err := other.TransactionHash(tx, 0)
	require.NoError(t, err)
	assert.NotEqual(t, h0, ho)
}

func TestReplaceOwner(t *testing.T) {
	_, owner := newKey(t)
	_, next := newKey(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		module   common.Address
		oldOwner common.Address
		newOwner common.Address
		code     pluserrors.ErrorCode
	}{
		{"NotModule", deployer, owner, next, pluserrors.ErrCodePermissionDenied},
		{"ZeroNewOwner", moduleAddr, owner, common.Address{}, pluserrors.ErrCodeInvalidInput},
		{"AlreadyOwner", moduleAddr, owner, owner, pluserrors.ErrCodeKeyAlreadyOwner},
		{"OldNotOwner", moduleAddr, next, deployer, pluserrors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, acc := setupAccount(t, owner, nil)
			_, err := ch.Execute(ctx, tt.module, func(call *chain.Call) error {
				return acc.ReplaceOwner(call, tt.module, tt.oldOwner, tt.newOwner)
			})
			assert.True(t, pluserrors.IsCode(err, tt.code), "got %v", err)
			assert.Equal(t, []common.Address{owner}, acc.Owners())
		})
	}

	t.Run("Success", func(t *testing.T) {
		ch, acc := setupAccount(t, owner, nil)
		_, err := ch.Execute(ctx, moduleAddr, func(call *chain.Call) error {
			return acc.ReplaceOwner(call, moduleAddr, owner, next)
		})
		require.NoError(t, err)
		assert.True(t, acc.IsOwner(next))
		assert.False(t, acc.IsOwner(owner))

		events, err := ch.Events().List(ctx, eventlog.Filter{AfterSequence: 3})
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "RemovedOwner", events[0].Name)
		assert.Equal(t, "AddedOwner", events[1].Name)
	})
}
