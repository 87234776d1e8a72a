package recovery

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tendant/pluser/pkg/chain"
	pluserrors "github.com/tendant/pluser/pkg/errors"
	"github.com/tendant/pluser/pkg/typeddata"
)

// Initialize opens the first session for the account's initial device key.
// It runs once, in the deployment call.
func (m *Manager) Initialize(call *chain.Call, deviceKey common.Address) error {
	if m.initialized {
		return pluserrors.New(pluserrors.ErrCodeAlreadyExists, "recovery manager already initialized")
	}
	if deviceKey == (common.Address{}) {
		return pluserrors.InvalidInput("deviceKey", "zero address")
	}

	now := call.Timestamp()
	timeout := now + seconds(SessionLifetime)
	call.Emit(m.address, "SessionOpened", map[string]string{
		"key":     deviceKey.Hex(),
		"timeout": fmt.Sprint(timeout),
	})
	call.Defer(func() {
		m.sessions[deviceKey] = timeout
		m.nonceIssuedAt = now
		m.initialized = true
	})
	return nil
}

// AddDevice replaces the account's owner with newKey immediately. The
// caller must be the current owner, and sig must be the auth key's
// signature over AddDevice{newKey, nonce}. The current nonce is accepted
// until SignatureLifetime after it was issued. A session is opened for
// newKey.
func (m *Manager) AddDevice(call *chain.Call, sig []byte, newKey common.Address) error {
	oldKey := m.wallet.Owner()
	if call.Sender() != oldKey || oldKey == (common.Address{}) {
		return pluserrors.PermissionDenied("permission denied").WithDetail("sender", call.Sender().Hex())
	}
	if newKey == (common.Address{}) {
		return pluserrors.InvalidInput("newDeviceKey", "zero address")
	}

	now := call.Timestamp()
	if !m.initialized || now > m.SignatureDeadline() {
		return pluserrors.New(pluserrors.ErrCodeSignatureExpired, "signature expired").
			WithDetail("nonce", m.nonce).
			WithDetail("deadline", m.SignatureDeadline()).
			WithDetail("now", now)
	}

	nonce := m.nonce
	payload := typeddata.AddDevice{NewDeviceKey: newKey, Nonce: nonce}
	if err := typeddata.VerifyTyped(m.verifier, m.domain, payload, sig, m.authKey, "authKey"); err != nil {
		return err
	}

	if m.wallet.IsOwner(newKey) {
		return pluserrors.New(pluserrors.ErrCodeKeyAlreadyOwner, "key is already an owner").
			WithDetail("key", newKey.Hex())
	}
	if err := m.wallet.ReplaceOwner(call, m.address, oldKey, newKey); err != nil {
		return err
	}

	timeout := now + seconds(SessionLifetime)
	call.Emit(m.address, "DeviceAdded", map[string]string{
		"oldKey":  oldKey.Hex(),
		"newKey":  newKey.Hex(),
		"nonce":   fmt.Sprint(nonce),
		"timeout": fmt.Sprint(timeout),
	})
	call.Defer(func() {
		m.nonce = nonce + 1
		m.nonceIssuedAt = now
		m.sessions[newKey] = timeout
		slog.Info("Device added", "manager", m.address.Hex(), "oldKey", oldKey.Hex(), "newKey", newKey.Hex())
	})
	return nil
}
