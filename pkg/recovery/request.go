package recovery

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tendant/pluser/pkg/chain"
	pluserrors "github.com/tendant/pluser/pkg/errors"
	"github.com/tendant/pluser/pkg/typeddata"
)

// CreateRequest opens a timelocked request to make newKey the account's
// owner. The caller must be the auth key and sig must be the two-factor
// verifier's signature over CreateRequest{newKey, requestNonce}.
func (m *Manager) CreateRequest(call *chain.Call, newKey common.Address, sig []byte) error {
	if call.Sender() != m.authKey {
		return pluserrors.PermissionDenied("permission denied").WithDetail("sender", call.Sender().Hex())
	}
	if m.request.Pending() {
		return pluserrors.New(pluserrors.ErrCodeRequestAlreadyExists, "request already exists").
			WithDetail("key", m.request.Key.Hex())
	}
	if newKey == (common.Address{}) {
		return pluserrors.InvalidInput("key", "zero address")
	}

	payload := typeddata.CreateRequest{Key: newKey, Nonce: m.requestNonce}
	if err := typeddata.VerifyTyped(m.verifier, m.domain, payload, sig, m.twoFactorVerifier, "twoFactorVerifier"); err != nil {
		return err
	}

	if m.wallet.IsOwner(newKey) {
		return pluserrors.New(pluserrors.ErrCodeKeyAlreadyOwner, "key is already an owner").
			WithDetail("key", newKey.Hex())
	}

	request := Request{Key: newKey, UnlockTime: call.Timestamp() + seconds(RequestTimeout)}
	nonce := m.requestNonce

	call.Emit(m.address, "RequestCreated", map[string]string{
		"key":        request.Key.Hex(),
		"unlockTime": fmt.Sprint(request.UnlockTime),
		"nonce":      fmt.Sprint(nonce),
	})
	call.Defer(func() {
		m.request = request
		m.requestNonce = nonce + 1
		slog.Info("Recovery request created", "manager", m.address.Hex(), "key", request.Key.Hex(), "unlockTime", request.UnlockTime)
	})
	return nil
}

// CancelRequest withdraws the pending request. The caller must be the auth
// key and sig must be the two-factor verifier's signature over the exact
// pending (key, unlockTime) at the current requestNonce.
func (m *Manager) CancelRequest(call *chain.Call, sig []byte) error {
	if call.Sender() != m.authKey {
		return pluserrors.PermissionDenied("permission denied").WithDetail("sender", call.Sender().Hex())
	}
	if !m.request.Pending() {
		return pluserrors.New(pluserrors.ErrCodeRequestNotExists, "request not exists")
	}

	request := m.request
	nonce := m.requestNonce
	payload := typeddata.CancelRequest{Key: request.Key, UnlockTime: request.UnlockTime, Nonce: nonce}
	if err := typeddata.VerifyTyped(m.verifier, m.domain, payload, sig, m.twoFactorVerifier, "twoFactorVerifier"); err != nil {
		return err
	}

	call.Emit(m.address, "RequestCancelled", map[string]string{
		"key":        request.Key.Hex(),
		"unlockTime": fmt.Sprint(request.UnlockTime),
		"nonce":      fmt.Sprint(nonce),
	})
	call.Defer(func() {
		m.request = Request{}
		m.requestNonce = nonce + 1
		slog.Info("Recovery request cancelled", "manager", m.address.Hex(), "key", request.Key.Hex())
	})
	return nil
}

// Recovery executes an unlocked request: the account's owner becomes the
// requested key and the request is cleared. Anyone may call it. The
// request nonce is left unchanged.
func (m *Manager) Recovery(call *chain.Call) error {
	if !m.request.Pending() {
		return pluserrors.New(pluserrors.ErrCodeRequestNotExists, "request not exists")
	}
	request := m.request
	if call.Timestamp() < request.UnlockTime {
		return pluserrors.New(pluserrors.ErrCodeRequestNotUnlocked, "request not unlocked").
			WithDetail("unlockTime", request.UnlockTime).
			WithDetail("now", call.Timestamp())
	}

	oldKey := m.wallet.Owner()
	if err := m.wallet.ReplaceOwner(call, m.address, oldKey, request.Key); err != nil {
		return err
	}

	call.Emit(m.address, "RecoveryExecuted", map[string]string{
		"oldKey": oldKey.Hex(),
		"newKey": request.Key.Hex(),
	})
	call.Defer(func() {
		m.request = Request{}
		slog.Info("Recovery executed", "manager", m.address.Hex(), "oldKey", oldKey.Hex(), "newKey", request.Key.Hex())
	})
	return nil
}
