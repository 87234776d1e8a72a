package typeddata

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// CreateAccount authorizes the factory to mint an account for
// (AuthKey, DeviceKey). Signed by AuthKey.
type CreateAccount struct {
	AuthKey   common.Address
	DeviceKey common.Address
}

func (CreateAccount) PrimaryType() string { return "CreateAccount" }

func (CreateAccount) Fields() []apitypes.Type {
	return []apitypes.Type{
		{Name: "authKey", Type: "address"},
		{Name: "deviceKey", Type: "address"},
	}
}

func (p CreateAccount) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"authKey":   p.AuthKey.Hex(),
		"deviceKey": p.DeviceKey.Hex(),
	}
}

// CreateRequest opens a recovery request for Key. Signed by the
// two-factor verifier.
type CreateRequest struct {
	Key   common.Address
	Nonce uint64
}

func (CreateRequest) PrimaryType() string { return "CreateRequest" }

func (CreateRequest) Fields() []apitypes.Type {
	return []apitypes.Type{
		{Name: "key", Type: "address"},
		{Name: "nonce", Type: "uint256"},
	}
}

func (p CreateRequest) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"key":   p.Key.Hex(),
		"nonce": new(big.Int).SetUint64(p.Nonce),
	}
}

// CancelRequest withdraws the pending recovery request (Key, UnlockTime).
// Signed by the two-factor verifier.
type CancelRequest struct {
	Key        common.Address
	UnlockTime uint64
	Nonce      uint64
}

func (CancelRequest) PrimaryType() string { return "CancelRequest" }

func (CancelRequest) Fields() []apitypes.Type {
	return []apitypes.Type{
		{Name: "key", Type: "address"},
		{Name: "unlockTime", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
	}
}

func (p CancelRequest) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"key":        p.Key.Hex(),
		"unlockTime": new(big.Int).SetUint64(p.UnlockTime),
		"nonce":      new(big.Int).SetUint64(p.Nonce),
	}
}

// AddDevice authorizes an immediate device-key swap to NewDeviceKey.
// Signed by the account's auth key.
type AddDevice struct {
	NewDeviceKey common.Address
	Nonce        uint64
}

func (AddDevice) PrimaryType() string { return "AddDevice" }

func (AddDevice) Fields() []apitypes.Type {
	return []apitypes.Type{
		{Name: "newDeviceKey", Type: "address"},
		{Name: "nonce", Type: "uint256"},
	}
}

func (p AddDevice) Message() apitypes.TypedDataMessage {
	return apitypes.TypedDataMessage{
		"newDeviceKey": p.NewDeviceKey.Hex(),
		"nonce":        new(big.Int).SetUint64(p.Nonce),
	}
}
