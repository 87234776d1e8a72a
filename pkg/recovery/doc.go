// Package recovery implements the RecoveryManager, the module that lets an
// account's owner key be replaced after the device holding it is lost.
//
// # Request channel
//
// The manager is a two-state machine:
//
//	Idle ──CreateRequest──▶ RequestPending
//	RequestPending ──CancelRequest──▶ Idle
//	RequestPending ──Recovery (now ≥ unlockTime)──▶ Idle
//
// CreateRequest and CancelRequest are sent by the account's auth key and
// carry a typed-data signature from the two-factor verifier. The signed
// payload includes the current requestNonce, which both operations
// increment, so every signature is single-use and a stale one simply fails
// to verify. Recovery can be sent by anyone once the request has been
// pending for RequestTimeout; it swaps the account owner and leaves the
// nonce alone.
//
// # Session channel
//
// AddDevice is a second, independently nonced path. The current device key
// installs a replacement immediately, authorized by a fresh auth key
// signature over AddDevice{newDeviceKey, nonce}. A nonce is only good for
// SignatureLifetime after it was issued, at initialization or by the
// previous AddDevice. Each device key that joins this way, as well as the
// initial one, gets a session ending SessionLifetime later.
//
// # Errors
//
// Every failure is a pkg/errors value. Wrong callers get PERMISSION_DENIED,
// state mismatches REQUEST_ALREADY_EXISTS, REQUEST_NOT_EXISTS or
// REQUEST_NOT_UNLOCKED, and any signature that does not recover to the
// expected signer SIGNATURE_INVALID. Failed calls change nothing.
//
// Readers such as Request and RequestNonce read contract state directly and
// must run inside chain.Execute or chain.View.
package recovery
