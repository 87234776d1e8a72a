// Package errors provides structured error handling with error codes for pluser.
//
// Every protocol failure is a *Error carrying an ErrorCode. Codes are grouped
// into failure classes so callers can tell a cryptographic failure from a
// protocol-state failure without matching individual codes:
//
//   - ClassSignatureInvalid: a signature did not recover to the expected
//     signer. Stale nonces, wrong keys, corrupted bytes and expired
//     authorizations all land here.
//   - ClassAuthorizationDenied: the caller is not the permitted principal
//     (ErrCodeNotDeployer, ErrCodePermissionDenied).
//   - ClassStateConflict: the operation is invalid for the current state
//     (ErrCodeRequestAlreadyExists, ErrCodeRequestNotExists,
//     ErrCodeRequestNotUnlocked, ErrCodeKeyAlreadyOwner).
//   - ClassPolicyViolation: structurally disallowed transactions
//     (ErrCodeNotEnoughSignatures, ErrCodeOnlyCallsAllowed).
//
// # Basic Usage
//
//	err := errors.New(errors.ErrCodeRequestNotExists, "request not exists")
//
//	if errors.IsCode(err, errors.ErrCodeRequestNotExists) {
//		// handle
//	}
//
//	if errors.GetClass(err) == errors.ClassSignatureInvalid {
//		// ask the client to re-sign
//	}
//
// # HTTP Status Code Mapping
//
//	var structuredErr *errors.Error
//	if errors.As(err, &structuredErr) {
//		http.Error(w, structuredErr.Message, structuredErr.HTTPStatusCode())
//	}
//
// Error code to HTTP status mapping:
//   - signature errors, ErrCodeInvalidInput → 400 Bad Request
//   - authorization errors → 403 Forbidden
//   - state conflicts → 409 Conflict
//   - policy violations → 422 Unprocessable Entity
//   - ErrCodeInternal → 500 Internal Server Error
package errors
