// Package chain simulates the execution substrate the protocol contracts
// run on: a single writer, totally ordered calls, block timestamps that
// never decrease, and all-or-nothing call semantics.
//
// Contracts are plain Go values. An operation receives a *Call, checks its
// preconditions, emits events and stages its state changes with
// Call.Defer:
//
//	_, err := ch.Execute(ctx, sender, func(call *chain.Call) error {
//		if call.Sender() != m.authKey {
//			return pluserrors.PermissionDenied("permission denied")
//		}
//		call.Emit(m.address, "RequestCreated", map[string]string{"key": key.Hex()})
//		call.Defer(func() { m.request = Request{Key: key} })
//		return nil
//	})
//
// A failed operation leaves no trace. A successful one is first appended to
// the event log and then applied, so the log never misses a state change.
package chain
