// Package guard implements the two-factor transaction guard installed on
// every account the factory creates.
//
// A guarded transaction carries a 130-byte bundle: the owner's signature
// over the account transaction hash followed by the two-factor verifier's
// signature over the same hash. Delegate calls are refused outright.
package guard
