// Package typeddata hashes and verifies EIP-712 typed-data signatures.
//
// Every authorization in pluser is a 65-byte (r, s, v) secp256k1 signature
// over a domain-separated digest. The domain binds the signature to a
// contract name, version, chain id and the verifying contract's address,
// so a payload signed for one recovery manager cannot be replayed against
// another.
//
// # Basic Usage
//
//	domain := typeddata.Domain{
//		Name:              "RecoveryManager",
//		Version:           "1",
//		ChainID:           big.NewInt(31337),
//		VerifyingContract: managerAddress,
//	}
//
//	sig, err := typeddata.SignTyped(verifierKey, domain, typeddata.CreateRequest{
//		Key:   newDeviceKey,
//		Nonce: 0,
//	})
//
//	err = typeddata.VerifyTyped(typeddata.NewECDSAVerifier(), domain,
//		typeddata.CreateRequest{Key: newDeviceKey, Nonce: 0}, sig, verifierAddress, "twoFactorVerifier")
//
// Verification failures are returned as pkg/errors values with code
// ErrCodeSignatureInvalid.
package typeddata
