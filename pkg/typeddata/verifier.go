package typeddata

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	pluserrors "github.com/tendant/pluser/pkg/errors"
)

// SignatureLength is the size of one (r, s, v) signature.
const SignatureLength = 65

// Verifier recovers the address that produced a signature over a digest.
type Verifier interface {
	Recover(digest common.Hash, signature []byte) (common.Address, error)
}

// ECDSAVerifier recovers secp256k1 signatures.
type ECDSAVerifier struct{}

// NewECDSAVerifier returns the default secp256k1 verifier.
func NewECDSAVerifier() ECDSAVerifier {
	return ECDSAVerifier{}
}

// Recover accepts v in {0, 1, 27, 28} and rejects high-s signatures.
func (ECDSAVerifier) Recover(digest common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length: %d", len(signature))
	}

	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	if sig[64] > 1 {
		return common.Address{}, fmt.Errorf("invalid signature recovery id: %d", signature[64])
	}

	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(sig[64], r, s, true) {
		return common.Address{}, fmt.Errorf("invalid signature values")
	}

	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify fails with a signature-invalid error unless signature over digest
// recovers to expected. label names the expected signer in the error.
func Verify(v Verifier, digest common.Hash, signature []byte, expected common.Address, label string) error {
	signer, err := v.Recover(digest, signature)
	if err != nil {
		return pluserrors.Wrap(err, pluserrors.ErrCodeSignatureInvalid, fmt.Sprintf("invalid signature (%s)", label))
	}
	if signer != expected || expected == (common.Address{}) {
		return pluserrors.InvalidSignature(label).
			WithDetail("expected", expected.Hex()).
			WithDetail("recovered", signer.Hex())
	}
	return nil
}

// VerifyTyped hashes payload under domain and verifies it against expected.
func VerifyTyped(v Verifier, domain Domain, payload Payload, signature []byte, expected common.Address, label string) error {
	digest, err := Hash(domain, payload)
	if err != nil {
		return pluserrors.Wrap(err, pluserrors.ErrCodeSignatureInvalid, fmt.Sprintf("invalid signature (%s)", label))
	}
	return Verify(v, digest, signature, expected, label)
}

// Sign signs digest with key, producing v in {27, 28}.
func Sign(key *ecdsa.PrivateKey, digest common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign digest: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// SignTyped hashes payload under domain and signs it with key.
func SignTyped(key *ecdsa.PrivateKey, domain Domain, payload Payload) ([]byte, error) {
	digest, err := Hash(domain, payload)
	if err != nil {
		return nil, err
	}
	return Sign(key, digest)
}

// Concat joins signatures without prefix or separator.
func Concat(signatures ...[]byte) []byte {
	out := make([]byte, 0, len(signatures)*SignatureLength)
	for _, sig := range signatures {
		out = append(out, sig...)
	}
	return out
}
