package typeddata

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pluserrors "github.com/tendant/pluser/pkg/errors"
)

func newKey(t *testing.T) (*ecdsa.PrivateKey, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey)
}

func testDomain() Domain {
	return Domain{
		Name:              "PluserFactory",
		Version:           "1.0.0",
		ChainID:           big.NewInt(31337),
		VerifyingContract: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
	}
}

func TestHashMatchesManualEncoding(t *testing.T) {
	domain := testDomain()
	payload := CreateAccount{
		AuthKey:   common.HexToAddress("0x1111111111111111111111111111111111111111"),
		DeviceKey: common.HexToAddress("0x2222222222222222222222222222222222222222"),
	}

	domainTypeHash := crypto.Keccak256([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	separator := crypto.Keccak256(
		domainTypeHash,
		crypto.Keccak256([]byte(domain.Name)),
		crypto.Keccak256([]byte(domain.Version)),
		common.LeftPadBytes(domain.ChainID.Bytes(), 32),
		common.LeftPadBytes(domain.VerifyingContract.Bytes(), 32),
	)
	structHash := crypto.Keccak256(
		crypto.Keccak256([]byte("CreateAccount(address authKey,address deviceKey)")),
		common.LeftPadBytes(payload.AuthKey.Bytes(), 32),
		common.LeftPadBytes(payload.DeviceKey.Bytes(), 32),
	)
	expected := crypto.Keccak256Hash([]byte{0x19, 0x01}, separator, structHash)

	got, err := Hash(domain, payload)
	require.NoError(t, err)
	assert.Equal(t, expected, got)

	sep, err := Separator(domain)
	require.NoError(t, err)
	assert.Equal(t, common.BytesToHash(separator), sep)
}

func TestRecoveryPayloadEncoding(t *testing.T) {
	domain := testDomain()
	domain.Name = "RecoveryManager"
	domain.Version = "1"
	key := common.HexToAddress("0x3333333333333333333333333333333333333333")
	word := func(n int64) []byte { return common.LeftPadBytes(big.NewInt(n).Bytes(), 32) }

	tests := []struct {
		name     string
		payload  Payload
		typeSig  string
		encoding [][]byte
	}{
		{
			name:     "CreateRequest",
			payload:  CreateRequest{Key: key, Nonce: 7},
			typeSig:  "CreateRequest(address key,uint256 nonce)",
			encoding: [][]byte{common.LeftPadBytes(key.Bytes(), 32), word(7)},
		},
		{
			name:     "CancelRequest",
			payload:  CancelRequest{Key: key, UnlockTime: 1_700_259_200, Nonce: 8},
			typeSig:  "CancelRequest(address key,uint256 unlockTime,uint256 nonce)",
			encoding: [][]byte{common.LeftPadBytes(key.Bytes(), 32), word(1_700_259_200), word(8)},
		},
		{
			name:     "AddDevice",
			payload:  AddDevice{NewDeviceKey: key, Nonce: 2},
			typeSig:  "AddDevice(address newDeviceKey,uint256 nonce)",
			encoding: [][]byte{common.LeftPadBytes(key.Bytes(), 32), word(2)},
		},
	}

	sep, err := Separator(domain)
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := append([][]byte{crypto.Keccak256([]byte(tt.typeSig))}, tt.encoding...)
			structHash := crypto.Keccak256(parts...)
			expected := crypto.Keccak256Hash([]byte{0x19, 0x01}, sep.Bytes(), structHash)

			got, err := Hash(domain, tt.payload)
			require.NoError(t, err)
			assert.Equal(t, expected, got)
		})
	}
}

func TestHashWithoutNameAndVersion(t *testing.T) {
	domain := Domain{ChainID: big.NewInt(1), VerifyingContract: common.HexToAddress("0x01")}

	sep, err := Separator(domain)
	require.NoError(t, err)

	expected := crypto.Keccak256Hash(
		crypto.Keccak256([]byte("EIP712Domain(uint256 chainId,address verifyingContract)")),
		common.LeftPadBytes(big.NewInt(1).Bytes(), 32),
		common.LeftPadBytes(domain.VerifyingContract.Bytes(), 32),
	)
	assert.Equal(t, expected, sep)
}

func TestSignAndVerify(t *testing.T) {
	key, signer := newKey(t)
	_, other := newKey(t)
	verifier := NewECDSAVerifier()
	domain := testDomain()
	payload := CreateRequest{Key: other, Nonce: 3}

	sig, err := SignTyped(key, domain, payload)
	require.NoError(t, err)
	require.Len(t, sig, SignatureLength)
	assert.Contains(t, []byte{27, 28}, sig[64])

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, VerifyTyped(verifier, domain, payload, sig, signer, "signer"))
	})

	t.Run("RawRecoveryID", func(t *testing.T) {
		raw := append([]byte{}, sig...)
		raw[64] -= 27
		assert.NoError(t, VerifyTyped(verifier, domain, payload, raw, signer, "signer"))
	})

	t.Run("WrongSigner", func(t *testing.T) {
		err := VerifyTyped(verifier, domain, payload, sig, other, "signer")
		assert.True(t, pluserrors.IsCode(err, pluserrors.ErrCodeSignatureInvalid))
	})

	t.Run("StaleNonce", func(t *testing.T) {
		err := VerifyTyped(verifier, domain, CreateRequest{Key: other, Nonce: 4}, sig, signer, "signer")
		assert.True(t, pluserrors.IsCode(err, pluserrors.ErrCodeSignatureInvalid))
	})

	t.Run("OtherContract", func(t *testing.T) {
		d := domain
		d.VerifyingContract = other
		err := VerifyTyped(verifier, d, payload, sig, signer, "signer")
		assert.True(t, pluserrors.IsCode(err, pluserrors.ErrCodeSignatureInvalid))
	})

	t.Run("ZeroExpectedSigner", func(t *testing.T) {
		err := VerifyTyped(verifier, domain, payload, sig, common.Address{}, "signer")
		assert.True(t, pluserrors.IsCode(err, pluserrors.ErrCodeSignatureInvalid))
	})
}

func TestRecoverRejectsMalformedSignatures(t *testing.T) {
	key, _ := newKey(t)
	digest := crypto.Keccak256Hash([]byte("digest"))
	sig, err := Sign(key, digest)
	require.NoError(t, err)

	verifier := NewECDSAVerifier()

	_, err = verifier.Recover(digest, sig[:64])
	assert.Error(t, err)

	badV := append([]byte{}, sig...)
	badV[64] = 31
	_, err = verifier.Recover(digest, badV)
	assert.Error(t, err)

	// s' = n - s recovers the same key but is rejected as malleable
	highS := append([]byte{}, sig...)
	s := new(big.Int).SetBytes(sig[32:64])
	copy(highS[32:64], common.LeftPadBytes(new(big.Int).Sub(crypto.S256().Params().N, s).Bytes(), 32))
	highS[64] ^= 1
	_, err = verifier.Recover(digest, highS)
	assert.Error(t, err)
}

func TestConcat(t *testing.T) {
	a := make([]byte, SignatureLength)
	b := make([]byte, SignatureLength)
	b[0] = 1
	bundle := Concat(a, b)
	assert.Len(t, bundle, 2*SignatureLength)
	assert.Equal(t, byte(1), bundle[SignatureLength])
}
