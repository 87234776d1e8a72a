package wellknown

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/tendant/pluser/pkg/account"
	"github.com/tendant/pluser/pkg/factory"
	"github.com/tendant/pluser/pkg/recovery"
	"github.com/tendant/pluser/pkg/typeddata"
)

// ProtocolMetadata is what a wallet needs to build signatures for this
// deployment without any out-of-band setup.
type ProtocolMetadata struct {
	// REQUIRED: Chain id bound into every typed-data domain
	ChainID *hexutil.Big `json:"chain_id"`

	// REQUIRED: The factory that creates guarded accounts
	Factory common.Address `json:"factory"`

	// REQUIRED: Second signer on every guarded transaction and recovery request
	TwoFactorVerifier common.Address `json:"two_factor_verifier"`

	// REQUIRED: Typed-data domains, keyed by contract kind
	Domains map[string]DomainMetadata `json:"domains"`

	// REQUIRED: Signature scheme accepted by every operation
	SignatureScheme string `json:"signature_scheme"`

	// Number of owner signatures an account transaction needs
	AccountThreshold int `json:"account_threshold"`

	// Timelock on recovery requests, in seconds
	RequestTimeoutSeconds uint64 `json:"request_timeout_seconds"`

	// Lifetime of a device session, in seconds
	SessionLifetimeSeconds uint64 `json:"session_lifetime_seconds"`

	// How long a session nonce stays signable after it is issued, in seconds
	SignatureLifetimeSeconds uint64 `json:"signature_lifetime_seconds"`

	// OPTIONAL: Absolute URLs of the API mount points
	Endpoints map[string]string `json:"endpoints,omitempty"`

	// Methods supported for presenting the sender token
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
}

// DomainMetadata describes one EIP-712 domain. An empty VerifyingContract
// means the domain is per-instance and uses that contract's own address.
type DomainMetadata struct {
	Name              string          `json:"name,omitempty"`
	Version           string          `json:"version,omitempty"`
	VerifyingContract *common.Address `json:"verifying_contract,omitempty"`
	PrimaryTypes      []string        `json:"primary_types"`
}

// Config holds configuration for well-known endpoints
type Config struct {
	// Factory whose deployment is described
	Factory *factory.Factory

	// Base URL for constructing endpoint URLs (e.g., "https://localhost:4000")
	BaseURL string

	// Endpoints maps a name to a path under BaseURL
	Endpoints map[string]string
}

// NewProtocolMetadata creates a new ProtocolMetadata instance
func NewProtocolMetadata(config Config) *ProtocolMetadata {
	f := config.Factory
	factoryAddr := f.Address()
	domain := f.Domain()

	var endpoints map[string]string
	if len(config.Endpoints) > 0 {
		endpoints = make(map[string]string, len(config.Endpoints))
		for name, path := range config.Endpoints {
			endpoints[name] = config.BaseURL + path
		}
	}

	return &ProtocolMetadata{
		ChainID:           (*hexutil.Big)(domain.ChainID),
		Factory:           factoryAddr,
		TwoFactorVerifier: f.TwoFactorVerifier(),
		Domains: map[string]DomainMetadata{
			factory.KindFactory: {
				Name:              domain.Name,
				Version:           domain.Version,
				VerifyingContract: &factoryAddr,
				PrimaryTypes:      []string{typeddata.CreateAccount{}.PrimaryType()},
			},
			factory.KindAccount: {
				PrimaryTypes: []string{"SafeTx"},
			},
			factory.KindRecoveryManager: {
				Name:         recovery.DomainName,
				Version:      recovery.DomainVersion,
				PrimaryTypes: []string{
					typeddata.CreateRequest{}.PrimaryType(),
					typeddata.CancelRequest{}.PrimaryType(),
					typeddata.AddDevice{}.PrimaryType(),
				},
			},
		},
		SignatureScheme:          "eip712-secp256k1",
		AccountThreshold:         account.Threshold,
		RequestTimeoutSeconds:    uint64(recovery.RequestTimeout.Seconds()),
		SessionLifetimeSeconds:   uint64(recovery.SessionLifetime.Seconds()),
		SignatureLifetimeSeconds: uint64(recovery.SignatureLifetime.Seconds()),
		Endpoints:                endpoints,
		BearerMethodsSupported:   []string{"header", "cookie"},
	}
}
