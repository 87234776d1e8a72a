package typeddata

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Domain separates signatures by contract name, version, chain and
// verifying contract. Name and Version may be empty; they are then left
// out of the EIP712Domain type, which is how account transaction hashes
// are domain-separated.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// Payload is a structured message that can be hashed under a Domain.
type Payload interface {
	// PrimaryType is the EIP-712 struct name, e.g. "CreateRequest".
	PrimaryType() string
	// Fields lists the struct members in declaration order.
	Fields() []apitypes.Type
	// Message holds the member values keyed by field name.
	Message() apitypes.TypedDataMessage
}

func (d Domain) types() []apitypes.Type {
	fields := make([]apitypes.Type, 0, 4)
	if d.Name != "" {
		fields = append(fields, apitypes.Type{Name: "name", Type: "string"})
	}
	if d.Version != "" {
		fields = append(fields, apitypes.Type{Name: "version", Type: "string"})
	}
	fields = append(fields,
		apitypes.Type{Name: "chainId", Type: "uint256"},
		apitypes.Type{Name: "verifyingContract", Type: "address"},
	)
	return fields
}

func (d Domain) apiDomain() apitypes.TypedDataDomain {
	chainID := d.ChainID
	if chainID == nil {
		chainID = new(big.Int)
	}
	return apitypes.TypedDataDomain{
		Name:              d.Name,
		Version:           d.Version,
		ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
		VerifyingContract: d.VerifyingContract.Hex(),
	}
}

// TypedData assembles the go-ethereum representation of payload under d.
func TypedData(d Domain, p Payload) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain":  d.types(),
			p.PrimaryType(): p.Fields(),
		},
		PrimaryType: p.PrimaryType(),
		Domain:      d.apiDomain(),
		Message:     p.Message(),
	}
}

// Hash returns the EIP-712 digest keccak256(0x1901 ‖ domainSeparator ‖ structHash).
func Hash(d Domain, p Payload) (common.Hash, error) {
	digest, _, err := apitypes.TypedDataAndHash(TypedData(d, p))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash %s: %w", p.PrimaryType(), err)
	}
	return common.BytesToHash(digest), nil
}

// Separator returns the domain separator of d.
func Separator(d Domain) (common.Hash, error) {
	td := apitypes.TypedData{
		Types:  apitypes.Types{"EIP712Domain": d.types()},
		Domain: d.apiDomain(),
	}
	sep, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}
	return common.BytesToHash(sep), nil
}
