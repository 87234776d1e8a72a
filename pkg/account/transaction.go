package account

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Operation is the execution kind of a transaction.
type Operation uint8

const (
	Call         Operation = 0
	DelegateCall Operation = 1
)

func (o Operation) String() string {
	switch o {
	case Call:
		return "call"
	case DelegateCall:
		return "delegatecall"
	default:
		return fmt.Sprintf("operation(%d)", uint8(o))
	}
}

// Transaction is what an account is asked to execute.
type Transaction struct {
	To        common.Address `json:"to"`
	Value     *big.Int       `json:"value"`
	Data      hexutil.Bytes  `json:"data"`
	Operation Operation      `json:"operation"`
}

// safeTx is the typed-data form of a Transaction at a given nonce.
type safeTx struct {
	tx    Transaction
	nonce uint64
}

func (safeTx) PrimaryType() string { return "SafeTx" }

func (safeTx) Fields() []apitypes.Type {
	return []apitypes.Type{
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "data", Type: "bytes"},
		{Name: "operation", Type: "uint8"},
		{Name: "nonce", Type: "uint256"},
	}
}

func (p safeTx) Message() apitypes.TypedDataMessage {
	value := p.tx.Value
	if value == nil {
		value = new(big.Int)
	}
	data := p.tx.Data
	if data == nil {
		data = hexutil.Bytes{}
	}
	return apitypes.TypedDataMessage{
		"to":        p.tx.To.Hex(),
		"value":     new(big.Int).Set(value),
		"data":      data,
		"operation": new(big.Int).SetUint64(uint64(p.tx.Operation)),
		"nonce":     new(big.Int).SetUint64(p.nonce),
	}
}
