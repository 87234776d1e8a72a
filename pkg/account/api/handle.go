package api

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/pluser/pkg/account"
	"github.com/tendant/pluser/pkg/chain"
	"github.com/tendant/pluser/pkg/client"
	pluserrors "github.com/tendant/pluser/pkg/errors"
	"github.com/tendant/pluser/pkg/eventlog"
)

// Accounts resolves account addresses. *factory.Factory satisfies it.
type Accounts interface {
	Account(addr common.Address) (*account.Account, bool)
}

type Handle struct {
	chain    *chain.Chain
	accounts Accounts
}

func NewHandle(ch *chain.Chain, accounts Accounts) Handle {
	return Handle{chain: ch, accounts: accounts}
}

type AccountResponse struct {
	Address   common.Address   `json:"address"`
	Owners    []common.Address `json:"owners"`
	Threshold int              `json:"threshold"`
	Guard     common.Address   `json:"guard"`
	Modules   []common.Address `json:"modules"`
	Nonce     uint64           `json:"nonce"`
}

type TxHashResponse struct {
	TxHash common.Hash `json:"tx_hash"`
	Nonce  uint64      `json:"nonce"`
}

// ExecTransactionRequest carries the transaction and the signature bundle:
// the owner's signature, followed by the two-factor verifier's when the
// account is guarded.
type ExecTransactionRequest struct {
	To         common.Address    `json:"to"`
	Value      *big.Int          `json:"value"`
	Data       hexutil.Bytes     `json:"data"`
	Operation  account.Operation `json:"operation"`
	Signatures hexutil.Bytes     `json:"signatures"`
}

type ExecTransactionResponse struct {
	Status  string           `json:"status"`
	Message string           `json:"message"`
	TxHash  common.Hash      `json:"tx_hash"`
	Events  []eventlog.Event `json:"events"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func (h Handle) GetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		renderError(w, r, err, "Invalid account")
		return
	}

	var (
		resp AccountResponse
		ok   bool
	)
	h.chain.View(func() {
		var acc *account.Account
		if acc, ok = h.accounts.Account(addr); !ok {
			return
		}
		resp = AccountResponse{
			Address:   acc.Address(),
			Owners:    acc.Owners(),
			Threshold: account.Threshold,
			Guard:     acc.GetGuard(),
			Modules:   acc.Modules(),
			Nonce:     acc.Nonce(),
		}
	})
	if !ok {
		renderError(w, r, pluserrors.NotFound("account", addr.Hex()), "Account not found")
		return
	}
	render.JSON(w, r, resp)
}

// GetTxHash handles GET /{account}/tx-hash?to=&value=&data=&operation=&nonce=.
// The nonce defaults to the account's current one.
func (h Handle) GetTxHash(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		renderError(w, r, err, "Invalid account")
		return
	}
	tx, nonce, err := parseTxQuery(r)
	if err != nil {
		renderError(w, r, err, "Invalid query")
		return
	}

	var (
		hash common.Hash
		ok   bool
	)
	h.chain.View(func() {
		var acc *account.Account
		if acc, ok = h.accounts.Account(addr); !ok {
			return
		}
		if nonce == nil {
			n := acc.Nonce()
			nonce = &n
		}
		hash, err = acc.TransactionHash(tx, *nonce)
	})
	if !ok {
		renderError(w, r, pluserrors.NotFound("account", addr.Hex()), "Account not found")
		return
	}
	if err != nil {
		renderError(w, r, pluserrors.InternalWrap(err, "failed to hash transaction"), "Failed to hash transaction")
		return
	}
	render.JSON(w, r, TxHashResponse{TxHash: hash, Nonce: *nonce})
}

func (h Handle) ExecTransaction(w http.ResponseWriter, r *http.Request) {
	sender, _ := client.GetSender(r)
	addr, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		renderError(w, r, err, "Invalid account")
		return
	}

	var req ExecTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderErrorResponse(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.Value != nil && req.Value.Sign() < 0 {
		renderError(w, r, pluserrors.InvalidInput("value", "must not be negative"), "Invalid transaction")
		return
	}
	tx := account.Transaction{
		To:        req.To,
		Value:     req.Value,
		Data:      req.Data,
		Operation: req.Operation,
	}

	var txHash common.Hash
	events, err := h.chain.Execute(r.Context(), sender, func(call *chain.Call) error {
		acc, ok := h.accounts.Account(addr)
		if !ok {
			return pluserrors.NotFound("account", addr.Hex())
		}
		var err error
		txHash, err = acc.ExecTransaction(call, tx, req.Signatures)
		return err
	})
	if err != nil {
		renderError(w, r, err, "Failed to execute transaction")
		return
	}

	render.JSON(w, r, ExecTransactionResponse{
		Status:  "success",
		Message: "Transaction executed",
		TxHash:  txHash,
		Events:  events,
	})
}

func Handler(h Handle) http.Handler {
	r := chi.NewRouter()

	r.Get("/{account}", h.GetAccount)
	r.Get("/{account}/tx-hash", h.GetTxHash)
	r.With(client.RequireSender).Post("/{account}/transactions", h.ExecTransaction)

	return r
}

func parseTxQuery(r *http.Request) (account.Transaction, *uint64, error) {
	q := r.URL.Query()
	var tx account.Transaction

	to, err := parseAddress("to", q.Get("to"))
	if err != nil {
		return tx, nil, err
	}
	tx.To = to

	if raw := q.Get("value"); raw != "" {
		v, ok := new(big.Int).SetString(raw, 0)
		if !ok || v.Sign() < 0 {
			return tx, nil, pluserrors.InvalidInput("value", "must be a non-negative integer")
		}
		tx.Value = v
	}
	if raw := q.Get("data"); raw != "" {
		data, err := hexutil.Decode(raw)
		if err != nil {
			return tx, nil, pluserrors.InvalidInput("data", err.Error())
		}
		tx.Data = data
	}
	if raw := q.Get("operation"); raw != "" {
		op, err := strconv.ParseUint(raw, 10, 8)
		if err != nil || op > uint64(account.DelegateCall) {
			return tx, nil, pluserrors.InvalidInput("operation", "must be 0 (call) or 1 (delegatecall)")
		}
		tx.Operation = account.Operation(op)
	}

	var nonce *uint64
	if raw := q.Get("nonce"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return tx, nil, pluserrors.InvalidInput("nonce", err.Error())
		}
		nonce = &n
	}
	return tx, nonce, nil
}

func parseAddress(field, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, pluserrors.InvalidInput(field, "must be a hex address")
	}
	return common.HexToAddress(raw), nil
}

func renderError(w http.ResponseWriter, r *http.Request, err error, message string) {
	code := pluserrors.GetCode(err)
	status := pluserrors.MapErrorCodeToHTTPStatus(code)
	if status >= http.StatusInternalServerError {
		slog.Error(message, "error", err)
		renderErrorResponse(w, r, status, message, string(code))
		return
	}

	var perr *pluserrors.Error
	if pluserrors.As(err, &perr) {
		message = perr.Message
	}
	renderErrorResponse(w, r, status, message, string(code))
}

func renderErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, message, errorDetail string) {
	render.Status(r, statusCode)
	render.JSON(w, r, ErrorResponse{
		Status:  "error",
		Message: message,
		Error:   errorDetail,
	})
}
