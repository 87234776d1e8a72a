package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/pluser/pkg/chain"
	"github.com/tendant/pluser/pkg/client"
	pluserrors "github.com/tendant/pluser/pkg/errors"
	"github.com/tendant/pluser/pkg/eventlog"
	"github.com/tendant/pluser/pkg/recovery"
)

// Managers resolves recovery manager addresses. *factory.Factory
// satisfies it.
type Managers interface {
	RecoveryManager(addr common.Address) (*recovery.Manager, bool)
}

type Handle struct {
	chain    *chain.Chain
	managers Managers
}

func NewHandle(ch *chain.Chain, managers Managers) Handle {
	return Handle{chain: ch, managers: managers}
}

type ManagerResponse struct {
	Address           common.Address   `json:"address"`
	Wallet            common.Address   `json:"wallet"`
	AuthKey           common.Address   `json:"auth_key"`
	Guard             common.Address   `json:"guard"`
	TwoFactorVerifier common.Address   `json:"two_factor_verifier"`
	State             recovery.State   `json:"state"`
	Request           recovery.Request `json:"request"`
	RequestNonce      uint64           `json:"request_nonce"`
	Nonce             uint64           `json:"nonce"`
	SignatureDeadline uint64           `json:"signature_deadline"`
	RequestTimeout    uint64           `json:"request_timeout"`
	ChainID           *hexutil.Big     `json:"chain_id"`
	DomainName        string           `json:"domain_name"`
	DomainVersion     string           `json:"domain_version"`
	Now               uint64           `json:"now"`
}

type CreateRequestRequest struct {
	NewKey    common.Address `json:"new_key"`
	Signature hexutil.Bytes  `json:"signature"`
}

type CancelRequestRequest struct {
	Signature hexutil.Bytes `json:"signature"`
}

// AddDeviceRequest carries the auth key's signature over
// AddDevice{new_key, nonce}.
type AddDeviceRequest struct {
	NewKey    common.Address `json:"new_key"`
	Signature hexutil.Bytes  `json:"signature"`
}

type SessionResponse struct {
	Key     common.Address `json:"key"`
	Timeout uint64         `json:"timeout"`
	Active  bool           `json:"active"`
}

// StateResponse reports the manager after a successful write.
type StateResponse struct {
	Status       string           `json:"status"`
	Message      string           `json:"message"`
	State        recovery.State   `json:"state"`
	Request      recovery.Request `json:"request"`
	RequestNonce uint64           `json:"request_nonce"`
	Nonce        uint64           `json:"nonce"`
	Events       []eventlog.Event `json:"events"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func (h Handle) GetManager(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("manager", chi.URLParam(r, "manager"))
	if err != nil {
		renderError(w, r, err, "Invalid manager")
		return
	}

	var (
		resp ManagerResponse
		ok   bool
	)
	h.chain.View(func() {
		var m *recovery.Manager
		if m, ok = h.managers.RecoveryManager(addr); !ok {
			return
		}
		domain := m.Domain()
		resp = ManagerResponse{
			Address:           m.Address(),
			Wallet:            m.Wallet(),
			AuthKey:           m.AuthKey(),
			Guard:             m.Guard(),
			TwoFactorVerifier: m.TwoFactorVerifier(),
			State:             m.State(),
			Request:           m.Request(),
			RequestNonce:      m.RequestNonce(),
			Nonce:             m.Nonce(),
			SignatureDeadline: m.SignatureDeadline(),
			RequestTimeout:    uint64(m.RequestTimeout().Seconds()),
			ChainID:           (*hexutil.Big)(domain.ChainID),
			DomainName:        domain.Name,
			DomainVersion:     domain.Version,
		}
	})
	if !ok {
		renderError(w, r, pluserrors.NotFound("recovery manager", addr.Hex()), "Recovery manager not found")
		return
	}
	resp.Now = h.chain.Now()
	render.JSON(w, r, resp)
}

// CreateRequest opens a timelocked recovery request. The sender must be
// the manager's auth key.
func (h Handle) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var req CreateRequestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.execute(w, r, "Recovery request created", func(call *chain.Call, m *recovery.Manager) error {
		return m.CreateRequest(call, req.NewKey, req.Signature)
	})
}

func (h Handle) CancelRequest(w http.ResponseWriter, r *http.Request) {
	var req CancelRequestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.execute(w, r, "Recovery request cancelled", func(call *chain.Call, m *recovery.Manager) error {
		return m.CancelRequest(call, req.Signature)
	})
}

// Recovery finalizes an unlocked request. Any sender may trigger it.
func (h Handle) Recovery(w http.ResponseWriter, r *http.Request) {
	h.execute(w, r, "Recovery executed", func(call *chain.Call, m *recovery.Manager) error {
		return m.Recovery(call)
	})
}

// AddDevice swaps the owner immediately. The sender must be the current
// owner.
func (h Handle) AddDevice(w http.ResponseWriter, r *http.Request) {
	var req AddDeviceRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.execute(w, r, "Device added", func(call *chain.Call, m *recovery.Manager) error {
		return m.AddDevice(call, req.Signature, req.NewKey)
	})
}

func (h Handle) GetSession(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("manager", chi.URLParam(r, "manager"))
	if err != nil {
		renderError(w, r, err, "Invalid manager")
		return
	}
	key, err := parseAddress("key", chi.URLParam(r, "key"))
	if err != nil {
		renderError(w, r, err, "Invalid key")
		return
	}

	now := h.chain.Now()
	var (
		resp SessionResponse
		ok   bool
	)
	h.chain.View(func() {
		var m *recovery.Manager
		if m, ok = h.managers.RecoveryManager(addr); !ok {
			return
		}
		resp = SessionResponse{
			Key:     key,
			Timeout: m.TimeoutBySessionKey(key),
			Active:  m.IsSessionActive(key, now),
		}
	})
	if !ok {
		renderError(w, r, pluserrors.NotFound("recovery manager", addr.Hex()), "Recovery manager not found")
		return
	}
	render.JSON(w, r, resp)
}

func (h Handle) execute(w http.ResponseWriter, r *http.Request, message string, op func(*chain.Call, *recovery.Manager) error) {
	sender, _ := client.GetSender(r)
	addr, err := parseAddress("manager", chi.URLParam(r, "manager"))
	if err != nil {
		renderError(w, r, err, "Invalid manager")
		return
	}

	var m *recovery.Manager
	events, err := h.chain.Execute(r.Context(), sender, func(call *chain.Call) error {
		var ok bool
		if m, ok = h.managers.RecoveryManager(addr); !ok {
			return pluserrors.NotFound("recovery manager", addr.Hex())
		}
		return op(call, m)
	})
	if err != nil {
		renderError(w, r, err, message+" failed")
		return
	}

	resp := StateResponse{Status: "success", Message: message, Events: events}
	h.chain.View(func() {
		resp.State = m.State()
		resp.Request = m.Request()
		resp.RequestNonce = m.RequestNonce()
		resp.Nonce = m.Nonce()
	})
	render.JSON(w, r, resp)
}

func Handler(h Handle) http.Handler {
	r := chi.NewRouter()

	r.Get("/{manager}", h.GetManager)
	r.Get("/{manager}/sessions/{key}", h.GetSession)

	r.Group(func(r chi.Router) {
		r.Use(client.RequireSender)
		r.Post("/{manager}/requests", h.CreateRequest)
		r.Post("/{manager}/requests/cancel", h.CancelRequest)
		r.Post("/{manager}/recovery", h.Recovery)
		r.Post("/{manager}/devices", h.AddDevice)
	})

	return r
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		renderErrorResponse(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	return true
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

	slog.Debug(message, "code", code, "error", err)
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
