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
	"github.com/tendant/pluser/pkg/factory"
)

// Handle exposes the factory's entry points. Every read runs under
// chain.View and every write under chain.Execute with the request's
// sender.
type Handle struct {
	chain   *chain.Chain
	factory *factory.Factory
}

func NewHandle(ch *chain.Chain, f *factory.Factory) Handle {
	return Handle{chain: ch, factory: f}
}

type CreateAccountRequest struct {
	AuthKey   common.Address `json:"auth_key"`
	DeviceKey common.Address `json:"device_key"`
	Signature hexutil.Bytes  `json:"signature"`
}

type CreateAccountResponse struct {
	Status     string                 `json:"status"`
	Message    string                 `json:"message"`
	Created    factory.AccountCreated `json:"created"`
	Deployment factory.Deployment     `json:"deployment"`
	Events     []eventlog.Event       `json:"events"`
}

type AddDeployerRequest struct {
	Address common.Address `json:"address"`
}

type DeployerResponse struct {
	Address    common.Address `json:"address"`
	IsDeployer bool           `json:"is_deployer"`
}

type FactoryResponse struct {
	Address           common.Address   `json:"address"`
	Owner             common.Address   `json:"owner"`
	TwoFactorVerifier common.Address   `json:"two_factor_verifier"`
	ChainID           *hexutil.Big     `json:"chain_id"`
	DomainName        string           `json:"domain_name"`
	DomainVersion     string           `json:"domain_version"`
	Deployers         []common.Address `json:"deployers"`
}

type TwoFactorVerifierResponse struct {
	TwoFactorVerifier common.Address `json:"two_factor_verifier"`
}

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Status  string           `json:"status"`
	Message string           `json:"message"`
	Events  []eventlog.Event `json:"events"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

func (h Handle) GetFactory(w http.ResponseWriter, r *http.Request) {
	var resp FactoryResponse
	h.chain.View(func() {
		domain := h.factory.Domain()
		resp = FactoryResponse{
			Address:           h.factory.Address(),
			Owner:             h.factory.Owner(),
			TwoFactorVerifier: h.factory.TwoFactorVerifier(),
			ChainID:           (*hexutil.Big)(domain.ChainID),
			DomainName:        domain.Name,
			DomainVersion:     domain.Version,
			Deployers:         h.factory.Deployers(),
		}
	})
	render.JSON(w, r, resp)
}

func (h Handle) GetTwoFactorVerifier(w http.ResponseWriter, r *http.Request) {
	var verifier common.Address
	h.chain.View(func() { verifier = h.factory.TwoFactorVerifier() })
	render.JSON(w, r, TwoFactorVerifierResponse{TwoFactorVerifier: verifier})
}

// CreateAccount deploys the account, guard and recovery manager for an
// (auth key, device key) pair. The sender must be an authorized deployer.
func (h Handle) CreateAccount(w http.ResponseWriter, r *http.Request) {
	sender, _ := client.GetSender(r)

	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderErrorResponse(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	var created factory.AccountCreated
	events, err := h.chain.Execute(r.Context(), sender, func(call *chain.Call) error {
		var err error
		created, err = h.factory.Deploy(call, req.AuthKey, req.DeviceKey, req.Signature)
		return err
	})
	if err != nil {
		renderError(w, r, err, "Failed to create account")
		return
	}

	var deployment factory.Deployment
	h.chain.View(func() { deployment, _ = h.factory.Deployment(created.Account) })

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, CreateAccountResponse{
		Status:     "success",
		Message:    "Account created successfully",
		Created:    created,
		Deployment: deployment,
		Events:     events,
	})
}

// ListAccounts returns every deployment, or those of one auth key when
// auth_key is given.
func (h Handle) ListAccounts(w http.ResponseWriter, r *http.Request) {
	var filter *common.Address
	if raw := r.URL.Query().Get("auth_key"); raw != "" {
		addr, err := parseAddress("auth_key", raw)
		if err != nil {
			renderError(w, r, err, "Invalid query")
			return
		}
		filter = &addr
	}

	var deployments []factory.Deployment
	h.chain.View(func() {
		if filter != nil {
			deployments = h.factory.ByAuthKey(*filter)
		} else {
			deployments = h.factory.Deployments()
		}
	})
	if deployments == nil {
		deployments = []factory.Deployment{}
	}
	render.JSON(w, r, deployments)
}

func (h Handle) GetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("account", chi.URLParam(r, "account"))
	if err != nil {
		renderError(w, r, err, "Invalid account")
		return
	}

	var (
		deployment factory.Deployment
		ok         bool
	)
	h.chain.View(func() { deployment, ok = h.factory.Deployment(addr) })
	if !ok {
		renderError(w, r, pluserrors.NotFound("account", addr.Hex()), "Account not found")
		return
	}
	render.JSON(w, r, deployment)
}

// PredictAccount returns the addresses a deployment for the pair would
// get, without deploying anything.
func (h Handle) PredictAccount(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	authKey, err := parseAddress("auth_key", q.Get("auth_key"))
	if err != nil {
		renderError(w, r, err, "Invalid query")
		return
	}
	deviceKey, err := parseAddress("device_key", q.Get("device_key"))
	if err != nil {
		renderError(w, r, err, "Invalid query")
		return
	}

	var predicted factory.Deployment
	h.chain.View(func() { predicted = h.factory.Predict(authKey, deviceKey) })
	render.JSON(w, r, predicted)
}

func (h Handle) ListDeployers(w http.ResponseWriter, r *http.Request) {
	var deployers []common.Address
	h.chain.View(func() { deployers = h.factory.Deployers() })
	render.JSON(w, r, deployers)
}

func (h Handle) GetDeployer(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		renderError(w, r, err, "Invalid address")
		return
	}

	var ok bool
	h.chain.View(func() { ok = h.factory.IsDeployer(addr) })
	render.JSON(w, r, DeployerResponse{Address: addr, IsDeployer: ok})
}

// AddDeployer authorizes another deployer. Only the factory owner may.
func (h Handle) AddDeployer(w http.ResponseWriter, r *http.Request) {
	sender, _ := client.GetSender(r)

	var req AddDeployerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderErrorResponse(w, r, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	events, err := h.chain.Execute(r.Context(), sender, func(call *chain.Call) error {
		return h.factory.AddDeployer(call, req.Address)
	})
	if err != nil {
		renderError(w, r, err, "Failed to add deployer")
		return
	}

	render.JSON(w, r, SuccessResponse{
		Status:  "success",
		Message: "Deployer authorized",
		Events:  events,
	})
}

func Handler(h Handle) http.Handler {
	r := chi.NewRouter()

	r.Get("/", h.GetFactory)
	r.Get("/two-factor-verifier", h.GetTwoFactorVerifier)
	r.Get("/accounts", h.ListAccounts)
	r.Get("/accounts/predict", h.PredictAccount)
	r.Get("/accounts/{account}", h.GetAccount)
	r.Get("/deployers", h.ListDeployers)
	r.Get("/deployers/{address}", h.GetDeployer)

	r.Group(func(r chi.Router) {
		r.Use(client.RequireSender)
		r.Post("/accounts", h.CreateAccount)
		r.Post("/deployers", h.AddDeployer)
	})

	return r
}

func parseAddress(field, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, pluserrors.InvalidInput(field, "must be a hex address")
	}
	return common.HexToAddress(raw), nil
}

// renderError maps a protocol error onto its HTTP status. Errors without
// a code are reported as internal.
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
