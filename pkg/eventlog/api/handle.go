package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/pluser/pkg/eventlog"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Handle serves read access to the event log.
type Handle struct {
	repo eventlog.Repository
}

func NewHandle(repo eventlog.Repository) Handle {
	return Handle{repo: repo}
}

// ListEventsResponse is one page of events. Next is the sequence to pass
// as "after" for the following page, 0 when the page is empty.
type ListEventsResponse struct {
	Events []eventlog.Event `json:"events"`
	Next   uint64           `json:"next"`
}

type LastSequenceResponse struct {
	Sequence uint64 `json:"sequence"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// ListEvents handles GET /?emitter=&name=&after=&limit=
func (h Handle) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := eventlog.Filter{
		Name:  q.Get("name"),
		Limit: DefaultLimit,
	}

	if emitter := q.Get("emitter"); emitter != "" {
		if !common.IsHexAddress(emitter) {
			renderErrorResponse(w, r, http.StatusBadRequest, "Invalid emitter", "emitter must be a hex address")
			return
		}
		addr := common.HexToAddress(emitter)
		filter.Emitter = &addr
	}
	if after := q.Get("after"); after != "" {
		// sequences are stored as BIGINT
		seq, err := strconv.ParseUint(after, 10, 63)
		if err != nil {
			renderErrorResponse(w, r, http.StatusBadRequest, "Invalid after", err.Error())
			return
		}
		filter.AfterSequence = seq
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			renderErrorResponse(w, r, http.StatusBadRequest, "Invalid limit", "limit must be a positive integer")
			return
		}
		filter.Limit = min(n, MaxLimit)
	}

	events, err := h.repo.List(r.Context(), filter)
	if err != nil {
		slog.Error("Failed to list events", "error", err)
		renderErrorResponse(w, r, http.StatusInternalServerError, "Failed to list events", err.Error())
		return
	}
	if events == nil {
		events = []eventlog.Event{}
	}

	resp := ListEventsResponse{Events: events}
	if len(events) > 0 {
		resp.Next = events[len(events)-1].Sequence
	}
	render.JSON(w, r, resp)
}

func (h Handle) LastSequence(w http.ResponseWriter, r *http.Request) {
	seq, err := h.repo.LastSequence(r.Context())
	if err != nil {
		slog.Error("Failed to read last sequence", "error", err)
		renderErrorResponse(w, r, http.StatusInternalServerError, "Failed to read event log", err.Error())
		return
	}
	render.JSON(w, r, LastSequenceResponse{Sequence: seq})
}

func Handler(h Handle) http.Handler {
	r := chi.NewRouter()

	r.Get("/", h.ListEvents)
	r.Get("/last-sequence", h.LastSequence)

	return r
}

func renderErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, message, errorDetail string) {
	render.Status(r, statusCode)
	render.JSON(w, r, ErrorResponse{
		Status:  "error",
		Message: message,
		Error:   errorDetail,
	})
}
