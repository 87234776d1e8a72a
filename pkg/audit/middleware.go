// Package audit provides middleware for auditing HTTP requests
package audit

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/tendant/pluser/pkg/client"
)

// RequestIDHeader carries the audit id back to the caller.
const RequestIDHeader = "X-Audit-Id"

// Config holds the configuration for the audit middleware
type Config struct {
	// Source specifies the source of the audit events
	Source string
	// EventType specifies the type of audit events
	EventType string
	// Logger receives one record per audited request. Defaults to slog.Default().
	Logger *slog.Logger
	// Methods lists the HTTP methods that are audited. Defaults to the
	// state-changing methods.
	Methods []string
}

// Middleware handles HTTP request auditing
type Middleware struct {
	config  Config
	methods map[string]bool
}

// NewMiddleware creates a new audit middleware instance
func NewMiddleware(config Config) *Middleware {
	if config.Source == "" {
		config.Source = "pluserd"
	}
	if config.EventType == "" {
		config.EventType = "audit.pluserd.write"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if len(config.Methods) == 0 {
		config.Methods = []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete}
	}

	methods := make(map[string]bool, len(config.Methods))
	for _, m := range config.Methods {
		methods[m] = true
	}
	return &Middleware{config: config, methods: methods}
}

// AuditEvent represents an audit event
type AuditEvent struct {
	ID        uuid.UUID
	Sender    common.Address
	URI       string
	Method    string
	Status    int
	Message   string
	Timestamp time.Time
	Duration  time.Duration
	Metadata  map[string]interface{}
}

// AuditSenderMiddleware audits requests after the sender has been
// resolved. Reads pass through untouched.
func (m *Middleware) AuditSenderMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.methods[r.Method] {
			next.ServeHTTP(w, r)
			return
		}

		event := AuditEvent{
			ID:        uuid.New(),
			URI:       r.RequestURI,
			Method:    r.Method,
			Timestamp: time.Now(),
		}
		if sender, ok := client.GetSender(r); ok {
			event.Sender = sender
		} else {
			event.Message = "No jwt token"
		}
		if ip := r.RemoteAddr; ip != "" {
			event = event.WithMetadata("remote_addr", ip)
		}

		w.Header().Set(RequestIDHeader, event.ID.String())
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		event.Status = ww.Status()
		if event.Status == 0 {
			event.Status = http.StatusOK
		}
		event.Duration = time.Since(event.Timestamp)
		m.auditRequest(event)
	})
}

func (m *Middleware) auditRequest(event AuditEvent) {
	sender := ""
	if event.Sender != (common.Address{}) {
		sender = event.Sender.Hex()
	}

	level := slog.LevelInfo
	if event.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	} else if event.Status >= http.StatusBadRequest {
		level = slog.LevelWarn
	}

	m.config.Logger.Log(context.Background(), level, "audit",
		"id", event.ID.String(),
		"source", m.config.Source,
		"type", m.config.EventType,
		"sender", sender,
		"method", event.Method,
		"uri", event.URI,
		"status", event.Status,
		"message", event.Message,
		"timestamp", event.Timestamp.Format(time.RFC3339),
		"duration", event.Duration,
		"metadata", event.Metadata,
	)
}

// WithMetadata adds metadata to the audit event
func (e AuditEvent) WithMetadata(key string, value interface{}) AuditEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}
