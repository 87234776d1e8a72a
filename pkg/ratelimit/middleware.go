package ratelimit

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/tendant/pluser/pkg/client"
	pluserrors "github.com/tendant/pluser/pkg/errors"
)

// Limit is a bucket size and refill rate in tokens per second.
type Limit struct {
	Capacity   int
	RefillRate float64
}

func (l Limit) enabled() bool {
	return l.Capacity > 0
}

// Config selects which limits apply. A zero Limit disables that check.
type Config struct {
	Global    Limit
	PerIP     Limit
	PerSender Limit

	// Endpoints are keyed by "METHOD /path" and counted per client IP.
	Endpoints map[string]Limit

	BucketTTL      time.Duration
	IncludeHeaders bool
	Now            NowFunc
}

// DefaultConfig allows about 1000 requests per minute overall, 100 per
// client IP and 200 per authenticated sender.
func DefaultConfig() Config {
	return Config{
		Global:         Limit{Capacity: 1000, RefillRate: 1000.0 / 60},
		PerIP:          Limit{Capacity: 100, RefillRate: 100.0 / 60},
		PerSender:      Limit{Capacity: 200, RefillRate: 200.0 / 60},
		Endpoints:      map[string]Limit{},
		BucketTTL:      time.Hour,
		IncludeHeaders: true,
	}
}

type errorResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Error      string `json:"error"`
	Scope      string `json:"scope"`
	RetryAfter int    `json:"retry_after"`
}

// Middleware enforces the configured limits in the order global, per-IP,
// per-sender, per-endpoint. The per-sender check only sees a sender when
// it runs after client.SenderMiddleware.
type Middleware struct {
	config    Config
	global    *Limiter
	ip        *Limiter
	sender    *Limiter
	endpoints map[string]*Limiter
}

func NewMiddleware(config Config) *Middleware {
	m := &Middleware{
		config:    config,
		endpoints: make(map[string]*Limiter),
	}
	newLimiter := func(l Limit) *Limiter {
		if !l.enabled() {
			return nil
		}
		return NewLimiter(l.Capacity, l.RefillRate, config.BucketTTL, config.Now)
	}
	m.global = newLimiter(config.Global)
	m.ip = newLimiter(config.PerIP)
	m.sender = newLimiter(config.PerSender)
	for endpoint, l := range config.Endpoints {
		if lim := newLimiter(l); lim != nil {
			m.endpoints[endpoint] = lim
		}
	}
	return m
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		if m.global != nil && !m.global.Allow("global") {
			m.reject(w, r, "global", m.global.RetryAfter("global"))
			return
		}
		if m.ip != nil && ip != "" && !m.ip.Allow(ip) {
			m.reject(w, r, "ip", m.ip.RetryAfter(ip))
			return
		}

		sender := ""
		if addr, ok := client.GetSender(r); ok {
			sender = addr.Hex()
		}
		if m.sender != nil && sender != "" && !m.sender.Allow(sender) {
			m.reject(w, r, "sender", m.sender.RetryAfter(sender))
			return
		}

		endpoint := r.Method + " " + r.URL.Path
		if lim, ok := m.endpoints[endpoint]; ok {
			key := ip + "|" + endpoint
			if !lim.Allow(key) {
				m.reject(w, r, "endpoint", lim.RetryAfter(key))
				return
			}
		}

		if m.config.IncludeHeaders {
			if m.ip != nil && ip != "" {
				w.Header().Set("X-RateLimit-Limit-IP", strconv.Itoa(m.config.PerIP.Capacity))
			}
			if m.sender != nil && sender != "" {
				w.Header().Set("X-RateLimit-Limit-Sender", strconv.Itoa(m.config.PerSender.Capacity))
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, scope string, wait time.Duration) {
	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	slog.Warn("Rate limit exceeded",
		"scope", scope,
		"ip", clientIP(r),
		"method", r.Method,
		"path", r.URL.Path,
	)

	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	render.Status(r, pluserrors.MapErrorCodeToHTTPStatus(pluserrors.ErrCodeRateLimitExceeded))
	render.JSON(w, r, errorResponse{
		Status:     "error",
		Message:    "Too many requests. Please try again later.",
		Error:      string(pluserrors.ErrCodeRateLimitExceeded),
		Scope:      scope,
		RetryAfter: seconds,
	})
}

// Close stops every limiter's sweep goroutine.
func (m *Middleware) Close() {
	for _, lim := range []*Limiter{m.global, m.ip, m.sender} {
		if lim != nil {
			lim.Close()
		}
	}
	for _, lim := range m.endpoints {
		lim.Close()
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then
// the connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
