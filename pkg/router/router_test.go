package router

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/pluser/pkg/audit"
	"github.com/tendant/pluser/pkg/chain"
	"github.com/tendant/pluser/pkg/client"
	"github.com/tendant/pluser/pkg/factory"
	"github.com/tendant/pluser/pkg/ratelimit"
	"github.com/tendant/pluser/pkg/wellknown"
)

var (
	owner    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	verifier = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

func createTestConfig(t *testing.T) Config {
	t.Helper()
	ch := chain.New(chain.Config{Clock: chain.NewManualClock(1_700_000_000)})
	f, err := factory.Install(context.Background(), ch, factory.Config{
		Owner:             owner,
		TwoFactorVerifier: verifier,
	})
	require.NoError(t, err)

	return Config{
		Chain:   ch,
		Factory: f,
		JWTAuth: jwtauth.New("HS256", []byte("test-secret-key-for-testing-only"), nil),
	}
}

func TestSetupRoutes(t *testing.T) {
	cfg := createTestConfig(t)
	r := chi.NewRouter()
	SetupRoutes(r, cfg)

	token, err := client.IssueToken(cfg.JWTAuth, owner, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
	}{
		{"Factory info", http.MethodGet, "/api/factory", "", http.StatusOK},
		{"Two-factor verifier", http.MethodGet, "/api/factory/two-factor-verifier", "", http.StatusOK},
		{"Deployers", http.MethodGet, "/api/factory/deployers", "", http.StatusOK},
		{"Unknown account", http.MethodGet, "/api/accounts/" + owner.Hex(), "", http.StatusNotFound},
		{"Unknown manager", http.MethodGet, "/api/recovery/" + owner.Hex(), "", http.StatusNotFound},
		{"Events", http.MethodGet, "/api/events", "", http.StatusOK},
		{"Discovery", http.MethodGet, wellknown.ConfigurationPath, "", http.StatusOK},
		{"Deploy needs sender", http.MethodPost, "/api/factory/accounts", "", http.StatusUnauthorized},
		{"Me needs sender", http.MethodGet, "/api/me", "", http.StatusUnauthorized},
		{"Me", http.MethodGet, "/api/me", token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestEventsShowFactoryInstall(t *testing.T) {
	cfg := createTestConfig(t)
	r := chi.NewRouter()
	SetupRoutes(r, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/events?emitter="+cfg.Factory.Address().Hex(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Events []struct {
			Name string `json:"name"`
		} `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Events)
	assert.Equal(t, "FactoryDeployed", resp.Events[0].Name)
}

func TestRateLimitSeesSender(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.RateLimit = ratelimit.NewMiddleware(ratelimit.Config{
		PerSender: ratelimit.Limit{Capacity: 1, RefillRate: 0.001},
	})
	defer cfg.RateLimit.Close()

	r := chi.NewRouter()
	SetupRoutes(r, cfg)
	token, err := client.IssueToken(cfg.JWTAuth, owner, time.Hour)
	require.NoError(t, err)

	call := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusOK, call())
	assert.Equal(t, http.StatusTooManyRequests, call())
}

func TestAuditRecordsWrites(t *testing.T) {
	cfg := createTestConfig(t)
	buf := &bytes.Buffer{}
	cfg.Audit = audit.NewMiddleware(audit.Config{Logger: slog.New(slog.NewJSONHandler(buf, nil))})

	r := chi.NewRouter()
	SetupRoutes(r, cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/factory", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, buf.Len())

	req = httptest.NewRequest(http.MethodPost, "/api/factory/accounts", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get(audit.RequestIDHeader))
	assert.Contains(t, buf.String(), `"status":401`)
}

func TestDiscoveryEndpoints(t *testing.T) {
	cfg := createTestConfig(t)
	cfg.BaseURL = "http://localhost:4000"
	r := chi.NewRouter()
	SetupRoutes(r, cfg)

	req := httptest.NewRequest(http.MethodGet, wellknown.ConfigurationPath, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var md wellknown.ProtocolMetadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &md))
	assert.Equal(t, cfg.Factory.Address(), md.Factory)
	assert.Equal(t, "http://localhost:4000"+RecoveryPrefix, md.Endpoints["recovery"])
}
