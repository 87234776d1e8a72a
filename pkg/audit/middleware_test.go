package audit

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/jwtauth/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/pluser/pkg/client"
)

func newAudited(t *testing.T, status int) (http.Handler, *bytes.Buffer, *jwtauth.JWTAuth) {
	t.Helper()
	buf := &bytes.Buffer{}
	m := NewMiddleware(Config{Logger: slog.New(slog.NewJSONHandler(buf, nil))})
	ja := jwtauth.New("HS256", []byte("test-jwt-secret-key"), nil)

	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	h := client.Verifier(ja)(client.SenderMiddleware(m.AuditSenderMiddleware(final)))
	return h, buf, ja
}

func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	return rec
}

func TestAuditSenderMiddleware(t *testing.T) {
	sender := common.HexToAddress("0x3000000000000000000000000000000000000003")

	t.Run("WriteWithSender", func(t *testing.T) {
		h, buf, ja := newAudited(t, http.StatusCreated)
		token, err := client.IssueToken(ja, sender, 0)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/api/factory/accounts", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.NotEmpty(t, rr.Header().Get(RequestIDHeader))

		rec := decodeRecord(t, buf)
		assert.Equal(t, "INFO", rec["level"])
		assert.Equal(t, sender.Hex(), rec["sender"])
		assert.Equal(t, "POST", rec["method"])
		assert.Equal(t, "/api/factory/accounts", rec["uri"])
		assert.Equal(t, float64(http.StatusCreated), rec["status"])
		assert.Equal(t, rr.Header().Get(RequestIDHeader), rec["id"])
		assert.Equal(t, "pluserd", rec["source"])
	})

	t.Run("AnonymousRejectedWrite", func(t *testing.T) {
		h, buf, _ := newAudited(t, http.StatusUnauthorized)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/recovery/x/requests", nil))

		rec := decodeRecord(t, buf)
		assert.Equal(t, "WARN", rec["level"])
		assert.Equal(t, "", rec["sender"])
		assert.Equal(t, "No jwt token", rec["message"])
	})

	t.Run("ReadsAreNotAudited", func(t *testing.T) {
		h, buf, _ := newAudited(t, http.StatusOK)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/factory", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get(RequestIDHeader))
		assert.Zero(t, buf.Len())
	})
}

func TestWithMetadata(t *testing.T) {
	e := AuditEvent{}.WithMetadata("k", "v")
	assert.Equal(t, "v", e.Metadata["k"])
}
