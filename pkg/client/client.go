package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/jwtauth/v5"
)

// contextKey is a value for use with context.WithValue. It's used as
// a pointer so it fits in an interface{} without allocation.
type contextKey struct {
	name string
}

func (k *contextKey) String() string {
	return "pluser context value " + k.name
}

const (
	ACCESS_TOKEN_NAME = "access_token"
	// SubjectClaim carries the sender address.
	SubjectClaim = "sub"
)

var (
	SenderKey = &contextKey{"Sender"}
)

// Verifier verifies a bearer token from the Authorization header or the
// access_token cookie and stores the result for jwtauth.FromContext.
func Verifier(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return jwtauth.Verify(ja, jwtauth.TokenFromHeader, TokenFromCookie)(next)
	}
}

func TokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(ACCESS_TOKEN_NAME)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SenderMiddleware resolves the caller address from the verified token's
// subject. Requests without a valid token pass through with no sender;
// use RequireSender on routes that act on the caller's behalf.
func SenderMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || claims == nil {
			next.ServeHTTP(w, r)
			return
		}

		sender, err := senderFromClaims(claims)
		if err != nil {
			slog.Warn("Ignoring token with invalid subject", "error", err)
			next.ServeHTTP(w, r)
			return
		}

		slog.Debug("authenticated sender", "sender", sender.Hex())
		ctx := context.WithValue(r.Context(), SenderKey, sender)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func senderFromClaims(claims map[string]interface{}) (common.Address, error) {
	sub, ok := claims[SubjectClaim].(string)
	if !ok || sub == "" {
		return common.Address{}, fmt.Errorf("missing %s claim", SubjectClaim)
	}
	if !common.IsHexAddress(sub) {
		return common.Address{}, fmt.Errorf("subject is not an address: %q", sub)
	}
	addr := common.HexToAddress(sub)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("subject is the zero address")
	}
	return addr, nil
}

// SenderFromContext returns the caller address stored by SenderMiddleware.
func SenderFromContext(ctx context.Context) (common.Address, bool) {
	sender, ok := ctx.Value(SenderKey).(common.Address)
	return sender, ok
}

// GetSender is SenderFromContext for a request.
func GetSender(r *http.Request) (common.Address, bool) {
	return SenderFromContext(r.Context())
}

// IssueToken signs a token naming sender as subject, valid for ttl.
func IssueToken(ja *jwtauth.JWTAuth, sender common.Address, ttl time.Duration) (string, error) {
	claims := map[string]interface{}{
		SubjectClaim: sender.Hex(),
	}
	jwtauth.SetIssuedNow(claims)
	if ttl > 0 {
		jwtauth.SetExpiryIn(claims, ttl)
	}
	_, token, err := ja.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("failed to encode token: %w", err)
	}
	return token, nil
}
