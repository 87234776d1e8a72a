package client

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
)

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// RequireSender rejects requests that carry no authenticated sender with
// 401 Unauthorized. Must be used after SenderMiddleware.
func RequireSender(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetSender(r); !ok {
			slog.Debug("Unauthenticated request to protected resource", "path", r.URL.Path)
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, errorResponse{
				Status:  "error",
				Message: "Unauthorized",
				Error:   "UNAUTHORIZED",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
