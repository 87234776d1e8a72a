package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	accountapi "github.com/tendant/pluser/pkg/account/api"
	"github.com/tendant/pluser/pkg/audit"
	"github.com/tendant/pluser/pkg/chain"
	"github.com/tendant/pluser/pkg/client"
	eventlogapi "github.com/tendant/pluser/pkg/eventlog/api"
	"github.com/tendant/pluser/pkg/factory"
	factoryapi "github.com/tendant/pluser/pkg/factory/api"
	"github.com/tendant/pluser/pkg/ratelimit"
	recoveryapi "github.com/tendant/pluser/pkg/recovery/api"
	"github.com/tendant/pluser/pkg/wellknown"
)

// Default mount points.
const (
	FactoryPrefix  = "/api/factory"
	AccountPrefix  = "/api/accounts"
	RecoveryPrefix = "/api/recovery"
	EventPrefix    = "/api/events"
)

// Config holds all the dependencies needed to setup routes
type Config struct {
	Chain   *chain.Chain
	Factory *factory.Factory

	// JWTAuth verifies the bearer tokens whose subject is the sender.
	JWTAuth *jwtauth.JWTAuth

	// RateLimit is optional. It runs after the sender is resolved so that
	// per-sender limits apply.
	RateLimit *ratelimit.Middleware

	// Audit is optional. It records every write with its sender.
	Audit *audit.Middleware

	// BaseURL prefixes the endpoint URLs in the discovery document.
	BaseURL string
}

// DeployPath is the route that creates accounts.
func DeployPath() string {
	return FactoryPrefix + "/accounts"
}

// SetupRoutes mounts the protocol API on router. Reads are public; writes
// require a token naming the sender.
func SetupRoutes(router chi.Router, cfg Config) {
	wk := wellknown.NewHandler(wellknown.Config{
		Factory: cfg.Factory,
		BaseURL: cfg.BaseURL,
		Endpoints: map[string]string{
			"factory":  FactoryPrefix,
			"accounts": AccountPrefix,
			"recovery": RecoveryPrefix,
			"events":   EventPrefix,
		},
	})
	wk.RegisterRoutesWithPrefix(func(pattern string, h http.HandlerFunc) {
		router.Get(pattern, h)
	})

	router.Group(func(r chi.Router) {
		r.Use(client.Verifier(cfg.JWTAuth))
		r.Use(client.SenderMiddleware)
		if cfg.RateLimit != nil {
			r.Use(cfg.RateLimit.Handler)
		}
		if cfg.Audit != nil {
			r.Use(cfg.Audit.AuditSenderMiddleware)
		}

		r.Mount(FactoryPrefix, factoryapi.Handler(factoryapi.NewHandle(cfg.Chain, cfg.Factory)))
		r.Mount(AccountPrefix, accountapi.Handler(accountapi.NewHandle(cfg.Chain, cfg.Factory)))
		r.Mount(RecoveryPrefix, recoveryapi.Handler(recoveryapi.NewHandle(cfg.Chain, cfg.Factory)))
		r.Mount(EventPrefix, eventlogapi.Handler(eventlogapi.NewHandle(cfg.Chain.Events())))

		r.With(client.RequireSender).Get("/api/me", func(w http.ResponseWriter, r *http.Request) {
			sender, _ := client.GetSender(r)
			render.JSON(w, r, map[string]string{"sender": sender.Hex()})
		})
	})
}
