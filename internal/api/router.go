// WorkTime - Pull Request Review Time Tracking Agent
// Copyright 2026 WorkTime contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tkhieu/worktime

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tkhieu/worktime/internal/events"
	"github.com/tkhieu/worktime/internal/models"
	intsync "github.com/tkhieu/worktime/internal/sync"
)

// MessageHandler applies detection messages. Satisfied by *events.Router.
type MessageHandler interface {
	Handle(ctx context.Context, msg events.Message) (events.Outcome, error)
}

// Syncer is the orchestrator surface the API uses.
type Syncer interface {
	TrySync(ctx context.Context) (intsync.Result, error)
	Status() intsync.Status
}

// Reconnecter is told that the network is back. Satisfied by *scheduler.Scheduler.
type Reconnecter interface {
	Reconnect()
}

// TokenStore holds the bearer credential. Satisfied by *auth.TokenStore.
type TokenStore interface {
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
	IsAuthenticated(ctx context.Context) bool
	ExpiresAt() (time.Time, bool)
}

// DeadLetters is the dead-letter ring. Satisfied by *queue.DeadLetters.
type DeadLetters interface {
	List() []models.DeadLetterRecord
	Capacity() int
}

// Connectivity reports the last backend probe. Optional.
type Connectivity interface {
	Online() bool
}

// Deps are the collaborators of the API.
type Deps struct {
	Messages     MessageHandler
	Sync         Syncer
	Reconnect    Reconnecter
	Tokens       TokenStore
	DeadLetters  DeadLetters
	Connectivity Connectivity
}

// Router builds the HTTP handler.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router.
func NewRouter(deps Deps, mw *ChiMiddlewareConfig) *Router {
	return &Router{
		handler:       &Handler{deps: deps, started: time.Now()},
		chiMiddleware: NewChiMiddleware(mw),
	}
}

// SetupChi configures all routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	r.Get("/health", router.handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(RequestMetrics)

		r.Post("/events", router.handler.PostEvent)
		r.Post("/sync", router.handler.PostSync)
		r.Post("/connectivity/online", router.handler.PostOnline)

		r.Put("/auth/token", router.handler.PutToken)
		r.Delete("/auth/token", router.handler.DeleteToken)

		r.Get("/status", router.handler.Status)
		r.Get("/dead-letters", router.handler.DeadLetters)
	})

	return r
}
