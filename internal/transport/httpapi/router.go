// Package httpapi wires the middleware chain and the resource handlers
// into the chi router.
package httpapi

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ledgerkit/ledgerkit/internal/transport/httpapi/handler"
	"github.com/ledgerkit/ledgerkit/internal/transport/httpapi/middleware"
	"github.com/ledgerkit/ledgerkit/pkg/logger"
)

// Config holds router configuration
type Config struct {
	Logger            *logger.Logger
	AllowedOrigins    []string
	JWTService        *middleware.JWTService
	RateLimiter       *middleware.RateLimiter
	LedgerHandler     *handler.LedgerHandler
	AccountHandler    *handler.AccountHandler
	TxnHandler        *handler.TransactionHandler
	SettlementHandler *handler.SettlementHandler
	MonitorHandler    *handler.MonitorHandler
	StatementHandler  *handler.StatementHandler
	HealthHandler     *handler.HealthHandler
}

// NewRouter creates a new HTTP router
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Compress(5))

	// Health check endpoints (no authentication required)
	r.Get("/health", handler.GetHealth)
	r.Get("/health/live", handler.GetLiveness)
	if cfg.HealthHandler != nil {
		r.Get("/health/ready", cfg.HealthHandler.GetReadiness)
	}

	// API routes (authenticated, rate limited per organization)
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTService))
		if cfg.RateLimiter != nil {
			r.Use(cfg.RateLimiter.Middleware)
		}

		r.Route("/ledgers", func(r chi.Router) {
			r.With(middleware.RequireScope(middleware.ScopeLedgerWrite)).Post("/", cfg.LedgerHandler.Create)
			r.With(middleware.RequireScope(middleware.ScopeLedgerRead)).Get("/", cfg.LedgerHandler.List)

			r.Route("/{ledgerID}", func(r chi.Router) {
				r.With(middleware.RequireScope(middleware.ScopeLedgerRead)).Get("/", cfg.LedgerHandler.Get)
				r.With(middleware.RequireScope(middleware.ScopeLedgerWrite)).Patch("/", cfg.LedgerHandler.Update)
				r.With(middleware.RequireScope(middleware.ScopeLedgerDelete)).Delete("/", cfg.LedgerHandler.Delete)

				r.Route("/accounts", func(r chi.Router) {
					r.With(middleware.RequireScope(middleware.ScopeAccountWrite)).Post("/", cfg.AccountHandler.Create)
					r.With(middleware.RequireScope(middleware.ScopeAccountRead)).Get("/", cfg.AccountHandler.List)

					r.Route("/{accountID}", func(r chi.Router) {
						r.With(middleware.RequireScope(middleware.ScopeAccountRead)).Get("/", cfg.AccountHandler.Get)
						r.With(middleware.RequireScope(middleware.ScopeAccountWrite)).Patch("/", cfg.AccountHandler.Update)
						r.With(middleware.RequireScope(middleware.ScopeAccountDelete)).Delete("/", cfg.AccountHandler.Delete)

						r.Route("/statements", func(r chi.Router) {
							r.With(middleware.RequireScope(middleware.ScopeStatementWrite)).Post("/", cfg.StatementHandler.Create)
							r.With(middleware.RequireScope(middleware.ScopeStatementRead)).Get("/", cfg.StatementHandler.List)
							r.With(middleware.RequireScope(middleware.ScopeStatementRead)).Get("/{statementID}", cfg.StatementHandler.Get)
						})
					})
				})

				r.Route("/transactions", func(r chi.Router) {
					r.With(middleware.RequireScope(middleware.ScopeTxnWrite)).Post("/", cfg.TxnHandler.Create)
					r.With(middleware.RequireScope(middleware.ScopeTxnRead)).Get("/", cfg.TxnHandler.List)
					r.With(middleware.RequireScope(middleware.ScopeTxnRead)).Get("/{transactionID}", cfg.TxnHandler.Get)
					r.With(middleware.RequireScope(middleware.ScopeTxnWrite)).Post("/{transactionID}/post", cfg.TxnHandler.Post)
					r.With(middleware.RequireScope(middleware.ScopeTxnDelete)).Delete("/{transactionID}", cfg.TxnHandler.Delete)
				})

				r.Route("/settlements", func(r chi.Router) {
					r.With(middleware.RequireScope(middleware.ScopeSettlementWrite)).Post("/", cfg.SettlementHandler.Create)
					r.With(middleware.RequireScope(middleware.ScopeSettlementRead)).Get("/", cfg.SettlementHandler.List)

					r.Route("/{settlementID}", func(r chi.Router) {
						r.With(middleware.RequireScope(middleware.ScopeSettlementRead)).Get("/", cfg.SettlementHandler.Get)
						r.With(middleware.RequireScope(middleware.ScopeSettlementWrite)).Patch("/", cfg.SettlementHandler.Update)
						r.With(middleware.RequireScope(middleware.ScopeSettlementDelete)).Delete("/", cfg.SettlementHandler.Delete)
						r.With(middleware.RequireScope(middleware.ScopeSettlementWrite)).Post("/entries", cfg.SettlementHandler.AddEntries)
						r.With(middleware.RequireScope(middleware.ScopeSettlementWrite)).Delete("/entries", cfg.SettlementHandler.RemoveEntries)
						r.With(middleware.RequireScope(middleware.ScopeSettlementWrite)).Post("/{status}", cfg.SettlementHandler.Transition)
					})
				})

				r.Route("/monitors", func(r chi.Router) {
					r.With(middleware.RequireScope(middleware.ScopeMonitorWrite)).Post("/", cfg.MonitorHandler.Create)
					r.With(middleware.RequireScope(middleware.ScopeMonitorRead)).Get("/", cfg.MonitorHandler.List)
					r.With(middleware.RequireScope(middleware.ScopeMonitorRead)).Get("/{monitorID}", cfg.MonitorHandler.Get)
					r.With(middleware.RequireScope(middleware.ScopeMonitorWrite)).Patch("/{monitorID}", cfg.MonitorHandler.Update)
					r.With(middleware.RequireScope(middleware.ScopeMonitorWrite)).Delete("/{monitorID}", cfg.MonitorHandler.Delete)
					r.With(middleware.RequireScope(middleware.ScopeMonitorRead)).Post("/{monitorID}/evaluate", cfg.MonitorHandler.Evaluate)
				})
			})
		})
	})

	return r
}
