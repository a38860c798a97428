package httpapi

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/avoronkov/hearthshare/internal/transport/httpapi/handler"
	"github.com/avoronkov/hearthshare/internal/transport/httpapi/middleware"
	"github.com/avoronkov/hearthshare/pkg/logger"
)

// Config holds router configuration
type Config struct {
	Logger             *logger.Logger
	AllowedOrigins     []string
	TransactionHandler *handler.TransactionHandler
	DebtHandler        *handler.DebtHandler
	HealthHandler      *handler.HealthHandler
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
	r.Use(middleware.RateLimit())

	// Health check endpoints
	r.Get("/health", handler.GetHealth)
	r.Get("/health/live", handler.GetLiveness)
	if cfg.HealthHandler != nil {
		r.Get("/health/ready", cfg.HealthHandler.GetReadiness)
		r.Get("/health/detailed", cfg.HealthHandler.GetHealthDetailed)
	}

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.TransactionHandler != nil {
			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", cfg.TransactionHandler.ListTransactions)
				r.Post("/", cfg.TransactionHandler.CreateTransaction)
				r.Get("/recurring", cfg.TransactionHandler.ListRecurring)
				r.Put("/{id}", cfg.TransactionHandler.UpdateTransaction)
				r.Delete("/{id}", cfg.TransactionHandler.DeleteTransaction)
				r.Get("/{id}/can-edit", cfg.TransactionHandler.CanEdit)
			})
		}

		if cfg.DebtHandler != nil {
			r.Route("/debts", func(r chi.Router) {
				r.Get("/", cfg.DebtHandler.ListDebts)
				r.Get("/balances", cfg.DebtHandler.GetBalances)
				r.Post("/settle", cfg.DebtHandler.Settle)
				r.Put("/{id}", cfg.DebtHandler.UpdateDebt)
				r.Delete("/{id}", cfg.DebtHandler.DeleteDebt)
			})
		}
	})

	return r
}
