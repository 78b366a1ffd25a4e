package apiapp

import (
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/config"
	authsvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/auth"
	ledgersvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/ledger"
	paysvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/payments"
	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/transport/http/handlers"
)

type Dependencies struct {
	PaymentService *paysvc.Service
	LedgerPoster   *ledgersvc.Poster
	ServiceTokens  *authsvc.ServiceTokenManager
	Postgres       *pgxpool.Pool
	Logger         *zap.Logger
	Config         config.Config
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	purchaseHandler := handlers.NewPurchaseHandler(deps.PaymentService, deps.Logger)
	ledgerHandler := handlers.NewLedgerHandler(deps.LedgerPoster)

	healthHandler := handlers.NewHealthHandler(nil)
	if deps.Postgres != nil {
		healthHandler = handlers.NewHealthHandler(deps.Postgres)
	}

	auditMW := ServiceTokenMiddleware(deps.ServiceTokens, "ledger:read", deps.Logger)

	r.Get("/healthz", healthHandler.Healthz)

	r.Post("/purchases", purchaseHandler.Create)
	r.Post("/purchases/{id}/process", purchaseHandler.Process)
	r.Get("/purchases/{id}", purchaseHandler.Status)

	r.Route("/ledger", func(r chi.Router) {
		r.Use(auditMW)
		r.Get("/entries", ledgerHandler.Entries)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/purchases", purchaseHandler.Create)
		r.Post("/purchases/{id}/process", purchaseHandler.Process)
		r.Get("/purchases/{id}", purchaseHandler.Status)
		r.With(auditMW).Get("/ledger/entries", ledgerHandler.Entries)
	})
}
