package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/config"
	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/infra/processor"
	pgrepo "github.com/YOLOVibeCode/fieldview-live-sub002/internal/repo/postgres"
	redrepo "github.com/YOLOVibeCode/fieldview-live-sub002/internal/repo/redis"
	authsvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/auth"
	entsvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/entitlements"
	feesvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/fees"
	ledgersvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/ledger"
	paysvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/payments"
	vaultsvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/vault"
)

type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("init postgres pool: %w", err)
	}

	if cfg.Postgres.Migrate {
		if err := pgrepo.RunMigrations(cfg.Postgres.DSN, cfg.Postgres.MigrationsDir, log); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	purchaseRepo := pgrepo.NewPurchaseRepo(pool)
	ledgerRepo := pgrepo.NewLedgerRepo(pool)
	entitlementRepo := pgrepo.NewEntitlementRepo(pool)
	credentialRepo := pgrepo.NewCredentialRepo(pool)
	gameOwnerRepo := pgrepo.NewGameOwnerRepo(pool)

	vaultService, err := vaultsvc.NewService(credentialRepo, cfg.Vault.Key)
	if err != nil {
		return nil, fmt.Errorf("init credential vault: %w", err)
	}

	processorClient := processor.NewClient(cfg.Processor.BaseURL, cfg.Processor.Timeout)
	feeCalculator := feesvc.NewCalculator()
	ledgerPoster := ledgersvc.NewPoster(purchaseRepo, ledgerRepo)
	entitlementService := entsvc.NewService(entitlementRepo)

	paymentService := paysvc.NewService(paysvc.Dependencies{
		Purchases:    purchaseRepo,
		Ledger:       ledgerPoster,
		Entitlements: entitlementService,
		Gateway:      processorClient,
		Owners:       gameOwnerRepo,
		Vault:        vaultService,
		Fees:         feeCalculator,
		Logger:       log,
	}, paysvc.Config{
		DefaultPlatformPercent: cfg.Payments.DefaultPlatformPercent,
		ClaimLeaseTTL:          cfg.Payments.ClaimLeaseTTL,
		ChargeTimeout:          cfg.Payments.ChargeTimeout,
	})
	paymentService.AttachStatusCache(redrepo.NewStatusRepo(redisClient, cfg.Redis.StatusTTL, log))

	serviceTokens := authsvc.NewServiceTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTAccessTTL)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	RegisterRoutes(r, Dependencies{
		PaymentService: paymentService,
		LedgerPoster:   ledgerPoster,
		ServiceTokens:  serviceTokens,
		Postgres:       pool,
		Logger:         log,
		Config:         cfg,
	})

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
