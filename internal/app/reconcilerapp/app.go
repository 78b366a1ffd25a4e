package reconcilerapp

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"

	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/config"
	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/infra/processor"
	s3infra "github.com/YOLOVibeCode/fieldview-live-sub002/internal/infra/s3"
	"github.com/YOLOVibeCode/fieldview-live-sub002/internal/jobs/reconcile"
	pgrepo "github.com/YOLOVibeCode/fieldview-live-sub002/internal/repo/postgres"
	entsvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/entitlements"
	ledgersvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/ledger"
	vaultsvc "github.com/YOLOVibeCode/fieldview-live-sub002/internal/services/vault"
)

// App runs the reconcile sweep on an interval. It shares no process state
// with the api server; both lean on the database claim protocol.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	postgres *pgxpool.Pool
	s3       *minio.Client
	job      *reconcile.Job
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("init postgres for reconciler: %w", err)
	}

	purchaseRepo := pgrepo.NewPurchaseRepo(pool)
	ledgerRepo := pgrepo.NewLedgerRepo(pool)
	entitlementRepo := pgrepo.NewEntitlementRepo(pool)
	credentialRepo := pgrepo.NewCredentialRepo(pool)
	gameOwnerRepo := pgrepo.NewGameOwnerRepo(pool)

	vaultService, err := vaultsvc.NewService(credentialRepo, cfg.Vault.Key)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init credential vault: %w", err)
	}

	job := reconcile.New(reconcile.Dependencies{
		Purchases:    purchaseRepo,
		Ledger:       ledgersvc.NewPoster(purchaseRepo, ledgerRepo),
		Entitlements: entsvc.NewService(entitlementRepo),
		Gateway:      processor.NewClient(cfg.Processor.BaseURL, cfg.Processor.Timeout),
		Owners:       gameOwnerRepo,
		Vault:        vaultService,
	}, cfg.Reconcile.StuckAfter, cfg.Reconcile.BatchLimit, logger)

	var s3Client *minio.Client
	if c, err := s3infra.NewClient(s3infra.Config{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Region:    cfg.S3.Region,
		UseSSL:    cfg.S3.UseSSL,
	}); err != nil {
		logger.Warn("s3 init failed, reconcile reports disabled", zap.Error(err))
	} else {
		s3Client = c
		job.AttachReportStore(reconcile.NewReportStore(s3Client, cfg.S3.Bucket))
	}

	return &App{
		cfg:      cfg,
		logger:   logger,
		postgres: pool,
		s3:       s3Client,
		job:      job,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("reconciler started", zap.Duration("interval", a.interval()))

	if err := a.job.Run(ctx); err != nil {
		a.logger.Error("reconcile sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(a.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("reconciler stopped")
			return nil
		case <-ticker.C:
			if err := a.job.Run(ctx); err != nil {
				a.logger.Error("reconcile sweep failed", zap.Error(err))
			}
		}
	}
}

func (a *App) Close() {
	if a.postgres != nil {
		a.postgres.Close()
	}
}

func (a *App) interval() time.Duration {
	if a.cfg.Reconcile.Interval > 0 {
		return a.cfg.Reconcile.Interval
	}
	return 5 * time.Minute
}
