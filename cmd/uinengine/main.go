// Command uinengine wires the Entropy Provider, UIN Generator, Secret Store
// Adapter, Pool Store, Lifecycle Engine and Service Façade into a single
// long-running process: it applies pending migrations, schedules periodic
// stale-preassignment cleanup, and exposes a bare Prometheus /metrics
// handler (no router or middleware — those are an outer application's job).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/osia-civil/uin-engine/internal/config"
	"github.com/osia-civil/uin-engine/internal/entropy"
	internalerrors "github.com/osia-civil/uin-engine/internal/errors"
	"github.com/osia-civil/uin-engine/internal/lifecycle"
	"github.com/osia-civil/uin-engine/internal/logging"
	"github.com/osia-civil/uin-engine/internal/metrics"
	"github.com/osia-civil/uin-engine/internal/migrations"
	"github.com/osia-civil/uin-engine/internal/pool"
	"github.com/osia-civil/uin-engine/internal/secrets"
	"github.com/osia-civil/uin-engine/internal/service"
	"github.com/osia-civil/uin-engine/internal/storage"
	"github.com/osia-civil/uin-engine/internal/uin"
)

func main() {
	cfg := config.Load()
	log := logging.NewFromEnv("uinengine")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	supplier, err := buildEntropySupplier(rootCtx, cfg, log, m)
	if err != nil {
		log.WithFields(map[string]interface{}{"error": err}).Fatal("initialize entropy supplier")
	}
	defer supplier.Close()

	secretAdapter, err := buildSecretAdapter(rootCtx, cfg)
	if err != nil {
		log.WithFields(map[string]interface{}{"error": err}).Fatal("initialize secret store adapter")
	}

	gen := uin.NewGenerator(supplier, func(ctx context.Context, sector string) ([]byte, error) {
		return secretAdapter.Get(ctx, sector)
	})

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}
	db, err := storage.Open(rootCtx, dsn, storage.PoolOptions{
		Min:              cfg.PoolMin,
		Max:              cfg.PoolMax,
		AcquireTimeoutMS: cfg.AcquireTimeoutMS,
		IdleTimeoutMS:    cfg.IdleTimeoutMS,
	})
	if err != nil {
		log.WithFields(map[string]interface{}{"error": err}).Fatal("connect to postgres")
	}
	defer db.Close()

	if err := migrations.Apply(db); err != nil {
		log.WithFields(map[string]interface{}{"error": err}).Fatal("apply migrations")
	}

	store := pool.NewPostgresStore(db)
	engine := lifecycle.New(store, log, m)
	facade := service.New(gen, engine, log, m, nil)

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", cfg.StaleCleanupInterval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		released, err := facade.CleanupStale(ctx, cfg.StaleCleanupThreshold)
		if err != nil {
			log.WithFields(map[string]interface{}{"error": err}).Warn("cleanup_stale run failed")
			return
		}
		if len(released) > 0 {
			log.WithFields(map[string]interface{}{"released": len(released)}).Info("cleanup_stale released rows")
		}
	}); err != nil {
		log.WithFields(map[string]interface{}{"error": err}).Fatal("schedule cleanup_stale")
	}
	c.Start()
	defer c.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := config.GetEnv("METRICS_ADDR", ":9090")
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.WithFields(map[string]interface{}{"addr": addr}).Info("metrics listener starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithFields(map[string]interface{}{"error": err}).Fatal("metrics listener failed")
		}
	}()

	<-rootCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithFields(map[string]interface{}{"error": err}).Warn("metrics listener shutdown")
	}
}

func buildEntropySupplier(ctx context.Context, cfg config.EngineConfig, logger *logging.Logger, m *metrics.Metrics) (*entropy.Supplier, error) {
	var cloudResolver entropy.CredentialResolver
	if cfg.HSMPin != "" {
		cloudResolver = func(ctx context.Context) error { return nil }
	}
	candidates := entropy.DefaultCandidates(cfg.HSMProvider, cloudResolver)
	onFallback := func(reason error) {
		logger.WithFields(map[string]interface{}{"reason": reason}).Warn("entropy provider fell back to software csprng")
		m.RecordEntropyFallback(cfg.HSMProvider, "software-csprng")
	}
	return entropy.NewSupplier(ctx, candidates, onFallback)
}

func buildSecretAdapter(ctx context.Context, cfg config.EngineConfig) (*secrets.Adapter, error) {
	local := secrets.NewLocalBackend(localSectorSecrets(cfg))

	var remote secrets.Backend
	if cfg.SecretManagerAddress != "" {
		rb, err := secrets.NewRemoteBackend(secrets.RemoteConfig{
			Address:      cfg.SecretManagerAddress,
			Token:        cfg.SecretManagerToken,
			TenantID:     cfg.SecretManagerTenantID,
			ClientID:     cfg.SecretManagerRoleID,
			ClientSecret: cfg.SecretManagerSecret,
			Namespace:    cfg.Namespace,
			MountPath:    cfg.MountPath,
			Timeout:      cfg.SecretManagerTimeout,
		})
		if err != nil {
			return nil, internalerrors.Configuration("secrets: build remote backend", err)
		}
		remote = rb
	}

	return secrets.New(ctx, secrets.Config{Remote: remote, Local: local, TTL: cfg.SecretCacheTTL})
}

func localSectorSecrets(cfg config.EngineConfig) map[string][]byte {
	out := make(map[string][]byte, len(cfg.SupportedSectors))
	for _, sector := range cfg.SupportedSectors {
		if v := os.Getenv("SECTOR_SECRET_" + sector); v != "" {
			out[sector] = []byte(v)
		}
	}
	return out
}
