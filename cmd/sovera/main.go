package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nexiath/sovera/internal/engine"
	"github.com/nexiath/sovera/internal/permissions"
	"github.com/nexiath/sovera/internal/provisioning"
	"github.com/nexiath/sovera/internal/ratelimit"
	"github.com/nexiath/sovera/internal/realtime"
	"github.com/nexiath/sovera/internal/rows"
	"github.com/nexiath/sovera/internal/schema"
	"github.com/nexiath/sovera/internal/store"
	"github.com/nexiath/sovera/internal/tenantdb"
	"github.com/nexiath/sovera/pkg/config"
	"github.com/nexiath/sovera/pkg/database"
	"github.com/nexiath/sovera/pkg/health"
	"github.com/nexiath/sovera/pkg/logger"
)

var version = "dev"

func main() {
	var port = flag.Int("port", 0, "HTTP port (overrides SOVERA_PORT)")
	flag.Parse()

	cfg := config.LoadFromEnv()
	log := logger.New("sovera", version)

	if err := run(cfg, log, *port); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run(cfg *config.Config, log *logger.Logger, portOverride int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for key, value := range cfg.Redacted() {
		log.Debugf("Config %s=%s", key, value)
	}

	secret := cfg.Get("auth.secret")
	if secret == "" {
		return fmt.Errorf("auth.secret (SECRET_KEY) is required")
	}

	// Platform database
	pgCfg := database.FromGlobalConfig(cfg)
	platform, err := database.New(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to platform database: %w", err)
	}
	defer platform.Close()
	log.Infof("Connected to platform database %s", pgCfg.Database)

	platformStore := store.New(platform.Pool())
	if err := platformStore.EnsureSchema(ctx); err != nil {
		return err
	}

	// Object storage
	storage, err := minio.New(cfg.Get("minio.endpoint"), &minio.Options{
		Creds: credentials.NewStaticV4(
			cfg.Get("minio.access_key"), cfg.Get("minio.secret_key"), ""),
		Secure: false,
	})
	if err != nil {
		return fmt.Errorf("failed to create object storage client: %w", err)
	}

	// Redis for rate accounting. The limiter degrades open, so a missing
	// redis only loses quota enforcement.
	var redisDB *database.Redis
	if redisDB, err = database.NewRedis(ctx, database.RedisFromGlobalConfig(cfg)); err != nil {
		log.Warnf("Redis unavailable, rate limiting disabled: %v", err)
		redisDB = nil
	} else {
		defer redisDB.Close()
	}

	// Domain components
	tenants := tenantdb.NewRegistry(pgCfg, log)
	defer tenants.Close()

	provisioner := provisioning.New(platform.Pool(), storage, tenants, log)
	catalog := schema.NewEngine(tenants, log)
	hub := realtime.NewHub(log)
	listener := realtime.NewListener(platform.Pool(), hub, log)
	sink := realtime.NewNotifySink(platform.Pool())
	rowAccess := rows.New(tenants, catalog, sink, log)
	perms := permissions.NewEngine(platformStore)

	var limiter *ratelimit.Limiter
	if redisDB != nil {
		limiter = ratelimit.New(redisDB.Client(), log)
	} else {
		limiter = ratelimit.New(nil, log)
	}

	checker := health.NewChecker()
	healthCtx, stopHealth := context.WithCancel(context.Background())
	defer stopHealth()
	go runHealthChecks(healthCtx, checker, platform, redisDB, storage, tenants)

	api := engine.New(engine.Config{
		Logger:      log,
		Store:       platformStore,
		Permissions: perms,
		Provisioner: provisioner,
		Catalog:     catalog,
		RowAccess:   rowAccess,
		Hub:         hub,
		Limiter:     limiter,
		Auth:        engine.NewAuthenticator(secret),
		Health:      checker,
	})

	port := portOverride
	if port == 0 {
		port, err = strconv.Atoi(cfg.Get("server.port"))
		if err != nil {
			port = 8000
		}
	}
	server := engine.NewServer(api, port)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infof("Received signal %v, shutting down", sig)
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Errorf("HTTP shutdown failed: %v", err)
	}
	listener.Stop()
	hub.CloseAll()
	log.Info("Shutdown complete")
	return nil
}

// runHealthChecks refreshes liveness checks on a fixed interval.
func runHealthChecks(ctx context.Context, checker *health.Checker, platform *database.PostgreSQL,
	redisDB *database.Redis, storage *minio.Client, tenants *tenantdb.Registry) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	check := func() {
		checker.RunCheck("postgres", func() error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return platform.Pool().Ping(pingCtx)
		})
		checker.RunCheck("minio", func() error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			_, err := storage.ListBuckets(pingCtx)
			return err
		})
		checker.RunCheck("tenant_pools", func() error {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return tenants.Ping(pingCtx)
		})
		if redisDB != nil {
			checker.RunCheck("redis", func() error {
				pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				defer cancel()
				return redisDB.Ping(pingCtx)
			})
		}
	}

	check()
	for {
		select {
		case <-ticker.C:
			check()
		case <-ctx.Done():
			return
		}
	}
}
