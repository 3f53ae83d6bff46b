package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"xsync-go/internal/auth"
	"xsync-go/internal/cache"
	"xsync-go/internal/config"
	"xsync-go/internal/database"
	"xsync-go/internal/hasher"
	"xsync-go/internal/objectstore"
	"xsync-go/internal/server"
	"xsync-go/internal/workerpool"
	"xsync-go/internal/xsync"
)

// ServerApp is the application layer of xsyncd.
type ServerApp struct {
	cfg      *config.ServerConfig
	registry *database.SQLiteRegistry
	store    xsync.ObjectStore
	cache    xsync.MetadataCache
	pool     *workerpool.Pool
	metrics  *server.Metrics
	depot    *xsync.ChunkDepot
	tokens   *auth.TokenIssuer
	logger   xsync.Logger
	logFile  *os.File
}

// NewServerApp wires every server component from cfg. The database
// schema must be current; run Migrate first. The caller must call Close.
func NewServerApp(ctx context.Context, cfg *config.ServerConfig) (*ServerApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", xsync.ErrConfiguration, err)
	}
	alg, err := hasher.Parse(cfg.HashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", xsync.ErrConfiguration, err)
	}
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL.Std(), xsync.RealClock{})
	if err != nil {
		return nil, err
	}

	a := &ServerApp{cfg: cfg, tokens: tokens, metrics: server.NewMetrics()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	l, logFile, err := newLogger(LogOptions{Dir: cfg.LogDir, Name: "xsyncd", FileLevel: level, StderrLevel: level})
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a.logFile = logFile
	a.logger = &slogAdapter{l: l}

	if a.registry, err = database.NewRegistryFromConfig(cfg.Database); err != nil {
		return nil, fmt.Errorf("opening registry: %w", err)
	}
	if err := a.registry.CheckMigrations(); err != nil {
		return nil, fmt.Errorf("database schema out of date, run `xsyncd migrate`: %w", err)
	}
	if a.store, err = objectstore.NewObjectStoreFromConfig(ctx, cfg.ObjectStore); err != nil {
		return nil, fmt.Errorf("creating object store: %w", err)
	}
	if err := a.store.ValidateSetup(ctx); err != nil {
		return nil, fmt.Errorf("%w: object store: %w", xsync.ErrConfiguration, err)
	}
	if a.cache, err = cache.NewCacheFromConfig(cfg.Cache, xsync.RealClock{}); err != nil {
		return nil, fmt.Errorf("creating metadata cache: %w", err)
	}

	a.pool = workerpool.New(cfg.Pool.Workers, cfg.Pool.QueueSize)
	a.depot = xsync.NewChunkDepot(a.registry, a.store, a.cache, a.pool, a.logger, a.metrics, xsync.DepotConfig{
		Algorithm:   alg,
		CacheTTL:    cfg.Cache.TTL.Std(),
		UploadRate:  cfg.RateLimit.UploadRate,
		FetchRate:   cfg.RateLimit.FetchRate,
		GCBatchSize: cfg.GC.BatchSize,
	})
	ok = true
	return a, nil
}

// Handler returns the HTTP API.
func (a *ServerApp) Handler() http.Handler {
	return server.New(a.depot, a.registry, a.tokens, a.metrics, a.logger,
		server.WithHealthCheck(a.registry.Ping))
}

// Serve listens on the configured address and runs periodic garbage
// collection until ctx is cancelled, then shuts down gracefully.
func (a *ServerApp) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
	}
	gcDone := make(chan struct{})
	go func() {
		defer close(gcDone)
		RunGC(ctx, a.depot, a.cfg.GC.Interval.Std(), a.logger)
	}()

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", a.cfg.ListenAddr)
		errc <- srv.ListenAndServe()
	}()

	var err error
	select {
	case err = <-errc:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
		if serveErr := <-errc; !errors.Is(serveErr, http.ErrServerClosed) && err == nil {
			err = serveErr
		}
	}
	<-gcDone
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	return err
}

// CollectGarbage runs one garbage collection pass.
func (a *ServerApp) CollectGarbage(ctx context.Context) (xsync.GCReport, error) {
	return a.depot.CollectGarbage(ctx)
}

// Stats reports the number of registered chunks and their total size.
func (a *ServerApp) Stats(ctx context.Context) (chunks, bytes int64, err error) {
	return a.registry.Stats(ctx)
}

// AddUser creates an account directly in the registry.
func (a *ServerApp) AddUser(ctx context.Context, email, password string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", xsync.ErrValidation)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	return a.registry.CreateUser(ctx, email, hash)
}

// Close releases everything NewServerApp opened.
func (a *ServerApp) Close() error {
	var errs []error
	if a.pool != nil {
		a.pool.Close()
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.registry != nil {
		errs = append(errs, a.registry.Close())
	}
	if a.logFile != nil {
		errs = append(errs, a.logFile.Close())
	}
	return errors.Join(errs...)
}

// Migrate applies pending schema migrations to the configured database.
func Migrate(cfg *config.ServerConfig) error {
	r, err := database.NewRegistryFromConfig(cfg.Database)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.Migrate()
}

// BackupDatabase writes a consistent snapshot of the registry to dest.
func BackupDatabase(cfg *config.ServerConfig, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("%s already exists", dest)
	}
	r, err := database.NewRegistryFromConfig(cfg.Database)
	if err != nil {
		return err
	}
	defer r.Close()
	return r.BackupTo(dest)
}
