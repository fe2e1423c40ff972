package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"nbpress/internal/app"
	"nbpress/internal/archive"
	"nbpress/internal/config"
	"nbpress/internal/contents"
	"nbpress/internal/gitrepo"
	"nbpress/internal/metrics"
	"nbpress/internal/prefs"
	"nbpress/internal/search"
	"nbpress/internal/store"
)

// backends holds what configuration enabled. Members whose configuration
// is empty stay nil.
type backends struct {
	cfg     config.Config
	logger  *slog.Logger
	service *app.Service
	search  *search.Service
	archive *archive.Bucket
	closers []func()
}

type backendOptions struct {
	metrics bool
}

func newBackends(ctx context.Context, cfg config.Config, logger *slog.Logger, opts backendOptions) (*backends, error) {
	b := &backends{cfg: cfg, logger: logger}
	deps := app.Deps{
		Contents: contents.NewClient(contents.Config{BaseURL: cfg.APIBaseURL, Logger: logger}),
		Logger:   logger,
	}

	if strings.TrimSpace(cfg.MirrorDir) != "" {
		if err := os.MkdirAll(cfg.MirrorDir, 0o755); err != nil {
			return nil, fmt.Errorf("create mirror dir: %w", err)
		}
		logger.Info("publishing to local mirror", "dir", cfg.MirrorDir)
		deps.Mirror = gitrepo.New(cfg.MirrorDir)
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		prefStore, err := prefs.NewRedisStore(cfg.RedisURL, cfg.PrefsSecret)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = prefStore.Close() })
		deps.Prefs = prefStore
	}

	var pgfts *search.PgFTS
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		b.closers = append(b.closers, func() { _ = db.Close() })
		fsys, err := store.MigrationsFS(cfg.MigrationsDir)
		if err != nil {
			b.Close()
			return nil, err
		}
		if err := store.ApplyMigrations(ctx, db, fsys); err != nil {
			b.Close()
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
		deps.History = store.NewPostgresStore(db)
		pgfts = search.NewPgFTS(db)
	}

	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
	}
	if meili != nil || pgfts != nil {
		b.search = search.NewService(meili, pgfts, logger)
		b.closers = append(b.closers, b.search.Close)
		deps.Search = b.search
	}

	if strings.TrimSpace(cfg.ArchiveEndpoint) != "" {
		bucket, err := archive.New(archive.Config{
			Endpoint:  cfg.ArchiveEndpoint,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
			Bucket:    cfg.ArchiveBucket,
			UseSSL:    cfg.ArchiveUseSSL,
			Logger:    logger,
		})
		if err != nil {
			b.Close()
			return nil, err
		}
		if err := bucket.EnsureBucket(ctx); err != nil {
			logger.Warn("archive bucket unavailable, payloads will not be archived", "error", err)
		} else {
			b.archive = bucket
			deps.Archiver = bucket
		}
	}

	if opts.metrics {
		deps.Metrics = metrics.New()
	}

	b.service = app.New(cfg, deps)
	return b, nil
}

// Close releases backends in reverse order of creation.
func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}
