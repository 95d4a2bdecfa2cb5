package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/openkraft/dsnscan/internal/adapters/outbound/cache"
	"github.com/openkraft/dsnscan/internal/adapters/outbound/config"
	"github.com/openkraft/dsnscan/internal/adapters/outbound/envfile"
	"github.com/openkraft/dsnscan/internal/adapters/outbound/projectroot"
	"github.com/openkraft/dsnscan/internal/adapters/outbound/scanner"
	"github.com/openkraft/dsnscan/internal/application"
	"github.com/openkraft/dsnscan/internal/domain"
)

func newLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// newDetectService wires the outbound adapters. A cache that cannot be
// opened only disables caching.
func newDetectService(ctx context.Context, logger *slog.Logger) (*application.DetectService, error) {
	envLoader := config.NewEnvLoader()
	settings, err := envLoader.LoadEnv()
	if err != nil {
		return nil, err
	}

	var store domain.CacheStore
	if path, err := cache.DefaultPath(settings.CacheDir); err != nil {
		logger.Debug("cache disabled", "error", err)
	} else if st, err := cache.Open(ctx, path); err != nil {
		logger.Debug("cache disabled", "path", path, "error", err)
	} else {
		store = st
	}

	return application.NewDetectService(
		projectroot.New(),
		scanner.New(),
		envfile.New(),
		envLoader,
		config.New(),
		store,
		application.WithLogger(logger),
	), nil
}

func closeQuietly(c io.Closer, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Debug("closing detect service", "error", err)
	}
}
