package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geomatch-cli/internal/config"
	"github.com/sells-group/geomatch-cli/internal/fetch"
	"github.com/sells-group/geomatch-cli/internal/store"
	"github.com/sells-group/geomatch-cli/pkg/geocode"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "geomatch",
	Short: "Geocode and merge tabular address datasets",
	Long:  "Fetches coordinates for CSV address files via the Google Geocoding API, then links records across files by proximity with fuzzy tie-breaking.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// newFetcher builds the fetch pipeline from config: geocode client, optional
// SQLite cache, concurrency cap. The returned closer releases the cache.
func newFetcher(ctx context.Context) (*fetch.Fetcher, func()) {
	var cache *store.Store
	if cfg.Fetch.CachePath != "" {
		s, err := store.Open(cfg.Fetch.CachePath)
		if err != nil {
			zap.L().Warn("geocode cache unavailable, fetching without cache", zap.Error(err))
		} else if err := s.Migrate(ctx); err != nil {
			zap.L().Warn("geocode cache migration failed, fetching without cache", zap.Error(err))
			_ = s.Close()
		} else {
			cache = s
		}
	}

	client := geocode.NewClient(cfg.Google.APIKey, geocode.WithRateLimit(cfg.Fetch.RateLimit))
	f := fetch.New(client, cache, cfg.Fetch.MaxConcurrency)

	return f, func() {
		if cache != nil {
			_ = cache.Close()
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
