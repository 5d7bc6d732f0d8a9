// Package store parses store command flags and runs the event store
// service.
package store

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	entrypoint "github.com/louisbranch/daylists/internal/platform/cmd"
	"github.com/louisbranch/daylists/internal/server"
	"github.com/louisbranch/daylists/internal/storage/sqlite"
)

const shutdownTimeout = 5 * time.Second

// Config holds store command configuration.
type Config struct {
	Addr   string `env:"DAYLISTS_STORE_ADDR" envDefault:":8080"`
	DBPath string `env:"DAYLISTS_STORE_DB" envDefault:"daylists.db"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The store service listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the events database file")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the event store service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceStore, func(ctx context.Context) error {
		eventStore, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open event store: %w", err)
		}
		defer func() {
			if err := eventStore.Close(); err != nil {
				log.Printf("close event store: %v", err)
			}
		}()

		httpServer := &http.Server{
			Addr:    cfg.Addr,
			Handler: server.New(eventStore).Router(),
		}

		errCh := make(chan error, 1)
		go func() {
			log.Printf("store service listening on %s", cfg.Addr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
}
