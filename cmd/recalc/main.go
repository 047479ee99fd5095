// cmd/recalc rebuilds every user's attendance counters from the archived
// sessions. It runs against the same store the server is configured with.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/Liunai/pallavolo/internal/config"
	"github.com/Liunai/pallavolo/internal/stats"
	"github.com/Liunai/pallavolo/internal/store/backend"
)

type Flags struct {
	verbose bool
}

func main() {
	var flags Flags
	for _, arg := range os.Args[1:] {
		if arg == "-v" {
			flags.verbose = true
		}
	}

	logger := logrus.New()
	if flags.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if cfg.StoreBackend == config.BackendMemory {
		logger.Fatal("recalc needs a persistent STORE_BACKEND")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app, err := backend.FirebaseApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("failed to init firebase: %v", err)
	}
	st, err := backend.Open(ctx, cfg, app, logger)
	if err != nil {
		logger.Fatalf("failed to open %s store: %v", cfg.StoreBackend, err)
	}
	if c, ok := st.(io.Closer); ok {
		defer c.Close()
	}

	rep, err := stats.NewAggregator(st, logger).RecalculateAll(ctx)
	if err != nil {
		logger.Fatalf("recalculation failed: %v", err)
	}
	logger.WithFields(logrus.Fields{
		"sessions": rep.Sessions,
		"users":    rep.Users,
	}).Info("stats recalculated")
}
