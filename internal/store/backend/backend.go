// Package backend opens the store selected by STORE_BACKEND.
package backend

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"github.com/sirupsen/logrus"

	"github.com/Liunai/pallavolo/internal/config"
	"github.com/Liunai/pallavolo/internal/store"
	"github.com/Liunai/pallavolo/internal/store/fsstore"
	"github.com/Liunai/pallavolo/internal/store/memstore"
	"github.com/Liunai/pallavolo/internal/store/postgres"
)

// FirebaseApp returns nil when Firebase is neither configured nor needed by
// the store.
func FirebaseApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*firebase.App, error) {
	if cfg.StoreBackend != config.BackendFirestore && cfg.FirebaseProjectID == "" && cfg.GoogleApplicationCredentials == "" {
		return nil, nil
	}
	return fsstore.NewApp(ctx, cfg.FirebaseProjectID, cfg.GoogleApplicationCredentials, logger)
}

// Open connects to the configured backend. app may be nil unless the
// backend is Firestore.
func Open(ctx context.Context, cfg *config.Config, app *firebase.App, logger *logrus.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pg, err := postgres.Connect(ctx, cfg.PostgresURL(), logger)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case config.BackendFirestore:
		if app == nil {
			return nil, fmt.Errorf("firestore backend needs a firebase app")
		}
		fs, err := fsstore.Open(ctx, app, logger)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case config.BackendMemory:
		logger.Warn("using in-memory store, data is lost on restart")
		return memstore.New(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
