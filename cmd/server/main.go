// cmd/server/main.go
package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/Liunai/pallavolo/internal/auth"
	"github.com/Liunai/pallavolo/internal/config"
	"github.com/Liunai/pallavolo/internal/handlers"
	"github.com/Liunai/pallavolo/internal/lifecycle"
	"github.com/Liunai/pallavolo/internal/metrics"
	"github.com/Liunai/pallavolo/internal/middleware"
	"github.com/Liunai/pallavolo/internal/notify"
	"github.com/Liunai/pallavolo/internal/roster"
	"github.com/Liunai/pallavolo/internal/stats"
	"github.com/Liunai/pallavolo/internal/store/backend"
	"github.com/Liunai/pallavolo/internal/users"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	if cfg.IsProduction() {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
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

	var verifier auth.Verifier = auth.DisabledVerifier{}
	if app != nil {
		client, err := app.Auth(ctx)
		if err != nil {
			logger.Warnf("firebase auth unavailable, logins disabled: %v", err)
		} else {
			verifier = auth.NewFirebaseVerifier(client)
		}
	}

	ttl, err := auth.ParseTokenExpireTime(cfg.TokenExpireTime)
	if err != nil {
		logger.Fatalf("invalid TOKEN_EXPIRE_TIME: %v", err)
	}
	var sessions *auth.Sessions
	if cfg.AuthPrivateKeyPath != "" {
		sessions, err = auth.LoadSessions(cfg.AuthPrivateKeyPath, cfg.AuthPublicKeyPath, ttl)
	} else {
		logger.Warn("no signing keys configured, generating ephemeral session keys")
		sessions, err = auth.NewSessions(ttl)
	}
	if err != nil {
		logger.Fatalf("failed to init session keys: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	hub := notify.NewHub(logger)
	var publisher notify.Publisher = hub
	if cfg.RedisAddr != "" {
		rdb, err := notify.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Fatalf("failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		bridge := notify.NewRedisBridge(rdb, hub, cfg.RedisChannelPrefix, logger)
		go bridge.Serve(ctx)
		publisher = bridge
	}

	policy := roster.Policy{Capacity: cfg.MaxParticipants, GuestLimit: cfg.MaxGuestsPerUser}
	api := &handlers.APIServer{
		Roster:           roster.NewEngine(st, publisher, policy, m, logger),
		Lifecycle:        lifecycle.NewManager(st, publisher, m, logger),
		Stats:            stats.NewAggregator(st, logger),
		Users:            users.NewService(st, cfg.SuperAdminEmail, logger),
		Sessions:         sessions,
		Verifier:         verifier,
		Hub:              hub,
		Metrics:          m,
		Logger:           logger,
		SecureCookies:    cfg.IsProduction(),
		WSOriginPatterns: cfg.Origins(),
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.Heartbeat("/ping"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Origins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.LogMiddleware(logger, m))
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Mount("/", api.Routes())

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s (store=%s)", server.Addr, cfg.StoreBackend)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		logger.Errorf("failed to serve: %v", err)
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("shutdown: %v", err)
	}
}
