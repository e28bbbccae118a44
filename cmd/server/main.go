package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/zehem/internal/accounts"
	"github.com/mmynk/zehem/internal/auth"
	"github.com/mmynk/zehem/internal/config"
	"github.com/mmynk/zehem/internal/directory"
	"github.com/mmynk/zehem/internal/ledger"
	"github.com/mmynk/zehem/internal/messagelog"
	"github.com/mmynk/zehem/internal/metrics"
	"github.com/mmynk/zehem/internal/middleware"
	"github.com/mmynk/zehem/internal/notify"
	"github.com/mmynk/zehem/internal/realtime"
	"github.com/mmynk/zehem/internal/realtime/nsqrelay"
	"github.com/mmynk/zehem/internal/rpc"
	"github.com/mmynk/zehem/internal/service"
	"github.com/mmynk/zehem/internal/storage"
	"github.com/mmynk/zehem/internal/storage/postgres"
	"github.com/mmynk/zehem/internal/storage/sqlite"
	"github.com/mmynk/zehem/internal/transport/ws"
	"github.com/mmynk/zehem/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	if err := logging.Setup(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		slog.Error("Failed to configure logging", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	broker := realtime.NewBroker()

	store, err := openStore(ctx, cfg, broker)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()
	slog.Info("Storage initialized", "driver", cfg.DBDriver)

	if cfg.NSQDAddr != "" {
		relay, err := nsqrelay.Start(broker, nsqrelay.Options{
			NSQDAddr:     cfg.NSQDAddr,
			LookupdAddrs: cfg.NSQLookupAddrs,
			Topic:        cfg.NSQTopic,
		})
		if err != nil {
			return fmt.Errorf("failed to start relay: %w", err)
		}
		defer relay.Stop()
		slog.Info("Relay started", "nsqd", cfg.NSQDAddr, "topic", cfg.NSQTopic)
	}

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTDuration)

	accts := accounts.New(store)
	dir := directory.New(store, cfg.AdminCap)
	l := ledger.New(store)
	msgLog := messagelog.New(store)
	tracker := notify.New(store)

	// Interceptors run outermost first, so logging sees the authenticated caller.
	interceptors := connect.WithInterceptors(
		middleware.MetricsInterceptor(),
		middleware.RequireAuth(jwtManager),
		middleware.LoggingInterceptor(),
	)

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Connect-Protocol-Version", "Connect-Timeout-Ms"},
		ExposedHeaders:   []string{"Connect-Protocol-Version", "Connect-Timeout-Ms"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(loggingMiddleware)

	// Register Connect services
	r.Mount(rpc.NewAccountServiceHandler(service.NewAccountService(accts), interceptors))
	r.Mount(rpc.NewWalletServiceHandler(service.NewWalletService(l), interceptors))
	r.Mount(rpc.NewGroupServiceHandler(service.NewGroupService(dir, l), interceptors))
	r.Mount(rpc.NewMessageServiceHandler(service.NewMessageService(msgLog, tracker, dir, accts), interceptors))

	r.Route("/ws", ws.NewHandlers(jwtManager, dir, msgLog, tracker, l, cfg.AllowedOrigins).SetupRoutes)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h2c.NewHandler(r, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Connect server starting", "address", srv.Addr, "url", fmt.Sprintf("http://localhost%s", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(ctx context.Context, cfg *config.Config, broker *realtime.Broker) (storage.Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		return postgres.Open(ctx, cfg.DBDSN, broker)
	default:
		return sqlite.New(cfg.DBPath, broker)
	}
}

// loggingMiddleware logs all incoming requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		slog.Debug("Request received",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)

		next.ServeHTTP(w, r)

		slog.Debug("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
