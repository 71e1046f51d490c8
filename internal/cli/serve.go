package cli

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

	"github.com/spf13/cobra"

	"github.com/btouchard/taskboard/internal/admin"
	"github.com/btouchard/taskboard/internal/api"
	"github.com/btouchard/taskboard/internal/auth"
	"github.com/btouchard/taskboard/internal/config"
	"github.com/btouchard/taskboard/internal/mail"
	"github.com/btouchard/taskboard/internal/notify"
	"github.com/btouchard/taskboard/internal/store"
	"github.com/btouchard/taskboard/internal/task"
	"github.com/btouchard/taskboard/internal/tunnel"
	"github.com/btouchard/taskboard/internal/user"
	"github.com/btouchard/taskboard/internal/ws"
)

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the taskboard server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			setupLogging(cfg)

			slog.Info("starting taskboard",
				"version", opts.Version,
				"host", cfg.Server.Host,
				"port", cfg.Server.Port)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			return run(ctx, cfg, opts.Version)
		},
	}
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch cfg.Server.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlers := []slog.Handler{
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}),
	}

	if cfg.Server.LogFile != "" {
		f, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			slog.Warn("failed to open log file, using stdout only", "path", cfg.Server.LogFile, "error", err)
		} else {
			handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		}
	}

	slog.SetDefault(slog.New(slog.NewMultiHandler(handlers...)))
}

// signingKey prefers the configured secret and otherwise keeps a generated
// key next to the other state files.
func signingKey(cfg *config.Config) ([]byte, error) {
	if cfg.Auth.JWTSecret != "" {
		return []byte(cfg.Auth.JWTSecret), nil
	}
	return auth.LoadOrCreateSigningKey(config.ExpandHome(cfg.Auth.KeyDir))
}

func run(ctx context.Context, cfg *config.Config, version string) error {
	// --- SQLite Store ---
	dbPath := config.ExpandHome(cfg.Database.Path)
	db, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() { _ = db.Close() }()

	slog.Info("database opened", "path", dbPath)

	// --- Credentials ---
	key, err := signingKey(cfg)
	if err != nil {
		return fmt.Errorf("loading signing key: %w", err)
	}
	tokens := auth.NewTokenManager(key, cfg.Auth.AccessTokenTTL, cfg.Auth.Issuer)
	authn := auth.NewAuthenticator(tokens, db)

	// --- Notifications ---
	registry := notify.NewRegistry()
	mcpServer := admin.NewServer(version)
	var observers []notify.Observer
	if cfg.Admin.Enabled {
		observers = append(observers, admin.NewObserver(mcpServer))
	}
	hub := notify.NewHub(registry, observers...)

	mailer := mail.New(cfg.Mail)
	if cfg.Mail.Enabled {
		slog.Info("executor emails enabled", "smtp_host", cfg.Mail.Host)
	}

	// --- Services ---
	tasks := task.NewService(db, hub, mailer)
	users := user.NewService(db, auth.NewPasswordHasher(cfg.Auth.BcryptCost), tokens, hub)

	// --- Tunnel ---
	var tun tunnel.Tunnel
	if cfg.Tunnel.Enabled {
		tun = tunnel.NewNgrok(cfg.Tunnel.AuthToken, cfg.Tunnel.Domain)
		publicURL, err := tun.Start(ctx)
		if err != nil {
			return fmt.Errorf("starting tunnel: %w", err)
		}
		defer func() { _ = tun.Close() }()

		if origins := cfg.WebSocket.AllowedOrigins; len(origins) > 0 && origins[0] != "*" {
			cfg.WebSocket.AllowedOrigins = append(origins, publicURL)
		}
	}

	deps := &api.Deps{
		Tasks:       tasks,
		Users:       users,
		Auth:        authn,
		Health:      db,
		PushChannel: ws.NewHandler(registry, authn, cfg.WebSocket),
		RateLimit:   cfg.RateLimit,
	}

	// --- Admin tools ---
	if cfg.Admin.Enabled {
		admin.RegisterTools(mcpServer, &admin.Deps{
			Directory: db,
			Presence:  registry,
			Notifier:  hub,
		})
		deps.Admin = admin.Handler(mcpServer)
	}

	// --- HTTP Server ---
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 2)
	go func() {
		slog.Info("taskboard is ready", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if tun != nil {
		go func() {
			slog.Info("serving public endpoint", "url", tun.PublicURL())
			if err := srv.Serve(tun.Listener()); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("tunnel: %w", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}
