package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"git.sr.ht/~jakintosh/codeflow/internal/api"
	"git.sr.ht/~jakintosh/codeflow/internal/config"
	"git.sr.ht/~jakintosh/codeflow/internal/database"
	"git.sr.ht/~jakintosh/codeflow/internal/instrumentation"
	"git.sr.ht/~jakintosh/codeflow/internal/logging"
	"git.sr.ht/~jakintosh/codeflow/internal/resources"
	"git.sr.ht/~jakintosh/codeflow/internal/security"
	"git.sr.ht/~jakintosh/codeflow/internal/service"
	"git.sr.ht/~jakintosh/codeflow/internal/session"
	"git.sr.ht/~jakintosh/codeflow/internal/tokens"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the authorization server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.FromStrings(cfg.Log.Format, cfg.Log.Level, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := inst.Shutdown(sctx); err != nil {
			logger.Error("telemetry shutdown", "error", err)
		}
	}()

	store, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("database opened", "driver", store.Driver())

	minter, err := newMinter(cfg.Token, logger)
	if err != nil {
		return err
	}

	svc := service.New(service.Options{
		Minter:           minter,
		Clients:          store.ClientRegistry(),
		Accounts:         store.AccountStore(),
		Exchanges:        store.ExchangeStore(),
		ResponseTypes:    cfg.ResponseTypes,
		ChallengeMethods: cfg.ChallengeMethods,
		GrantTypes:       cfg.GrantTypes,
		CodeTTL:          cfg.CodeTTL,
		StoreTimeout:     cfg.StoreTimeout,
		PasswordMode:     service.PasswordModeProduction,
		Logger:           logger,
		Instrumentation:  inst,
	})

	if cfg.Seed {
		if err := svc.Seed(ctx); err != nil {
			return fmt.Errorf("failed to install seeds: %w", err)
		}
	}

	if cfg.ClientsDir != "" {
		catalog := resources.NewClientCatalog(cfg.ClientsDir, svc, logger)
		if _, err := catalog.Load(ctx); err != nil {
			logger.Warn("client catalog", "error", err)
		}
		if err := catalog.Watch(ctx); err != nil {
			return err
		}
	}

	templates, err := resources.NewTemplates(cfg.TemplatesDir, logger)
	if err != nil {
		return err
	}
	if err := templates.Watch(ctx); err != nil {
		return err
	}

	sessions := session.NewManager(session.Options{
		Store:        store.SessionStore(),
		TTL:          cfg.Session.TTL,
		CookieName:   cfg.Session.CookieName,
		CookiePath:   cfg.BasePath,
		SecureCookie: cfg.Session.SecureCookie,
		Timeout:      cfg.StoreTimeout,
		Logger:       logger,
	})

	var limiter *security.RateLimiter
	if cfg.RateLimit.RPS > 0 {
		limiter = security.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, logger)
		go limiter.Run(ctx)
	}

	go purgeLoop(ctx, cfg.PurgeInterval, svc, sessions, logger)

	a := api.New(api.Options{
		Service:         svc,
		Sessions:        sessions,
		Templates:       templates,
		BasePath:        cfg.BasePath,
		TrustProxy:      cfg.TrustProxy,
		RateLimiter:     limiter,
		Logger:          logger,
		Instrumentation: inst,
	})

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			"addr", cfg.ListenAddr,
			"base_path", cfg.BasePath,
			"tls", cfg.TLS.Enabled(),
			"trust_proxy", cfg.TrustProxy,
		)
		if cfg.TLS.Enabled() {
			errCh <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			errCh <- server.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(sctx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// newMinter builds the token minter selected by cfg.
func newMinter(cfg config.TokenConfig, logger *slog.Logger) (service.Minter, error) {
	if cfg.Format != config.TokenFormatJWT {
		return service.OpaqueMinter{Lifetime: cfg.Lifetime}, nil
	}

	var key *ecdsa.PrivateKey
	var err error
	if cfg.SigningKeyFile != "" {
		key, err = tokens.LoadSigningKey(cfg.SigningKeyFile)
	} else {
		logger.Warn("no token signing key configured; tokens will not verify after a restart")
		key, err = tokens.GenerateSigningKey()
	}
	if err != nil {
		return nil, err
	}

	return tokens.NewJWTMinter(tokens.Options{
		SigningKey: key,
		Issuer:     cfg.Issuer,
		Lifetime:   cfg.Lifetime,
	})
}

// purgeLoop deletes expired exchanges and sessions every interval until ctx
// is done.
func purgeLoop(
	ctx context.Context,
	interval time.Duration,
	svc *service.Service,
	sessions *session.Manager,
	logger *slog.Logger,
) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			purge(ctx, svc, sessions, logger)
		case <-ctx.Done():
			return
		}
	}
}

func purge(
	ctx context.Context,
	svc *service.Service,
	sessions *session.Manager,
	logger *slog.Logger,
) {
	exchanges, err := svc.PurgeExpired(ctx)
	if err != nil {
		logger.Error("failed to purge exchanges", "error", err)
	}
	expired, err := sessions.PurgeExpired(ctx)
	if err != nil {
		logger.Error("failed to purge sessions", "error", err)
	}
	if exchanges > 0 || expired > 0 {
		logger.Debug("purged expired records", "exchanges", exchanges, "sessions", expired)
	}
}
