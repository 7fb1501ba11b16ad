package cmd

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

	app "logi-track/internal"
	"logi-track/internal/access"
	"logi-track/internal/blobstore"
	"logi-track/internal/config"
	"logi-track/internal/email"
	"logi-track/internal/jwt"
	"logi-track/internal/nonce"
	"logi-track/internal/routes"
	"logi-track/internal/storage"
	"logi-track/internal/tms"
	"logi-track/internal/utils"
)

const shutdownTimeout = 15 * time.Second

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the portal API server",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		slog.Info("Starting logi-track server", "version", utils.GetVersion(), "listen", cfg.Listen)
		if err := ServerMain(ctx, cfg, provider); err != nil {
			slog.Error("Server stopped with error", "error", err)
			os.Exit(1)
		}
	},
}

func LoadAccessRBAC(cfg *config.Config) (*access.RBAC, error) {
	rbac, err := access.LoadRBAC(cfg.RBAC.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load RBAC policy %q: %w", cfg.RBAC.PolicyFile, err)
	}
	return rbac, nil
}

// promoteAdmins gives the admin role to the configured accounts.
func promoteAdmins(ctx context.Context, cfg *config.Config, provider storage.Provider) {
	for _, address := range cfg.RBAC.Admins {
		address = access.NormalizeEmail(address)
		if address == "" {
			continue
		}
		user, err := provider.GetUserByEmail(ctx, address)
		if errors.Is(err, storage.ErrNotFound) {
			slog.Warn("Configured admin has no account", "email", address)
			continue
		} else if err != nil {
			slog.Error("Failed to look up configured admin", "email", address, "error", err)
			continue
		}
		if user.Role == storage.RoleAdmin {
			continue
		}
		if err := provider.UpdateUserRole(ctx, user.ID, storage.RoleAdmin); err != nil {
			slog.Error("Failed to promote admin", "email", address, "error", err)
			continue
		}
		slog.Info("Promoted configured admin", "email", address)
	}
}

func newDispatcher(cfg *config.Config) *email.Dispatcher {
	mailer, err := email.NewSMTPMailer(cfg.Email)
	if errors.Is(err, email.ErrNotConfigured) {
		slog.Warn("Email delivery is not configured; access approvals will fail")
		return email.NewDispatcher(nil)
	} else if err != nil {
		slog.Error("Failed to configure email delivery", "error", err)
		return email.NewDispatcher(nil)
	}
	return email.NewDispatcher(mailer)
}

// NewEnv wires the collaborators shared by the HTTP server and the CLI.
func NewEnv(ctx context.Context, cfg *config.Config, provider storage.Provider) (*routes.Env, func(), error) {
	if cfg.Secret == "" {
		return nil, nil, errors.New("secret must be set")
	}

	rbac, err := LoadAccessRBAC(cfg)
	if err != nil {
		return nil, nil, err
	}

	nonces, err := nonce.NewStore(ctx, cfg, provider)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create nonce store: %w", err)
	}

	blobs, err := blobstore.New(ctx, &cfg.Documents)
	if err != nil {
		nonces.Close()
		return nil, nil, fmt.Errorf("failed to create document store: %w", err)
	}

	env := &routes.Env{
		Config:     cfg,
		Storage:    provider,
		Guard:      access.NewGuard(rbac),
		Tokens:     jwt.NewIssuer(cfg.Secret, nonces),
		Dispatcher: newDispatcher(cfg),
		Blobs:      blobs,
		TMS:        tms.NewService(cfg.TMS, provider),
	}
	cleanup := func() {
		if err := nonces.Close(); err != nil {
			slog.Warn("Failed to close nonce store", "error", err)
		}
	}
	return env, cleanup, nil
}

func ServerMain(ctx context.Context, cfg *config.Config, provider storage.Provider) error {
	if cfg == nil {
		panic("Config not initialized.")
	}
	if provider == nil {
		return errors.New("storage provider is nil")
	}

	env, cleanup, err := NewEnv(ctx, cfg, provider)
	if err != nil {
		return err
	}
	defer cleanup()

	promoteAdmins(ctx, cfg, provider)

	if cfg.TMS.SyncSchedule != "" {
		scheduler, err := tms.NewScheduler(env.TMS, cfg.TMS.SyncSchedule)
		if err != nil {
			return fmt.Errorf("invalid tms.sync_schedule: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           app.HTTPServer(env),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		slog.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
