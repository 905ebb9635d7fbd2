package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vainnor/painel/api"
	"github.com/vainnor/painel/config"
	"github.com/vainnor/painel/db"
	"github.com/vainnor/painel/logging"
	"github.com/vainnor/painel/remote"
	"github.com/vainnor/painel/session"
)

var envFile string

func main() {
	root := &cobra.Command{
		Use:           "painel",
		Short:         "Operations dashboard for drone flights and gate logistics",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE:  runServe,
	})
	root.AddCommand(&cobra.Command{
		Use:   "check-remote",
		Short: "List the remote store to verify credentials and paths",
		RunE:  runCheckRemote,
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "painel:", err)
		os.Exit(1)
	}
}

func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return cfg, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return cfg, nil, err
	}
	if cfg.MissingEnvFile != "" {
		logger.Warn("no .env file loaded, using the environment only", zap.String("file", cfg.MissingEnvFile))
	}
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	local, err := db.Open(cfg.StoreDriver, cfg.StoreDSN)
	if err != nil {
		return fmt.Errorf("failed to initialize local store: %w", err)
	}
	defer local.Close()

	rs, err := remote.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize remote store: %w", err)
	}

	sessions := session.NewManager(session.Stores{Remote: rs, Local: local}, cfg.SessionTTL, logger)
	go sessions.Run(ctx)

	handler := api.NewHandler(api.Options{
		Sessions: sessions,
		Remote:   rs,
		Auth:     api.NewAuth(cfg.Admin, logger),
		Limiter:  api.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
		Logger:   logger,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting API server",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("store", local.Driver()),
			zap.String("remote", rs.Name()),
		)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runCheckRemote(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	rs, err := remote.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	st, err := rs.Check(cmd.Context())
	if err != nil {
		return fmt.Errorf("remote check failed: %w", err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		return err
	}
	for _, key := range []string{remote.DefaultKey, remote.DronesKey} {
		fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", key, rs.ResolvePath(key))
	}
	return nil
}
