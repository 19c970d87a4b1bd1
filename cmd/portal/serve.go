package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	portal "github.com/citizenintel/portal"
	"github.com/citizenintel/portal/internal/feed"
	"github.com/citizenintel/portal/internal/leadsapi"
	"github.com/citizenintel/portal/internal/notify"
	"github.com/citizenintel/portal/internal/server"
	"github.com/citizenintel/portal/internal/session"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var listenFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the portal web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if listenFlag != "" {
			cfg.ListenAddr = listenFlag
		}
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&listenFlag, "listen", "", "HTTP listen address (overrides PORTAL_LISTEN)")
}

func openStore(ctx context.Context) (session.Store, error) {
	if cfg.RedisURL != "" {
		logger.Info("using redis session store")
		return session.NewRedisStore(ctx, cfg.RedisURL)
	}
	logger.Info("using sqlite session store", zap.String("path", cfg.DBPath))
	return session.NewSQLiteStore(ctx, cfg.DBPath)
}

func serve(ctx context.Context) error {
	if cfg.InsecureSecret() {
		logger.Warn("using insecure default session secret; set PORTAL_SESSION_SECRET for production")
	}

	store, err := openStore(ctx)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer store.Close()

	api, err := leadsapi.New(cfg.APIURL, logger.Named("api"), leadsapi.WithTimeout(cfg.APITimeout))
	if err != nil {
		return err
	}

	tabs := feed.DefaultTabs()
	if cfg.TabsFile != "" {
		if tabs, err = feed.LoadTabs(cfg.TabsFile); err != nil {
			return err
		}
	}

	tmplFS, err := fs.Sub(portal.TemplatesFS, "templates")
	if err != nil {
		return fmt.Errorf("templates sub-FS: %w", err)
	}
	stFS, err := fs.Sub(portal.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("static sub-FS: %w", err)
	}

	notifier := notify.New(notify.Config{
		FromAddress:    cfg.FromEmail,
		FromName:       cfg.FromName,
		BaseURL:        cfg.BaseURL,
		SendGridAPIKey: cfg.SendGridKey,
	}, nil, logger.Named("notify"))
	if !notifier.Enabled() {
		logger.Info("receipt emails disabled; set PORTAL_SENDGRID_KEY to enable")
	}

	srv, err := server.NewServer(cfg, server.Deps{
		API:      api,
		Sessions: session.NewManager(store, api, cfg.SessionTTL, logger.Named("session")),
		Notifier: notifier,
		Tabs:     tabs,
		Logger:   logger,
	}, tmplFS, stFS)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	defer srv.Stop()

	sweeper := session.NewSweeper(store, logger.Named("sweeper"))
	sweeper.SetTickInterval(cfg.SweepEvery)
	srv.SweepTasks(sweeper)
	go func() {
		if err := sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("sweeper stopped", zap.Error(err))
		}
	}()

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr), zap.String("api", cfg.APIURL))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
