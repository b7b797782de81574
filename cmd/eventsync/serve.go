package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/eventsync/internal/metrics"
	"github.com/dukerupert/eventsync/internal/pipeline"
	"github.com/dukerupert/eventsync/internal/scheduler"
	"github.com/dukerupert/eventsync/internal/server"
	ws "github.com/dukerupert/eventsync/internal/websocket"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	var port string
	var syncOnStart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run scheduled syncs and reminders and serve the events API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.load(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			if port != "" {
				a.cfg.Serve.Port = port
			}
			if err := a.openDB(); err != nil {
				return err
			}
			return a.serve(cmd.Context(), syncOnStart)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides config)")
	cmd.Flags().BoolVar(&syncOnStart, "sync-on-start", false, "run one sync before the first scheduled one")
	return cmd
}

func (a *app) serve(ctx context.Context, syncOnStart bool) error {
	logger := a.logger
	m := metrics.New()
	hub := ws.NewHub(logger.With("component", "websocket"))

	client := a.fetchClient()
	adapters, err := a.adapters(client, "")
	if err != nil {
		return err
	}
	p, err := a.newPipeline(client, m, hub)
	if err != nil {
		return err
	}
	syncOpts := pipeline.Options{
		Cleanup:   a.cfg.Serve.Cleanup,
		Reconcile: a.reconcileOptions(),
	}
	syncJob := func(ctx context.Context) {
		p.Run(ctx, adapters, syncOpts)
	}

	srv := server.New(a.db, hub, m, server.Options{
		Location: a.cfg.Location(),
		Origins:  a.cfg.Serve.Origins,
	}, logger)

	sched := scheduler.New(a.cfg.Location(), logger.With("component", "scheduler"))
	if err := sched.Add("sync", a.cfg.Serve.SyncSchedule, syncJob); err != nil {
		return err
	}
	if a.cfg.Notify.Enabled() && a.cfg.Serve.NotifySchedule != "" {
		err := sched.Add("notify", a.cfg.Serve.NotifySchedule, func(ctx context.Context) {
			if _, err := a.remind(ctx, false, m); err != nil {
				logger.Error("reminder run failed", "error", err)
			}
		})
		if err != nil {
			return err
		}
	} else {
		logger.Info("reminders disabled: no channel or schedule")
	}
	if err := sched.Add("maintenance", "@hourly", func(context.Context) {
		srv.RateLimiter().Cleanup()
	}); err != nil {
		return err
	}
	sched.Start(ctx)
	defer sched.Stop()
	for _, e := range sched.Entries() {
		logger.Info("job scheduled", "job", e.Name, "spec", e.Spec, "next", e.Next)
	}
	if syncOnStart {
		go syncJob(ctx)
	}

	httpServer := &http.Server{
		Addr:              ":" + a.cfg.Serve.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("eventsync listening", "addr", httpServer.Addr, "sources", len(adapters))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
