package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aretw0/canvas/internal/presentation/tui"
	httpAdapter "github.com/aretw0/canvas/pkg/adapters/http"
	natsAdapter "github.com/aretw0/canvas/pkg/adapters/nats"
	"github.com/aretw0/canvas/pkg/chatkit"
	"github.com/aretw0/canvas/pkg/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ChatKit HTTP gateway",
	Long: `Starts the ChatKit gateway on server.addr. POST /chatkit drives the wizard;
/health, /info, /events and /metrics are served alongside.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if term.IsTerminal(int(os.Stdout.Fd())) {
			tui.PrintBanner(os.Stdout)
		}

		// 1. State backend
		b, err := openBackend(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := b.Close(); err != nil {
				logger.Error("closing state store", "err", err)
			}
		}()

		// 2. Observers
		hooks := observability.LoggingHooks(logger)
		streams := httpAdapter.NewStreamManager(logger)
		hooks = hooks.Merge(streams.Hooks())

		handlerOpts := []httpAdapter.Option{
			httpAdapter.WithLogger(logger),
			httpAdapter.WithStreams(streams),
			httpAdapter.WithCORSOrigins(cfg.Server.CORSOrigins...),
			httpAdapter.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
			httpAdapter.WithRateLimit(cfg.Server.RateLimit.RequestsPerMinute, cfg.Server.RateLimit.Burst),
		}

		if cfg.Metrics.Enabled {
			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			metrics := observability.NewMetrics(reg)
			hooks = hooks.Merge(metrics.Hooks())
			handlerOpts = append(handlerOpts,
				httpAdapter.WithMetrics(metrics, reg),
				httpAdapter.WithMetricsPath(cfg.Metrics.Path),
			)
		}

		if cfg.Events.NatsURL != "" {
			pub, err := natsAdapter.New(cfg.Events.NatsURL,
				natsAdapter.WithSubjectPrefix(cfg.Events.SubjectPrefix),
				natsAdapter.WithLogger(logger),
			)
			if err != nil {
				return err
			}
			defer func() {
				if err := pub.Close(); err != nil {
					logger.Error("closing nats publisher", "err", err)
				}
			}()
			hooks = hooks.Merge(observability.PublisherHooks(pub, logger))
			logger.Info("publishing advances", "url", cfg.Events.NatsURL, "prefix", cfg.Events.SubjectPrefix)
		}

		// 3. Engine and protocol server
		engine, err := newEngine(cfg, b, logger, hooks)
		if err != nil {
			return err
		}
		threads := threadStore(cfg, b, engine, logger)
		ck := chatkit.NewServer(engine, chatkit.WithStore(threads), chatkit.WithLogger(logger))

		srv := &http.Server{
			Addr:              cfg.Server.Addr,
			Handler:           httpAdapter.NewHandler(ck, handlerOpts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// 4. Serve until interrupted
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("canvas gateway listening", "addr", srv.Addr, "store", cfg.Store.Driver)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case <-ctx.Done():
			logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("graceful shutdown did not complete", "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("killing server: %w", err)
				}
			}
			logger.Info("canvas gateway stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("addr", "a", ":8080", "Address to listen on")
	serveCmd.Flags().Bool("message-advances", false, "Treat chat messages on a started thread as answers")
	bindFlags(serveCmd.Flags(), map[string]string{
		"server.addr":             "addr",
		"wizard.message_advances": "message-advances",
	})
}
