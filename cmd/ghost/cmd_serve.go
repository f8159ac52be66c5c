package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ghostbot/internal/config"
	"ghostbot/internal/system"
	"ghostbot/internal/transport/telegram"
	"ghostbot/internal/usage"
	"ghostbot/internal/ux"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot with long polling",
	Long: `Connects to the Telegram Bot API and handles updates until SIGINT or
SIGTERM. Each update runs in its own goroutine; telegram.max_concurrent caps
how many run at once. On shutdown the bot stops polling, waits for in-flight
responses to finish and closes the context store.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := system.Boot(ctx, cfg, system.BootOptions{})
	if err != nil {
		return fmt.Errorf("boot failed: %w", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("Close failed", zap.Error(err))
		}
	}()

	bot, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, Debug: cfg.Telegram.Debug})
	if err != nil {
		return err
	}
	if err := bot.SetCommands(ctx, ux.Commands); err != nil {
		logger.Warn("Registering commands failed", zap.Error(err))
	}

	d := &dispatcher{
		tr:       bot,
		files:    bot,
		flows:    svc.Executor,
		memory:   svc.Store,
		models:   svc.Gate,
		pages:    svc.Pages,
		docs:     svc.Documents,
		renderer: svc.Renderer(bot),
	}

	if watcher, err := config.NewWatcher(configPath, config.ApplyLogging); err != nil {
		logger.Warn("Config watcher unavailable", zap.Error(err))
	} else if err := watcher.Start(ctx); err != nil {
		logger.Warn("Config watcher not started", zap.Error(err))
	} else {
		defer watcher.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Listen != "" {
		usage.Register()
		srv := metricsServer(cfg.Metrics)
		g.Go(func() error {
			logger.Info("Serving metrics", zap.String("addr", srv.Addr), zap.String("path", cfg.Metrics.Path))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		logger.Info("Bot started", zap.String("username", bot.Username()))
		return poll(gctx, bot.Updates(cfg.Telegram.PollTimeout), int64(cfg.Telegram.MaxConcurrent), d.handle)
	})
	go func() {
		<-gctx.Done()
		bot.StopUpdates()
	}()

	err = g.Wait()
	logger.Info("Bot stopped")
	return err
}

// poll dispatches updates until ctx ends or the channel closes, running at
// most limit handlers at once. Stop callbacks bypass the limit so they can
// reach renders that hold every slot. It waits for running handlers before
// returning. Handlers get a context detached from ctx so that a shutdown
// lets in-flight responses finish.
func poll(ctx context.Context, updates tgbotapi.UpdatesChannel, limit int64, handle func(context.Context, tgbotapi.Update)) error {
	if limit <= 0 {
		limit = 1
	}
	sem := semaphore.NewWeighted(limit)
	work := context.WithoutCancel(ctx)

	var handlers errgroup.Group
	defer func() { _ = handlers.Wait() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if isStop(update) {
				handlers.Go(func() error {
					handle(work, update)
					return nil
				})
				continue
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				return nil
			}
			handlers.Go(func() error {
				defer sem.Release(1)
				handle(work, update)
				return nil
			})
		}
	}
}

func isStop(update tgbotapi.Update) bool {
	return update.CallbackQuery != nil && strings.HasPrefix(update.CallbackQuery.Data, ux.StopPrefix)
}

func metricsServer(mc config.MetricsConfig) *http.Server {
	path := mc.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, usage.Handler())
	return &http.Server{
		Addr:              mc.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

