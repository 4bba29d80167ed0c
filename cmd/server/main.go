package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/RichardoC/ollamachat/internal/api"
	"github.com/RichardoC/ollamachat/internal/config"
	"github.com/RichardoC/ollamachat/internal/llm"
	"github.com/RichardoC/ollamachat/internal/logging"
	"github.com/RichardoC/ollamachat/internal/tokens"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) (err error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() {
		// Sync on a terminal stderr reports EINVAL; nothing to flush there.
		if syncErr := logger.Sync(); syncErr != nil && !errors.Is(syncErr, syscall.EINVAL) && !errors.Is(syncErr, syscall.ENOTTY) {
			err = multierr.Append(err, syncErr)
		}
	}()

	counter, err := tokens.NewTiktoken(cfg.LLM.Encoding)
	if err != nil {
		logger.Warn("tiktoken unavailable, falling back to estimated token counts",
			zap.String("encoding", cfg.LLM.Encoding),
			zap.Error(err))
		counter = tokens.Estimate{}
	}

	llmService := llm.New(cfg.LLM.Model, counter, cfg.LLM.MaxContextTokens, logger)
	handler := api.NewHandler(llmService, logger)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewRouter(handler, cfg.Server.WebDir),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting relay",
			zap.String("addr", cfg.Server.Addr),
			zap.String("model", cfg.LLM.Model),
			zap.Int("maxContextTokens", cfg.LLM.MaxContextTokens))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
