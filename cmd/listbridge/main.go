// Package main wires together the listbridge service binary.
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
	"time"

	"go.uber.org/zap"

	"github.com/pkaris/listbridge/internal/api"
	"github.com/pkaris/listbridge/internal/clock/system"
	"github.com/pkaris/listbridge/internal/config"
	"github.com/pkaris/listbridge/internal/fetch"
	"github.com/pkaris/listbridge/internal/ledger"
	"github.com/pkaris/listbridge/internal/letterboxd"
	"github.com/pkaris/listbridge/internal/logging"
	"github.com/pkaris/listbridge/internal/lookup"
	"github.com/pkaris/listbridge/internal/mal"
	"github.com/pkaris/listbridge/internal/metrics"
	"github.com/pkaris/listbridge/internal/publish"
	"github.com/pkaris/listbridge/internal/scrape"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()

	led, err := ledger.Open(cfg.Ledger.Path, clock, logger)
	if err != nil {
		logger.Fatal("open ledger failed", zap.Error(err))
	}
	defer func() {
		if err := led.Close(); err != nil {
			logger.Warn("close ledger failed", zap.Error(err))
		}
	}()

	table := lookup.Load(cfg.Lookup.AnimeIDsPath, cfg.Lookup.FilmIDsPath, logger)

	fetcher := fetch.New(fetch.Config{
		UserAgent:        cfg.Fetch.UserAgent,
		Timeout:          cfg.FetchTimeout(),
		MaxRetries:       cfg.Fetch.MaxRetries,
		BackoffInitial:   time.Duration(cfg.Fetch.BackoffInitialMs) * time.Millisecond,
		BackoffMax:       time.Duration(cfg.Fetch.BackoffMaxMs) * time.Millisecond,
		DefaultHostDelay: time.Duration(cfg.Fetch.SiteDelayMs) * time.Millisecond,
		HostDelays: map[string]time.Duration{
			cfg.Fetch.AnimeAPIHost: time.Duration(cfg.Fetch.AnimeAPIDelayMs) * time.Millisecond,
		},
	}, logger)

	store := publish.NewStore(led.Entries())
	notifier := publish.NewNotifier(cfg.Discord.WebhookURL, logger)
	pipeline := publish.NewPipeline(store, notifier, logger)

	animeAPI := mal.NewClient(fetcher, "", logger)
	tracer := mal.NewTracer(animeAPI, led, logger)
	malAdapter := mal.NewAdapter(fetcher, animeAPI, tracer, led, table, "", logger)
	filmAdapter := letterboxd.NewAdapter(fetcher, led, table, "", cfg.Fetch.UserAgent, logger)

	runner := scrape.New(
		[]scrape.Target{
			{Adapter: filmAdapter, Usernames: cfg.Scrape.LetterboxdUsernames},
			{Adapter: malAdapter, Usernames: cfg.Scrape.MALUsernames},
		},
		pipeline,
		pipeline,
		cfg.ScrapeInterval(),
		logger,
	)

	server := api.NewServer(store, cfg, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go runner.Run(ctx)

	go func() {
		logger.Info("list endpoints up", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
