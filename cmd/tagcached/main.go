// Command tagcached is the tagcache daemon: it brings up the cache engine,
// the periodic sweeper, and both front-ends (TCP line protocol and HTTP
// JSON API), then waits for SIGINT/SIGTERM and shuts down gracefully. The
// signal-handling and graceful-shutdown sequencing follows
// johnjansen-torua's cmd/coordinator/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IvanBrykalov/tagcache/cache"
	"github.com/IvanBrykalov/tagcache/internal/auth"
	"github.com/IvanBrykalov/tagcache/internal/config"
	"github.com/IvanBrykalov/tagcache/internal/logging"
	httpserver "github.com/IvanBrykalov/tagcache/server/http"
	"github.com/IvanBrykalov/tagcache/server/tcp"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/tagcache/metrics/prom"
)

// Exit codes (spec §6.4).
const (
	exitOK            = 0
	exitConfigError   = 1
	exitListenFailure = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	confPath := flag.String("config", "", "path to tagcache.toml (default: search path per spec §6.3)")
	requireAuth := flag.Bool("require-auth", false, "require Basic/Bearer auth on every JSON API route except /health and /auth/login")
	flag.Parse()

	cfg, err := config.Load(*confPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return exitConfigError
	}

	log, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		return exitConfigError
	}
	defer log.Sync()

	reg := prometheus.DefaultRegisterer
	metrics := prom.New(reg, "tagcache", "core", nil)

	c := cache.New(cache.Options{
		Shards:          cfg.Server.NumShards,
		MaxKeyLength:    cfg.Cache.MaxKeyLength,
		MaxTagsPerEntry: cfg.Cache.MaxTagsPerEntry,
		MaxValueLength:  cfg.Cache.MaxValueLength,
		Metrics:         metrics,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interval := time.Duration(cfg.Server.CleanupIntervalSecond) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}
	sweeper := cache.NewSweeper(c, interval, log)
	go sweeper.Run(ctx)

	var guard *auth.Guard
	if *requireAuth || cfg.Security.RequireAuthForTCP {
		lifetime := time.Duration(cfg.Authentication.TokenLifetimeSecond) * time.Second
		guard, err = auth.New(cfg.Authentication.Username, cfg.Authentication.Password, lifetime)
		if err != nil {
			log.Error("building auth guard", zap.Error(err))
			return exitConfigError
		}
	}

	tcpSrv := tcp.New(c, log)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.TCPPort)
		if err := tcpSrv.ListenAndServe(ctx, addr); err != nil {
			log.Error("tcp server stopped", zap.Error(err))
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/", httpserver.New(c, guard, cfg.Server.AllowedOrigin, log))
	mux.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	log.Info("tagcached started",
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("tcp_port", cfg.Server.TCPPort),
		zap.Int("shards", c.NumShards()),
		zap.Duration("cleanup_interval", interval),
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutdown signal received")
	case err := <-errCh:
		log.Error("http server failed to start", zap.Error(err))
		cancel()
		return exitListenFailure
	}

	cancel() // stops the sweeper and TCP accept loop

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		log.Warn("http shutdown error", zap.Error(err))
	}

	log.Info("tagcached stopped")
	return exitOK
}
