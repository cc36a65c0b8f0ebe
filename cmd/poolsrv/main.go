// Package main is the entrypoint for the MySQL connection pool demo
// server. It loads configuration, starts the pool and its ambient HTTP
// surface, and handles graceful shutdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mengxianke/MySQL-ConnectionPool/backend"
	"github.com/Mengxianke/MySQL-ConnectionPool/config"
	"github.com/Mengxianke/MySQL-ConnectionPool/internal/heartbeat"
	"github.com/Mengxianke/MySQL-ConnectionPool/internal/httpapi"
	"github.com/Mengxianke/MySQL-ConnectionPool/metrics"
	"github.com/Mengxianke/MySQL-ConnectionPool/pool"
)

var (
	configPath  = flag.String("config", "configs/pool.yaml", "Path to pool configuration file")
	httpAddr    = flag.String("http", ":9090", "Address for the metrics/healthz server")
	redisAddr   = flag.String("redis", "", "Redis address for the presence heartbeat; empty disables it")
	instanceID  = flag.String("instance-id", "poolsrv-1", "Identifier for this instance's heartbeat key")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[main] starting MySQL connection pool")

	cfg, backends, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[main] failed to load configuration: %v", err)
	}
	log.Printf("[main] configuration loaded: %d backends, strategy=%s", len(backends), cfg.Strategy)

	reg := metrics.New("mysqlpool")
	sel := backend.New(backends, cfg.Strategy)
	p := pool.New(cfg, sel, reg, log.Default())

	if err := p.Init(context.Background()); err != nil {
		log.Fatalf("[main] failed to initialize pool: %v", err)
	}
	log.Println("[main] pool ready")

	var hb *heartbeat.Heartbeat
	if *redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: *redisAddr})
		hb = heartbeat.New(client, *instanceID, 10*time.Second, 30*time.Second)
		hb.Start(context.Background())
		log.Printf("[main] presence heartbeat started against %s", *redisAddr)
	}

	httpServer := &http.Server{
		Addr:         *httpAddr,
		Handler:      httpapi.NewMux(p),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[main] http surface listening on %s", *httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[main] http surface error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Printf("[main] received signal %v, shutting down gracefully", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if hb != nil {
		hb.Stop()
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] http surface shutdown error: %v", err)
	}
	p.Shutdown()

	fmt.Println("[main] shutdown complete")
}
