package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"warren"
	"warren/internal/config"
	"warren/internal/console"
	"warren/internal/identity"
	"warren/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	dataDir := flag.String("data-dir", "", "data directory (overrides config)")
	consoleListen := flag.String("console-listen", "", "console listen address (overrides config)")
	metricsListen := flag.String("metrics-listen", "", "metrics listen address (overrides config)")
	nodeName := flag.String("name", "", "node name (overrides config)")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	flag.Parse()

	// Load config (TOML file with defaults)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// CLI flags override config file values
	if *dataDir != "" {
		cfg.Node.DataDir = *dataDir
	}
	if *consoleListen != "" {
		cfg.Console.Listen = *consoleListen
	}
	if *metricsListen != "" {
		cfg.Metrics.Listen = *metricsListen
	}
	if *nodeName != "" {
		cfg.Node.Name = *nodeName
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logging.Init(cfg.Logging.Level, cfg.Logging.Format)

	cfg.Node.DataDir = config.ExpandHome(cfg.Node.DataDir)

	if err := os.MkdirAll(cfg.Node.DataDir, 0700); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}

	// Load or generate the console host key
	id, err := identity.Load(cfg.Node.DataDir)
	if err != nil {
		log.Fatalf("identity: %v", err)
	}
	log.Printf("Node name: %s", cfg.Node.Name)
	log.Printf("Host key:  %s", id.Fingerprint)

	policy, err := warren.ParseNotifyPolicy(cfg.Store.DeleteNotify)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	store := warren.New(warren.Options{
		DeleteNotify: policy,
		WatchBuffer:  cfg.Store.WatchBuffer,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the buckets declared in config
	buckets := make([]*warren.Bucket, 0, len(cfg.Buckets))
	for _, bc := range cfg.Buckets {
		b, err := store.StartBucket(ctx, bc.Name, warren.BucketOptions{Table: bc.TableConfig()})
		if err != nil {
			log.Fatalf("bucket: %v", err)
		}
		buckets = append(buckets, b)
	}
	if len(buckets) > 0 {
		log.Printf("Started %d buckets from config", len(buckets))
	}

	// SSH console
	var consoleSrv *console.Server
	if cfg.Console.Listen != "" {
		authKeysPath := config.ExpandHome(cfg.Console.AuthorizedKeys)
		if authKeysPath == "" {
			authKeysPath = filepath.Join(cfg.Node.DataDir, "authorized_keys")
		}
		consoleSrv, err = console.NewServer(cfg.Console.Listen, cfg.Node.Name, id, store, authKeysPath)
		if err != nil {
			log.Fatalf("console: %v", err)
		}
		registerStoreCommands(ctx, consoleSrv.Commands(), store)

		go func() {
			if err := consoleSrv.Start(ctx); err != nil {
				log.Fatalf("console: %v", err)
			}
		}()
		log.Printf("Console listening on %s", cfg.Console.Listen)
	}

	// Prometheus metrics endpoint
	var metricsSrv *http.Server
	if cfg.Metrics.Listen != "" {
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(store)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("metrics: %v", err)
			}
		}()
		log.Printf("Metrics listening on %s", cfg.Metrics.Listen)
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	cancel()
	if consoleSrv != nil {
		consoleSrv.Stop()
	}
	if metricsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(shutdownCtx)
		shutdownCancel()
	}
	for _, b := range buckets {
		<-b.Done()
	}
}
