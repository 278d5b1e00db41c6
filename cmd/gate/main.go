/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/jingyigong/kokoro-gate/pkg/admission"
	"github.com/jingyigong/kokoro-gate/pkg/admission/metrics"
	"github.com/jingyigong/kokoro-gate/pkg/admission/store"
	"github.com/jingyigong/kokoro-gate/pkg/config"
	"github.com/jingyigong/kokoro-gate/pkg/gateway"
)

type flags struct {
	configPath string

	listenAddress  string
	metricsAddress string
	upstream       string

	redisHost     string
	redisPort     int
	redisPassword string
	redisDB       int

	rateLimitEnabled bool
}

func initFlags(f *flags) {
	flag.StringVar(&f.configPath, "config", "", "path to YAML configuration file")

	// Server flags
	flag.StringVar(&f.listenAddress, "server.listen-address", "", "address to accept traffic on")
	flag.StringVar(&f.metricsAddress, "server.metrics-address", "", "address for metrics and diagnostics")
	flag.StringVar(&f.upstream, "server.upstream", "", "base URL of the protected backend")

	// Redis flags
	flag.StringVar(&f.redisHost, "redis.host", "", "redis host")
	flag.IntVar(&f.redisPort, "redis.port", 0, "redis port")
	flag.StringVar(&f.redisPassword, "redis.password", "", "redis password")
	flag.IntVar(&f.redisDB, "redis.db", 0, "redis database number")

	// Rate limit flags
	flag.BoolVar(&f.rateLimitEnabled, "rate-limit.enabled", false, "enable quota enforcement")

	klog.InitFlags(flag.CommandLine)
	flag.Parse()
}

// applyFlags copies explicitly set flags over the file configuration.
func applyFlags(cfg *config.Config, f *flags) {
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "server.listen-address":
			cfg.Server.ListenAddress = f.listenAddress
		case "server.metrics-address":
			cfg.Server.MetricsAddress = f.metricsAddress
		case "server.upstream":
			cfg.Server.Upstream = f.upstream
		case "redis.host":
			cfg.Redis.Host = f.redisHost
		case "redis.port":
			cfg.Redis.Port = f.redisPort
		case "redis.password":
			cfg.Redis.Password = f.redisPassword
		case "redis.db":
			cfg.Redis.DB = f.redisDB
		case "rate-limit.enabled":
			cfg.RateLimit.Enabled = f.rateLimitEnabled
		}
	})
}

func loadConfig(f *flags) (*config.Config, error) {
	if f.configPath == "" {
		cfg := config.Default()
		applyFlags(cfg, f)
		return cfg, config.Validate(cfg)
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, f)
	return cfg, config.Validate(cfg)
}

func main() {
	var f flags
	initFlags(&f)

	cfg, err := loadConfig(&f)
	if err != nil {
		klog.Fatalf("failed to load configuration: %v", err)
	}

	upstream, err := url.Parse(cfg.Server.Upstream)
	if err != nil {
		klog.Fatalf("invalid upstream URL: %v", err)
	}

	manager := store.NewManager(store.Config{
		Addr:          cfg.Redis.Addr(),
		Username:      cfg.Redis.Username,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		DialTimeout:   cfg.Redis.ConnectTimeout,
		SocketTimeout: cfg.Redis.SocketTimeout,
		MaxRetries:    cfg.Redis.MaxRetries,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Warm the store connection up front so a misconfigured address shows in
	// the logs at startup. Failure is non-fatal: enforcement degrades to
	// fail-open and every check retries acquisition.
	if cfg.RateLimit.Enabled {
		if _, err := manager.Acquire(ctx); err != nil {
			klog.Warning("counter store unreachable at startup, quota enforcement degraded to fail-open")
		}
	}

	engine := admission.NewEngine(admission.Policy{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		UnitsPerDay:       cfg.RateLimit.CharsPerDay,
		Whitelist:         cfg.RateLimit.Whitelist,
	}, manager, metrics.NewCollector())

	gate := gateway.NewServer(engine, gateway.TextLengthFromJSON("input", "text"))

	proxy := httputil.NewSingleHostReverseProxy(upstream)
	mux := http.NewServeMux()
	mux.Handle("/", gate.Admit(proxy))

	server := &http.Server{
		Addr:         cfg.Server.ListenAddress,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	metricsServer := startMetricsServer(cfg.Server.MetricsAddress, gate)

	// shutdown graceful
	shutdownComplete := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		klog.Info("Received shutdown signal, initiating graceful shutdown...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			klog.Warningf("forcing server shutdown: %v", err)
			_ = server.Close()
		}
		_ = metricsServer.Shutdown(shutdownCtx)

		manager.Release()
		close(shutdownComplete)
	}()

	klog.Infof("Starting gate on %s, proxying to %s", cfg.Server.ListenAddress, upstream)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		klog.Fatalf("server failed: %v", err)
	}

	<-shutdownComplete
	klog.Info("Server shutdown completed")
}

func startMetricsServer(addr string, gate *gateway.Server) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", gate.HandleHealthz)
	mux.HandleFunc("/status", gate.HandleStatus)

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		klog.Infof("Starting metrics server on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			klog.Errorf("Metrics server failed: %v", err)
		}
	}()

	return server
}
