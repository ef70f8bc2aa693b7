package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zuul-go/zuul/config"
	"github.com/zuul-go/zuul/filterfile"
	"github.com/zuul-go/zuul/loader"
	"github.com/zuul-go/zuul/logging"
	"github.com/zuul-go/zuul/metrics"
	"github.com/zuul-go/zuul/proxy"
	"github.com/zuul-go/zuul/script"
)

func main() {
	cfg := config.NewConfig()
	if err := cfg.Parse(os.Args[1:]); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logging.Init(logging.Options{
		ApplicationLogPrefix:      cfg.ApplicationLogPrefix,
		ApplicationLogJSONEnabled: cfg.ApplicationLogJSONEnabled,
		AccessLogJSONEnabled:      cfg.AccessLogJSONEnabled,
	})

	format := metrics.CodaHaleKind
	if cfg.MetricsFlavour == "prometheus" {
		format = metrics.PrometheusKind
	}
	m, metricsHandler := metrics.Init(metrics.Options{Format: format})

	compiler, err := script.NewCompilerWithOptions(script.LuaOptions{Modules: cfg.LuaModules})
	if err != nil {
		log.Fatalf("invalid lua options: %v", err)
	}

	registry := loader.NewRegistry()
	ld := loader.New(compiler, registry)
	ld.Register(proxy.NewSendError())
	ld.Register(proxy.NewSendResponse())
	ld.Register(proxy.NewHealthCheck())

	manager := filterfile.Start(ld, filterfile.Options{
		Directories:  cfg.FilterDirectories,
		PollInterval: cfg.PollInterval,
		Suffix:       cfg.FilterSuffix,
	})

	support := &http.Server{Addr: cfg.SupportAddress, Handler: metricsHandler}
	go func() {
		if err := support.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("support listener failed: %v", err)
		}
	}()

	gateway := &http.Server{
		Addr: cfg.Address,
		Handler: proxy.New(proxy.Params{
			Loader:            ld,
			Metrics:           m,
			AccessLogDisabled: cfg.AccessLogDisabled,
		}),
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := gateway.Shutdown(ctx); err != nil {
			log.Errorf("graceful shutdown failed: %v", err)
		}
		support.Close()
	}()

	log.Infof("gateway listening on %s, watching %v", cfg.Address, cfg.FilterDirectories)
	if err := gateway.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("gateway listener failed: %v", err)
	}

	manager.Shutdown()
}
