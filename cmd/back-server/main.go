package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vikramgaru01/back/core/gateway"
	"github.com/vikramgaru01/back/core/infra/buildinfo"
	"github.com/vikramgaru01/back/core/infra/bus"
	"github.com/vikramgaru01/back/core/infra/config"
	infraMetrics "github.com/vikramgaru01/back/core/infra/metrics"
	"github.com/vikramgaru01/back/core/infra/schema"
	"github.com/vikramgaru01/back/core/pipeline"
	"github.com/vikramgaru01/back/core/registry"
	"github.com/vikramgaru01/back/core/store"
)

func main() {
	log.Println("apk backend starting...")
	buildinfo.Log("back-server")

	cfg := config.Load()

	tools, err := config.LoadTools(cfg.ToolsConfigPath)
	if err != nil {
		log.Printf("using default tool config (could not load %s): %v", cfg.ToolsConfigPath, err)
	}

	metrics := infraMetrics.NewProm("back")
	gatewayMetrics := infraMetrics.NewGatewayProm("back")
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", infraMetrics.Handler())
		srv := &http.Server{
			Addr:         cfg.MetricsAddr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
		log.Printf("metrics on %s/metrics", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	reg, err := registry.NewRedisRegistry(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to Redis for artifact registry: %v", err)
	}
	defer reg.Close()

	events, err := bus.Connect(cfg.NatsURL)
	if err != nil {
		log.Printf("event publishing disabled: %v", err)
		events = nil
	}
	defer events.Close()

	validator, err := schema.LoadValidator(cfg.PayloadSchemaPath)
	if err != nil {
		log.Fatalf("failed to load payload schema (%s): %v", cfg.PayloadSchemaPath, err)
	}

	mirror := store.NewMirror(cfg.MirrorBaseURL, cfg.MirrorToken)
	if mirror.Enabled() {
		log.Printf("remote mirror enabled at %s", cfg.MirrorBaseURL)
	}
	artifacts := store.New(cfg.ArtifactDir, mirror, reg, cfg.ArtifactTTL, metrics)

	janitor := pipeline.NewJanitor(metrics)
	defer janitor.Close()

	orchestrator := pipeline.NewOrchestrator(cfg, tools, artifacts, janitor, metrics, events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := registry.NewSweeper(reg, artifacts, cfg.SweepInterval, metrics, events)
	go sweeper.Start(ctx)

	gw := gateway.New(orchestrator, reg, artifacts, validator, gatewayMetrics, reg, cfg.AllowedOrigin, cfg.MaxParallelJobs).
		WithDiagnostics(cfg.SourceAPKPath, cfg.ToolsDir)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: artifact downloads and pipeline runs are long.
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		log.Printf("http listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	cancel()
}
