// Package main is the debugproxy process entry point: it wires the
// certificate authority, request recorder, component registry, flow
// engine, and proxy listener together, starts the admin HTTP API, and
// shuts both down on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/r3e-network/debugproxy/infrastructure/config"
	"github.com/r3e-network/debugproxy/infrastructure/logging"
	"github.com/r3e-network/debugproxy/infrastructure/metrics"
	"github.com/r3e-network/debugproxy/infrastructure/middleware"
	"github.com/r3e-network/debugproxy/internal/adminapi"
	"github.com/r3e-network/debugproxy/internal/ca"
	"github.com/r3e-network/debugproxy/internal/components"
	"github.com/r3e-network/debugproxy/internal/components/builtin"
	"github.com/r3e-network/debugproxy/internal/flow"
	"github.com/r3e-network/debugproxy/internal/proxyengine"
	"github.com/r3e-network/debugproxy/internal/recorder"
	"github.com/r3e-network/debugproxy/internal/sandbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	logger := logging.New("proxyd", cfg.Logging.Level, cfg.Logging.Format)
	m := metrics.New("proxyd")

	authority := ca.New(ca.NewFileStore(cfg.CA.StoreDir), logger)
	authority.SetCertPath(cfg.CA.StoreDir + "/root-cert.pem")
	if err := authority.Initialize(context.Background()); err != nil {
		log.Fatalf("initialize certificate authority: %v", err)
	}

	authority.SetMetrics(m)

	rec := recorder.New(cfg.Recorder.MaxRequestRecords)
	rec.SetMetrics(m)

	sb := sandbox.New(sandboxTimeout(cfg.Sandbox.TimeoutMillis))
	registry := components.NewRegistry(sb)
	builtin.Register(registry)

	// The persisted, UI-authored flow catalog lives outside the core by
	// design; until that external store is wired in, the engine runs
	// against an empty in-memory catalog and every request passes
	// through unmodified.
	flowStore := flow.NewMemoryFlowStore()
	flowEngine := flow.New(flowStore, components.Store{Registry: registry}, registry, sb, logger)
	flowEngine.SetMetrics(m)

	engine := proxyengine.New(authority, rec, flowEngine, logger, cfg.Proxy.HTTPSMitmEnabled)
	engine.SetMetrics(m)
	if err := engine.Start(fmt.Sprintf(":%d", cfg.Proxy.Port)); err != nil {
		log.Fatalf("start proxy listener: %v", err)
	}
	logger.WithFields(map[string]interface{}{"port": cfg.Proxy.Port}).Info("proxy listener started")

	admin := adminapi.New(rec, authority, flowEngine, m, logger, adminapi.Options{
		CORSOrigins:     cfg.AdminAPI.CORSOrigins,
		RateLimitPerSec: cfg.AdminAPI.RateLimitPerSec,
	})
	adminServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AdminAPI.Port),
		Handler:           admin.Router(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.WithFields(map[string]interface{}{"addr": adminServer.Addr}).Info("admin API starting")
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("admin API server error: %v", err)
		}
	}()

	shutdown := middleware.NewGracefulShutdown(adminServer, 30*time.Second)
	shutdown.OnShutdown(func() {
		admin.SetReady(false)
		if err := engine.Stop(); err != nil {
			logger.WithError(err).Warn("proxy engine stop reported an error")
		}
	})
	shutdown.ListenForSignals()
	shutdown.Wait()
}

func sandboxTimeout(millis int) time.Duration {
	if millis <= 0 {
		return 2 * time.Second
	}
	return time.Duration(millis) * time.Millisecond
}
