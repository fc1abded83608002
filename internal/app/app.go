// Package app wires one engine, its logging router, a simulated state feed,
// and the HTTP debug surface into a runnable host.
package app

import (
	"context"
	"fmt"
	"log"
	nethttp "net/http"
	"time"

	weaveline "github.com/h1arc/weaveline"
	appnet "github.com/h1arc/weaveline/internal/net"
	"github.com/h1arc/weaveline/logging"
	loggingsinks "github.com/h1arc/weaveline/logging/sinks"
	"github.com/h1arc/weaveline/rules/catalog"
)

type Config struct {
	Addr         string
	TickRate     int
	CatalogPaths []string
	Logging      logging.Config
	Logger       *log.Logger
}

func DefaultConfig() Config {
	return Config{
		Addr:     ":8080",
		TickRate: 15,
		Logging:  logging.DefaultConfig(),
	}
}

func Run(ctx context.Context, cfg Config) error {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = 15
	}

	sinks := []logging.NamedSink{}
	if cfg.Logging.HasSink("console") {
		sinks = append(sinks, logging.NamedSink{Name: "console", Sink: loggingsinks.NewConsoleSink(log.Writer())})
	}
	if cfg.Logging.HasSink("json") && cfg.Logging.JSONFilePath != "" {
		jsonSink, err := loggingsinks.NewJSONSink(cfg.Logging.JSONFilePath)
		if err != nil {
			return fmt.Errorf("failed to open json sink: %w", err)
		}
		sinks = append(sinks, logging.NamedSink{Name: "json", Sink: jsonSink})
	}
	router := logging.NewRouter(cfg.Logging, logging.SystemClock{}, sinks)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := router.Close(closeCtx); err != nil {
			logger.Printf("failed to close logging router: %v", err)
		}
	}()

	registry := demoRegistry()
	engine, err := weaveline.NewEngine(weaveline.Config{
		Providers:        registry,
		Publisher:        router,
		TrackedBuffs:     demoTrackedBuffs(),
		TrackedDebuffs:   demoTrackedDebuffs(),
		TrackedCooldowns: demoTrackedCooldowns(),
	})
	if err != nil {
		return fmt.Errorf("failed to construct engine: %w", err)
	}

	if len(cfg.CatalogPaths) > 0 {
		resolver, err := catalog.Load(registry, cfg.CatalogPaths...)
		if err != nil {
			return fmt.Errorf("failed to load rule catalog: %w", err)
		}
		if err := engine.LoadCatalog(resolver.Entries()); err != nil {
			return fmt.Errorf("failed to apply rule catalog: %w", err)
		}
	}

	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()
	go runSimulatedFeed(feedCtx, engine, cfg.TickRate)

	handler := appnet.NewHTTPHandler(engine, appnet.HTTPHandlerConfig{
		Logger: logger,
		Router: router,
	})
	srv := &nethttp.Server{Addr: cfg.Addr, Handler: handler}
	logger.Printf("weavelined listening on %s", cfg.Addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("shutdown: %v", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && err != nethttp.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}
}
