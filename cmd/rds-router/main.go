// Command rds-router runs the route-configuration provider and admin
// inspection endpoint as a standalone binary.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/latticeproxy/rds-router/admin"
	"github.com/latticeproxy/rds-router/collab"
	"github.com/latticeproxy/rds-router/config"
	"github.com/latticeproxy/rds-router/rds"
	"github.com/latticeproxy/rds-router/tracing"
)

func main() {
	cfg := config.NewConfig()
	if err := cfg.Parse(); err != nil {
		log.Fatal(err)
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg *config.Config) error {
	tracer, closeTracer, err := tracing.InitTracer(cfg.Tracing)
	if err != nil {
		return err
	}
	defer closeTracer()

	initBarrier := collab.NewBarrier()
	manager := rds.NewProviderManager()

	key := rds.Key{DiscoveryAddress: cfg.DiscoveryAddress, RouteConfigName: cfg.RouteConfigName}
	provider := manager.Acquire(rds.Options{
		Key:              key,
		LocalClusterName: cfg.LocalClusterName,
		LocalNodeID:      cfg.LocalNodeID,
		RefreshDelay:     cfg.RefreshDelay,
		Fetch:            rds.NewHTTPFetchClient(cfg.DiscoveryAddress, cfg.RequestTimeout),
		ClusterManager:   collab.AllowAllClusterManager{},
		ValidateClusters: cfg.ValidateClusters,
		Tracer:           tracer,
		Init:             initBarrier,
	})
	_ = provider

	var wg sync.WaitGroup
	wg.Add(1)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)

	if cfg.AdminAddress == "" {
		<-sigs
		log.Info("shutting down")
		manager.Release(key)
		return nil
	}

	server := &http.Server{
		Addr:    cfg.AdminAddress,
		Handler: admin.NewHandler(manager),
	}

	go func() {
		<-sigs
		defer wg.Done()

		log.Info("shutting down")
		manager.Release(key)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.WithError(err).Error("unable to shut down admin server")
		}
	}()

	log.WithField("address", cfg.AdminAddress).Info("serving admin endpoint")
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}

	wg.Wait()
	return nil
}
