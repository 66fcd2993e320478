package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/spawner-dev/spawner/internal/collector"
	"github.com/spawner-dev/spawner/internal/config"
	"github.com/spawner-dev/spawner/internal/httpserver"
)

// App is the cluster-side idle sweeper: the reclamation collector plus
// its health/metrics surface.
type App struct {
	collector *collector.Collector
	server    *httpserver.Server
	logger    zerolog.Logger
}

// New creates a new App by wiring up all dependencies. Failure to
// reach the cluster API here is fatal: without a client there is
// nothing to do.
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	// An empty kubeconfig path falls back to the in-cluster service
	// account.
	kubeConfig, err := clientcmd.BuildConfigFromFlags("", cfg.Kubernetes.Kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("building kubernetes config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(kubeConfig)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes clientset: %w", err)
	}

	col := collector.New(clientset, &cfg.Collector, logger)
	server := httpserver.New(&cfg.Server, col.Ready, logger)

	return &App{
		collector: col,
		server:    server,
		logger:    logger,
	}, nil
}

// Run starts the collector and the health/metrics server and blocks
// until the context is cancelled or either fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info().Msg("Application starting")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- a.server.Run(ctx)
	}()
	go func() {
		errCh <- a.collector.Run(ctx)
	}()

	// First failure (or cancellation) brings the other half down too.
	err := <-errCh
	cancel()
	if second := <-errCh; err == nil {
		err = second
	}
	return err
}
