// Package collector implements the idle reclamation controller: a
// self-requeuing control loop that deletes managed workload resources
// once their self-reported idle duration exceeds the cleanup frequency.
package collector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/util/workqueue"

	"github.com/spawner-dev/spawner/internal/config"
	"github.com/spawner-dev/spawner/internal/metrics"
	"github.com/spawner-dev/spawner/internal/types"
)

const (
	watchRetryDelay     = 5 * time.Second
	watchReconnectDelay = time.Second
)

// Collector drives the idle reclamation loop. Work is keyed by
// resource name and fed from two sources: a watch over the namespace's
// pods and the requeue timers that finished passes arm for themselves.
type Collector struct {
	logger  zerolog.Logger
	cfg     *config.CollectorConfig
	client  kubernetes.Interface
	status  statusClient
	queue   workqueue.TypedDelayingInterface[string]
	backoff time.Duration
	started atomic.Bool
}

// New creates a collector over the given cluster client. The
// collector config is shared read-only by all concurrent passes.
func New(client kubernetes.Interface, cfg *config.CollectorConfig, logger zerolog.Logger) *Collector {
	return &Collector{
		logger:  logger,
		cfg:     cfg,
		client:  client,
		status:  NewHTTPStatusClient(cfg.Namespace, cfg.ApplicationPort),
		queue:   workqueue.NewTypedDelayingQueue[string](),
		backoff: time.Duration(cfg.BackoffSeconds) * time.Second,
	}
}

// Ready reports whether the collector's workers have started.
func (c *Collector) Ready() bool {
	return c.started.Load()
}

// Run lists the managed pods, starts the watch feed and the worker
// pool, and blocks until the context is cancelled. In-flight passes
// finish before Run returns.
func (c *Collector) Run(ctx context.Context) error {
	if err := c.enqueueExisting(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.watchPods(ctx)
	}()

	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx)
		}()
	}

	c.started.Store(true)
	c.logger.Info().
		Str("namespace", c.cfg.Namespace).
		Int("workers", c.cfg.Workers).
		Msg("Idle collector started")

	<-ctx.Done()
	c.queue.ShutDown()
	wg.Wait()
	return ctx.Err()
}

// enqueueExisting seeds the queue with every managed pod already in
// the namespace so each one has a scheduled check from startup.
func (c *Collector) enqueueExisting(ctx context.Context) error {
	pods, err := c.client.CoreV1().Pods(c.cfg.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return err
	}
	for i := range pods.Items {
		c.enqueue(pods.Items[i].Name)
	}
	return nil
}

// watchPods keeps a watch open over the namespace, re-enqueueing a
// resource whenever the cluster reports a change to it. The watch is
// reopened on stream close; requeue timers are unaffected by
// reconnects.
func (c *Collector) watchPods(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("Pod watch shutting down")
			return
		default:
		}

		watcher, err := c.client.CoreV1().Pods(c.cfg.Namespace).Watch(ctx, metav1.ListOptions{})
		if err != nil {
			c.logger.Error().Err(err).Msg("Error opening pod watch")
			select {
			case <-time.After(watchRetryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}

		for event := range watcher.ResultChan() {
			pod, ok := event.Object.(*corev1.Pod)
			if !ok {
				continue
			}
			switch event.Type {
			case watch.Added, watch.Modified:
				c.enqueue(pod.Name)
			case watch.Deleted:
				metrics.ForgetWorkload(pod.Name)
			}
		}

		c.logger.Info().Msg("Pod watch closed, reconnecting")
		select {
		case <-time.After(watchReconnectDelay):
		case <-ctx.Done():
			return
		}
	}
}

// enqueue admits a resource into the work queue if it is one of ours.
// Pods without the resource-name prefix are not managed workloads.
func (c *Collector) enqueue(resourceName string) {
	if _, ok := types.FromResourceName(resourceName); !ok {
		return
	}
	c.queue.Add(resourceName)
}

func (c *Collector) worker(ctx context.Context) {
	for {
		resourceName, shutdown := c.queue.Get()
		if shutdown {
			return
		}
		c.process(ctx, resourceName)
		c.queue.Done(resourceName)
	}
}

// process runs one reconciliation pass and re-arms the next check:
// after the computed ttl on success, after the fixed backoff on
// failure. A workload's failure never stops reconciliation of others.
func (c *Collector) process(ctx context.Context, resourceName string) {
	result, err := c.reconcilePass(ctx, resourceName)
	if err != nil {
		// A pass against a resource that has already left the cluster
		// is not a failure; retire its timer instead of backing off.
		if c.isGone(ctx, resourceName) {
			c.logger.Debug().Str("resource", resourceName).Msg("Workload gone, retiring check")
			metrics.ForgetWorkload(resourceName)
			return
		}

		var statusErr *StatusCheckFailedError
		if errors.As(err, &statusErr) {
			metrics.RecordPass("status_check_failed")
		} else {
			metrics.RecordPass("delete_failed")
		}

		c.logger.Warn().
			Err(err).
			Str("resource", resourceName).
			Dur("backoff", c.backoff).
			Msg("Reconciliation failed, backing off")
		c.queue.AddAfter(resourceName, c.backoff)
		return
	}

	if result.deleted {
		metrics.RecordPass("deleted")
		// Deletion may complete before the clamped requeue fires; once
		// the resource is gone there is nothing left to re-check.
		if c.isGone(ctx, resourceName) {
			return
		}
	} else {
		metrics.RecordPass("requeued")
	}

	c.logger.Debug().
		Str("resource", resourceName).
		Dur("requeue_after", result.requeueAfter).
		Bool("deleted", result.deleted).
		Msg("Reconciliation pass complete")
	c.queue.AddAfter(resourceName, result.requeueAfter)
}
