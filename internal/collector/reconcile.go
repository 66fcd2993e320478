package collector

import (
	"context"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/spawner-dev/spawner/internal/metrics"
)

// passResult is the outcome of one successful reconciliation pass.
type passResult struct {
	// requeueAfter is when the workload should be examined again. It is
	// already clamped to zero; a pass never asks for a negative delay.
	requeueAfter time.Duration
	// deleted is true when this pass issued the delete.
	deleted bool
}

// reconcilePass evaluates one workload resource: fetch its idle
// duration, compute the remaining time-to-live, and delete it on
// expiry. Exactly one delete call is issued per expired pass. Failures
// come back as StatusCheckFailedError or DeleteFailedError; the caller
// owns the backoff.
func (c *Collector) reconcilePass(ctx context.Context, resourceName string) (passResult, error) {
	idle, err := c.status.IdleState(ctx, resourceName)
	if err != nil {
		return passResult{}, NewStatusCheckFailedError(err)
	}

	metrics.RecordIdleSeconds(resourceName, idle.SecondsInactive)

	// Signed arithmetic: seconds_inactive may exceed the cleanup
	// frequency, making the ttl negative.
	ttl := int64(c.cfg.CleanupFrequencySeconds) - int64(idle.SecondsInactive)

	deleted := false
	if ttl <= 0 {
		if err := c.deletePod(ctx, resourceName); err != nil {
			return passResult{}, NewDeleteFailedError(err)
		}
		deleted = true
		metrics.RecordDelete()
		metrics.ForgetWorkload(resourceName)
		c.logger.Info().
			Str("resource", resourceName).
			Uint32("seconds_inactive", idle.SecondsInactive).
			Msg("Deleted idle workload")
	}

	// Clamp before converting: a negative ttl must not turn into an
	// enormous unsigned delay.
	requeue := ttl
	if requeue < 0 {
		requeue = 0
	}

	return passResult{
		requeueAfter: time.Duration(requeue) * time.Second,
		deleted:      deleted,
	}, nil
}

func (c *Collector) deletePod(ctx context.Context, resourceName string) error {
	err := c.client.CoreV1().Pods(c.cfg.Namespace).Delete(ctx, resourceName, metav1.DeleteOptions{})
	if err != nil {
		// Already gone counts as deleted; someone else got there first.
		if apierrors.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("deleting pod %s: %w", resourceName, err)
	}
	return nil
}

// isGone reports whether the resource has left the cluster's managed
// set, which retires its requeue timer.
func (c *Collector) isGone(ctx context.Context, resourceName string) bool {
	_, err := c.client.CoreV1().Pods(c.cfg.Namespace).Get(ctx, resourceName, metav1.GetOptions{})
	return apierrors.IsNotFound(err)
}
