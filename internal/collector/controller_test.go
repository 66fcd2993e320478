package collector

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/spawner-dev/spawner/internal/config"
)

// End-to-end over the fake clientset: an expired workload seeded at
// startup gets deleted by the worker pool, and Run stops cleanly on
// cancellation.
func TestCollectorRunDeletesExpiredWorkload(t *testing.T) {
	t.Parallel()

	client := fake.NewClientset(testPod("spawner-x"))
	cfg := &config.CollectorConfig{
		Namespace:               "spawner",
		ApplicationPort:         8080,
		CleanupFrequencySeconds: 600,
		BackoffSeconds:          360,
		Workers:                 2,
	}

	c := New(client, cfg, zerolog.Nop())
	c.status = &fakeStatusClient{state: IdleState{SecondsInactive: 700}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return countDeletes(client) >= 1
	}, 5*time.Second, 10*time.Millisecond, "expired workload was not deleted")

	require.Eventually(t, c.Ready, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	assert.Equal(t, 1, countDeletes(client), "delete must be issued exactly once per expiry")
}

// A watch-delivered pod without the resource prefix never reaches the
// queue, so no status checks are made for it.
func TestCollectorRunIgnoresForeignPods(t *testing.T) {
	t.Parallel()

	client := fake.NewClientset(testPod("coredns-abc"))
	cfg := &config.CollectorConfig{
		Namespace:               "spawner",
		ApplicationPort:         8080,
		CleanupFrequencySeconds: 600,
		BackoffSeconds:          360,
		Workers:                 1,
	}

	c := New(client, cfg, zerolog.Nop())
	status := &fakeStatusClient{state: IdleState{SecondsInactive: 700}}
	c.status = status

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx)
	}()

	require.Eventually(t, c.Ready, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	cancel()
	<-done

	assert.Zero(t, status.calls)
	assert.Zero(t, countDeletes(client))
}
