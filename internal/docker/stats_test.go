package docker

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetStatsThrottlesEmissions(t *testing.T) {
	t.Parallel()

	// The runtime emits far faster than the throttle interval; the
	// consumer must see only a small fraction of the snapshots.
	pr, pw := io.Pipe()
	cli := &fakeAPIClient{statsBody: pr}
	iface := newTestInterface(cli)
	iface.statsInterval = 60 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := iface.GetStats(ctx, "web")
	require.NoError(t, err)

	const emitted = 25
	go func() {
		defer pw.Close()
		for i := 0; i < emitted; i++ {
			if _, err := pw.Write([]byte("{}\n")); err != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}()

	delivered := 0
	for range stream {
		delivered++
	}

	// 25 emissions over ~250ms against a 60ms throttle: a handful of
	// deliveries, never anywhere near all of them.
	require.GreaterOrEqual(t, delivered, 1)
	require.LessOrEqual(t, delivered, 8)
}

func TestGetStatsClosesOnCancel(t *testing.T) {
	t.Parallel()

	pr, pw := io.Pipe()
	defer pw.Close()

	cli := &fakeAPIClient{statsBody: pr}
	iface := newTestInterface(cli)
	iface.statsInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := iface.GetStats(ctx, "web")
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-stream:
		require.False(t, ok, "expected stream to close")
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after cancellation")
	}
}
