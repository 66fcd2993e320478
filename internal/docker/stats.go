package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
)

// GetStats streams resource-usage snapshots for the named container,
// throttled to at most one emission per fixed interval however fast the
// runtime produces them. Intermediate snapshots between ticks are
// discarded and only the latest is delivered, so the stream never
// buffers unboundedly. The stream ends when the context is cancelled
// or the transport closes.
func (i *Interface) GetStats(ctx context.Context, name string) (<-chan container.StatsResponse, error) {
	resp, err := i.cli.ContainerStats(ctx, name, true)
	if err != nil {
		return nil, fmt.Errorf("opening stats stream for %s: %w", name, err)
	}

	raw := make(chan container.StatsResponse)
	go func() {
		defer close(raw)
		defer resp.Body.Close()

		dec := json.NewDecoder(resp.Body)
		for {
			var stats container.StatsResponse
			if err := dec.Decode(&stats); err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					i.logger.Error().Err(err).Str("container", name).Msg("Error decoding stats stream")
				}
				return
			}
			select {
			case raw <- stats:
			case <-ctx.Done():
				return
			}
		}
	}()

	out := make(chan container.StatsResponse)
	go func() {
		defer close(out)

		interval := i.statsInterval
		if interval <= 0 {
			interval = statsThrottle
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var latest container.StatsResponse
		var pending bool

		for {
			select {
			case <-ctx.Done():
				return
			case stats, ok := <-raw:
				if !ok {
					return
				}
				latest = stats
				pending = true
			case <-ticker.C:
				if !pending {
					continue
				}
				select {
				case out <- latest:
					pending = false
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
