package docker

import (
	"context"

	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
)

// ContainerEvents subscribes to the runtime's live event stream,
// filtered server-side to container events, and emits each one that
// classifies. Unclassifiable messages are dropped with a diagnostic;
// the stream only ends on context cancellation or transport failure,
// at which point the channel is closed. The stream is not restartable.
func (i *Interface) ContainerEvents(ctx context.Context) <-chan ContainerEvent {
	out := make(chan ContainerEvent, eventChannelBuffer)

	filterArgs := filters.NewArgs()
	filterArgs.Add("type", "container")

	eventCh, errCh := i.cli.Events(ctx, events.ListOptions{Filters: filterArgs})

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				i.logger.Info().Msg("Container event stream cancelled by context")
				return
			case err, ok := <-errCh:
				if !ok {
					return
				}
				if err != nil {
					i.logger.Error().Err(err).Msg("Error from container event stream")
					return
				}
			case msg, ok := <-eventCh:
				if !ok {
					i.logger.Info().Msg("Container event channel closed")
					return
				}

				event, ok := ClassifyEvent(msg, i.logger)
				if !ok {
					continue
				}

				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
