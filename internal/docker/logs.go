package docker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
)

// LogEntry is one timestamped line of combined stdout/stderr output.
type LogEntry struct {
	Timestamp time.Time
	Line      string
}

// LogEvent is one element of a log stream. Each element is
// independently fallible: Err is set instead of Entry when a single
// line could not be read or parsed.
type LogEvent struct {
	Entry LogEntry
	Err   error
}

const maxLogLineBytes = 1024 * 1024

// GetLogs streams the named container's combined stdout/stderr output,
// timestamped, from the beginning and following new output until the
// context is cancelled or the transport closes. Cancelling the context
// releases the underlying connection without affecting other streams.
func (i *Interface) GetLogs(ctx context.Context, name string) (<-chan LogEvent, error) {
	rc, err := i.cli.ContainerLogs(ctx, name, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Timestamps: true,
		Tail:       "all",
	})
	if err != nil {
		return nil, fmt.Errorf("opening log stream for %s: %w", name, err)
	}

	// The runtime multiplexes stdout/stderr into one stream; demux both
	// into a single pipe since the caller gets combined output anyway.
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, rc)
		pw.CloseWithError(err)
	}()

	out := make(chan LogEvent)
	go func() {
		defer close(out)
		defer rc.Close()

		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLogLineBytes)

		for scanner.Scan() {
			event := parseLogLine(scanner.Text())
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			select {
			case out <- LogEvent{Err: fmt.Errorf("reading log stream for %s: %w", name, err)}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

func parseLogLine(raw string) LogEvent {
	ts, line, found := strings.Cut(raw, " ")
	if !found {
		return LogEvent{Err: fmt.Errorf("log line without timestamp: %q", raw)}
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return LogEvent{Err: fmt.Errorf("parsing log timestamp %q: %w", ts, err)}
	}
	return LogEvent{Entry: LogEntry{Timestamp: parsed, Line: line}}
}
