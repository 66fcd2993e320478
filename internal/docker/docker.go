// Package docker is the single point of contact with the local
// container runtime. It owns the runtime client handle and exposes
// lifecycle operations plus live event, log, and stats streams for
// workload containers.
package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog"

	"github.com/spawner-dev/spawner/internal/config"
)

const (
	// ContainerPort is the single well-known port exposed from every
	// workload container.
	ContainerPort = 8080

	// LabelManaged marks a container as managed by spawner. External
	// tooling filters on this exact key/value.
	LabelManaged = "dev.spawner.managed"
	// LabelBackend carries the logical workload name of a managed
	// container.
	LabelBackend = "dev.spawner.backend"

	apiVersion         = "1.41"
	requestTimeout     = 30 * time.Second
	stopGraceSeconds   = 10
	statsThrottle      = 10 * time.Second
	eventChannelBuffer = 100
)

// Interface wraps the runtime client. The handle is cheap to share:
// all methods are safe for concurrent use and the underlying connection
// is never re-dialed per call.
type Interface struct {
	cli           apiClient
	runtime       string
	statsInterval time.Duration
	logger        zerolog.Logger
}

// Connect dials the container runtime over the transport described by
// cfg and verifies it is reachable. The optional runtime override in
// cfg is applied to every container created through the returned
// handle.
func Connect(ctx context.Context, cfg *config.DockerConfig, logger zerolog.Logger) (*Interface, error) {
	opts := []dockerclient.Opt{
		dockerclient.WithVersion(apiVersion),
		dockerclient.WithTimeout(requestTimeout),
	}

	switch cfg.Transport {
	case config.DockerTransportSocket:
		opts = append(opts, dockerclient.WithHost("unix://"+cfg.Socket))
	case config.DockerTransportHTTP:
		opts = append(opts, dockerclient.WithHost(cfg.Endpoint))
	default:
		return nil, fmt.Errorf("unknown docker transport %q", cfg.Transport)
	}

	cli, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("pinging docker daemon: %w", err)
	}

	return &Interface{
		cli:           cli,
		runtime:       cfg.Runtime,
		statsInterval: statsThrottle,
		logger:        logger,
	}, nil
}

// Close releases the underlying runtime connection.
func (i *Interface) Close() error {
	return i.cli.Close()
}

// RunContainer creates and starts a workload container. The well-known
// container port is published to a runtime-assigned host port, and the
// managed/backend labels are attached for external discovery. Creating
// a second container with the same name fails with the runtime's
// name-conflict error; no idempotency is provided here.
func (i *Interface) RunContainer(ctx context.Context, name, imageRef string, env map[string]string) error {
	envList := make([]string, 0, len(env))
	for k, v := range env {
		envList = append(envList, fmt.Sprintf("%s=%s", k, v))
	}

	port := nat.Port(fmt.Sprintf("%d/tcp", ContainerPort))

	containerCfg := &container.Config{
		Image:        imageRef,
		Env:          envList,
		ExposedPorts: nat.PortSet{port: struct{}{}},
		Labels: map[string]string{
			LabelManaged: "true",
			LabelBackend: name,
		},
	}

	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			// Host port 0 asks the runtime for an ephemeral port.
			port: []nat.PortBinding{{HostPort: "0"}},
		},
		Runtime: i.runtime,
	}

	created, err := i.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name)
	if err != nil {
		return fmt.Errorf("creating container %s: %w", name, err)
	}

	if err := i.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("starting container %s: %w", name, err)
	}

	return nil
}

// StopContainer issues a graceful stop, giving the container a fixed
// grace period before the runtime kills it.
func (i *Interface) StopContainer(ctx context.Context, name string) error {
	timeout := stopGraceSeconds
	if err := i.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("stopping container %s: %w", name, err)
	}
	return nil
}

// IsRunning reports whether the named container is running and, when it
// has stopped, its recorded exit code. A container the runtime does not
// know about is a normal outcome: (false, nil, nil). Only genuine
// backend failures surface as errors.
func (i *Interface) IsRunning(ctx context.Context, name string) (bool, *int, error) {
	inspect, err := i.cli.ContainerInspect(ctx, name)
	if err != nil {
		if dockerclient.IsErrNotFound(err) {
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("inspecting container %s: %w", name, err)
	}

	if inspect.State == nil {
		return false, nil, fmt.Errorf("no state found for container %s", name)
	}

	if inspect.State.Running {
		return true, nil, nil
	}

	exitCode := inspect.State.ExitCode
	return false, &exitCode, nil
}

// GetPort looks up the host port bound to the well-known container
// port. It never fails: a missing container, absent network settings,
// absent binding, or unparseable port all report ok=false.
func (i *Interface) GetPort(ctx context.Context, name string) (uint16, bool) {
	inspect, err := i.cli.ContainerInspect(ctx, name)
	if err != nil {
		i.logger.Debug().Err(err).Str("container", name).Msg("Inspect failed during port lookup")
		return 0, false
	}

	if inspect.NetworkSettings == nil {
		return 0, false
	}

	bindings := inspect.NetworkSettings.Ports[nat.Port(fmt.Sprintf("%d/tcp", ContainerPort))]
	if len(bindings) == 0 {
		return 0, false
	}

	port, err := strconv.ParseUint(bindings[0].HostPort, 10, 16)
	if err != nil {
		i.logger.Debug().Str("container", name).Str("port", bindings[0].HostPort).Msg("Non-numeric host port")
		return 0, false
	}

	return uint16(port), true
}

// PullImage pulls the given image, draining the layer progress stream
// to completion. The first layer error aborts the pull.
func (i *Interface) PullImage(ctx context.Context, imageRef string, credentials *registry.AuthConfig) error {
	options := image.PullOptions{}
	if credentials != nil {
		encoded, err := registry.EncodeAuthConfig(*credentials)
		if err != nil {
			return fmt.Errorf("encoding registry credentials: %w", err)
		}
		options.RegistryAuth = encoded
	}

	progress, err := i.cli.ImagePull(ctx, imageRef, options)
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", imageRef, err)
	}
	defer progress.Close()

	dec := json.NewDecoder(progress)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading pull progress for %s: %w", imageRef, err)
		}
		if msg.Error != nil {
			return fmt.Errorf("pulling image %s: %w", imageRef, msg.Error)
		}
	}
}
