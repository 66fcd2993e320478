package docker

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type createCall struct {
	config     *container.Config
	hostConfig *container.HostConfig
	name       string
}

// fakeAPIClient implements apiClient with canned responses.
type fakeAPIClient struct {
	inspectResp container.InspectResponse
	inspectErr  error

	createCalls []createCall
	createErr   error
	startIDs    []string
	startErr    error

	stopCalls   []container.StopOptions
	stopErr     error

	eventCh <-chan events.Message
	errCh   <-chan error

	logsBody  io.ReadCloser
	statsBody io.ReadCloser
	pullBody  io.ReadCloser
	pullErr   error
}

func (f *fakeAPIClient) Events(ctx context.Context, options events.ListOptions) (<-chan events.Message, <-chan error) {
	return f.eventCh, f.errCh
}

func (f *fakeAPIClient) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	f.createCalls = append(f.createCalls, createCall{config: config, hostConfig: hostConfig, name: containerName})
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}
	return container.CreateResponse{ID: "cid-" + containerName}, nil
}

func (f *fakeAPIClient) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	f.startIDs = append(f.startIDs, containerID)
	return f.startErr
}

func (f *fakeAPIClient) ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error {
	f.stopCalls = append(f.stopCalls, options)
	return f.stopErr
}

func (f *fakeAPIClient) ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error) {
	if f.inspectErr != nil {
		return container.InspectResponse{}, f.inspectErr
	}
	return f.inspectResp, nil
}

func (f *fakeAPIClient) ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error) {
	return f.logsBody, nil
}

func (f *fakeAPIClient) ContainerStats(ctx context.Context, containerID string, stream bool) (container.StatsResponseReader, error) {
	return container.StatsResponseReader{Body: f.statsBody}, nil
}

func (f *fakeAPIClient) ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error) {
	return f.pullBody, f.pullErr
}

func (f *fakeAPIClient) Close() error { return nil }

func newTestInterface(cli apiClient) *Interface {
	return &Interface{cli: cli, logger: zerolog.Nop()}
}

func inspectWithState(state *container.State) container.InspectResponse {
	return container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{State: state},
	}
}

func TestIsRunningNotFound(t *testing.T) {
	t.Parallel()

	cli := &fakeAPIClient{inspectErr: errdefs.NotFound(errors.New("no such container"))}
	iface := newTestInterface(cli)

	running, exitCode, err := iface.IsRunning(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, running)
	assert.Nil(t, exitCode)
}

func TestIsRunningStoppedWithExitCode(t *testing.T) {
	t.Parallel()

	cli := &fakeAPIClient{
		inspectResp: inspectWithState(&container.State{Running: false, ExitCode: 137}),
	}
	iface := newTestInterface(cli)

	running, exitCode, err := iface.IsRunning(context.Background(), "dead")
	require.NoError(t, err)
	assert.False(t, running)
	require.NotNil(t, exitCode)
	assert.Equal(t, 137, *exitCode)
}

func TestIsRunningRunningHasNoExitCode(t *testing.T) {
	t.Parallel()

	cli := &fakeAPIClient{
		inspectResp: inspectWithState(&container.State{Running: true, ExitCode: 0}),
	}
	iface := newTestInterface(cli)

	running, exitCode, err := iface.IsRunning(context.Background(), "live")
	require.NoError(t, err)
	assert.True(t, running)
	assert.Nil(t, exitCode)
}

func TestIsRunningBackendErrorPropagates(t *testing.T) {
	t.Parallel()

	backendErr := errors.New("daemon on fire")
	cli := &fakeAPIClient{inspectErr: backendErr}
	iface := newTestInterface(cli)

	_, _, err := iface.IsRunning(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, backendErr)
}

func TestGetPort(t *testing.T) {
	t.Parallel()

	port := nat.Port("8080/tcp")

	tests := []struct {
		name     string
		resp     container.InspectResponse
		err      error
		wantPort uint16
		wantOK   bool
	}{
		{
			name: "bound port",
			resp: container.InspectResponse{
				NetworkSettings: &container.NetworkSettings{
					NetworkSettingsBase: container.NetworkSettingsBase{
						Ports: nat.PortMap{port: []nat.PortBinding{{HostPort: "32768"}}},
					},
				},
			},
			wantPort: 32768,
			wantOK:   true,
		},
		{
			name:   "no network settings",
			resp:   container.InspectResponse{},
			wantOK: false,
		},
		{
			name: "no binding for port",
			resp: container.InspectResponse{
				NetworkSettings: &container.NetworkSettings{},
			},
			wantOK: false,
		},
		{
			name: "non-numeric host port",
			resp: container.InspectResponse{
				NetworkSettings: &container.NetworkSettings{
					NetworkSettingsBase: container.NetworkSettingsBase{
						Ports: nat.PortMap{port: []nat.PortBinding{{HostPort: "not-a-port"}}},
					},
				},
			},
			wantOK: false,
		},
		{
			name:   "inspect failure",
			err:    errors.New("unreachable"),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cli := &fakeAPIClient{inspectResp: tt.resp, inspectErr: tt.err}
			iface := newTestInterface(cli)

			got, ok := iface.GetPort(context.Background(), "web")
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantPort, got)
			}
		})
	}
}

func TestRunContainer(t *testing.T) {
	t.Parallel()

	cli := &fakeAPIClient{}
	iface := newTestInterface(cli)
	iface.runtime = "runsc"

	err := iface.RunContainer(context.Background(), "spawner-web-1", "nginx:latest", map[string]string{"PORT": "8080"})
	require.NoError(t, err)

	require.Len(t, cli.createCalls, 1)
	call := cli.createCalls[0]
	assert.Equal(t, "spawner-web-1", call.name)
	assert.Equal(t, "nginx:latest", call.config.Image)
	assert.Contains(t, call.config.Env, "PORT=8080")

	// Discovery labels external tooling depends on.
	assert.Equal(t, "true", call.config.Labels[LabelManaged])
	assert.Equal(t, "spawner-web-1", call.config.Labels[LabelBackend])

	// Well-known port exposed to an ephemeral host port.
	port := nat.Port("8080/tcp")
	_, exposed := call.config.ExposedPorts[port]
	assert.True(t, exposed)
	require.Len(t, call.hostConfig.PortBindings[port], 1)
	assert.Equal(t, "0", call.hostConfig.PortBindings[port][0].HostPort)

	assert.Equal(t, "runsc", call.hostConfig.Runtime)

	require.Len(t, cli.startIDs, 1)
	assert.Equal(t, "cid-spawner-web-1", cli.startIDs[0])
}

func TestRunContainerNameConflict(t *testing.T) {
	t.Parallel()

	conflict := errors.New("name already in use")
	cli := &fakeAPIClient{createErr: conflict}
	iface := newTestInterface(cli)

	err := iface.RunContainer(context.Background(), "dup", "nginx", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, conflict)
	assert.Empty(t, cli.startIDs)
}

func TestStopContainerGracePeriod(t *testing.T) {
	t.Parallel()

	cli := &fakeAPIClient{}
	iface := newTestInterface(cli)

	require.NoError(t, iface.StopContainer(context.Background(), "web"))
	require.Len(t, cli.stopCalls, 1)
	require.NotNil(t, cli.stopCalls[0].Timeout)
	assert.Equal(t, 10, *cli.stopCalls[0].Timeout)
}
