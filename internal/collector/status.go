package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// IdleState is what a workload reports about itself when asked. It is
// re-fetched on every reconciliation pass, never cached.
type IdleState struct {
	SecondsInactive uint32 `json:"seconds_inactive"`
}

// statusClient fetches a workload's self-reported idle state.
type statusClient interface {
	IdleState(ctx context.Context, resourceName string) (IdleState, error)
}

const statusRequestTimeout = 10 * time.Second

// HTTPStatusClient queries the status endpoint a workload exposes on
// the application port, addressed by its resource name inside the
// namespace.
type HTTPStatusClient struct {
	namespace string
	port      int
	client    *http.Client
}

func NewHTTPStatusClient(namespace string, port int) *HTTPStatusClient {
	return &HTTPStatusClient{
		namespace: namespace,
		port:      port,
		client:    &http.Client{Timeout: statusRequestTimeout},
	}
}

func (c *HTTPStatusClient) IdleState(ctx context.Context, resourceName string) (IdleState, error) {
	url := fmt.Sprintf("http://%s.%s:%d/status", resourceName, c.namespace, c.port)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return IdleState{}, fmt.Errorf("building status request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return IdleState{}, fmt.Errorf("requesting workload status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return IdleState{}, fmt.Errorf("workload status returned %d", resp.StatusCode)
	}

	var state IdleState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		return IdleState{}, fmt.Errorf("decoding workload status: %w", err)
	}

	return state, nil
}
