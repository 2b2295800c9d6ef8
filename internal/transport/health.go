package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/lfzhong/excel-agent/internal/errors"
)

// Health probes the backend's /health endpoint and returns nil when it
// reports healthy. Used by the CLI as a preflight before opening a session.
func Health(ctx context.Context, client *http.Client, baseURL string) error {
	if client == nil {
		client = http.DefaultClient
	}

	u := strings.TrimRight(baseURL, "/") + "/health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(errors.CodeTransportConnectFailed, "failed to build health request", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(errors.CodeTransportConnectFailed, "health check failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.New(errors.CodeTransportBadStatus, "health check returned status "+resp.Status)
	}

	var status struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return errors.Wrap(errors.CodeDecodeMalformed, "health response is not valid JSON", err)
	}
	if status.Status != "healthy" {
		return errors.New(errors.CodeUpstreamFailed, "backend reported status "+status.Status)
	}
	return nil
}
