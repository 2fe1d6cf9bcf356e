package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ciris-ai/ciris-core/internal/graph"
	"github.com/ciris-ai/ciris-core/internal/httpclient"
)

// HTTPProfileProvider fetches user profile data from an external
// service over GET <baseURL>/profiles/<userID>, demonstrating how a
// real deployment wires an external ProfileProvider using the shared
// retrying client (internal/httpclient) rather than a bare
// http.DefaultClient.
type HTTPProfileProvider struct {
	baseURL string
	client  *httpclient.Client
}

func NewHTTPProfileProvider(baseURL string) *HTTPProfileProvider {
	return &HTTPProfileProvider{baseURL: baseURL, client: httpclient.New()}
}

func (p *HTTPProfileProvider) FetchProfile(ctx context.Context, userID string) (map[string]graph.AttrValue, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/profiles/"+userID, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if resp == nil {
			return nil, err
		}
	}
	if resp == nil {
		return nil, fmt.Errorf("profile provider: no response for user %s", userID)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("profile provider: status %d for user %s", resp.StatusCode, userID)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("profile provider: decode response: %w", err)
	}

	out := make(map[string]graph.AttrValue, len(raw))
	for k, v := range raw {
		out[k] = graph.FromAny(v)
	}
	return out, nil
}
