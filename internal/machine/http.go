package machine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alfredjeanlab/o3gate/internal/model"
)

// HTTPProvider fetches the machine record from the remote configuration
// service at GET {base}/v1/machines/{id}/config.
type HTTPProvider struct {
	baseURL    string
	machineID  string
	token      string
	httpClient *http.Client
}

// NewHTTPProvider creates a provider for one machine. When token is
// non-empty, an Authorization header is set on the request.
func NewHTTPProvider(baseURL, machineID, token string) *HTTPProvider {
	return &HTTPProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		machineID:  machineID,
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *HTTPProvider) Source() string {
	return p.baseURL + p.path()
}

func (p *HTTPProvider) path() string {
	return "/v1/machines/" + url.PathEscape(p.machineID) + "/config"
}

func (p *HTTPProvider) Load(ctx context.Context) (*model.MachineConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+p.path(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	doc := newDocument()
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return doc.config(), nil
}

// APIError represents an error response from the configuration service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}
