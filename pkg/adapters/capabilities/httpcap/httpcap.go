package httpcap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/aescanero/capo/pkg/domain"
)

// RecordCountHeader optionally carries the number of records in a response
const RecordCountHeader = "X-Record-Count"

const defaultTimeout = 30 * time.Second

// maxResponseBytes bounds how much of a response body is read
const maxResponseBytes = 10 << 20

// Config configures a remote HTTP capability
type Config struct {
	URL     string            `json:"url"`
	Timeout string            `json:"timeout"`
	Headers map[string]string `json:"headers"`
}

// Request is the JSON body posted to the endpoint
type Request struct {
	TenantID   int             `json:"tenant_id"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// Capability posts each call to a remote endpoint
type Capability struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// New creates an HTTP capability. A nil client uses a client with the
// configured timeout.
func New(cfg Config, client *http.Client) (*Capability, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("url is required")
	}

	timeout := defaultTimeout
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", cfg.Timeout, err)
		}
		timeout = d
	}

	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &Capability{
		url:     cfg.URL,
		headers: cfg.Headers,
		client:  client,
	}, nil
}

// Execute posts the call and maps the response to a result. Non-2xx
// responses are failures coded HTTP_<status>; transport errors are returned.
func (c *Capability) Execute(ctx context.Context, tenantID int, parameters json.RawMessage) (*domain.CapabilityResult, error) {
	if len(parameters) > 0 && !json.Valid(parameters) {
		return nil, fmt.Errorf("parameters are not valid JSON")
	}

	body, err := json.Marshal(Request{TenantID: tenantID, Parameters: parameters})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call capability endpoint: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.FailureResult(
			fmt.Sprintf("HTTP_%d", resp.StatusCode),
			fmt.Sprintf("capability endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(payload)),
		), nil
	}

	var data json.RawMessage
	if len(bytes.TrimSpace(payload)) > 0 {
		if !json.Valid(payload) {
			return nil, fmt.Errorf("capability endpoint returned invalid JSON")
		}
		data = payload
	}

	var count *int
	if header := resp.Header.Get(RecordCountHeader); header != "" {
		n, err := strconv.Atoi(header)
		if err != nil {
			return nil, fmt.Errorf("invalid %s header %q: %w", RecordCountHeader, header, err)
		}
		count = &n
	}

	return domain.SuccessResult(data, count), nil
}
