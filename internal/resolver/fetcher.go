package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jgoulah/meterwatch/internal/normalize"
	"github.com/jgoulah/meterwatch/pkg/models"
)

// Fetcher retrieves a usage series from a remote source
type Fetcher interface {
	Fetch(ctx context.Context, g models.Granularity) (models.Series, error)
}

// Envelope is the response wrapper returned by the usage endpoints
type Envelope struct {
	Success bool                       `json:"success"`
	Data    map[string]json.RawMessage `json:"data"`
	Count   int                        `json:"count"`
	Error   string                     `json:"error,omitempty"`
}

// HTTPFetcher fetches usage series from a meterwatch API server
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

// NewHTTPFetcher creates a fetcher for the API at baseURL
func NewHTTPFetcher(baseURL string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Fetch requests the granularity's endpoint and normalizes the payload.
// It makes exactly one attempt.
func (f *HTTPFetcher) Fetch(ctx context.Context, g models.Granularity) (models.Series, error) {
	body, err := f.get(ctx, g.Endpoint())
	if err != nil {
		return models.Series{}, err
	}

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return models.Series{}, fmt.Errorf("%w: decoding envelope: %w", ErrBadPayload, err)
	}
	if !env.Success {
		return models.Series{}, fmt.Errorf("%w: success flag not set (%s)", ErrBadPayload, env.Error)
	}
	if env.Data == nil {
		return models.Series{}, fmt.Errorf("%w: no data in response", ErrBadPayload)
	}

	return normalize.Normalize(env.Data, g), nil
}

// Meter requests the current meter document from /api/meter-data
func (f *HTTPFetcher) Meter(ctx context.Context) (models.MeterFile, error) {
	body, err := f.get(ctx, "/api/meter-data")
	if err != nil {
		return models.MeterFile{}, err
	}

	var file models.MeterFile
	if err := json.Unmarshal(body, &file); err != nil {
		return models.MeterFile{}, fmt.Errorf("%w: decoding meter data: %w", ErrBadPayload, err)
	}
	return file, nil
}

func (f *HTTPFetcher) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %w", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d from %s", ErrNetwork, resp.StatusCode, path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrNetwork, err)
	}
	return body, nil
}
