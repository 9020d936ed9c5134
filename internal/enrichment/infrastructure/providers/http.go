// Package providers adapts external enrichment APIs to the waterfall's
// Provider interface.
package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/domain"
)

const (
	maxErrorBody    = 512
	maxResponseBody = 1 << 20
)

// HTTPProvider calls a JSON endpoint that accepts a domain.Query and answers
// with {"fields": {...}}.
type HTTPProvider struct {
	name   string
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPProvider creates a provider posting to url. Each request is bounded
// by timeout in addition to the caller's context.
func NewHTTPProvider(name, url, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		name:   name,
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

// WithClient replaces the HTTP client.
func (p *HTTPProvider) WithClient(client *http.Client) *HTTPProvider {
	if client != nil {
		p.client = client
	}
	return p
}

func (p *HTTPProvider) Name() string {
	return p.name
}

type response struct {
	Fields map[string]string `json:"fields"`
}

// Attempt posts q and decodes the fields found. Transport failures and
// timeouts carry no status code; non-2xx answers carry theirs.
func (p *HTTPProvider) Attempt(ctx context.Context, q domain.Query) (domain.PartialResult, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return domain.PartialResult{}, fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return domain.PartialResult{}, &domain.ProviderError{Provider: p.name, StatusCode: http.StatusBadRequest, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
		req.Header.Set("X-API-Key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return domain.PartialResult{}, err
		}
		return domain.PartialResult{}, &domain.ProviderError{Provider: p.name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return domain.PartialResult{}, &domain.ProviderError{
			Provider:   p.name,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s: %s", http.StatusText(resp.StatusCode), strings.TrimSpace(string(snippet))),
		}
	}

	var decoded response
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&decoded); err != nil {
		return domain.PartialResult{}, &domain.ProviderError{
			Provider:   p.name,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode response: %w", err),
		}
	}

	fields := make(domain.Fields, len(decoded.Fields))
	for k, v := range decoded.Fields {
		name := domain.FieldName(strings.ToLower(strings.TrimSpace(k)))
		if name.IsKnown() && strings.TrimSpace(v) != "" {
			fields[name] = v
		}
	}
	return domain.PartialResult{Fields: fields}, nil
}
