package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/domain"
	"github.com/omarbuciofgr-sudo/birvanoio/pkg/config"
	"github.com/omarbuciofgr-sudo/birvanoio/pkg/observability"
)

func TestHTTPProvider_Attempt(t *testing.T) {
	var got domain.Query
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"fields":{"email":"ada@acme.com","PHONE":"+1 555","shoe_size":"9"}}`))
	}))
	defer server.Close()

	provider := NewHTTPProvider("apollo", server.URL, "secret", time.Second)
	result, err := provider.Attempt(context.Background(), domain.Query{
		Domain:  "acme.com",
		Known:   domain.Fields{domain.FieldFullName: "Ada"},
		Missing: []domain.FieldName{domain.FieldEmail, domain.FieldPhone},
	})
	require.NoError(t, err)

	assert.Equal(t, "acme.com", got.Domain)
	assert.Equal(t, domain.Fields{domain.FieldEmail: "ada@acme.com", domain.FieldPhone: "+1 555"}, result.Fields)
}

func TestHTTPProvider_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			_, err := NewHTTPProvider("p", server.URL, "k", time.Second).Attempt(context.Background(), domain.Query{})
			var pe *domain.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.retryable, domain.IsRetryable(err))
		})
	}
}

func TestHTTPProvider_UnreadableSuccessIsDefinitive(t *testing.T) {
	tests := []struct {
		name string
		body func(w http.ResponseWriter)
	}{
		{"malformed json", func(w http.ResponseWriter) {
			_, _ = w.Write([]byte(`{"fields":`))
		}},
		{"oversized body", func(w http.ResponseWriter) {
			_, _ = w.Write([]byte(`{"fields":{"email":"`))
			_, _ = w.Write([]byte(strings.Repeat("a", maxResponseBody)))
			_, _ = w.Write([]byte(`"}}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				tt.body(w)
			}))
			defer server.Close()

			_, err := NewHTTPProvider("p", server.URL, "k", time.Second).Attempt(context.Background(), domain.Query{})
			var pe *domain.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, http.StatusOK, pe.StatusCode)
			assert.False(t, domain.IsRetryable(err))
		})
	}
}

func TestHTTPProvider_TimeoutIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer server.Close()

	_, err := NewHTTPProvider("slow", server.URL, "k", 20*time.Millisecond).Attempt(context.Background(), domain.Query{})
	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
}

type scriptedProvider struct {
	calls int
	err   error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Attempt(context.Context, domain.Query) (domain.PartialResult, error) {
	p.calls++
	return domain.PartialResult{}, p.err
}

func TestBreakerProvider_OpensOnRetryableFailures(t *testing.T) {
	inner := &scriptedProvider{err: &domain.ProviderError{Provider: "scripted", StatusCode: 503, Err: errors.New("down")}}
	provider := NewBreakerProvider(inner, BreakerConfig{FailureThreshold: 2, Timeout: time.Minute}, observability.DiscardLogger())

	for i := 0; i < 2; i++ {
		_, err := provider.Attempt(context.Background(), domain.Query{})
		require.Error(t, err)
	}
	assert.Equal(t, "open", provider.State())

	_, err := provider.Attempt(context.Background(), domain.Query{})
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.False(t, domain.IsRetryable(err))
	assert.Equal(t, 2, inner.calls)
}

func TestBreakerProvider_ClientErrorsDoNotTrip(t *testing.T) {
	inner := &scriptedProvider{err: &domain.ProviderError{Provider: "scripted", StatusCode: 404, Err: errors.New("no match")}}
	provider := NewBreakerProvider(inner, BreakerConfig{FailureThreshold: 1, Timeout: time.Minute}, observability.DiscardLogger())

	for i := 0; i < 3; i++ {
		_, err := provider.Attempt(context.Background(), domain.Query{})
		require.Error(t, err)
	}
	assert.Equal(t, "closed", provider.State())
	assert.Equal(t, 3, inner.calls)
}

func TestBuild(t *testing.T) {
	chain := Build([]config.ProviderConfig{
		{Name: "apollo", URL: "http://apollo", APIKey: "a"},
		{Name: "pdl", URL: "http://pdl", APIKey: "b"},
	}, time.Second, DefaultBreakerConfig(), nil)

	providers, err := chain.Providers()
	require.NoError(t, err)
	assert.Len(t, providers, 2)
	assert.Equal(t, []string{"apollo", "pdl"}, chain.Names())

	_, err = Build([]config.ProviderConfig{{Name: "apollo", URL: "http://apollo"}}, time.Second, DefaultBreakerConfig(), nil).Providers()
	assert.ErrorIs(t, err, domain.ErrMissingCredentials)

	providers, err = Build(nil, time.Second, DefaultBreakerConfig(), nil).Providers()
	require.NoError(t, err)
	assert.Empty(t, providers)
}

func TestBuild_ClientCredentials(t *testing.T) {
	tokenCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"issued","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("POST /enrich", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer issued", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"fields":{"email":"ada@acme.com"}}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	chain := Build([]config.ProviderConfig{{
		Name:         "pdl",
		URL:          server.URL + "/enrich",
		TokenURL:     server.URL + "/token",
		ClientID:     "id",
		ClientSecret: "secret",
	}}, time.Second, DefaultBreakerConfig(), observability.DiscardLogger())

	providers, err := chain.Providers()
	require.NoError(t, err)
	require.Len(t, providers, 1)

	for i := 0; i < 2; i++ {
		result, err := providers[0].Attempt(context.Background(), domain.Query{})
		require.NoError(t, err)
		assert.Equal(t, "ada@acme.com", result.Fields[domain.FieldEmail])
	}
	assert.Equal(t, 1, tokenCalls)

	_, err = Build([]config.ProviderConfig{{
		Name:     "pdl",
		URL:      server.URL + "/enrich",
		TokenURL: server.URL + "/token",
		ClientID: "id",
	}}, time.Second, DefaultBreakerConfig(), nil).Providers()
	assert.ErrorIs(t, err, domain.ErrMissingCredentials)
}
