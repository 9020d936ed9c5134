package providers

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/omarbuciofgr-sudo/birvanoio/pkg/config"
)

// clientCredentialsClient returns an HTTP client that fetches and refreshes
// a bearer token from s.TokenURL before each request.
func clientCredentialsClient(s config.ProviderConfig, timeout time.Duration) *http.Client {
	cc := &clientcredentials.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		TokenURL:     s.TokenURL,
		Scopes:       s.Scopes,
	}
	base := &http.Client{Timeout: timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	client := cc.Client(ctx)
	client.Timeout = timeout
	return client
}

func usesClientCredentials(s config.ProviderConfig) bool {
	return s.TokenURL != ""
}

func hasCredentials(s config.ProviderConfig) bool {
	if s.URL == "" {
		return false
	}
	if usesClientCredentials(s) {
		return s.ClientID != "" && s.ClientSecret != ""
	}
	return s.APIKey != ""
}
