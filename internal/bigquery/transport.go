package bigquery

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	bqapi "google.golang.org/api/bigquery/v2"
	"google.golang.org/api/option"

	"github.com/nais/gcp-cost/internal/config"
)

// ClientOptions returns the options every BigQuery client in this repo is built with:
// an authenticated HTTP client honouring the transport security setting.
func ClientOptions(ctx context.Context, cfg config.BigQuery) ([]option.ClientOption, error) {
	httpClient, err := newHTTPClient(ctx, cfg.CredentialsFile, cfg.StrictTransportSecurity)
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithHTTPClient(httpClient)}, nil
}

func newHTTPClient(ctx context.Context, credentialsFile string, strict bool) (*http.Client, error) {
	creds, err := findCredentials(ctx, credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuth, err)
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	if !strict {
		base.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // G402: opt-in for intercepting proxies
	}

	return &http.Client{
		Transport: &oauth2.Transport{
			Source: creds.TokenSource,
			Base:   base,
		},
	}, nil
}

func findCredentials(ctx context.Context, credentialsFile string) (*google.Credentials, error) {
	if credentialsFile == "" {
		creds, err := google.FindDefaultCredentials(ctx, bqapi.BigqueryScope)
		if err != nil {
			return nil, fmt.Errorf("failed to find default credentials: %w", err)
		}
		return creds, nil
	}

	data, err := os.ReadFile(credentialsFile) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var key struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file %s: %w", credentialsFile, err)
	}

	creds, err := google.CredentialsFromJSONWithType(ctx, data, google.CredentialsType(key.Type), bqapi.BigqueryScope)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials from %s: %w", credentialsFile, err)
	}
	return creds, nil
}
