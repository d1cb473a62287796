package bigquery

import (
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

var (
	// ErrNotFound is returned when the dataset is missing, empty, or holds no billing export table.
	ErrNotFound = errors.New("billing export not found")

	// ErrAuth is returned when credentials cannot be obtained or are rejected.
	ErrAuth = errors.New("authentication failed")

	// ErrTransport is returned for network failures and unexpected responses.
	ErrTransport = errors.New("transport failure")
)

// classify wraps err in ErrAuth or ErrTransport depending on its cause.
func classify(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %s: %w", ErrAuth, op, err)
		}
		return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return fmt.Errorf("%w: %s: %w", ErrAuth, op, err)
	}

	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// ErrorClass names the failure class of err for metrics and API responses.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "unknown"
	}
}
