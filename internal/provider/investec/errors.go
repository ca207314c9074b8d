// Package investec is a read-only client for the Investec programmable
// banking API: client-credentials auth, accounts and transactions.
package investec

import (
	"errors"
	"fmt"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/dvloznov/ledger-sync/internal/domain"
)

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("investec API error: %s (status=%d)", e.Message, e.StatusCode)
}

// IsAuthError reports whether the provider rejected the credentials.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// classify maps client failures onto the error taxonomy. Transport failures
// surface from net/http as *url.Error.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return domain.NewError(domain.AuthenticationFailed, op, "provider rejected the client credentials", err)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.IsAuthError() {
		return domain.NewError(domain.AuthenticationFailed, op, "provider rejected the request credentials", err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return domain.NewError(domain.NetworkUnreachable, op, "provider API is unreachable", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
