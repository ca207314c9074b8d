package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrEncryption is returned when the server cannot open the budget file
	// with the supplied encryption key (or needs one that was not sent).
	ErrEncryption = errors.New("ledger: budget encryption key rejected")

	// ErrInvalidState is returned when a session operation is called in the
	// wrong lifecycle state.
	ErrInvalidState = errors.New("ledger: invalid session state")

	// ErrLocked is returned when the working directory lock is already held.
	ErrLocked = errors.New("ledger: working directory is locked")
)

// Error reasons reported by the ledger server.
const (
	reasonDecryptFailure = "decrypt-failure"
	reasonInvalidKey     = "invalid-key"
	reasonMissingKey     = "missing-key"
	reasonFileNotFound   = "file-not-found"
	reasonUnauthorized   = "unauthorized"
)

// APIError is a non-2xx response from the ledger server.
type APIError struct {
	StatusCode int
	Reason     string
	Details    string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ledger API error: %s (status=%d, reason=%s)", e.Details, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("ledger API error: status=%d, reason=%s", e.StatusCode, e.Reason)
}

// IsEncryption reports whether the server failed to decrypt the budget.
func (e *APIError) IsEncryption() bool {
	switch e.Reason {
	case reasonDecryptFailure, reasonInvalidKey, reasonMissingKey:
		return true
	}
	return false
}

// IsNotFound reports whether the budget does not exist on the server.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404 || e.Reason == reasonFileNotFound
}

// IsAuthError reports whether the server rejected the session token or
// password.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == 401 || e.StatusCode == 403 || e.Reason == reasonUnauthorized
}

func asAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	ok := errors.As(err, &apiErr)
	return apiErr, ok
}
