package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dvloznov/ledger-sync/internal/domain"
)

const (
	headerToken         = "X-Ledger-Token"
	headerEncryptionKey = "X-Ledger-Encryption-Key"

	defaultTimeout = 60 * time.Second
)

// Credentials authorise budget requests.
type Credentials struct {
	Token         string
	EncryptionKey string
}

// Remote is a minimal HTTP client for the ledger sync server.
type Remote struct {
	baseURL    string
	httpClient *http.Client
}

// NewRemote creates a client for serverURL. httpClient may be nil.
func NewRemote(serverURL string, httpClient *http.Client) *Remote {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Remote{
		baseURL:    strings.TrimRight(serverURL, "/"),
		httpClient: httpClient,
	}
}

// ServerURL returns the server address the client talks to.
func (r *Remote) ServerURL() string {
	return r.baseURL
}

// Probe checks that the server answers its health endpoint.
func (r *Remote) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return domain.NewError(domain.NetworkUnreachable, "probe", "invalid ledger server address "+r.baseURL, err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return domain.NewError(domain.NetworkUnreachable, "probe", "ledger server "+r.baseURL+" is unreachable", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.NewError(domain.NetworkUnreachable, "probe",
			fmt.Sprintf("ledger server %s is not healthy (status %d)", r.baseURL, resp.StatusCode), nil)
	}
	return nil
}

// Login exchanges the server password for a session token.
func (r *Remote) Login(ctx context.Context, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := r.do(ctx, http.MethodPost, "/account/login", Credentials{}, map[string]string{"password": password}, &out)
	if err != nil {
		if apiErr, ok := asAPIError(err); ok && (apiErr.IsAuthError() || apiErr.StatusCode == http.StatusBadRequest) {
			return "", domain.NewError(domain.AuthenticationFailed, "login", "ledger server rejected the password", err)
		}
		return "", fmt.Errorf("Login: %w", err)
	}
	return out.Token, nil
}

// Snapshot downloads the budget budgetID.
func (r *Remote) Snapshot(ctx context.Context, budgetID string, creds Credentials) (*Snapshot, error) {
	var snap Snapshot
	if err := r.do(ctx, http.MethodGet, "/budgets/"+url.PathEscape(budgetID)+"/snapshot", creds, nil, &snap); err != nil {
		return nil, err
	}
	if snap.BudgetID == "" {
		snap.BudgetID = budgetID
	}
	return &snap, nil
}

// Push uploads a changeset to budgetID.
func (r *Remote) Push(ctx context.Context, budgetID string, creds Credentials, cs Changeset) (*PushResult, error) {
	var res PushResult
	if err := r.do(ctx, http.MethodPost, "/budgets/"+url.PathEscape(budgetID)+"/changes", creds, cs, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// do sends one request and decodes the envelope's data into out. Transport
// failures come back as NetworkUnreachable; non-2xx as *APIError.
func (r *Remote) do(ctx context.Context, method, path string, creds Credentials, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if creds.Token != "" {
		req.Header.Set(headerToken, creds.Token)
	}
	if creds.EncryptionKey != "" {
		req.Header.Set(headerEncryptionKey, creds.EncryptionKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return domain.NewError(domain.NetworkUnreachable, method+" "+path, "ledger server "+r.baseURL+" is unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.NewError(domain.NetworkUnreachable, method+" "+path, "failed to read ledger server response", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 || env.Status == "error" {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if decodeErr == nil {
			apiErr.Reason = env.Reason
			apiErr.Details = env.Details
		} else {
			apiErr.Details = strings.TrimSpace(string(raw))
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("failed to decode response: %w", decodeErr)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}
