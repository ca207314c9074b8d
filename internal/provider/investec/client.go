package investec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/dvloznov/ledger-sync/internal/domain"
)

// DefaultBaseURL is the production API host.
const DefaultBaseURL = "https://openapi.investec.com"

const (
	tokenPath       = "/identity/v2/oauth2/token"
	accountsPath    = "/za/pb/v1/accounts"
	defaultTimeout  = 30 * time.Second
	maxErrorBodyLen = 512
)

// Config configures the client.
type Config struct {
	BaseURL  string
	ClientID string
	// SecretID is SENSITIVE - never logged.
	SecretID string
	// APIKey is SENSITIVE - never logged.
	APIKey string

	// HTTPClient is an optional base client (for testing).
	HTTPClient *http.Client
	Timeout    time.Duration
}

// Client is a read-only provider client. Tokens are fetched lazily and
// reused until they expire.
type Client struct {
	baseURL    string
	tokens     oauth2.TokenSource
	httpClient *http.Client
}

// NewClient builds a client. ctx scopes token fetches for the client's
// lifetime.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	var missing []string
	if cfg.ClientID == "" {
		missing = append(missing, "client id")
	}
	if cfg.SecretID == "" {
		missing = append(missing, "secret id")
	}
	if cfg.APIKey == "" {
		missing = append(missing, "api key")
	}
	if len(missing) > 0 {
		return nil, domain.NewError(domain.ConfigurationMissing, "provider client",
			"provider credentials missing: "+strings.Join(missing, ", "), nil)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	base := cfg.HTTPClient
	if base == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		base = &http.Client{Timeout: timeout}
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	keyed := &http.Client{
		Timeout:   base.Timeout,
		Transport: &apiKeyTransport{key: cfg.APIKey, base: transport},
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.SecretID,
		TokenURL:     baseURL + tokenPath,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, keyed)
	tokens := cc.TokenSource(tokenCtx)

	return &Client{
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: oauth2.NewClient(tokenCtx, tokens),
	}, nil
}

// Authenticate fetches (or reuses) an access token.
func (c *Client) Authenticate(ctx context.Context) error {
	if _, err := c.tokens.Token(); err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return classify("authenticate", err)
		}
		return domain.NewError(domain.NetworkUnreachable, "authenticate", "provider token endpoint is unreachable", err)
	}
	return nil
}

// ListAccounts returns every account visible to the credentials.
func (c *Client) ListAccounts(ctx context.Context) ([]domain.ProviderAccount, error) {
	resp, err := doGet[accountsResponse](ctx, c, accountsPath)
	if err != nil {
		return nil, classify("list accounts", err)
	}
	out := make([]domain.ProviderAccount, 0, len(resp.Data.Accounts))
	for _, a := range resp.Data.Accounts {
		out = append(out, a.toDomain())
	}
	return out, nil
}

// ListTransactions returns the transactions of accountID between from and
// to, inclusive.
func (c *Client) ListTransactions(ctx context.Context, accountID string, from, to civil.Date) ([]domain.ProviderTransaction, error) {
	params := url.Values{}
	params.Set("fromDate", from.String())
	params.Set("toDate", to.String())
	path := accountsPath + "/" + url.PathEscape(accountID) + "/transactions?" + params.Encode()

	resp, err := doGet[transactionsResponse](ctx, c, path)
	if err != nil {
		return nil, classify("list transactions", err)
	}
	txs := resp.Data.Transactions
	for i := range txs {
		if txs[i].AccountID == "" {
			txs[i].AccountID = accountID
		}
	}
	return txs, nil
}

func doGet[T any](ctx context.Context, c *Client, path string) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	var result T
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// apiKeyTransport adds the x-api-key header every provider endpoint
// (including the token endpoint) requires.
type apiKeyTransport struct {
	key  string
	base http.RoundTripper
}

func (t *apiKeyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("x-api-key", t.key)
	return t.base.RoundTrip(r)
}
