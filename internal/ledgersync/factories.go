package ledgersync

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-sync/internal/domain"
	"github.com/dvloznov/ledger-sync/internal/ledger"
	"github.com/dvloznov/ledger-sync/internal/provider/investec"
)

// InvestecProviders builds provider clients from profile credentials.
func InvestecProviders(httpClient *http.Client) ProviderFactory {
	return func(ctx context.Context, profile domain.SyncProfile) (Provider, error) {
		client, err := investec.NewClient(ctx, investec.Config{
			BaseURL:    profile.Provider.BaseURL,
			ClientID:   profile.Provider.ClientID,
			SecretID:   profile.Provider.SecretID,
			APIKey:     profile.Provider.APIKey,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// LedgerSessions builds ledger sessions rooted at the execution's working
// directory. purge removes the directory when the session closes.
func LedgerSessions(httpClient *http.Client, purge bool, log zerolog.Logger) SessionFactory {
	return func(profile domain.SyncProfile, workDir string) LedgerSession {
		return ledger.NewSession(ledger.Options{
			ServerURL:  profile.Ledger.ServerURL,
			Dir:        workDir,
			Purge:      purge,
			HTTPClient: httpClient,
			Logger:     log.With().Str("profile_id", profile.ID).Logger(),
		})
	}
}
