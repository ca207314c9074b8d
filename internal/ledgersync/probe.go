package ledgersync

import (
	"context"

	"github.com/dvloznov/ledger-sync/internal/domain"
	"github.com/dvloznov/ledger-sync/internal/reconcile"
)

// TestProvider checks the profile's provider credentials by authenticating
// and listing accounts. Nothing is written anywhere.
func (e *Executor) TestProvider(ctx context.Context, profile domain.SyncProfile, rep reconcile.Reporter) domain.Result {
	if err := profile.ValidateProvider(); err != nil {
		return e.testFailed(profile.ID, "Provider test", rep, err)
	}

	rep.Info("Testing provider credentials for %s", profile.DisplayName())
	provider, err := e.providers(ctx, profile)
	if err != nil {
		return e.testFailed(profile.ID, "Provider test", rep, err)
	}
	if err := provider.Authenticate(ctx); err != nil {
		return e.testFailed(profile.ID, "Provider test", rep, err)
	}
	accounts, err := provider.ListAccounts(ctx)
	if err != nil {
		return e.testFailed(profile.ID, "Provider test", rep, err)
	}
	for _, a := range accounts {
		rep.Info("Account: %s (%s)", reconcile.PreferredName(a), a.ProductName)
	}

	msg := "Provider connection OK"
	if len(accounts) == 1 {
		rep.Success("%s: 1 account", msg)
	} else {
		rep.Success("%s: %d accounts", msg, len(accounts))
	}
	return domain.Succeeded(msg, domain.ImportResult{})
}

// TestLedger checks the ledger target by probing the server and opening the
// budget in workDir. Nothing is pushed.
func (e *Executor) TestLedger(ctx context.Context, profile domain.SyncProfile, workDir string, rep reconcile.Reporter) domain.Result {
	if err := profile.ValidateLedger(); err != nil {
		return e.testFailed(profile.ID, "Ledger test", rep, err)
	}

	rep.Info("Testing ledger connection for %s", profile.DisplayName())
	session := e.sessions(profile, workDir)
	defer func() {
		if err := session.Close(); err != nil {
			e.log.Error().Err(err).Str("profile_id", profile.ID).Msg("failed to close ledger session")
		}
	}()

	if err := session.Ping(ctx); err != nil {
		return e.testFailed(profile.ID, "Ledger test", rep, err)
	}
	rep.Info("Ledger server %s is reachable", profile.Ledger.ServerURL)

	if err := session.Initialize(ctx); err != nil {
		return e.testFailed(profile.ID, "Ledger test", rep, err)
	}
	if err := session.Attach(ctx, profile.Ledger.BudgetID, profile.Ledger.Password); err != nil {
		return e.testFailed(profile.ID, "Ledger test", rep, err)
	}
	accounts, err := session.Accounts(ctx)
	if err != nil {
		return e.testFailed(profile.ID, "Ledger test", rep, err)
	}

	msg := "Ledger connection OK"
	rep.Success("%s: budget %s has %d accounts", msg, profile.Ledger.BudgetID, len(accounts))
	return domain.Succeeded(msg, domain.ImportResult{})
}

func (e *Executor) testFailed(profileID, what string, rep reconcile.Reporter, err error) domain.Result {
	msg := describeChain(err)
	rep.Error("%s failed: %s", what, msg)
	e.log.Warn().Err(err).Str("profile_id", profileID).Str("kind", string(domain.KindOf(err))).Msg(what + " failed")

	res := domain.Failed(err)
	res.Message = msg
	return res
}
