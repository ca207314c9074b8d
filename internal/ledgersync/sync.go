package ledgersync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/ledger-sync/internal/domain"
	"github.com/dvloznov/ledger-sync/internal/reconcile"
)

// accountOutcome is the import tally of one bound account.
type accountOutcome struct {
	counts     domain.ImportResult
	importable int
	skipped    int
	failed     bool
}

// Sync runs one full execution for profile in workDir. Every log line goes
// to rep; exactly one terminal line summarises the run. The ledger session
// is closed on every path, panics included.
//
// The push is skipped, and the run is a successful no-op, only when no
// account produced importable data and nothing is staged. Accounts or
// categories created during the run are pushed even without transactions,
// so the ledger never misses structure this run already reported creating.
func (e *Executor) Sync(ctx context.Context, profile domain.SyncProfile, workDir string, rep reconcile.Reporter) domain.Result {
	e.enter(profile.ID, StateIdle)

	if err := profile.Validate(); err != nil {
		return e.fail(profile.ID, rep, err)
	}

	rep.Info("Starting sync for %s", profile.DisplayName())

	e.enter(profile.ID, StateConnectivityCheck)
	session := e.sessions(profile, workDir)
	defer func() {
		if err := session.Close(); err != nil {
			e.log.Error().Err(err).Str("profile_id", profile.ID).Msg("failed to close ledger session")
		}
	}()

	if err := session.Ping(ctx); err != nil {
		return e.fail(profile.ID, rep, fmt.Errorf("server unreachable: %w", err))
	}
	rep.Info("Ledger server %s is reachable", profile.Ledger.ServerURL)

	e.enter(profile.ID, StateSessionOpen)
	if err := session.Initialize(ctx); err != nil {
		return e.fail(profile.ID, rep, err)
	}
	if err := session.Attach(ctx, profile.Ledger.BudgetID, profile.Ledger.Password); err != nil {
		return e.fail(profile.ID, rep, err)
	}
	rep.Info("Opened budget %s", profile.Ledger.BudgetID)

	provider, err := e.providers(ctx, profile)
	if err != nil {
		return e.fail(profile.ID, rep, err)
	}
	if err := provider.Authenticate(ctx); err != nil {
		return e.fail(profile.ID, rep, err)
	}
	rep.Info("Authenticated with provider")

	e.enter(profile.ID, StateCategorySync)
	if _, err := reconcile.Categories(ctx, session, profile.EffectiveTaxonomy(e.taxonomy()), rep); err != nil {
		rep.Error("Category sync failed: %s", domain.Describe(err))
	}

	e.enter(profile.ID, StateAccountDiscovery)
	accounts, err := provider.ListAccounts(ctx)
	if err != nil {
		return e.fail(profile.ID, rep, err)
	}
	rep.Info("Found %d provider accounts", len(accounts))

	bindings, err := reconcile.Accounts(ctx, session, accounts, rep)
	if err != nil {
		return e.fail(profile.ID, rep, err)
	}

	e.enter(profile.ID, StatePerAccountImport)
	var (
		total      domain.ImportResult
		importable int
		failed     int
	)
	for _, b := range bindings {
		out := e.importAccount(ctx, provider, session, profile, b, rep)
		total.Add(out.counts)
		importable += out.importable
		if out.failed {
			failed++
		}
	}
	failed += len(accounts) - len(bindings)

	if importable == 0 {
		staged, err := session.HasChanges(ctx)
		if err != nil {
			return e.fail(profile.ID, rep, err)
		}
		if !staged {
			e.enter(profile.ID, StateDone)
			msg := summary(total, failed, len(accounts)) + " (nothing to push)"
			rep.Success("%s", msg)
			return domain.Succeeded(msg, total)
		}
	}

	e.enter(profile.ID, StatePush)
	if _, err := session.Sync(ctx); err != nil {
		return e.fail(profile.ID, rep, fmt.Errorf("push failed: %w", err))
	}

	e.enter(profile.ID, StateDone)
	msg := summary(total, failed, len(accounts))
	rep.Success("%s", msg)
	e.log.Info().
		Str("profile_id", profile.ID).
		Int("added", total.Added).
		Int("updated", total.Updated).
		Int("failed_accounts", failed).
		Msg("sync completed")
	return domain.Succeeded(msg, total)
}

// importAccount fetches, transforms and imports one account. Failures are
// reported and contained.
func (e *Executor) importAccount(ctx context.Context, provider Provider, session LedgerSession,
	profile domain.SyncProfile, b domain.AccountBinding, rep reconcile.Reporter) accountOutcome {

	var out accountOutcome
	name := b.Ledger.Name
	from, to := e.window()

	txs, err := provider.ListTransactions(ctx, b.Provider.AccountID, from, to)
	if err != nil {
		e.accountFailed(profile.ID, b, rep, "fetch", err)
		out.failed = true
		return out
	}

	currency := profile.LedgerCurrency()
	batch := make([]domain.CanonicalTransaction, 0, len(txs))
	for _, tx := range txs {
		if tx.IsPending() {
			out.skipped++
			continue
		}
		c, err := reconcile.Transform(tx, b.Provider.AccountID, currency)
		if err != nil {
			rep.Warn("Skipping transaction in %q: %s", name, domain.Describe(err))
			out.skipped++
			continue
		}
		batch = append(batch, c)
	}
	out.importable = len(batch)

	for start := 0; start < len(batch); start += e.batchSize {
		end := start + e.batchSize
		if end > len(batch) {
			end = len(batch)
		}
		res, err := session.ImportTransactions(ctx, b.Ledger.ID, batch[start:end])
		if err != nil {
			e.accountFailed(profile.ID, b, rep, "import", err)
			out.failed = true
			break
		}
		out.counts.Add(res)
	}

	if !out.failed {
		rep.Info("%s: %d new, %d updated, %d skipped", name, out.counts.Added, out.counts.Updated, out.skipped)
	}
	return out
}

func (e *Executor) accountFailed(profileID string, b domain.AccountBinding, rep reconcile.Reporter, stage string, err error) {
	rep.Error("Failed to %s transactions for %q: %s", stage, b.Ledger.Name, domain.Describe(err))
	e.log.Warn().Err(err).
		Str("profile_id", profileID).
		Str("account_id", b.Provider.AccountID).
		Str("stage", stage).
		Str("kind", string(domain.PartialAccountFailure)).
		Msg("account skipped")
}

func (e *Executor) fail(profileID string, rep reconcile.Reporter, err error) domain.Result {
	e.enter(profileID, StateFailed)
	msg := describeChain(err)
	rep.Error("Sync failed: %s", msg)
	e.log.Error().Err(err).Str("profile_id", profileID).Str("kind", string(domain.KindOf(err))).Msg("sync failed")

	res := domain.Failed(err)
	res.Message = msg
	return res
}

func summary(total domain.ImportResult, failed, accounts int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sync complete: %d new transactions", total.Added)
	if total.Updated > 0 {
		fmt.Fprintf(&b, ", %d updated", total.Updated)
	}
	if failed > 0 {
		fmt.Fprintf(&b, "; %d of %d accounts failed", failed, accounts)
	}
	return b.String()
}

// describeChain prefers the classified message and keeps any context
// wrapped around it.
func describeChain(err error) string {
	var classified *domain.Error
	if errors.As(err, &classified) && classified.Message != "" {
		if prefix, _, ok := strings.Cut(err.Error(), ": "+classified.Error()); ok && prefix != "" {
			return prefix + ": " + classified.Message
		}
		return classified.Message
	}
	return err.Error()
}
