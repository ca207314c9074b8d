package ledgersync

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ledger-sync/internal/domain"
	"github.com/dvloznov/ledger-sync/internal/ledger"
	"github.com/dvloznov/ledger-sync/internal/ledger/ledgertest"
	"github.com/dvloznov/ledger-sync/internal/runlog"
)

var fixedNow = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func testProfile(serverURL string) domain.SyncProfile {
	return domain.SyncProfile{
		ID:       "household",
		Name:     "Household",
		Enabled:  true,
		Provider: domain.ProviderCredentials{ClientID: "client", SecretID: "secret", APIKey: "key"},
		Ledger:   domain.LedgerTarget{ServerURL: serverURL, BudgetID: "budget"},
	}
}

func defaultTaxonomy() domain.Taxonomy {
	return domain.Taxonomy{Groups: []domain.GroupSpec{
		{Name: "Food", Categories: []string{"Groceries"}},
	}}
}

func standardProvider() *fakeProvider {
	return &fakeProvider{
		accounts: []domain.ProviderAccount{
			{AccountID: "ACC1", AccountName: "Mr S Gordon", ReferenceName: "Sean's Cheque", ProductName: "Private Bank Account", AccountNumber: "10012345678"},
			{AccountID: "ACC2", AccountName: "Mr S Gordon", ProductName: "Credit Card", AccountNumber: "xxxx4321"},
		},
		txs: map[string][]domain.ProviderTransaction{
			"ACC1": {
				debit(7, "2024-03-01", "150.00", "CARD PURCHASE Woolworths"),
				credit(8, "2024-03-01", "20", "Refund"),
				{Status: "PENDING", Type: domain.Debit, Description: "Pending", Amount: decimal.NewFromInt(1)},
			},
			"ACC2": {
				debit(1, "2024-03-05", "99.99", "Fuel"),
			},
		},
	}
}

func newRecorder() *runlog.Recorder {
	return runlog.NewRecorder("household", "job-1", nil, zerolog.Nop())
}

func terminalLines(events []domain.LogEvent) []domain.LogEvent {
	var out []domain.LogEvent
	for _, e := range events {
		if strings.HasPrefix(e.Message, "Sync complete") || strings.HasPrefix(e.Message, "Sync failed") {
			out = append(out, e)
		}
	}
	return out
}

func newIntegrationExecutor(p *fakeProvider) *Executor {
	return NewExecutor(Options{
		Providers:       p.factory(),
		Sessions:        LedgerSessions(nil, false, zerolog.Nop()),
		DefaultTaxonomy: defaultTaxonomy(),
		Logger:          zerolog.Nop(),
		Now:             func() time.Time { return fixedNow },
	})
}

func TestSync_ImportsThenSecondRunAddsNothing(t *testing.T) {
	srv := ledgertest.NewServer("")
	defer srv.Close()
	srv.AddBudget(ledger.Snapshot{
		BudgetID: "budget",
		Accounts: []domain.LedgerAccount{{ID: "a1", Name: "Sean's Cheque", Type: domain.AccountTypeChecking}},
	}, "")

	provider := standardProvider()
	exec := newIntegrationExecutor(provider)
	workDir := filepath.Join(t.TempDir(), "work", "household")
	profile := testProfile(srv.URL)

	rec := newRecorder()
	res := exec.Sync(context.Background(), profile, workDir, rec)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 3, res.Added)
	assert.Equal(t, "Sync complete: 3 new transactions", res.Message)

	terminal := terminalLines(rec.Events())
	require.Len(t, terminal, 1)
	assert.Equal(t, domain.LevelSuccess, terminal[0].Level)

	budget, ok := srv.Budget("budget")
	require.True(t, ok)
	require.Len(t, budget.Accounts, 2)
	assert.Equal(t, "Credit Card 4321", budget.Accounts[1].Name)
	assert.Equal(t, domain.AccountTypeCredit, budget.Accounts[1].Type)
	require.Len(t, budget.Groups, 1)
	assert.Equal(t, "Food", budget.Groups[0].Name)
	require.Len(t, budget.Transactions, 3)

	amounts := map[string]int64{}
	for _, tx := range budget.Transactions {
		amounts[tx.ImportedID] = tx.Amount
	}
	assert.Equal(t, int64(-15000), amounts["ACC1:7:2024-03-01:CARDPURCHASEWoolwo"])
	assert.Equal(t, int64(2000), amounts["ACC1:8:2024-03-01:Refund"])

	require.NotEmpty(t, provider.ranges)
	assert.Equal(t, civil.Date{Year: 2023, Month: 3, Day: 10}, provider.ranges[0].from)
	assert.Equal(t, civil.Date{Year: 2024, Month: 3, Day: 10}, provider.ranges[0].to)

	rec = newRecorder()
	res = exec.Sync(context.Background(), profile, workDir, rec)
	require.True(t, res.Success, res.Message)
	assert.Zero(t, res.Added)
	assert.Zero(t, res.Updated)
	assert.Len(t, srv.Pushes(), 1, "second run has nothing to push")

	budget, _ = srv.Budget("budget")
	assert.Len(t, budget.Transactions, 3)
	assert.Len(t, budget.Accounts, 2)
	require.Len(t, terminalLines(rec.Events()), 1)
}

func TestSync_AccountFailureIsContained(t *testing.T) {
	srv := ledgertest.NewServer("")
	defer srv.Close()
	srv.AddBudget(ledger.Snapshot{BudgetID: "budget"}, "")

	provider := standardProvider()
	provider.fetchErr = map[string]error{"ACC1": domain.NewError(domain.NetworkUnreachable, "list transactions", "provider API is unreachable", errBoom)}
	exec := newIntegrationExecutor(provider)

	rec := newRecorder()
	res := exec.Sync(context.Background(), testProfile(srv.URL), filepath.Join(t.TempDir(), "w"), rec)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 1, res.Added)
	assert.Contains(t, res.Message, "1 of 2 accounts failed")

	budget, _ := srv.Budget("budget")
	require.Len(t, budget.Transactions, 1)
	assert.Equal(t, int64(-9999), budget.Transactions[0].Amount)

	var errorsSeen int
	for _, e := range rec.Events() {
		if e.Level == domain.LevelError {
			errorsSeen++
		}
	}
	assert.Equal(t, 1, errorsSeen)
}

func TestSync_ServerUnreachableSkipsEverything(t *testing.T) {
	srv := ledgertest.NewServer("")
	srv.Close()

	provider := standardProvider()
	exec := newIntegrationExecutor(provider)

	rec := newRecorder()
	res := exec.Sync(context.Background(), testProfile(srv.URL), filepath.Join(t.TempDir(), "w"), rec)
	assert.False(t, res.Success)
	assert.Equal(t, domain.NetworkUnreachable, res.Kind)
	assert.True(t, strings.HasPrefix(res.Message, "server unreachable: "), res.Message)
	assert.Zero(t, provider.authCalls)

	terminal := terminalLines(rec.Events())
	require.Len(t, terminal, 1)
	assert.Equal(t, domain.LevelError, terminal[0].Level)
}

func TestSync_ConfigurationMissingFailsFast(t *testing.T) {
	called := false
	exec := NewExecutor(Options{
		Providers: standardProvider().factory(),
		Sessions: func(domain.SyncProfile, string) LedgerSession {
			called = true
			return newFakeSession()
		},
		Logger: zerolog.Nop(),
	})

	profile := testProfile("http://ledger.invalid")
	profile.Provider.APIKey = ""

	res := exec.Sync(context.Background(), profile, t.TempDir(), newRecorder())
	assert.False(t, res.Success)
	assert.Equal(t, domain.ConfigurationMissing, res.Kind)
	assert.Contains(t, res.Message, "provider.api_key")
	assert.False(t, called)
}

func TestSync_NoImportableDataIsNoOp(t *testing.T) {
	session := newFakeSession()
	session.accounts = []domain.LedgerAccount{{ID: "a1", Name: "Sean's Cheque"}}

	provider := &fakeProvider{accounts: []domain.ProviderAccount{
		{AccountID: "ACC1", AccountName: "Mr S Gordon", ReferenceName: "Sean's Cheque"},
	}}
	exec := NewExecutor(Options{
		Providers: provider.factory(),
		Sessions:  session.factory(),
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return fixedNow },
	})

	res := exec.Sync(context.Background(), testProfile("http://ledger"), t.TempDir(), newRecorder())
	require.True(t, res.Success, res.Message)
	assert.Zero(t, session.pushed)
	assert.Contains(t, res.Message, "nothing to push")
	assert.True(t, session.closed)
}

func TestSync_StructuralChangesArePushedWithoutTransactions(t *testing.T) {
	session := newFakeSession()
	provider := &fakeProvider{accounts: []domain.ProviderAccount{{AccountID: "ACC1", ProductName: "Savings", AccountNumber: "1234"}}}
	exec := NewExecutor(Options{
		Providers: provider.factory(),
		Sessions:  session.factory(),
		Logger:    zerolog.Nop(),
	})

	res := exec.Sync(context.Background(), testProfile("http://ledger"), t.TempDir(), newRecorder())
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 1, session.pushed)
}

func TestSync_BatchesImports(t *testing.T) {
	session := newFakeSession()
	var txs []domain.ProviderTransaction
	for i := 1; i <= 5; i++ {
		txs = append(txs, debit(i, "2024-03-01", "1", "Coffee"))
	}
	provider := &fakeProvider{
		accounts: []domain.ProviderAccount{{AccountID: "ACC1", ReferenceName: "Daily", AccountName: "X"}},
		txs:      map[string][]domain.ProviderTransaction{"ACC1": txs},
	}
	exec := NewExecutor(Options{
		Providers: provider.factory(),
		Sessions:  session.factory(),
		BatchSize: 2,
		Logger:    zerolog.Nop(),
	})

	res := exec.Sync(context.Background(), testProfile("http://ledger"), t.TempDir(), newRecorder())
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 3, session.imports)
	assert.Equal(t, 5, res.Added)
}

func TestSync_MalformedTransactionIsSkipped(t *testing.T) {
	session := newFakeSession()
	bad := debit(2, "", "5", "No date at all")
	provider := &fakeProvider{
		accounts: []domain.ProviderAccount{{AccountID: "ACC1", ReferenceName: "Daily", AccountName: "X"}},
		txs:      map[string][]domain.ProviderTransaction{"ACC1": {debit(1, "2024-03-01", "1", "Coffee"), bad}},
	}
	exec := NewExecutor(Options{Providers: provider.factory(), Sessions: session.factory(), Logger: zerolog.Nop()})

	rec := newRecorder()
	res := exec.Sync(context.Background(), testProfile("http://ledger"), t.TempDir(), rec)
	require.True(t, res.Success, res.Message)
	assert.Equal(t, 1, res.Added)

	var warned bool
	for _, e := range rec.Events() {
		if strings.HasPrefix(e.Message, "Warning: Skipping transaction") {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestSync_SessionClosedOnEveryFailure(t *testing.T) {
	tests := []struct {
		name       string
		failAt     string
		panicAt    string
		provider   func(p *fakeProvider)
		wantStates []State
		wantPanic  bool
	}{
		{name: "connectivity check", failAt: "ping"},
		{name: "initialize", failAt: "initialize"},
		{name: "attach", failAt: "attach"},
		{name: "provider auth", provider: func(p *fakeProvider) {
			p.authErr = domain.NewError(domain.AuthenticationFailed, "authenticate", "rejected", nil)
		}},
		{name: "category sync panic", panicAt: "categories", wantPanic: true},
		{name: "account discovery", provider: func(p *fakeProvider) { p.accountsErr = errBoom }},
		{name: "ledger account listing", failAt: "accounts"},
		{name: "per account import panic", provider: func(p *fakeProvider) { p.panicFetch = true }, wantPanic: true},
		{name: "import failure", failAt: "import"},
		{name: "push", failAt: "push"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := newFakeSession()
			session.failAt = tt.failAt
			session.panicAt = tt.panicAt

			provider := standardProvider()
			if tt.provider != nil {
				tt.provider(provider)
			}

			var states []State
			exec := NewExecutor(Options{
				Providers:       provider.factory(),
				Sessions:        session.factory(),
				DefaultTaxonomy: defaultTaxonomy(),
				Logger:          zerolog.Nop(),
				OnState:         func(_ string, s State) { states = append(states, s) },
			})

			panicked := func() (p bool) {
				defer func() {
					if recover() != nil {
						p = true
					}
				}()
				exec.Sync(context.Background(), testProfile("http://ledger"), t.TempDir(), newRecorder())
				return false
			}()

			assert.Equal(t, tt.wantPanic, panicked)
			assert.True(t, session.closed, "session must be closed after failure at %s", tt.name)
			require.NotEmpty(t, states)
			if !tt.wantPanic {
				last := states[len(states)-1]
				assert.Contains(t, []State{StateFailed, StateDone}, last)
			}
		})
	}
}
