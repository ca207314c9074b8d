package ledgersync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/ledger-sync/internal/domain"
)

var errBoom = errors.New("boom")

type dateRange struct {
	from, to civil.Date
}

type fakeProvider struct {
	mu sync.Mutex

	accounts []domain.ProviderAccount
	txs      map[string][]domain.ProviderTransaction

	authErr     error
	accountsErr error
	fetchErr    map[string]error
	panicFetch  bool

	authCalls int
	ranges    []dateRange
}

func (p *fakeProvider) Authenticate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authCalls++
	return p.authErr
}

func (p *fakeProvider) ListAccounts(ctx context.Context) ([]domain.ProviderAccount, error) {
	if p.accountsErr != nil {
		return nil, p.accountsErr
	}
	return append([]domain.ProviderAccount(nil), p.accounts...), nil
}

func (p *fakeProvider) ListTransactions(ctx context.Context, accountID string, from, to civil.Date) ([]domain.ProviderTransaction, error) {
	p.mu.Lock()
	p.ranges = append(p.ranges, dateRange{from, to})
	p.mu.Unlock()
	if p.panicFetch {
		panic("provider exploded")
	}
	if err := p.fetchErr[accountID]; err != nil {
		return nil, err
	}
	return append([]domain.ProviderTransaction(nil), p.txs[accountID]...), nil
}

func (p *fakeProvider) factory() ProviderFactory {
	return func(ctx context.Context, profile domain.SyncProfile) (Provider, error) {
		return p, nil
	}
}

// fakeSession is an in-memory LedgerSession that can fail or panic at a
// named step.
type fakeSession struct {
	failAt  string
	panicAt string

	closed      bool
	imports     int
	pushed      int
	staged      bool
	accounts    []domain.LedgerAccount
	groups      []domain.CategoryGroup
	importedIDs map[string]bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{importedIDs: map[string]bool{}}
}

func (s *fakeSession) step(name string) error {
	if s.panicAt == name {
		panic("unexpected failure in " + name)
	}
	if s.failAt == name {
		return fmt.Errorf("%s: %w", name, errBoom)
	}
	return nil
}

func (s *fakeSession) Ping(ctx context.Context) error {
	if err := s.step("ping"); err != nil {
		return domain.NewError(domain.NetworkUnreachable, "probe", "ledger server is unreachable", err)
	}
	return nil
}

func (s *fakeSession) Initialize(ctx context.Context) error { return s.step("initialize") }

func (s *fakeSession) Attach(ctx context.Context, budgetID, password string) error {
	return s.step("attach")
}

func (s *fakeSession) Accounts(ctx context.Context) ([]domain.LedgerAccount, error) {
	if err := s.step("accounts"); err != nil {
		return nil, err
	}
	return append([]domain.LedgerAccount(nil), s.accounts...), nil
}

func (s *fakeSession) CreateAccount(ctx context.Context, name string, kind domain.AccountType, offBudget bool) (domain.LedgerAccount, error) {
	a := domain.LedgerAccount{ID: fmt.Sprintf("acct-%d", len(s.accounts)+1), Name: name, Type: kind}
	s.accounts = append(s.accounts, a)
	s.staged = true
	return a, nil
}

func (s *fakeSession) CategoryGroups(ctx context.Context) ([]domain.CategoryGroup, error) {
	if err := s.step("categories"); err != nil {
		return nil, err
	}
	return append([]domain.CategoryGroup(nil), s.groups...), nil
}

func (s *fakeSession) CreateCategoryGroup(ctx context.Context, name string) (domain.CategoryGroup, error) {
	g := domain.CategoryGroup{ID: fmt.Sprintf("grp-%d", len(s.groups)+1), Name: name}
	s.groups = append(s.groups, g)
	s.staged = true
	return g, nil
}

func (s *fakeSession) CreateCategory(ctx context.Context, groupID, name string) (domain.Category, error) {
	s.staged = true
	return domain.Category{ID: groupID + "/" + name, GroupID: groupID, Name: name}, nil
}

func (s *fakeSession) ImportTransactions(ctx context.Context, accountID string, batch []domain.CanonicalTransaction) (domain.ImportResult, error) {
	if err := s.step("import"); err != nil {
		return domain.ImportResult{}, err
	}
	s.imports++
	var res domain.ImportResult
	for _, t := range batch {
		if !s.importedIDs[t.ImportedID] {
			s.importedIDs[t.ImportedID] = true
			s.staged = true
			res.Added++
		}
	}
	return res, nil
}

func (s *fakeSession) HasChanges(ctx context.Context) (bool, error) { return s.staged, nil }

func (s *fakeSession) Sync(ctx context.Context) (int, error) {
	if err := s.step("push"); err != nil {
		return 0, err
	}
	s.pushed++
	s.staged = false
	return 1, nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

func (s *fakeSession) factory() SessionFactory {
	return func(profile domain.SyncProfile, workDir string) LedgerSession { return s }
}

func intPtr(i int) *int { return &i }

func debit(order int, date, amount, desc string) domain.ProviderTransaction {
	return domain.ProviderTransaction{
		Type:            domain.Debit,
		TransactionType: "CardPurchases",
		Status:          "POSTED",
		Description:     desc,
		PostedOrder:     intPtr(order),
		PostingDate:     date,
		Amount:          decimal.RequireFromString(amount),
	}
}

func credit(order int, date, amount, desc string) domain.ProviderTransaction {
	tx := debit(order, date, amount, desc)
	tx.Type = domain.Credit
	tx.TransactionType = "Deposits"
	return tx
}
