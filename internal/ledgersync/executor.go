// Package ledgersync runs one provider-to-ledger execution for a profile:
// the sync itself plus the provider and ledger connection tests.
package ledgersync

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-sync/internal/domain"
	"github.com/dvloznov/ledger-sync/internal/reconcile"
)

const (
	// DefaultBatchSize bounds one import call.
	DefaultBatchSize = 250

	// WindowYears is the trailing window of transactions fetched per account.
	WindowYears = 1
)

// State is a step of a sync execution.
type State string

const (
	StateIdle              State = "idle"
	StateConnectivityCheck State = "connectivity_check"
	StateSessionOpen       State = "session_open"
	StateCategorySync      State = "category_sync"
	StateAccountDiscovery  State = "account_discovery"
	StatePerAccountImport  State = "per_account_import"
	StatePush              State = "push"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// Provider is the bank API as seen by an execution.
type Provider interface {
	Authenticate(ctx context.Context) error
	ListAccounts(ctx context.Context) ([]domain.ProviderAccount, error)
	ListTransactions(ctx context.Context, accountID string, from, to civil.Date) ([]domain.ProviderTransaction, error)
}

// LedgerSession is the ledger connection as seen by an execution.
// *ledger.Session satisfies it.
type LedgerSession interface {
	reconcile.AccountStore
	reconcile.CategoryStore

	Ping(ctx context.Context) error
	Initialize(ctx context.Context) error
	Attach(ctx context.Context, budgetID, password string) error
	ImportTransactions(ctx context.Context, accountID string, batch []domain.CanonicalTransaction) (domain.ImportResult, error)
	HasChanges(ctx context.Context) (bool, error)
	Sync(ctx context.Context) (int, error)
	Close() error
}

// ProviderFactory builds a provider client for a profile.
type ProviderFactory func(ctx context.Context, profile domain.SyncProfile) (Provider, error)

// SessionFactory builds an uninitialized ledger session rooted at workDir.
type SessionFactory func(profile domain.SyncProfile, workDir string) LedgerSession

// Options configures an Executor.
type Options struct {
	Providers ProviderFactory
	Sessions  SessionFactory

	// DefaultTaxonomy applies to profiles without their own.
	DefaultTaxonomy domain.Taxonomy

	// Taxonomy, when set, replaces DefaultTaxonomy and is read at the start
	// of every execution so configuration reloads take effect.
	Taxonomy func() domain.Taxonomy

	BatchSize int
	Logger    zerolog.Logger

	// Now is the clock; defaults to time.Now.
	Now func() time.Time

	// OnState observes state transitions.
	OnState func(profileID string, s State)
}

// Executor runs executions. It holds no per-execution state and may be used
// from many goroutines.
type Executor struct {
	providers ProviderFactory
	sessions  SessionFactory
	taxonomy  func() domain.Taxonomy
	batchSize int
	log       zerolog.Logger
	now       func() time.Time
	onState   func(string, State)
}

// NewExecutor creates an executor.
func NewExecutor(opts Options) *Executor {
	e := &Executor{
		providers: opts.Providers,
		sessions:  opts.Sessions,
		taxonomy:  opts.Taxonomy,
		batchSize: opts.BatchSize,
		log:       opts.Logger,
		now:       opts.Now,
		onState:   opts.OnState,
	}
	if e.batchSize <= 0 {
		e.batchSize = DefaultBatchSize
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.taxonomy == nil {
		def := opts.DefaultTaxonomy.Clone()
		e.taxonomy = func() domain.Taxonomy { return def.Clone() }
	}
	return e
}

// window returns the inclusive date range fetched per account.
func (e *Executor) window() (civil.Date, civil.Date) {
	to := civil.DateOf(e.now())
	return to.AddYears(-WindowYears), to
}

func (e *Executor) enter(profileID string, s State) {
	e.log.Debug().Str("profile_id", profileID).Str("state", string(s)).Msg("sync state")
	if e.onState != nil {
		e.onState(profileID, s)
	}
}
