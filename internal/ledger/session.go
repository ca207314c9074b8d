package ledger

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/ledger-sync/internal/domain"
)

// LockFile marks a working directory as in use by a session.
const LockFile = "ledger.lock"

// State is a session lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateAttached
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateAttached:
		return "attached"
	case StateClosed:
		return "closed"
	}
	return "unknown(" + strconv.Itoa(int(s)) + ")"
}

// Options configures a Session.
type Options struct {
	// ServerURL is the ledger sync server.
	ServerURL string

	// Dir is the execution's private working directory. It is wiped by
	// Initialize.
	Dir string

	// Purge removes Dir on Close.
	Purge bool

	// HTTPClient is optional.
	HTTPClient *http.Client

	Logger zerolog.Logger
}

// Session is the stateful connection to one remote budget, backed by a
// private local cache. Uninitialized -> Initialized -> Attached -> Closed;
// Close is valid from any state. A Session is owned by one execution and is
// not safe for concurrent use.
type Session struct {
	opts   Options
	remote *Remote
	log    zerolog.Logger

	state    State
	cache    *Cache
	budgetID string
	creds    Credentials
	locked   bool
}

// NewSession creates an uninitialized session.
func NewSession(opts Options) *Session {
	return &Session{
		opts:   opts,
		remote: NewRemote(opts.ServerURL, opts.HTTPClient),
		log:    opts.Logger.With().Str("component", "ledger").Logger(),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// BudgetID returns the attached budget, or "".
func (s *Session) BudgetID() string {
	return s.budgetID
}

// Ping probes the server without touching local state.
func (s *Session) Ping(ctx context.Context) error {
	return s.remote.Probe(ctx)
}

// Initialize resets the working directory, takes its lock and opens a fresh
// cache.
func (s *Session) Initialize(ctx context.Context) error {
	if s.state != StateUninitialized {
		return fmt.Errorf("Initialize: %w: session is %s", ErrInvalidState, s.state)
	}
	if s.opts.Dir == "" {
		return domain.NewError(domain.ConfigurationMissing, "initialize", "ledger working directory is not set", nil)
	}

	if err := os.RemoveAll(s.opts.Dir); err != nil {
		return fmt.Errorf("Initialize: clear %s: %w", s.opts.Dir, err)
	}
	if err := os.MkdirAll(s.opts.Dir, 0o700); err != nil {
		return fmt.Errorf("Initialize: create %s: %w", s.opts.Dir, err)
	}

	if err := s.lock(); err != nil {
		return fmt.Errorf("Initialize: %w", err)
	}

	cache, err := OpenCache(filepath.Join(s.opts.Dir, CacheFile))
	if err != nil {
		s.unlock()
		return fmt.Errorf("Initialize: %w", err)
	}
	s.cache = cache
	s.state = StateInitialized

	s.log.Debug().Str("dir", s.opts.Dir).Str("server", s.remote.ServerURL()).Msg("ledger session initialized")
	return nil
}

// Attach logs in and downloads budgetID into the cache. When a password is
// set it is also tried as the budget encryption key; if the server rejects
// that key the download is retried exactly once without it.
func (s *Session) Attach(ctx context.Context, budgetID, password string) error {
	if s.state != StateInitialized {
		return fmt.Errorf("Attach: %w: session is %s", ErrInvalidState, s.state)
	}

	var token string
	if password != "" {
		t, err := s.remote.Login(ctx, password)
		if err != nil {
			return err
		}
		token = t
	}

	creds := Credentials{Token: token, EncryptionKey: password}
	snap, err := s.remote.Snapshot(ctx, budgetID, creds)
	if apiErr, ok := asAPIError(err); ok && apiErr.IsEncryption() && creds.EncryptionKey != "" {
		s.log.Warn().Str("budget_id", budgetID).Str("reason", apiErr.Reason).
			Msg("budget rejected the password as encryption key, retrying without it")
		creds.EncryptionKey = ""
		snap, err = s.remote.Snapshot(ctx, budgetID, creds)
	}
	if err != nil {
		return s.attachError(budgetID, err)
	}

	if err := s.cache.Load(ctx, snap); err != nil {
		return fmt.Errorf("Attach: %w", err)
	}

	s.budgetID = budgetID
	s.creds = creds
	s.state = StateAttached

	s.log.Info().Str("budget_id", budgetID).
		Int("accounts", len(snap.Accounts)).
		Int("transactions", len(snap.Transactions)).
		Msg("budget attached")
	return nil
}

func (s *Session) attachError(budgetID string, err error) error {
	apiErr, ok := asAPIError(err)
	if !ok {
		return fmt.Errorf("Attach: %w", err)
	}
	switch {
	case apiErr.IsNotFound():
		return domain.NewError(domain.RemoteLedgerNotFound, "attach", fmt.Sprintf(
			"budget %q was not found on ledger server %s. Open the budget in the ledger app, "+
				"upload it to the server, and check the budget id in the profile", budgetID, s.remote.ServerURL()), err)
	case apiErr.IsEncryption():
		return domain.NewError(domain.AuthenticationFailed, "attach",
			"could not open budget "+strconv.Quote(budgetID)+": the password does not match its encryption key",
			fmt.Errorf("%w: %w", ErrEncryption, err))
	case apiErr.IsAuthError():
		return domain.NewError(domain.AuthenticationFailed, "attach", "ledger server rejected the session", err)
	}
	return fmt.Errorf("Attach: %w", err)
}

// Accounts lists the budget's accounts.
func (s *Session) Accounts(ctx context.Context) ([]domain.LedgerAccount, error) {
	if err := s.requireAttached("Accounts"); err != nil {
		return nil, err
	}
	return s.cache.Accounts(ctx)
}

// CreateAccount stages a new account.
func (s *Session) CreateAccount(ctx context.Context, name string, kind domain.AccountType, offBudget bool) (domain.LedgerAccount, error) {
	if err := s.requireAttached("CreateAccount"); err != nil {
		return domain.LedgerAccount{}, err
	}
	return s.cache.CreateAccount(ctx, name, kind, offBudget)
}

// CategoryGroups lists the budget's category groups.
func (s *Session) CategoryGroups(ctx context.Context) ([]domain.CategoryGroup, error) {
	if err := s.requireAttached("CategoryGroups"); err != nil {
		return nil, err
	}
	return s.cache.CategoryGroups(ctx)
}

// CreateCategoryGroup stages a new category group.
func (s *Session) CreateCategoryGroup(ctx context.Context, name string) (domain.CategoryGroup, error) {
	if err := s.requireAttached("CreateCategoryGroup"); err != nil {
		return domain.CategoryGroup{}, err
	}
	return s.cache.CreateCategoryGroup(ctx, name)
}

// CreateCategory stages a new category.
func (s *Session) CreateCategory(ctx context.Context, groupID, name string) (domain.Category, error) {
	if err := s.requireAttached("CreateCategory"); err != nil {
		return domain.Category{}, err
	}
	return s.cache.CreateCategory(ctx, groupID, name)
}

// ImportTransactions stages one batch of transactions for accountID.
func (s *Session) ImportTransactions(ctx context.Context, accountID string, batch []domain.CanonicalTransaction) (domain.ImportResult, error) {
	if err := s.requireAttached("ImportTransactions"); err != nil {
		return domain.ImportResult{}, err
	}
	return s.cache.ImportTransactions(ctx, accountID, batch)
}

// HasChanges reports whether anything is staged.
func (s *Session) HasChanges(ctx context.Context) (bool, error) {
	if err := s.requireAttached("HasChanges"); err != nil {
		return false, err
	}
	cs, err := s.cache.Changes(ctx)
	if err != nil {
		return false, err
	}
	return !cs.IsEmpty(), nil
}

// Sync pushes staged writes to the server and returns how many were sent.
func (s *Session) Sync(ctx context.Context) (int, error) {
	if err := s.requireAttached("Sync"); err != nil {
		return 0, err
	}

	cs, err := s.cache.Changes(ctx)
	if err != nil {
		return 0, fmt.Errorf("Sync: %w", err)
	}
	if cs.IsEmpty() {
		return 0, nil
	}

	res, err := s.remote.Push(ctx, s.budgetID, s.creds, cs)
	if err != nil {
		if apiErr, ok := asAPIError(err); ok && apiErr.IsAuthError() {
			return 0, domain.NewError(domain.AuthenticationFailed, "sync", "ledger server rejected the push", err)
		}
		return 0, fmt.Errorf("Sync: push: %w", err)
	}
	if err := s.cache.MarkClean(ctx); err != nil {
		return 0, fmt.Errorf("Sync: %w", err)
	}

	s.log.Info().Str("budget_id", s.budgetID).Int("changes", cs.Size()).Int("applied", res.Applied).Msg("changes pushed")
	return cs.Size(), nil
}

// Close releases the cache and the lock file. It is safe to call from any
// state and more than once.
func (s *Session) Close() error {
	if s.state == StateClosed {
		return nil
	}

	var errs []error
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
		s.cache = nil
	}
	if err := s.unlock(); err != nil {
		errs = append(errs, err)
	}
	if s.opts.Purge && s.opts.Dir != "" && s.state != StateUninitialized {
		if err := os.RemoveAll(s.opts.Dir); err != nil {
			errs = append(errs, fmt.Errorf("purge %s: %w", s.opts.Dir, err))
		}
	}

	prev := s.state
	s.state = StateClosed
	s.log.Debug().Str("from", prev.String()).Msg("ledger session closed")

	if len(errs) > 0 {
		return fmt.Errorf("Close: %w", errors.Join(errs...))
	}
	return nil
}

func (s *Session) requireAttached(op string) error {
	if s.state != StateAttached {
		return fmt.Errorf("%s: %w: session is %s", op, ErrInvalidState, s.state)
	}
	return nil
}

func (s *Session) lockPath() string {
	return filepath.Join(s.opts.Dir, LockFile)
}

func (s *Session) lock() error {
	f, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrLocked, s.lockPath())
		}
		return fmt.Errorf("create lock: %w", err)
	}
	_, werr := fmt.Fprintf(f, "pid=%d\nacquired=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(s.lockPath())
		return fmt.Errorf("write lock: %w", errors.Join(werr, cerr))
	}
	s.locked = true
	return nil
}

func (s *Session) unlock() error {
	if !s.locked {
		return nil
	}
	s.locked = false
	if err := os.Remove(s.lockPath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove lock: %w", err)
	}
	return nil
}
