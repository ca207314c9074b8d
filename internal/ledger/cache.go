package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dvloznov/ledger-sync/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - initial cache layout
// 2 - imported_id index no longer unique
const currentSchemaVersion = 2

// CacheFile is the cache database's name inside a working directory.
const CacheFile = "cache.sqlite"

// Cache is the local engine instance: a SQLite copy of one budget that
// accepts reads and staged writes until they are pushed.
type Cache struct {
	db *sql.DB
}

// OpenCache creates or opens the cache database at path.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to cache: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version < 2 {
		if _, err := db.Exec("DROP INDEX IF EXISTS idx_transactions_imported_id"); err != nil {
			return fmt.Errorf("drop unique imported_id index: %w", err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Load replaces the cache contents with snap. Everything loaded is clean.
func (c *Cache) Load(ctx context.Context, snap *Snapshot) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("Load: begin: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"transactions", "categories", "category_groups", "accounts", "meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("Load: clear %s: %w", table, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('budget_id', ?)`, snap.BudgetID); err != nil {
		return fmt.Errorf("Load: meta: %w", err)
	}

	for _, a := range snap.Accounts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO accounts (id, name, type, off_budget, closed) VALUES (?, ?, ?, ?, ?)
		`, a.ID, a.Name, string(a.Type), a.OffBudget, a.Closed); err != nil {
			return fmt.Errorf("Load: account %s: %w", a.ID, err)
		}
	}

	for _, g := range snap.Groups {
		if _, err := tx.ExecContext(ctx, `INSERT INTO category_groups (id, name) VALUES (?, ?)`, g.ID, g.Name); err != nil {
			return fmt.Errorf("Load: category group %s: %w", g.ID, err)
		}
		for _, cat := range g.Categories {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO categories (id, group_id, name) VALUES (?, ?, ?)
			`, cat.ID, g.ID, cat.Name); err != nil {
				return fmt.Errorf("Load: category %s: %w", cat.ID, err)
			}
		}
	}

	for _, t := range snap.Transactions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (id, account_id, date, amount, payee, notes, imported_id)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.AccountID, t.Date, t.Amount, t.Payee, t.Notes, nullString(t.ImportedID)); err != nil {
			return fmt.Errorf("Load: transaction %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Load: commit: %w", err)
	}
	return nil
}

// Accounts lists accounts in snapshot order, locally created ones last.
func (c *Cache) Accounts(ctx context.Context) ([]domain.LedgerAccount, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, type, off_budget, closed FROM accounts ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("Accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerAccount
	for rows.Next() {
		var a domain.LedgerAccount
		var kind string
		if err := rows.Scan(&a.ID, &a.Name, &kind, &a.OffBudget, &a.Closed); err != nil {
			return nil, fmt.Errorf("Accounts: scan: %w", err)
		}
		a.Type = domain.AccountType(kind)
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateAccount stages a new account.
func (c *Cache) CreateAccount(ctx context.Context, name string, kind domain.AccountType, offBudget bool) (domain.LedgerAccount, error) {
	a := domain.LedgerAccount{ID: uuid.NewString(), Name: name, Type: kind, OffBudget: offBudget}
	if _, err := c.db.ExecContext(ctx, `
		INSERT INTO accounts (id, name, type, off_budget, dirty) VALUES (?, ?, ?, ?, 1)
	`, a.ID, a.Name, string(a.Type), a.OffBudget); err != nil {
		return domain.LedgerAccount{}, fmt.Errorf("CreateAccount: %w", err)
	}
	return a, nil
}

// CategoryGroups lists groups with their categories, in order.
func (c *Cache) CategoryGroups(ctx context.Context) ([]domain.CategoryGroup, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name FROM category_groups ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("CategoryGroups: %w", err)
	}
	var groups []domain.CategoryGroup
	index := map[string]int{}
	for rows.Next() {
		var g domain.CategoryGroup
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("CategoryGroups: scan: %w", err)
		}
		index[g.ID] = len(groups)
		groups = append(groups, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("CategoryGroups: %w", err)
	}

	crows, err := c.db.QueryContext(ctx, `SELECT id, group_id, name FROM categories ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("CategoryGroups: categories: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var cat domain.Category
		if err := crows.Scan(&cat.ID, &cat.GroupID, &cat.Name); err != nil {
			return nil, fmt.Errorf("CategoryGroups: scan category: %w", err)
		}
		if i, ok := index[cat.GroupID]; ok {
			groups[i].Categories = append(groups[i].Categories, cat)
		}
	}
	return groups, crows.Err()
}

// CreateCategoryGroup stages a new, empty category group.
func (c *Cache) CreateCategoryGroup(ctx context.Context, name string) (domain.CategoryGroup, error) {
	g := domain.CategoryGroup{ID: uuid.NewString(), Name: name}
	if _, err := c.db.ExecContext(ctx, `
		INSERT INTO category_groups (id, name, dirty) VALUES (?, ?, 1)
	`, g.ID, g.Name); err != nil {
		return domain.CategoryGroup{}, fmt.Errorf("CreateCategoryGroup: %w", err)
	}
	return g, nil
}

// CreateCategory stages a new category in groupID.
func (c *Cache) CreateCategory(ctx context.Context, groupID, name string) (domain.Category, error) {
	cat := domain.Category{ID: uuid.NewString(), GroupID: groupID, Name: name}
	if _, err := c.db.ExecContext(ctx, `
		INSERT INTO categories (id, group_id, name, dirty) VALUES (?, ?, ?, 1)
	`, cat.ID, cat.GroupID, cat.Name); err != nil {
		return domain.Category{}, fmt.Errorf("CreateCategory: %w", err)
	}
	return cat, nil
}

// ImportTransactions stages batch for accountID, deduplicating by imported
// id: unseen ids are added and identical ones are left alone. A seen id
// whose date or amount changed is updated; payee and notes of a row that
// came from the ledger belong to the user and are never overwritten. When
// the ledger holds the same imported id twice the oldest row is matched.
func (c *Cache) ImportTransactions(ctx context.Context, accountID string, batch []domain.CanonicalTransaction) (domain.ImportResult, error) {
	var result domain.ImportResult

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("ImportTransactions: begin: %w", err)
	}
	defer tx.Rollback()

	for _, t := range batch {
		date := t.Date.String()

		var (
			id, curDate, curPayee, curNotes, change string
			curAmount                               int64
		)
		err := tx.QueryRowContext(ctx, `
			SELECT id, date, amount, payee, notes, change FROM transactions
			WHERE imported_id = ? ORDER BY seq LIMIT 1
		`, t.ImportedID).Scan(&id, &curDate, &curAmount, &curPayee, &curNotes, &change)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO transactions (id, account_id, date, amount, payee, notes, imported_id, change)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, uuid.NewString(), accountID, date, t.Amount, t.Payee, t.Notes, t.ImportedID, OpAdd); err != nil {
				return result, fmt.Errorf("ImportTransactions: insert %s: %w", t.ImportedID, err)
			}
			result.Added++

		case err != nil:
			return result, fmt.Errorf("ImportTransactions: lookup %s: %w", t.ImportedID, err)

		case change == OpAdd:
			// staged by this execution, so every field is still ours
			if curDate == date && curAmount == t.Amount && curPayee == t.Payee && curNotes == t.Notes {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE transactions SET date = ?, amount = ?, payee = ?, notes = ? WHERE id = ?
			`, date, t.Amount, t.Payee, t.Notes, id); err != nil {
				return result, fmt.Errorf("ImportTransactions: update %s: %w", t.ImportedID, err)
			}
			result.Updated++

		case curDate != date || curAmount != t.Amount:
			if _, err := tx.ExecContext(ctx, `
				UPDATE transactions SET date = ?, amount = ?, change = ? WHERE id = ?
			`, date, t.Amount, OpUpdate, id); err != nil {
				return result, fmt.Errorf("ImportTransactions: update %s: %w", t.ImportedID, err)
			}
			result.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("ImportTransactions: commit: %w", err)
	}
	return result, nil
}

// Changes collects every staged write.
func (c *Cache) Changes(ctx context.Context) (Changeset, error) {
	var cs Changeset

	arows, err := c.db.QueryContext(ctx, `
		SELECT id, name, type, off_budget, closed FROM accounts WHERE dirty = 1 ORDER BY seq
	`)
	if err != nil {
		return cs, fmt.Errorf("Changes: accounts: %w", err)
	}
	for arows.Next() {
		var a domain.LedgerAccount
		var kind string
		if err := arows.Scan(&a.ID, &a.Name, &kind, &a.OffBudget, &a.Closed); err != nil {
			arows.Close()
			return cs, fmt.Errorf("Changes: scan account: %w", err)
		}
		a.Type = domain.AccountType(kind)
		cs.Accounts = append(cs.Accounts, a)
	}
	arows.Close()

	grows, err := c.db.QueryContext(ctx, `SELECT id, name FROM category_groups WHERE dirty = 1 ORDER BY seq`)
	if err != nil {
		return cs, fmt.Errorf("Changes: groups: %w", err)
	}
	for grows.Next() {
		var g domain.CategoryGroup
		if err := grows.Scan(&g.ID, &g.Name); err != nil {
			grows.Close()
			return cs, fmt.Errorf("Changes: scan group: %w", err)
		}
		cs.Groups = append(cs.Groups, g)
	}
	grows.Close()

	crows, err := c.db.QueryContext(ctx, `SELECT id, group_id, name FROM categories WHERE dirty = 1 ORDER BY seq`)
	if err != nil {
		return cs, fmt.Errorf("Changes: categories: %w", err)
	}
	for crows.Next() {
		var cat domain.Category
		if err := crows.Scan(&cat.ID, &cat.GroupID, &cat.Name); err != nil {
			crows.Close()
			return cs, fmt.Errorf("Changes: scan category: %w", err)
		}
		cs.Categories = append(cs.Categories, cat)
	}
	crows.Close()

	trows, err := c.db.QueryContext(ctx, `
		SELECT id, account_id, date, amount, payee, notes, COALESCE(imported_id, ''), change
		FROM transactions WHERE change != '' ORDER BY seq
	`)
	if err != nil {
		return cs, fmt.Errorf("Changes: transactions: %w", err)
	}
	defer trows.Close()
	for trows.Next() {
		var t TransactionChange
		if err := trows.Scan(&t.ID, &t.AccountID, &t.Date, &t.Amount, &t.Payee, &t.Notes, &t.ImportedID, &t.Op); err != nil {
			return cs, fmt.Errorf("Changes: scan transaction: %w", err)
		}
		cs.Transactions = append(cs.Transactions, t)
	}
	return cs, trows.Err()
}

// MarkClean forgets every staged write, after a successful push.
func (c *Cache) MarkClean(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("MarkClean: begin: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		"UPDATE accounts SET dirty = 0 WHERE dirty = 1",
		"UPDATE category_groups SET dirty = 0 WHERE dirty = 1",
		"UPDATE categories SET dirty = 0 WHERE dirty = 1",
		"UPDATE transactions SET change = '' WHERE change != ''",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("MarkClean: %w", err)
		}
	}
	return tx.Commit()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
