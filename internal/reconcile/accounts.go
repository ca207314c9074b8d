package reconcile

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/dvloznov/ledger-sync/internal/domain"
)

// AccountStore is the slice of the ledger session account reconciliation
// needs.
type AccountStore interface {
	Accounts(ctx context.Context) ([]domain.LedgerAccount, error)
	CreateAccount(ctx context.Context, name string, kind domain.AccountType, offBudget bool) (domain.LedgerAccount, error)
}

// PreferredName is the ledger-facing name of a provider account: the
// reference name when it says something the holder name does not, otherwise
// the product name with the last four digits of the account number.
func PreferredName(a domain.ProviderAccount) string {
	ref := strings.TrimSpace(a.ReferenceName)
	if ref != "" && !strings.EqualFold(ref, strings.TrimSpace(a.AccountName)) {
		return ref
	}
	name := strings.TrimSpace(a.ProductName)
	if last := lastDigits(a.AccountNumber, 4); last != "" {
		name = strings.TrimSpace(name + " " + last)
	}
	return name
}

func lastDigits(s string, n int) string {
	var digits []rune
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}
	if len(digits) > n {
		digits = digits[len(digits)-n:]
	}
	return string(digits)
}

// AccountTypeFor maps a provider product to a ledger account kind.
func AccountTypeFor(a domain.ProviderAccount) domain.AccountType {
	if strings.Contains(strings.ToLower(a.ProductName), "credit") {
		return domain.AccountTypeCredit
	}
	return domain.AccountTypeChecking
}

// Accounts binds every provider account to a ledger account, creating the
// missing ones on-budget. A ledger account binds to at most one provider
// account per run; a provider account whose match is already taken is
// skipped with a warning. Creation failures are reported and skipped.
// Only a failure to list ledger accounts is returned.
func Accounts(ctx context.Context, store AccountStore, provider []domain.ProviderAccount, rep Reporter) ([]domain.AccountBinding, error) {
	existing, err := store.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("Accounts: list ledger accounts: %w", err)
	}

	open := make([]domain.LedgerAccount, 0, len(existing))
	for _, a := range existing {
		if !a.Closed {
			open = append(open, a)
		}
	}

	claimed := make(map[string]string, len(provider))
	bindings := make([]domain.AccountBinding, 0, len(provider))

	for _, pa := range provider {
		name := PreferredName(pa)

		if match, ok := matchAccount(open, name); ok {
			if owner, taken := claimed[match.ID]; taken {
				rep.Warn("Ledger account %q already matched provider account %s, skipping %q", match.Name, owner, name)
				continue
			}
			claimed[match.ID] = pa.AccountID
			rep.Info("Matched account %q to ledger account %q", name, match.Name)
			bindings = append(bindings, domain.AccountBinding{Provider: pa, Ledger: match})
			continue
		}

		created, err := store.CreateAccount(ctx, name, AccountTypeFor(pa), false)
		if err != nil {
			rep.Error("Failed to create ledger account %q: %s", name, domain.Describe(err))
			continue
		}
		claimed[created.ID] = pa.AccountID
		open = append(open, created)
		rep.Success("Created ledger account %q", created.Name)
		bindings = append(bindings, domain.AccountBinding{Provider: pa, Ledger: created, Created: true})
	}

	return bindings, nil
}

// matchAccount prefers a case-insensitive exact match and falls back to the
// first ledger account whose name contains the preferred name.
func matchAccount(accounts []domain.LedgerAccount, name string) (domain.LedgerAccount, bool) {
	if name == "" {
		return domain.LedgerAccount{}, false
	}
	for _, a := range accounts {
		if strings.EqualFold(strings.TrimSpace(a.Name), name) {
			return a, true
		}
	}
	needle := strings.ToLower(name)
	for _, a := range accounts {
		if strings.Contains(strings.ToLower(a.Name), needle) {
			return a, true
		}
	}
	return domain.LedgerAccount{}, false
}
