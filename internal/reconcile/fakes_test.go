package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dvloznov/ledger-sync/internal/domain"
)

type line struct {
	level string
	msg   string
}

type fakeReporter struct {
	lines []line
}

func (r *fakeReporter) add(level, format string, args ...interface{}) {
	r.lines = append(r.lines, line{level, fmt.Sprintf(format, args...)})
}

func (r *fakeReporter) Info(format string, args ...interface{})    { r.add("info", format, args...) }
func (r *fakeReporter) Success(format string, args ...interface{}) { r.add("success", format, args...) }
func (r *fakeReporter) Warn(format string, args ...interface{})    { r.add("warn", format, args...) }
func (r *fakeReporter) Error(format string, args ...interface{})   { r.add("error", format, args...) }

func (r *fakeReporter) count(level string) int {
	n := 0
	for _, l := range r.lines {
		if l.level == level {
			n++
		}
	}
	return n
}

type fakeLedger struct {
	accounts []domain.LedgerAccount
	groups   []domain.CategoryGroup

	listErr       error
	failAccounts  map[string]bool
	failGroups    map[string]bool
	failCategory  map[string]bool
	createdGroups int
	nextID        int
}

func (f *fakeLedger) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func (f *fakeLedger) Accounts(_ context.Context) ([]domain.LedgerAccount, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]domain.LedgerAccount(nil), f.accounts...), nil
}

func (f *fakeLedger) CreateAccount(_ context.Context, name string, kind domain.AccountType, offBudget bool) (domain.LedgerAccount, error) {
	if f.failAccounts[name] {
		return domain.LedgerAccount{}, errors.New("ledger refused")
	}
	a := domain.LedgerAccount{ID: f.id("acct"), Name: name, Type: kind, OffBudget: offBudget}
	f.accounts = append(f.accounts, a)
	return a, nil
}

func (f *fakeLedger) CategoryGroups(_ context.Context) ([]domain.CategoryGroup, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.CategoryGroup, len(f.groups))
	for i, g := range f.groups {
		g.Categories = append([]domain.Category(nil), g.Categories...)
		out[i] = g
	}
	return out, nil
}

func (f *fakeLedger) CreateCategoryGroup(_ context.Context, name string) (domain.CategoryGroup, error) {
	if f.failGroups[strings.ToUpper(name)] {
		return domain.CategoryGroup{}, errors.New("group refused")
	}
	g := domain.CategoryGroup{ID: f.id("grp"), Name: name}
	f.groups = append(f.groups, g)
	f.createdGroups++
	return g, nil
}

func (f *fakeLedger) CreateCategory(_ context.Context, groupID, name string) (domain.Category, error) {
	if f.failCategory[strings.ToUpper(name)] {
		return domain.Category{}, errors.New("category refused")
	}
	c := domain.Category{ID: f.id("cat"), GroupID: groupID, Name: name}
	for i := range f.groups {
		if f.groups[i].ID == groupID {
			f.groups[i].Categories = append(f.groups[i].Categories, c)
		}
	}
	return c, nil
}
