package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/dvloznov/ledger-sync/internal/domain"
)

// CategoryStore is the slice of the ledger session category reconciliation
// needs.
type CategoryStore interface {
	CategoryGroups(ctx context.Context) ([]domain.CategoryGroup, error)
	CreateCategoryGroup(ctx context.Context, name string) (domain.CategoryGroup, error)
	CreateCategory(ctx context.Context, groupID, name string) (domain.Category, error)
}

// CategoryReport summarises a category reconciliation.
type CategoryReport struct {
	GroupsCreated     int
	CategoriesCreated int
	Failures          int
}

// Changed reports whether anything was created.
func (r CategoryReport) Changed() bool {
	return r.GroupsCreated > 0 || r.CategoriesCreated > 0
}

// Categories creates every group and category of want that the ledger lacks.
// Names compare case-insensitively. A group that cannot be created has its
// categories skipped; other failures are counted and reported. Only a failure
// to list existing groups is returned.
func Categories(ctx context.Context, store CategoryStore, want domain.Taxonomy, rep Reporter) (CategoryReport, error) {
	var report CategoryReport

	groups, err := store.CategoryGroups(ctx)
	if err != nil {
		return report, fmt.Errorf("Categories: list category groups: %w", err)
	}

	byName := make(map[string]*domain.CategoryGroup, len(groups))
	for i := range groups {
		byName[normalizeName(groups[i].Name)] = &groups[i]
	}

	for _, spec := range want.Groups {
		key := normalizeName(spec.Name)
		if key == "" {
			continue
		}

		group, ok := byName[key]
		if !ok {
			created, err := store.CreateCategoryGroup(ctx, strings.TrimSpace(spec.Name))
			if err != nil {
				report.Failures++
				rep.Error("Failed to create category group %q: %s", spec.Name, domain.Describe(err))
				continue
			}
			report.GroupsCreated++
			rep.Info("Created category group %q", created.Name)
			group = &created
			byName[key] = group
		}

		have := make(map[string]bool, len(group.Categories))
		for _, c := range group.Categories {
			have[normalizeName(c.Name)] = true
		}

		for _, name := range spec.Categories {
			ck := normalizeName(name)
			if ck == "" || have[ck] {
				continue
			}
			c, err := store.CreateCategory(ctx, group.ID, strings.TrimSpace(name))
			if err != nil {
				report.Failures++
				rep.Error("Failed to create category %q in %q: %s", name, group.Name, domain.Describe(err))
				continue
			}
			have[ck] = true
			group.Categories = append(group.Categories, c)
			report.CategoriesCreated++
		}
	}

	if report.Changed() {
		rep.Success("Categories synced: %d groups and %d categories created", report.GroupsCreated, report.CategoriesCreated)
	} else {
		rep.Info("Categories already up to date")
	}
	return report, nil
}

func normalizeName(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
