package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ledger-sync/internal/domain"
)

func taxonomy() domain.Taxonomy {
	return domain.Taxonomy{Groups: []domain.GroupSpec{
		{Name: "Living", Categories: []string{"Groceries", "Rent"}},
		{Name: "Transport", Categories: []string{"Fuel", "Parking"}},
	}}
}

func TestCategories_CreatesMissingOnly(t *testing.T) {
	store := &fakeLedger{groups: []domain.CategoryGroup{
		{ID: "g1", Name: "living", Categories: []domain.Category{{ID: "c1", GroupID: "g1", Name: "GROCERIES"}}},
		{ID: "g2", Name: "Personal", Categories: []domain.Category{{ID: "c2", GroupID: "g2", Name: "Gym"}}},
	}}
	rep := &fakeReporter{}

	report, err := Categories(context.Background(), store, taxonomy(), rep)
	require.NoError(t, err)

	assert.Equal(t, 1, report.GroupsCreated)
	assert.Equal(t, 3, report.CategoriesCreated)
	assert.Zero(t, report.Failures)
	assert.True(t, report.Changed())

	require.Len(t, store.groups, 3)
	assert.Equal(t, "Personal", store.groups[1].Name, "existing groups are never renamed or removed")
	assert.Len(t, store.groups[0].Categories, 2)
}

func TestCategories_Idempotent(t *testing.T) {
	store := &fakeLedger{}

	_, err := Categories(context.Background(), store, taxonomy(), &fakeReporter{})
	require.NoError(t, err)

	rep := &fakeReporter{}
	report, err := Categories(context.Background(), store, taxonomy(), rep)
	require.NoError(t, err)
	assert.False(t, report.Changed())
	assert.Equal(t, 2, store.createdGroups)
	assert.Equal(t, "Categories already up to date", rep.lines[len(rep.lines)-1].msg)
}

func TestCategories_GroupFailureSkipsItsCategories(t *testing.T) {
	store := &fakeLedger{
		failGroups:   map[string]bool{"LIVING": true},
		failCategory: map[string]bool{"PARKING": true},
	}
	rep := &fakeReporter{}

	report, err := Categories(context.Background(), store, taxonomy(), rep)
	require.NoError(t, err)

	assert.Equal(t, 1, report.GroupsCreated)
	assert.Equal(t, 1, report.CategoriesCreated)
	assert.Equal(t, 2, report.Failures)
	assert.Equal(t, 2, rep.count("error"))
	require.Len(t, store.groups, 1)
	assert.Equal(t, "Transport", store.groups[0].Name)
}

func TestCategories_EmptyTaxonomy(t *testing.T) {
	report, err := Categories(context.Background(), &fakeLedger{}, domain.Taxonomy{}, &fakeReporter{})
	require.NoError(t, err)
	assert.False(t, report.Changed())
}
