package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ledger-sync/internal/domain"
)

func TestPreferredName(t *testing.T) {
	tests := []struct {
		name    string
		account domain.ProviderAccount
		want    string
	}{
		{
			name:    "reference name wins",
			account: domain.ProviderAccount{AccountName: "Mr J Doe", ReferenceName: "Household", ProductName: "Private Bank Account", AccountNumber: "10012345678"},
			want:    "Household",
		},
		{
			name:    "reference equal to holder falls back",
			account: domain.ProviderAccount{AccountName: "Mr J Doe", ReferenceName: "mr j doe", ProductName: "Private Bank Account", AccountNumber: "10012345678"},
			want:    "Private Bank Account 5678",
		},
		{
			name:    "empty reference falls back",
			account: domain.ProviderAccount{AccountName: "Mr J Doe", ProductName: "Credit Card", AccountNumber: "xxxx-xxxx-xxxx-4321"},
			want:    "Credit Card 4321",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PreferredName(tt.account))
		})
	}
}

func TestAccounts_MatchesAndCreates(t *testing.T) {
	store := &fakeLedger{accounts: []domain.LedgerAccount{
		{ID: "l1", Name: "household", Type: domain.AccountTypeChecking},
		{ID: "l2", Name: "Old Savings 9999", Closed: true},
		{ID: "l3", Name: "My Credit Card 4321 (main)"},
	}}
	rep := &fakeReporter{}

	provider := []domain.ProviderAccount{
		{AccountID: "p1", AccountName: "Doe", ReferenceName: "Household"},
		{AccountID: "p2", AccountName: "Doe", ProductName: "Credit Card", AccountNumber: "4321"},
		{AccountID: "p3", AccountName: "Doe", ProductName: "Old Savings", AccountNumber: "9999"},
		{AccountID: "p4", AccountName: "Doe", ProductName: "Prime Credit Account", AccountNumber: "1111"},
	}

	bindings, err := Accounts(context.Background(), store, provider, rep)
	require.NoError(t, err)
	require.Len(t, bindings, 4)

	assert.Equal(t, "l1", bindings[0].Ledger.ID)
	assert.False(t, bindings[0].Created)

	assert.Equal(t, "l3", bindings[1].Ledger.ID, "substring match")

	assert.True(t, bindings[2].Created, "closed accounts are not matched")
	assert.Equal(t, "Old Savings 9999", bindings[2].Ledger.Name)
	assert.Equal(t, domain.AccountTypeChecking, bindings[2].Ledger.Type)
	assert.False(t, bindings[2].Ledger.OffBudget)

	assert.True(t, bindings[3].Created)
	assert.Equal(t, domain.AccountTypeCredit, bindings[3].Ledger.Type)
}

func TestAccounts_SecondRunCreatesNothing(t *testing.T) {
	store := &fakeLedger{}
	provider := []domain.ProviderAccount{
		{AccountID: "p1", ProductName: "Private Bank Account", AccountNumber: "1234"},
	}

	_, err := Accounts(context.Background(), store, provider, &fakeReporter{})
	require.NoError(t, err)
	require.Len(t, store.accounts, 1)

	bindings, err := Accounts(context.Background(), store, provider, &fakeReporter{})
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.False(t, bindings[0].Created)
	assert.Len(t, store.accounts, 1)
}

func TestAccounts_ClaimedLedgerAccountIsSkipped(t *testing.T) {
	store := &fakeLedger{accounts: []domain.LedgerAccount{{ID: "l1", Name: "Joint Account Household"}}}
	rep := &fakeReporter{}
	provider := []domain.ProviderAccount{
		{AccountID: "p1", ReferenceName: "Household", AccountName: "A"},
		{AccountID: "p2", ReferenceName: "Account Household", AccountName: "B"},
	}

	bindings, err := Accounts(context.Background(), store, provider, rep)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.Equal(t, "p1", bindings[0].Provider.AccountID)
	assert.Equal(t, 1, rep.count("warn"))
}

func TestAccounts_CreationFailureIsContained(t *testing.T) {
	store := &fakeLedger{failAccounts: map[string]bool{"Broken 0001": true}}
	rep := &fakeReporter{}
	provider := []domain.ProviderAccount{
		{AccountID: "p1", ProductName: "Broken", AccountNumber: "0001"},
		{AccountID: "p2", ProductName: "Working", AccountNumber: "0002"},
	}

	bindings, err := Accounts(context.Background(), store, provider, rep)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.Equal(t, "p2", bindings[0].Provider.AccountID)
	assert.Equal(t, 1, rep.count("error"))
}

func TestAccounts_ListFailureIsReturned(t *testing.T) {
	store := &fakeLedger{listErr: errors.New("cache closed")}
	_, err := Accounts(context.Background(), store, []domain.ProviderAccount{{AccountID: "p1"}}, &fakeReporter{})
	require.Error(t, err)
}
