package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validProfile() SyncProfile {
	return SyncProfile{
		ID:       "main",
		Enabled:  true,
		Provider: ProviderCredentials{ClientID: "cid", SecretID: "sec", APIKey: "key"},
		Ledger:   LedgerTarget{ServerURL: "http://ledger", BudgetID: "budget-1"},
	}
}

func TestSyncProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *SyncProfile)
		wantErr bool
	}{
		{"complete", func(p *SyncProfile) {}, false},
		{"missing id", func(p *SyncProfile) { p.ID = "" }, true},
		{"missing client id", func(p *SyncProfile) { p.Provider.ClientID = " " }, true},
		{"missing api key", func(p *SyncProfile) { p.Provider.APIKey = "" }, true},
		{"missing server", func(p *SyncProfile) { p.Ledger.ServerURL = "" }, true},
		{"missing budget", func(p *SyncProfile) { p.Ledger.BudgetID = "" }, true},
		{"password optional", func(p *SyncProfile) { p.Ledger.Password = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProfile()
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				assert.True(t, IsKind(err, ConfigurationMissing), "want ConfigurationMissing, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSyncProfile_CloneDoesNotShareTaxonomy(t *testing.T) {
	p := validProfile()
	p.Categories = &Taxonomy{Groups: []GroupSpec{{Name: "Food", Categories: []string{"Groceries"}}}}

	c := p.Clone()
	c.Categories.Groups[0].Categories[0] = "Other"

	assert.Equal(t, "Groceries", p.Categories.Groups[0].Categories[0])
}

func TestSyncProfile_EffectiveTaxonomy(t *testing.T) {
	def := Taxonomy{Groups: []GroupSpec{{Name: "Default"}}}

	p := validProfile()
	assert.Equal(t, "Default", p.EffectiveTaxonomy(def).Groups[0].Name)

	p.Categories = &Taxonomy{Groups: []GroupSpec{{Name: "Override"}}}
	assert.Equal(t, "Override", p.EffectiveTaxonomy(def).Groups[0].Name)
}

func TestSyncProfile_LedgerCurrency(t *testing.T) {
	p := validProfile()
	assert.Equal(t, "ZAR", p.LedgerCurrency())
	p.Currency = "usd"
	assert.Equal(t, "USD", p.LedgerCurrency())
}

func TestError_KindThroughWrapping(t *testing.T) {
	base := NewError(RemoteLedgerNotFound, "attach", "budget missing", errors.New("404"))
	wrapped := errors.Join(errors.New("context"), base)

	assert.True(t, IsKind(wrapped, RemoteLedgerNotFound))
	assert.Equal(t, "budget missing", Describe(wrapped))
	assert.Contains(t, base.Error(), "REMOTE_LEDGER_NOT_FOUND: attach: budget missing: 404")
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.False(t, IsKind(nil, RemoteLedgerNotFound))
}
