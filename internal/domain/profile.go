package domain

import (
	"strings"
)

// DefaultCurrency is used when a profile does not name its ledger currency.
const DefaultCurrency = "ZAR"

// ProviderCredentials holds the banking API credentials of a profile.
// None of these values may be logged in full.
type ProviderCredentials struct {
	ClientID string `yaml:"client_id" json:"client_id"`
	SecretID string `yaml:"secret_id" json:"secret_id"`
	APIKey   string `yaml:"api_key" json:"api_key"`

	// BaseURL overrides the provider endpoint (sandbox or tests).
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}

// LedgerTarget identifies the remote ledger a profile writes to.
type LedgerTarget struct {
	ServerURL string `yaml:"server_url" json:"server_url"`
	BudgetID  string `yaml:"budget_id" json:"budget_id"`

	// Password is either the server password or the budget encryption
	// passphrase. Only the server response tells which one it is.
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
}

// SyncProfile is one independently schedulable provider -> ledger configuration.
type SyncProfile struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Currency string `yaml:"currency,omitempty" json:"currency,omitempty"`

	Provider ProviderCredentials `yaml:"provider" json:"provider"`
	Ledger   LedgerTarget        `yaml:"ledger" json:"ledger"`

	// Schedule is a standard cron expression. Empty means manual-only.
	Schedule string `yaml:"schedule,omitempty" json:"schedule,omitempty"`

	// Categories overrides the process-wide default taxonomy when set.
	Categories *Taxonomy `yaml:"categories,omitempty" json:"categories,omitempty"`
}

// DisplayName returns the profile name, falling back to its id.
func (p SyncProfile) DisplayName() string {
	if strings.TrimSpace(p.Name) != "" {
		return p.Name
	}
	return p.ID
}

// LedgerCurrency returns the ISO currency code of the ledger.
func (p SyncProfile) LedgerCurrency() string {
	if c := strings.TrimSpace(p.Currency); c != "" {
		return strings.ToUpper(c)
	}
	return DefaultCurrency
}

// EffectiveTaxonomy returns the profile override, or def when none is set.
func (p SyncProfile) EffectiveTaxonomy(def Taxonomy) Taxonomy {
	if p.Categories != nil {
		return p.Categories.Clone()
	}
	return def.Clone()
}

// Clone returns a deep copy so executions never share profile state with
// the configuration store.
func (p SyncProfile) Clone() SyncProfile {
	c := p
	if p.Categories != nil {
		t := p.Categories.Clone()
		c.Categories = &t
	}
	return c
}

// ValidateProvider checks the fields needed before any provider call.
func (p SyncProfile) ValidateProvider() error {
	var missing []string
	if strings.TrimSpace(p.Provider.ClientID) == "" {
		missing = append(missing, "provider.client_id")
	}
	if strings.TrimSpace(p.Provider.SecretID) == "" {
		missing = append(missing, "provider.secret_id")
	}
	if strings.TrimSpace(p.Provider.APIKey) == "" {
		missing = append(missing, "provider.api_key")
	}
	return missingFields(p.ID, missing)
}

// ValidateLedger checks the fields needed before any ledger call.
func (p SyncProfile) ValidateLedger() error {
	var missing []string
	if strings.TrimSpace(p.Ledger.ServerURL) == "" {
		missing = append(missing, "ledger.server_url")
	}
	if strings.TrimSpace(p.Ledger.BudgetID) == "" {
		missing = append(missing, "ledger.budget_id")
	}
	return missingFields(p.ID, missing)
}

// Validate checks every field a full sync needs.
func (p SyncProfile) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return NewError(ConfigurationMissing, "validate profile", "profile id is empty", nil)
	}
	if err := p.ValidateProvider(); err != nil {
		return err
	}
	return p.ValidateLedger()
}

func missingFields(profileID string, missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return NewError(ConfigurationMissing, "validate profile",
		"profile "+profileID+" is missing "+strings.Join(missing, ", "), nil)
}
