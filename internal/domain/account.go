package domain

// ProviderAccount is a bank account as reported by the provider.
type ProviderAccount struct {
	AccountID     string `json:"account_id"`
	AccountNumber string `json:"account_number"` // masked
	AccountName   string `json:"account_name"`   // raw holder name
	ReferenceName string `json:"reference_name"` // human nickname, optional
	ProductName   string `json:"product_name"`
}

// AccountType is the ledger account kind.
type AccountType string

const (
	AccountTypeChecking AccountType = "checking"
	AccountTypeCredit   AccountType = "credit"
)

// LedgerAccount is an account in the target ledger.
type LedgerAccount struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Type      AccountType `json:"type"`
	OffBudget bool        `json:"off_budget"`
	Closed    bool        `json:"closed,omitempty"`
}

// AccountBinding pairs one provider account with one ledger account for the
// duration of a single execution.
type AccountBinding struct {
	Provider ProviderAccount
	Ledger   LedgerAccount
	Created  bool
}

// Category is a ledger category.
type Category struct {
	ID      string `json:"id"`
	GroupID string `json:"group_id"`
	Name    string `json:"name"`
}

// CategoryGroup is a ledger category group and its categories.
type CategoryGroup struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Categories []Category `json:"categories"`
}
