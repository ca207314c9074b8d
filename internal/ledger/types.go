package ledger

import (
	"encoding/json"

	"github.com/dvloznov/ledger-sync/internal/domain"
)

// Snapshot is a budget as downloaded from the server.
type Snapshot struct {
	BudgetID     string                 `json:"budgetId"`
	Accounts     []domain.LedgerAccount `json:"accounts"`
	Groups       []domain.CategoryGroup `json:"groups"`
	Transactions []Transaction          `json:"transactions"`
}

// Transaction is a ledger transaction as exchanged with the server.
type Transaction struct {
	ID         string `json:"id"`
	AccountID  string `json:"accountId"`
	Date       string `json:"date"`
	Amount     int64  `json:"amount"`
	Payee      string `json:"payee"`
	Notes      string `json:"notes,omitempty"`
	ImportedID string `json:"importedId"`
}

// Change operations.
const (
	OpAdd    = "add"
	OpUpdate = "update"
)

// TransactionChange is one staged transaction write.
type TransactionChange struct {
	Op string `json:"op"`
	Transaction
}

// Changeset is every local write staged since the snapshot was loaded.
type Changeset struct {
	Accounts     []domain.LedgerAccount `json:"accounts,omitempty"`
	Groups       []domain.CategoryGroup `json:"groups,omitempty"`
	Categories   []domain.Category      `json:"categories,omitempty"`
	Transactions []TransactionChange    `json:"transactions,omitempty"`
}

// IsEmpty reports whether there is nothing to push.
func (c Changeset) IsEmpty() bool {
	return len(c.Accounts) == 0 && len(c.Groups) == 0 && len(c.Categories) == 0 && len(c.Transactions) == 0
}

// Size is the number of staged writes.
func (c Changeset) Size() int {
	return len(c.Accounts) + len(c.Groups) + len(c.Categories) + len(c.Transactions)
}

// PushResult is the server's acknowledgement of a changeset.
type PushResult struct {
	Applied int `json:"applied"`
}

// envelope wraps every server response.
type envelope struct {
	Status  string          `json:"status"`
	Reason  string          `json:"reason,omitempty"`
	Details string          `json:"details,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}
