package domain

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Direction is the provider's debit/credit flag.
type Direction string

const (
	Debit  Direction = "DEBIT"
	Credit Direction = "CREDIT"
)

// ProviderTransaction is a transaction as returned by the provider. Amount is
// an unsigned magnitude in major units; Type carries the sign.
type ProviderTransaction struct {
	AccountID       string          `json:"accountId"`
	Type            Direction       `json:"type"`
	TransactionType string          `json:"transactionType"`
	Status          string          `json:"status"`
	Description     string          `json:"description"`
	CardNumber      string          `json:"cardNumber"`
	PostedOrder     *int            `json:"postedOrder"`
	PostingDate     string          `json:"postingDate"`
	ValueDate       string          `json:"valueDate"`
	ActionDate      string          `json:"actionDate"`
	TransactionDate string          `json:"transactionDate"`
	Amount          decimal.Decimal `json:"amount"`
	RunningBalance  decimal.Decimal `json:"runningBalance"`
}

// IsPending reports whether the provider has not posted the transaction yet.
func (t ProviderTransaction) IsPending() bool {
	return t.Status == "PENDING"
}

// CanonicalTransaction is a provider transaction in ledger vocabulary.
type CanonicalTransaction struct {
	Date       civil.Date `json:"date"`
	Amount     int64      `json:"amount"` // signed, ledger minor units
	Payee      string     `json:"payee"`
	Notes      string     `json:"notes"`
	ImportedID string     `json:"imported_id"`
}

// ImportResult counts what a ledger import call did.
type ImportResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
}

// Add accumulates another result.
func (r *ImportResult) Add(o ImportResult) {
	r.Added += o.Added
	r.Updated += o.Updated
}
