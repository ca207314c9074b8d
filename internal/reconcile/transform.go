package reconcile

import (
	"strconv"
	"strings"
	"unicode"

	"cloud.google.com/go/civil"
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/dvloznov/ledger-sync/internal/domain"
)

const (
	// DescriptionKeyLength is how many leading description characters feed
	// the import id.
	DescriptionKeyLength = 20

	notesSeparator = " | "

	// defaultFraction applies to currencies go-money does not know.
	defaultFraction = 2
)

// Transform converts one provider transaction of accountID into the ledger's
// vocabulary. It fails with MalformedTransaction when no date is usable.
func Transform(tx domain.ProviderTransaction, accountID, currency string) (domain.CanonicalTransaction, error) {
	date, ok := TransactionDate(tx)
	if !ok {
		return domain.CanonicalTransaction{}, domain.NewError(domain.MalformedTransaction, "transform",
			"transaction "+describe(tx)+" has no usable date", nil)
	}

	return domain.CanonicalTransaction{
		Date:       date,
		Amount:     MinorUnits(tx.Amount, tx.Type, currency),
		Payee:      strings.TrimSpace(tx.Description),
		Notes:      notes(tx),
		ImportedID: importID(tx, accountID, date),
	}, nil
}

// ImportID derives the deduplication key of tx:
// {account}:{posted order, else absolute amount}:{date}:{sanitised description prefix}.
func ImportID(tx domain.ProviderTransaction, accountID string) (string, error) {
	date, ok := TransactionDate(tx)
	if !ok {
		return "", domain.NewError(domain.MalformedTransaction, "import id",
			"transaction "+describe(tx)+" has no usable date", nil)
	}
	return importID(tx, accountID, date), nil
}

func importID(tx domain.ProviderTransaction, accountID string, date civil.Date) string {
	ordinal := tx.Amount.Abs().String()
	if tx.PostedOrder != nil {
		ordinal = strconv.Itoa(*tx.PostedOrder)
	}
	return accountID + ":" + ordinal + ":" + date.String() + ":" + sanitizeDescription(tx.Description)
}

// TransactionDate picks the posting date, then the action, value and
// transaction dates, dropping any time of day.
func TransactionDate(tx domain.ProviderTransaction) (civil.Date, bool) {
	for _, raw := range []string{tx.PostingDate, tx.ActionDate, tx.ValueDate, tx.TransactionDate} {
		if d, ok := parseDay(raw); ok {
			return d, true
		}
	}
	return civil.Date{}, false
}

func parseDay(raw string) (civil.Date, bool) {
	s := strings.TrimSpace(raw)
	if len(s) < 10 {
		return civil.Date{}, false
	}
	d, err := civil.ParseDate(s[:10])
	if err != nil || !d.IsValid() {
		return civil.Date{}, false
	}
	return d, true
}

// MinorUnits converts an unsigned major-unit amount to the ledger's signed
// integer minor unit, negative for debits, rounded to the nearest unit.
func MinorUnits(amount decimal.Decimal, dir domain.Direction, currency string) int64 {
	fraction := defaultFraction
	if c := money.GetCurrency(strings.ToUpper(currency)); c != nil {
		fraction = c.Fraction
	}
	units := amount.Abs().Shift(int32(fraction)).Round(0).IntPart()
	if strings.EqualFold(string(dir), string(domain.Debit)) {
		return -units
	}
	return units
}

func notes(tx domain.ProviderTransaction) string {
	var parts []string
	for _, p := range []string{tx.TransactionType, tx.CardNumber} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, notesSeparator)
}

// sanitizeDescription keeps the ASCII letters and digits of the first
// DescriptionKeyLength characters, with accents folded away.
func sanitizeDescription(desc string) string {
	prefix := []rune(strings.TrimSpace(desc))
	if len(prefix) > DescriptionKeyLength {
		prefix = prefix[:DescriptionKeyLength]
	}

	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, string(prefix))
	if err != nil {
		folded = string(prefix)
	}

	var b strings.Builder
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func describe(tx domain.ProviderTransaction) string {
	d := strings.TrimSpace(tx.Description)
	if d == "" {
		d = "(no description)"
	}
	return strconv.Quote(d)
}
