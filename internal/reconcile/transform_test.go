package reconcile

import (
	"encoding/json"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/ledger-sync/internal/domain"
)

func intPtr(i int) *int { return &i }

func TestTransform_DebitWithPostedOrder(t *testing.T) {
	tx := domain.ProviderTransaction{
		Type:            domain.Debit,
		TransactionType: "CardPurchases",
		Description:     "CARD PURCHASE Woolworths",
		CardNumber:      "402167xxxxxx1234",
		PostedOrder:     intPtr(7),
		PostingDate:     "2024-03-01",
		Amount:          decimal.RequireFromString("150.00"),
	}

	got, err := Transform(tx, "ACC1", "ZAR")
	require.NoError(t, err)

	assert.Equal(t, civil.Date{Year: 2024, Month: 3, Day: 1}, got.Date)
	assert.Equal(t, int64(-15000), got.Amount)
	assert.Equal(t, "CARD PURCHASE Woolworths", got.Payee)
	assert.Equal(t, "CardPurchases | 402167xxxxxx1234", got.Notes)
	assert.Equal(t, "ACC1:7:2024-03-01:CARDPURCHASEWoolwo", got.ImportedID)
}

func TestTransform_CreditWithoutPostedOrderUsesAmount(t *testing.T) {
	tx := domain.ProviderTransaction{
		Type:        domain.Credit,
		Description: "Salary",
		ValueDate:   "2024-02-25T00:00:00",
		Amount:      decimal.RequireFromString("12345.67"),
	}

	got, err := Transform(tx, "ACC2", "ZAR")
	require.NoError(t, err)

	assert.Equal(t, int64(1234567), got.Amount)
	assert.Equal(t, "", got.Notes)
	assert.Equal(t, "ACC2:12345.67:2024-02-25:Salary", got.ImportedID)
}

func TestTransform_DatePreference(t *testing.T) {
	tx := domain.ProviderTransaction{
		PostingDate:     "",
		ActionDate:      "2024-01-03",
		ValueDate:       "2024-01-02",
		TransactionDate: "2024-01-01",
		Amount:          decimal.NewFromInt(1),
	}
	got, err := Transform(tx, "A", "ZAR")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-03", got.Date.String())

	tx.ActionDate = "not a date"
	got, err = Transform(tx, "A", "ZAR")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02", got.Date.String())
}

func TestTransform_NoDateIsMalformed(t *testing.T) {
	_, err := Transform(domain.ProviderTransaction{Description: "mystery"}, "A", "ZAR")
	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.MalformedTransaction))
}

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		dir      domain.Direction
		currency string
		want     int64
	}{
		{"debit", "10.50", domain.Debit, "ZAR", -1050},
		{"credit", "10.50", domain.Credit, "ZAR", 1050},
		{"lowercase debit", "1", "debit", "ZAR", -100},
		{"rounds half away from zero", "0.005", domain.Credit, "ZAR", 1},
		{"zero fraction currency", "1500", domain.Debit, "JPY", -1500},
		{"three digit fraction", "1.234", domain.Credit, "KWD", 1234},
		{"unknown currency defaults to cents", "2.5", domain.Credit, "XXX-NOPE", 250},
		{"negative magnitude is normalised", "-3.00", domain.Debit, "ZAR", -300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MinorUnits(decimal.RequireFromString(tt.amount), tt.dir, tt.currency)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestImportID_StableAndDistinct(t *testing.T) {
	base := domain.ProviderTransaction{
		Description: "Café Olé ~ Sandton #42",
		PostingDate: "2024-05-05",
		Amount:      decimal.RequireFromString("42.00"),
	}

	first, err := ImportID(base, "ACC")
	require.NoError(t, err)
	second, err := ImportID(base, "ACC")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "ACC:42:2024-05-05:CafeOleSandton", first)

	other := base
	other.Amount = decimal.RequireFromString("43.00")
	third, err := ImportID(other, "ACC")
	require.NoError(t, err)
	assert.NotEqual(t, first, third)

	otherAccount, err := ImportID(base, "ACC-2")
	require.NoError(t, err)
	assert.NotEqual(t, first, otherAccount)
}

func TestSanitizeDescription(t *testing.T) {
	assert.Equal(t, "", sanitizeDescription(""))
	assert.Equal(t, "ABC123", sanitizeDescription("A-B? C 1/2/3"))
	assert.Equal(t, "Creme", sanitizeDescription("Crème"))
	assert.Equal(t, "abcdefghijklmnopqrst", sanitizeDescription("abcdefghijklmnopqrstuvwxyz"))
}

func TestTransform_Golden(t *testing.T) {
	txs := []domain.ProviderTransaction{
		{
			Type: domain.Debit, TransactionType: "CardPurchases", Description: "CARD PURCHASE Woolworths",
			CardNumber: "402167xxxxxx1234", PostedOrder: intPtr(7), PostingDate: "2024-03-01",
			Amount: decimal.RequireFromString("150.00"),
		},
		{
			Type: domain.Credit, TransactionType: "Deposits", Description: "  Salary March  ",
			PostedOrder: intPtr(8), PostingDate: "2024-03-25", Amount: decimal.RequireFromString("25000"),
		},
		{
			Type: domain.Debit, Description: "Débit Ordre: Discovery Life",
			ActionDate: "2024-03-02", Amount: decimal.RequireFromString("899.99"),
		},
	}

	out := make([]domain.CanonicalTransaction, 0, len(txs))
	for _, tx := range txs {
		c, err := Transform(tx, "ACC1", "ZAR")
		require.NoError(t, err)
		out = append(out, c)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "transform", data)
}
