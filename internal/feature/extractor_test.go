package feature

import (
	"testing"
	"time"

	"github.com/finchbooks/finch/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "card descriptor with reference noise",
			input: "AMZN MKTP US*AB12",
			want:  []string{"amzn", "mktp", "us", "ab12"},
		},
		{
			name:  "drops pure numbers",
			input: "ACH TRANSFER 004512 9981",
			want:  []string{"ach", "transfer"},
		},
		{
			name:  "drops single characters",
			input: "A B COFFEE",
			want:  []string{"coffee"},
		},
		{
			name:  "empty description",
			input: "",
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.input))
		})
	}
}

func TestAmountBucket(t *testing.T) {
	tests := []struct {
		want   string
		amount float64
	}{
		{"micro", -4.50},
		{"small", 25.00},
		{"medium", -120.00},
		{"large", 999.99},
		{"xlarge", -15000.00},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, AmountBucket(tt.amount), "amount %.2f", tt.amount)
	}
}

func TestExtract(t *testing.T) {
	txn := model.Transaction{
		ID:           "txn-1",
		TenantID:     "acme",
		Date:         time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC), // a Wednesday
		Description:  "AMZN MKTP US*AB12",
		Counterparty: "Amazon  Marketplace",
		Amount:       -45.99,
		Currency:     "USD",
	}

	v := Extract(txn)

	assert.Equal(t, "amazon marketplace", v.Counterparty)
	assert.Equal(t, "small", v.AmountBucket)
	assert.Equal(t, time.Wednesday, v.Weekday)
	assert.Equal(t, time.March, v.Month)
	assert.Equal(t, "debit", v.Sign)
	assert.Contains(t, v.Tokens, "amazon")
	assert.Contains(t, v.Tokens, "amzn")
}

func TestTerms_IncludesSyntheticFeatures(t *testing.T) {
	txn := model.Transaction{
		Date:        time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC), // a Monday
		Description: "STARBUCKS STORE 123",
		Amount:      -5.40,
	}

	terms := Extract(txn).Terms()

	assert.Contains(t, terms, "starbucks")
	assert.Contains(t, terms, "amount:micro")
	assert.Contains(t, terms, "day:monday")
	assert.Contains(t, terms, "month:january")
	assert.Contains(t, terms, "sign:debit")
}

func TestExtract_Deterministic(t *testing.T) {
	txn := model.Transaction{
		Date:         time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC),
		Description:  "PAYROLL ACME CORP",
		Counterparty: "Acme Corp",
		Amount:       2500.00,
	}

	assert.Equal(t, Extract(txn), Extract(txn))
}
