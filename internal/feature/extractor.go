// Package feature turns raw transactions into the feature vectors the
// statistical classifier consumes.
package feature

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/finchbooks/finch/internal/model"
)

// Vector is the extracted feature representation of one transaction.
type Vector struct {
	Counterparty string
	AmountBucket string
	Sign         string
	Tokens       []string
	Weekday      time.Weekday
	Month        time.Month
}

// Amount bucket boundaries in absolute currency units.
var bucketBounds = []struct {
	name  string
	upper float64
}{
	{"micro", 10},
	{"small", 50},
	{"medium", 250},
	{"large", 1000},
}

// Extract builds a feature vector from a transaction.
func Extract(txn model.Transaction) Vector {
	source := txn.Description
	if txn.Counterparty != "" {
		source = txn.Counterparty + " " + txn.Description
	}

	sign := "credit"
	if txn.Debit() {
		sign = "debit"
	}

	return Vector{
		Tokens:       Tokenize(source),
		Counterparty: NormalizeCounterparty(txn.Counterparty),
		AmountBucket: AmountBucket(txn.Amount),
		Weekday:      txn.Date.Weekday(),
		Month:        txn.Date.Month(),
		Sign:         sign,
	}
}

// Terms flattens the vector into the term list consumed by the
// bayesian classifier. Non-lexical features become synthetic terms so
// a single document model can learn from all of them.
func (v Vector) Terms() []string {
	terms := make([]string, 0, len(v.Tokens)+4)
	terms = append(terms, v.Tokens...)
	terms = append(terms,
		"amount:"+v.AmountBucket,
		"day:"+strings.ToLower(v.Weekday.String()),
		"month:"+strings.ToLower(v.Month.String()),
		"sign:"+v.Sign)
	return terms
}

// Tokenize lowercases the input, splits on non-alphanumeric runs and
// drops purely numeric tokens, which carry reference numbers rather
// than signal.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || isNumeric(f) {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// NormalizeCounterparty produces the canonical key used for rule
// matching and history lookups.
func NormalizeCounterparty(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// AmountBucket maps an amount to a coarse magnitude bucket.
func AmountBucket(amount float64) string {
	abs := math.Abs(amount)
	for _, b := range bucketBounds {
		if abs < b.upper {
			return b.name
		}
	}
	return "xlarge"
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// String renders a compact representation used in candidate rationales.
func (v Vector) String() string {
	return fmt.Sprintf("tokens=%s amount=%s sign=%s", strings.Join(v.Tokens, ","), v.AmountBucket, v.Sign)
}
