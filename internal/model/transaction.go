package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// Transaction represents a single normalized bank or card transaction.
// It is produced by an external ingestion collaborator and is never
// mutated by the engine.
type Transaction struct {
	Date         time.Time
	ID           string
	TenantID     string
	Description  string // Raw statement description
	Counterparty string // Cleaned counterparty name, empty when unknown
	Currency     string
	Amount       float64 // Signed: negative amounts are money leaving the account
}

// GenerateHash creates a stable hash for duplicate detection and
// suggestion caching.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%.2f:%s:%s",
		t.TenantID,
		t.Date.Format("2006-01-02"),
		t.Amount,
		t.Counterparty,
		t.Description)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// Debit reports whether money left the account.
func (t *Transaction) Debit() bool {
	return t.Amount < 0
}
