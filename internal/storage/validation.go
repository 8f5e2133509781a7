package storage

import (
	"context"
	"fmt"

	"github.com/finchbooks/finch/internal/model"
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context cannot be nil")
	}
	return ctx.Err()
}

func validateString(value, name string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	return nil
}

func validateTransaction(txn *model.Transaction) error {
	switch {
	case txn.ID == "":
		return fmt.Errorf("transaction id cannot be empty")
	case txn.TenantID == "":
		return fmt.Errorf("transaction %s has no tenant", txn.ID)
	case txn.Date.IsZero():
		return fmt.Errorf("transaction %s has no date", txn.ID)
	}
	return nil
}

func validateDecision(d *model.Decision) error {
	switch {
	case d == nil:
		return fmt.Errorf("decision cannot be nil")
	case d.ID == "":
		return fmt.Errorf("decision id cannot be empty")
	case d.TransactionID == "":
		return fmt.Errorf("decision %s has no transaction id", d.ID)
	case d.TenantID == "":
		return fmt.Errorf("decision %s has no tenant", d.ID)
	case d.Confidence < 0 || d.Confidence > 1:
		return fmt.Errorf("decision %s confidence %.4f out of [0,1]", d.ID, d.Confidence)
	}
	return nil
}
