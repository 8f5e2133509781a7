package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/finchbooks/finch/internal/model"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import transactions from a CSV export",
		Long: `Import bank transactions from a CSV file. The file needs a header row
with at least date, description and amount columns; counterparty,
currency and id columns are used when present.

Re-importing the same file is safe: transactions are deduplicated by id
and content hash.`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}
	cmd.Flags().StringP("tenant", "t", "", "tenant to import for (required)")
	cmd.Flags().String("date-format", "2006-01-02", "Go layout for the date column")
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tenantID, err := requireTenant(cmd)
	if err != nil {
		return err
	}
	dateFormat, _ := cmd.Flags().GetString("date-format")

	file, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer func() { _ = file.Close() }()

	txns, err := parseCSV(file, tenantID, dateFormat)
	if err != nil {
		return err
	}
	if len(txns) == 0 {
		return fmt.Errorf("no transactions found in %s", args[0])
	}

	db, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer closeStorage(db)

	if err := db.SaveTransactions(ctx, txns); err != nil {
		return fmt.Errorf("failed to save transactions: %w", err)
	}

	fmt.Printf("Imported %d transactions for tenant %s\n", len(txns), tenantID)
	return nil
}

func parseCSV(r io.Reader, tenantID, dateFormat string) ([]model.Transaction, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"date", "description", "amount"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("CSV is missing required column %q", required)
		}
	}

	field := func(record []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var txns []model.Transaction
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		date, err := time.Parse(dateFormat, field(record, "date"))
		if err != nil {
			return nil, fmt.Errorf("line %d: bad date %q: %w", line, field(record, "date"), err)
		}
		amount, err := strconv.ParseFloat(strings.ReplaceAll(field(record, "amount"), ",", ""), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad amount %q: %w", line, field(record, "amount"), err)
		}

		txn := model.Transaction{
			ID:           field(record, "id"),
			TenantID:     tenantID,
			Date:         date,
			Description:  field(record, "description"),
			Counterparty: field(record, "counterparty"),
			Amount:       amount,
			Currency:     field(record, "currency"),
		}
		if txn.ID == "" {
			// Feeds without stable ids fall back to the content hash.
			txn.ID = txn.GenerateHash()
		}
		txns = append(txns, txn)
	}
	return txns, nil
}
