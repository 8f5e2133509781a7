package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/finchbooks/finch/internal/model"
)

// buildPrompt creates the validation prompt for one transaction.
func buildPrompt(txn model.Transaction, accounts []string) string {
	counterparty := txn.Counterparty
	if counterparty == "" {
		counterparty = "(unknown)"
	}

	accountList := ""
	for _, a := range accounts {
		accountList += fmt.Sprintf("- %s\n", a)
	}

	return fmt.Sprintf(`Classify this financial transaction into one of the journal accounts below.

Transaction Details:
Counterparty: %s
Description: %s
Amount: %.2f %s
Date: %s

Accounts:
%s
Instructions:
- Base your classification purely on what the transaction IS, not assumptions about its purpose.
- Pick exactly one account from the list above.
- Respond with ONLY a JSON object in this exact shape:
{"account": "<account name>", "confidence": <0.0-1.0>, "rationale": "<one short sentence>"}`,
		counterparty,
		txn.Description,
		txn.Amount,
		txn.Currency,
		txn.Date.Format("2006-01-02"),
		accountList)
}

// parseOpinion extracts the JSON opinion from the model's reply,
// tolerating markdown code fences around it.
func parseOpinion(content string, accounts []string) (Opinion, error) {
	content = cleanMarkdownWrapper(content)

	var resp struct {
		Account    string  `json:"account"`
		Confidence float64 `json:"confidence"`
		Rationale  string  `json:"rationale"`
	}
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return Opinion{}, fmt.Errorf("failed to parse opinion: %w", err)
	}
	if resp.Account == "" {
		return Opinion{}, fmt.Errorf("no account in opinion")
	}

	// An account outside the offered list is useless downstream.
	known := false
	for _, a := range accounts {
		if strings.EqualFold(a, resp.Account) {
			resp.Account = a
			known = true
			break
		}
	}
	if !known {
		return Opinion{}, fmt.Errorf("opinion names unknown account %q", resp.Account)
	}

	if resp.Confidence < 0 || resp.Confidence > 1 {
		return Opinion{}, fmt.Errorf("opinion confidence %.2f out of range", resp.Confidence)
	}

	return Opinion{
		Account:    resp.Account,
		Confidence: resp.Confidence,
		Rationale:  resp.Rationale,
	}, nil
}

// cleanMarkdownWrapper strips ```json fences some models insist on.
func cleanMarkdownWrapper(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx >= 0 {
			content = content[idx+1:]
		}
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}
	return strings.TrimSpace(content)
}
