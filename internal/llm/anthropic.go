package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/finchbooks/finch/internal/model"
)

const anthropicEndpoint = "https://api.anthropic.com/v1/messages"

// anthropicValidator implements the Validator interface against the
// Anthropic messages API.
type anthropicValidator struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	endpoint    string
	temperature float64
	maxTokens   int
}

func newAnthropicValidator(cfg Config) (Validator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	mdl := cfg.Model
	if mdl == "" {
		mdl = "claude-3-5-haiku-latest"
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 200
	}

	return &anthropicValidator{
		apiKey:      cfg.APIKey,
		model:       mdl,
		endpoint:    anthropicEndpoint,
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
			},
		},
	}, nil
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Validate sends one transaction for classification.
func (v *anthropicValidator) Validate(ctx context.Context, txn model.Transaction, accounts []string) (Opinion, error) {
	requestBody := map[string]any{
		"model":       v.model,
		"max_tokens":  v.maxTokens,
		"temperature": v.temperature,
		"system":      "You are a bookkeeping assistant that assigns journal accounts to bank transactions. Respond only with the JSON object requested.",
		"messages": []map[string]string{
			{"role": "user", "content": buildPrompt(txn, accounts)},
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return Opinion{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(string(jsonBody)))
	if err != nil {
		return Opinion{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", v.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return Opinion{}, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Opinion{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Opinion{}, &apiError{status: resp.StatusCode, body: string(body)}
	}

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return Opinion{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(response.Content) == 0 {
		return Opinion{}, fmt.Errorf("no content in response")
	}

	return parseOpinion(response.Content[0].Text, accounts)
}
