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

const openAIEndpoint = "https://api.openai.com/v1/chat/completions"

// openAIValidator implements the Validator interface against the
// OpenAI chat completions API.
type openAIValidator struct {
	httpClient  *http.Client
	apiKey      string
	model       string
	endpoint    string
	temperature float64
	maxTokens   int
}

func newOpenAIValidator(cfg Config) (Validator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	mdl := cfg.Model
	if mdl == "" {
		mdl = "gpt-4o-mini"
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.2
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 200
	}

	return &openAIValidator{
		apiKey:      cfg.APIKey,
		model:       mdl,
		endpoint:    openAIEndpoint,
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

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Validate sends one transaction for classification.
func (v *openAIValidator) Validate(ctx context.Context, txn model.Transaction, accounts []string) (Opinion, error) {
	requestBody := map[string]any{
		"model":       v.model,
		"max_tokens":  v.maxTokens,
		"temperature": v.temperature,
		"messages": []map[string]string{
			{"role": "system", "content": "You are a bookkeeping assistant that assigns journal accounts to bank transactions. Respond only with the JSON object requested."},
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
	req.Header.Set("Authorization", "Bearer "+v.apiKey)

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

	var response openAIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return Opinion{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(response.Choices) == 0 {
		return Opinion{}, fmt.Errorf("no choices in response")
	}

	return parseOpinion(response.Choices[0].Message.Content, accounts)
}
