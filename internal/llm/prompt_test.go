package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOpinion(t *testing.T) {
	accounts := []string{"Shopping", "Office Supplies"}

	tests := []struct {
		name    string
		content string
		want    Opinion
		wantErr bool
	}{
		{
			name:    "plain json",
			content: `{"account": "Shopping", "confidence": 0.82, "rationale": "online marketplace"}`,
			want:    Opinion{Account: "Shopping", Confidence: 0.82, Rationale: "online marketplace"},
		},
		{
			name: "markdown fenced json",
			content: "```json\n" +
				`{"account": "office supplies", "confidence": 0.7, "rationale": "stationery vendor"}` +
				"\n```",
			want: Opinion{Account: "Office Supplies", Confidence: 0.7, Rationale: "stationery vendor"},
		},
		{
			name:    "unknown account rejected",
			content: `{"account": "Crypto", "confidence": 0.9}`,
			wantErr: true,
		},
		{
			name:    "confidence out of range",
			content: `{"account": "Shopping", "confidence": 1.4}`,
			wantErr: true,
		},
		{
			name:    "not json",
			content: "Shopping, probably",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOpinion(tt.content, accounts)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
