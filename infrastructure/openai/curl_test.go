package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-stream/domain/chat"
)

func TestClient_CurlCommand(t *testing.T) {
	client := NewClient(Config{
		APIKey:       "test-api-key",
		BaseURL:      "https://api.example.com/v1",
		DefaultModel: "gpt-4o-mini",
		Diagnostics:  NopDiagnostics(),
	})

	req := &chat.Request{
		Model:    chat.DefaultModel(),
		Messages: []chat.Message{{Role: chat.RoleUser, Content: "Hello"}},
		Stream:   false,
	}

	cmd, err := client.CurlCommand(req)
	require.NoError(t, err)

	assert.Contains(t, cmd, "curl -N -X POST")
	assert.Contains(t, cmd, "'https://api.example.com/v1/chat/completions'")
	assert.Contains(t, cmd, "'Authorization: Bearer test-api-key'")
	assert.Contains(t, cmd, "'Content-Type: application/json'")
	assert.Contains(t, cmd, `"model":"gpt-4o-mini"`)
	assert.Contains(t, cmd, `"stream":true`, "rendered request must force streaming like the real exchange")
}

func TestClient_CurlCommand_QuotesContent(t *testing.T) {
	client := NewClient(Config{APIKey: "k", BaseURL: "https://api.example.com/v1", DefaultModel: "m"})

	req := &chat.Request{
		Messages: []chat.Message{{Role: chat.RoleUser, Content: "what's up"}},
	}

	cmd, err := client.CurlCommand(req)
	require.NoError(t, err)

	// Single quotes inside the body must survive a POSIX shell.
	assert.Contains(t, cmd, `what'\''s up`)
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "'plain'", shellQuote("plain"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}
