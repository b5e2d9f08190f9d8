package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"llm-stream/domain/chat"
)

// CurlCommand renders a curl invocation equivalent to the HTTP exchange the
// client would perform for req, for manual reproduction and debugging. The
// rendered request has streaming forced on, exactly like the real exchange.
func (c *Client) CurlCommand(req *chat.Request) (string, error) {
	body, err := json.Marshal(c.wireRequest(req))
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var b strings.Builder
	b.WriteString("curl -N -X POST ")
	b.WriteString(shellQuote(c.baseURL + chatCompletionsPath))
	b.WriteString(" \\\n  -H ")
	b.WriteString(shellQuote("Content-Type: application/json"))
	b.WriteString(" \\\n  -H ")
	b.WriteString(shellQuote("Accept: text/event-stream"))
	b.WriteString(" \\\n  -H ")
	b.WriteString(shellQuote("Authorization: Bearer " + c.apiKey))
	b.WriteString(" \\\n  -d ")
	b.WriteString(shellQuote(string(body)))
	return b.String(), nil
}

// shellQuote single-quotes s for a POSIX shell.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
