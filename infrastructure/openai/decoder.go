package openai

import (
	"encoding/json"

	"llm-stream/domain/chat"
)

// decodeDelta parses a candidate payload as a streamed chunk and extracts the
// first choice's delta content.
//
// Returns the fragment and ok=true when content is present and non-empty.
// ok=false with a nil error means the chunk decoded fine but carried no text
// (role-only or finish-reason-only chunks); a non-nil error means the payload
// was not valid JSON or did not match the expected shape. Decode errors are
// non-fatal to the stream: the caller reports them and moves on, so upstream
// protocol additions never break delivery of subsequent chunks.
func decodeDelta(payload string) (string, bool, error) {
	var chunk chat.StreamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return "", false, err
	}
	if len(chunk.Choices) == 0 {
		return "", false, nil
	}
	content := chunk.Choices[0].Delta.Content
	if content == "" {
		return "", false, nil
	}
	return content, true, nil
}
