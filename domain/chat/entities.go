package chat

// Core chat entities independent of transport and vendor details

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one chat completion exchange. Model is a tagged choice
// resolved to a concrete identifier before the wire request is built; the
// streaming client always forces streaming on its own copy of the request.
type Request struct {
	Model       ModelChoice
	Messages    []Message
	Stream      bool
	Temperature *float64
	MaxTokens   int
}

// Clone returns a copy with its own messages slice, so the client can force
// streaming without mutating the caller's request.
func (r *Request) Clone() *Request {
	cp := *r
	cp.Messages = make([]Message, len(r.Messages))
	copy(cp.Messages, r.Messages)
	return &cp
}

// ModelChoice is either the client's configured default model or a specific
// model identifier. The zero value means "default".
type ModelChoice struct {
	id string
}

// DefaultModel selects whatever model the client was configured with.
func DefaultModel() ModelChoice { return ModelChoice{} }

// Model selects a specific model identifier.
func Model(id string) ModelChoice { return ModelChoice{id: id} }

func (m ModelChoice) IsDefault() bool { return m.id == "" }

// Resolve returns the concrete model identifier to send on the wire.
func (m ModelChoice) Resolve(defaultID string) string {
	if m.id == "" {
		return defaultID
	}
	return m.id
}

// Streaming chunk types (OpenAI-compatible). Only the first choice's delta
// content is consumed; the rest is carried for diagnostics.
type StreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        StreamDelta `json:"delta"`
	FinishReason *string     `json:"finish_reason,omitempty"`
}

type StreamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
