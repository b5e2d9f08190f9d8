package openai

import "strings"

// Server-sent-events framing as emitted by OpenAI-compatible endpoints: each
// event of interest is a "data: " line carrying a JSON chunk, and the fixed
// sentinel line marks the end of the stream.
const (
	dataPrefix   = "data: "
	doneSentinel = "data: [DONE]"
)

type frameKind int

const (
	// frameIgnore covers blank keep-alives, SSE comments, and any other line
	// that carries no chunk. Skipping them is not an error.
	frameIgnore frameKind = iota
	frameCandidate
	frameTerminate
)

// classifyLine classifies one protocol line. Classification is total: every
// possible input maps to exactly one frame kind, and only frameCandidate
// carries a payload (the line with the data prefix stripped).
func classifyLine(line string) (frameKind, string) {
	if line == doneSentinel {
		return frameTerminate, ""
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return frameIgnore, ""
	}
	payload := line[len(dataPrefix):]
	if payload == "" {
		return frameIgnore, ""
	}
	return frameCandidate, payload
}
