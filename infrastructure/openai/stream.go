package openai

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"llm-stream/domain/chat"
)

// Stream is the lazily produced fragment sequence for one exchange. A single
// producer goroutine owns the response body, reads it line by line, and pushes
// decoded fragments through an unbuffered channel so at most one line is in
// flight ahead of the consumer.
type Stream struct {
	fragments chan string
	cancel    context.CancelFunc
	closeOnce sync.Once

	// err is written by the producer before it closes fragments; the channel
	// close orders that write before any Err call made after the channel is
	// drained. Nil on clean termination and on consumer cancellation.
	err error
}

func newStream(cancel context.CancelFunc) *Stream {
	return &Stream{
		fragments: make(chan string),
		cancel:    cancel,
	}
}

// Fragments returns the fragment channel. It is closed exactly once, after the
// termination sentinel, natural end of the transport stream, cancellation, or
// a mid-stream failure.
func (s *Stream) Fragments() <-chan string { return s.fragments }

// Err reports the terminal error of the stream. Only meaningful once the
// Fragments channel has been closed.
func (s *Stream) Err() error { return s.err }

// Close abandons the stream. The producer stops at its next suspension point,
// the underlying connection is released, and no further fragments are
// produced. Abandoning a stream is not an error. Safe to call repeatedly.
func (s *Stream) Close() { s.closeOnce.Do(s.cancel) }

// run consumes the response body until a terminal transition. It owns body and
// releases it on every exit path.
func (s *Stream) run(ctx context.Context, body io.ReadCloser, diag Diagnostics) {
	defer close(s.fragments)
	defer body.Close()
	// Release the derived context once the stream is over, whatever the path.
	defer s.cancel()

	reader := bufio.NewReader(body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				// A final line without trailing newline still counts.
				if trimmed := strings.TrimRight(line, "\r\n"); trimmed != "" {
					if s.handleLine(ctx, trimmed, diag) {
						return
					}
				}
				// The peer closing without the sentinel is indistinguishable
				// from a missing [DONE] marker: normal termination.
				diag.StreamClosed(CloseEOF, nil)
				return
			}
			if ctx.Err() != nil {
				diag.StreamClosed(CloseCancelled, nil)
				return
			}
			s.err = fmt.Errorf("%w: stream read: %v", chat.ErrResponseParsing, err)
			diag.StreamClosed(CloseTransportError, s.err)
			return
		}
		if s.handleLine(ctx, strings.TrimRight(line, "\r\n"), diag) {
			return
		}
	}
}

// handleLine processes one protocol line and reports whether the stream is
// done. Per-line decode failures are reported to the diagnostic sink and never
// terminate the stream.
func (s *Stream) handleLine(ctx context.Context, line string, diag Diagnostics) bool {
	kind, payload := classifyLine(line)
	switch kind {
	case frameTerminate:
		diag.StreamClosed(CloseSentinel, nil)
		return true
	case frameIgnore:
		return false
	}

	fragment, ok, err := decodeDelta(payload)
	if err != nil {
		diag.DecodeFailed(payload, err)
		return false
	}
	if !ok {
		return false
	}

	select {
	case s.fragments <- fragment:
		return false
	case <-ctx.Done():
		diag.StreamClosed(CloseCancelled, nil)
		return true
	}
}
