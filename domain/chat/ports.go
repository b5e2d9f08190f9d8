package chat

import "context"

// FragmentStream is a lazily produced, cancellable sequence of content
// fragments from one streamed exchange. Fragments arrive in strict line order
// and concatenate to the full assistant reply.
//
// The channel returned by Fragments is closed exactly once: after the
// termination sentinel, after the transport stream ends naturally, or after a
// mid-stream failure. Err is meaningful only once the channel is closed; it is
// nil on clean termination and on consumer-initiated cancellation.
type FragmentStream interface {
	Fragments() <-chan string
	Err() error
	// Close abandons the stream: the producer stops at its next suspension
	// point and the transport resource is released. Safe to call repeatedly.
	Close()
}

// FragmentHandler receives each content fragment as it arrives. Returning an
// error abandons the stream.
type FragmentHandler func(fragment string) error

// StreamOpener opens one streamed exchange. Setup failures (request build,
// connection, initial status validation) are returned synchronously; failures
// after that surface through the stream's own Err.
type StreamOpener interface {
	StreamCompletion(ctx context.Context, req *Request) (FragmentStream, error)
}
