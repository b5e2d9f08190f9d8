package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-stream/domain/chat"
)

type fakeStream struct {
	fragments chan string
	err       error
	mu        sync.Mutex
	closed    bool
}

func newFakeStream(fragments []string, err error) *fakeStream {
	ch := make(chan string, len(fragments))
	for _, f := range fragments {
		ch <- f
	}
	close(ch)
	return &fakeStream{fragments: ch, err: err}
}

func (f *fakeStream) Fragments() <-chan string { return f.fragments }
func (f *fakeStream) Err() error               { return f.err }

func (f *fakeStream) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeStream) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeOpener struct {
	stream  *fakeStream
	openErr error
	lastReq *chat.Request
}

func (f *fakeOpener) StreamCompletion(ctx context.Context, req *chat.Request) (chat.FragmentStream, error) {
	f.lastReq = req
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.stream, nil
}

type trackedStart struct {
	id          uuid.UUID
	requestData []byte
	model       string
}

type trackedCompletion struct {
	id            uuid.UUID
	reply         string
	fragmentCount int
}

type recordingTracker struct {
	mu        sync.Mutex
	starts    []trackedStart
	completes []trackedCompletion
	failures  map[uuid.UUID]string
	startErr  error
}

func newRecordingTracker() *recordingTracker {
	return &recordingTracker{failures: make(map[uuid.UUID]string)}
}

func (r *recordingTracker) StartTracking(ctx context.Context, id uuid.UUID, requestData []byte, model string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.starts = append(r.starts, trackedStart{id: id, requestData: requestData, model: model})
	return nil
}

func (r *recordingTracker) CompleteTracking(ctx context.Context, id uuid.UUID, reply string, fragmentCount int, latencyMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completes = append(r.completes, trackedCompletion{id: id, reply: reply, fragmentCount: fragmentCount})
	return nil
}

func (r *recordingTracker) FailTracking(ctx context.Context, id uuid.UUID, errorMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[id] = errorMsg
	return nil
}

func userRequest(content string) *chat.Request {
	return &chat.Request{
		Messages: []chat.Message{{Role: chat.RoleUser, Content: content}},
	}
}

func TestService_Stream_ForwardsFragmentsInOrder(t *testing.T) {
	opener := &fakeOpener{stream: newFakeStream([]string{"Hel", "lo", "!"}, nil)}
	tracker := newRecordingTracker()
	service := NewService(opener, tracker, "test-model")

	var received []string
	err := service.Stream(context.Background(), userRequest("Hi"), func(fragment string) error {
		received = append(received, fragment)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"Hel", "lo", "!"}, received)

	require.Len(t, tracker.starts, 1)
	assert.Equal(t, "test-model", tracker.starts[0].model)
	require.Len(t, tracker.completes, 1)
	assert.Equal(t, "Hello!", tracker.completes[0].reply)
	assert.Equal(t, 3, tracker.completes[0].fragmentCount)
	assert.Empty(t, tracker.failures)
}

func TestService_Stream_Validation(t *testing.T) {
	service := NewServiceWithoutTracking(&fakeOpener{}, "test-model")

	longContent := strings.Repeat("a", 50001)
	manyMessages := make([]chat.Message, 101)
	for i := range manyMessages {
		manyMessages[i] = chat.Message{Role: chat.RoleUser, Content: "hi"}
	}

	tests := []struct {
		name    string
		req     *chat.Request
		wantErr string
	}{
		{
			name:    "empty messages",
			req:     &chat.Request{},
			wantErr: "messages cannot be empty",
		},
		{
			name:    "too many messages",
			req:     &chat.Request{Messages: manyMessages},
			wantErr: "too many messages",
		},
		{
			name:    "missing role",
			req:     &chat.Request{Messages: []chat.Message{{Content: "hi"}}},
			wantErr: "role cannot be empty",
		},
		{
			name:    "missing content",
			req:     &chat.Request{Messages: []chat.Message{{Role: chat.RoleUser}}},
			wantErr: "content cannot be empty",
		},
		{
			name:    "content too long",
			req:     &chat.Request{Messages: []chat.Message{{Role: chat.RoleUser, Content: longContent}}},
			wantErr: "content too long",
		},
		{
			name:    "invalid role",
			req:     &chat.Request{Messages: []chat.Message{{Role: "bot", Content: "hi"}}},
			wantErr: "invalid role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.Stream(context.Background(), tt.req, func(string) error { return nil })
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestService_Stream_OpenFailureIsRecorded(t *testing.T) {
	openErr := errors.New("connection refused")
	opener := &fakeOpener{openErr: openErr}
	tracker := newRecordingTracker()
	service := NewService(opener, tracker, "test-model")

	err := service.Stream(context.Background(), userRequest("Hi"), func(string) error { return nil })

	require.ErrorIs(t, err, openErr)
	require.Len(t, tracker.starts, 1)
	assert.Equal(t, "connection refused", tracker.failures[tracker.starts[0].id])
	assert.Empty(t, tracker.completes)
}

func TestService_Stream_MidStreamFailureIsRecorded(t *testing.T) {
	streamErr := chat.ErrResponseParsing
	opener := &fakeOpener{stream: newFakeStream([]string{"partial"}, streamErr)}
	tracker := newRecordingTracker()
	service := NewService(opener, tracker, "test-model")

	var received []string
	err := service.Stream(context.Background(), userRequest("Hi"), func(fragment string) error {
		received = append(received, fragment)
		return nil
	})

	require.ErrorIs(t, err, chat.ErrResponseParsing)
	assert.Equal(t, []string{"partial"}, received, "fragments before the failure are still delivered")
	require.Len(t, tracker.starts, 1)
	assert.NotEmpty(t, tracker.failures[tracker.starts[0].id])
}

func TestService_Stream_HandlerErrorAbandonsStream(t *testing.T) {
	stream := newFakeStream([]string{"one", "two"}, nil)
	opener := &fakeOpener{stream: stream}
	tracker := newRecordingTracker()
	service := NewService(opener, tracker, "test-model")

	handlerErr := errors.New("client went away")
	err := service.Stream(context.Background(), userRequest("Hi"), func(string) error {
		return handlerErr
	})

	require.ErrorIs(t, err, handlerErr)
	assert.True(t, stream.wasClosed())
	require.Len(t, tracker.starts, 1)
	assert.Contains(t, tracker.failures[tracker.starts[0].id], "client went away")
}

func TestService_Stream_WithoutTracker(t *testing.T) {
	opener := &fakeOpener{stream: newFakeStream([]string{"ok"}, nil)}
	service := NewServiceWithoutTracking(opener, "test-model")

	err := service.Stream(context.Background(), userRequest("Hi"), func(string) error { return nil })
	require.NoError(t, err)
}

func TestService_Stream_UsesContextExchangeID(t *testing.T) {
	opener := &fakeOpener{stream: newFakeStream([]string{"ok"}, nil)}
	tracker := newRecordingTracker()
	service := NewService(opener, tracker, "test-model")

	id := uuid.New()
	ctx := context.WithValue(context.Background(), "request_uuid", id.String())

	require.NoError(t, service.Stream(ctx, userRequest("Hi"), func(string) error { return nil }))

	require.Len(t, tracker.starts, 1)
	assert.Equal(t, id, tracker.starts[0].id)
}

func TestService_Stream_RecordsSpecificModel(t *testing.T) {
	opener := &fakeOpener{stream: newFakeStream([]string{"ok"}, nil)}
	tracker := newRecordingTracker()
	service := NewService(opener, tracker, "default-model")

	req := userRequest("Hi")
	req.Model = chat.Model("special-model")

	require.NoError(t, service.Stream(context.Background(), req, func(string) error { return nil }))

	require.Len(t, tracker.starts, 1)
	assert.Equal(t, "special-model", tracker.starts[0].model)

	var recorded struct {
		Model string `json:"model"`
	}
	require.NoError(t, json.Unmarshal(tracker.starts[0].requestData, &recorded))
	assert.Equal(t, "special-model", recorded.Model)
}

func TestService_Stream_TrackerStartFailureDoesNotAbort(t *testing.T) {
	opener := &fakeOpener{stream: newFakeStream([]string{"ok"}, nil)}
	tracker := newRecordingTracker()
	tracker.startErr = errors.New("queue full")
	service := NewService(opener, tracker, "test-model")

	var received []string
	err := service.Stream(context.Background(), userRequest("Hi"), func(fragment string) error {
		received = append(received, fragment)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, received)
	assert.Empty(t, tracker.completes)
}
