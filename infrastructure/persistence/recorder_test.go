package persistence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llm-stream/domain/persistence"
)

// A single worker keeps start/complete ordering deterministic in tests.
func startRecorder(t *testing.T) (*Recorder, persistence.ExchangeRepository) {
	t.Helper()
	repo := setupTestDB(t)
	recorder := NewRecorder(repo, 1, 64)
	require.NoError(t, recorder.Start(context.Background()))
	t.Cleanup(func() { _ = recorder.Stop() })
	return recorder, repo
}

func TestRecorder_CompletedExchange(t *testing.T) {
	recorder, repo := startRecorder(t)
	ctx := context.Background()

	id := uuid.New()
	requestData, _ := json.Marshal(map[string]string{"model": "test-model"})

	require.NoError(t, recorder.StartTracking(ctx, id, requestData, "test-model"))
	require.NoError(t, recorder.CompleteTracking(ctx, id, "Hi there", 2, 314))

	assert.Eventually(t, func() bool {
		record, err := repo.FindByID(ctx, id)
		return err == nil && record.Status == persistence.ExchangeStatusCompleted
	}, 3*time.Second, 10*time.Millisecond)

	record, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", record.Reply)
	assert.Equal(t, 2, record.FragmentCount)
	assert.Equal(t, int64(314), record.LatencyMs)
}

func TestRecorder_FailedExchange(t *testing.T) {
	recorder, repo := startRecorder(t)
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, recorder.StartTracking(ctx, id, []byte(`{}`), "test-model"))
	require.NoError(t, recorder.FailTracking(ctx, id, "response parsing failed"))

	assert.Eventually(t, func() bool {
		record, err := repo.FindByID(ctx, id)
		return err == nil && record.Status == persistence.ExchangeStatusFailed
	}, 3*time.Second, 10*time.Millisecond)

	record, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "response parsing failed", record.ErrorMessage)
}

func TestRecorder_RejectsWhenStopped(t *testing.T) {
	repo := setupTestDB(t)
	recorder := NewRecorder(repo, 1, 64)

	err := recorder.StartTracking(context.Background(), uuid.New(), []byte(`{}`), "m")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}

func TestRecorder_StartTwice(t *testing.T) {
	recorder, _ := startRecorder(t)

	err := recorder.Start(context.Background())
	assert.Error(t, err)
}

func TestRecorder_Health(t *testing.T) {
	recorder, _ := startRecorder(t)

	health := recorder.Health()
	assert.True(t, health.IsRunning)
	assert.Zero(t, health.QueueSize)

	id := uuid.New()
	require.NoError(t, recorder.StartTracking(context.Background(), id, []byte(`{}`), "m"))

	assert.Eventually(t, func() bool {
		return recorder.Health().ProcessedCount == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestRecorder_StopDrainsQueue(t *testing.T) {
	repo := setupTestDB(t)
	recorder := NewRecorder(repo, 1, 64)
	require.NoError(t, recorder.Start(context.Background()))

	ctx := context.Background()
	ids := make([]uuid.UUID, 10)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, recorder.StartTracking(ctx, ids[i], []byte(`{}`), "m"))
	}

	require.NoError(t, recorder.Stop())

	for _, id := range ids {
		_, err := repo.FindByID(ctx, id)
		assert.NoError(t, err, "queued events must be drained on stop")
	}
	assert.False(t, recorder.Health().IsRunning)
}
