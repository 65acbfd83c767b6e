// Package store_test tests the workflow state store and its state machine.
package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/speech-batch/internal/core"
	"github.com/book-expert/speech-batch/internal/store"
)

var errKVUnavailable = errors.New("key-value store unavailable")

// memoryKV is an in-memory core.KeyValue for testing persistence.
type memoryKV struct {
	mu         sync.Mutex
	data       map[string][]byte
	ShouldFail bool
}

func newMemoryKV() *memoryKV {
	return &memoryKV{
		mu:         sync.Mutex{},
		data:       make(map[string][]byte),
		ShouldFail: false,
	}
}

func (m *memoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ShouldFail {
		return nil, errKVUnavailable
	}

	value, exists := m.data[key]
	if !exists {
		return nil, core.ErrKeyNotFound
	}

	return value, nil
}

func (m *memoryKV) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ShouldFail {
		return errKVUnavailable
	}

	m.data[key] = value

	return nil
}

var testSpeeds = []float64{0.5, 1.0, 1.5, 2.0}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	testLog, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = testLog.Close() })

	return testLog
}

// newTestStore creates a store backed by an in-memory key-value store.
func newTestStore(t *testing.T) (*store.Store, *memoryKV) {
	t.Helper()

	testLog := newTestLogger(t)
	kv := newMemoryKV()
	workflow := store.New(store.NewPersister(kv, testLog), testSpeeds, 1.0, testLog)

	return workflow, kv
}

func readyRecord(id, name string) core.Record {
	return core.Record{
		ID:       id,
		Name:     name,
		Content:  "some text",
		Status:   core.StatusReady,
		AudioSrc: "",
		Error:    "",
	}
}

func TestAddRecords_And_Ordering(t *testing.T) {
	t.Parallel()

	workflow, _ := newTestStore(t)
	ctx := context.Background()

	err := workflow.AddRecords(ctx, []core.Record{
		readyRecord("id-b", "beta.txt"),
		readyRecord("id-a", "alpha.txt"),
		readyRecord("id-c", "alpha.txt"),
	})
	require.NoError(t, err)

	records := workflow.Records()
	require.Len(t, records, 3)

	// Ordered by name, ties broken by id.
	assert.Equal(t, "id-a", records[0].ID)
	assert.Equal(t, "id-c", records[1].ID)
	assert.Equal(t, "id-b", records[2].ID)
}

func TestAddRecords_RejectsDuplicateID(t *testing.T) {
	t.Parallel()

	workflow, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, workflow.AddRecords(ctx, []core.Record{readyRecord("id-1", "a.txt")}))

	err := workflow.AddRecords(ctx, []core.Record{readyRecord("id-1", "b.txt")})
	require.ErrorIs(t, err, core.ErrUnknownRecord)

	// The rejected batch must not be partially applied.
	assert.Len(t, workflow.Records(), 1)
}

func TestTransitions_FullLifecycle(t *testing.T) {
	t.Parallel()

	workflow, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, workflow.AddRecords(ctx, []core.Record{readyRecord("id-1", "a.txt")}))

	processing, err := workflow.BeginProcessing(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, core.StatusProcessing, processing.Status)

	err = workflow.CompleteTranscription(ctx, "id-1", "audio://bucket/a.mp3")
	require.NoError(t, err)

	record, exists := workflow.Record("id-1")
	require.True(t, exists)
	assert.Equal(t, core.StatusTranscribed, record.Status)
	assert.Equal(t, "audio://bucket/a.mp3", record.AudioSrc)
	assert.Empty(t, record.Error)
}

func TestTransitions_FailureClearsAudio(t *testing.T) {
	t.Parallel()

	workflow, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, workflow.AddRecords(ctx, []core.Record{readyRecord("id-1", "a.txt")}))

	_, err := workflow.BeginProcessing(ctx, "id-1")
	require.NoError(t, err)

	err = workflow.FailTranscription(ctx, "id-1", "service unreachable")
	require.NoError(t, err)

	record, _ := workflow.Record("id-1")
	assert.Equal(t, core.StatusError, record.Status)
	assert.Equal(t, "service unreachable", record.Error)
	assert.Empty(t, record.AudioSrc)
}

func TestTransitions_Reenterable(t *testing.T) {
	t.Parallel()

	workflow, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, workflow.AddRecords(ctx, []core.Record{readyRecord("id-1", "a.txt")}))

	_, err := workflow.BeginProcessing(ctx, "id-1")
	require.NoError(t, err)
	require.NoError(t, workflow.FailTranscription(ctx, "id-1", "first attempt failed"))

	// An errored record accepts a fresh attempt; the old error is cleared.
	processing, err := workflow.BeginProcessing(ctx, "id-1")
	require.NoError(t, err)
	assert.Empty(t, processing.Error)

	require.NoError(t, workflow.CompleteTranscription(ctx, "id-1", "audio://bucket/a.mp3"))

	record, _ := workflow.Record("id-1")
	assert.Equal(t, core.StatusTranscribed, record.Status)
	assert.Empty(t, record.Error)
}

func TestTransitions_Invalid(t *testing.T) {
	t.Parallel()

	workflow, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, workflow.AddRecords(ctx, []core.Record{readyRecord("id-1", "a.txt")}))

	// Terminal states are only reachable from processing.
	err := workflow.CompleteTranscription(ctx, "id-1", "audio://bucket/a.mp3")
	require.ErrorIs(t, err, core.ErrInvalidTransition)

	err = workflow.FailTranscription(ctx, "id-1", "reason")
	require.ErrorIs(t, err, core.ErrInvalidTransition)

	// A processing record cannot be dispatched twice.
	_, err = workflow.BeginProcessing(ctx, "id-1")
	require.NoError(t, err)

	_, err = workflow.BeginProcessing(ctx, "id-1")
	require.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestTransitions_UnknownRecord(t *testing.T) {
	t.Parallel()

	workflow, _ := newTestStore(t)

	_, err := workflow.BeginProcessing(context.Background(), "missing")
	require.ErrorIs(t, err, core.ErrUnknownRecord)
}

func TestRecordsByStatus(t *testing.T) {
	t.Parallel()

	workflow, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, workflow.AddRecords(ctx, []core.Record{
		readyRecord("id-1", "a.txt"),
		readyRecord("id-2", "b.txt"),
	}))

	_, err := workflow.BeginProcessing(ctx, "id-2")
	require.NoError(t, err)
	require.NoError(t, workflow.CompleteTranscription(ctx, "id-2", "audio://bucket/b.mp3"))

	ready := workflow.RecordsByStatus(core.StatusReady)
	require.Len(t, ready, 1)
	assert.Equal(t, "id-1", ready[0].ID)

	terminal := workflow.RecordsByStatus(core.StatusTranscribed, core.StatusError)
	require.Len(t, terminal, 1)
	assert.Equal(t, "id-2", terminal[0].ID)
}

func TestClearAll(t *testing.T) {
	t.Parallel()

	workflow, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, workflow.AddRecords(ctx, []core.Record{readyRecord("id-1", "a.txt")}))
	workflow.ClearAll(ctx)

	assert.Empty(t, workflow.Records())
}

func TestSetAvailableVoices(t *testing.T) {
	t.Parallel()

	workflow, _ := newTestStore(t)
	ctx := context.Background()

	err := workflow.SetAvailableVoices(ctx, nil)
	require.ErrorIs(t, err, core.ErrVoiceNotAvailable)

	require.NoError(t, workflow.SetAvailableVoices(ctx, []string{"af_heart", "am_adam"}))

	// No prior selection, so the first voice is selected automatically.
	settings := workflow.Settings()
	assert.Equal(t, "af_heart", settings.SelectedVoice)
	assert.Equal(t, []string{"af_heart", "am_adam"}, settings.AvailableVoices)

	// A surviving selection is kept across a refresh.
	require.NoError(t, workflow.SetSelectedVoice(ctx, "am_adam"))
	require.NoError(t, workflow.SetAvailableVoices(ctx, []string{"am_adam", "bf_emma"}))
	assert.Equal(t, "am_adam", workflow.Settings().SelectedVoice)

	// A vanished selection falls back to the first voice.
	require.NoError(t, workflow.SetAvailableVoices(ctx, []string{"bf_emma"}))
	assert.Equal(t, "bf_emma", workflow.Settings().SelectedVoice)
}

func TestSetSelectedVoice_MembershipCheck(t *testing.T) {
	t.Parallel()

	workflow, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, workflow.SetAvailableVoices(ctx, []string{"af_heart"}))

	err := workflow.SetSelectedVoice(ctx, "zz_nobody")
	require.ErrorIs(t, err, core.ErrVoiceNotAvailable)
	assert.Equal(t, "af_heart", workflow.Settings().SelectedVoice)
}

func TestSetSelectedSpeed(t *testing.T) {
	t.Parallel()

	workflow, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, workflow.SetSelectedSpeed(ctx, 1.5))
	assert.InEpsilon(t, 1.5, workflow.Settings().SelectedSpeed, 0.001)

	err := workflow.SetSelectedSpeed(ctx, 3.0)
	require.ErrorIs(t, err, core.ErrSpeedNotAllowed)
	assert.InEpsilon(t, 1.5, workflow.Settings().SelectedSpeed, 0.001)
}

func TestProgressAndBusy(t *testing.T) {
	t.Parallel()

	workflow, _ := newTestStore(t)

	workflow.SetProgress(2, 5, "current.txt")
	progress := workflow.Progress()
	assert.Equal(t, 2, progress.Current)
	assert.Equal(t, 5, progress.Total)
	assert.Equal(t, "current.txt", progress.CurrentName)

	workflow.ResetProgress()
	assert.Zero(t, workflow.Progress().Total)

	workflow.SetBusy(func(busy *store.BusyFlags) { busy.Transcribing = true })
	assert.True(t, workflow.Busy().Transcribing)
	assert.False(t, workflow.Busy().Downloading)

	workflow.SetBusy(func(busy *store.BusyFlags) { busy.Transcribing = false })
	assert.False(t, workflow.Busy().Transcribing)
}

func TestPersistenceFailure_DoesNotBreakWorkflow(t *testing.T) {
	t.Parallel()

	workflow, kv := newTestStore(t)
	ctx := context.Background()

	kv.ShouldFail = true

	// Mutations succeed in memory even when the store cannot be written.
	err := workflow.AddRecords(ctx, []core.Record{readyRecord("id-1", "a.txt")})
	require.NoError(t, err)
	assert.Len(t, workflow.Records(), 1)
}
