// Package batch drives records through the synthesis lifecycle. Processing
// is strictly sequential: one record at a time, one user-legible progress
// counter, no parallel load on the remote service.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/speech-batch/internal/core"
	"github.com/book-expert/speech-batch/internal/ingest"
	"github.com/book-expert/speech-batch/internal/store"
)

// Orchestrator runs synthesis batches against the workflow store. All
// dispatch, full batches and single-record restores alike, is serialized
// through one mutex, so two operations can never interleave their progress
// counters or double-dispatch a record.
type Orchestrator struct {
	dispatchMu sync.Mutex
	store      *store.Store
	synth      core.Synthesizer
	audio      core.AudioStore
	normalizer *ingest.Normalizer
	conn       *nats.Conn
	subject    string
	log        *logger.Logger
}

// New creates an orchestrator. The NATS connection is optional; when it is
// nil no completion events are published.
func New(
	workflowStore *store.Store,
	synth core.Synthesizer,
	audio core.AudioStore,
	conn *nats.Conn,
	subject string,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:      workflowStore,
		synth:      synth,
		audio:      audio,
		normalizer: ingest.NewNormalizer(),
		conn:       conn,
		subject:    subject,
		log:        log,
	}
}

// Run synthesizes the given records in the order supplied. Each record
// transitions to processing before its request is dispatched and ends in
// transcribed or error; one record's failure never halts the batch. The
// progress counter strictly increases during the run and is reset to zero
// afterwards.
func (o *Orchestrator) Run(ctx context.Context, ids []string) (core.BatchSummary, error) {
	o.dispatchMu.Lock()
	defer o.dispatchMu.Unlock()

	o.store.SetBusy(func(busy *store.BusyFlags) { busy.Transcribing = true })
	defer o.store.SetBusy(func(busy *store.BusyFlags) { busy.Transcribing = false })
	defer o.store.ResetProgress()

	batchID := uuid.NewString()
	summary := core.BatchSummary{SuccessCount: 0, ErrorCount: 0}
	total := len(ids)

	for index, id := range ids {
		ok := o.processRecord(ctx, batchID, id, index+1, total)
		if ok {
			summary.SuccessCount++
		} else {
			summary.ErrorCount++
		}
	}

	o.log.Info("Batch %s finished: %d transcribed, %d failed",
		batchID, summary.SuccessCount, summary.ErrorCount)

	return summary, nil
}

// Restore re-synthesizes a single record whose audio handle went stale
// (e.g. a transient handle from a previous session). It drives the same
// sequential path as Run under the restoring flag.
func (o *Orchestrator) Restore(ctx context.Context, id string) error {
	o.dispatchMu.Lock()
	defer o.dispatchMu.Unlock()

	o.store.SetBusy(func(busy *store.BusyFlags) { busy.Restoring = true })
	defer o.store.SetBusy(func(busy *store.BusyFlags) { busy.Restoring = false })
	defer o.store.ResetProgress()

	ok := o.processRecord(ctx, uuid.NewString(), id, 1, 1)
	if !ok {
		record, exists := o.store.Record(id)
		if exists && record.Error != "" {
			return fmt.Errorf("restore of %q failed: %s", record.Name, record.Error)
		}

		return fmt.Errorf("restore failed: %w", core.ErrUnknownRecord)
	}

	return nil
}

// processRecord runs one record through processing to a terminal status and
// updates the shared progress counter. It reports whether the record ended
// transcribed.
func (o *Orchestrator) processRecord(
	ctx context.Context,
	batchID, id string,
	position, total int,
) bool {
	record, err := o.store.BeginProcessing(ctx, id)
	if err != nil {
		o.log.Error("Cannot dispatch record %s: %v", id, err)

		return false
	}

	// The counter moves once the dispatch happens, before the next record.
	o.store.SetProgress(position, total, record.Name)

	handle, err := o.synthesizeRecord(ctx, record)
	if err != nil {
		o.log.Error("Synthesis failed for %s: %v", record.Name, err)

		failErr := o.store.FailTranscription(ctx, id, err.Error())
		if failErr != nil {
			o.log.Error("Failed to record error state for %s: %v", id, failErr)
		}

		return false
	}

	err = o.store.CompleteTranscription(ctx, id, handle)
	if err != nil {
		o.log.Error("Failed to record transcription for %s: %v", id, err)

		return false
	}

	o.publishAudioCreated(batchID, handle, position, total)

	return true
}

// synthesizeRecord calls the synthesis service for one record and resolves
// the response into an audio handle: the service's download URL when one is
// returned, otherwise a session handle materialized from the inline bytes.
func (o *Orchestrator) synthesizeRecord(ctx context.Context, record core.Record) (string, error) {
	settings := o.store.Settings()
	text := o.normalizer.NormalizeForSpeech(record.Content)

	result, err := o.synth.Synthesize(ctx, text, settings.SelectedVoice, settings.SelectedSpeed)
	if err != nil {
		return "", err
	}

	if result.DownloadURL != "" {
		return result.DownloadURL, nil
	}

	handle, err := o.audio.Materialize(ctx, record.Name, result.Audio)
	if err != nil {
		return "", fmt.Errorf("failed to store synthesized audio: %w", err)
	}

	return handle, nil
}

// publishAudioCreated emits a completion event for observers on the
// embedded NATS connection. Publication is best effort.
func (o *Orchestrator) publishAudioCreated(batchID, audioKey string, position, total int) {
	if o.conn == nil || o.subject == "" {
		return
	}

	event := events.AudioChunkCreatedEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now(),
			WorkflowID: batchID,
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		AudioKey:   audioKey,
		PageNumber: position,
		TotalPages: total,
	}

	data, err := json.Marshal(event)
	if err != nil {
		o.log.Warn("Failed to marshal completion event: %v", err)

		return
	}

	err = o.conn.Publish(o.subject, data)
	if err != nil {
		o.log.Warn("Failed to publish completion event: %v", err)
	}
}
