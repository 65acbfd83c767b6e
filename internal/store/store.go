// Package store holds the centralized workflow state: the record
// collection, user settings, busy flags, and batch progress. All mutation
// goes through the declared operations, which enforce the record state
// machine and persist the durable slice of state on every change.
package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/book-expert/logger"

	"github.com/book-expert/speech-batch/internal/core"
)

// BusyFlags mirror the in-flight workflow operations. They are transient
// state and are never persisted.
type BusyFlags struct {
	Reading      bool
	Transcribing bool
	Downloading  bool
	Restoring    bool
}

// Store is the single mutable shared resource of the workflow. Components
// read it by value (snapshot) and mutate it only through its methods.
type Store struct {
	mu            sync.Mutex
	records       map[string]core.Record
	settings      core.Settings
	progress      core.Progress
	busy          BusyFlags
	allowedSpeeds []float64
	persister     *Persister
	log           *logger.Logger
}

// New creates an empty store. The persister may be nil, in which case state
// lives only in memory; allowedSpeeds constrains SetSelectedSpeed.
func New(persister *Persister, allowedSpeeds []float64, defaultSpeed float64, log *logger.Logger) *Store {
	return &Store{
		records: make(map[string]core.Record),
		settings: core.Settings{
			SelectedVoice:   "",
			AvailableVoices: nil,
			SelectedSpeed:   defaultSpeed,
		},
		progress:      core.Progress{Current: 0, Total: 0, CurrentName: ""},
		busy:          BusyFlags{Reading: false, Transcribing: false, Downloading: false, Restoring: false},
		allowedSpeeds: allowedSpeeds,
		persister:     persister,
		log:           log,
	}
}

// Load rehydrates persisted settings and records. Corrupted or missing
// state is repaired to a safe default; Load never fails the startup path
// because of stored-state shape problems.
func (s *Store) Load(ctx context.Context) {
	if s.persister == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	settings, ok := s.persister.LoadSettings(ctx)
	if ok {
		if settings.SelectedVoice != "" {
			s.settings.SelectedVoice = settings.SelectedVoice
		}

		if slices.Contains(s.allowedSpeeds, settings.SelectedSpeed) {
			s.settings.SelectedSpeed = settings.SelectedSpeed
		}
	}

	for _, record := range s.persister.LoadRecords(ctx) {
		s.records[record.ID] = record
	}
}

// AddRecords inserts freshly ingested records into the collection.
func (s *Store) AddRecords(ctx context.Context, records []core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, record := range records {
		if record.ID == "" {
			return fmt.Errorf("%w: record %q has no id", core.ErrUnknownRecord, record.Name)
		}

		if _, exists := s.records[record.ID]; exists {
			return fmt.Errorf("%w: duplicate id %s", core.ErrUnknownRecord, record.ID)
		}
	}

	for _, record := range records {
		s.records[record.ID] = record
	}

	s.persistRecords(ctx)

	return nil
}

// BeginProcessing transitions a record into processing and returns its
// snapshot. It must be applied before a synthesis request is dispatched so
// a record is never observed ready with a request in flight.
func (s *Store) BeginProcessing(ctx context.Context, id string) (core.Record, error) {
	return s.transition(ctx, id, func(record *core.Record) error {
		record.Status = core.StatusProcessing
		record.AudioSrc = ""
		record.Error = ""

		return nil
	}, core.StatusProcessing)
}

// CompleteTranscription transitions a processing record to transcribed with
// its audio handle.
func (s *Store) CompleteTranscription(ctx context.Context, id, audioSrc string) error {
	_, err := s.transition(ctx, id, func(record *core.Record) error {
		record.Status = core.StatusTranscribed
		record.AudioSrc = audioSrc
		record.Error = ""

		return nil
	}, core.StatusTranscribed)

	return err
}

// FailTranscription transitions a processing record to error with the
// failure reason.
func (s *Store) FailTranscription(ctx context.Context, id, reason string) error {
	_, err := s.transition(ctx, id, func(record *core.Record) error {
		record.Status = core.StatusError
		record.AudioSrc = ""
		record.Error = reason

		return nil
	}, core.StatusError)

	return err
}

// transition applies a status mutation under the state machine rules.
func (s *Store) transition(
	ctx context.Context,
	id string,
	apply func(*core.Record) error,
	target core.Status,
) (core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.records[id]
	if !exists {
		return core.Record{}, fmt.Errorf("%w: %s", core.ErrUnknownRecord, id)
	}

	if !core.CanTransition(record.Status, target) {
		return core.Record{}, fmt.Errorf(
			"%w: %s -> %s for record %s", core.ErrInvalidTransition, record.Status, target, id)
	}

	err := apply(&record)
	if err != nil {
		return core.Record{}, err
	}

	s.records[id] = record
	s.persistRecords(ctx)

	return record, nil
}

// ClearAll removes every record from the collection.
func (s *Store) ClearAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]core.Record)
	s.persistRecords(ctx)
}

// Record returns a snapshot of one record.
func (s *Store) Record(id string) (core.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.records[id]

	return record, exists
}

// Records returns a snapshot of the collection ordered by name. Insertion
// order is irrelevant; ties are broken by id so the order is stable.
func (s *Store) Records() []core.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.orderedLocked()
}

// RecordsByStatus returns the ordered records matching any given status.
func (s *Store) RecordsByStatus(statuses ...core.Status) []core.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []core.Record

	for _, record := range s.orderedLocked() {
		if slices.Contains(statuses, record.Status) {
			matched = append(matched, record)
		}
	}

	return matched
}

func (s *Store) orderedLocked() []core.Record {
	records := make([]core.Record, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Name != records[j].Name {
			return records[i].Name < records[j].Name
		}

		return records[i].ID < records[j].ID
	})

	return records
}

// SetAvailableVoices replaces the available voice set. The set must be
// non-empty; when the current selection is not a member, the first voice
// becomes selected.
func (s *Store) SetAvailableVoices(ctx context.Context, voices []string) error {
	if len(voices) == 0 {
		return core.ErrVoiceNotAvailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings.AvailableVoices = append([]string(nil), voices...)
	if !slices.Contains(voices, s.settings.SelectedVoice) {
		s.settings.SelectedVoice = voices[0]
	}

	s.persistSettings(ctx)

	return nil
}

// SetSelectedVoice selects a voice from the available set.
func (s *Store) SetSelectedVoice(ctx context.Context, voice string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.settings.AvailableVoices) > 0 && !slices.Contains(s.settings.AvailableVoices, voice) {
		return fmt.Errorf("%w: %s", core.ErrVoiceNotAvailable, voice)
	}

	s.settings.SelectedVoice = voice
	s.persistSettings(ctx)

	return nil
}

// SetSelectedSpeed selects a speed from the allowed multiplier set.
func (s *Store) SetSelectedSpeed(ctx context.Context, speed float64) error {
	if !slices.Contains(s.allowedSpeeds, speed) {
		return fmt.Errorf("%w: %v", core.ErrSpeedNotAllowed, speed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings.SelectedSpeed = speed
	s.persistSettings(ctx)

	return nil
}

// Settings returns a snapshot of the current settings.
func (s *Store) Settings() core.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := s.settings
	settings.AvailableVoices = append([]string(nil), s.settings.AvailableVoices...)

	return settings
}

// SetProgress updates the transient batch progress counter.
func (s *Store) SetProgress(current, total int, currentName string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress = core.Progress{Current: current, Total: total, CurrentName: currentName}
}

// ResetProgress zeroes the progress counter once no batch is in flight.
func (s *Store) ResetProgress() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress = core.Progress{Current: 0, Total: 0, CurrentName: ""}
}

// Progress returns a snapshot of the batch progress.
func (s *Store) Progress() core.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.progress
}

// SetBusy updates the transient busy flags.
func (s *Store) SetBusy(update func(*BusyFlags)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	update(&s.busy)
}

// Busy returns a snapshot of the busy flags.
func (s *Store) Busy() BusyFlags {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.busy
}

// persistRecords writes the record collection through the persister.
// Persistence failures are logged, never surfaced: losing a write must not
// crash the workflow.
func (s *Store) persistRecords(ctx context.Context) {
	if s.persister == nil {
		return
	}

	err := s.persister.SaveRecords(ctx, s.orderedLocked())
	if err != nil {
		s.log.Warn("Failed to persist records: %v", err)
	}
}

// persistSettings writes the settings document through the persister.
func (s *Store) persistSettings(ctx context.Context) {
	if s.persister == nil {
		return
	}

	err := s.persister.SaveSettings(ctx, s.settings)
	if err != nil {
		s.log.Warn("Failed to persist settings: %v", err)
	}
}
