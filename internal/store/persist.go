package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/book-expert/logger"

	"github.com/book-expert/speech-batch/internal/audiostore"
	"github.com/book-expert/speech-batch/internal/core"
)

// Key-value store keys and the document schema version. A stored document
// with a different version is not trusted and goes through repair.
const (
	settingsKey   = "settings"
	recordsKey    = "records"
	schemaVersion = 1
)

// settingsDocument is the persisted settings slice. Available voices are
// refreshed each session and not stored.
type settingsDocument struct {
	Version       int     `json:"version"`
	SelectedVoice string  `json:"selectedVoice"`
	SelectedSpeed float64 `json:"selectedSpeed"`
}

// recordsDocument is the persisted record collection in normalized form:
// an id index plus keyed entities.
type recordsDocument struct {
	Version  int                    `json:"version"`
	IDs      []string               `json:"ids"`
	Entities map[string]core.Record `json:"entities"`
}

// Persister serializes the durable slice of store state to the local
// key-value store and rehydrates it on startup.
type Persister struct {
	kv  core.KeyValue
	log *logger.Logger
}

// NewPersister creates a persister on the given key-value store.
func NewPersister(kv core.KeyValue, log *logger.Logger) *Persister {
	return &Persister{kv: kv, log: log}
}

// SaveSettings writes the settings document.
func (p *Persister) SaveSettings(ctx context.Context, settings core.Settings) error {
	document := settingsDocument{
		Version:       schemaVersion,
		SelectedVoice: settings.SelectedVoice,
		SelectedSpeed: settings.SelectedSpeed,
	}

	return p.put(ctx, settingsKey, document)
}

// SaveRecords writes the record collection. Transient audio handles are
// blanked before serialization: they reference in-memory storage and would
// be dead on the next session. The record keeps its transcribed status, so
// the next session sees "transcribed, no playable audio" and offers restore
// instead of treating the state as corrupt.
func (p *Persister) SaveRecords(ctx context.Context, records []core.Record) error {
	document := recordsDocument{
		Version:  schemaVersion,
		IDs:      make([]string, 0, len(records)),
		Entities: make(map[string]core.Record, len(records)),
	}

	for _, record := range records {
		if audiostore.IsTransient(record.AudioSrc) {
			record.AudioSrc = ""
		}

		document.IDs = append(document.IDs, record.ID)
		document.Entities[record.ID] = record
	}

	return p.put(ctx, recordsKey, document)
}

// LoadSettings reads the settings document. It reports ok=false when the
// document is missing, unreadable, or from another schema version; the
// caller then keeps its defaults.
func (p *Persister) LoadSettings(ctx context.Context) (core.Settings, bool) {
	var document settingsDocument

	err := p.get(ctx, settingsKey, &document)
	if err != nil {
		p.logUnlessMissing("settings", err)

		return core.Settings{SelectedVoice: "", AvailableVoices: nil, SelectedSpeed: 0}, false
	}

	if document.Version != schemaVersion {
		p.log.Warn("Stored settings have schema version %d, using defaults", document.Version)

		return core.Settings{SelectedVoice: "", AvailableVoices: nil, SelectedSpeed: 0}, false
	}

	return core.Settings{
		SelectedVoice:   document.SelectedVoice,
		AvailableVoices: nil,
		SelectedSpeed:   document.SelectedSpeed,
	}, true
}

// LoadRecords reads and repairs the record collection. Stored-state shape
// problems never propagate: the result is always a usable (possibly empty)
// collection.
func (p *Persister) LoadRecords(ctx context.Context) []core.Record {
	var document recordsDocument

	err := p.get(ctx, recordsKey, &document)
	if err != nil {
		p.logUnlessMissing("records", err)

		return nil
	}

	if document.Version != schemaVersion {
		p.log.Warn("Stored records have schema version %d, rebuilding index", document.Version)
	}

	return repairRecords(document)
}

// repairRecords reconstructs a usable collection from whatever survived in
// the stored document. The id index is rebuilt from the keyed entities when
// it is missing or inconsistent; unusable entries are dropped; records left
// mid-processing by a terminated session are reset to ready.
func repairRecords(document recordsDocument) []core.Record {
	if len(document.Entities) == 0 {
		return nil
	}

	ids := document.IDs
	if !indexMatchesEntities(ids, document.Entities) {
		ids = make([]string, 0, len(document.Entities))
		for id := range document.Entities {
			ids = append(ids, id)
		}

		sort.Strings(ids)
	}

	records := make([]core.Record, 0, len(ids))

	for _, id := range ids {
		record, usable := repairRecord(id, document.Entities[id])
		if !usable {
			continue
		}

		records = append(records, record)
	}

	return records
}

// indexMatchesEntities checks that the stored id index exactly covers the
// keyed entities.
func indexMatchesEntities(ids []string, entities map[string]core.Record) bool {
	if len(ids) != len(entities) {
		return false
	}

	for _, id := range ids {
		if _, exists := entities[id]; !exists {
			return false
		}
	}

	return true
}

// repairRecord normalizes one stored entity, enforcing the field/status
// exclusivity invariants.
func repairRecord(id string, record core.Record) (core.Record, bool) {
	record.ID = id
	if record.ID == "" || record.Name == "" {
		return core.Record{}, false
	}

	switch record.Status {
	case core.StatusReady, core.StatusTranscribed, core.StatusError:
	case core.StatusProcessing:
		// A synthesis attempt was in flight when the last session ended.
		record.Status = core.StatusReady
	default:
		return core.Record{}, false
	}

	if record.Status != core.StatusTranscribed {
		record.AudioSrc = ""
	}

	if record.Status != core.StatusError {
		record.Error = ""
	}

	// A transient handle written by an older session is dead in this one.
	if audiostore.IsTransient(record.AudioSrc) {
		record.AudioSrc = ""
	}

	return record, true
}

func (p *Persister) put(ctx context.Context, key string, document any) error {
	data, err := json.Marshal(document)
	if err != nil {
		return fmt.Errorf("failed to marshal %s document: %w", key, err)
	}

	err = p.kv.Put(ctx, key, data)
	if err != nil {
		return fmt.Errorf("failed to store %s document: %w", key, err)
	}

	return nil
}

func (p *Persister) get(ctx context.Context, key string, document any) error {
	data, err := p.kv.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read %s document: %w", key, err)
	}

	err = json.Unmarshal(data, document)
	if err != nil {
		return fmt.Errorf("failed to decode %s document: %w", key, err)
	}

	return nil
}

// logUnlessMissing keeps first-run startup quiet: a missing key is the
// normal empty state, anything else is worth a warning.
func (p *Persister) logUnlessMissing(what string, err error) {
	if errors.Is(err, core.ErrKeyNotFound) {
		return
	}

	p.log.Warn("Failed to load %s, starting empty: %v", what, err)
}
