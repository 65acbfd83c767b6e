// Package ingest turns user-supplied files into workflow records: plain text
// files become single records, archives are expanded into one record per
// text entry, and anything else is captured as an error record.
package ingest

import (
	"strings"
	"unicode/utf8"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/speech-batch/internal/archive"
	"github.com/book-expert/speech-batch/internal/core"
	"github.com/book-expert/speech-batch/internal/fileutil"
)

// Error reason recorded on records that fail text decoding.
const reasonNotText = "file is not valid UTF-8 text"

// Content type prefixes used for classification.
const (
	textContentPrefix  = "text/"
	zipContentType     = "application/zip"
	zipContentTypeAlt  = "application/x-zip-compressed"
	octetStreamGeneric = "application/octet-stream"
)

// Input is one uploaded file: its display name, a declared content type
// (may be empty or generic), and the raw bytes.
type Input struct {
	Name        string
	ContentType string
	Data        []byte
}

// Pipeline converts uploaded inputs into records.
type Pipeline struct {
	log *logger.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(log *logger.Logger) *Pipeline {
	return &Pipeline{log: log}
}

// Ingest processes the inputs sequentially and returns one record per text
// payload. Records are tagged ready on success and error on failure; every
// record receives a fresh unique id. A failure in one input never aborts
// the others.
func (p *Pipeline) Ingest(inputs []Input) []core.Record {
	var records []core.Record

	for _, input := range inputs {
		switch {
		case isPlainText(input):
			records = append(records, p.ingestText(input))
		case isArchive(input):
			records = append(records, p.ingestArchive(input)...)
		default:
			p.log.Warn("Skipping %s: %v", input.Name, core.ErrUnsupportedType)
			records = append(records, errorRecord(input.Name, core.ErrUnsupportedType.Error()))
		}
	}

	return records
}

// ingestText decodes a plain text input into a single record.
func (p *Pipeline) ingestText(input Input) core.Record {
	if !utf8.Valid(input.Data) {
		p.log.Warn("Failed to decode %s: %s", input.Name, reasonNotText)

		return errorRecord(input.Name, reasonNotText)
	}

	return readyRecord(input.Name, string(input.Data))
}

// ingestArchive expands a zip input into one record per text entry. Entries
// are named by their archive-relative path. A container that cannot be
// opened at all produces a single error record standing in for the upload.
func (p *Pipeline) ingestArchive(input Input) []core.Record {
	entries, err := archive.Entries(input.Data)
	if err != nil {
		p.log.Warn("Failed to open archive %s: %v", input.Name, err)

		return []core.Record{errorRecord(input.Name, err.Error())}
	}

	var records []core.Record

	for entry := range entries {
		if entry.Err != nil {
			p.log.Warn("Failed to extract %s: %v", entry.Name, entry.Err)
			records = append(records, errorRecord(entry.Name, entry.Err.Error()))

			continue
		}

		records = append(records, readyRecord(entry.Name, entry.Text))
	}

	return records
}

// isPlainText classifies an input as plain text by declared type or suffix.
func isPlainText(input Input) bool {
	if strings.HasPrefix(input.ContentType, textContentPrefix) {
		return true
	}

	return fileutil.IsTextFile(input.Name)
}

// isArchive classifies an input as a zip container by declared type or suffix.
func isArchive(input Input) bool {
	switch input.ContentType {
	case zipContentType, zipContentTypeAlt:
		return true
	case octetStreamGeneric, "":
		return fileutil.IsArchiveFile(input.Name)
	default:
		return fileutil.IsArchiveFile(input.Name)
	}
}

func readyRecord(name, content string) core.Record {
	return core.Record{
		ID:       uuid.NewString(),
		Name:     name,
		Content:  content,
		Status:   core.StatusReady,
		AudioSrc: "",
		Error:    "",
	}
}

func errorRecord(name, reason string) core.Record {
	return core.Record{
		ID:       uuid.NewString(),
		Name:     name,
		Content:  "",
		Status:   core.StatusError,
		AudioSrc: "",
		Error:    reason,
	}
}
