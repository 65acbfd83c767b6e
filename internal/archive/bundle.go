package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zip"

	"github.com/book-expert/speech-batch/internal/core"
	"github.com/book-expert/speech-batch/internal/fileutil"
)

// Audio entry extension inside bundled archives.
const audioExtension = ".mp3"

// Static bundling errors.
var (
	ErrNothingToBundle = errors.New("no transcribed records to bundle")
	ErrRecordNotAudio  = errors.New("record has no audio handle")
)

// FetchFunc dereferences an audio handle into its bytes.
type FetchFunc func(ctx context.Context, handle string) ([]byte, error)

// Bundle packages the audio of the given transcribed records into a single
// zip container. Entry names reuse each record's name with the extension
// replaced by the audio format's.
//
// The operation is all-or-nothing: if any record's audio cannot be
// retrieved, no archive is returned. A partial archive silently missing
// files would mislead the user.
func Bundle(ctx context.Context, records []core.Record, fetch FetchFunc) ([]byte, error) {
	if len(records) == 0 {
		return nil, ErrNothingToBundle
	}

	var buffer bytes.Buffer

	writer := zip.NewWriter(&buffer)

	for _, record := range records {
		err := addRecord(ctx, writer, record, fetch)
		if err != nil {
			_ = writer.Close()

			return nil, err
		}
	}

	err := writer.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	return buffer.Bytes(), nil
}

// addRecord fetches one record's audio and stages it in the archive.
func addRecord(
	ctx context.Context,
	writer *zip.Writer,
	record core.Record,
	fetch FetchFunc,
) error {
	if record.Status != core.StatusTranscribed || record.AudioSrc == "" {
		return fmt.Errorf("%w: %s", ErrRecordNotAudio, record.Name)
	}

	data, err := fetch(ctx, record.AudioSrc)
	if err != nil {
		return fmt.Errorf("failed to retrieve audio for %q: %w", record.Name, err)
	}

	entryName := fileutil.SanitizeFilename(
		fileutil.ReplaceExtension(record.Name, audioExtension),
	)

	entry, err := writer.Create(entryName)
	if err != nil {
		return fmt.Errorf("failed to create archive entry %q: %w", entryName, err)
	}

	_, err = entry.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write archive entry %q: %w", entryName, err)
	}

	return nil
}
