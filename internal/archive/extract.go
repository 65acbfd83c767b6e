// Package archive extracts text entries from uploaded zip containers and
// bundles synthesized audio back into a downloadable zip.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/zip"

	"github.com/book-expert/speech-batch/internal/fileutil"
)

// ErrEntryNotText indicates an archive entry whose bytes are not valid UTF-8.
var ErrEntryNotText = errors.New("entry is not valid UTF-8 text")

// Entry is one extracted archive member. Err is set when the entry was a
// text candidate but could not be decoded; sibling entries are unaffected.
type Entry struct {
	Name string
	Text string
	Err  error
}

// Entries opens a zip container and returns a lazy sequence of its text
// entries. Only non-directory members with a .txt suffix (case-insensitive)
// are yielded; everything else is silently skipped. A container that cannot
// be parsed at all fails eagerly, before any entry is produced.
//
// The sequence is finite and single-use.
func Entries(data []byte) (iter.Seq[Entry], error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	return func(yield func(Entry) bool) {
		for _, file := range reader.File {
			if !isTextEntry(file) {
				continue
			}

			if !yield(readEntry(file)) {
				return
			}
		}
	}, nil
}

// isTextEntry filters out directory markers and non-text members.
func isTextEntry(file *zip.File) bool {
	if file.FileInfo().IsDir() || strings.HasSuffix(file.Name, "/") {
		return false
	}

	return fileutil.IsTextFile(file.Name)
}

// readEntry decodes a single member as UTF-8 text. Failures are carried on
// the entry itself so extraction of siblings continues undisturbed.
func readEntry(file *zip.File) Entry {
	entry := Entry{Name: file.Name, Text: "", Err: nil}

	opened, err := file.Open()
	if err != nil {
		entry.Err = fmt.Errorf("failed to open entry %q: %w", file.Name, err)

		return entry
	}

	data, readErr := io.ReadAll(opened)
	closeErr := opened.Close()

	if readErr != nil {
		entry.Err = fmt.Errorf("failed to read entry %q: %w", file.Name, readErr)

		return entry
	}

	if closeErr != nil {
		entry.Err = fmt.Errorf("failed to close entry %q: %w", file.Name, closeErr)

		return entry
	}

	if !utf8.Valid(data) {
		entry.Err = fmt.Errorf("entry %q: %w", file.Name, ErrEntryNotText)

		return entry
	}

	entry.Text = string(data)

	return entry
}
