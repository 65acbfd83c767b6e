// Package fileutil provides filename and formatting helpers shared by the
// ingestion pipeline, the bundler, and the CLI output.
package fileutil

import (
	"fmt"
	"path/filepath"
	"strings"
)

const invalidCharReplacement = "_"

// Data size constants.
const (
	kilobyte = 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

// IsTextFile checks if a filename has the plain-text extension handled by
// the ingestion pipeline. The check is case-insensitive.
func IsTextFile(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".txt")
}

// IsArchiveFile checks if a filename has a supported archive extension.
func IsArchiveFile(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".zip")
}

// ReplaceExtension swaps a filename's extension, keeping names without an
// extension intact.
func ReplaceExtension(filename, newExt string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + newExt
}

// SanitizeFilename removes or replaces characters that are invalid in most
// filesystems, so archive entry paths can be reused as output names.
func SanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"<", invalidCharReplacement,
		">", invalidCharReplacement,
		":", invalidCharReplacement,
		"\"", invalidCharReplacement,
		"/", invalidCharReplacement,
		"\\", invalidCharReplacement,
		"|", invalidCharReplacement,
		"?", invalidCharReplacement,
		"*", invalidCharReplacement,
	)

	return replacer.Replace(filename)
}

// FormatFileSize formats a byte count in a human-readable string
// (e.g. "1.2 GB", "500.5 KB").
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= gigabyte:
		return fmt.Sprintf("%.1f GB", float64(bytes)/gigabyte)
	case bytes >= megabyte:
		return fmt.Sprintf("%.1f MB", float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf("%.1f KB", float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
