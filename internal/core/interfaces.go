// Package core defines the domain types and interfaces shared by the
// speech-batch workflow components.
package core

import "context"

// KeyValue defines the interface for the local key-value store backing
// persisted workflow state.
type KeyValue interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// AudioStore defines the interface for session-scoped audio artifact storage.
// Handles produced by Materialize are transient: they reference in-memory
// storage and do not survive a process restart.
type AudioStore interface {
	Materialize(ctx context.Context, name string, data []byte) (string, error)
	Fetch(ctx context.Context, handle string) ([]byte, error)
}

// Synthesizer defines the interface for the remote speech-synthesis client.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string, speed float64) (SpeechResult, error)
	FetchAudio(ctx context.Context, url string) ([]byte, error)
}

// SpeechResult carries the outcome of one synthesis call. Exactly one of
// Audio or DownloadURL is set: Audio holds inline audio bytes, DownloadURL
// points at the service-hosted artifact.
type SpeechResult struct {
	Audio       []byte
	DownloadURL string
}
