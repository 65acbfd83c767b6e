// Package audiostore provides session-scoped storage for synthesized audio,
// implemented on a NATS JetStream object store bucket with memory storage.
//
// Handles issued here use the audio:// scheme and are transient: the
// backing bucket does not survive a process restart, so a persisted handle
// must be treated as "needs re-synthesis", never dereferenced blindly.
package audiostore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// HandleScheme prefixes every transient audio handle.
const HandleScheme = "audio://"

const audioExtension = ".mp3"

// Static errors.
var (
	ErrNotTransientHandle = errors.New("not a transient audio handle")
	ErrForeignHandle      = errors.New("handle belongs to a different bucket")
)

// SessionStore implements the core.AudioStore interface using NATS JetStream.
type SessionStore struct {
	bucket string
	store  nats.ObjectStore
}

// New creates and initializes a new SessionStore.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*SessionStore, error) {
	// Use a "create-first" approach.
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Session audio for the %s bucket.", bucketName),
		Storage:     nats.MemoryStorage,
		Replicas:    1,
	})

	// If the bucket already exists, bind to it.
	if err != nil {
		if errors.Is(err, jetstream.ErrBucketExists) {
			store, err = jetstreamContext.ObjectStore(bucketName)
			if err != nil {
				return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
			}
		} else {
			// For any other error, fail.
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}
	}

	return &SessionStore{
		bucket: bucketName,
		store:  store,
	}, nil
}

// Materialize stores audio bytes under a fresh key and returns its handle.
func (s *SessionStore) Materialize(_ context.Context, name string, data []byte) (string, error) {
	key := uuid.NewString() + audioExtension

	_, err := s.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: name,
	}, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to put audio '%s' to bucket '%s': %w", key, s.bucket, err)
	}

	return HandleScheme + s.bucket + "/" + key, nil
}

// Fetch dereferences a transient handle into its audio bytes.
func (s *SessionStore) Fetch(_ context.Context, handle string) ([]byte, error) {
	key, err := s.parseHandle(handle)
	if err != nil {
		return nil, err
	}

	obj, err := s.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get audio '%s' from bucket '%s': %w", key, s.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read audio '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close audio '%s': %w", key, closeErr)
	}

	return data, nil
}

// parseHandle validates a handle against this store's bucket and extracts
// the object key.
func (s *SessionStore) parseHandle(handle string) (string, error) {
	if !IsTransient(handle) {
		return "", fmt.Errorf("%w: %q", ErrNotTransientHandle, handle)
	}

	rest := strings.TrimPrefix(handle, HandleScheme)

	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket != s.bucket || key == "" {
		return "", fmt.Errorf("%w: %q", ErrForeignHandle, handle)
	}

	return key, nil
}

// IsTransient reports whether a handle references session-scoped storage
// rather than a durable URL.
func IsTransient(handle string) bool {
	return strings.HasPrefix(handle, HandleScheme)
}
