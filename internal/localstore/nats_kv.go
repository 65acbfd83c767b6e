// Package localstore provides the local key-value store backing persisted
// workflow state, implemented on a NATS JetStream KeyValue bucket with file
// storage under the application data directory.
package localstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/speech-batch/internal/core"
)

// NatsKeyValue implements the core.KeyValue interface using NATS JetStream.
type NatsKeyValue struct {
	bucket string
	kv     nats.KeyValue
}

// New creates or binds to the named KeyValue bucket.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsKeyValue, error) {
	// Use a "create-first" approach.
	kv, err := jetstreamContext.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Persisted state for the %s bucket.", bucketName),
		History:     1,
		Storage:     nats.FileStorage,
		Replicas:    1,
	})

	// If the bucket already exists, bind to it.
	if err != nil {
		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, err = jetstreamContext.KeyValue(bucketName)
			if err != nil {
				return nil, fmt.Errorf("failed to bind to existing key-value bucket '%s': %w", bucketName, err)
			}
		} else {
			// For any other error, fail.
			return nil, fmt.Errorf("failed to create key-value bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsKeyValue{
		bucket: bucketName,
		kv:     kv,
	}, nil
}

// Get retrieves a value from the bucket. A missing key is reported as
// core.ErrKeyNotFound so callers can treat it as empty state.
func (n *NatsKeyValue) Get(_ context.Context, key string) ([]byte, error) {
	entry, err := n.kv.Get(key)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return nil, fmt.Errorf("key '%s' in bucket '%s': %w", key, n.bucket, core.ErrKeyNotFound)
		}

		return nil, fmt.Errorf("failed to get key '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	return entry.Value(), nil
}

// Put stores a value in the bucket.
func (n *NatsKeyValue) Put(_ context.Context, key string, value []byte) error {
	_, err := n.kv.Put(key, value)
	if err != nil {
		return fmt.Errorf("failed to put key '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}
