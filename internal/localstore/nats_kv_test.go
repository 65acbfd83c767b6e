// Package localstore_test tests the NATS-backed key-value store.
package localstore_test

import (
	"context"
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/speech-batch/internal/core"
	"github.com/book-expert/speech-batch/internal/localstore"
)

// StartTestServer starts an in-memory NATS server for testing purposes.
func StartTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	return natsServer, natsConnection
}

func TestNatsKeyValue_PutGet(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := StartTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	kv, err := localstore.New(jetstreamContext, "test-state")
	require.NoError(t, err)

	ctx := context.Background()
	value := []byte(`{"version":1}`)

	err = kv.Put(ctx, "records", value)
	require.NoError(t, err)

	loaded, err := kv.Get(ctx, "records")
	require.NoError(t, err)
	require.Equal(t, value, loaded)

	// Overwrite keeps only the latest value.
	updated := []byte(`{"version":2}`)
	require.NoError(t, kv.Put(ctx, "records", updated))

	loaded, err = kv.Get(ctx, "records")
	require.NoError(t, err)
	require.Equal(t, updated, loaded)
}

func TestNatsKeyValue_MissingKey(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := StartTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	kv, err := localstore.New(jetstreamContext, "test-state-missing")
	require.NoError(t, err)

	_, err = kv.Get(context.Background(), "never-written")
	require.ErrorIs(t, err, core.ErrKeyNotFound)
}

func TestNatsKeyValue_BindExisting(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := StartTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	first, err := localstore.New(jetstreamContext, "test-state-shared")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, first.Put(ctx, "settings", []byte("persisted")))

	// A second construction binds to the same bucket and sees its data.
	second, err := localstore.New(jetstreamContext, "test-state-shared")
	require.NoError(t, err)

	loaded, err := second.Get(ctx, "settings")
	require.NoError(t, err)
	require.Equal(t, []byte("persisted"), loaded)
}
