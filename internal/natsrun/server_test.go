// Package natsrun_test tests the embedded storage plane lifecycle.
package natsrun_test

import (
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/speech-batch/internal/natsrun"
)

func TestStartShutdown(t *testing.T) {
	t.Parallel()

	runtime, err := natsrun.Start(t.TempDir())
	require.NoError(t, err)

	require.True(t, runtime.Conn.IsConnected())
	require.True(t, runtime.Server.JetStreamEnabled())

	runtime.Shutdown()
	require.False(t, runtime.Conn.IsConnected())
}

func TestStart_StateSurvivesRestart(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()

	first, err := natsrun.Start(dataDir)
	require.NoError(t, err)

	jetstreamContext, err := first.Conn.JetStream()
	require.NoError(t, err)

	kv, err := jetstreamContext.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:  "restart-check",
		Storage: nats.FileStorage,
	})
	require.NoError(t, err)

	_, err = kv.PutString("key", "value")
	require.NoError(t, err)

	first.Shutdown()

	second, err := natsrun.Start(dataDir)
	require.NoError(t, err)
	defer second.Shutdown()

	jetstreamContext, err = second.Conn.JetStream()
	require.NoError(t, err)

	kv, err = jetstreamContext.KeyValue("restart-check")
	require.NoError(t, err)

	entry, err := kv.Get("key")
	require.NoError(t, err)
	require.Equal(t, "value", string(entry.Value()))
}
