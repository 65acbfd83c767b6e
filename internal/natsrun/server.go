// Package natsrun boots the embedded NATS server that provides the
// application's local storage plane: a JetStream KeyValue bucket for
// persisted state and a memory-backed object store for session audio.
package natsrun

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

const readyTimeout = 10 * time.Second

// ErrServerNotReady indicates the embedded server did not accept
// connections within the startup deadline.
var ErrServerNotReady = errors.New("embedded NATS server not ready")

// Runtime holds the embedded server and the client connection to it.
type Runtime struct {
	Server *server.Server
	Conn   *nats.Conn
}

// Start launches an embedded JetStream-enabled server storing its streams
// under dataDir and connects to it on a random local port.
func Start(dataDir string) (*Runtime, error) {
	options := &server.Options{
		Host:      "127.0.0.1",
		Port:      server.RANDOM_PORT,
		JetStream: true,
		StoreDir:  dataDir,
		NoLog:     true,
		NoSigs:    true,
	}

	natsServer, err := server.NewServer(options)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
	}

	natsServer.Start()

	if !natsServer.ReadyForConnections(readyTimeout) {
		natsServer.Shutdown()

		return nil, ErrServerNotReady
	}

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		natsServer.Shutdown()

		return nil, fmt.Errorf("failed to connect to embedded NATS server: %w", err)
	}

	return &Runtime{Server: natsServer, Conn: natsConnection}, nil
}

// Shutdown closes the client connection and stops the server.
func (r *Runtime) Shutdown() {
	if r.Conn != nil {
		r.Conn.Close()
	}

	if r.Server != nil {
		r.Server.Shutdown()
		r.Server.WaitForShutdown()
	}
}
