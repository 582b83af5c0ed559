// Package testutil provides an embedded, JetStream-enabled NATS broker for
// exercising the wire transport in tests without a real cluster. It is only
// ever imported from _test.go files.
package testutil

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// StartEmbeddedNATS starts an in-process NATS server with JetStream enabled
// on a random port, and registers its shutdown with t.Cleanup. It returns
// the server's client URL.
func StartEmbeddedNATS(t *testing.T) string {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded nats server never became ready")
	}
	t.Cleanup(ns.Shutdown)

	return ns.ClientURL()
}
