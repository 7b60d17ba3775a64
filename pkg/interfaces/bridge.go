// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package interfaces defines abstract interfaces for core system
// components. This package promotes loose coupling and testability by
// allowing dependency injection and easy mocking in tests.
package interfaces

import (
	"context"

	"github.com/soothill/qlink-enumerator/protocol"
)

// ServerDescriptor is one entry in the bridge's server list. Supplied by
// the bridge, never mutated.
type ServerDescriptor struct {
	Index int    // 0-based position used to address connect
	Label string // opaque display label
}

// Conn is one open logical session to an upstream server. Commands must
// be issued strictly sequentially; the underlying bus is half-duplex.
type Conn interface {
	// Send issues a command over the open session and returns the raw reply
	Send(ctx context.Context, command string) (protocol.Reply, error)
}

// Bridge is the transport the enumerator drives: list servers, open a
// session, tear it down.
type Bridge interface {
	// ListServers returns the bridge's upstream server list
	ListServers(ctx context.Context) ([]ServerDescriptor, error)

	// Connect opens a session to the server at the given index and returns
	// the connection plus the bridge's confirmation message
	Connect(ctx context.Context, serverIndex int) (Conn, string, error)

	// Disconnect tears down the open session, returning the bridge's
	// confirmation message. Calling it with no session open is not fatal.
	Disconnect(ctx context.Context) (string, error)
}
