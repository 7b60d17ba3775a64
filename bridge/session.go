// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

package bridge

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/soothill/qlink-enumerator/pkg/errors"
	"github.com/soothill/qlink-enumerator/pkg/metrics"
	"github.com/soothill/qlink-enumerator/protocol"
)

// Session is the single open logical connection to one upstream server.
// Created by Client.Connect, closed by Client.Disconnect. Sends are paced
// by the client's limiter; commands must not interleave.
type Session struct {
	client      *Client
	serverIndex int
	closed      bool
}

// ServerIndex returns the index of the server this session targets.
func (s *Session) ServerIndex() int {
	return s.serverIndex
}

// Send issues one command over the session and returns the raw reply.
// Failed sends are surfaced immediately; the caller decides whether to
// continue enumerating other branches or abort.
func (s *Session) Send(ctx context.Context, command string) (protocol.Reply, error) {
	if command == "" {
		return protocol.Reply{}, errors.NewProtocolError("send", 0, "", fmt.Errorf("empty command"))
	}
	if s.closed {
		return protocol.Reply{}, errors.NewProtocolError("send", 0, "", errors.ErrNoSession)
	}

	if err := s.client.limiter.Wait(ctx); err != nil {
		return protocol.Reply{}, errors.NewTransportError("send", s.client.baseURL, err)
	}

	metrics.CommandsSent.WithLabelValues(commandVerb(command)).Inc()

	var out sendResponse
	if err := s.client.request(ctx, "send", http.MethodPost, "/send", sendRequest{Message: command}, &out, true); err != nil {
		metrics.CommandErrors.Inc()
		return protocol.Reply{}, err
	}
	return out.Response, nil
}

func (s *Session) close() {
	s.closed = true
}

// commandVerb extracts the command keyword for the metrics label, keeping
// addressed commands from exploding label cardinality.
func commandVerb(command string) string {
	if i := strings.IndexByte(command, ' '); i > 0 {
		return command[:i]
	}
	return command
}
