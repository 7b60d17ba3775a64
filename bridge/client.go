// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package bridge implements the HTTP client for the QLink bridge service.
//
// The bridge exposes four operations: list servers, connect, send command,
// disconnect. The client is a stateless request wrapper apart from tracking
// the single open session; command replies are decoded into a tagged
// protocol.Reply at this edge so nothing downstream sees the wire shape.
//
// Transport failures (unreachable bridge, timeouts, 5xx) surface as
// TransportError; semantic rejections (4xx, undecodable bodies) surface as
// ProtocolError. A circuit breaker trips after repeated transport failures
// so watch-mode runs fail fast against a dead bridge; disconnect bypasses
// the breaker because teardown must always be attempted.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/soothill/qlink-enumerator/pkg/errors"
	"github.com/soothill/qlink-enumerator/pkg/interfaces"
	"github.com/soothill/qlink-enumerator/pkg/logger"
	"github.com/soothill/qlink-enumerator/protocol"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultSendInterval = 100 * time.Millisecond
	maxBodySize         = 1 << 20
	breakerFailures     = 5
	breakerResetTimeout = 30 * time.Second
)

// Client talks to one bridge instance. Safe for use from a single
// enumeration goroutine; the bus behind the bridge is half-duplex and
// commands are paced by the send limiter.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	limiter    *rate.Limiter
	timeout    time.Duration

	mu      sync.Mutex
	session *Session
}

// NewClient creates a bridge client. timeout bounds each request;
// sendInterval is the minimum spacing between commands. Zero values select
// the defaults.
func NewClient(baseURL string, timeout, sendInterval time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if sendInterval <= 0 {
		sendInterval = defaultSendInterval
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "qlink-bridge",
		Timeout: breakerResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		// Semantic rejections are the bridge working as intended; only
		// transport-level failures count against the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.IsTransportError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("Bridge circuit breaker state change")
		},
	})

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
		limiter:    rate.NewLimiter(rate.Every(sendInterval), 1),
		timeout:    timeout,
	}
}

// BaseURL returns the bridge address the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type connectRequest struct {
	ServerIndex int `json:"serverIndex"`
}

type sendRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type sendResponse struct {
	Response protocol.Reply `json:"response"`
}

// ListServers fetches the bridge's upstream server list. No side effects
// beyond the network call.
func (c *Client) ListServers(ctx context.Context) ([]interfaces.ServerDescriptor, error) {
	var raw []json.RawMessage
	if err := c.request(ctx, "list servers", http.MethodGet, "/servers", nil, &raw, true); err != nil {
		return nil, err
	}

	servers := make([]interfaces.ServerDescriptor, 0, len(raw))
	for i, entry := range raw {
		var label string
		if err := json.Unmarshal(entry, &label); err != nil {
			// Some bridge versions list servers as objects; keep the raw
			// JSON as the opaque label.
			label = string(entry)
		}
		servers = append(servers, interfaces.ServerDescriptor{Index: i, Label: label})
	}
	return servers, nil
}

// Connect opens a session to the server at the given index. At most one
// session may be open at a time.
func (c *Client) Connect(ctx context.Context, serverIndex int) (interfaces.Conn, string, error) {
	if serverIndex < 0 {
		return nil, "", errors.NewProtocolError("connect", 0, "", fmt.Errorf("server index %d out of range", serverIndex))
	}

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return nil, "", errors.NewProtocolError("connect", 0, "", fmt.Errorf("session already open"))
	}
	c.mu.Unlock()

	var out messageResponse
	if err := c.request(ctx, "connect", http.MethodPost, "/connect", connectRequest{ServerIndex: serverIndex}, &out, true); err != nil {
		return nil, "", err
	}

	session := &Session{client: c, serverIndex: serverIndex}
	c.mu.Lock()
	c.session = session
	c.mu.Unlock()

	logger.Info().Int("server_index", serverIndex).Str("message", out.Message).Msg("Session opened")
	return session, out.Message, nil
}

// Disconnect tears down the session. The request is issued even if no
// session is open (some bridges hold transport-level locks until an
// explicit disconnect); any open session is marked closed regardless of
// the call's outcome.
func (c *Client) Disconnect(ctx context.Context) (string, error) {
	var out messageResponse
	err := c.request(ctx, "disconnect", http.MethodPost, "/disconnect", nil, &out, false)

	c.mu.Lock()
	closed := c.session
	if closed != nil {
		closed.close()
		c.session = nil
	}
	c.mu.Unlock()

	if err != nil {
		return "", err
	}

	event := logger.Info().Str("message", out.Message)
	if closed != nil {
		event = event.Int("server_index", closed.ServerIndex())
	}
	event.Msg("Session closed")
	return out.Message, nil
}

// request performs one bridge call: marshal, send, status check, decode.
// useBreaker routes the call through the circuit breaker.
func (c *Client) request(ctx context.Context, op, method, path string, body, out any, useBreaker bool) error {
	call := func() (any, error) {
		return nil, c.do(ctx, op, method, path, body, out)
	}

	if !useBreaker {
		_, err := call()
		return err
	}

	_, err := c.breaker.Execute(call)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return errors.NewTransportError(op, c.baseURL, err)
	}
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.NewProtocolError(op, 0, "", err)
		}
		reader = bytes.NewReader(payload)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.NewTransportError(op, c.baseURL, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errors.NewTransportError(op, c.baseURL, errors.ErrTimeout)
		}
		return errors.NewTransportError(op, c.baseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return errors.NewTransportError(op, c.baseURL, err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return errors.NewTransportError(op, c.baseURL, fmt.Errorf("bridge returned %d", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		return errors.NewProtocolError(op, resp.StatusCode, strings.TrimSpace(string(data)), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.NewProtocolError(op, 0, "", fmt.Errorf("undecodable body: %w", err))
	}
	return nil
}
