package slackclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const socketReconnectDelay = 2 * time.Second

type SocketEnvelope struct {
	EnvelopeID string          `json:"envelope_id,omitempty"`
	Type       string          `json:"type,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// EventsPayload returns the Events API body carried by an events_api envelope.
func (e SocketEnvelope) EventsPayload() ([]byte, bool) {
	if strings.TrimSpace(e.Type) != "events_api" || len(e.Payload) == 0 {
		return nil, false
	}
	return e.Payload, true
}

// RunSocketMode keeps a Socket Mode connection open until ctx ends,
// reconnecting after read or connect errors. Every envelope is acked before
// onEnvelope sees it.
func (c *Client) RunSocketMode(ctx context.Context, logger *slog.Logger, onEnvelope func(SocketEnvelope)) error {
	if !c.hasApp {
		return fmt.Errorf("slack app token is required for socket mode")
	}
	return runSocketLoop(ctx, logger, c.connectSocket, socketReconnectDelay, onEnvelope)
}

// runSocketLoop waits delay after every failed connect or read. A server
// requested disconnect reconnects at once.
func runSocketLoop(ctx context.Context, logger *slog.Logger, connect func(context.Context) (*websocket.Conn, error), delay time.Duration, onEnvelope func(SocketEnvelope)) error {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		if ctx.Err() != nil {
			logger.Info("slack_socket_stop", "reason", "context_canceled")
			return nil
		}
		conn, err := connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("slack_socket_stop", "reason", "context_canceled")
				return nil
			}
			logger.Warn("slack_socket_connect_error", "error", err.Error())
			if err := sleepWithContext(ctx, delay); err != nil {
				return nil
			}
			continue
		}
		logger.Info("slack_socket_connected")

		// Unblock ReadMessage when ctx ends.
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		readErr := consumeSocket(ctx, conn, onEnvelope)
		stop()
		_ = conn.Close()
		if readErr == nil || ctx.Err() != nil || errors.Is(readErr, context.Canceled) {
			continue
		}
		logger.Warn("slack_socket_read_error", "error", readErr.Error())
		if err := sleepWithContext(ctx, delay); err != nil {
			return nil
		}
	}
}

func (c *Client) connectSocket(ctx context.Context) (*websocket.Conn, error) {
	_, url, err := c.app.StartSocketModeContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("slack apps.connections.open: %w", err)
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("slack apps.connections.open returned empty url")
	}
	dialer := *websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func consumeSocket(ctx context.Context, conn *websocket.Conn, onEnvelope func(SocketEnvelope)) error {
	if conn == nil {
		return fmt.Errorf("slack websocket connection is nil")
	}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var envelope SocketEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			continue
		}
		if strings.TrimSpace(envelope.EnvelopeID) != "" {
			if err := conn.WriteJSON(map[string]string{"envelope_id": envelope.EnvelopeID}); err != nil {
				return err
			}
		}
		if envelope.Type == "disconnect" {
			return nil
		}
		if onEnvelope != nil {
			onEnvelope(envelope)
		}
	}
}
