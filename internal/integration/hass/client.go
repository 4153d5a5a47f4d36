// Package hass integrates a Home Assistant instance: a WebSocket client for
// the event stream and a small REST client for device state and actuation.
package hass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// frame is one JSON message of the Home Assistant WebSocket protocol. Every
// frame carries a type; frames belonging to a command conversation carry the
// command's id.
type frame struct {
	ID   int64           `json:"id,omitempty"`
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// field unmarshals one named field out of the raw frame.
func (f *frame) field(name string, into any) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(f.Raw, &fields); err != nil {
		return err
	}
	raw, ok := fields[name]
	if !ok {
		return fmt.Errorf("frame has no %q field", name)
	}
	return json.Unmarshal(raw, into)
}

// WSClient speaks the Home Assistant WebSocket sub-protocol: an
// authenticated connection multiplexing command conversations over
// monotonically increasing ids.
type WSClient struct {
	// HAVersion is the server version reported during the handshake.
	HAVersion string

	conn    *websocket.Conn
	writeMu sync.Mutex

	// lastCommandID mints per-connection command ids; the first id handed
	// out is 1, and ids are never reused within a connection.
	lastCommandID atomic.Int64

	commandsMu sync.Mutex
	commands   map[int64]chan frame

	done      chan struct{}
	closeOnce sync.Once
}

// ConnectWS dials the websocket endpoint and performs the auth handshake:
// the server opens with auth_required, the client answers with the access
// token, and the server confirms with auth_ok.
func ConnectWS(ctx context.Context, wsURL, accessToken string) (*WSClient, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	var hello frame
	if err := readFrame(conn, &hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read server hello: %w", err)
	}
	if hello.Type != "auth_required" {
		_ = conn.Close()
		return nil, fmt.Errorf("first message must be auth_required, got %q", hello.Type)
	}

	var haVersion string
	_ = hello.field("ha_version", &haVersion)

	if err := conn.WriteJSON(map[string]any{
		"type":         "auth",
		"access_token": accessToken,
	}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send auth: %w", err)
	}

	var authResult frame
	if err := readFrame(conn, &authResult); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read auth result: %w", err)
	}
	if authResult.Type != "auth_ok" {
		_ = conn.Close()
		return nil, fmt.Errorf("authentication failed: server answered %q", authResult.Type)
	}

	c := &WSClient{
		HAVersion: haVersion,
		conn:      conn,
		commands:  make(map[int64]chan frame),
		done:      make(chan struct{}),
	}
	go c.readLoop()

	return c, nil
}

func readFrame(conn *websocket.Conn, into *frame) error {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parse frame: %w", err)
	}
	into.Raw = data
	return nil
}

// readLoop routes every incoming frame to the mailbox of the command it
// references. Frames for unknown or already-closed commands are dropped
// with a warning.
func (c *WSClient) readLoop() {
	defer c.Close()

	for {
		var f frame
		if err := readFrame(c.conn, &f); err != nil {
			select {
			case <-c.done:
			default:
				log.Printf("[hass] websocket read failed: %v", err)
			}
			return
		}

		c.commandsMu.Lock()
		mailbox, ok := c.commands[f.ID]
		c.commandsMu.Unlock()

		if !ok {
			log.Printf("[hass] received frame for unknown command %d (type %s)", f.ID, f.Type)
			continue
		}

		select {
		case mailbox <- f:
		case <-c.done:
			return
		}
	}
}

// Close tears the connection down. Commands blocked in Receive observe the
// shutdown through the client's done channel.
func (c *WSClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// Command is one request/response conversation with the server. Every frame
// the server sends for the command's id lands in its mailbox.
type Command struct {
	client *WSClient
	id     int64
	recv   chan frame
}

// NewCommand mints the next command id and registers its mailbox.
func (c *WSClient) NewCommand() *Command {
	id := c.lastCommandID.Add(1)
	mailbox := make(chan frame, 16)

	c.commandsMu.Lock()
	c.commands[id] = mailbox
	c.commandsMu.Unlock()

	return &Command{client: c, id: id, recv: mailbox}
}

// Send writes a frame of the given type, stamped with the command id.
func (cmd *Command) Send(msgType string, fields map[string]any) error {
	payload := make(map[string]any, len(fields)+2)
	for key, val := range fields {
		payload[key] = val
	}
	payload["id"] = cmd.id
	payload["type"] = msgType

	cmd.client.writeMu.Lock()
	defer cmd.client.writeMu.Unlock()
	return cmd.client.conn.WriteJSON(payload)
}

// Receive blocks for the next frame addressed to this command.
func (cmd *Command) Receive(ctx context.Context) (frame, error) {
	// Drain buffered frames before reporting a dead connection.
	select {
	case f := <-cmd.recv:
		return f, nil
	default:
	}

	select {
	case f := <-cmd.recv:
		return f, nil
	case <-cmd.client.done:
		return frame{}, errors.New("connection closed")
	case <-ctx.Done():
		return frame{}, ctx.Err()
	}
}

// Close removes the command's mailbox so the read loop stops routing to it.
// The mailbox itself stays open; the read loop may be about to send into it.
func (cmd *Command) Close() {
	cmd.client.commandsMu.Lock()
	defer cmd.client.commandsMu.Unlock()
	delete(cmd.client.commands, cmd.id)
}

// Ping sends an application-level ping and fails unless a pong for the same
// command id arrives within the timeout.
func (c *WSClient) Ping(ctx context.Context, timeout time.Duration) error {
	cmd := c.NewCommand()
	defer cmd.Close()

	if err := cmd.Send("ping", nil); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := cmd.Receive(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if reply.Type != "pong" {
		return fmt.Errorf("ping: expected pong, got %q", reply.Type)
	}
	return nil
}

// SubscribeEvents asks the server for its event stream. The server must
// acknowledge with a successful result before the first event frame.
func (c *WSClient) SubscribeEvents(ctx context.Context, eventType string) (*EventStream, error) {
	cmd := c.NewCommand()

	fields := map[string]any{}
	if eventType != "" {
		fields["event_type"] = eventType
	}
	if err := cmd.Send("subscribe_events", fields); err != nil {
		cmd.Close()
		return nil, err
	}

	reply, err := cmd.Receive(ctx)
	if err != nil {
		cmd.Close()
		return nil, fmt.Errorf("subscribe_events: %w", err)
	}
	if reply.Type != "result" {
		cmd.Close()
		return nil, fmt.Errorf("subscribe_events: expected result, got %q", reply.Type)
	}
	var success bool
	if err := reply.field("success", &success); err != nil || !success {
		cmd.Close()
		return nil, errors.New("subscribe_events: server rejected the subscription")
	}

	return &EventStream{command: cmd}, nil
}
