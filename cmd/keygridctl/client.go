package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

// Results a command treats as success.
var successResults = map[string]bool{"Ok": true, "Saved": true, "Reloaded": true}

// Response is a control protocol response.
type Response struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Result  string          `json:"result"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Err turns a failed result into an error.
func (r *Response) Err() error {
	if successResults[r.Result] {
		return nil
	}
	if r.Message != "" {
		return fmt.Errorf("%s: %s", r.Result, r.Message)
	}
	return errors.New(r.Result)
}

// ErrNoResponse means the daemon never answered, which is what it does
// for request types it does not know.
var ErrNoResponse = errors.New("no response from daemon (unknown request type?)")

// Client is a WebSocket connection to the daemon.
type Client struct {
	conn *websocket.Conn
	seq  int

	// Events received while waiting for a response.
	events []json.RawMessage
}

// Dial connects to the control socket at path.
func Dial(ctx context.Context, path string) (*Client, error) {
	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", path)
		},
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, "ws://keygrid/ws", nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", path, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	//nolint:errcheck // Best-effort close handshake
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.conn.Close()
}

// Do sends a request and waits for the response with the same id.
func (c *Client) Do(ctx context.Context, typ string, data any) (*Response, error) {
	c.seq++
	id := strconv.Itoa(c.seq)

	msg := map[string]any{"type": typ, "id": id}
	if data != nil {
		msg["data"] = data
	}
	if deadline, ok := ctx.Deadline(); ok {
		//nolint:errcheck // Write error caught below
		c.conn.SetWriteDeadline(deadline)
		//nolint:errcheck // Read error caught below
		c.conn.SetReadDeadline(deadline)
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return nil, fmt.Errorf("sending %s: %w", typ, err)
	}

	for {
		var raw json.RawMessage
		if err := c.conn.ReadJSON(&raw); err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, ErrNoResponse
			}
			return nil, fmt.Errorf("reading response: %w", err)
		}
		var resp Response
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
		if resp.Type == "event" {
			c.events = append(c.events, resp.Data)
			continue
		}
		if resp.ID == id {
			return &resp, nil
		}
	}
}

// Events delivers pushed events to fn until ctx ends or the connection
// closes. Events buffered during Do are delivered first.
func (c *Client) Events(ctx context.Context, fn func(json.RawMessage)) error {
	for _, ev := range c.events {
		fn(ev)
	}
	c.events = nil

	//nolint:errcheck // Clear any request deadline
	c.conn.SetReadDeadline(time.Time{})
	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	for {
		var resp Response
		if err := c.conn.ReadJSON(&resp); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading events: %w", err)
		}
		if resp.Type == "event" {
			fn(resp.Data)
		}
	}
}
