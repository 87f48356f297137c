// Package realtime is a client for OpenAI's Realtime API over
// WebSocket, used for low-latency speech-to-speech conversations with
// tool calls.
package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// URL is the Realtime API endpoint; the model is passed as a query
	// parameter.
	URL = "wss://api.openai.com/v1/realtime"

	handshakeTimeout = 10 * time.Second
	readTimeout      = 120 * time.Second
	pingInterval     = 30 * time.Second
)

// ErrClosed is returned from ReadEvent after Close.
var ErrClosed = errors.New("realtime: connection closed")

// Stream is the session-facing surface of a live connection. Session
// code depends on this interface so tests can substitute a fake.
type Stream interface {
	Configure(cfg SessionConfig) error
	AppendAudio(pcm []byte) error
	CommitAudio() error
	InjectUserText(text string) error
	InjectFunctionOutput(callID, output string) error
	CreateResponse() error
	CancelResponse() error
	End() error
	ReadEvent(ctx context.Context) (Event, error)
	Close() error
}

// Dialer opens a Stream. The production dialer connects to the API;
// tests swap in a fake.
type Dialer func(ctx context.Context, apiKey, model string) (Stream, error)

// Client is a live WebSocket connection to the Realtime API. Writes
// are serialized with a mutex; reads happen from a single goroutine in
// the session loop via ReadEvent.
type Client struct {
	ws   *websocket.Conn
	wsMu sync.Mutex

	mu     sync.Mutex
	closed bool

	pingStop chan struct{}
}

// Dial connects and authenticates. The returned client keeps the
// connection alive with periodic pings until Close.
func Dial(ctx context.Context, apiKey, model string) (Stream, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+apiKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, fmt.Sprintf("%s?model=%s", URL, model), header)
	if err != nil {
		return nil, fmt.Errorf("connect realtime api: %w", err)
	}

	c := &Client{ws: ws, pingStop: make(chan struct{})}

	ws.SetPingHandler(func(appData string) error {
		c.wsMu.Lock()
		defer c.wsMu.Unlock()
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	go c.keepAlive()
	return c, nil
}

func (c *Client) keepAlive() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.pingStop:
			return
		case <-ticker.C:
			c.wsMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			c.wsMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// Configure sends session.update.
func (c *Client) Configure(cfg SessionConfig) error {
	return c.sendJSON(cfg.updateMessage())
}

// AppendAudio streams one chunk of 24kHz PCM16 mic audio.
func (c *Client) AppendAudio(pcm []byte) error {
	return c.sendJSON(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(pcm),
	})
}

// CommitAudio finalizes the input buffer for the current turn.
func (c *Client) CommitAudio() error {
	return c.sendJSON(map[string]string{"type": "input_audio_buffer.commit"})
}

// InjectUserText adds a user text message to the conversation without
// requesting a response.
func (c *Client) InjectUserText(text string) error {
	return c.sendJSON(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	})
}

// InjectFunctionOutput returns a tool result to the conversation.
func (c *Client) InjectFunctionOutput(callID, output string) error {
	return c.sendJSON(map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  output,
		},
	})
}

// CreateResponse asks the model to respond to the conversation so far.
func (c *Client) CreateResponse() error {
	return c.sendJSON(map[string]string{"type": "response.create"})
}

// CancelResponse interrupts the in-flight response.
func (c *Client) CancelResponse() error {
	return c.sendJSON(map[string]string{"type": "response.cancel"})
}

// End asks the service to finish the session gracefully.
func (c *Client) End() error {
	return c.sendJSON(map[string]string{"type": "session.end"})
}

// ReadEvent blocks until the next server event arrives. It must be
// called from a single goroutine. A cancelled context tears down the
// connection, which is the only way to interrupt a blocked read.
func (c *Client) ReadEvent(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("read realtime event: %w", err)
	}
	return DecodeEvent(data)
}

// Close tears down the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.pingStop)

	c.wsMu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wsMu.Unlock()

	return c.ws.Close()
}

func (c *Client) sendJSON(v any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	return c.ws.WriteJSON(v)
}
