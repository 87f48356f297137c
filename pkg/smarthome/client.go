// Package smarthome forwards natural-language commands to the Home
// Assistant conversation API and returns what the assistant said back.
package smarthome

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"billy-bassistant/internal/httpc"
	"billy-bassistant/internal/log"
)

// ErrNotConfigured means no Home Assistant token is set.
var ErrNotConfigured = errors.New("smarthome: no HA_TOKEN configured")

const requestTimeout = 10 * time.Second

// Client talks to one Home Assistant instance.
type Client struct {
	baseURL  string
	token    string
	language string
	http     *http.Client
}

// NewClient builds a client. url is the Home Assistant base URL
// without a trailing slash.
func NewClient(url, token, language string) *Client {
	if language == "" {
		language = "en"
	}
	return &Client{
		baseURL:  url,
		token:    token,
		language: language,
		http:     httpc.NewClient(requestTimeout),
	}
}

// Configured reports whether a token is present.
func (c *Client) Configured() bool { return c.token != "" }

// processResponse is the subset of the conversation API response we
// care about: the plain speech text.
type processResponse struct {
	Response struct {
		Speech struct {
			Plain struct {
				Speech string `json:"speech"`
			} `json:"plain"`
		} `json:"speech"`
	} `json:"response"`
}

// Send forwards a prompt to the conversation API and returns the plain
// speech reply. An empty reply with nil error means Home Assistant had
// nothing to say.
func (c *Client) Send(ctx context.Context, prompt string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(map[string]string{
		"text":     prompt,
		"language": c.language,
	})
	if err != nil {
		return "", fmt.Errorf("encode HA request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/conversation/process", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build HA request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("HA conversation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn("HA conversation API error", "status", resp.StatusCode)
		return "", fmt.Errorf("HA conversation API: status %d", resp.StatusCode)
	}

	var parsed processResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode HA response: %w", err)
	}
	return parsed.Response.Speech.Plain.Speech, nil
}
