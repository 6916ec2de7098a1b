// Package telnyx is a minimal client for the Telnyx messaging API.
package telnyx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client calls the Telnyx REST API.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// New constructs a Telnyx client. An empty apiKey yields a client whose
// sends fail with a configuration error, which keeps local development
// from silently dropping messages.
func New(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.telnyx.com"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

type sendResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Send delivers an SMS and returns the provider message ID.
func (c *Client) Send(ctx context.Context, from, to, text string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("telnyx: api key is not configured")
	}

	body, err := json.Marshal(sendRequest{From: from, To: to, Text: text})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/messages", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("telnyx: send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("telnyx: api returned %d: %s", resp.StatusCode, payload)
	}

	var parsed sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("telnyx: decode response: %w", err)
	}
	return parsed.Data.ID, nil
}
