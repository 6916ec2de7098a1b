// Package supabase is a client for the Supabase auth admin API, used
// to invite agents by email and remove their auth accounts.
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client calls the Supabase auth admin endpoints with the service role
// key.
type Client struct {
	baseURL        string
	serviceRoleKey string
	http           *http.Client
}

// New constructs an auth admin client for the given project URL.
func New(projectURL, serviceRoleKey string) *Client {
	return &Client{
		baseURL:        strings.TrimRight(projectURL, "/"),
		serviceRoleKey: serviceRoleKey,
		http:           &http.Client{Timeout: 15 * time.Second},
	}
}

// InviteUserByEmail sends an invitation email and returns the new auth
// user's ID.
func (c *Client) InviteUserByEmail(ctx context.Context, email string) (string, error) {
	body, _ := json.Marshal(map[string]string{"email": email})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v1/invite", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("supabase: inviting user: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", apiError(resp.StatusCode, payload)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("supabase: decoding invite response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("supabase: invite response missing user id")
	}
	return out.ID, nil
}

// DeleteUser removes an auth user.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/auth/v1/admin/users/"+id, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("supabase: deleting user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apiError(resp.StatusCode, payload)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("apikey", c.serviceRoleKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceRoleKey)
}

func apiError(status int, payload []byte) error {
	var body struct {
		Msg     string `json:"msg"`
		Message string `json:"message"`
	}
	if json.Unmarshal(payload, &body) == nil {
		if body.Msg != "" {
			return fmt.Errorf("supabase: %s (status %d)", body.Msg, status)
		}
		if body.Message != "" {
			return fmt.Errorf("supabase: %s (status %d)", body.Message, status)
		}
	}
	return fmt.Errorf("supabase: api returned %d", status)
}
