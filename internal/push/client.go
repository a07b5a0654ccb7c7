package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrTokenNotRegistered means the provider reported the device token as
// permanently invalid; the token must be removed from the user record.
var ErrTokenNotRegistered = errors.New("push token not registered")

// Notification is the visible part of a push message.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Client sends messages through the FCM HTTP API.
type Client struct {
	Endpoint  string
	ServerKey string
	HTTP      *http.Client
}

func NewClient(endpoint, serverKey string) *Client {
	return &Client{
		Endpoint:  endpoint,
		ServerKey: serverKey,
		HTTP:      &http.Client{Timeout: 15 * time.Second},
	}
}

type sendRequest struct {
	To              string            `json:"to,omitempty"`
	RegistrationIDs []string          `json:"registration_ids,omitempty"`
	Priority        string            `json:"priority"`
	Notification    Notification      `json:"notification"`
	Data            map[string]string `json:"data,omitempty"`
}

type sendResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

// Report summarizes a multicast send. InvalidTokens lists tokens the provider
// reported as permanently dead.
type Report struct {
	Success       int
	Failure       int
	InvalidTokens []string
}

// Send delivers one message to a single token.
func (c *Client) Send(ctx context.Context, token string, n Notification, data map[string]string) error {
	resp, err := c.post(ctx, sendRequest{
		To:           token,
		Priority:     "high",
		Notification: n,
		Data:         data,
	})
	if err != nil {
		return err
	}
	if resp.Failure == 0 {
		return nil
	}
	if len(resp.Results) > 0 && tokenInvalid(resp.Results[0].Error) {
		return ErrTokenNotRegistered
	}
	if len(resp.Results) > 0 {
		return fmt.Errorf("push: send failed: %s", resp.Results[0].Error)
	}
	return errors.New("push: send failed")
}

// SendMulticast delivers one message to many tokens and reports per-token
// outcomes.
func (c *Client) SendMulticast(ctx context.Context, tokens []string, n Notification, data map[string]string) (Report, error) {
	if len(tokens) == 0 {
		return Report{}, nil
	}
	resp, err := c.post(ctx, sendRequest{
		RegistrationIDs: tokens,
		Priority:        "high",
		Notification:    n,
		Data:            data,
	})
	if err != nil {
		return Report{}, err
	}

	rep := Report{Success: resp.Success, Failure: resp.Failure}
	for i, r := range resp.Results {
		if i < len(tokens) && tokenInvalid(r.Error) {
			rep.InvalidTokens = append(rep.InvalidTokens, tokens[i])
		}
	}
	return rep, nil
}

func (c *Client) post(ctx context.Context, payload sendRequest) (*sendResponse, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "key="+c.ServerKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("push: unexpected status %d: %s", resp.StatusCode, body)
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func tokenInvalid(code string) bool {
	return code == "NotRegistered" || code == "InvalidRegistration"
}
