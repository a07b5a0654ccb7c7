package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrTokenExpired means the stored Google credential was rejected and the
// user must sign in with Google again.
var ErrTokenExpired = errors.New("google access token expired")

const (
	fetchWindow = 7 * 24 * time.Hour
	listMax     = 50 // messages listed per fetch
	detailMax   = 20 // messages fetched in full
)

// Message is the slice of a Gmail message the pipeline cares about.
type Message struct {
	ID      string
	Subject string
	From    string
	Date    string
	Snippet string
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

type listResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type detailResponse struct {
	ID      string `json:"id"`
	Snippet string `json:"snippet"`
	Payload struct {
		Headers []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"headers"`
	} `json:"payload"`
}

// FetchRecent lists the user's messages from the last 7 days and resolves
// headers and snippets for the first few. A 401/403 from Gmail maps to
// ErrTokenExpired; anything else is a transient upstream failure.
func (c *Client) FetchRecent(ctx context.Context, accessToken string) ([]Message, error) {
	after := time.Now().Add(-fetchWindow).Unix()
	q := url.Values{}
	q.Set("q", fmt.Sprintf("after:%d", after))
	q.Set("maxResults", fmt.Sprintf("%d", listMax))

	var list listResponse
	if err := c.get(ctx, accessToken, "/users/me/messages?"+q.Encode(), &list); err != nil {
		return nil, err
	}

	ids := list.Messages
	if len(ids) > detailMax {
		ids = ids[:detailMax]
	}

	out := make([]Message, 0, len(ids))
	for _, m := range ids {
		var d detailResponse
		if err := c.get(ctx, accessToken, "/users/me/messages/"+m.ID, &d); err != nil {
			return nil, err
		}
		msg := Message{ID: d.ID, Snippet: d.Snippet}
		for _, h := range d.Payload.Headers {
			switch h.Name {
			case "Subject":
				msg.Subject = h.Value
			case "From":
				msg.From = h.Value
			case "Date":
				msg.Date = h.Value
			}
		}
		out = append(out, msg)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, accessToken, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrTokenExpired
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gmail: unexpected status %d: %s", resp.StatusCode, body)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}
