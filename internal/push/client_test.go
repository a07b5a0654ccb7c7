package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "server-key"), srv
}

func TestSendSuccess(t *testing.T) {
	var got map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key=server-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success":1,"failure":0,"results":[{"message_id":"abc"}]}`))
	})

	err := c.Send(context.Background(), "tok-1",
		Notification{Title: "Hey", Body: "Report is due"},
		map[string]string{"type": "EMAIL_TASK"})
	require.NoError(t, err)

	assert.Equal(t, "tok-1", got["to"])
	assert.Equal(t, "high", got["priority"])
	data := got["data"].(map[string]any)
	assert.Equal(t, "EMAIL_TASK", data["type"])
}

func TestSendTokenNotRegistered(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":0,"failure":1,"results":[{"error":"NotRegistered"}]}`))
	})

	err := c.Send(context.Background(), "dead", Notification{Title: "x", Body: "y"}, nil)
	assert.ErrorIs(t, err, ErrTokenNotRegistered)
}

func TestSendOtherFailure(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":0,"failure":1,"results":[{"error":"InternalServerError"}]}`))
	})

	err := c.Send(context.Background(), "tok", Notification{Title: "x", Body: "y"}, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTokenNotRegistered)
}

func TestSendNon200(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	err := c.Send(context.Background(), "tok", Notification{Title: "x", Body: "y"}, nil)
	assert.Error(t, err)
}

func TestSendMulticastReport(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body["registration_ids"], 3)
		w.Write([]byte(`{"success":1,"failure":2,"results":[
			{"message_id":"ok"},
			{"error":"NotRegistered"},
			{"error":"Unavailable"}
		]}`))
	})

	rep, err := c.SendMulticast(context.Background(),
		[]string{"tok-a", "tok-b", "tok-c"},
		Notification{Title: "x", Body: "y"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Success)
	assert.Equal(t, 2, rep.Failure)
	assert.Equal(t, []string{"tok-b"}, rep.InvalidTokens, "only permanently dead tokens reported")
}

func TestSendMulticastEmpty(t *testing.T) {
	c := NewClient("http://invalid.local", "k")
	rep, err := c.SendMulticast(context.Background(), nil, Notification{}, nil)
	require.NoError(t, err)
	assert.Zero(t, rep.Success)
	assert.Zero(t, rep.Failure)
}
