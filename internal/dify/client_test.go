package dify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/StockPilot/config"
)

func newTestConfig(t *testing.T, base string) *config.Config {
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	cfg.DifyBaseURL = base
	cfg.DifyAPIKey = "app-test"
	return cfg
}

func TestAskStreams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat-messages", r.URL.Path)
		assert.Equal(t, "Bearer app-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "streaming", req.ResponseMode)
		assert.Equal(t, "stockpilot", req.User)
		assert.Equal(t, "How is AVGO doing?", req.Query)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: ping\n\n")
		fmt.Fprint(w, `data: {"event":"message","answer":"AVGO ","conversation_id":"conv-1","message_id":"m-1"}`+"\n\n")
		fmt.Fprint(w, "data: not json\n\n")
		fmt.Fprint(w, `data: {"event":"message","answer":"looks strong."}`+"\n\n")
		fmt.Fprint(w, `data: {"event":"message_end","conversation_id":"conv-1"}`+"\n\n")
		fmt.Fprint(w, `data: {"event":"message","answer":"ignored"}`+"\n\n")
	}))
	defer srv.Close()

	client, err := NewClient(newTestConfig(t, srv.URL))
	require.NoError(t, err)

	var chunks []string
	answer, err := client.Ask(context.Background(), "How is AVGO doing?", func(s string) { chunks = append(chunks, s) })
	require.NoError(t, err)
	assert.Equal(t, "AVGO looks strong.", answer.Text)
	assert.Equal(t, "conv-1", answer.ConversationID)
	assert.Equal(t, "m-1", answer.MessageID)
	assert.Equal(t, []string{"AVGO ", "looks strong."}, chunks)
}

func TestAskFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/denied"):
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"code":"unauthorized"}`)
		case strings.HasPrefix(r.URL.Path, "/empty"):
			fmt.Fprint(w, `data: {"event":"message_end"}`+"\n\n")
		default:
			fmt.Fprint(w, `data: {"event":"error","code":"quota","message":"quota exceeded"}`+"\n\n")
		}
	}))
	defer srv.Close()
	ctx := context.Background()

	client, err := NewClient(newTestConfig(t, srv.URL+"/denied"))
	require.NoError(t, err)
	_, err = client.Ask(ctx, "hi", nil)
	assert.ErrorContains(t, err, "HTTP 401")

	client, _ = NewClient(newTestConfig(t, srv.URL+"/empty"))
	_, err = client.Ask(ctx, "hi", nil)
	assert.ErrorIs(t, err, ErrEmptyAnswer)

	client, _ = NewClient(newTestConfig(t, srv.URL+"/v1/chat-messages"))
	assert.Equal(t, srv.URL+"/v1/chat-messages", client.endpoint)
	_, err = client.Ask(ctx, "hi", nil)
	assert.ErrorContains(t, err, "quota exceeded")

	_, err = client.Ask(ctx, "  ", nil)
	assert.Error(t, err)

	_, err = NewClient(config.DefaultConfigWithRoot(t.TempDir()))
	assert.Error(t, err)
}
