package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emoji-stories/config"
)

func newModerationServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req moderationRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.Input)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIModeratorFlagged(t *testing.T) {
	srv := newModerationServer(t, http.StatusOK, `{"id":"modr-1","results":[{"flagged":true,"categories":{"violence":true,"harassment":true,"sexual":false}}]}`)
	m := NewOpenAIModerator(config.ModerationConfig{Endpoint: srv.URL, APIKey: "test-key"})

	verdict, err := m.Check(context.Background(), "some text")
	require.NoError(t, err)
	assert.True(t, verdict.Flagged)
	assert.Equal(t, []string{"harassment", "violence"}, verdict.Categories)
}

func TestOpenAIModeratorClean(t *testing.T) {
	srv := newModerationServer(t, http.StatusOK, `{"results":[{"flagged":false,"categories":{"violence":false}}]}`)
	m := NewOpenAIModerator(config.ModerationConfig{Endpoint: srv.URL, APIKey: "test-key"})

	verdict, err := m.Check(context.Background(), "a calm story")
	require.NoError(t, err)
	assert.False(t, verdict.Flagged)
	assert.Empty(t, verdict.Categories)
}

func TestOpenAIModeratorErrors(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"server error": {http.StatusInternalServerError, `{"error":"down"}`},
		"no results":   {http.StatusOK, `{"results":[]}`},
		"invalid json": {http.StatusOK, `not json`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := newModerationServer(t, tc.status, tc.body)
			m := NewOpenAIModerator(config.ModerationConfig{Endpoint: srv.URL, APIKey: "test-key"})
			_, err := m.Check(context.Background(), "text")
			assert.Error(t, err)
		})
	}
}

func TestOpenAIModeratorTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	m := NewOpenAIModerator(config.ModerationConfig{Endpoint: srv.URL, APIKey: "test-key", Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := m.Check(context.Background(), "text")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewModeratorWithoutKeyIsNoop(t *testing.T) {
	m := NewModerator(config.ModerationConfig{})
	_, ok := m.(NoopModerator)
	assert.True(t, ok)

	verdict, err := m.Check(context.Background(), "anything")
	require.NoError(t, err)
	assert.False(t, verdict.Flagged)
}
