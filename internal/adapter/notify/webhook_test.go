package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNotifyPostsEmbed(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier(nil, "onboard", zap.NewNop())
	err := notifier.Notify(context.Background(), srv.URL, Event{
		Title:     "Push completed",
		Color:     ColorSuccess,
		Fields:    []Field{{Name: "Succeeded", Value: "4", Inline: true}},
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, "onboard", got.Username)
	require.Len(t, got.Embeds, 1)
	require.Equal(t, "Push completed", got.Embeds[0].Title)
	require.Equal(t, "2026-01-01T00:00:00Z", got.Embeds[0].Timestamp)
	require.Equal(t, "4", got.Embeds[0].Fields[0].Value)
}

func TestNotifyEmptyURLIsNoop(t *testing.T) {
	notifier := NewWebhookNotifier(nil, "", nil)
	require.NoError(t, notifier.Notify(context.Background(), "  ", Event{Title: "x"}))
}

func TestNotifyReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier(nil, "", zap.NewNop())
	require.Error(t, notifier.Notify(context.Background(), srv.URL, Event{Title: "x"}))
}
