package rest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Redeven/Streambot/models"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatus struct {
	guilds map[string]map[string][]string
}

func (f fakeStatus) ListSubscriptions(guildID string) map[string][]string {
	return f.guilds[guildID]
}

func (f fakeStatus) Len() int { return 3 }

func (f fakeStatus) Pending() int { return 1 }

func newTestContainer(webhook http.Handler) http.Handler {
	status := fakeStatus{guilds: map[string]map[string][]string{
		"10": {models.PlatformTwitch: {"Rin"}, models.PlatformTrovo: {}},
	}}
	return NewContainer(status, status, status, webhook)
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestGetGuildStreamers(t *testing.T) {
	rec := get(t, newTestContainer(nil), "/guilds/10/streamers")
	require.Equal(t, http.StatusOK, rec.Code)

	var body models.Rest_Guild_Streamers
	require.NoError(t, jsoniter.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "10", body.GuildID)
	assert.Equal(t, []string{"Rin"}, body.Streamers[models.PlatformTwitch])

	rec = get(t, newTestContainer(nil), "/guilds/404/streamers")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetHealth(t *testing.T) {
	rec := get(t, newTestContainer(nil), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body models.Rest_Health
	require.NoError(t, jsoniter.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 3, body.Watches)
	assert.Equal(t, 1, body.PendingWrites)
}

func TestWebhookRoute(t *testing.T) {
	called := false
	webhook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	})
	container := newTestContainer(webhook)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/twitch", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	container.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/webhooks/twitch", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	newTestContainer(nil).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
