package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchparty.live/model"
)

func doRequest(a *API, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestGetState_MissingRoomParam(t *testing.T) {
	a := newTestAPI(t)
	rec := doRequest(a, http.MethodGet, "/state", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec), "error")
}

func TestGetState_NullWhenNeverWritten(t *testing.T) {
	a := newTestAPI(t)
	rec := doRequest(a, http.MethodGet, "/state?room=r1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body, "state")
	assert.Nil(t, body["state"])
}

func TestUpdate_MissingRoomParam(t *testing.T) {
	a := newTestAPI(t)
	rec := doRequest(a, http.MethodPost, "/update", `{"clientId":"x","state":{"playing":true,"currentTime":0,"playbackRate":1,"lastHostTs":1}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdate_MissingState(t *testing.T) {
	a := newTestAPI(t)
	rec := doRequest(a, http.MethodPost, "/update?room=r1", `{"clientId":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	stored, err := a.storage.GetState("r1")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestUpdate_StoresAndServesState(t *testing.T) {
	a := newTestAPI(t)

	rec := doRequest(a, http.MethodPost, "/update?room=r1",
		`{"clientId":"poller-1","state":{"playing":false,"currentTime":0,"playbackRate":1,"lastHostTs":2000}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["success"])

	rec = doRequest(a, http.MethodGet, "/state?room=r1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	state := decodeBody(t, rec)["state"].(map[string]interface{})
	assert.Equal(t, false, state["playing"])
	assert.Equal(t, float64(2000), state["lastHostTs"])
}

// The polling path is not role-gated: any clientId overwrites the store
// and the broadcast reaches every member of the room, host included.
func TestUpdate_BroadcastsToWholeRoom(t *testing.T) {
	a := newTestAPI(t)
	host := newSession(a, "sess-h", nil)
	viewer := newSession(a, "sess-v", nil)
	join(t, host, "r1", "h1", "host", "Host")
	join(t, viewer, "r1", "v1", "viewer", "Viewer")
	nextMessage(t, host) // viewer's join notification

	// the room already has host-written state; the polling client overwrites it
	require.NoError(t, a.storage.SetState("r1", &model.PlaybackState{Playing: true, CurrentTime: 50, PlaybackRate: 1, LastHostTs: 1000}))

	rec := doRequest(a, http.MethodPost, "/update?room=r1",
		`{"clientId":"poller-123","state":{"playing":false,"currentTime":0,"playbackRate":1,"lastHostTs":2000}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, s := range []*session{host, viewer} {
		event := nextMessage(t, s)
		assert.Equal(t, "state", event["type"])
		from := event["from"].(map[string]interface{})
		assert.Equal(t, "poller-123", from["id"])
		assert.Equal(t, "poller-1", from["nickname"]) // 8-rune prefix
		state := event["state"].(map[string]interface{})
		assert.Equal(t, false, state["playing"])
	}

	stored, err := a.storage.GetState("r1")
	require.NoError(t, err)
	assert.Equal(t, float64(2000), stored.LastHostTs)
	assert.False(t, stored.Playing)
}

func TestPing(t *testing.T) {
	a := newTestAPI(t)
	rec := doRequest(a, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alive")
}

func TestCORSHeaders(t *testing.T) {
	a := newTestAPI(t)
	rec := doRequest(a, http.MethodGet, "/state?room=r1", "")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestStats(t *testing.T) {
	a := newTestAPI(t)
	s1 := newSession(a, "sess-1", nil)
	s2 := newSession(a, "sess-2", nil)
	join(t, s1, "r1", "u1", "viewer", "A")
	join(t, s2, "r2", "u2", "viewer", "B")

	rec := doRequest(a, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["rooms"])
	assert.Equal(t, float64(2), body["clients"])
}
