package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soa-checker/backend/internal/compliance"
	"github.com/soa-checker/backend/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialTestServer(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(env.e)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	var hello WSMessage
	require.NoError(t, ws.ReadJSON(&hello))
	require.Equal(t, MsgTypeConnected, hello.Type)
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg WSMessage
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func TestWebSocket_PingAndCheck(t *testing.T) {
	env := newTestEnv(t)
	ws := dialTestServer(t, env)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypePing, ID: "p1"}))
	pong := readMessage(t, ws)
	assert.Equal(t, MsgTypePong, pong.Type)
	assert.Equal(t, "p1", pong.ID)

	payload := mustJSON(map[string]interface{}{
		"device": mosKey,
		"values": map[string]interface{}{"tmaxfrac": 0.0, "vhigh_ds_on": 1.9},
	})
	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypeCheck, ID: "c1", Payload: payload}))

	msg := readMessage(t, ws)
	require.Equal(t, MsgTypeResult, msg.Type)
	assert.Equal(t, "c1", msg.ID)
	var res compliance.Result
	require.NoError(t, json.Unmarshal(msg.Payload, &res))
	assert.False(t, res.Compliant)
	assert.Len(t, res.Violations, 1)
}

func TestWebSocket_Errors(t *testing.T) {
	env := newTestEnv(t)
	ws := dialTestServer(t, env)

	tests := []struct {
		name     string
		msg      WSMessage
		wantCode string
	}{
		{"unknown type", WSMessage{Type: "upload"}, "INVALID_TYPE"},
		{"bad payload", WSMessage{Type: MsgTypeCheck, Payload: json.RawMessage(`[1]`)}, "BAD_REQUEST"},
		{"missing device", WSMessage{Type: MsgTypeCheck, Payload: mustJSON(map[string]interface{}{
			"values": map[string]interface{}{"tmaxfrac": 0.1},
		})}, "VALIDATION_ERROR"},
		{"unknown device", WSMessage{Type: MsgTypeCheck, Payload: mustJSON(map[string]interface{}{
			"device": "bjt", "values": map[string]interface{}{"tmaxfrac": 0.1},
		})}, "UNKNOWN_DEVICE"},
		{"watch without id", WSMessage{Type: MsgTypeJobWatch, Payload: json.RawMessage(`{}`)}, "VALIDATION_ERROR"},
		{"watch unknown job", WSMessage{Type: MsgTypeJobWatch, Payload: mustJSON(JobWatchPayload{JobID: "nope"})}, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, ws.WriteJSON(tt.msg))
			msg := readMessage(t, ws)
			require.Equal(t, MsgTypeError, msg.Type)
			var e WSErrorResponse
			require.NoError(t, json.Unmarshal(msg.Payload, &e))
			assert.Equal(t, tt.wantCode, e.Code)
		})
	}
}

func TestWebSocket_JobWatch(t *testing.T) {
	env := newTestEnv(t)
	ws := dialTestServer(t, env)

	job := env.deps.Jobs.StartJob(mosKey, "", []compliance.Scenario{
		{"tmaxfrac": 0.1, "vhigh_ds_on": 1.0},
	})

	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypeJobWatch, ID: "w1", Payload: mustJSON(JobWatchPayload{JobID: job.ID})}))

	var final jobs.Job
	for {
		msg := readMessage(t, ws)
		require.Contains(t, []string{MsgTypeProgress, MsgTypeComplete}, msg.Type)
		assert.Equal(t, "w1", msg.ID)
		if msg.Type == MsgTypeComplete {
			require.NoError(t, json.Unmarshal(msg.Payload, &final))
			break
		}
	}
	assert.Equal(t, job.ID, final.ID)
	assert.Equal(t, jobs.StatusComplete, final.Status)
}
