//nolint:thelper,whitespace,lll,funlen,gocritic,dupl // ok for tests
package endpoints

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/botrace/pkg/model"
)

type rawEnvelope struct {
	Type   model.MessageType `json:"type"`
	RaceID string            `json:"raceId"`
	Tick   int64             `json:"tick"`
	Data   json.RawMessage   `json:"data"`
}

func dial(t *testing.T, url string) *websocket.Conn {
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	if resp != nil {
		resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestStream(t *testing.T) {
	_, srv := newTestServer(t)
	info := createRace(t, srv, CreateRaceRequest{Bot1: "simple", Bot2: "fuel", Laps: 1, Seed: 3, Difficulty: "none", Speed: 0, Paused: true})

	conn := dial(t, srv.URL+"/api/races/"+info.ID+"/stream?mode=state&every=100")
	var first rawEnvelope
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, model.MTState, first.Type)
	assert.Equal(t, info.ID, first.RaceID)
	assert.Equal(t, int64(0), first.Tick)

	// resume the race
	require.Equal(t, http.StatusOK, doRequest(t, http.MethodPost, srv.URL+"/api/races/"+info.ID+"/pause", "", nil).StatusCode)

	var last rawEnvelope
	count := 0
	for {
		var env rawEnvelope
		if err := conn.ReadJSON(&env); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
			break
		}
		last = env
		count++
	}
	require.Positive(t, count)
	var s model.RaceState
	require.NoError(t, json.Unmarshal(last.Data, &s))
	assert.NotEmpty(t, s.Race.Winner)
	assert.Equal(t, s.Race.CurrentTick, last.Tick)
}

func TestStream_Frames(t *testing.T) {
	_, srv := newTestServer(t)
	info := createRace(t, srv, CreateRaceRequest{Bot1: "idle", Bot2: "idle", Laps: 1, Difficulty: "none", Paused: true})

	conn := dial(t, srv.URL+"/api/races/"+info.ID+"/stream")
	var env rawEnvelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, model.MTFrame, env.Type)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &frame))
	assert.Contains(t, frame, "cars")
	assert.Contains(t, frame, "leaderboard")
}

func TestStream_BadParams(t *testing.T) {
	_, srv := newTestServer(t)
	info := createRace(t, srv, CreateRaceRequest{Bot1: "idle", Bot2: "idle", Laps: 1, Difficulty: "none", Paused: true})
	for _, q := range []string{"mode=video", "every=0", "every=x"} {
		resp := doRequest(t, http.MethodGet, srv.URL+"/api/races/"+info.ID+"/stream?"+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}
