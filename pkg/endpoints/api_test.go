//nolint:thelper,whitespace,lll,funlen,gocritic,dupl // ok for tests
package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/botrace/pkg/model"
	"github.com/mpapenbr/botrace/pkg/race"
	"github.com/mpapenbr/botrace/pkg/render"
)

type recordingTracker struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingTracker) Track(ctx context.Context, rc *race.Race) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, rc.ID())
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewServer(append([]Option{
		WithBaseContext(ctx),
		WithBotTimeout(time.Second),
		WithMaxTicks(60 * 60 * 10),
	}, opts...)...)
	mux := http.NewServeMux()
	s.Register(mux)
	RegisterHealth(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		s.Registry().Clear()
	})
	return s, srv
}

func doRequest(t *testing.T, method, url, token string, body any) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	var ret T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ret))
	return ret
}

func createRace(t *testing.T, srv *httptest.Server, req CreateRaceRequest) RaceInfo {
	resp := doRequest(t, http.MethodPost, srv.URL+"/api/races", "", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[RaceInfo](t, resp)
}

func TestCreateRace(t *testing.T) {
	tracker := &recordingTracker{}
	_, srv := newTestServer(t, WithTracker(tracker))

	info := createRace(t, srv, CreateRaceRequest{
		Bot1: "fuel", Bot2: "builtin:simple", Laps: 1, Seed: 42, Difficulty: "none", Speed: 0,
	})
	assert.NotEmpty(t, info.ID)
	assert.Equal(t, 1, info.TotalLaps)
	assert.Equal(t, "generated-42", info.Track)
	assert.Equal(t, "fuel", info.Bots[model.Player1].Name)
	assert.Equal(t, "simple", info.Bots[model.Player2].Name)
	assert.Equal(t, []string{info.ID}, tracker.ids)

	assert.Eventually(t, func() bool {
		got := decode[RaceInfo](t, doRequest(t, http.MethodGet, srv.URL+"/api/races/"+info.ID, "", nil))
		return got.Result != nil && got.Done != nil
	}, 10*time.Second, 20*time.Millisecond)

	list := decode[[]RaceInfo](t, doRequest(t, http.MethodGet, srv.URL+"/api/races", "", nil))
	require.Len(t, list, 1)
	assert.Equal(t, info.ID, list[0].ID)
	assert.False(t, list[0].Running)

	st := decode[StateResponse](t, doRequest(t, http.MethodGet, srv.URL+"/api/races/"+info.ID+"/state", "", nil))
	assert.NotEmpty(t, st.State.Race.Winner)
	assert.NotEmpty(t, st.ActionLog)

	frame := decode[render.Frame](t, doRequest(t, http.MethodGet, srv.URL+"/api/races/"+info.ID+"/frame?features=false", "", nil))
	assert.Len(t, frame.Cars, 2)
	assert.Empty(t, frame.Features)
	assert.Equal(t, st.State.Race.Winner, frame.Winner)

	analysis := decode[model.AnalysisData](t, doRequest(t, http.MethodGet, srv.URL+"/api/races/"+info.ID+"/analysis", "", nil))
	assert.Len(t, analysis.RaceOrder, 2)
	assert.Equal(t, st.State.Race.CurrentTick, analysis.CurrentTick)
}

func TestCreateRace_BadRequests(t *testing.T) {
	_, srv := newTestServer(t)
	tests := []struct {
		name string
		body string
	}{
		{name: "no json", body: "laps=3"},
		{name: "laps", body: `{"laps": 0}`},
		{name: "too many laps", body: `{"laps": 1000}`},
		{name: "difficulty", body: `{"difficulty": "insane"}`},
		{name: "unknown bot", body: `{"bot1": "nobody"}`},
		{name: "exec is disabled", body: `{"bot2": "exec:/bin/true"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/races", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, decode[errorResponse](t, resp).Error)
		})
	}
}

func TestNotFound(t *testing.T) {
	_, srv := newTestServer(t)
	for _, path := range []string{"/api/races/x", "/api/races/x/state", "/api/races/x/frame", "/api/races/x/analysis", "/api/races/x/stream"} {
		resp := doRequest(t, http.MethodGet, srv.URL+path, "", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
	assert.Equal(t, http.StatusNotFound, doRequest(t, http.MethodDelete, srv.URL+"/api/races/x", "", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, doRequest(t, http.MethodPost, srv.URL+"/api/races/x/pause", "", nil).StatusCode)
}

func TestAdminToken(t *testing.T) {
	_, srv := newTestServer(t, WithAdminToken("secret"))
	req := CreateRaceRequest{Bot1: "idle", Bot2: "idle", Laps: 1, Difficulty: "none", Paused: true}

	assert.Equal(t, http.StatusUnauthorized, doRequest(t, http.MethodPost, srv.URL+"/api/races", "", req).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, doRequest(t, http.MethodPost, srv.URL+"/api/races", "wrong", req).StatusCode)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/races", "secret", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	info := decode[RaceInfo](t, resp)
	assert.True(t, info.Paused)

	// read access needs no token
	assert.Equal(t, http.StatusOK, doRequest(t, http.MethodGet, srv.URL+"/api/races/"+info.ID, "", nil).StatusCode)

	// api-token header is accepted as well
	r, err := http.NewRequestWithContext(context.Background(), http.MethodPost, srv.URL+"/api/races/"+info.ID+"/pause", nil)
	require.NoError(t, err)
	r.Header.Set(tokenHeader, "secret")
	presp, err := http.DefaultClient.Do(r)
	require.NoError(t, err)
	defer presp.Body.Close()
	assert.Equal(t, http.StatusOK, presp.StatusCode)
	assert.False(t, decode[RaceInfo](t, presp).Paused)

	assert.Equal(t, http.StatusUnauthorized, doRequest(t, http.MethodDelete, srv.URL+"/api/races/"+info.ID, "", nil).StatusCode)
	assert.Equal(t, http.StatusNoContent, doRequest(t, http.MethodDelete, srv.URL+"/api/races/"+info.ID, "secret", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, doRequest(t, http.MethodGet, srv.URL+"/api/races/"+info.ID, "", nil).StatusCode)
}

func TestListBots(t *testing.T) {
	_, srv := newTestServer(t)
	got := decode[[]string](t, doRequest(t, http.MethodGet, srv.URL+"/api/bots", "", nil))
	assert.Equal(t, []string{"fuel", "idle", "simple"}, got)
}

func TestHealth(t *testing.T) {
	_, srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/grpc.health.v1.Health/Check", "application/json",
		strings.NewReader(`{"service":"`+ServiceName+`"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"status": "SERVING"}, decode[map[string]string](t, resp))
}
