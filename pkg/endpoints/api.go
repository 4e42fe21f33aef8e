// Package endpoints provides the HTTP API of the race server.
package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mpapenbr/botrace/log"
	"github.com/mpapenbr/botrace/pkg/bot"
	"github.com/mpapenbr/botrace/pkg/bot/loader"
	"github.com/mpapenbr/botrace/pkg/model"
	"github.com/mpapenbr/botrace/pkg/race"
	"github.com/mpapenbr/botrace/pkg/render"
	"github.com/mpapenbr/botrace/pkg/track"
	"github.com/mpapenbr/botrace/pkg/utils"
	"github.com/mpapenbr/botrace/pkg/utils/cache"
)

const (
	maxLaps        = 100
	maxRequestSize = 64 * 1024
)

type (
	// Tracker observes races, used to publish them to external systems
	Tracker interface {
		Track(ctx context.Context, r *race.Race)
	}

	// CreateRaceRequest is the body of POST /api/races
	CreateRaceRequest struct {
		Bot1         string  `json:"bot1"`
		Bot2         string  `json:"bot2"`
		Laps         int     `json:"laps"`
		Seed         int64   `json:"seed"`
		Difficulty   string  `json:"difficulty"`
		FuelStations int     `json:"fuelStations"`
		Speed        float64 `json:"speed"`
		Paused       bool    `json:"paused"`
	}

	BotInfo struct {
		Name  string    `json:"name"`
		Stats bot.Stats `json:"stats"`
	}

	RaceInfo struct {
		ID        string                     `json:"id"`
		Created   time.Time                  `json:"created"`
		Done      *time.Time                 `json:"done,omitempty"`
		Running   bool                       `json:"running"`
		Paused    bool                       `json:"paused"`
		TotalLaps int                        `json:"totalLaps"`
		Track     string                     `json:"track"`
		Tick      int64                      `json:"tick"`
		Bots      map[model.PlayerID]BotInfo `json:"bots"`
		Result    *race.Result               `json:"result,omitempty"`
	}

	StateResponse struct {
		ID        string                `json:"id"`
		State     *model.RaceState      `json:"state"`
		ActionLog []race.ActionLogEntry `json:"actionLog"`
	}

	errorResponse struct {
		Error string `json:"error"`
	}
)

type Server struct {
	registry   *utils.RaceRegistry
	loader     *loader.Loader
	tracks     cache.Cache[track.Key, model.Track]
	tracker    Tracker
	adminToken string
	botTimeout time.Duration
	maxTicks   int64
	baseCtx    context.Context
	l          *log.Logger
}

type Option func(s *Server)

func WithRegistry(r *utils.RaceRegistry) Option {
	return func(s *Server) {
		s.registry = r
	}
}

func WithLoader(l *loader.Loader) Option {
	return func(s *Server) {
		s.loader = l
	}
}

func WithTrackCache(c cache.Cache[track.Key, model.Track]) Option {
	return func(s *Server) {
		s.tracks = c
	}
}

func WithTracker(t Tracker) Option {
	return func(s *Server) {
		s.tracker = t
	}
}

// WithAdminToken protects the mutating endpoints. Empty disables the check.
func WithAdminToken(token string) Option {
	return func(s *Server) {
		s.adminToken = token
	}
}

func WithBotTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.botTimeout = d
	}
}

func WithMaxTicks(n int64) Option {
	return func(s *Server) {
		s.maxTicks = n
	}
}

// WithBaseContext is used for the race loops. Cancelling it stops all races.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Server) {
		s.baseCtx = ctx
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.l = l
	}
}

func NewServer(opts ...Option) *Server {
	ret := &Server{
		botTimeout: bot.DefaultTimeout,
		baseCtx:    context.Background(),
		l:          log.Default().Named("api"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.registry == nil {
		ret.registry = utils.NewRaceRegistry()
	}
	if ret.loader == nil {
		ret.loader = loader.New(loader.WithAllowExec(false))
	}
	if ret.tracks == nil {
		ret.tracks = track.NewCache(time.Hour)
	}
	return ret
}

func (s *Server) Registry() *utils.RaceRegistry {
	return s.registry
}

// Register adds the API routes to mux
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/races", s.listRaces)
	mux.Handle("POST /api/races", s.requireAdmin(http.HandlerFunc(s.createRace)))
	mux.HandleFunc("GET /api/races/{id}", s.getRace)
	mux.HandleFunc("GET /api/races/{id}/state", s.getState)
	mux.HandleFunc("GET /api/races/{id}/frame", s.getFrame)
	mux.HandleFunc("GET /api/races/{id}/analysis", s.getAnalysis)
	mux.HandleFunc("GET /api/races/{id}/stream", s.stream)
	mux.Handle("POST /api/races/{id}/pause", s.requireAdmin(http.HandlerFunc(s.pauseRace)))
	mux.Handle("DELETE /api/races/{id}", s.requireAdmin(http.HandlerFunc(s.deleteRace)))
	mux.HandleFunc("GET /api/bots", s.listBots)
}

func (s *Server) listRaces(w http.ResponseWriter, r *http.Request) {
	entries := s.registry.GetRaces()
	ret := make([]RaceInfo, 0, len(entries))
	for _, e := range entries {
		ret = append(ret, raceInfo(e))
	}
	writeJSON(w, http.StatusOK, ret)
}

func (s *Server) listBots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, bot.BuiltinNames())
}

//nolint:funlen // request validation
func (s *Server) createRace(w http.ResponseWriter, r *http.Request) {
	req := CreateRaceRequest{
		Bot1:         "simple",
		Bot2:         "simple",
		Laps:         race.DefaultTotalLaps,
		Difficulty:   string(track.DifficultyMedium),
		FuelStations: 1,
		Speed:        race.DefaultSpeed,
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestSize)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request: %w", err))
		return
	}
	if req.Laps < 1 || req.Laps > maxLaps {
		writeError(w, http.StatusBadRequest, fmt.Errorf("laps must be in 1..%d", maxLaps))
		return
	}
	difficulty, err := track.ParseDifficulty(req.Difficulty)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Seed == 0 {
		req.Seed = time.Now().UnixNano() % 1_000_000
	}
	tr, err := s.tracks.Get(r.Context(), track.Key{
		Seed:         req.Seed,
		Difficulty:   difficulty,
		FuelStations: req.FuelStations,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	hosts := make([]*bot.Host, 0, 2)
	closeHosts := func() {
		for _, h := range hosts {
			if err := bot.Close(h.Bot()); err != nil {
				s.l.Warn("could not close bot", log.String("bot", h.Name()), log.ErrorField(err))
			}
		}
	}
	for _, spec := range []string{req.Bot1, req.Bot2} {
		h, err := s.loader.ResolveHost(r.Context(), spec, bot.WithTimeout(s.botTimeout))
		if err != nil {
			closeHosts()
			writeError(w, http.StatusBadRequest, err)
			return
		}
		hosts = append(hosts, h)
	}

	id := utils.NewRaceID()
	rc, err := race.New(tr, hosts[0], hosts[1],
		race.WithID(id),
		race.WithTotalLaps(req.Laps),
		race.WithSpeed(req.Speed),
		race.WithMaxTicks(s.maxTicks),
		race.WithLogger(s.l.Named("race")))
	if err != nil {
		closeHosts()
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.registry.Add(rc); err != nil {
		closeHosts()
		writeError(w, http.StatusConflict, err)
		return
	}
	if req.Paused {
		rc.Pause()
	}
	if s.tracker != nil {
		s.tracker.Track(s.baseCtx, rc)
	}
	go func() {
		defer closeHosts()
		if err := rc.Run(s.baseCtx); err != nil {
			s.l.Warn("race loop failed", log.String("race", id), log.ErrorField(err))
		}
		s.registry.MarkDone(id)
	}()
	s.l.Info("race created",
		log.String("race", id),
		log.String("bot1", req.Bot1),
		log.String("bot2", req.Bot2),
		log.Int64("seed", req.Seed))

	e, err := s.registry.Get(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, raceInfo(e))
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*utils.RaceEntry, bool) {
	e, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, utils.ErrRaceNotFound) {
			writeError(w, http.StatusNotFound, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return nil, false
	}
	return e, true
}

func (s *Server) getRace(w http.ResponseWriter, r *http.Request) {
	if e, ok := s.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, raceInfo(e))
	}
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	if e, ok := s.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, StateResponse{
			ID:        e.Race.ID(),
			State:     e.Race.State(),
			ActionLog: e.Race.ActionLog(),
		})
	}
}

func (s *Server) getFrame(w http.ResponseWriter, r *http.Request) {
	if e, ok := s.lookup(w, r); ok {
		features := r.URL.Query().Get("features") != "false"
		writeJSON(w, http.StatusOK, render.Project(e.Race.State(), render.WithFeatures(features)))
	}
}

func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	if e, ok := s.lookup(w, r); ok {
		writeJSON(w, http.StatusOK, e.Race.Analysis())
	}
}

func (s *Server) pauseRace(w http.ResponseWriter, r *http.Request) {
	if e, ok := s.lookup(w, r); ok {
		e.Race.Pause()
		writeJSON(w, http.StatusOK, raceInfo(e))
	}
}

func (s *Server) deleteRace(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.registry.Remove(id); err != nil {
		if errors.Is(err, utils.ErrRaceNotFound) {
			writeError(w, http.StatusNotFound, err)
		} else {
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	s.l.Info("race removed", log.String("race", id))
	w.WriteHeader(http.StatusNoContent)
}

func raceInfo(e *utils.RaceEntry) RaceInfo {
	rc := e.Race
	ret := RaceInfo{
		ID:        rc.ID(),
		Created:   e.Created,
		Running:   rc.Running(),
		Paused:    rc.Paused(),
		TotalLaps: rc.TotalLaps(),
		Track:     rc.Track().Name,
		Tick:      rc.State().Race.CurrentTick,
		Bots:      map[model.PlayerID]BotInfo{},
	}
	if !e.Done.IsZero() {
		done := e.Done
		ret.Done = &done
	}
	for _, p := range model.Players {
		ret.Bots[p] = BotInfo{Name: rc.BotName(p), Stats: rc.BotStats(p)}
	}
	if res, ok := rc.Result(); ok {
		ret.Result = &res
	}
	return ret
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("could not write response", log.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
