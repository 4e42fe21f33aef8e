package endpoints

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mpapenbr/botrace/log"
	"github.com/mpapenbr/botrace/pkg/model"
	"github.com/mpapenbr/botrace/pkg/render"
)

const (
	writeWait  = 5 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// stream sends the race as websocket messages.
// Query parameters:
//
//	mode   frame (default) sends render frames, state sends race states
//	every  only every n-th tick is sent (default 1)
//
// The last state of a finished race is always sent.
//
//nolint:funlen,cyclop // message loop
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "frame"
	}
	if mode != "frame" && mode != "state" {
		writeError(w, http.StatusBadRequest, errInvalidMode)
		return
	}
	every := int64(1)
	if v := r.URL.Query().Get("every"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, errInvalidEvery)
			return
		}
		every = n
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.l.Debug("upgrade failed", log.ErrorField(err))
		return
	}
	defer conn.Close()

	rc := e.Race
	ch := rc.Subscribe()
	defer rc.CancelSubscription(ch)
	l := s.l.With(log.String("race", rc.ID()), log.String("remote", r.RemoteAddr))
	l.Debug("stream started", log.String("mode", mode), log.Int64("every", every))

	// the reader detects closed connections, incoming messages are ignored
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(st *model.RaceState) error {
		env := model.Envelope{RaceID: rc.ID(), Tick: st.Race.CurrentTick}
		if mode == "state" {
			env.Type = model.MTState
			env.Data = st
		} else {
			env.Type = model.MTFrame
			env.Data = render.Project(st)
		}
		//nolint:errcheck // write errors are reported by WriteJSON
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(env)
	}
	initial := rc.State()
	if err := send(initial); err != nil {
		return
	}
	if initial.Finished() {
		//nolint:errcheck // connection is closed anyway
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "race finished"),
			time.Now().Add(writeWait))
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			l.Debug("stream closed by client")
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case st, ok := <-ch:
			if !ok {
				//nolint:errcheck // connection is closed anyway
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "race closed"),
					time.Now().Add(writeWait))
				return
			}
			if !st.Finished() && st.Race.CurrentTick%every != 0 {
				continue
			}
			if err := send(st); err != nil {
				l.Debug("stream write failed", log.ErrorField(err))
				return
			}
			if st.Finished() {
				//nolint:errcheck // connection is closed anyway
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "race finished"),
					time.Now().Add(writeWait))
				return
			}
		}
	}
}
