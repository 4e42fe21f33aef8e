//nolint:thelper,whitespace,lll,funlen,gocritic,dupl // ok for tests
package nats

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/botrace/pkg/model"
	"github.com/mpapenbr/botrace/pkg/race"
)

type message struct {
	subject string
	env     model.Envelope
}

type fakeConn struct {
	mu   sync.Mutex
	msgs []message
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	var env model.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, message{subject: subj, env: env})
	return nil
}

type fakeKV struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func (f *fakeKV) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return uint64(len(f.data)), nil
}

func (f *fakeKV) Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	f.deleted = append(f.deleted, key)
	return nil
}

type fakeSource struct {
	ch     chan *model.RaceState
	result race.Result
	done   bool
}

func (f *fakeSource) ID() string                         { return "r1" }
func (f *fakeSource) Subscribe() <-chan *model.RaceState { return f.ch }
func (f *fakeSource) Result() (race.Result, bool)        { return f.result, f.done }

func state(tick int64, winner model.PlayerID) *model.RaceState {
	s := model.NewRaceState(nil, 1)
	s.Race.CurrentTick = tick
	s.Race.Winner = winner
	return s
}

func TestSubjects(t *testing.T) {
	assert.Equal(t, "botrace.abc.state", StateSubject("abc"))
	assert.Equal(t, "botrace.abc.result", ResultSubject("abc"))
	assert.Equal(t, "state.abc", StateKey("abc"))
}

func TestPublishState(t *testing.T) {
	conn := &fakeConn{}
	kv := &fakeKV{data: map[string][]byte{}}
	p := newPublisher(conn)
	p.kv = kv

	require.NoError(t, p.PublishState(context.Background(), "abc", state(7, "")))
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "botrace.abc.state", conn.msgs[0].subject)
	assert.Equal(t, model.MTState, conn.msgs[0].env.Type)
	assert.Equal(t, "abc", conn.msgs[0].env.RaceID)
	assert.Equal(t, int64(7), conn.msgs[0].env.Tick)
	assert.Contains(t, kv.data, "state.abc")
}

func TestTrack(t *testing.T) {
	conn := &fakeConn{}
	kv := &fakeKV{data: map[string][]byte{}}
	p := newPublisher(conn, WithEvery(2))
	p.kv = kv

	src := &fakeSource{
		ch:     make(chan *model.RaceState),
		result: race.Result{Winner: model.Player2, WinnerName: "fuel", Ticks: 5},
		done:   true,
	}
	p.Track(context.Background(), src)
	for tick := int64(1); tick <= 4; tick++ {
		src.ch <- state(tick, "")
	}
	src.ch <- state(5, model.Player2)
	close(src.ch)
	p.Wait()

	subjects := make([]string, 0, len(conn.msgs))
	ticks := make([]int64, 0, len(conn.msgs))
	for _, m := range conn.msgs {
		subjects = append(subjects, m.subject)
		ticks = append(ticks, m.env.Tick)
	}
	assert.Equal(t, []string{
		"botrace.r1.state", "botrace.r1.state", "botrace.r1.state", "botrace.r1.result",
	}, subjects)
	assert.Equal(t, []int64{2, 4, 5, 5}, ticks)

	res, ok := conn.msgs[3].env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "fuel", res["winnerName"])

	assert.Equal(t, []string{"state.r1"}, kv.deleted)
	assert.Empty(t, kv.data)
}
