// Package nats publishes race snapshots and results to NATS.
//
// Subjects:
//
//	botrace.<raceID>.state   every n-th snapshot (model.Envelope with RaceState)
//	botrace.<raceID>.result  once when the race is finished
//
// The latest snapshot of each race is also stored in a JetStream key value
// bucket under state.<raceID>.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mpapenbr/botrace/log"
	"github.com/mpapenbr/botrace/pkg/model"
	"github.com/mpapenbr/botrace/pkg/race"
)

const (
	DefaultBucket = "botrace"
	DefaultEvery  = 6
	subjectPrefix = "botrace"
)

type (
	// Source is a race that can be observed
	Source interface {
		ID() string
		Subscribe() <-chan *model.RaceState
		Result() (race.Result, bool)
	}

	publisher interface {
		Publish(subj string, data []byte) error
	}
	keyValue interface {
		Put(ctx context.Context, key string, value []byte) (uint64, error)
		Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
	}
)

type Publisher struct {
	conn   publisher
	nc     *nats.Conn
	kv     keyValue
	bucket string
	ttl    time.Duration
	every  int64
	l      *log.Logger
	wg     sync.WaitGroup
}

type Option func(p *Publisher)

// WithBucket sets the KV bucket name. An empty name disables the KV store.
func WithBucket(bucket string) Option {
	return func(p *Publisher) {
		p.bucket = bucket
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(p *Publisher) {
		p.ttl = ttl
	}
}

// WithEvery publishes only every n-th snapshot. Values < 1 publish all.
func WithEvery(n int) Option {
	return func(p *Publisher) {
		p.every = int64(max(n, 1))
	}
}

func WithLogger(l *log.Logger) Option {
	return func(p *Publisher) {
		p.l = l
	}
}

// Connect connects to url. Lost connections are reestablished.
func Connect(url string, timeout time.Duration) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("botrace"),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
	)
}

func NewPublisher(nc *nats.Conn, opts ...Option) (*Publisher, error) {
	ret := newPublisher(nc, opts...)
	ret.nc = nc
	if ret.bucket != "" {
		if err := ret.setupKV(); err != nil {
			return nil, err
		}
	}
	return ret, nil
}

func newPublisher(conn publisher, opts ...Option) *Publisher {
	ret := &Publisher{
		conn:   conn,
		bucket: DefaultBucket,
		ttl:    24 * time.Hour,
		every:  DefaultEvery,
		l:      log.Default().Named("nats"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (p *Publisher) setupKV() error {
	js, err := jetstream.New(p.nc)
	if err != nil {
		return err
	}
	p.kv, err = js.CreateOrUpdateKeyValue(context.Background(), jetstream.KeyValueConfig{
		Bucket: p.bucket,
		TTL:    p.ttl,
	})
	if err != nil {
		return fmt.Errorf("create kv bucket %s: %w", p.bucket, err)
	}
	return nil
}

func StateSubject(raceID string) string {
	return fmt.Sprintf("%s.%s.state", subjectPrefix, raceID)
}

func ResultSubject(raceID string) string {
	return fmt.Sprintf("%s.%s.result", subjectPrefix, raceID)
}

func StateKey(raceID string) string {
	return fmt.Sprintf("state.%s", raceID)
}

func encode(mt model.MessageType, raceID string, tick int64, data any) ([]byte, error) {
	return json.Marshal(model.Envelope{Type: mt, RaceID: raceID, Tick: tick, Data: data})
}

// PublishState sends the snapshot and stores it in the KV bucket
func (p *Publisher) PublishState(ctx context.Context, raceID string, s *model.RaceState) error {
	data, err := encode(model.MTState, raceID, s.Race.CurrentTick, s)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(StateSubject(raceID), data); err != nil {
		return err
	}
	if p.kv != nil {
		rev, err := p.kv.Put(ctx, StateKey(raceID), data)
		p.l.Debug("state put",
			log.String("key", StateKey(raceID)),
			log.Int("dataLen", len(data)),
			log.ErrorField(err), log.Uint64("rev", rev))
		return err
	}
	return nil
}

func (p *Publisher) PublishResult(raceID string, tick int64, result any) error {
	data, err := encode(model.MTResult, raceID, tick, result)
	if err != nil {
		return err
	}
	return p.conn.Publish(ResultSubject(raceID), data)
}

// Track publishes the snapshots of src until its subscription is closed.
// The KV entry is removed afterwards.
func (p *Publisher) Track(ctx context.Context, src Source) {
	ch := src.Subscribe()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.track(ctx, src, ch)
	}()
}

func (p *Publisher) track(ctx context.Context, src Source, ch <-chan *model.RaceState) {
	raceID := src.ID()
	l := p.l.With(log.String("raceId", raceID))
	var last *model.RaceState
	resultSent := false
	for s := range ch {
		last = s
		if s.Finished() || s.Race.CurrentTick%p.every == 0 {
			if err := p.PublishState(ctx, raceID, s); err != nil {
				l.Warn("could not publish state", log.ErrorField(err))
			}
		}
		if s.Finished() && !resultSent {
			resultSent = true
			var res any = s.Race
			if v, ok := src.Result(); ok {
				res = v
			}
			if err := p.PublishResult(raceID, s.Race.CurrentTick, res); err != nil {
				l.Warn("could not publish result", log.ErrorField(err))
			}
		}
	}
	if p.kv != nil {
		if err := p.kv.Delete(context.Background(), StateKey(raceID)); err != nil {
			l.Debug("could not delete state", log.ErrorField(err))
		}
	}
	if last != nil {
		l.Debug("race subscription closed", log.Int64("lastTick", last.Race.CurrentTick))
	}
}

// Wait blocks until all tracked races are done
func (p *Publisher) Wait() {
	p.wg.Wait()
}

func (p *Publisher) Close() {
	if p.nc != nil {
		if err := p.nc.Drain(); err != nil {
			p.l.Warn("drain failed", log.ErrorField(err))
		}
	}
}
