// Package race runs the tick loop of a race between two bots.
package race

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/mpapenbr/botrace/log"
	"github.com/mpapenbr/botrace/pkg/bot"
	"github.com/mpapenbr/botrace/pkg/model"
	"github.com/mpapenbr/botrace/pkg/physics"
	"github.com/mpapenbr/botrace/pkg/processing"
	"github.com/mpapenbr/botrace/pkg/utils/broadcast"
	"github.com/mpapenbr/botrace/pkg/view"
)

const (
	DefaultTotalLaps = 5
	DefaultSpeed     = 1.0
	actionLogSize    = 20
	pausePoll        = 10 * time.Millisecond
)

var (
	ErrAlreadyRunning = errors.New("race already running")
	ErrNoTrack        = errors.New("no track")
)

// ActionLogEntry records the speed directives of both bots for a tick
type ActionLogEntry struct {
	Tick    int64        `json:"tick"`
	Player1 model.Action `json:"player1"`
	Player2 model.Action `json:"player2"`
}

// Result summarizes a finished race from the winner's perspective
type Result struct {
	Winner     model.PlayerID `json:"winner"`
	WinnerName string         `json:"winnerName"`
	Ticks      int64          `json:"ticks"`
	Time       string         `json:"time"`     // m:ss
	FuelUsed   int            `json:"fuelUsed"` // liters
	FinalSpeed int            `json:"finalSpeed"`
}

// Race owns the state of a single race.
// Step and Run must not be called concurrently, all other methods are safe
// for concurrent use.
type Race struct {
	id        string
	track     *model.Track
	totalLaps int
	hosts     map[model.PlayerID]*bot.Host
	engine    *physics.Engine
	lookahead int
	maxTicks  int64
	l         *log.Logger
	tracer    trace.Tracer
	ticks     metric.Int64Counter

	stepMu    sync.Mutex // serializes Step and Reset
	mu        sync.RWMutex
	state     *model.RaceState
	actionLog []ActionLogEntry
	processor *processing.Processor

	speed   atomic.Uint64 // math.Float64bits
	paused  atomic.Bool
	running atomic.Bool
	cancel  context.CancelFunc

	source   chan *model.RaceState
	snapshot broadcast.BroadcastServer[*model.RaceState]
	done     chan struct{}
	closed   sync.Once
}

type Option func(r *Race)

func WithID(id string) Option {
	return func(r *Race) {
		r.id = id
	}
}

func WithTotalLaps(laps int) Option {
	return func(r *Race) {
		if laps > 0 {
			r.totalLaps = laps
		}
	}
}

// WithSpeed sets the speed multiplier, see SetSpeed
func WithSpeed(m float64) Option {
	return func(r *Race) {
		r.speed.Store(math.Float64bits(m))
	}
}

// WithMaxTicks stops Run after the given number of ticks (0: unlimited)
func WithMaxTicks(n int64) Option {
	return func(r *Race) {
		r.maxTicks = n
	}
}

func WithLookahead(n int) Option {
	return func(r *Race) {
		r.lookahead = n
	}
}

func WithLogger(l *log.Logger) Option {
	return func(r *Race) {
		r.l = l
	}
}

func WithEngine(e *physics.Engine) Option {
	return func(r *Race) {
		r.engine = e
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(r *Race) {
		r.setupMetrics(mp)
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(r *Race) {
		r.tracer = tp.Tracer("botrace/race")
	}
}

//nolint:whitespace // can't make both editor and linter happy
func New(
	track *model.Track,
	player1, player2 *bot.Host,
	opts ...Option,
) (*Race, error) {
	if track == nil {
		return nil, ErrNoTrack
	}
	if player1 == nil || player2 == nil {
		return nil, bot.ErrBotNotLoaded
	}
	ret := &Race{
		id:        "race",
		track:     track,
		totalLaps: DefaultTotalLaps,
		hosts: map[model.PlayerID]*bot.Host{
			model.Player1: player1,
			model.Player2: player2,
		},
		lookahead: view.DefaultLookahead,
		l:         log.Default().Named("race"),
		tracer:    otel.Tracer("botrace/race"),
		done:      make(chan struct{}),
	}
	ret.speed.Store(math.Float64bits(DefaultSpeed))
	for _, opt := range opts {
		opt(ret)
	}
	if ret.engine == nil {
		ret.engine = physics.NewEngine(physics.WithLogger(ret.l.Named("physics")))
	}
	if ret.ticks == nil {
		ret.setupMetrics(otel.GetMeterProvider())
	}
	ret.source = make(chan *model.RaceState)
	ret.snapshot = broadcast.NewBroadcastServer("state", ret.id, ret.source)
	ret.Reset()
	return ret, nil
}

func (r *Race) setupMetrics(mp metric.MeterProvider) {
	var err error
	if r.ticks, err = mp.Meter("botrace/race").Int64Counter("botrace.race.ticks",
		metric.WithDescription("simulated ticks")); err != nil {
		log.Warn("could not create counter", log.ErrorField(err))
	}
}

func (r *Race) ID() string {
	return r.id
}

func (r *Race) Track() *model.Track {
	return r.track
}

func (r *Race) TotalLaps() int {
	return r.totalLaps
}

// BotName returns the display name of the bot driving for p
func (r *Race) BotName(p model.PlayerID) string {
	if h, ok := r.hosts[p]; ok {
		return h.Name()
	}
	return ""
}

// BotStats returns the decision statistics of the bot driving for p
func (r *Race) BotStats(p model.PlayerID) bot.Stats {
	if h, ok := r.hosts[p]; ok {
		return h.Stats()
	}
	return bot.Stats{}
}

// Reset puts the race back to the start. A running race is stopped first.
func (r *Race) Reset() {
	r.Stop()
	r.stepMu.Lock()
	defer r.stepMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engine.Reset()
	r.state = model.NewRaceState(r.track, r.totalLaps)
	r.actionLog = make([]ActionLogEntry, 0, actionLogSize)
	r.processor = processing.NewProcessor()
	r.paused.Store(false)
}

// State returns a copy of the current race state
func (r *Race) State() *model.RaceState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Clone()
}

// ActionLog returns the latest speed directives, oldest first
func (r *Race) ActionLog() []ActionLogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ActionLogEntry{}, r.actionLog...)
}

// Analysis returns the analysis data computed so far
func (r *Race) Analysis() *model.AnalysisData {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.processor.GetData()
}

func (r *Race) Running() bool {
	return r.running.Load()
}

func (r *Race) Paused() bool {
	return r.paused.Load()
}

// Pause toggles the paused state and returns the new value
func (r *Race) Pause() bool {
	for {
		old := r.paused.Load()
		if r.paused.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

// SetSpeed sets the speed multiplier. 2 runs twice as fast as real time,
// values <= 0 run without any delay between ticks.
func (r *Race) SetSpeed(m float64) {
	r.speed.Store(math.Float64bits(m))
}

func (r *Race) Speed() float64 {
	return math.Float64frombits(r.speed.Load())
}

// Subscribe returns a channel receiving the state after each tick
func (r *Race) Subscribe() <-chan *model.RaceState {
	return r.snapshot.Subscribe()
}

func (r *Race) CancelSubscription(ch <-chan *model.RaceState) {
	r.snapshot.CancelSubscription(ch)
}

// Close stops the race and closes all subscriptions
func (r *Race) Close() {
	r.Stop()
	r.closed.Do(func() {
		close(r.done)
		r.snapshot.Close()
	})
}

// Stop halts a running race. The current tick is completed.
func (r *Race) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Step computes a single tick and returns the new state.
// A finished race is not advanced.
func (r *Race) Step(ctx context.Context) *model.RaceState {
	r.stepMu.Lock()
	defer r.stepMu.Unlock()
	current := r.State()
	if current.Finished() {
		return current
	}
	plans, err := r.decide(ctx, current)
	if err != nil {
		r.l.Warn("could not collect decisions", log.ErrorField(err))
	}
	next := r.engine.Tick(current, plans[model.Player1], plans[model.Player2])

	r.mu.Lock()
	r.state = next
	r.actionLog = append(r.actionLog, ActionLogEntry{
		Tick:    current.Race.CurrentTick,
		Player1: plans[model.Player1].Speed,
		Player2: plans[model.Player2].Speed,
	})
	if len(r.actionLog) > actionLogSize {
		r.actionLog = append(make([]ActionLogEntry, 0, actionLogSize),
			r.actionLog[len(r.actionLog)-actionLogSize:]...)
	}
	r.processor.ProcessState(next)
	r.mu.Unlock()

	if r.ticks != nil {
		r.ticks.Add(ctx, 1, metric.WithAttributes(attribute.String("race", r.id)))
	}
	for _, ev := range r.engine.Events() {
		r.l.Debug("event",
			log.String("type", string(ev.Type)),
			log.String("player", string(ev.Player)),
			log.Int("lap", ev.Lap),
			log.Int64("tick", ev.Tick))
	}
	if next.Finished() {
		res, _ := r.Result()
		r.l.Info("race finished",
			log.String("race", r.id),
			log.String("winner", res.WinnerName),
			log.String("time", res.Time),
			log.Int("fuelUsed", res.FuelUsed))
	}
	r.publish(ctx, next)
	return next.Clone()
}

// decide asks both bots concurrently, each one under its own budget
func (r *Race) decide(
	ctx context.Context,
	s *model.RaceState,
) (map[model.PlayerID]model.ActionPlan, error) {
	plans := make([]model.ActionPlan, len(model.Players))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range model.Players {
		plans[i] = model.IdlePlan()
		v, err := view.Build(s, p, view.WithLookahead(r.lookahead))
		if err != nil {
			return nil, fmt.Errorf("build view %s: %w", p, err)
		}
		g.Go(func() error {
			plans[i] = r.hosts[p].Decide(gctx, v)
			return nil
		})
	}
	err := g.Wait()
	return map[model.PlayerID]model.ActionPlan{
		model.Player1: plans[0],
		model.Player2: plans[1],
	}, err
}

func (r *Race) publish(ctx context.Context, s *model.RaceState) {
	select {
	case r.source <- s.Clone():
	case <-r.done:
	case <-ctx.Done():
	}
}

// Run advances the race until it is finished, stopped, ctx is done or the
// tick limit is reached.
//
//nolint:funlen // tick loop
func (r *Race) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer r.running.Store(false)

	ctx, span := r.tracer.Start(ctx, "race.run",
		trace.WithAttributes(
			attribute.String("race", r.id),
			attribute.String("player1", r.BotName(model.Player1)),
			attribute.String("player2", r.BotName(model.Player2)),
			attribute.Int("totalLaps", r.totalLaps),
		))
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer func() {
		cancel()
		r.mu.Lock()
		r.cancel = nil
		r.mu.Unlock()
	}()

	r.l.Info("race started",
		log.String("race", r.id),
		log.String("player1", r.BotName(model.Player1)),
		log.String("player2", r.BotName(model.Player2)),
		log.Int("laps", r.totalLaps))
	for {
		if ctx.Err() != nil {
			r.l.Info("race stopped", log.String("race", r.id))
			return nil
		}
		if r.paused.Load() {
			r.wait(ctx, pausePoll)
			continue
		}
		s := r.Step(ctx)
		if s.Finished() {
			span.SetAttributes(
				attribute.String("winner", string(s.Race.Winner)),
				attribute.Int64("ticks", s.Race.CurrentTick))
			return nil
		}
		if r.maxTicks > 0 && s.Race.CurrentTick >= r.maxTicks {
			r.l.Info("tick limit reached",
				log.String("race", r.id),
				log.Int64("ticks", s.Race.CurrentTick))
			return nil
		}
		r.wait(ctx, r.tickInterval())
	}
}

// wait sleeps for d, returns false if ctx was done before
func (r *Race) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (r *Race) tickInterval() time.Duration {
	m := r.Speed()
	if m <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / physics.TickRate / m)
}

// Result returns the result of a finished race. ok is false while the race
// is still going on.
func (r *Race) Result() (res Result, ok bool) {
	s := r.State()
	if !s.Finished() {
		return Result{}, false
	}
	winner := s.Car(s.Race.Winner)
	return Result{
		Winner:     s.Race.Winner,
		WinnerName: r.BotName(s.Race.Winner),
		Ticks:      s.Race.CurrentTick,
		Time:       FormatTime(float64(s.Race.CurrentTick) / physics.TickRate),
		FuelUsed:   int(math.Round(winner.MaxFuel - winner.Fuel)),
		FinalSpeed: int(math.Round(winner.Speed)),
	}, true
}

// FormatTime formats seconds as m:ss
func FormatTime(seconds float64) string {
	mins := int(math.Floor(seconds / 60))
	secs := int(math.Floor(math.Mod(seconds, 60)))
	return fmt.Sprintf("%d:%02d", mins, secs)
}
