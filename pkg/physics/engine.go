package physics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/botrace/log"
	"github.com/mpapenbr/botrace/pkg/model"
)

// Engine advances a RaceState by one tick at a time.
// An Engine is not safe for concurrent use. It owns the tick counter used
// for the collision and boost pad cooldowns, so one engine serves one race.
type Engine struct {
	tickCount  int64
	logger     *log.Logger
	events     []Event
	collisions metric.Int64Counter
}

type Option func(e *Engine)

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) {
		e.collisions = newCollisionCounter(mp)
	}
}

func NewEngine(opts ...Option) *Engine {
	ret := &Engine{
		logger: log.Default().Named("physics"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.collisions == nil {
		ret.collisions = newCollisionCounter(otel.GetMeterProvider())
	}
	return ret
}

func newCollisionCounter(mp metric.MeterProvider) metric.Int64Counter {
	c, err := mp.Meter("botrace/physics").Int64Counter(
		"botrace.physics.collisions",
		metric.WithDescription("obstacle collisions"))
	if err != nil {
		log.Warn("could not create collision counter", log.ErrorField(err))
	}
	return c
}

// TickCount returns the number of ticks processed since creation or Reset
func (e *Engine) TickCount() int64 {
	return e.tickCount
}

// Reset prepares the engine for a new race
func (e *Engine) Reset() {
	e.tickCount = 0
	e.events = nil
}

// Events returns the events produced by the latest call to Tick
func (e *Engine) Events() []Event {
	return append([]Event{}, e.events...)
}

// Tick computes the state following state when player1 executes p1 and
// player2 executes p2. The given state is not modified.
// Once a winner is recorded the state is frozen and returned as a copy.
func (e *Engine) Tick(state *model.RaceState, p1, p2 model.ActionPlan) *model.RaceState {
	next := state.Clone()
	e.events = nil
	if next.Finished() {
		return next
	}
	e.tickCount++
	next.Race.CurrentTick++

	plans := map[model.PlayerID]model.ActionPlan{
		model.Player1: p1.Normalize(),
		model.Player2: p2.Normalize(),
	}
	// player2 sees the already updated player1, matching sequential processing
	for _, p := range model.Players {
		e.updateCar(next, p, plans[p])
	}
	resolveCarCollision(next)
	updateStandings(next)
	e.checkWinner(next)
	return next
}

func (e *Engine) updateCar(s *model.RaceState, p model.PlayerID, plan model.ActionPlan) {
	car := s.Car(p)
	opponent := s.Car(p.Opponent())
	car.LastAction = plan.Speed
	car.IsRefueling = false

	updateDrafting(car, opponent, s.Track.LapDistance)
	updateLaneChange(car, plan.Lane)
	updateJump(car, plan)

	updateSpeed(car, plan.Speed)
	if e.updatePosition(car, s.Track) {
		e.emit(Event{Type: EventLapCompleted, Player: p, Lap: car.Lap - 1})
	}
	e.resolveTrackCollisions(s, p, car)
	consumeFuel(car, plan.Speed)
	clampCar(car)
}

// updatePosition moves the car and handles the lap wrap.
// Returns true if a new lap was started.
func (e *Engine) updatePosition(car *model.CarState, track *model.Track) bool {
	delta := (car.Speed / kmhToMs) * DeltaTime / LaneDistanceMultiplier(car.Lane)
	// guarantees at most one wrap per tick even on very short tracks
	if delta > track.LapDistance {
		delta = track.LapDistance
	}
	car.Position += delta
	if car.Position < track.LapDistance {
		return false
	}
	car.Position -= track.LapDistance
	car.Lap++
	car.HitObstacles.Reset(car.Lap)
	car.UsedBoostPads.Reset(car.Lap)
	return true
}

func (e *Engine) checkWinner(s *model.RaceState) {
	for _, p := range model.Players {
		if s.Car(p).Lap > s.Race.TotalLaps {
			s.Race.Winner = p
			e.emit(Event{Type: EventFinished, Player: p, Lap: s.Race.TotalLaps})
			e.logger.Info("race finished",
				log.String("winner", string(p)),
				log.Int64("tick", s.Race.CurrentTick))
			return
		}
	}
}

func (e *Engine) emit(ev Event) {
	ev.Tick = e.tickCount
	e.events = append(e.events, ev)
	if ev.Type == EventObstacleHit && e.collisions != nil {
		e.collisions.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("player", string(ev.Player))))
	}
}

func clampCar(car *model.CarState) {
	if car.MaxFuel <= 0 {
		car.MaxFuel = model.DefaultFuel
	}
	car.Fuel = clamp(car.Fuel, 0, car.MaxFuel)
	if car.Speed < 0 {
		car.Speed = 0
	}
	if car.Fuel > 0 && car.Stopped {
		car.Stopped = false
	}
}

// updateStandings ranks the cars by total progress. player1 leads only if
// strictly ahead.
func updateStandings(s *model.RaceState) {
	ld := s.Track.LapDistance
	if s.Player1.Progress(ld) > s.Player2.Progress(ld) {
		s.Player1.RacePosition, s.Player2.RacePosition = 1, 2
	} else {
		s.Player1.RacePosition, s.Player2.RacePosition = 2, 1
	}
	lapDiff := float64(s.Player2.Lap - s.Player1.Lap)
	s.Player1.OpponentDistance = lapDiff*ld + (s.Player2.Position - s.Player1.Position)
	s.Player2.OpponentDistance = -s.Player1.OpponentDistance
}

func clamp(v, lower, upper float64) float64 {
	if v < lower {
		return lower
	}
	if v > upper {
		return upper
	}
	return v
}
