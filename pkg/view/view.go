// Package view builds the restricted snapshot of a race a bot may observe.
package view

import (
	"errors"

	"github.com/samber/lo"

	"github.com/mpapenbr/botrace/pkg/model"
)

const DefaultLookahead = 20

var ErrUnknownPlayer = errors.New("unknown player")

type CarView struct {
	Position           float64 `json:"position"`
	Lane               int     `json:"lane"`
	Lap                int     `json:"lap"`
	Speed              float64 `json:"speed"`
	Fuel               float64 `json:"fuel"`
	Boosts             int     `json:"boosts"`
	IsDrafting         bool    `json:"isDrafting"`
	IsJumping          bool    `json:"isJumping"`
	ChangingLane       bool    `json:"changingLane"`
	CollisionStun      int     `json:"collisionStun"`
	DraftEffectiveness float64 `json:"draftEffectiveness"`
	IsInPitLane        bool    `json:"isInPitLane"`
}

type OpponentView struct {
	Distance float64 `json:"distance"` // positive: opponent is ahead
	Lane     int     `json:"lane"`
	Speed    float64 `json:"speed"`
	Lap      int     `json:"lap"`
}

// SegmentView is a segment as seen from the car.
// Distance is relative to the car position.
type SegmentView struct {
	Distance  float64           `json:"distance"`
	Type      model.SegmentType `json:"type"`
	Obstacles []model.Obstacle  `json:"obstacles"`
	Items     []model.Item      `json:"items"`
}

type TrackView struct {
	Ahead        []SegmentView `json:"ahead"`
	LapDistance  float64       `json:"lapDistance"`
	CurrentLap   int           `json:"currentLap"`
	TotalLaps    int           `json:"totalLaps"`
	PitLaneEntry float64       `json:"pitLaneEntry,omitempty"`
	PitLaneExit  float64       `json:"pitLaneExit,omitempty"`
}

// BotView is everything a bot gets to know about the race.
// It is an independent copy, changing it has no effect on the race.
type BotView struct {
	Car      CarView      `json:"car"`
	Opponent OpponentView `json:"opponent"`
	Track    TrackView    `json:"track"`
}

// FeatureAhead is a track feature in a lane at a distance ahead of the car
type FeatureAhead struct {
	Lane     int     `json:"lane"`
	Distance float64 `json:"distance"`
}

type buildConfig struct {
	lookahead int
}

type Option func(cfg *buildConfig)

// WithLookahead sets the number of segments in the ahead window
func WithLookahead(n int) Option {
	return func(cfg *buildConfig) {
		if n > 0 {
			cfg.lookahead = n
		}
	}
}

// Build creates the view of player on state
func Build(state *model.RaceState, player model.PlayerID, opts ...Option) (*BotView, error) {
	cfg := &buildConfig{lookahead: DefaultLookahead}
	for _, opt := range opts {
		opt(cfg)
	}
	car := state.Car(player)
	if car == nil {
		return nil, ErrUnknownPlayer
	}
	opponent := state.Car(player.Opponent())
	return &BotView{
		Car: CarView{
			Position:           car.Position,
			Lane:               car.Lane,
			Lap:                car.Lap,
			Speed:              car.Speed,
			Fuel:               car.Fuel,
			Boosts:             car.Boosts,
			IsDrafting:         car.IsDrafting,
			IsJumping:          car.IsJumping,
			ChangingLane:       car.ChangingLane,
			CollisionStun:      car.CollisionStun,
			DraftEffectiveness: car.DraftEffectiveness,
			IsInPitLane:        car.IsInPitLane,
		},
		Opponent: OpponentView{
			Distance: car.OpponentDistance,
			Lane:     opponent.Lane,
			Speed:    opponent.Speed,
			Lap:      opponent.Lap,
		},
		Track: TrackView{
			Ahead:        trackAhead(state.Track, car.Position, cfg.lookahead),
			LapDistance:  state.Track.LapDistance,
			CurrentLap:   car.Lap,
			TotalLaps:    state.Race.TotalLaps,
			PitLaneEntry: state.Track.PitLaneEntry,
			PitLaneExit:  state.Track.PitLaneExit,
		},
	}, nil
}

// trackAhead collects the segments at position, position+10, ... wrapping at
// the lap boundary. Positions without a segment are left out.
func trackAhead(track *model.Track, position float64, n int) []SegmentView {
	ret := make([]SegmentView, 0, n)
	for i := 0; i < n; i++ {
		dist := float64(i) * model.SegmentLength
		_, seg, ok := track.SegmentAt(track.WrapPosition(position + dist))
		if !ok {
			continue
		}
		c := seg.Clone()
		ret = append(ret, SegmentView{
			Distance:  dist,
			Type:      c.Type,
			Obstacles: c.Obstacles,
			Items:     c.Items,
		})
	}
	return ret
}

// GetObstaclesAhead lists all obstacles in the window
func (v *BotView) GetObstaclesAhead() []FeatureAhead {
	return lo.FlatMap(v.Track.Ahead, func(s SegmentView, _ int) []FeatureAhead {
		return lo.Map(s.Obstacles, func(o model.Obstacle, _ int) FeatureAhead {
			return FeatureAhead{Lane: o.Lane, Distance: s.Distance}
		})
	})
}

// GetFuelStationsAhead lists one entry per fuel lane of each fuel item in
// the window
func (v *BotView) GetFuelStationsAhead() []FeatureAhead {
	return lo.FlatMap(v.Track.Ahead, func(s SegmentView, _ int) []FeatureAhead {
		if s.Type != model.SegmentFuelZone {
			return nil
		}
		return lo.FlatMap(s.Items, func(item model.Item, _ int) []FeatureAhead {
			if item.Type != model.ItemFuel {
				return nil
			}
			return lo.Map(item.Lanes, func(l, _ int) FeatureAhead {
				return FeatureAhead{Lane: l, Distance: s.Distance}
			})
		})
	})
}

func (v *BotView) GetBoostPadsAhead() []FeatureAhead {
	return lo.FlatMap(v.Track.Ahead, func(s SegmentView, _ int) []FeatureAhead {
		if s.Type != model.SegmentBoostZone {
			return nil
		}
		return lo.FilterMap(s.Items, func(item model.Item, _ int) (FeatureAhead, bool) {
			return FeatureAhead{Lane: item.Lane, Distance: s.Distance},
				item.Type == model.ItemBoostPad
		})
	})
}

func inLane(lane int) func(FeatureAhead) bool {
	return func(f FeatureAhead) bool { return f.Lane == lane }
}

// HasObstacleAhead reports an obstacle in the current lane within the window
func (v *BotView) HasObstacleAhead() bool {
	return lo.SomeBy(v.GetObstaclesAhead(), inLane(v.Car.Lane))
}

func (v *BotView) HasFuelStationAhead() bool {
	return lo.SomeBy(v.GetFuelStationsAhead(), inLane(v.Car.Lane))
}

func (v *BotView) HasBoostPadAhead() bool {
	return lo.SomeBy(v.GetBoostPadsAhead(), inLane(v.Car.Lane))
}

// IsLaneSafe reports whether lane exists and has no obstacle within the window
func (v *BotView) IsLaneSafe(lane int) bool {
	if lane < 0 || lane >= model.NumLanes {
		return false
	}
	return !lo.SomeBy(v.GetObstaclesAhead(), inLane(lane))
}

// NextObstacle returns the closest obstacle in lane within the window
func (v *BotView) NextObstacle(lane int) (FeatureAhead, bool) {
	return lo.Find(v.GetObstaclesAhead(), inLane(lane))
}
