// Package render projects race states onto an oval for display.
//
// Projection is a pure function of the state. Clients receive ready to draw
// coordinates and flags and never need to know the physics rules.
package render

import (
	"math"
	"sort"

	"github.com/samber/lo"

	"github.com/mpapenbr/botrace/pkg/model"
)

const (
	DefaultRadius    = 180.0
	DefaultLaneWidth = 40.0
	DefaultStretchX  = 1.8
	maxJumpHeight    = 20.0
	jumpTicks        = 10
)

// Geometry describes the oval. The center of the oval is at (0,0), the start
// line is at the top.
type Geometry struct {
	Radius    float64 `json:"radius"`
	LaneWidth float64 `json:"laneWidth"`
	StretchX  float64 `json:"stretchX"`
}

func DefaultGeometry() Geometry {
	return Geometry{Radius: DefaultRadius, LaneWidth: DefaultLaneWidth, StretchX: DefaultStretchX}
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type CarFlags struct {
	Jumping      bool `json:"jumping"`
	Drafting     bool `json:"drafting"`
	Stunned      bool `json:"stunned"`
	Refueling    bool `json:"refueling"`
	Stopped      bool `json:"stopped"`
	EngineOff    bool `json:"engineOff"`
	ChangingLane bool `json:"changingLane"`
}

type CarFrame struct {
	ID model.PlayerID `json:"id"`
	Point
	Rotation float64  `json:"rotation"` // radians, 0 at the start line
	Height   float64  `json:"height"`   // jump height
	Lane     float64  `json:"lane"`     // display lane
	Lap      int      `json:"lap"`
	Speed    float64  `json:"speed"`
	Fuel     float64  `json:"fuel"`
	Shake    float64  `json:"shake"` // 0..1, collision animation intensity
	Flags    CarFlags `json:"flags"`
}

type LeaderboardEntry struct {
	Pos   int            `json:"pos"`
	ID    model.PlayerID `json:"id"`
	Lap   int            `json:"lap"`
	Speed float64        `json:"speed"`
	Fuel  float64        `json:"fuel"`
	Gap   float64        `json:"gap"` // meters to the leader
}

type FeatureKind string

const (
	FeatureObstacle    FeatureKind = "obstacle"
	FeatureFuelStation FeatureKind = "fuel"
	FeatureBoostPad    FeatureKind = "boost"
)

type Feature struct {
	Kind FeatureKind `json:"kind"`
	Lane int         `json:"lane"`
	Point
}

type Frame struct {
	Tick        int64              `json:"tick"`
	TotalLaps   int                `json:"totalLaps"`
	Winner      model.PlayerID     `json:"winner,omitempty"`
	Geometry    Geometry           `json:"geometry"`
	Cars        []CarFrame         `json:"cars"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	Features    []Feature          `json:"features"`
}

type Option func(p *Projector)

func WithGeometry(g Geometry) Option {
	return func(p *Projector) {
		p.geometry = g
	}
}

// WithFeatures controls whether track features are part of the frame.
// Clients that cache the track layout can skip them.
func WithFeatures(enabled bool) Option {
	return func(p *Projector) {
		p.features = enabled
	}
}

type Projector struct {
	geometry Geometry
	features bool
}

func NewProjector(opts ...Option) *Projector {
	ret := &Projector{geometry: DefaultGeometry(), features: true}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Project uses the default projector
func Project(state *model.RaceState, opts ...Option) Frame {
	return NewProjector(opts...).Project(state)
}

// Project creates the frame for state. The state is not modified.
func (p *Projector) Project(state *model.RaceState) Frame {
	lapDistance := 0.0
	if state.Track != nil {
		lapDistance = state.Track.LapDistance
	}
	ret := Frame{
		Tick:      state.Race.CurrentTick,
		TotalLaps: state.Race.TotalLaps,
		Winner:    state.Race.Winner,
		Geometry:  p.geometry,
		Cars: lo.Map(model.Players, func(id model.PlayerID, _ int) CarFrame {
			return p.car(id, state.Car(id), lapDistance)
		}),
		Leaderboard: leaderboard(state, lapDistance),
		Features:    []Feature{},
	}
	if p.features && state.Track != nil {
		ret.Features = p.trackFeatures(state.Track)
	}
	return ret
}

// Coordinates returns the point of a track position in the given lane
func (p *Projector) Coordinates(position, lapDistance, lane float64) Point {
	progress := 0.0
	if lapDistance > 0 {
		progress = position / lapDistance
	}
	angle := progress*2*math.Pi - math.Pi/2
	radius := p.geometry.Radius + (lane-1)*p.geometry.LaneWidth
	return Point{
		X: math.Cos(angle) * radius * p.geometry.StretchX,
		Y: math.Sin(angle) * radius,
	}
}

// Rotation returns the heading of a car at position
func Rotation(position, lapDistance float64) float64 {
	if lapDistance <= 0 {
		return 0
	}
	return position / lapDistance * 2 * math.Pi
}

func (p *Projector) car(id model.PlayerID, c *model.CarState, lapDistance float64) CarFrame {
	height := 0.0
	if c.IsJumping {
		height = math.Sin(float64(jumpTicks-c.JumpTicksRemaining)/jumpTicks*math.Pi) * maxJumpHeight
	}
	return CarFrame{
		ID:       id,
		Point:    p.Coordinates(c.Position, lapDistance, c.DisplayLane),
		Rotation: Rotation(c.Position, lapDistance),
		Height:   height,
		Lane:     c.DisplayLane,
		Lap:      c.Lap,
		Speed:    c.Speed,
		Fuel:     c.Fuel,
		Shake:    math.Min(1, float64(c.CollisionAnimation)/20),
		Flags: CarFlags{
			Jumping:      c.IsJumping,
			Drafting:     c.IsDrafting,
			Stunned:      c.CollisionStun > 0,
			Refueling:    c.IsRefueling,
			Stopped:      c.Stopped,
			EngineOff:    c.EngineOff,
			ChangingLane: c.ChangingLane,
		},
	}
}

func leaderboard(state *model.RaceState, lapDistance float64) []LeaderboardEntry {
	progress := func(c *model.CarState) float64 {
		return float64(c.Lap)*lapDistance + c.Position
	}
	ids := append([]model.PlayerID{}, model.Players...)
	sort.SliceStable(ids, func(i, j int) bool {
		return state.Car(ids[i]).RacePosition < state.Car(ids[j]).RacePosition
	})
	leader := progress(state.Car(ids[0]))
	return lo.Map(ids, func(id model.PlayerID, i int) LeaderboardEntry {
		c := state.Car(id)
		return LeaderboardEntry{
			Pos:   i + 1,
			ID:    id,
			Lap:   c.Lap,
			Speed: c.Speed,
			Fuel:  c.Fuel,
			Gap:   math.Max(0, leader-progress(c)),
		}
	})
}

func (p *Projector) trackFeatures(t *model.Track) []Feature {
	ret := []Feature{}
	add := func(kind FeatureKind, position float64, lane int) {
		ret = append(ret, Feature{
			Kind:  kind,
			Lane:  lane,
			Point: p.Coordinates(position+model.SegmentLength/2, t.LapDistance, float64(lane)),
		})
	}
	for i := range t.Segments {
		seg := &t.Segments[i]
		for _, o := range seg.Obstacles {
			add(FeatureObstacle, seg.Position, o.Lane)
		}
		for _, item := range seg.Items {
			switch item.Type {
			case model.ItemBoostPad:
				add(FeatureBoostPad, seg.Position, item.Lane)
			case model.ItemFuel:
				for _, l := range item.Lanes {
					add(FeatureFuelStation, seg.Position, l)
				}
			}
		}
	}
	return ret
}
