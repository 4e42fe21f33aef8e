//nolint:thelper,whitespace,lll,funlen,gocritic,dupl // ok for tests
package render

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/botrace/pkg/model"
)

func testTrack() *model.Track {
	segs := make([]model.Segment, 10)
	for i := range segs {
		segs[i] = model.Segment{Position: float64(i * 10), Type: model.SegmentNormal, Obstacles: []model.Obstacle{}, Items: []model.Item{}}
	}
	segs[2].Type = model.SegmentObstacle
	segs[2].Obstacles = []model.Obstacle{{Lane: 0, Width: 0.8, Jumpable: true}}
	segs[5].Type = model.SegmentFuelZone
	segs[5].Items = []model.Item{{Type: model.ItemFuel, Lanes: []int{1, 2}, Amount: 1.2}}
	segs[7].Type = model.SegmentBoostZone
	segs[7].Items = []model.Item{{Type: model.ItemBoostPad, Lane: 2, SpeedBonus: 50}}
	return &model.Track{Segments: segs, LapDistance: 100, Lanes: 3}
}

func TestCoordinates(t *testing.T) {
	p := NewProjector()
	tests := []struct {
		name     string
		position float64
		lane     float64
		want     Point
	}{
		{name: "start, middle lane", position: 0, lane: 1, want: Point{X: 0, Y: -180}},
		{name: "start, inner lane", position: 0, lane: 0, want: Point{X: 0, Y: -140}},
		{name: "quarter", position: 25, lane: 1, want: Point{X: 180 * 1.8, Y: 0}},
		{name: "half, outer lane", position: 50, lane: 2, want: Point{X: 0, Y: 220}},
	}
	approx := cmp.Comparer(func(a, b float64) bool { return math.Abs(a-b) < 1e-9 })
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Coordinates(tt.position, 100, tt.lane)
			if diff := cmp.Diff(tt.want, got, approx); diff != "" {
				t.Errorf("Coordinates() mismatch (-want +got):\n%s", diff)
			}
		})
	}
	assert.Equal(t, Point{X: 0, Y: -180}, p.Coordinates(10, 0, 1))
}

func TestRotation(t *testing.T) {
	assert.InDelta(t, 0, Rotation(0, 100), 1e-9)
	assert.InDelta(t, math.Pi, Rotation(50, 100), 1e-9)
	assert.InDelta(t, 0, Rotation(50, 0), 1e-9)
}

func TestProject(t *testing.T) {
	s := model.NewRaceState(testTrack(), 3)
	s.Race.CurrentTick = 42
	s.Player1.Position = 25
	s.Player1.IsJumping = true
	s.Player1.JumpTicksRemaining = 5
	s.Player1.CollisionStun = 3
	s.Player1.CollisionAnimation = 10
	s.Player2.Lap = 2
	s.Player2.Position = 10
	s.Player2.RacePosition = 1
	s.Player1.RacePosition = 2
	s.Player2.IsRefueling = true
	s.Player2.ChangingLane = true
	before := *s.Clone()

	f := Project(s)
	assert.Equal(t, before, *s, "state must not be modified")

	assert.Equal(t, int64(42), f.Tick)
	assert.Equal(t, 3, f.TotalLaps)
	require.Len(t, f.Cars, 2)

	p1 := f.Cars[0]
	assert.Equal(t, model.Player1, p1.ID)
	assert.InDelta(t, 324, p1.X, 1e-9)
	assert.InDelta(t, math.Pi/2, p1.Rotation, 1e-9)
	assert.InDelta(t, 20, p1.Height, 1e-9)
	assert.InDelta(t, 0.5, p1.Shake, 1e-9)
	assert.Equal(t, CarFlags{Jumping: true, Stunned: true}, p1.Flags)

	p2 := f.Cars[1]
	assert.Equal(t, CarFlags{Refueling: true, ChangingLane: true}, p2.Flags)
	assert.Zero(t, p2.Height)

	assert.Equal(t, []LeaderboardEntry{
		{Pos: 1, ID: model.Player2, Lap: 2, Fuel: 100, Gap: 0},
		{Pos: 2, ID: model.Player1, Lap: 1, Fuel: 100, Gap: 85},
	}, f.Leaderboard)

	kinds := map[FeatureKind]int{}
	for _, feat := range f.Features {
		kinds[feat.Kind]++
	}
	assert.Equal(t, map[FeatureKind]int{FeatureObstacle: 1, FeatureFuelStation: 2, FeatureBoostPad: 1}, kinds)
}

func TestProject_Options(t *testing.T) {
	s := model.NewRaceState(testTrack(), 1)
	f := Project(s, WithFeatures(false), WithGeometry(Geometry{Radius: 10, LaneWidth: 1, StretchX: 1}))
	assert.Empty(t, f.Features)
	assert.InDelta(t, -10, f.Cars[0].Y, 1e-9)

	s.Track = nil
	f = Project(s)
	assert.Empty(t, f.Features)
	assert.Len(t, f.Cars, 2)
}
