//nolint:thelper,whitespace,lll,funlen,gocritic,dupl // ok for tests
package view

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gotest "gotest.tools/v3/assert"

	"github.com/mpapenbr/botrace/pkg/model"
)

func sampleTrack() *model.Track {
	segs := make([]model.Segment, 200)
	for i := range segs {
		segs[i] = model.Segment{
			Position: float64(i) * 10, Type: model.SegmentNormal,
			Obstacles: []model.Obstacle{}, Items: []model.Item{}, Grip: 1,
		}
	}
	segs[3].Type = model.SegmentObstacle
	segs[3].Obstacles = []model.Obstacle{{Lane: 1, Width: 0.8, Jumpable: true}}
	segs[5].Type = model.SegmentFuelZone
	segs[5].Items = []model.Item{{Type: model.ItemFuel, Lanes: []int{1, 2}, Amount: 25}}
	segs[8].Type = model.SegmentBoostZone
	segs[8].Items = []model.Item{{Type: model.ItemBoostPad, Lane: 2, SpeedBonus: 20}}
	segs[198].Type = model.SegmentObstacle
	segs[198].Obstacles = []model.Obstacle{{Lane: 0, Width: 0.8, Jumpable: true}}
	return &model.Track{Segments: segs, LapDistance: 2000, Lanes: 3, PitLaneEntry: 1850, PitLaneExit: 1950}
}

func TestBuild(t *testing.T) {
	s := model.NewRaceState(sampleTrack(), 5)
	s.Player1.Position = 5
	s.Player1.Speed = 120
	s.Player1.OpponentDistance = -12
	s.Player2.Speed = 99
	s.Player2.Lane = 2

	v, err := Build(s, model.Player1)
	require.NoError(t, err)

	assert.Equal(t, 5.0, v.Car.Position)
	assert.Equal(t, 120.0, v.Car.Speed)
	assert.Equal(t, OpponentView{Distance: -12, Lane: 2, Speed: 99, Lap: 1}, v.Opponent)
	assert.Equal(t, 5, v.Track.TotalLaps)
	assert.Equal(t, 1, v.Track.CurrentLap)
	assert.Equal(t, 1850.0, v.Track.PitLaneEntry)
	require.Len(t, v.Track.Ahead, DefaultLookahead)
	for i, seg := range v.Track.Ahead {
		assert.Equal(t, float64(i*10), seg.Distance)
	}
	assert.Equal(t, model.SegmentObstacle, v.Track.Ahead[3].Type)

	_, err = Build(s, "player3")
	assert.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestBuild_WrapsAtLapBoundary(t *testing.T) {
	s := model.NewRaceState(sampleTrack(), 5)
	s.Player1.Position = 1975

	v, err := Build(s, model.Player1, WithLookahead(5))
	require.NoError(t, err)
	require.Len(t, v.Track.Ahead, 5)
	// 1975, 1985, 1995, 5, 15
	assert.Equal(t, model.SegmentObstacle, v.Track.Ahead[1].Type)
	assert.Equal(t, 10.0, v.Track.Ahead[1].Distance)
	assert.Equal(t, model.SegmentNormal, v.Track.Ahead[3].Type)
	assert.Equal(t, 30.0, v.Track.Ahead[3].Distance)
}

func TestBuild_IsIndependentCopy(t *testing.T) {
	track := sampleTrack()
	s := model.NewRaceState(track, 5)
	v, err := Build(s, model.Player1)
	require.NoError(t, err)

	v.Car.Fuel = 0
	v.Track.Ahead[3].Obstacles[0].Lane = 2
	v.Track.Ahead[5].Items[0].Lanes[0] = 0

	assert.Equal(t, 100.0, s.Player1.Fuel)
	assert.Equal(t, 1, track.Segments[3].Obstacles[0].Lane)
	assert.Equal(t, []int{1, 2}, track.Segments[5].Items[0].Lanes)
}

func TestQueries(t *testing.T) {
	s := model.NewRaceState(sampleTrack(), 5)
	v, err := Build(s, model.Player1)
	require.NoError(t, err)

	assert.Equal(t, []FeatureAhead{{Lane: 1, Distance: 30}}, v.GetObstaclesAhead())
	assert.Equal(t, []FeatureAhead{{Lane: 1, Distance: 50}, {Lane: 2, Distance: 50}}, v.GetFuelStationsAhead())
	assert.Equal(t, []FeatureAhead{{Lane: 2, Distance: 80}}, v.GetBoostPadsAhead())

	tests := []struct {
		name string
		lane int
		obst bool
		fuel bool
		bst  bool
	}{
		{name: "lane 0", lane: 0},
		{name: "lane 1", lane: 1, obst: true, fuel: true},
		{name: "lane 2", lane: 2, fuel: true, bst: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v.Car.Lane = tt.lane
			assert.Equal(t, tt.obst, v.HasObstacleAhead())
			assert.Equal(t, tt.fuel, v.HasFuelStationAhead())
			assert.Equal(t, tt.bst, v.HasBoostPadAhead())
			assert.Equal(t, !tt.obst, v.IsLaneSafe(tt.lane))
		})
	}
	assert.False(t, v.IsLaneSafe(-1))
	assert.False(t, v.IsLaneSafe(3))

	next, ok := v.NextObstacle(1)
	assert.True(t, ok)
	assert.Equal(t, 30.0, next.Distance)
}

func TestJSONShape(t *testing.T) {
	s := model.NewRaceState(sampleTrack(), 5)
	v, err := Build(s, model.Player2, WithLookahead(1))
	require.NoError(t, err)
	data, err := json.Marshal(v)
	gotest.NilError(t, err)

	var raw map[string]map[string]any
	gotest.NilError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"position", "lane", "lap", "speed", "fuel", "boosts", "isDrafting", "isJumping"} {
		assert.Contains(t, raw["car"], key)
	}
	for _, key := range []string{"distance", "lane", "speed", "lap"} {
		assert.Contains(t, raw["opponent"], key)
	}
	for _, key := range []string{"ahead", "lapDistance", "currentLap", "totalLaps"} {
		assert.Contains(t, raw["track"], key)
	}
}
