//nolint:thelper,whitespace,lll,funlen,gocritic,dupl // ok for tests
package track

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/botrace/pkg/model"
)

func TestGenerate_Deterministic(t *testing.T) {
	g := NewGenerator(WithDifficulty(DifficultyHard), WithFuelStations(2))
	t1, err := g.Generate(4711)
	require.NoError(t, err)
	t2, err := g.Generate(4711)
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(t1, t2))

	t3, err := g.Generate(4712)
	require.NoError(t, err)
	assert.NotEmpty(t, cmp.Diff(t1, t3))
}

func TestGenerate_Layout(t *testing.T) {
	for _, d := range []Difficulty{DifficultyNone, DifficultyEasy, DifficultyMedium, DifficultyHard} {
		t.Run(string(d), func(t *testing.T) {
			tr, err := NewGenerator(WithDifficulty(d)).Generate(42)
			require.NoError(t, err)
			require.NoError(t, Validate(tr))

			assert.Len(t, tr.Segments, 200)
			assert.Equal(t, 2000.0, tr.LapDistance)
			assert.Equal(t, 3, tr.Lanes)
			assert.Equal(t, 1850.0, tr.PitLaneEntry)
			assert.Equal(t, 1950.0, tr.PitLaneExit)
			require.Len(t, tr.FuelStations, 1)

			fuelSegments := 0
			for i, seg := range tr.Segments {
				assert.GreaterOrEqual(t, seg.Grip, 0.9)
				assert.Less(t, seg.Grip, 1.1)
				switch seg.Type {
				case model.SegmentFuelZone:
					fuelSegments++
					require.Len(t, seg.Items, 1)
					assert.NotEmpty(t, seg.Items[0].Lanes)
					assert.NotContains(t, seg.Items[0].Lanes, 0)
					assert.GreaterOrEqual(t, seg.Items[0].Amount, 20.0)
					assert.Less(t, seg.Items[0].Amount, 30.0)
				case model.SegmentObstacle:
					assert.NotEqual(t, DifficultyNone, d)
					require.Len(t, seg.Obstacles, 1)
					assert.True(t, seg.Obstacles[0].Jumpable)
				case model.SegmentBoostZone:
					require.Len(t, seg.Items, 1)
					assert.Equal(t, 20.0, seg.Items[0].SpeedBonus)
				}
				assert.Equal(t, float64(i*10), seg.Position)
			}
			assert.Equal(t, 3, fuelSegments)
			start := tr.FuelStations[0]
			assert.GreaterOrEqual(t, start, 100.0)
			assert.LessOrEqual(t, start, 1900.0)
		})
	}
}

func TestGenerate_ObstacleDensity(t *testing.T) {
	count := func(d Difficulty) int {
		n := 0
		for seed := int64(1); seed <= 20; seed++ {
			tr, err := NewGenerator(WithDifficulty(d)).Generate(seed)
			require.NoError(t, err)
			n += len(tr.Obstacles)
		}
		return n
	}
	easy, hard := count(DifficultyEasy), count(DifficultyHard)
	assert.Equal(t, 0, count(DifficultyNone))
	assert.Less(t, easy, hard)
}

func TestGenerate_Errors(t *testing.T) {
	_, err := NewGenerator(WithLength(100)).Generate(1)
	assert.ErrorIs(t, err, ErrInvalidTrack)
	_, err = NewGenerator(WithDifficulty("insane")).Generate(1)
	assert.Error(t, err)
	_, err = ParseDifficulty("insane")
	assert.Error(t, err)
	d, err := ParseDifficulty("hard")
	assert.NoError(t, err)
	assert.Equal(t, DifficultyHard, d)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	tr, err := NewGenerator().Generate(7)
	require.NoError(t, err)
	dir := t.TempDir()
	for _, name := range []string{"track.yml", "track.json"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, Save(path, tr))
			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Empty(t, cmp.Diff(tr, loaded))
		})
	}
}

func TestRead_DerivesDefaults(t *testing.T) {
	doc := `
segments:
  - {position: 0, type: normal}
  - {position: 10, type: fuel_zone, items: [{type: fuel, lanes: [1, 2], amount: 25}]}
  - {position: 20, type: fuel_zone, items: [{type: fuel, lanes: [2], amount: 25}]}
  - {position: 30, type: obstacle, obstacles: [{lane: 0, width: 0.8, jumpable: true}]}
  - {position: 40, type: boost_zone, items: [{type: boost_pad, lane: 2, speedBonus: 20}]}
`
	tr, err := Read(strings.NewReader(doc), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, 50.0, tr.LapDistance)
	assert.Equal(t, 3, tr.Lanes)
	assert.Equal(t, []float64{10}, tr.FuelStations)
	assert.Equal(t, []float64{40}, tr.BoostPads)
	assert.Equal(t, []model.ObstacleMarker{{Position: 30, Lanes: []int{0}}}, tr.Obstacles)
	assert.NotNil(t, tr.Segments[0].Obstacles)
	assert.NotNil(t, tr.Segments[0].Items)
}

func TestValidate(t *testing.T) {
	base := func() *model.Track {
		tr, err := NewGenerator(WithDifficulty(DifficultyNone), WithLength(300)).Generate(1)
		require.NoError(t, err)
		return tr
	}
	tests := []struct {
		name   string
		modify func(tr *model.Track)
		msg    string
	}{
		{name: "valid", modify: func(tr *model.Track) {}},
		{name: "fuel in lane 0", modify: func(tr *model.Track) {
			tr.Segments[1].Items = []model.Item{{Type: model.ItemFuel, Lanes: []int{0}}}
		}, msg: "only lanes 1 and 2"},
		{name: "gap in positions", modify: func(tr *model.Track) {
			tr.Segments[3].Position = 35
		}, msg: "segment 3: position"},
		{name: "obstacle lane", modify: func(tr *model.Track) {
			tr.Segments[2].Obstacles = []model.Obstacle{{Lane: 3}}
		}, msg: "obstacle lane 3"},
		{name: "lap distance", modify: func(tr *model.Track) {
			tr.LapDistance = 1000
		}, msg: "lapDistance"},
		{name: "no segments", modify: func(tr *model.Track) {
			tr.Segments = nil
		}, msg: "no segments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := base()
			tt.modify(tr)
			err := Validate(tr)
			if tt.msg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTrack))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	var buf bytes.Buffer
	buf.WriteString("segments: []\n")
	_, err = Read(&buf, FormatYAML)
	assert.ErrorIs(t, err, ErrInvalidTrack)
}

func TestCache(t *testing.T) {
	c := NewCache(time.Minute)
	k := Key{Seed: 3, Difficulty: DifficultyEasy, FuelStations: 1}
	t1, err := c.Get(context.Background(), k)
	require.NoError(t, err)
	t2, err := c.Get(context.Background(), k)
	require.NoError(t, err)
	assert.Same(t, t1, t2)

	_, err = c.Get(context.Background(), Key{Seed: 3, Difficulty: "insane"})
	assert.Error(t, err)
}
