package track

import (
	"fmt"
	"math"
	"slices"

	"github.com/mpapenbr/botrace/pkg/model"
)

type Difficulty string

const (
	DifficultyNone   Difficulty = "none"
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

const (
	DefaultLength       = 2000.0
	DefaultFuelStations = 1
	fuelZoneSegments    = 3
	fuelEdgeSegments    = 10 // fuel stations keep this distance to start/finish
	fuelVariation       = 20 // +/- half of it in segments
	boostChance         = 0.02
	boostBonus          = 20.0
	obstacleWidth       = 0.8
	pitEntryOffset      = 150.0 // meters before the lap end
	pitExitOffset       = 50.0
)

var obstacleChance = map[Difficulty]float64{
	DifficultyNone:   0,
	DifficultyEasy:   0.02,
	DifficultyMedium: 0.05,
	DifficultyHard:   0.08,
}

func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(s)
	if _, ok := obstacleChance[d]; !ok {
		return "", fmt.Errorf("unknown difficulty %q", s)
	}
	return d, nil
}

type Generator struct {
	length       float64
	fuelStations int
	difficulty   Difficulty
}

type GeneratorOption func(g *Generator)

// WithLength sets the lap length. It is rounded down to full segments.
func WithLength(meters float64) GeneratorOption {
	return func(g *Generator) {
		g.length = meters
	}
}

func WithFuelStations(n int) GeneratorOption {
	return func(g *Generator) {
		g.fuelStations = n
	}
}

func WithDifficulty(d Difficulty) GeneratorOption {
	return func(g *Generator) {
		g.difficulty = d
	}
}

func NewGenerator(opts ...GeneratorOption) *Generator {
	ret := &Generator{
		length:       DefaultLength,
		fuelStations: DefaultFuelStations,
		difficulty:   DifficultyMedium,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Generate creates a track. The same seed and options always produce the
// same track.
//
//nolint:funlen // layout rules are easier to follow in one place
func (g *Generator) Generate(seed int64) (*model.Track, error) {
	numSegments := int(math.Floor(g.length / model.SegmentLength))
	if numSegments < 2*fuelEdgeSegments+fuelZoneSegments {
		return nil, fmt.Errorf("%w: length %.0f too short", ErrInvalidTrack, g.length)
	}
	chance, ok := obstacleChance[g.difficulty]
	if !ok {
		return nil, fmt.Errorf("unknown difficulty %q", g.difficulty)
	}
	if g.fuelStations < 0 {
		return nil, fmt.Errorf("invalid number of fuel stations: %d", g.fuelStations)
	}
	rng := newSeededRandom(seed)
	lapDistance := float64(numSegments) * model.SegmentLength
	ret := &model.Track{
		Name:         fmt.Sprintf("generated-%d", seed),
		Segments:     make([]model.Segment, 0, numSegments),
		LapDistance:  lapDistance,
		Lanes:        model.NumLanes,
		Seed:         seed,
		FuelStations: []float64{},
		BoostPads:    []float64{},
		Obstacles:    []model.ObstacleMarker{},
		PitLaneEntry: lapDistance - pitEntryOffset,
		PitLaneExit:  lapDistance - pitExitOffset,
	}

	interval := numSegments / (g.fuelStations + 1)
	fuelStarts := make([]int, 0, g.fuelStations)
	for i := 1; i <= g.fuelStations; i++ {
		variation := int(math.Floor((rng.next() - 0.5) * fuelVariation))
		pos := max(fuelEdgeSegments, min(numSegments-fuelEdgeSegments, i*interval+variation))
		fuelStarts = append(fuelStarts, pos)
	}
	inFuelZone := func(idx int) bool {
		return slices.ContainsFunc(fuelStarts, func(start int) bool {
			return idx >= start && idx < start+fuelZoneSegments
		})
	}

	for i := 0; i < numSegments; i++ {
		seg := model.Segment{
			Position:  float64(i) * model.SegmentLength,
			Type:      model.SegmentNormal,
			Obstacles: []model.Obstacle{},
			Items:     []model.Item{},
			Grip:      0.9 + rng.next()*0.2,
		}
		switch {
		case inFuelZone(i):
			seg.Type = model.SegmentFuelZone
			lanes := []int{}
			if rng.next() > 0.5 {
				lanes = append(lanes, 1)
			}
			if rng.next() > 0.5 {
				lanes = append(lanes, 2)
			}
			if len(lanes) == 0 {
				if rng.next() > 0.5 {
					lanes = append(lanes, 1)
				} else {
					lanes = append(lanes, 2)
				}
			}
			seg.Items = append(seg.Items, model.Item{
				Type:   model.ItemFuel,
				Amount: 20 + rng.next()*10,
				Lanes:  lanes,
			})
			if slices.Contains(fuelStarts, i) && !slices.Contains(ret.FuelStations, seg.Position) {
				ret.FuelStations = append(ret.FuelStations, seg.Position)
			}
		default:
			roll := rng.next()
			switch {
			case roll < chance:
				lane := int(math.Floor(rng.next() * model.NumLanes))
				seg.Type = model.SegmentObstacle
				seg.Obstacles = append(seg.Obstacles, model.Obstacle{
					Lane: lane, Width: obstacleWidth, Jumpable: true,
				})
				ret.Obstacles = append(ret.Obstacles, model.ObstacleMarker{
					Position: seg.Position, Lanes: []int{lane},
				})
			case roll < chance+boostChance:
				seg.Type = model.SegmentBoostZone
				seg.Items = append(seg.Items, model.Item{
					Type:       model.ItemBoostPad,
					SpeedBonus: boostBonus,
					Lane:       int(math.Floor(rng.next() * model.NumLanes)),
				})
				ret.BoostPads = append(ret.BoostPads, seg.Position)
			}
		}
		ret.Segments = append(ret.Segments, seg)
	}
	return ret, nil
}

const lcgModulus = 2147483647

// seededRandom is a small linear congruential generator. Its output only
// has to be stable per seed, the quality does not matter here.
type seededRandom struct {
	state int64
}

func newSeededRandom(seed int64) *seededRandom {
	s := seed % lcgModulus
	if s < 0 {
		s += lcgModulus
	}
	return &seededRandom{state: s}
}

// next returns a value in [0, 1)
func (r *seededRandom) next() float64 {
	r.state = (r.state*1664525 + 1013904223) % lcgModulus
	return float64(r.state) / lcgModulus
}
