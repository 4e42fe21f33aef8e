package model

import "math"

const (
	SegmentLength = 10.0 // meters
	NumLanes      = 3
)

type SegmentType string

const (
	SegmentNormal    SegmentType = "normal"
	SegmentObstacle  SegmentType = "obstacle"
	SegmentBoostZone SegmentType = "boost_zone"
	SegmentFuelZone  SegmentType = "fuel_zone"
)

type ItemType string

const (
	ItemFuel     ItemType = "fuel"
	ItemBoostPad ItemType = "boost_pad"
)

type Obstacle struct {
	Lane     int     `json:"lane" yaml:"lane"`
	Width    float64 `json:"width" yaml:"width"`
	Jumpable bool    `json:"jumpable" yaml:"jumpable"`
}

// Item is either a boost pad (Lane, SpeedBonus) or a fuel pickup (Lanes, Amount)
type Item struct {
	Type       ItemType `json:"type" yaml:"type"`
	Lane       int      `json:"lane,omitempty" yaml:"lane,omitempty"`
	SpeedBonus float64  `json:"speedBonus,omitempty" yaml:"speedBonus,omitempty"`
	Lanes      []int    `json:"lanes,omitempty" yaml:"lanes,omitempty"`
	Amount     float64  `json:"amount,omitempty" yaml:"amount,omitempty"`
}

func (i Item) HasFuelLane(lane int) bool {
	for _, l := range i.Lanes {
		if l == lane {
			return true
		}
	}
	return false
}

type Segment struct {
	Position  float64     `json:"position" yaml:"position"`
	Type      SegmentType `json:"type" yaml:"type"`
	Obstacles []Obstacle  `json:"obstacles" yaml:"obstacles"`
	Items     []Item      `json:"items" yaml:"items"`
	Grip      float64     `json:"grip" yaml:"grip"` // not used by physics yet
}

// Clone returns a deep copy of the segment
func (s Segment) Clone() Segment {
	ret := s
	ret.Obstacles = append(make([]Obstacle, 0, len(s.Obstacles)), s.Obstacles...)
	ret.Items = make([]Item, len(s.Items))
	for i := range s.Items {
		ret.Items[i] = s.Items[i]
		if s.Items[i].Lanes != nil {
			ret.Items[i].Lanes = append([]int{}, s.Items[i].Lanes...)
		}
	}
	return ret
}

// ObstacleMarker is a summary entry of the obstacles on a track
type ObstacleMarker struct {
	Position float64 `json:"position" yaml:"position"`
	Lanes    []int   `json:"lanes" yaml:"lanes"`
}

// Track is immutable for the duration of a race
type Track struct {
	Name         string           `json:"name,omitempty" yaml:"name,omitempty"`
	Segments     []Segment        `json:"segments" yaml:"segments"`
	LapDistance  float64          `json:"lapDistance" yaml:"lapDistance"`
	Lanes        int              `json:"lanes" yaml:"lanes"`
	Seed         int64            `json:"seed" yaml:"seed"`
	FuelStations []float64        `json:"fuelStations" yaml:"fuelStations"`
	BoostPads    []float64        `json:"boostPads" yaml:"boostPads"`
	Obstacles    []ObstacleMarker `json:"obstacles" yaml:"obstacles"`
	PitLaneEntry float64          `json:"pitLaneEntry,omitempty" yaml:"pitLaneEntry,omitempty"`
	PitLaneExit  float64          `json:"pitLaneExit,omitempty" yaml:"pitLaneExit,omitempty"`
}

// SegmentIndex returns the index of the segment containing position.
// The position is not wrapped.
func SegmentIndex(position float64) int {
	return int(math.Floor(position / SegmentLength))
}

// SegmentAt returns the segment containing position.
// ok is false if the position is outside of the segment list
func (t *Track) SegmentAt(position float64) (idx int, seg *Segment, ok bool) {
	idx = SegmentIndex(position)
	if idx < 0 || idx >= len(t.Segments) {
		return idx, nil, false
	}
	return idx, &t.Segments[idx], true
}

// WrapPosition maps any position into [0, LapDistance)
func (t *Track) WrapPosition(position float64) float64 {
	if t.LapDistance <= 0 {
		return position
	}
	ret := math.Mod(position, t.LapDistance)
	if ret < 0 {
		ret += t.LapDistance
	}
	return ret
}

func (t *Track) Clone() *Track {
	ret := *t
	ret.Segments = make([]Segment, len(t.Segments))
	for i := range t.Segments {
		ret.Segments[i] = t.Segments[i].Clone()
	}
	ret.FuelStations = append([]float64{}, t.FuelStations...)
	ret.BoostPads = append([]float64{}, t.BoostPads...)
	ret.Obstacles = make([]ObstacleMarker, len(t.Obstacles))
	for i := range t.Obstacles {
		ret.Obstacles[i] = ObstacleMarker{
			Position: t.Obstacles[i].Position,
			Lanes:    append([]int{}, t.Obstacles[i].Lanes...),
		}
	}
	return &ret
}
