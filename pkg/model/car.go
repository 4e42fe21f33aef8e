package model

const (
	DefaultFuel     = 100.0
	DefaultBoosts   = 3
	DefaultLane     = 1
	featureLogLimit = 20 // once exceeded, only the latest featureLogKeep entries are kept
	featureLogKeep  = 10
)

// FeatureID identifies a track feature instance as seen by a car in a lap
type FeatureID struct {
	Lap     int `json:"lap"`
	Segment int `json:"segment"`
	Index   int `json:"index"`
	Lane    int `json:"lane"`
}

// FeatureLog is a bounded per-lap set of features already triggered.
// It is cleared as a whole when the car starts a new lap.
type FeatureLog struct {
	Lap int         `json:"lap"`
	IDs []FeatureID `json:"ids"`
}

func (f *FeatureLog) Seen(id FeatureID) bool {
	if id.Lap != f.Lap {
		return false
	}
	for i := range f.IDs {
		if f.IDs[i] == id {
			return true
		}
	}
	return false
}

func (f *FeatureLog) Add(id FeatureID) {
	if id.Lap != f.Lap {
		f.Reset(id.Lap)
	}
	f.IDs = append(f.IDs, id)
	if len(f.IDs) > featureLogLimit {
		f.IDs = append([]FeatureID{}, f.IDs[len(f.IDs)-featureLogKeep:]...)
	}
}

// Reset starts a new lap, dropping all entries
func (f *FeatureLog) Reset(lap int) {
	f.Lap = lap
	f.IDs = []FeatureID{}
}

func (f FeatureLog) Clone() FeatureLog {
	return FeatureLog{Lap: f.Lap, IDs: append([]FeatureID{}, f.IDs...)}
}

// CarState holds everything the physics engine tracks for a car.
// Only the engine mutates it.
type CarState struct {
	Position           float64 `json:"position"`
	Lane               int     `json:"lane"`
	TargetLane         int     `json:"targetLane"`
	LaneChangeProgress float64 `json:"laneChangeProgress"`
	ChangingLane       bool    `json:"changingLane"`
	DisplayLane        float64 `json:"displayLane"`
	Lap                int     `json:"lap"`
	Speed              float64 `json:"speed"`
	Fuel               float64 `json:"fuel"`
	MaxFuel            float64 `json:"maxFuel"`
	Boosts             int     `json:"boosts"`
	TireWear           float64 `json:"tireWear"`

	IsJumping          bool    `json:"isJumping"`
	JumpTicksRemaining int     `json:"jumpTicksRemaining"`
	IsDrafting         bool    `json:"isDrafting"`
	DraftEffectiveness float64 `json:"draftEffectiveness"`
	CollisionStun      int     `json:"collisionStun"`
	CollisionAnimation int     `json:"collisionAnimation"`
	IsRefueling        bool    `json:"isRefueling"`
	EngineOff          bool    `json:"engineOff"`
	Stopped            bool    `json:"stopped"`
	IsInPitLane        bool    `json:"isInPitLane"`

	FuelConsumptionRate float64 `json:"fuelConsumptionRate"` // liters per second

	HitObstacles      FeatureLog `json:"hitObstacles"`
	UsedBoostPads     FeatureLog `json:"usedBoostPads"`
	LastCollisionTick int64      `json:"lastCollisionTick"` // 0 means never
	LastBoostTick     int64      `json:"lastBoostTick"`     // 0 means never

	RacePosition     int     `json:"racePosition"`
	OpponentDistance float64 `json:"opponentDistance"`
	LastAction       Action  `json:"lastAction"`
}

// NewCarState returns a car ready for the start of a race
func NewCarState(racePosition int) CarState {
	return CarState{
		Position:      0,
		Lane:          DefaultLane,
		TargetLane:    DefaultLane,
		DisplayLane:   DefaultLane,
		Lap:           1,
		Fuel:          DefaultFuel,
		MaxFuel:       DefaultFuel,
		Boosts:        DefaultBoosts,
		TireWear:      1.0,
		HitObstacles:  FeatureLog{Lap: 1, IDs: []FeatureID{}},
		UsedBoostPads: FeatureLog{Lap: 1, IDs: []FeatureID{}},
		RacePosition:  racePosition,
		LastAction:    ActionIdle,
	}
}

func (c CarState) Clone() CarState {
	ret := c
	ret.HitObstacles = c.HitObstacles.Clone()
	ret.UsedBoostPads = c.UsedBoostPads.Clone()
	return ret
}

// Progress is the total distance covered, used for ranking
func (c *CarState) Progress(lapDistance float64) float64 {
	return float64(c.Lap)*lapDistance + c.Position
}
