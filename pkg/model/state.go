package model

type PlayerID string

const (
	Player1 PlayerID = "player1"
	Player2 PlayerID = "player2"
)

var Players = []PlayerID{Player1, Player2}

func (p PlayerID) Opponent() PlayerID {
	if p == Player1 {
		return Player2
	}
	return Player1
}

func (p PlayerID) Valid() bool {
	return p == Player1 || p == Player2
}

type RaceInfo struct {
	CurrentTick int64    `json:"currentTick"`
	TotalLaps   int      `json:"totalLaps"`
	Winner      PlayerID `json:"winner,omitempty"`
}

// RaceState is the complete simulation state after a tick.
// The track is shared read-only and therefore not part of serialized snapshots.
type RaceState struct {
	Player1 CarState `json:"player1"`
	Player2 CarState `json:"player2"`
	Track   *Track   `json:"-"`
	Race    RaceInfo `json:"race"`
}

func NewRaceState(track *Track, totalLaps int) *RaceState {
	return &RaceState{
		Player1: NewCarState(1),
		Player2: NewCarState(2),
		Track:   track,
		Race:    RaceInfo{TotalLaps: totalLaps},
	}
}

// Car returns the state of the given player, nil for unknown ids
func (s *RaceState) Car(p PlayerID) *CarState {
	switch p {
	case Player1:
		return &s.Player1
	case Player2:
		return &s.Player2
	default:
		return nil
	}
}

func (s *RaceState) Finished() bool {
	return s.Race.Winner != ""
}

// Clone returns a deep copy of the cars and race info. The track is shared.
func (s *RaceState) Clone() *RaceState {
	return &RaceState{
		Player1: s.Player1.Clone(),
		Player2: s.Player2.Clone(),
		Track:   s.Track,
		Race:    s.Race,
	}
}
