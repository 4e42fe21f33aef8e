package physics

import "github.com/mpapenbr/botrace/pkg/model"

type EventType string

const (
	EventObstacleHit  EventType = "obstacle_hit"
	EventBoostPad     EventType = "boost_pad"
	EventLapCompleted EventType = "lap_completed"
	EventFinished     EventType = "finished"
)

// Event is a noteworthy happening during a tick
type Event struct {
	Tick     int64          `json:"tick"`
	Type     EventType      `json:"type"`
	Player   model.PlayerID `json:"player"`
	Lap      int            `json:"lap"`
	Position float64        `json:"position,omitempty"`
}
