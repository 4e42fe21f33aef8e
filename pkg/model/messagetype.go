package model

type MessageType int

const (
	MTEmpty    MessageType = 0
	MTState    MessageType = 1 // race state snapshot
	MTResult   MessageType = 2 // race finished
	MTAnalysis MessageType = 3 // complete analysis data
	MTFrame    MessageType = 4 // render projection
)

// Envelope wraps the data sent to subscribers
type Envelope struct {
	Type   MessageType `json:"type"`
	RaceID string      `json:"raceId"`
	Tick   int64       `json:"tick"`
	Data   any         `json:"data"`
}
