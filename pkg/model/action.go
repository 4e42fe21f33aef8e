package model

import "slices"

type Action string

const (
	// speed control (mutually exclusive)
	ActionAccelerate Action = "ACCELERATE"
	ActionSprint     Action = "SPRINT"
	ActionCoast      Action = "COAST"
	ActionBrake      Action = "BRAKE"
	ActionBoost      Action = "BOOST"
	ActionIdle       Action = "IDLE"

	// lane change (mutually exclusive)
	ActionChangeLaneLeft  Action = "CHANGE_LANE_LEFT"
	ActionChangeLaneRight Action = "CHANGE_LANE_RIGHT"

	// special actions (stackable)
	ActionJump     Action = "JUMP"
	ActionEnterPit Action = "ENTER_PIT"
)

type ActionCategory int

const (
	CategoryUnknown ActionCategory = iota
	CategorySpeed
	CategoryLane
	CategorySpecial
)

var (
	SpeedActions = []Action{
		ActionAccelerate, ActionSprint, ActionCoast,
		ActionBrake, ActionBoost, ActionIdle,
	}
	LaneActions    = []Action{ActionChangeLaneLeft, ActionChangeLaneRight}
	SpecialActions = []Action{ActionJump, ActionEnterPit}
)

func (a Action) Category() ActionCategory {
	switch {
	case slices.Contains(SpeedActions, a):
		return CategorySpeed
	case slices.Contains(LaneActions, a):
		return CategoryLane
	case slices.Contains(SpecialActions, a):
		return CategorySpecial
	default:
		return CategoryUnknown
	}
}

// ActionPlan is the resolved intent of a bot for a single tick.
// An empty Lane means no lane change.
type ActionPlan struct {
	Speed   Action   `json:"speed"`
	Lane    Action   `json:"lane,omitempty"`
	Special []Action `json:"special"`
}

// IdlePlan is used whenever a bot does not deliver a usable decision
func IdlePlan() ActionPlan {
	return ActionPlan{Speed: ActionIdle, Special: []Action{}}
}

func (p ActionPlan) HasSpecial(a Action) bool {
	return slices.Contains(p.Special, a)
}

// Normalize drops unknown or misplaced directives.
// A missing or invalid speed directive becomes IDLE.
func (p ActionPlan) Normalize() ActionPlan {
	ret := ActionPlan{Speed: p.Speed, Lane: p.Lane, Special: []Action{}}
	if ret.Speed.Category() != CategorySpeed {
		ret.Speed = ActionIdle
	}
	if ret.Lane.Category() != CategoryLane {
		ret.Lane = ""
	}
	for _, a := range p.Special {
		if a.Category() == CategorySpecial && !slices.Contains(ret.Special, a) {
			ret.Special = append(ret.Special, a)
		}
	}
	return ret
}

func (p ActionPlan) Clone() ActionPlan {
	ret := p
	ret.Special = append([]Action{}, p.Special...)
	return ret
}
