package model

import "slices"

// Controller collects the actions a bot issues during one decision.
// Speed and lane directives are last-write-wins, specials are de-duplicated.
type Controller struct {
	speed   Action
	lane    Action
	special []Action
}

func NewController() *Controller {
	return &Controller{special: []Action{}}
}

// Execute registers an action. Unknown actions are ignored.
func (c *Controller) Execute(a Action) {
	switch a.Category() {
	case CategorySpeed:
		c.speed = a
	case CategoryLane:
		c.lane = a
	case CategorySpecial:
		if !slices.Contains(c.special, a) {
			c.special = append(c.special, a)
		}
	case CategoryUnknown:
	}
}

// Plan returns the resolved plan, IDLE if no speed action was given
func (c *Controller) Plan() ActionPlan {
	ret := ActionPlan{
		Speed:   c.speed,
		Lane:    c.lane,
		Special: append([]Action{}, c.special...),
	}
	if ret.Speed == "" {
		ret.Speed = ActionIdle
	}
	return ret
}

func (c *Controller) Reset() {
	c.speed = ""
	c.lane = ""
	c.special = []Action{}
}
