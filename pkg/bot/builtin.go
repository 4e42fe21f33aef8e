package bot

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/mpapenbr/botrace/pkg/model"
	"github.com/mpapenbr/botrace/pkg/view"
)

var builtins = map[string]func() Bot{
	"idle":   func() Bot { return &IdleBot{} },
	"simple": func() Bot { return &SimpleBot{} },
	"fuel":   func() Bot { return &FuelBot{} },
}

// Builtin returns a new instance of the builtin bot with the given name
func Builtin(name string) (Bot, error) {
	f, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBot, name)
	}
	return f(), nil
}

func BuiltinNames() []string {
	ret := make([]string, 0, len(builtins))
	for k := range builtins {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}

// IdleBot never does anything
type IdleBot struct{}

func (b *IdleBot) Name() string { return "idle" }

func (b *IdleBot) Decide(ctx context.Context, v *view.BotView) (model.ActionPlan, error) {
	return model.IdlePlan(), nil
}

// SimpleBot accelerates as long as there is fuel and never changes lanes
type SimpleBot struct{}

func (b *SimpleBot) Name() string { return "simple" }

func (b *SimpleBot) Decide(ctx context.Context, v *view.BotView) (model.ActionPlan, error) {
	c := model.NewController()
	if v.Car.Fuel > 10 {
		c.Execute(model.ActionAccelerate)
	} else {
		c.Execute(model.ActionCoast)
	}
	return c.Plan(), nil
}

// fuel levels used by FuelBot
const (
	fuelAggressive = 70.0
	fuelNormal     = 40.0
	jumpDistance   = 10.0 // obstacles closer than this are jumped instead of dodged
)

// FuelBot manages its fuel: it refuels when low, dodges obstacles and
// collects boost pads while the tank is well filled.
type FuelBot struct{}

func (b *FuelBot) Name() string { return "fuel" }

//nolint:gocognit,cyclop // decision tree
func (b *FuelBot) Decide(ctx context.Context, v *view.BotView) (model.ActionPlan, error) {
	c := model.NewController()
	lane := v.Car.Lane

	// obstacles first
	if next, ok := v.NextObstacle(lane); ok && !v.Car.ChangingLane {
		switch {
		case v.IsLaneSafe(lane-1) && next.Distance > jumpDistance:
			c.Execute(model.ActionChangeLaneLeft)
		case v.IsLaneSafe(lane+1) && next.Distance > jumpDistance:
			c.Execute(model.ActionChangeLaneRight)
		case next.Distance <= jumpDistance && v.Car.Fuel > 15:
			c.Execute(model.ActionJump)
		}
	}

	// low fuel: get into a lane with fuel
	if v.Car.Fuel < fuelNormal && !v.Car.ChangingLane {
		stations := v.GetFuelStationsAhead()
		if len(stations) > 0 && !v.HasFuelStationAhead() {
			lanes := make([]int, 0, len(stations))
			for _, s := range stations {
				lanes = append(lanes, s.Lane)
			}
			if target := nearestLane(lane, lanes); target != lane && v.IsLaneSafe(target) {
				c.Execute(laneAction(lane, target))
			}
		}
		if len(stations) > 0 {
			c.Execute(model.ActionCoast)
			return c.Plan(), nil
		}
	}

	// boost pads when there is fuel to spare
	if v.Car.Fuel > fuelNormal && !v.Car.ChangingLane && !v.HasBoostPadAhead() {
		for _, pad := range v.GetBoostPadsAhead() {
			if pad.Distance <= 3*model.SegmentLength && v.IsLaneSafe(pad.Lane) {
				c.Execute(laneAction(lane, pad.Lane))
				break
			}
		}
	}

	switch {
	case v.Car.Fuel > fuelAggressive:
		c.Execute(model.ActionSprint)
	case v.Car.Fuel > fuelNormal:
		c.Execute(model.ActionAccelerate)
	default:
		c.Execute(model.ActionCoast)
	}
	return c.Plan(), nil
}

func nearestLane(from int, lanes []int) int {
	if len(lanes) == 0 || slices.Contains(lanes, from) {
		return from
	}
	best := lanes[0]
	for _, l := range lanes[1:] {
		if abs(l-from) < abs(best-from) {
			best = l
		}
	}
	return best
}

// laneAction returns the lane change moving from towards to. No lane change
// is returned as empty action which the controller ignores.
func laneAction(from, to int) model.Action {
	switch {
	case to < from:
		return model.ActionChangeLaneLeft
	case to > from:
		return model.ActionChangeLaneRight
	default:
		return ""
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
