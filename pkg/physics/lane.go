package physics

import "github.com/mpapenbr/botrace/pkg/model"

// updateLaneChange runs the lane change state machine.
// A request is only accepted when no change is in progress and the target
// lane exists. The committed lane switches once progress reaches 1.
func updateLaneChange(car *model.CarState, request model.Action) {
	if !car.ChangingLane {
		target := car.Lane
		switch request {
		case model.ActionChangeLaneLeft:
			target = car.Lane - 1
		case model.ActionChangeLaneRight:
			target = car.Lane + 1
		}
		if target != car.Lane && target >= 0 && target < model.NumLanes {
			car.ChangingLane = true
			car.TargetLane = target
			car.LaneChangeProgress = 0
		}
	}

	if !car.ChangingLane {
		car.TargetLane = car.Lane
		car.DisplayLane = float64(car.Lane)
		return
	}
	car.LaneChangeProgress += LaneChangeStep
	// float accumulation of 5*0.2 may end slightly below 1
	if car.LaneChangeProgress >= 1-1e-9 {
		car.Lane = car.TargetLane
		car.ChangingLane = false
		car.LaneChangeProgress = 0
		car.DisplayLane = float64(car.Lane)
		return
	}
	car.DisplayLane = float64(car.Lane) +
		float64(car.TargetLane-car.Lane)*car.LaneChangeProgress
}

// updateJump starts a jump if requested and possible, otherwise advances a
// running jump. A jump keeps the car airborne for JumpTicks collision checks.
func updateJump(car *model.CarState, plan model.ActionPlan) {
	if car.IsJumping {
		car.JumpTicksRemaining--
		if car.JumpTicksRemaining <= 0 {
			car.JumpTicksRemaining = 0
			car.IsJumping = false
		}
		return
	}
	if plan.HasSpecial(model.ActionJump) && car.Fuel >= JumpFuelCost {
		car.IsJumping = true
		car.JumpTicksRemaining = JumpTicks
		car.Fuel -= JumpFuelCost
	}
	// ENTER_PIT is accepted but has no effect, the pit lane is informational
}
