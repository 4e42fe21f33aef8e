package physics

import (
	"math"

	"github.com/mpapenbr/botrace/pkg/model"
)

// forwardGap returns the distance from position from forward to position to
// along the track, in [0, lapDistance).
func forwardGap(from, to, lapDistance float64) float64 {
	if lapDistance <= 0 {
		return to - from
	}
	gap := math.Mod(to-from, lapDistance)
	if gap < 0 {
		gap += lapDistance
	}
	return gap
}

// DraftEffectiveness returns the draft benefit for a car running gap meters
// behind another car. The benefit is 1 right behind the minimum distance and
// fades linearly to 0 at the maximum distance. Both bounds are exclusive.
func DraftEffectiveness(gap float64) float64 {
	if gap <= DraftDistanceMin || gap >= DraftDistanceMax {
		return 0
	}
	return 1.0 - (gap-DraftDistanceMin)/(DraftDistanceMax-DraftDistanceMin)
}

func updateDrafting(car, opponent *model.CarState, lapDistance float64) {
	car.IsDrafting = false
	car.DraftEffectiveness = 0
	if math.Abs(float64(opponent.Lane-car.Lane)) >= 1 {
		return
	}
	eff := DraftEffectiveness(forwardGap(car.Position, opponent.Position, lapDistance))
	if eff > 0 {
		car.IsDrafting = true
		car.DraftEffectiveness = eff
	}
}

func engineForce(car *model.CarState, speed model.Action) float64 {
	if car.Fuel <= 0 {
		car.EngineOff = true
		return 0
	}
	car.EngineOff = false
	return EngineForce[speed]
}

// DragForce in Newton for the given speed in km/h
func DragForce(speed, draftEffectiveness float64) float64 {
	v := speed / kmhToMs
	cd := DragCoefficient * (1 - MaxDraftReduction*draftEffectiveness)
	return 0.5 * cd * FrontalArea * AirDensity * v * v
}

// RollingForce in Newton. Without fuel the resistance triples.
func RollingForce(tireWear float64, engineOff bool) float64 {
	ret := RollingResistance * CarMass * Gravity * tireWear
	if engineOff {
		ret *= EngineOffRollingFactor
	}
	return ret
}

func updateSpeed(car *model.CarState, speed model.Action) {
	force := engineForce(car, speed)
	resist := DragForce(car.Speed, car.DraftEffectiveness) +
		RollingForce(car.TireWear, car.EngineOff || car.Fuel <= 0)
	if car.Fuel <= 0 {
		resist += FuelEmptyPenalty
	}
	acc := (force - resist) / CarMass
	car.Speed = math.Max(0, car.Speed+acc*DeltaTime*kmhToMs)
	if car.Fuel <= 0 && car.Speed < StopSpeed {
		car.Speed = 0
		car.Stopped = true
	}
}

// FuelPerTick returns the liters consumed in one tick for the given
// speed directive, current speed (km/h) and draft effectiveness.
// Unknown directives use a fallback rate.
func FuelPerTick(speed model.Action, currentSpeed, draftEffectiveness float64) float64 {
	rate, ok := FuelRate[speed]
	if !ok {
		rate = fallbackFuelRate
	}
	if currentSpeed > HighSpeedThreshold {
		rate *= 1 + (currentSpeed-HighSpeedThreshold)/100*HighSpeedFuelFactor
	}
	rate *= 1 - MaxFuelSavings*draftEffectiveness
	return rate
}

const fallbackFuelRate = 0.03

func consumeFuel(car *model.CarState, speed model.Action) {
	if car.Fuel <= 0 {
		car.Fuel = 0
		car.FuelConsumptionRate = 0
		return
	}
	rate := FuelPerTick(speed, car.Speed, car.DraftEffectiveness)
	car.FuelConsumptionRate = rate * TickRate
	car.Fuel = math.Max(0, car.Fuel-rate)
}
