package physics

import "github.com/mpapenbr/botrace/pkg/model"

// These values are part of the contract between bots and the engine.
// Changing them changes observable race behavior.
const (
	TickRate  = 60
	DeltaTime = 1.0 / TickRate // seconds per tick

	CarLength         = 5.0    // meters
	CarWidth          = 0.8    // lanes
	CarMass           = 1000.0 // kg
	DragCoefficient   = 0.3
	FrontalArea       = 2.0 // m²
	AirDensity        = 1.2 // kg/m³
	RollingResistance = 0.015
	Gravity           = 9.81

	DraftDistanceMin  = 5.0  // meters
	DraftDistanceMax  = 25.0 // meters
	MaxDraftReduction = 0.3  // drag reduction at full draft effectiveness
	MaxFuelSavings    = 0.3  // fuel savings at full draft effectiveness

	FuelEmptyPenalty       = 500.0 // N
	EngineOffRollingFactor = 3.0
	StopSpeed              = 10.0 // km/h, below this an empty car stops for good

	LaneChangeStep   = 0.2  // progress per tick, 5 ticks per change
	LaneDistanceStep = 0.05 // lane 0 is 5% shorter, lane 2 5% longer
	LaneTolerance    = 0.5

	JumpTicks    = 10
	JumpFuelCost = 5.0

	ObstacleSpeedFactor     = 0.3
	ObstacleFuelPenalty     = 5.0
	CollisionStunTicks      = 30
	CollisionAnimationTicks = 20
	FeatureCooldownTicks    = 5
	StunBleedThreshold      = 50.0 // km/h
	StunBleed               = 2.0  // km/h per tick

	RefuelRate    = 1.2   // liters per tick
	BoostPadLimit = 300.0 // km/h

	HighSpeedThreshold  = 200.0 // km/h
	HighSpeedFuelFactor = 0.3   // +30% per 100 km/h above threshold

	BlockSpeedFactor = 0.9

	kmhToMs = 3.6
)

// EngineForce in Newton per speed directive
var EngineForce = map[model.Action]float64{
	model.ActionAccelerate: 3000,
	model.ActionSprint:     5000,
	model.ActionCoast:      500,
	model.ActionBrake:      -4000,
	model.ActionBoost:      7000,
	model.ActionIdle:       0,
}

// FuelRate in liters per tick per speed directive
var FuelRate = map[model.Action]float64{
	model.ActionAccelerate: 0.025,
	model.ActionSprint:     0.045,
	model.ActionCoast:      0.008,
	model.ActionBrake:      0.003,
	model.ActionBoost:      0.070,
	model.ActionIdle:       0.005,
}

// LaneDistanceMultiplier returns the factor a distance in the given lane is
// scaled by compared to the middle lane.
func LaneDistanceMultiplier(lane int) float64 {
	return 1.0 + float64(lane-1)*LaneDistanceStep
}
