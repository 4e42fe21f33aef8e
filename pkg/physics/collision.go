package physics

import (
	"math"

	"github.com/mpapenbr/botrace/log"
	"github.com/mpapenbr/botrace/pkg/model"
)

func cooledDown(now, last int64) bool {
	return last == 0 || now-last > FeatureCooldownTicks
}

func inLane(car *model.CarState, lane int) bool {
	return math.Abs(float64(car.Lane-lane)) < LaneTolerance
}

// resolveTrackCollisions applies the features of the segment the car is on.
// Positions without a segment have no features.
//
//nolint:funlen // sequential feature handling
func (e *Engine) resolveTrackCollisions(s *model.RaceState, p model.PlayerID, car *model.CarState) {
	// Stun decays before the features of this tick are applied: a fresh hit
	// reads its full stun after the tick and the bleed of an older hit comes
	// before any boost pad bonus.
	if car.CollisionStun > 0 {
		car.CollisionStun--
		if car.Speed > StunBleedThreshold {
			car.Speed -= StunBleed
		}
	}
	if car.CollisionAnimation > 0 {
		car.CollisionAnimation--
	}

	idx, seg, ok := s.Track.SegmentAt(car.Position)
	if ok {
		if !car.IsJumping {
			for i, o := range seg.Obstacles {
				if !inLane(car, o.Lane) {
					continue
				}
				id := model.FeatureID{Lap: car.Lap, Segment: idx, Index: i, Lane: o.Lane}
				if car.HitObstacles.Seen(id) || !cooledDown(e.tickCount, car.LastCollisionTick) {
					continue
				}
				car.Speed *= ObstacleSpeedFactor
				car.Fuel = math.Max(0, car.Fuel-ObstacleFuelPenalty)
				car.CollisionStun = CollisionStunTicks
				car.CollisionAnimation = CollisionAnimationTicks
				car.HitObstacles.Add(id)
				car.LastCollisionTick = e.tickCount
				e.emit(Event{Type: EventObstacleHit, Player: p, Lap: car.Lap, Position: car.Position})
				e.logger.Debug("obstacle hit",
					log.String("player", string(p)),
					log.Int("lane", car.Lane),
					log.Float64("position", car.Position))
			}
		}

		switch seg.Type {
		case model.SegmentFuelZone:
			for _, item := range seg.Items {
				if item.Type != model.ItemFuel || !item.HasFuelLane(car.Lane) {
					continue
				}
				car.Fuel = math.Min(car.MaxFuel, car.Fuel+RefuelRate)
				car.IsRefueling = true
			}
		case model.SegmentBoostZone:
			for i, item := range seg.Items {
				if item.Type != model.ItemBoostPad || !inLane(car, item.Lane) {
					continue
				}
				id := model.FeatureID{Lap: car.Lap, Segment: idx, Index: i, Lane: item.Lane}
				if car.UsedBoostPads.Seen(id) || !cooledDown(e.tickCount, car.LastBoostTick) {
					continue
				}
				car.Speed = math.Min(BoostPadLimit, car.Speed+item.SpeedBonus)
				car.UsedBoostPads.Add(id)
				car.LastBoostTick = e.tickCount
				e.emit(Event{Type: EventBoostPad, Player: p, Lap: car.Lap, Position: car.Position})
				e.logger.Debug("boost pad",
					log.String("player", string(p)),
					log.Float64("speed", car.Speed))
			}
		}
	}

	if car.Stopped && car.Fuel <= 0 {
		car.Speed = 0
	}
}

// resolveCarCollision caps the speed of the trailing car when both cars
// overlap. On equal positions player1 is considered trailing.
func resolveCarCollision(s *model.RaceState) {
	c1, c2 := &s.Player1, &s.Player2
	if math.Abs(float64(c1.Lane-c2.Lane)) >= CarWidth {
		return
	}
	ld := s.Track.LapDistance
	gap := forwardGap(c2.Position, c1.Position, ld) // >0: player1 ahead of player2
	switch {
	case gap > 0 && gap < CarLength:
		c2.Speed = math.Min(c2.Speed, c1.Speed*BlockSpeedFactor)
	case gap == 0 || ld-gap < CarLength:
		c1.Speed = math.Min(c1.Speed, c2.Speed*BlockSpeedFactor)
	}
}
