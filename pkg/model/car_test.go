package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeatureLog_SeenPerLap(t *testing.T) {
	f := FeatureLog{Lap: 1}
	id := FeatureID{Lap: 1, Segment: 12, Index: 0, Lane: 1}
	assert.False(t, f.Seen(id))
	f.Add(id)
	assert.True(t, f.Seen(id))

	// same feature in the next lap is a different instance
	next := id
	next.Lap = 2
	assert.False(t, f.Seen(next))
	f.Add(next)
	assert.True(t, f.Seen(next))
	assert.False(t, f.Seen(id), "entries of the previous lap are dropped")
	assert.Len(t, f.IDs, 1)
}

func TestFeatureLog_Bounded(t *testing.T) {
	f := FeatureLog{Lap: 1}
	for i := 0; i < 21; i++ {
		f.Add(FeatureID{Lap: 1, Segment: i})
	}
	assert.Len(t, f.IDs, 10)
	assert.Equal(t, 11, f.IDs[0].Segment)
	assert.Equal(t, 20, f.IDs[9].Segment)
}

func TestRaceState_CloneIsIndependent(t *testing.T) {
	s := NewRaceState(&Track{LapDistance: 100}, 3)
	s.Player1.HitObstacles.Add(FeatureID{Lap: 1, Segment: 3})
	c := s.Clone()
	c.Player1.Speed = 100
	c.Player1.HitObstacles.Add(FeatureID{Lap: 1, Segment: 4})

	assert.Equal(t, 0.0, s.Player1.Speed)
	assert.Len(t, s.Player1.HitObstacles.IDs, 1)
	assert.Same(t, s.Track, c.Track)
}

func TestNewRaceState_Defaults(t *testing.T) {
	s := NewRaceState(&Track{LapDistance: 2000}, 5)
	for _, p := range Players {
		car := s.Car(p)
		assert.Equal(t, 100.0, car.Fuel)
		assert.Equal(t, 1, car.Lane)
		assert.Equal(t, 1, car.Lap)
		assert.Equal(t, 3, car.Boosts)
		assert.Equal(t, 1.0, car.TireWear)
	}
	assert.Equal(t, 1, s.Player1.RacePosition)
	assert.Equal(t, 2, s.Player2.RacePosition)
	assert.Nil(t, s.Car("player3"))
}
