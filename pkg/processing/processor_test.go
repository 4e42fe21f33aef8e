//nolint:thelper,whitespace,lll,funlen,gocritic,dupl // ok for tests
package processing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/botrace/pkg/model"
	"github.com/mpapenbr/botrace/pkg/physics"
	"github.com/mpapenbr/botrace/pkg/processing/car"
	"github.com/mpapenbr/botrace/pkg/track"
)

func TestProcessor_Empty(t *testing.T) {
	p := NewProcessor()
	data := p.GetData()
	require.NotNil(t, data)
	assert.Equal(t, model.Players, data.RaceOrder)
	assert.Empty(t, data.CarLaps)
	assert.Len(t, data.CarComputeState, 2)
}

func TestProcessor_ProcessState(t *testing.T) {
	tr := &model.Track{LapDistance: 1000}
	p := NewProcessor()

	s := model.NewRaceState(tr, 2)
	s.Race.CurrentTick = 1
	s.Player2.Position = 50
	s.Player1.RacePosition, s.Player2.RacePosition = 2, 1
	p.ProcessState(s)

	data := p.GetData()
	assert.Equal(t, []model.PlayerID{model.Player2, model.Player1}, data.RaceOrder)
	assert.Equal(t, int64(1), data.CurrentTick)
	assert.Equal(t, model.Player2, data.CarComputeState[0].CarID)
	assert.Equal(t, car.StateRun, data.CarComputeState[0].State)
	assert.Len(t, data.CarStints, 2)
	assert.Empty(t, data.CarRefuels)
}

// runs a short race with the engine and checks the analysis is consistent
func TestProcessor_WithEngine(t *testing.T) {
	tr, err := track.NewGenerator(track.WithLength(500), track.WithDifficulty(track.DifficultyNone)).Generate(7)
	require.NoError(t, err)
	e := physics.NewEngine()
	p := NewProcessor()
	s := model.NewRaceState(tr, 2)
	accelerate := model.ActionPlan{Speed: model.ActionAccelerate, Special: []model.Action{}}
	for i := 0; i < 20000 && !s.Finished(); i++ {
		s = e.Tick(s, accelerate, accelerate)
		p.ProcessState(s)
	}
	require.True(t, s.Finished())
	data := p.GetData()
	for _, cl := range data.CarLaps {
		assert.NotEmpty(t, cl.Laps)
		for _, l := range cl.Laps {
			assert.Greater(t, l.LapTime, 0.0)
		}
	}
	assert.NotEmpty(t, data.RaceGraph)
	for _, cs := range data.CarComputeState {
		assert.Equal(t, car.StateFinished, cs.State)
	}
}
