//nolint:thelper,whitespace,lll,funlen,gocritic,dupl // ok for tests
package race

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mpapenbr/botrace/pkg/model"
)

type carPos struct {
	lap int
	pos float64
}

func sampleState(tick int64, p1, p2 carPos) *model.RaceState {
	s := model.NewRaceState(&model.Track{LapDistance: 1000}, 3)
	s.Race.CurrentTick = tick
	s.Player1.Lap, s.Player1.Position = p1.lap, p1.pos
	s.Player2.Lap, s.Player2.Position = p2.lap, p2.pos
	if s.Player2.Progress(1000) > s.Player1.Progress(1000) {
		s.Player1.RacePosition, s.Player2.RacePosition = 2, 1
	}
	return s
}

func TestRaceProcessor_ProcessState(t *testing.T) {
	p := NewRaceProcessor(WithTickDuration(0.5))
	states := []*model.RaceState{
		sampleState(10, carPos{1, 500}, carPos{1, 490}),
		sampleState(20, carPos{2, 5}, carPos{1, 995}),   // player1 completes lap 1
		sampleState(22, carPos{2, 20}, carPos{2, 5}),    // player2 completes lap 1
		sampleState(30, carPos{2, 600}, carPos{2, 650}), // player2 takes the lead
		sampleState(40, carPos{3, 2}, carPos{3, 50}),    // both complete lap 2
	}
	for _, s := range states {
		p.ProcessState(s)
	}

	assert.Equal(t, []model.PlayerID{model.Player2, model.Player1}, p.RaceOrder)

	assert.Equal(t, map[model.PlayerID]model.AnalysisCarLaps{
		model.Player1: {CarID: model.Player1, Laps: []model.AnalysisLapInfo{
			{LapNo: 1, LapTime: 10, EndTick: 20},
			{LapNo: 2, LapTime: 10, EndTick: 40},
		}},
		model.Player2: {CarID: model.Player2, Laps: []model.AnalysisLapInfo{
			{LapNo: 1, LapTime: 11, EndTick: 22},
			{LapNo: 2, LapTime: 9, EndTick: 40},
		}},
	}, p.CarLaps)

	assert.Equal(t, []model.AnalysisRaceGraph{
		{LapNo: 1, Gaps: []model.AnalysisGapInfo{
			{CarID: model.Player1, LapNo: 1, Pos: 1, Gap: 0},
			{CarID: model.Player2, LapNo: 0, Pos: 2, Gap: 10},
		}},
		{LapNo: 2, Gaps: []model.AnalysisGapInfo{
			{CarID: model.Player2, LapNo: 2, Pos: 1, Gap: 0},
			{CarID: model.Player1, LapNo: 2, Pos: 2, Gap: 48},
		}},
	}, p.RaceGraph)
}

func TestRaceProcessor_ProcessAnalysisData(t *testing.T) {
	p := NewRaceProcessor(WithTickDuration(1))
	p.ProcessAnalysisData(&model.AnalysisData{
		RaceOrder: []model.PlayerID{model.Player1, model.Player2},
		CarLaps: []model.AnalysisCarLaps{
			{CarID: model.Player1, Laps: []model.AnalysisLapInfo{{LapNo: 1, LapTime: 30, EndTick: 30}}},
		},
	})
	p.ProcessState(sampleState(50, carPos{3, 1}, carPos{1, 900}))
	laps := p.CarLaps[model.Player1].Laps
	assert.Len(t, laps, 2)
	assert.Equal(t, model.AnalysisLapInfo{LapNo: 2, LapTime: 20, EndTick: 50}, laps[1])
}
