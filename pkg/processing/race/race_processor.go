package race

import (
	"slices"

	"github.com/mpapenbr/botrace/pkg/model"
	"github.com/mpapenbr/botrace/pkg/physics"
)

// RaceProcessor computes race order, lap times and the gaps to the leader
// at the end of each lap of the leader.
type RaceProcessor struct {
	RaceOrder    []model.PlayerID
	CarLaps      map[model.PlayerID]model.AnalysisCarLaps
	RaceGraph    []model.AnalysisRaceGraph
	tickDuration float64
	lastLap      map[model.PlayerID]int
	lapStartTick map[model.PlayerID]int64
}

type RaceProcessorOption func(rp *RaceProcessor)

// WithTickDuration sets the seconds per tick used for lap times
func WithTickDuration(d float64) RaceProcessorOption {
	return func(rp *RaceProcessor) {
		rp.tickDuration = d
	}
}

func NewRaceProcessor(opts ...RaceProcessorOption) *RaceProcessor {
	ret := &RaceProcessor{
		RaceOrder:    make([]model.PlayerID, 0),
		CarLaps:      make(map[model.PlayerID]model.AnalysisCarLaps),
		RaceGraph:    make([]model.AnalysisRaceGraph, 0),
		tickDuration: physics.DeltaTime,
		lastLap:      make(map[model.PlayerID]int),
		lapStartTick: make(map[model.PlayerID]int64),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// ProcessAnalysisData restores the processor from previously computed data
func (p *RaceProcessor) ProcessAnalysisData(analysisData *model.AnalysisData) {
	p.RaceOrder = slices.Clone(analysisData.RaceOrder)
	p.RaceGraph = slices.Clone(analysisData.RaceGraph)
	for _, cl := range analysisData.CarLaps {
		p.CarLaps[cl.CarID] = cl
		if n := len(cl.Laps); n > 0 {
			p.lastLap[cl.CarID] = cl.Laps[n-1].LapNo + 1
			p.lapStartTick[cl.CarID] = cl.Laps[n-1].EndTick
		}
	}
}

// ProcessState processes the given state.
func (p *RaceProcessor) ProcessState(s *model.RaceState) {
	p.RaceOrder = slices.Clone(model.Players)
	slices.SortStableFunc(p.RaceOrder, func(a, b model.PlayerID) int {
		return s.Car(a).RacePosition - s.Car(b).RacePosition
	})
	leader := p.RaceOrder[0]
	leaderCompleted := p.processCarLaps(s)
	if lap, ok := leaderCompleted[leader]; ok {
		p.processRaceGraph(s, lap)
	}
}

// processCarLaps records finished laps and returns the completed lap per car
func (p *RaceProcessor) processCarLaps(s *model.RaceState) map[model.PlayerID]int {
	ret := map[model.PlayerID]int{}
	for _, id := range model.Players {
		c := s.Car(id)
		last, ok := p.lastLap[id]
		if !ok {
			last = 1
			p.lastLap[id] = last
		}
		if c.Lap <= last {
			continue
		}
		carEntry, ok := p.CarLaps[id]
		if !ok {
			carEntry = model.AnalysisCarLaps{
				CarID: id,
				Laps:  make([]model.AnalysisLapInfo, 0),
			}
		}
		ticks := s.Race.CurrentTick - p.lapStartTick[id]
		carEntry.Laps = append(carEntry.Laps, model.AnalysisLapInfo{
			LapNo:   last,
			LapTime: float64(ticks) * p.tickDuration,
			EndTick: s.Race.CurrentTick,
		})
		p.CarLaps[id] = carEntry
		p.lastLap[id] = c.Lap
		p.lapStartTick[id] = s.Race.CurrentTick
		ret[id] = last
	}
	return ret
}

func (p *RaceProcessor) processRaceGraph(s *model.RaceState, lapNo int) {
	lapDistance := 0.0
	if s.Track != nil {
		lapDistance = s.Track.LapDistance
	}
	leader := s.Car(p.RaceOrder[0])
	entry := model.AnalysisRaceGraph{
		LapNo: lapNo,
		Gaps:  make([]model.AnalysisGapInfo, 0, len(p.RaceOrder)),
	}
	for _, id := range p.RaceOrder {
		c := s.Car(id)
		entry.Gaps = append(entry.Gaps, model.AnalysisGapInfo{
			CarID: id,
			LapNo: c.Lap - 1,
			Pos:   c.RacePosition,
			Gap:   leader.Progress(lapDistance) - c.Progress(lapDistance),
		})
	}
	// a lap entry may be computed again after a restore
	if idx := slices.IndexFunc(p.RaceGraph, func(item model.AnalysisRaceGraph) bool {
		return item.LapNo == entry.LapNo
	}); idx != -1 {
		p.RaceGraph[idx] = entry
	} else {
		p.RaceGraph = append(p.RaceGraph, entry)
	}
}
