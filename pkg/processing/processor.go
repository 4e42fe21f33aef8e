// Package processing computes the race analysis from the stream of race states.
package processing

import (
	"github.com/samber/lo"

	"github.com/mpapenbr/botrace/pkg/model"
	"github.com/mpapenbr/botrace/pkg/processing/car"
	"github.com/mpapenbr/botrace/pkg/processing/race"
)

type Processor struct {
	CurrentData   *model.AnalysisData
	carProcessor  *car.CarProcessor
	raceProcessor *race.RaceProcessor
	latestTick    int64
}
type ProcessorOption func(proc *Processor)

func WithCarProcessor(carProcessor *car.CarProcessor) ProcessorOption {
	return func(proc *Processor) {
		proc.carProcessor = carProcessor
	}
}

func WithRaceProcessor(raceProcessor *race.RaceProcessor) ProcessorOption {
	return func(proc *Processor) {
		proc.raceProcessor = raceProcessor
	}
}

func NewProcessor(opts ...ProcessorOption) *Processor {
	ret := &Processor{}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.carProcessor == nil {
		ret.carProcessor = car.NewCarProcessor()
	}
	if ret.raceProcessor == nil {
		ret.raceProcessor = race.NewRaceProcessor()
	}
	ret.composeAnalysisData()
	return ret
}

// ProcessAnalysisData initializes the car and race processors with
// previously computed analysis data
func (p *Processor) ProcessAnalysisData(analysisData *model.AnalysisData) {
	p.carProcessor.ProcessAnalysisData(analysisData)
	p.raceProcessor.ProcessAnalysisData(analysisData)
	p.latestTick = analysisData.CurrentTick
	p.composeAnalysisData()
}

// ProcessState processes the given race state
func (p *Processor) ProcessState(s *model.RaceState) {
	p.carProcessor.ProcessState(s)
	p.raceProcessor.ProcessState(s)
	p.latestTick = s.Race.CurrentTick
	p.composeAnalysisData()
}

func (p *Processor) GetData() *model.AnalysisData {
	return p.CurrentData
}

func (p *Processor) composeAnalysisData() {
	raceOrder := p.raceProcessor.RaceOrder // to keep names shorter
	if len(raceOrder) == 0 {
		raceOrder = model.Players
	}
	p.CurrentData = &model.AnalysisData{
		RaceOrder:       raceOrder,
		CarLaps:         flattenByReference(p.raceProcessor.CarLaps, raceOrder),
		CarComputeState: flattenByReference(p.carProcessor.ComputeState, raceOrder),
		CarStints:       flattenByReference(p.carProcessor.StintLookup, raceOrder),
		CarRefuels:      flattenByReference(p.carProcessor.RefuelLookup, raceOrder),
		RaceGraph:       append([]model.AnalysisRaceGraph{}, p.raceProcessor.RaceGraph...),
		CurrentTick:     p.latestTick,
	}
}

func flattenByReference[E any](data map[model.PlayerID]E, sortReference []model.PlayerID) []E {
	return lo.FilterMap(sortReference, func(k model.PlayerID, _ int) (E, bool) {
		v, ok := data[k]
		return v, ok
	})
}
