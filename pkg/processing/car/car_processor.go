package car

import (
	"github.com/mpapenbr/botrace/pkg/model"
)

const (
	StateInit     = "INIT"
	StateRun      = "RUN"
	StateRefuel   = "REFUEL"
	StateOut      = "OUT"
	StateFinished = "FINISHED"
)

// CarProcessor tracks per car compute states, stints and refuel stops.
// A stint is the time a car spends on track between two refuel stops.
type CarProcessor struct {
	ComputeState map[model.PlayerID]model.AnalysisCarComputeState
	StintLookup  map[model.PlayerID]model.AnalysisCarStints
	RefuelLookup map[model.PlayerID]model.AnalysisCarRefuels
	players      []model.PlayerID
}

type CarProcessorOption func(cp *CarProcessor)

// WithPlayers restricts processing to the given players (default: both)
func WithPlayers(players ...model.PlayerID) CarProcessorOption {
	return func(cp *CarProcessor) {
		cp.players = players
	}
}

func NewCarProcessor(opts ...CarProcessorOption) *CarProcessor {
	cp := &CarProcessor{
		ComputeState: make(map[model.PlayerID]model.AnalysisCarComputeState),
		StintLookup:  make(map[model.PlayerID]model.AnalysisCarStints),
		RefuelLookup: make(map[model.PlayerID]model.AnalysisCarRefuels),
		players:      model.Players,
	}
	for _, opt := range opts {
		opt(cp)
	}
	for _, p := range cp.players {
		cp.ComputeState[p] = model.AnalysisCarComputeState{CarID: p, State: StateInit}
	}
	return cp
}

// ProcessAnalysisData restores the processor from previously computed data
func (p *CarProcessor) ProcessAnalysisData(analysisData *model.AnalysisData) {
	for i := range analysisData.CarComputeState {
		p.ComputeState[analysisData.CarComputeState[i].CarID] = analysisData.CarComputeState[i]
	}
	for i := range analysisData.CarStints {
		p.StintLookup[analysisData.CarStints[i].CarID] = analysisData.CarStints[i]
	}
	for i := range analysisData.CarRefuels {
		p.RefuelLookup[analysisData.CarRefuels[i].CarID] = analysisData.CarRefuels[i]
	}
}

// ProcessStates processes multiple states in order (mainly in tests)
func (p *CarProcessor) ProcessStates(states []*model.RaceState) {
	for i := range states {
		p.ProcessState(states[i])
	}
}

// ProcessState gets called for every race state produced by the engine
func (p *CarProcessor) ProcessState(s *model.RaceState) {
	for _, id := range p.players {
		c := s.Car(id)
		if c == nil {
			continue
		}
		cs := p.ComputeState[id]
		cs.CarID = id
		p.handleComputeState(&cs, c, observedState(s, c), s.Race.CurrentTick)
		p.ComputeState[id] = cs
	}
}

// observedState maps the car flags of a single tick onto a compute state
func observedState(s *model.RaceState, c *model.CarState) string {
	switch {
	case s.Finished():
		return StateFinished
	case c.IsRefueling:
		return StateRefuel
	case c.Stopped && c.Fuel <= 0:
		return StateOut
	default:
		return StateRun
	}
}

//nolint:whitespace // can't make the linters happy
func (p *CarProcessor) handleComputeState(
	cs *model.AnalysisCarComputeState,
	c *model.CarState,
	curState string,
	tick int64,
) {
	switch cs.State {
	case StateInit:
		p.handleComputeStateInit(cs, c, curState, tick)
	case StateRun:
		p.handleComputeStateRun(cs, c, curState, tick)
	case StateRefuel:
		p.handleComputeStateRefuel(cs, c, curState, tick)
	case StateOut:
		p.handleComputeStateOut(cs, c, curState, tick)
	case StateFinished: // final
	}
}

//nolint:whitespace // can't make the linters happy
func (p *CarProcessor) handleComputeStateInit(
	cs *model.AnalysisCarComputeState,
	c *model.CarState,
	curState string,
	tick int64,
) {
	switch curState {
	case StateRun:
		p.startStint(cs.CarID, c, tick)
		cs.State = StateRun
	case StateRefuel:
		p.startRefuel(cs.CarID, c, tick)
		cs.State = StateRefuel
	case StateOut:
		cs.State = StateOut
	case StateFinished:
		cs.State = StateFinished
	}
}

//nolint:whitespace // can't make the linters happy
func (p *CarProcessor) handleComputeStateRun(
	cs *model.AnalysisCarComputeState,
	c *model.CarState,
	curState string,
	tick int64,
) {
	stint := p.StintLookup[cs.CarID]
	// these values are "precomputed" in case the stint ends
	stint.Current.EndTick = tick
	stint.Current.LapEnd = c.Lap
	stint.Current.NumLaps = c.Lap - stint.Current.LapStart + 1
	p.StintLookup[cs.CarID] = stint

	switch curState {
	case StateRun:
	case StateRefuel:
		p.endStint(cs.CarID)
		p.startRefuel(cs.CarID, c, tick)
		cs.State = StateRefuel
	case StateOut:
		p.endStint(cs.CarID)
		cs.State = StateOut
	case StateFinished:
		p.endStint(cs.CarID)
		cs.State = StateFinished
	}
}

//nolint:whitespace // can't make the linters happy
func (p *CarProcessor) handleComputeStateRefuel(
	cs *model.AnalysisCarComputeState,
	c *model.CarState,
	curState string,
	tick int64,
) {
	refuels := p.RefuelLookup[cs.CarID]
	refuels.Current.ExitTick = tick
	refuels.Current.FuelAfter = c.Fuel
	p.RefuelLookup[cs.CarID] = refuels

	switch curState {
	case StateRefuel:
	case StateRun:
		p.endRefuel(cs.CarID)
		p.startStint(cs.CarID, c, tick)
		cs.State = StateRun
	case StateOut:
		p.endRefuel(cs.CarID)
		cs.State = StateOut
	case StateFinished:
		p.endRefuel(cs.CarID)
		cs.State = StateFinished
	}
}

//nolint:whitespace // can't make the linters happy
func (p *CarProcessor) handleComputeStateOut(
	cs *model.AnalysisCarComputeState,
	c *model.CarState,
	curState string,
	tick int64,
) {
	switch curState {
	case StateOut:
	case StateRun:
		p.startStint(cs.CarID, c, tick)
		cs.State = StateRun
	case StateRefuel:
		p.startRefuel(cs.CarID, c, tick)
		cs.State = StateRefuel
	case StateFinished:
		cs.State = StateFinished
	}
}

func (p *CarProcessor) startStint(id model.PlayerID, c *model.CarState, tick int64) {
	stints, ok := p.StintLookup[id]
	if !ok {
		stints = model.AnalysisCarStints{
			CarID:   id,
			History: []model.AnalysisStintInfo{},
		}
	}
	stints.Current = model.AnalysisStintInfo{
		StartTick:      tick,
		EndTick:        tick,
		LapStart:       c.Lap,
		LapEnd:         c.Lap,
		NumLaps:        1,
		IsCurrentStint: true,
	}
	p.StintLookup[id] = stints
}

func (p *CarProcessor) endStint(id model.PlayerID) {
	stints := p.StintLookup[id]
	stints.Current.IsCurrentStint = false
	stints.History = append(stints.History, stints.Current)
	stints.Current = model.AnalysisStintInfo{IsCurrentStint: false}
	p.StintLookup[id] = stints
}

func (p *CarProcessor) startRefuel(id model.PlayerID, c *model.CarState, tick int64) {
	refuels, ok := p.RefuelLookup[id]
	if !ok {
		refuels = model.AnalysisCarRefuels{
			CarID:   id,
			History: []model.AnalysisRefuelInfo{},
		}
	}
	refuels.Current = model.AnalysisRefuelInfo{
		EnterTick:       tick,
		ExitTick:        tick,
		Lap:             c.Lap,
		FuelBefore:      c.Fuel,
		FuelAfter:       c.Fuel,
		IsCurrentRefuel: true,
	}
	p.RefuelLookup[id] = refuels
}

func (p *CarProcessor) endRefuel(id model.PlayerID) {
	refuels := p.RefuelLookup[id]
	refuels.Current.IsCurrentRefuel = false
	refuels.History = append(refuels.History, refuels.Current)
	refuels.Current = model.AnalysisRefuelInfo{IsCurrentRefuel: false}
	p.RefuelLookup[id] = refuels
}
