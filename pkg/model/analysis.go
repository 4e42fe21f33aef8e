package model

type AnalysisLapInfo struct {
	LapNo   int     `json:"lapNo"`
	LapTime float64 `json:"lapTime"` // seconds of race time
	EndTick int64   `json:"endTick"`
}

type AnalysisCarLaps struct {
	CarID PlayerID          `json:"carId"`
	Laps  []AnalysisLapInfo `json:"laps"`
}

type AnalysisGapInfo struct {
	CarID PlayerID `json:"carId"`
	LapNo int      `json:"lapNo"`
	Pos   int      `json:"pos"`
	Gap   float64  `json:"gap"` // meters behind the leader
}

type AnalysisRaceGraph struct {
	LapNo int               `json:"lapNo"`
	Gaps  []AnalysisGapInfo `json:"gaps"`
}

type AnalysisCarComputeState struct {
	CarID PlayerID `json:"carId"`
	State string   `json:"state"`
}

type AnalysisStintInfo struct {
	StartTick      int64 `json:"startTick"`
	EndTick        int64 `json:"endTick"`
	LapStart       int   `json:"lapStart"`
	LapEnd         int   `json:"lapEnd"`
	NumLaps        int   `json:"numLaps"`
	IsCurrentStint bool  `json:"isCurrentStint"`
}

type AnalysisCarStints struct {
	CarID   PlayerID            `json:"carId"`
	Current AnalysisStintInfo   `json:"current"`
	History []AnalysisStintInfo `json:"history"`
}

type AnalysisRefuelInfo struct {
	EnterTick       int64   `json:"enterTick"`
	ExitTick        int64   `json:"exitTick"`
	Lap             int     `json:"lap"`
	FuelBefore      float64 `json:"fuelBefore"`
	FuelAfter       float64 `json:"fuelAfter"`
	IsCurrentRefuel bool    `json:"isCurrentRefuel"`
}

type AnalysisCarRefuels struct {
	CarID   PlayerID             `json:"carId"`
	Current AnalysisRefuelInfo   `json:"current"`
	History []AnalysisRefuelInfo `json:"history"`
}

// AnalysisData is the composed race analysis
type AnalysisData struct {
	RaceOrder       []PlayerID                `json:"raceOrder"`
	CarLaps         []AnalysisCarLaps         `json:"carLaps"`
	RaceGraph       []AnalysisRaceGraph       `json:"raceGraph"`
	CarComputeState []AnalysisCarComputeState `json:"carComputeState"`
	CarStints       []AnalysisCarStints       `json:"carStints"`
	CarRefuels      []AnalysisCarRefuels      `json:"carRefuels"`
	CurrentTick     int64                     `json:"currentTick"`
}
