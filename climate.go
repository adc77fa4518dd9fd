package troll

import "github.com/ecotroll/troll/config"

// Climate is one day's (or one iteration's) driving weather (spec §6
// "Climate file"): T_day, T_night, rain, WS, shortwave_irradiance, VPD.
type Climate struct {
	TDay, TNight float64 // degrees C
	Rain         float64 // mm
	WS           float64 // m/s
	ShortwaveIrradiance float64 // W/m2, daily PAR equivalent
	VPD          float64 // kPa
}

// DaytimeProfile is the normalised intra-day variation table (spec §6
// "Daytime variation file"): light/VPD/T/wind across NbSteps sub-steps
// covering NbHoursCovered hours, mean 1 and summing to NbSteps.
type DaytimeProfile struct {
	Light []float64
	VPD   []float64
	T     []float64
	Wind  []float64

	NbHoursCovered float64
}

// NbSteps returns the number of intra-day sub-steps.
func (d *DaytimeProfile) NbSteps() int { return len(d.Light) }

// defaultDaytimeProfile is a single-step profile (mean-of-day, no intra-day
// structure) used when no daytime variation file is supplied; every
// multiplier is 1 so the sub-step integration in buildLayerSamples and
// Tree.Growth degenerates to the plain daily mean (spec §4.3 "Daily
// integration").
func defaultDaytimeProfile() *DaytimeProfile {
	return &DaytimeProfile{Light: []float64{1}, VPD: []float64{1}, T: []float64{1}, Wind: []float64{1}, NbHoursCovered: 12}
}

// selectClimate picks the climate vector for timestep iter (spec §4.8 step
// 1): indexed modulo the series length under Periodic mode, or directly
// under FullSeries mode (clamped to the last entry once exhausted).
func (s *Simulation) selectClimate(iter int) Climate {
	n := len(s.Climates)
	if n == 0 {
		return Climate{TDay: 25, TNight: 22, WS: 1, ShortwaveIrradiance: 400, VPD: 1}
	}
	if s.Params.Selectors.ClimateMode == config.Periodic {
		return s.Climates[iter%n]
	}
	if iter >= n {
		return s.Climates[n-1]
	}
	return s.Climates[iter]
}
