package main

import (
	"math"
	"time"
)

// timeOfDayFor partitions the simulated clock into lighting periods.
func timeOfDayFor(simTimeSec int64) TimeOfDay {
	hour := (simTimeSec % gameDaySeconds) / 3600
	if hour < 0 {
		hour += 24
	}
	switch {
	case hour < 6 || hour >= 22:
		return TimeNight
	case hour >= 18:
		return TimeEvening
	default:
		return TimeDay
	}
}

// runLessonTick advances the session by however much wall time passed since
// the last tick, capped at the maximum real step. Overslept wall time beyond
// the cap is dropped rather than replayed.
//
// The caller holds the session lock and persists the snapshot and session
// rows afterwards. Fire object rows are saved here because each carries its
// own runtime block.
func runLessonTick(
	store *Store,
	cfg Config,
	session *SimulationSession,
	snap *SessionStateSnapshot,
	data *SnapshotData,
	now time.Time,
) (bool, error) {
	lesson := data.TrainingLesson
	if session.Status != SessionInProgress || lesson == nil || lesson.Phase != LessonRunning {
		return false, nil
	}

	base := lesson.LastTickAt
	if base == nil {
		base = lesson.StartedAt
	}
	if base == nil {
		at := now
		lesson.LastTickAt = &at
		return false, nil
	}

	rawDelta := math.Floor(now.Sub(*base).Seconds())
	if rawDelta <= 0 {
		return false, nil
	}
	maxStep := cfg.MaxStepReal.Seconds()
	if maxStep <= 0 {
		maxStep = 4.0
	}
	deltaReal := math.Min(rawDelta, maxStep)
	droppedSec := rawDelta - deltaReal
	tickLag := math.Max(0, rawDelta-cfg.LoopInterval.Seconds())

	multiplier := clampFloat(lesson.TimeMultiplier, timeMultiplierMin, timeMultiplierMax)
	deltaGame := int64(math.Round(deltaReal * multiplier))
	if deltaGame < 1 {
		deltaGame = 1
	}

	lesson.ElapsedGameSec += deltaGame
	simTime := lesson.StartSimTimeSec + lesson.ElapsedGameSec
	snap.SimTimeSec = simTime
	snap.TimeOfDay = timeOfDayFor(simTime)

	if err := runFireTick(store, session, data, deltaGame, now); err != nil {
		return false, err
	}

	runtime := data.FireRuntime
	health := &runtime.RuntimeHealth
	health.TicksTotal++
	health.DroppedTicksLast = droppedSec
	health.DroppedTicksTotal += droppedSec
	health.TickLagSec = round3(tickLag)
	tickAt := now
	health.LastTickAt = &tickAt
	health.LastDeltaRealSec = rawDelta
	health.LastDeltaGameSec = deltaGame
	health.LoopIntervalSec = cfg.LoopInterval.Seconds()
	health.MaxStepRealSec = maxStep

	runtime.Environment.TimeOfDay = string(snap.TimeOfDay)
	runtime.Environment.SimTimeSec = simTime
	runtime.Environment.TimeMultiplier = multiplier

	lesson.LastTickAt = &tickAt

	if lesson.TimeLimitSec > 0 && lesson.ElapsedGameSec >= lesson.TimeLimitSec {
		completeLessonByTimeout(session, data, now)
	}
	return true, nil
}

// runFireTick resolves the hydraulic graph and advances every hazard by
// deltaGame simulated seconds, rebuilding the runtime block from scratch.
func runFireTick(
	store *Store,
	session *SimulationSession,
	data *SnapshotData,
	deltaGame int64,
	now time.Time,
) error {
	deployments, err := store.Deployments(session.UID)
	if err != nil {
		return err
	}
	var vehicleUIDs []string
	for i := range deployments {
		if deployments[i].Kind == ResourceVehicle && deployments[i].VehicleDictionaryUID != "" {
			vehicleUIDs = append(vehicleUIDs, deployments[i].VehicleDictionaryUID)
		}
	}
	specs, err := store.VehicleSpecs(vehicleUIDs)
	if err != nil {
		return err
	}
	weather, err := store.Weather(session.UID)
	if err != nil {
		return err
	}
	rows, err := store.FireObjects(session.UID)
	if err != nil {
		return err
	}
	fires := make([]*FireObject, len(rows))
	for i := range rows {
		fires[i] = &rows[i]
	}

	graph := resolveResourceGraph(deployments, specs, data.FireRuntime, deltaGame)
	env := environmentFromWeather(weather)
	dyn := applyFireDynamics(fires, graph, env, data.Scene, session.UID, deltaGame, now)

	for _, fire := range fires {
		if err := store.SaveFireObject(fire); err != nil {
			return err
		}
	}
	for _, smoke := range dyn.newSmoke {
		if err := store.CreateFireObject(smoke); err != nil {
			return err
		}
	}

	data.FireRuntime = assembleFireRuntime(graph, dyn, env, data.FireRuntime)
	return nil
}

// assembleFireRuntime builds the runtime block published to clients, keeping
// the health counters of the previous block.
func assembleFireRuntime(
	graph *resolvedGraph,
	dyn *fireDynamicsResult,
	env environmentInputs,
	prior *FireRuntime,
) *FireRuntime {
	runtime := newFireRuntime()
	if prior != nil {
		runtime.RuntimeHealth = prior.RuntimeHealth
	}
	runtime.VehicleRuntime = graph.vehicleRuntime
	runtime.HoseRuntime = graph.hoseRuntime
	runtime.NozzleRuntime = graph.nozzleRuntime
	runtime.FireDirections = dyn.fireDirections
	runtime.QRequiredLS = dyn.qRequiredLS
	runtime.QEffectiveLS = round3(graph.effectiveFlowLS)
	runtime.SuppressionRatio = dyn.suppressionRatio
	runtime.Forecast = dyn.forecast
	runtime.ActiveFireObjects = dyn.activeFireObjects
	runtime.ActiveSmokeObjects = dyn.activeSmokeObjects
	runtime.ActiveNozzles = graph.activeNozzles
	runtime.EffectiveFlowLS = round3(graph.effectiveFlowLS)
	runtime.ConsumedWaterL = round2(graph.consumedWaterL)

	for _, nr := range graph.nozzleRuntime {
		if nr.BlockedReason == "" && nr.EffectiveFlowLS > 0 {
			runtime.WetNozzles++
		}
	}
	for _, hr := range graph.hoseRuntime {
		if hr.HasWater {
			runtime.WetHoseLines++
		}
	}

	runtime.Environment = EnvironmentState{
		WindSpeedMS:   env.windSpeedMS,
		WindDirDeg:    env.windDirDeg,
		TemperatureC:  env.temperatureC,
		HumidityPct:   env.humidityPct,
		Precipitation: env.precip,
		GrowthFactor:  round3(dyn.weatherGrowth),
	}
	return runtime
}

// completeLessonByTimeout ends an overrunning lesson on behalf of the system.
func completeLessonByTimeout(session *SimulationSession, data *SnapshotData, now time.Time) {
	lesson := data.TrainingLesson
	at := now
	lesson.Phase = LessonCompleted
	lesson.FinishedAt = &at
	lesson.FinishedBy = "SYSTEM"
	lesson.FinishReason = "timeout"
	session.Status = SessionCompleted
	session.FinishedAt = &at

	fires := 0
	if data.FireRuntime != nil {
		fires = data.FireRuntime.ActiveFireObjects
	}
	data.LessonResult = &LessonResult{
		FinishedBy:     "SYSTEM",
		Reason:         "lesson_timeout",
		DurationSec:    lesson.ElapsedGameSec,
		PauseCount:     lesson.PauseCount,
		FiresRemaining: fires,
		RadioSummary:   radioSummaryOf(data),
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
