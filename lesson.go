package main

import (
	"time"

	"github.com/google/uuid"
)

// ensureLesson returns the lesson block, deriving a draft one from the
// session row for snapshots written before lessons existed.
func ensureLesson(data *SnapshotData, session *SimulationSession, cfg Config) *LessonState {
	if data.TrainingLesson == nil {
		data.TrainingLesson = &LessonState{
			Phase:           PhaseForStatus(session.Status),
			TimeLimitSec:    cfg.LessonTimeLimitSec,
			StartSimTimeSec: cfg.StartSimTimeSec,
			TimeMultiplier:  cfg.TimeMultiplier,
		}
	}
	return data.TrainingLesson
}

// startLessonParams are the optional overrides accepted by start_lesson.
type startLessonParams struct {
	TimeLimitSec    *int64   `json:"time_limit_sec,omitempty"`
	StartSimTimeSec *int64   `json:"start_sim_time_sec,omitempty"`
	TimeMultiplier  *float64 `json:"time_multiplier,omitempty"`
}

// startLesson moves a fresh session into the running phase. The scene is
// checkpointed and its fire sources are synced into live hazards first, so
// the drill starts from exactly what the training lead drew.
func startLesson(
	store *Store,
	cfg Config,
	session *SimulationSession,
	snap *SessionStateSnapshot,
	data *SnapshotData,
	params startLessonParams,
	now time.Time,
) error {
	switch session.Status {
	case SessionInProgress:
		return errConflict("Lesson already started")
	case SessionPaused:
		return errConflict("Lesson is paused, resume it instead of starting")
	case SessionCompleted:
		return errConflict("Session is completed, create a new session to run another lesson")
	}

	lesson := ensureLesson(data, session, cfg)

	limit := cfg.LessonTimeLimitSec
	if params.TimeLimitSec != nil {
		limit = *params.TimeLimitSec
	}
	if limit < minLessonTimeLimit || limit > maxLessonTimeLimit {
		return errValidation("time_limit_sec must be between %d and %d", minLessonTimeLimit, maxLessonTimeLimit)
	}
	startSim := cfg.StartSimTimeSec
	if params.StartSimTimeSec != nil {
		startSim = *params.StartSimTimeSec
	}
	if startSim < 0 || startSim >= gameDaySeconds {
		return errValidation("start_sim_time_sec must be within one day")
	}
	multiplier := cfg.TimeMultiplier
	if params.TimeMultiplier != nil {
		multiplier = *params.TimeMultiplier
	}
	multiplier = clampFloat(multiplier, timeMultiplierMin, timeMultiplierMax)

	if data.Scene != nil {
		data.AppendCheckpoint(SceneCheckpoint{
			ID:    uuid.NewString(),
			Name:  "Автосохранение перед стартом",
			At:    now,
			Scene: data.Scene.Clone(),
		})
		if err := syncSceneToFireObjects(store, session.UID, data.Scene, now); err != nil {
			return err
		}
	}

	at := now
	plannedEnd := now.Add(time.Duration(float64(limit) / multiplier * float64(time.Second)))
	lesson.Phase = LessonRunning
	lesson.TimeLimitSec = limit
	lesson.StartSimTimeSec = startSim
	lesson.TimeMultiplier = multiplier
	lesson.ElapsedGameSec = 0
	lesson.StartedAt = &at
	lesson.LastTickAt = &at
	lesson.PlannedEndAt = &plannedEnd
	lesson.PausedAt = nil
	lesson.ResumedAt = nil
	lesson.FinishedAt = nil
	lesson.FinishedBy = ""
	lesson.FinishReason = ""
	data.LessonResult = nil

	snap.SimTimeSec = startSim
	snap.TimeOfDay = timeOfDayFor(startSim)

	session.Status = SessionInProgress
	session.StartedAt = &at
	session.FinishedAt = nil
	return nil
}

// pauseLesson freezes a running lesson.
func pauseLesson(session *SimulationSession, data *SnapshotData, now time.Time) error {
	lesson := data.TrainingLesson
	if session.Status != SessionInProgress || lesson == nil || lesson.Phase != LessonRunning {
		return errConflict("Lesson is not running")
	}
	at := now
	lesson.Phase = LessonPaused
	lesson.PausedAt = &at
	lesson.PauseCount++
	session.Status = SessionPaused
	return nil
}

// resumeLesson continues a paused lesson. The tick base is reset to now so
// the paused wall time is not replayed into the simulation.
func resumeLesson(session *SimulationSession, data *SnapshotData, now time.Time) error {
	lesson := data.TrainingLesson
	if session.Status != SessionPaused || lesson == nil || lesson.Phase != LessonPaused {
		return errConflict("Lesson is not paused")
	}
	at := now
	lesson.Phase = LessonRunning
	lesson.ResumedAt = &at
	lesson.LastTickAt = &at
	session.Status = SessionInProgress
	return nil
}

// finishLesson ends a running or paused lesson and writes the result block.
func finishLesson(
	session *SimulationSession,
	data *SnapshotData,
	finishedBy string,
	reason string,
	now time.Time,
) error {
	lesson := data.TrainingLesson
	if lesson == nil || (lesson.Phase != LessonRunning && lesson.Phase != LessonPaused) {
		return errConflict("Lesson is not active")
	}
	if reason == "" {
		reason = "manual"
	}
	at := now
	lesson.Phase = LessonCompleted
	lesson.FinishedAt = &at
	lesson.FinishedBy = finishedBy
	lesson.FinishReason = reason
	session.Status = SessionCompleted
	session.FinishedAt = &at

	fires := 0
	if data.FireRuntime != nil {
		fires = data.FireRuntime.ActiveFireObjects
	}
	data.LessonResult = &LessonResult{
		FinishedBy:     finishedBy,
		Reason:         reason,
		DurationSec:    lesson.ElapsedGameSec,
		PauseCount:     lesson.PauseCount,
		FiresRemaining: fires,
		RadioSummary:   radioSummaryOf(data),
	}
	return nil
}
