package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{
		LoopInterval:       time.Second,
		MaxStepReal:        4 * time.Second,
		ReceiveTimeout:     time.Second,
		WriteWait:          10 * time.Second,
		TimeMultiplier:     1.0,
		StartSimTimeSec:    defaultStartSimTime,
		CommandRateLimit:   30,
		CommandRateWindow:  time.Second,
		IdempotencyTTL:     900 * time.Second,
		IdempotencyMax:     20000,
		LessonTimeLimitSec: defaultLessonTimeLimit,
	}
}

func newTestSession(t *testing.T) (*Store, *SimulationSession, *SessionStateSnapshot, *SnapshotData) {
	t.Helper()
	store, err := newMemoryStore()
	require.NoError(t, err)

	session := &SimulationSession{UID: "sess-1", Title: "Учебный пожар", Status: SessionCreated}
	require.NoError(t, store.CreateSession(session))

	snap, err := store.CurrentSnapshot(session.UID)
	require.NoError(t, err)
	data, err := decodeSnapshotData(snap.SnapshotData)
	require.NoError(t, err)
	return store, session, snap, data
}

func TestStartLessonFromCreated(t *testing.T) {
	store, session, snap, data := newTestSession(t)
	scene := data.ensureScene()
	scene.Floors[0].Objects = append(scene.Floors[0].Objects, SceneObject{
		ID:           "obj-fire",
		Kind:         SceneFireSource,
		GeometryType: GeometryPoint,
		Geometry:     [][]float64{{3, 3}},
		Props:        map[string]any{"fire_rank": 2.0},
	})

	now := time.Now()
	require.NoError(t, startLesson(store, testConfig(), session, snap, data, startLessonParams{}, now))

	require.Equal(t, SessionInProgress, session.Status)
	require.Equal(t, LessonRunning, data.TrainingLesson.Phase)
	require.NotNil(t, data.TrainingLesson.StartedAt)
	require.NotNil(t, data.TrainingLesson.PlannedEndAt)
	require.Equal(t, int64(defaultStartSimTime), snap.SimTimeSec)
	require.Len(t, data.SceneCheckpoints, 1, "scene must be checkpointed before start")

	fires, err := store.FireObjects(session.UID)
	require.NoError(t, err)
	require.Len(t, fires, 1, "drawn fire source must become a live hazard")
	require.Equal(t, FireSeat, fires[0].Kind)
}

func TestStartLessonConflicts(t *testing.T) {
	store, session, snap, data := newTestSession(t)
	cfg := testConfig()
	now := time.Now()
	require.NoError(t, startLesson(store, cfg, session, snap, data, startLessonParams{}, now))

	err := startLesson(store, cfg, session, snap, data, startLessonParams{}, now)
	cmdErr, ok := asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 409, cmdErr.Status)
	require.Equal(t, "Lesson already started", cmdErr.Detail)

	require.NoError(t, pauseLesson(session, data, now))
	err = startLesson(store, cfg, session, snap, data, startLessonParams{}, now)
	cmdErr, ok = asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 409, cmdErr.Status)

	require.NoError(t, finishLesson(session, data, "ADMIN", "", now))
	err = startLesson(store, cfg, session, snap, data, startLessonParams{}, now)
	cmdErr, ok = asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 409, cmdErr.Status)
}

func TestStartLessonValidatesLimits(t *testing.T) {
	store, session, snap, data := newTestSession(t)
	tooShort := int64(10)
	err := startLesson(store, testConfig(), session, snap, data,
		startLessonParams{TimeLimitSec: &tooShort}, time.Now())
	cmdErr, ok := asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 422, cmdErr.Status)
	require.Equal(t, SessionCreated, session.Status, "failed start must not change state")
}

func TestPauseResumeFinish(t *testing.T) {
	store, session, snap, data := newTestSession(t)
	now := time.Now()
	require.NoError(t, startLesson(store, testConfig(), session, snap, data, startLessonParams{}, now))

	require.Error(t, resumeLesson(session, data, now), "resume without pause must fail")

	require.NoError(t, pauseLesson(session, data, now))
	require.Equal(t, SessionPaused, session.Status)
	require.Equal(t, 1, data.TrainingLesson.PauseCount)
	require.Error(t, pauseLesson(session, data, now), "double pause must fail")

	require.NoError(t, resumeLesson(session, data, now.Add(time.Minute)))
	require.Equal(t, SessionInProgress, session.Status)
	require.WithinDuration(t, now.Add(time.Minute), *data.TrainingLesson.LastTickAt, time.Second,
		"resume must reset the tick base so paused time is not replayed")

	require.NoError(t, finishLesson(session, data, "TRAINING_LEAD", "debrief", now.Add(2*time.Minute)))
	require.Equal(t, SessionCompleted, session.Status)
	require.NotNil(t, data.LessonResult)
	require.Equal(t, "TRAINING_LEAD", data.LessonResult.FinishedBy)
	require.Equal(t, "debrief", data.LessonResult.Reason)
	require.Equal(t, 1, data.LessonResult.PauseCount)

	require.Error(t, finishLesson(session, data, "ADMIN", "", now), "finish twice must fail")
}

func TestTickAppliesTimeMultiplier(t *testing.T) {
	store, session, snap, data := newTestSession(t)
	cfg := testConfig()
	start := time.Now().Add(-2 * time.Second)
	mult := 10.0
	require.NoError(t, startLesson(store, cfg, session, snap, data,
		startLessonParams{TimeMultiplier: &mult}, start))

	advanced, err := runLessonTick(store, cfg, session, snap, data, start.Add(2*time.Second))
	require.NoError(t, err)
	require.True(t, advanced)
	require.Equal(t, int64(20), data.TrainingLesson.ElapsedGameSec, "2 real seconds at x10")
	require.Equal(t, int64(defaultStartSimTime+20), snap.SimTimeSec)
}

func TestTickCapsOversleptWallTime(t *testing.T) {
	store, session, snap, data := newTestSession(t)
	cfg := testConfig()
	start := time.Now().Add(-100 * time.Second)
	require.NoError(t, startLesson(store, cfg, session, snap, data, startLessonParams{}, start))

	advanced, err := runLessonTick(store, cfg, session, snap, data, start.Add(100*time.Second))
	require.NoError(t, err)
	require.True(t, advanced)
	require.Equal(t, int64(4), data.TrainingLesson.ElapsedGameSec, "real step capped at 4 s")
	require.Equal(t, 96.0, data.FireRuntime.RuntimeHealth.DroppedTicksLast)
	require.Equal(t, float64(100), data.FireRuntime.RuntimeHealth.LastDeltaRealSec)
}

func TestTickNoopWhenNotRunning(t *testing.T) {
	store, session, snap, data := newTestSession(t)
	advanced, err := runLessonTick(store, testConfig(), session, snap, data, time.Now())
	require.NoError(t, err)
	require.False(t, advanced, "draft sessions do not tick")
}

func TestTickTimesOutLesson(t *testing.T) {
	store, session, snap, data := newTestSession(t)
	cfg := testConfig()
	limit := int64(minLessonTimeLimit)
	mult := 30.0
	start := time.Now().Add(-20 * time.Second)
	require.NoError(t, startLesson(store, cfg, session, snap, data,
		startLessonParams{TimeLimitSec: &limit, TimeMultiplier: &mult}, start))

	// Tick repeatedly until the game clock crosses the limit.
	now := start
	for i := 0; i < 10 && session.Status == SessionInProgress; i++ {
		now = now.Add(4 * time.Second)
		_, err := runLessonTick(store, cfg, session, snap, data, now)
		require.NoError(t, err)
	}

	require.Equal(t, SessionCompleted, session.Status)
	require.Equal(t, LessonCompleted, data.TrainingLesson.Phase)
	require.Equal(t, "SYSTEM", data.TrainingLesson.FinishedBy)
	require.Equal(t, "timeout", data.TrainingLesson.FinishReason)
	require.NotNil(t, data.LessonResult)
	require.Equal(t, "lesson_timeout", data.LessonResult.Reason)
}

func TestTimeOfDayFor(t *testing.T) {
	cases := []struct {
		sec  int64
		want TimeOfDay
	}{
		{3 * 3600, TimeNight},
		{10 * 3600, TimeDay},
		{19 * 3600, TimeEvening},
		{23 * 3600, TimeNight},
		{gameDaySeconds + 10*3600, TimeDay},
	}
	for _, tc := range cases {
		if got := timeOfDayFor(tc.sec); got != tc.want {
			t.Fatalf("timeOfDayFor(%d) = %s, want %s", tc.sec, got, tc.want)
		}
	}
}
