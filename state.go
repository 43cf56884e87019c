package main

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// SnapshotData is the decoded form of SessionStateSnapshot.SnapshotData.
// It is the authoritative per-session world blob.
type SnapshotData struct {
	Source            string            `json:"source,omitempty"`
	TrainingLesson    *LessonState      `json:"training_lesson,omitempty"`
	FireRuntime       *FireRuntime      `json:"fire_runtime,omitempty"`
	RadioRuntime      *RadioRuntime     `json:"radio_runtime,omitempty"`
	Scene             *Scene            `json:"training_lead_scene,omitempty"`
	SceneCheckpoints  []SceneCheckpoint `json:"scene_checkpoints,omitempty"`
	DispatcherJournal []JournalEntry    `json:"dispatcher_journal,omitempty"`
	LessonResult      *LessonResult     `json:"lesson_result,omitempty"`
}

// decodeSnapshotData parses the stored blob, tolerating an empty column.
func decodeSnapshotData(raw datatypes.JSON) (*SnapshotData, error) {
	data := &SnapshotData{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, data); err != nil {
		return nil, err
	}
	return data, nil
}

// encodeSnapshotData serializes the blob back into the JSON column.
func encodeSnapshotData(data *SnapshotData) (datatypes.JSON, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// LessonState is the lesson lifecycle block inside the snapshot.
type LessonState struct {
	Phase           LessonPhase `json:"phase"`
	TimeLimitSec    int64       `json:"time_limit_sec"`
	StartSimTimeSec int64       `json:"start_sim_time_sec"`
	TimeMultiplier  float64     `json:"time_multiplier"`
	ElapsedGameSec  int64       `json:"elapsed_game_sec"`
	PauseCount      int         `json:"pause_count"`
	StartedAt       *time.Time  `json:"started_at,omitempty"`
	PausedAt        *time.Time  `json:"paused_at,omitempty"`
	ResumedAt       *time.Time  `json:"resumed_at,omitempty"`
	FinishedAt      *time.Time  `json:"finished_at,omitempty"`
	PlannedEndAt    *time.Time  `json:"planned_end_at,omitempty"`
	LastTickAt      *time.Time  `json:"last_tick_at,omitempty"`
	FinishedBy      string      `json:"finished_by,omitempty"`
	FinishReason    string      `json:"finish_reason,omitempty"`
}

// LessonResult is written once when a lesson completes.
type LessonResult struct {
	FinishedBy     string       `json:"finished_by"`
	Reason         string       `json:"reason"`
	DurationSec    int64        `json:"duration_sec"`
	PauseCount     int          `json:"pause_count"`
	FiresRemaining int          `json:"fires_remaining"`
	RadioSummary   RadioSummary `json:"radio_summary"`
}

// FireRuntime is the per-tick simulation output block inside the snapshot.
type FireRuntime struct {
	SchemaVersion      string                     `json:"schema_version"`
	VehicleRuntime     map[string]*VehicleRuntime `json:"vehicle_runtime"`
	HoseRuntime        map[string]*HoseRuntime    `json:"hose_runtime"`
	NozzleRuntime      map[string]*NozzleRuntime  `json:"nozzle_runtime"`
	FireDirections     map[string]float64         `json:"fire_directions"`
	QRequiredLS        float64                    `json:"q_required_l_s"`
	QEffectiveLS       float64                    `json:"q_effective_l_s"`
	SuppressionRatio   float64                    `json:"suppression_ratio"`
	Forecast           string                     `json:"forecast"`
	ActiveFireObjects  int                        `json:"active_fire_objects"`
	ActiveSmokeObjects int                        `json:"active_smoke_objects"`
	ActiveNozzles      int                        `json:"active_nozzles"`
	WetNozzles         int                        `json:"wet_nozzles"`
	WetHoseLines       int                        `json:"wet_hose_lines"`
	EffectiveFlowLS    float64                    `json:"effective_flow_l_s"`
	ConsumedWaterL     float64                    `json:"consumed_water_l_tick"`
	Environment        EnvironmentState           `json:"environment"`
	RuntimeHealth      RuntimeHealth              `json:"runtime_health"`
}

// newFireRuntime builds an empty runtime block at the current schema version.
func newFireRuntime() *FireRuntime {
	return &FireRuntime{
		SchemaVersion:  fireRuntimeSchemaVersion,
		VehicleRuntime: make(map[string]*VehicleRuntime),
		HoseRuntime:    make(map[string]*HoseRuntime),
		NozzleRuntime:  make(map[string]*NozzleRuntime),
		FireDirections: make(map[string]float64),
	}
}

// VehicleRuntime tracks onboard water for one deployed vehicle.
type VehicleRuntime struct {
	Callsign          string  `json:"callsign,omitempty"`
	VehicleType       string  `json:"vehicle_type,omitempty"`
	WaterCapacityL    float64 `json:"water_capacity_l"`
	WaterRemainingL   float64 `json:"water_remaining_l"`
	IsEmpty           bool    `json:"is_empty"`
	MinutesUntilEmpty float64 `json:"minutes_until_empty"`
}

// HoseRuntime describes the hydraulic state of one hose line this tick.
type HoseRuntime struct {
	DiameterMM    int     `json:"diameter_mm"`
	LengthM       float64 `json:"length_m"`
	FlowLS        float64 `json:"flow_l_s"`
	PressureLossM float64 `json:"pressure_loss_m"`
	VehicleUID    string  `json:"vehicle_uid,omitempty"`
	HasWater      bool    `json:"has_water"`
	BlockedReason string  `json:"blocked_reason,omitempty"`
}

// NozzleRuntime describes the hydraulic state of one nozzle this tick.
type NozzleRuntime struct {
	NozzleType        string  `json:"nozzle_type,omitempty"`
	FlowLS            float64 `json:"flow_l_s"`
	EffectiveFlowLS   float64 `json:"effective_flow_l_s"`
	AvailablePressure float64 `json:"available_pressure_m"`
	SuppressionFactor float64 `json:"suppression_factor"`
	HasWater          bool    `json:"has_water"`
	VehicleUID        string  `json:"vehicle_uid,omitempty"`
	HoseUID           string  `json:"hose_uid,omitempty"`
	BlockedReason     string  `json:"blocked_reason,omitempty"`
	X                 float64 `json:"x"`
	Y                 float64 `json:"y"`
}

// EnvironmentState is the weather block echoed inside the runtime.
type EnvironmentState struct {
	WindSpeedMS    float64 `json:"wind_speed_ms"`
	WindDirDeg     float64 `json:"wind_dir_deg"`
	TemperatureC   float64 `json:"temperature_c"`
	HumidityPct    float64 `json:"humidity_pct"`
	Precipitation  string  `json:"precipitation,omitempty"`
	GrowthFactor   float64 `json:"growth_factor"`
	TimeOfDay      string  `json:"time_of_day,omitempty"`
	SimTimeSec     int64   `json:"sim_time_sec"`
	TimeMultiplier float64 `json:"time_multiplier"`
}

// RuntimeHealth reports tick-loop hygiene for diagnostics.
type RuntimeHealth struct {
	TicksTotal        uint64     `json:"ticks_total"`
	DroppedTicksLast  float64    `json:"dropped_ticks_last"`
	DroppedTicksTotal float64    `json:"dropped_ticks_total"`
	TickLagSec        float64    `json:"tick_lag_sec"`
	LastTickAt        *time.Time `json:"last_tick_at,omitempty"`
	LastDeltaRealSec  float64    `json:"last_delta_real_sec"`
	LastDeltaGameSec  int64      `json:"last_delta_game_sec"`
	LoopIntervalSec   float64    `json:"loop_interval_sec"`
	MaxStepRealSec    float64    `json:"max_step_real_sec"`
}

// JournalEntry is one dispatcher journal line.
type JournalEntry struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorUID string    `json:"author_uid,omitempty"`
	Role      string    `json:"role,omitempty"`
	At        time.Time `json:"at"`
}
