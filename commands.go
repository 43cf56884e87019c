package main

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"

	"firedrill/server/physics"
)

// commandContext carries everything a handler needs. The caller holds the
// session lock for the whole handler run.
type commandContext struct {
	store       *Store
	cfg         Config
	user        *User
	roles       []Role
	session     *SimulationSession
	snap        *SessionStateSnapshot
	data        *SnapshotData
	now         time.Time
	transcriber Transcriber
	scenes      SceneBuilder

	// skipEcho suppresses the session_state echo to the sender, set by
	// high-frequency commands like radio pushes.
	skipEcho bool
}

type commandHandler func(ctx *commandContext, payload json.RawMessage) error

// commandSpec binds a command name to its capability, its role allow-list
// and its handler. An empty role list admits every role holding the
// capability.
type commandSpec struct {
	permission Permission
	roles      []Role
	handler    commandHandler
}

var leadRoles = []Role{RoleAdmin, RoleTrainingLead}

var commandTable = map[string]commandSpec{
	"update_weather":             {PermStateWrite, leadRoles, handleUpdateWeather},
	"create_fire_object":         {PermStateWrite, leadRoles, handleCreateFireObject},
	"create_resource_deployment": {PermStateWrite, nil, handleCreateResourceDeployment},
	"update_snapshot":            {PermStateWrite, leadRoles, handleUpdateSnapshot},
	"push_radio_message":         {PermStateWrite, nil, handlePushRadioMessage},
	"set_radio_interference":     {PermAdminManage, []Role{RoleAdmin}, handleSetRadioInterference},

	"set_scene_address":          {PermSceneWrite, leadRoles, handleSetSceneAddress},
	"upsert_scene_floor":         {PermSceneWrite, leadRoles, handleUpsertSceneFloor},
	"set_active_scene_floor":     {PermSceneWrite, leadRoles, handleSetActiveSceneFloor},
	"upsert_scene_object":        {PermSceneWrite, leadRoles, handleUpsertSceneObject},
	"remove_scene_object":        {PermSceneWrite, leadRoles, handleRemoveSceneObject},
	"sync_scene_to_fire_objects": {PermSceneWrite, leadRoles, handleSyncSceneToFireObjects},
	"save_scene_checkpoint":      {PermSceneWrite, leadRoles, handleSaveSceneCheckpoint},

	"start_lesson":  {PermSceneWrite, leadRoles, handleStartLesson},
	"pause_lesson":  {PermSceneWrite, leadRoles, handlePauseLesson},
	"resume_lesson": {PermSceneWrite, leadRoles, handleResumeLesson},
	"finish_lesson": {PermSceneWrite, leadRoles, handleFinishLesson},
}

// authorizeCommand checks the capability matrix and the per-command role
// allow-list for one named command.
func authorizeCommand(name string, roles []Role) (commandSpec, error) {
	spec, ok := commandTable[name]
	if !ok {
		return commandSpec{}, errValidation("Unknown command %q", name)
	}
	if err := requirePermission(roles, spec.permission); err != nil {
		return commandSpec{}, err
	}
	if len(spec.roles) > 0 && !hasRole(roles, spec.roles...) {
		return commandSpec{}, errForbidden("Command %s is not available for your roles", name)
	}
	return spec, nil
}

func decodePayload(payload json.RawMessage, into any) error {
	if len(payload) == 0 {
		return errValidation("Command payload is required")
	}
	if err := json.Unmarshal(payload, into); err != nil {
		return errValidation("Malformed command payload: %v", err)
	}
	return nil
}

// sceneEditLocked reports whether structural scene edits are frozen because
// the lesson is underway.
func sceneEditLocked(session *SimulationSession) bool {
	return session.Status == SessionInProgress || session.Status == SessionPaused
}

func requireSceneUnlocked(ctx *commandContext) error {
	if sceneEditLocked(ctx.session) {
		return errConflict("Scene is locked while the lesson is running")
	}
	return nil
}

type updateWeatherPayload struct {
	WindSpeedMS   float64 `json:"wind_speed_ms"`
	WindDirDeg    float64 `json:"wind_dir_deg"`
	TemperatureC  float64 `json:"temperature_c"`
	HumidityPct   float64 `json:"humidity_pct"`
	Precipitation string  `json:"precipitation"`
}

func handleUpdateWeather(ctx *commandContext, payload json.RawMessage) error {
	var p updateWeatherPayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	if p.WindSpeedMS < 0 || p.WindSpeedMS > 60 {
		return errValidation("wind_speed_ms must be between 0 and 60")
	}
	if p.HumidityPct < 0 || p.HumidityPct > 100 {
		return errValidation("humidity_pct must be between 0 and 100")
	}
	if p.TemperatureC < -60 || p.TemperatureC > 60 {
		return errValidation("temperature_c must be between -60 and 60")
	}
	return ctx.store.SaveWeather(&WeatherSnapshot{
		SessionUID:    ctx.session.UID,
		WindSpeedMS:   p.WindSpeedMS,
		WindDirDeg:    p.WindDirDeg,
		TemperatureC:  p.TemperatureC,
		HumidityPct:   p.HumidityPct,
		Precipitation: strings.ToLower(strings.TrimSpace(p.Precipitation)),
	})
}

type createFireObjectPayload struct {
	Kind         FireZoneKind   `json:"kind"`
	Name         string         `json:"name"`
	GeometryType GeometryType   `json:"geometry_type"`
	Geometry     [][]float64    `json:"geometry"`
	AreaM2       float64        `json:"area_m2"`
	Extra        map[string]any `json:"extra"`
}

func handleCreateFireObject(ctx *commandContext, payload json.RawMessage) error {
	var p createFireObjectPayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	switch p.Kind {
	case FireSeat, FireZone, SmokeZone, TempImpactZone:
	default:
		return errValidation("Unknown fire object kind %q", p.Kind)
	}
	switch p.GeometryType {
	case GeometryPoint, GeometryLineString, GeometryPolygon:
	default:
		return errValidation("Unknown geometry type %q", p.GeometryType)
	}
	if len(p.Geometry) == 0 {
		return errValidation("geometry must not be empty")
	}
	if p.AreaM2 < 0 {
		return errValidation("area_m2 must not be negative")
	}
	geometry, err := json.Marshal(p.Geometry)
	if err != nil {
		return errValidation("Malformed geometry: %v", err)
	}
	extra := p.Extra
	if extra == nil {
		extra = map[string]any{}
	}
	if rank, ok := extra["fire_rank"]; ok {
		extra["fire_rank"] = physics.ClampRank(intFromAny(rank, 1))
	}
	if power, ok := extra["fire_power"]; ok {
		extra["fire_power"] = physics.ClampPower(floatFromAny(power, 1.0))
	}
	rawExtra, err := json.Marshal(extra)
	if err != nil {
		return errValidation("Malformed extra: %v", err)
	}
	return ctx.store.CreateFireObject(&FireObject{
		SessionUID:   ctx.session.UID,
		Kind:         p.Kind,
		Name:         truncate(p.Name, maxLabelLength),
		GeometryType: p.GeometryType,
		Geometry:     datatypes.JSON(geometry),
		AreaM2:       p.AreaM2,
		IsActive:     true,
		Extra:        datatypes.JSON(rawExtra),
	})
}

type updateSnapshotPayload struct {
	TimeOfDay         *TimeOfDay         `json:"time_of_day,omitempty"`
	WaterSupplyStatus *WaterSupplyStatus `json:"water_supply_status,omitempty"`
	TimeMultiplier    *float64           `json:"time_multiplier,omitempty"`
}

func handleUpdateSnapshot(ctx *commandContext, payload json.RawMessage) error {
	var p updateSnapshotPayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	if p.TimeOfDay != nil {
		switch *p.TimeOfDay {
		case TimeDay, TimeEvening, TimeNight:
			ctx.snap.TimeOfDay = *p.TimeOfDay
		default:
			return errValidation("Unknown time_of_day %q", *p.TimeOfDay)
		}
	}
	if p.WaterSupplyStatus != nil {
		switch *p.WaterSupplyStatus {
		case WaterSupplyOK, WaterSupplyDegraded, WaterSupplyFailed:
			ctx.snap.WaterSupplyStatus = *p.WaterSupplyStatus
		default:
			return errValidation("Unknown water_supply_status %q", *p.WaterSupplyStatus)
		}
	}
	if p.TimeMultiplier != nil {
		if *p.TimeMultiplier < timeMultiplierMin || *p.TimeMultiplier > timeMultiplierMax {
			return errValidation("time_multiplier must be between %v and %v", timeMultiplierMin, timeMultiplierMax)
		}
		lesson := ensureLesson(ctx.data, ctx.session, ctx.cfg)
		lesson.TimeMultiplier = *p.TimeMultiplier
	}
	return nil
}

type pushRadioMessagePayload struct {
	Channel    string `json:"channel"`
	Text       string `json:"text,omitempty"`
	AudioB64   string `json:"audio_b64"`
	DurationMS int64  `json:"duration_ms"`
	Journal    bool   `json:"journal,omitempty"`
}

func handlePushRadioMessage(ctx *commandContext, payload json.RawMessage) error {
	var p pushRadioMessagePayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	channel, err := normalizeRadioChannel(p.Channel)
	if err != nil {
		return err
	}
	// The radio is voice only. Typed text belongs in the journal.
	if strings.TrimSpace(p.Text) != "" {
		return errValidation("Radio messages are voice only")
	}
	if p.AudioB64 == "" {
		return errValidation("audio_b64 is required")
	}
	if len(p.AudioB64) > maxRadioAudioBytes {
		return errValidation("audio_b64 exceeds %d bytes", maxRadioAudioBytes)
	}
	if !canTransmitOn(channel, ctx.roles) {
		return errForbidden("Transmitting on channel %s is not allowed for your roles", channel)
	}

	rt := ctx.data.ensureRadioRuntime()
	role := speakerRole(ctx.roles)
	if err := rt.reserveChannel(channel, ctx.user.UID, role, ctx.now); err != nil {
		return err
	}

	transcript := ""
	if ctx.transcriber != nil {
		if text, terr := ctx.transcriber.Transcribe(p.AudioB64); terr == nil {
			transcript = text
		}
	}

	entry := RadioLogEntry{
		ID:         transmissionID(),
		Type:       "MESSAGE",
		Channel:    channel,
		SenderUID:  ctx.user.UID,
		SenderRole: role,
		AudioB64:   p.AudioB64,
		DurationMS: p.DurationMS,
		Transcript: transcript,
		At:         ctx.now,
	}
	rt.appendLog(entry)
	rt.releaseChannel(channel, ctx.user.UID)

	if err := ctx.store.SaveRadioTransmission(&RadioTransmission{
		UID:        entry.ID,
		SessionUID: ctx.session.UID,
		Channel:    channel,
		SenderUID:  ctx.user.UID,
		SenderRole: role,
		Transcript: transcript,
		DurationMS: p.DurationMS,
		SentAt:     ctx.now,
	}); err != nil {
		return err
	}

	if p.Journal && transcript != "" {
		ctx.data.appendJournal(JournalEntry{
			ID:        journalEntryID(),
			Text:      transcript,
			AuthorUID: ctx.user.UID,
			Role:      role,
			At:        ctx.now,
		})
	}

	// Radio traffic is frequent, the sender does not need its own echo.
	ctx.skipEcho = true
	return nil
}

// handleSetRadioInterference survives only to tell old clients the feature
// is gone. Residual interference state is scrubbed by ensureRadioRuntime when
// the snapshot loads, so there is nothing to clear here.
func handleSetRadioInterference(*commandContext, json.RawMessage) error {
	return errGone("Radio interference is disabled")
}

func intFromAny(v any, fallback int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return fallback
}

func floatFromAny(v any, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return fallback
}
