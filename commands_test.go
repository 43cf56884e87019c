package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newCommandCtx(t *testing.T, roles ...Role) *commandContext {
	t.Helper()
	store, session, snap, data := newTestSession(t)
	return &commandContext{
		store:   store,
		cfg:     testConfig(),
		user:    &User{UID: "u1", Login: "trainee"},
		roles:   roles,
		session: session,
		snap:    snap,
		data:    data,
		now:     time.Now(),
	}
}

func rawPayload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func seedVehicleSpec(t *testing.T, store *Store) {
	t.Helper()
	require.NoError(t, store.CreateVehicleSpec(&VehicleSpec{
		UID: "veh-1", Callsign: "АЦ-40", Type: VehicleAC,
		WaterCapacityL: 3200, PumpPressureM: 100,
	}))
}

func TestAuthorizeCommandMatrix(t *testing.T) {
	if _, err := authorizeCommand("no_such_command", []Role{RoleAdmin}); err == nil {
		t.Fatalf("unknown commands must be rejected")
	}

	// Every trainee role may push state commands without a role list.
	if _, err := authorizeCommand("push_radio_message", []Role{RoleCombatArea1}); err != nil {
		t.Fatalf("CA1 radio push: %v", err)
	}
	if _, err := authorizeCommand("create_resource_deployment", []Role{RoleHQ}); err != nil {
		t.Fatalf("HQ deployment: %v", err)
	}

	// Weather is a state command gated to the leads.
	if _, err := authorizeCommand("update_weather", []Role{RoleHQ}); err == nil {
		t.Fatalf("HQ must not change the weather")
	}
	if _, err := authorizeCommand("update_weather", []Role{RoleTrainingLead}); err != nil {
		t.Fatalf("training lead weather: %v", err)
	}

	// Scene and lesson commands need the scene capability.
	if _, err := authorizeCommand("start_lesson", []Role{RoleDispatcher}); err == nil {
		t.Fatalf("dispatchers must not start lessons")
	}
	if _, err := authorizeCommand("upsert_scene_object", []Role{RoleRTP}); err == nil {
		t.Fatalf("RTP must not edit the scene")
	}
	if _, err := authorizeCommand("set_radio_interference", []Role{RoleTrainingLead}); err == nil {
		t.Fatalf("interference is admin only")
	}
	if _, err := authorizeCommand("set_radio_interference", []Role{RoleAdmin}); err != nil {
		t.Fatalf("admin interference: %v", err)
	}
}

func TestAssertSessionScope(t *testing.T) {
	if err := assertSessionScope([]Role{RoleDispatcher}, "s1", "s2"); err != nil {
		t.Fatalf("dispatchers act globally: %v", err)
	}
	if err := assertSessionScope([]Role{RoleRTP}, "s1", "s1"); err != nil {
		t.Fatalf("own session: %v", err)
	}
	err := assertSessionScope([]Role{RoleRTP}, "s1", "s2")
	cmdErr, ok := asCommandError(err)
	if !ok || cmdErr.Status != 403 {
		t.Fatalf("expected 403 for foreign session, got %v", err)
	}
}

func TestDispatcherSendsVehicleEnRoute(t *testing.T) {
	ctx := newCommandCtx(t, RoleDispatcher)
	seedVehicleSpec(t, ctx.store)

	payload := rawPayload(t, map[string]any{
		"kind":                  "VEHICLE",
		"status":                "EN_ROUTE",
		"vehicle_dictionary_id": "veh-1",
		"geometry_type":         "POINT",
		"geometry":              [][]float64{{10, 10}},
		"props":                 map[string]any{"dispatch_code": " abc2345 ", "dispatch_eta_sec": 60},
	})
	require.NoError(t, handleCreateResourceDeployment(ctx, payload))

	rows, err := ctx.store.Deployments(ctx.session.UID)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// The code the dispatcher read back is stored normalized.
	props := decodeProps(&rows[0])
	require.Equal(t, "ABC2345", props.str("dispatch_code"))
	require.Equal(t, 60.0, props.float("dispatch_eta_sec", 0))
}

func TestDispatcherETAMinutesFallback(t *testing.T) {
	ctx := newCommandCtx(t, RoleDispatcher)
	seedVehicleSpec(t, ctx.store)

	require.NoError(t, handleCreateResourceDeployment(ctx, rawPayload(t, map[string]any{
		"kind": "VEHICLE", "status": "EN_ROUTE", "vehicle_dictionary_id": "veh-1",
		"geometry_type": "POINT", "geometry": [][]float64{{0, 0}},
		"props": map[string]any{"dispatch_code": "ABC2345", "dispatch_eta_min": 2},
	})))

	rows, err := ctx.store.Deployments(ctx.session.UID)
	require.NoError(t, err)
	require.Equal(t, 120.0, decodeProps(&rows[0]).float("dispatch_eta_sec", 0),
		"minutes convert to seconds")
}

func TestDispatcherWorkflowRejections(t *testing.T) {
	ctx := newCommandCtx(t, RoleDispatcher)
	seedVehicleSpec(t, ctx.store)

	// Only vehicles, only en route.
	err := handleCreateResourceDeployment(ctx, rawPayload(t, map[string]any{
		"kind": "NOZZLE", "status": "PLANNED",
		"geometry_type": "POINT", "geometry": [][]float64{{0, 0}},
	}))
	cmdErr, ok := asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 403, cmdErr.Status)

	err = handleCreateResourceDeployment(ctx, rawPayload(t, map[string]any{
		"kind": "VEHICLE", "status": "EN_ROUTE", "vehicle_dictionary_id": "veh-1",
		"geometry_type": "POINT", "geometry": [][]float64{{0, 0}},
		"props": map[string]any{"dispatch_code": "ABC2345", "dispatch_eta_sec": 5},
	}))
	cmdErr, ok = asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 422, cmdErr.Status, "out-of-range ETA")

	// The confirmation code must match the length and the alphabet.
	for _, code := range []string{"", "ABC", "ABC234O", "ABC2340"} {
		err = handleCreateResourceDeployment(ctx, rawPayload(t, map[string]any{
			"kind": "VEHICLE", "status": "EN_ROUTE", "vehicle_dictionary_id": "veh-1",
			"geometry_type": "POINT", "geometry": [][]float64{{0, 0}},
			"props": map[string]any{"dispatch_code": code, "dispatch_eta_sec": 60},
		}))
		cmdErr, ok = asCommandError(err)
		require.True(t, ok)
		require.Equal(t, 422, cmdErr.Status, "dispatch code %q", code)
	}

	err = handleCreateResourceDeployment(ctx, rawPayload(t, map[string]any{
		"kind": "VEHICLE", "status": "EN_ROUTE", "vehicle_dictionary_id": "veh-404",
		"geometry_type": "POINT", "geometry": [][]float64{{0, 0}},
		"props": map[string]any{"dispatch_code": "ABC2345", "dispatch_eta_sec": 60},
	}))
	cmdErr, ok = asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 404, cmdErr.Status, "unknown dictionary vehicle")
}

func TestHQPlacementsForcedPlanOnly(t *testing.T) {
	ctx := newCommandCtx(t, RoleHQ)

	require.NoError(t, handleCreateResourceDeployment(ctx, rawPayload(t, map[string]any{
		"kind": "NOZZLE", "status": "PLANNED",
		"geometry_type": "POINT", "geometry": [][]float64{{1, 1}},
	})))
	rows, err := ctx.store.Deployments(ctx.session.UID)
	require.NoError(t, err)
	require.True(t, decodeProps(&rows[0]).boolVal("plan_only"), "HQ placements are plans")

	err = handleCreateResourceDeployment(ctx, rawPayload(t, map[string]any{
		"kind": "CREW", "status": "PLANNED",
		"geometry_type": "POINT", "geometry": [][]float64{{1, 1}},
	}))
	cmdErr, ok := asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 403, cmdErr.Status, "crews are not a planning resource")

	err = handleCreateResourceDeployment(ctx, rawPayload(t, map[string]any{
		"kind": "MARKER", "status": "ACTIVE",
		"geometry_type": "POINT", "geometry": [][]float64{{1, 1}},
	}))
	cmdErr, ok = asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 403, cmdErr.Status, "HQ may not activate resources")
}

func TestRTPPlacesCommandPoints(t *testing.T) {
	ctx := newCommandCtx(t, RoleRTP)

	require.NoError(t, handleCreateResourceDeployment(ctx, rawPayload(t, map[string]any{
		"kind": "MARKER", "status": "DEPLOYED",
		"geometry_type": "POINT", "geometry": [][]float64{{3, 3}},
		"props": map[string]any{"command_point": "BU1"},
	})))

	err := handleCreateResourceDeployment(ctx, rawPayload(t, map[string]any{
		"kind": "MARKER", "status": "DEPLOYED",
		"geometry_type": "POINT", "geometry": [][]float64{{3, 3}},
		"props": map[string]any{"command_point": "KITCHEN"},
	}))
	cmdErr, ok := asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 422, cmdErr.Status)

	err = handleCreateResourceDeployment(ctx, rawPayload(t, map[string]any{
		"kind": "NOZZLE", "status": "DEPLOYED",
		"geometry_type": "POINT", "geometry": [][]float64{{3, 3}},
	}))
	cmdErr, ok = asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 403, cmdErr.Status, "the commander places markers, not lines")
}

func TestCombatAreaWaitsForCommandPoint(t *testing.T) {
	ctx := newCommandCtx(t, RoleCombatArea1)

	nozzle := rawPayload(t, map[string]any{
		"kind": "NOZZLE", "status": "DEPLOYED",
		"geometry_type": "POINT", "geometry": [][]float64{{4, 4}},
	})
	err := handleCreateResourceDeployment(ctx, nozzle)
	cmdErr, ok := asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 409, cmdErr.Status)
	require.Equal(t,
		"БУ-1 ожидает постановки РТП. РТП должен разместить командную точку BU1",
		cmdErr.Detail)

	// An HQ plan marker on the same point does not open the sector, the
	// commander's own marker does.
	hq := newCommandCtx(t, RoleHQ)
	hq.store = ctx.store
	hq.session = ctx.session
	require.NoError(t, handleCreateResourceDeployment(hq, rawPayload(t, map[string]any{
		"kind": "MARKER", "status": "PLANNED",
		"geometry_type": "POINT", "geometry": [][]float64{{3, 3}},
		"props": map[string]any{"command_point": "BU1"},
	})))
	err = handleCreateResourceDeployment(ctx, nozzle)
	cmdErr, ok = asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 409, cmdErr.Status, "HQ plans are not command points")

	rtp := newCommandCtx(t, RoleRTP)
	rtp.store = ctx.store
	rtp.session = ctx.session
	require.NoError(t, handleCreateResourceDeployment(rtp, rawPayload(t, map[string]any{
		"kind": "MARKER", "status": "DEPLOYED",
		"geometry_type": "POINT", "geometry": [][]float64{{3, 3}},
		"props": map[string]any{"command_point": "BU1"},
	})))
	rows, err := ctx.store.Deployments(ctx.session.UID)
	require.NoError(t, err)
	var commandPoint *ResourceDeployment
	for i := range rows {
		if rows[i].Kind == ResourceMarker && rows[i].RoleTag == string(RoleRTP) {
			commandPoint = &rows[i]
		}
	}
	require.NotNil(t, commandPoint, "the commander's marker carries the RTP tag")

	require.NoError(t, handleCreateResourceDeployment(ctx, nozzle))
	rows, err = ctx.store.Deployments(ctx.session.UID)
	require.NoError(t, err)
	var placed *ResourceDeployment
	for i := range rows {
		if rows[i].Kind == ResourceNozzle {
			placed = &rows[i]
		}
	}
	require.NotNil(t, placed)
	require.Equal(t, string(RoleCombatArea1), placed.RoleTag, "sector placements carry the sector tag")

	err = handleCreateResourceDeployment(ctx, rawPayload(t, map[string]any{
		"kind": "VEHICLE", "status": "DEPLOYED", "vehicle_dictionary_id": "veh-1",
		"geometry_type": "POINT", "geometry": [][]float64{{4, 4}},
	}))
	require.Error(t, err, "sectors do not dispatch vehicles")
}

func TestLeadPlacesAnything(t *testing.T) {
	ctx := newCommandCtx(t, RoleTrainingLead)
	seedVehicleSpec(t, ctx.store)

	require.NoError(t, handleCreateResourceDeployment(ctx, rawPayload(t, map[string]any{
		"kind": "VEHICLE", "status": "ACTIVE", "vehicle_dictionary_id": "veh-1",
		"geometry_type": "POINT", "geometry": [][]float64{{4, 4}},
	})), "leads bypass the tactical workflow")

	err := handleCreateResourceDeployment(ctx, rawPayload(t, map[string]any{
		"kind": "VEHICLE", "status": "ACTIVE",
		"geometry_type": "POINT", "geometry": [][]float64{{4, 4}},
	}))
	require.Error(t, err, "vehicles always need a dictionary entry")
}

func TestUpdateWeatherNormalizesPrecipitation(t *testing.T) {
	ctx := newCommandCtx(t, RoleTrainingLead)
	require.NoError(t, handleUpdateWeather(ctx, rawPayload(t, map[string]any{
		"wind_speed_ms": 8.0, "wind_dir_deg": 120.0,
		"temperature_c": 15.0, "humidity_pct": 70.0,
		"precipitation": "  Rain ",
	})))

	weather, err := ctx.store.Weather(ctx.session.UID)
	require.NoError(t, err)
	require.Equal(t, "rain", weather.Precipitation)

	err = handleUpdateWeather(ctx, rawPayload(t, map[string]any{
		"wind_speed_ms": 90.0, "humidity_pct": 50.0,
	}))
	cmdErr, ok := asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 422, cmdErr.Status)
}

func TestPushRadioMessageVoiceOnly(t *testing.T) {
	ctx := newCommandCtx(t, RoleRTP)

	err := handlePushRadioMessage(ctx, rawPayload(t, map[string]any{
		"channel": "1", "text": "принял", "audio_b64": "QUJD",
	}))
	cmdErr, ok := asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 422, cmdErr.Status)
	require.Equal(t, "Radio messages are voice only", cmdErr.Detail)

	err = handlePushRadioMessage(ctx, rawPayload(t, map[string]any{
		"channel": "1",
	}))
	cmdErr, ok = asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 422, cmdErr.Status, "audio payload is required")
}

func TestPushRadioMessageChannelRestrictions(t *testing.T) {
	ctx := newCommandCtx(t, RoleCombatArea2)
	err := handlePushRadioMessage(ctx, rawPayload(t, map[string]any{
		"channel": "RTP_BU1", "audio_b64": "QUJD", "duration_ms": 1200,
	}))
	cmdErr, ok := asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 403, cmdErr.Status, "CA2 cannot key up on the BU1 net")

	require.NoError(t, handlePushRadioMessage(ctx, rawPayload(t, map[string]any{
		"channel": "RTP_BU2", "audio_b64": "QUJD", "duration_ms": 1200,
	})))
	require.True(t, ctx.skipEcho, "radio pushes skip the sender echo")

	rt := ctx.data.RadioRuntime
	require.Len(t, rt.Logs, 1)
	require.Equal(t, "4", rt.Logs[0].Channel)
	require.Equal(t, string(RoleCombatArea2), rt.Logs[0].SenderRole)
	require.Empty(t, rt.Holds, "the hold is released after the push")

	stored, err := ctx.store.RadioTransmissions(ctx.session.UID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

type fakeTranscriber struct{ text string }

func (f fakeTranscriber) Transcribe(string) (string, error) { return f.text, nil }

func TestPushRadioMessageJournaling(t *testing.T) {
	ctx := newCommandCtx(t, RoleDispatcher)
	ctx.transcriber = fakeTranscriber{text: "выслал две автоцистерны"}

	require.NoError(t, handlePushRadioMessage(ctx, rawPayload(t, map[string]any{
		"channel": "DISPATCH", "audio_b64": "QUJD", "journal": true,
	})))

	require.Len(t, ctx.data.DispatcherJournal, 1)
	require.Equal(t, "выслал две автоцистерны", ctx.data.DispatcherJournal[0].Text)
	require.Equal(t, "выслал две автоцистерны", ctx.data.RadioRuntime.Logs[0].Transcript)
}

func TestSetRadioInterferenceGone(t *testing.T) {
	ctx := newCommandCtx(t, RoleAdmin)
	noise := "static"
	ctx.data.RadioRuntime = &RadioRuntime{Interference: &noise}

	err := handleSetRadioInterference(ctx, nil)
	cmdErr, ok := asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 410, cmdErr.Status)

	// The stale flag dies on the next snapshot load, not in the handler.
	require.Nil(t, ctx.data.ensureRadioRuntime().Interference)
}

func TestSceneEditLockDuringLesson(t *testing.T) {
	ctx := newCommandCtx(t, RoleTrainingLead)
	scene := ctx.data.ensureScene()
	hydrant := SceneObject{
		ID: "h1", Kind: SceneHydrant, GeometryType: GeometryPoint,
		Geometry: [][]float64{{5, 5}},
	}
	require.NoError(t, scene.UpsertObject("F1", hydrant))

	require.NoError(t, startLesson(ctx.store, ctx.cfg, ctx.session, ctx.snap, ctx.data,
		startLessonParams{}, ctx.now))

	// Structural edits are frozen.
	err := handleUpsertSceneObject(ctx, rawPayload(t, map[string]any{
		"floor_id": "F1",
		"object": map[string]any{
			"id": "new-wall", "kind": "WALL", "geometry_type": "LINESTRING",
			"geometry": [][]float64{{0, 0}, {5, 0}},
		},
	}))
	cmdErr, ok := asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 409, cmdErr.Status)

	err = handleRemoveSceneObject(ctx, rawPayload(t, map[string]any{"id": "h1"}))
	cmdErr, ok = asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 409, cmdErr.Status)

	// Switching floors mid-drill would yank the map out from under everyone.
	err = handleSetActiveSceneFloor(ctx, rawPayload(t, map[string]any{"id": "F1"}))
	cmdErr, ok = asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 409, cmdErr.Status)

	// In-place hydrant state updates still pass.
	require.NoError(t, handleUpsertSceneObject(ctx, rawPayload(t, map[string]any{
		"floor_id": "F1",
		"object": map[string]any{
			"id": "h1", "kind": "HYDRANT", "geometry_type": "POINT",
			"geometry": [][]float64{{5, 5}},
			"props":    map[string]any{"operational": false},
		},
	})))

	// Checkpoints are allowed any time.
	require.NoError(t, handleSaveSceneCheckpoint(ctx, rawPayload(t, map[string]any{
		"name": "Перед вводом сил",
	})))
}

type fakeSceneBuilder struct{ lat, lon float64 }

func (f fakeSceneBuilder) ResolveAddress(string) (float64, float64, bool) {
	return f.lat, f.lon, true
}

func TestSetSceneAddressUsesConfiguredBuilder(t *testing.T) {
	ctx := newCommandCtx(t, RoleTrainingLead)
	ctx.scenes = fakeSceneBuilder{lat: 55.75, lon: 37.62}

	require.NoError(t, handleSetSceneAddress(ctx, rawPayload(t, map[string]any{
		"query": "Москва, Тверская 7",
	})))

	addr := ctx.data.ensureScene().Address
	require.NotNil(t, addr)
	require.True(t, addr.Resolved)
	require.Equal(t, 55.75, addr.Lat)
	require.Equal(t, 37.62, addr.Lon)

	// Without an injected geocoder the offline fallback still answers.
	ctx2 := newCommandCtx(t, RoleTrainingLead)
	require.NoError(t, handleSetSceneAddress(ctx2, rawPayload(t, map[string]any{
		"query": "Москва, Тверская 7",
	})))
	require.False(t, ctx2.data.ensureScene().Address.Resolved)
}

func TestUpdateSnapshotValidation(t *testing.T) {
	ctx := newCommandCtx(t, RoleAdmin)

	require.NoError(t, handleUpdateSnapshot(ctx, rawPayload(t, map[string]any{
		"time_of_day":         "NIGHT",
		"water_supply_status": "DEGRADED",
		"time_multiplier":     5.0,
	})))
	require.Equal(t, TimeNight, ctx.snap.TimeOfDay)
	require.Equal(t, WaterSupplyDegraded, ctx.snap.WaterSupplyStatus)
	require.Equal(t, 5.0, ctx.data.TrainingLesson.TimeMultiplier)

	err := handleUpdateSnapshot(ctx, rawPayload(t, map[string]any{
		"time_multiplier": 100.0,
	}))
	cmdErr, ok := asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 422, cmdErr.Status)

	err = handleUpdateSnapshot(ctx, rawPayload(t, map[string]any{
		"time_of_day": "DAWN",
	}))
	cmdErr, ok = asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 422, cmdErr.Status)
}

func TestCreateFireObjectClampsRankAndPower(t *testing.T) {
	ctx := newCommandCtx(t, RoleTrainingLead)
	require.NoError(t, handleCreateFireObject(ctx, rawPayload(t, map[string]any{
		"kind": "FIRE_SEAT", "name": "Очаг в цеху",
		"geometry_type": "POINT", "geometry": [][]float64{{7, 7}},
		"area_m2": 25.0,
		"extra":   map[string]any{"fire_rank": 99, "fire_power": 50.0},
	})))

	fires, err := ctx.store.FireObjects(ctx.session.UID)
	require.NoError(t, err)
	require.Len(t, fires, 1)

	var extra map[string]any
	require.NoError(t, json.Unmarshal(fires[0].Extra, &extra))
	require.EqualValues(t, 5, extra["fire_rank"])
	require.EqualValues(t, 4, extra["fire_power"])

	err = handleCreateFireObject(ctx, rawPayload(t, map[string]any{
		"kind": "LAVA", "geometry_type": "POINT", "geometry": [][]float64{{7, 7}},
	}))
	cmdErr, ok := asCommandError(err)
	require.True(t, ok)
	require.Equal(t, 422, cmdErr.Status)
}
