package main

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

type setSceneAddressPayload struct {
	Query   string  `json:"query"`
	RadiusM float64 `json:"radius_m,omitempty"`
}

// handleSetSceneAddress resolves an address or karta01 share link into a map
// center and rebuilds the site entities around it. The active floor gets a
// default wall layout when still empty.
func handleSetSceneAddress(ctx *commandContext, payload json.RawMessage) error {
	if err := requireSceneUnlocked(ctx); err != nil {
		return err
	}
	var p setSceneAddressPayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	query := strings.TrimSpace(p.Query)
	if query == "" {
		return errValidation("query must not be empty")
	}
	radius := p.RadiusM
	if radius == 0 {
		radius = 200
	}
	if radius < sceneAddressRadiusLo || radius > sceneAddressRadiusHi {
		return errValidation("radius_m must be between %d and %d", sceneAddressRadiusLo, sceneAddressRadiusHi)
	}

	lat, lon, resolved := parseCenterFromKarta01URL(query)
	if !resolved {
		builder := ctx.scenes
		if builder == nil {
			builder = offlineSceneBuilder{}
		}
		lat, lon, resolved = builder.ResolveAddress(query)
	}

	scene := ctx.data.ensureScene()
	scene.Address = &SceneAddress{
		Query:    query,
		Lat:      lat,
		Lon:      lon,
		RadiusM:  radius,
		Resolved: resolved,
	}
	scene.SiteEntities = generateSiteEntities(radius)
	if idx := scene.floorIndex(scene.ActiveFloor); idx >= 0 {
		seedFloorLayout(&scene.Floors[idx], scene.SiteEntities)
	}
	scene.Version++
	return nil
}

type upsertSceneFloorPayload struct {
	ID         string  `json:"id"`
	Label      string  `json:"label,omitempty"`
	ElevationM float64 `json:"elevation_m"`
}

func handleUpsertSceneFloor(ctx *commandContext, payload json.RawMessage) error {
	if err := requireSceneUnlocked(ctx); err != nil {
		return err
	}
	var p upsertSceneFloorPayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	id, err := normalizeFloorID(p.ID)
	if err != nil {
		return err
	}
	scene := ctx.data.ensureScene()
	scene.UpsertFloor(Floor{
		ID:         id,
		Label:      truncate(p.Label, maxLabelLength),
		ElevationM: p.ElevationM,
	})
	return nil
}

type setActiveSceneFloorPayload struct {
	ID string `json:"id"`
}

func handleSetActiveSceneFloor(ctx *commandContext, payload json.RawMessage) error {
	if err := requireSceneUnlocked(ctx); err != nil {
		return err
	}
	var p setActiveSceneFloorPayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	id, err := normalizeFloorID(p.ID)
	if err != nil {
		return err
	}
	return ctx.data.ensureScene().SetActiveFloor(id)
}

type upsertSceneObjectPayload struct {
	FloorID string      `json:"floor_id"`
	Object  SceneObject `json:"object"`
}

func handleUpsertSceneObject(ctx *commandContext, payload json.RawMessage) error {
	var p upsertSceneObjectPayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	floorID, err := normalizeFloorID(p.FloorID)
	if err != nil {
		return err
	}
	obj := p.Object
	if obj.ID == "" {
		obj.ID = sceneObjectID()
	}
	if len(obj.ID) > maxObjectIDLength {
		return errValidation("object id must be at most %d characters", maxObjectIDLength)
	}
	if !ValidSceneObjectKind(obj.Kind) {
		return errValidation("Unknown scene object kind %q", obj.Kind)
	}
	switch obj.GeometryType {
	case GeometryPoint, GeometryLineString, GeometryPolygon:
	default:
		return errValidation("Unknown geometry type %q", obj.GeometryType)
	}
	if len(obj.Geometry) == 0 {
		return errValidation("geometry must not be empty")
	}
	obj.Label = truncate(obj.Label, maxLabelLength)

	scene := ctx.data.ensureScene()
	if sceneEditLocked(ctx.session) {
		// During the drill only in-place hydrant and collapsed-wall state
		// updates pass. Anything structural waits for the debrief.
		existing, found := scene.ObjectByID(obj.ID)
		if !found || !runtimeSceneEditAllowed(existing, obj) {
			return errConflict("Scene is locked while the lesson is running")
		}
	}
	return scene.UpsertObject(floorID, obj)
}

type removeSceneObjectPayload struct {
	ID string `json:"id"`
}

func handleRemoveSceneObject(ctx *commandContext, payload json.RawMessage) error {
	if err := requireSceneUnlocked(ctx); err != nil {
		return err
	}
	var p removeSceneObjectPayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	if p.ID == "" {
		return errValidation("id must not be empty")
	}
	return ctx.data.ensureScene().RemoveObject(p.ID)
}

func handleSyncSceneToFireObjects(ctx *commandContext, _ json.RawMessage) error {
	if err := requireSceneUnlocked(ctx); err != nil {
		return err
	}
	return syncSceneToFireObjects(ctx.store, ctx.session.UID, ctx.data.ensureScene(), ctx.now)
}

type saveSceneCheckpointPayload struct {
	Name string `json:"name"`
}

func handleSaveSceneCheckpoint(ctx *commandContext, payload json.RawMessage) error {
	var p saveSceneCheckpointPayload
	if err := decodePayload(payload, &p); err != nil {
		return err
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return errValidation("name must not be empty")
	}
	scene := ctx.data.ensureScene()
	ctx.data.AppendCheckpoint(SceneCheckpoint{
		ID:    uuid.NewString(),
		Name:  truncate(name, maxLabelLength),
		At:    ctx.now,
		Scene: scene.Clone(),
	})
	return nil
}

func handleStartLesson(ctx *commandContext, payload json.RawMessage) error {
	var p startLessonParams
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return errValidation("Malformed command payload: %v", err)
		}
	}
	return startLesson(ctx.store, ctx.cfg, ctx.session, ctx.snap, ctx.data, p, ctx.now)
}

func handlePauseLesson(ctx *commandContext, _ json.RawMessage) error {
	return pauseLesson(ctx.session, ctx.data, ctx.now)
}

func handleResumeLesson(ctx *commandContext, _ json.RawMessage) error {
	return resumeLesson(ctx.session, ctx.data, ctx.now)
}

type finishLessonPayload struct {
	Reason string `json:"reason,omitempty"`
}

func handleFinishLesson(ctx *commandContext, payload json.RawMessage) error {
	var p finishLessonPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return errValidation("Malformed command payload: %v", err)
		}
	}
	return finishLesson(ctx.session, ctx.data, speakerRole(ctx.roles), strings.TrimSpace(p.Reason), ctx.now)
}
