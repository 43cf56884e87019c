package main

import (
	"encoding/json"
	"math"
	"time"

	"gorm.io/datatypes"

	"firedrill/server/physics"
)

// Fallback maximum areas for hazards synced from the floor plan when neither
// props nor geometry bound them.
const (
	sceneSyncFireMaxAreaFallback  = 140.0
	sceneSyncSmokeMaxAreaFallback = 220.0
)

// syncSceneToFireObjects replaces every scene-derived hazard with a fresh set
// built from the FIRE_SOURCE and SMOKE_ZONE objects currently drawn. Hazards
// created by hand keep their rows.
func syncSceneToFireObjects(store *Store, sessionUID string, scene *Scene, now time.Time) error {
	if err := store.DeleteSceneSyncedFireObjects(sessionUID); err != nil {
		return err
	}
	if scene == nil {
		return nil
	}
	for fi := range scene.Floors {
		floor := &scene.Floors[fi]
		for oi := range floor.Objects {
			obj := &floor.Objects[oi]
			if obj.Kind != SceneFireSource && obj.Kind != SceneSmokeZone {
				continue
			}
			hazard, err := fireObjectFromSceneObject(sessionUID, floor.ID, obj, now)
			if err != nil {
				return err
			}
			if err := store.CreateFireObject(hazard); err != nil {
				return err
			}
		}
	}
	return nil
}

// fireObjectFromSceneObject converts one drawn fire source or smoke zone into
// a live hazard row.
func fireObjectFromSceneObject(sessionUID, floorID string, obj *SceneObject, now time.Time) (*FireObject, error) {
	props := propMap(obj.Props)
	rank := physics.ClampRank(int(props.float("fire_rank", 1)))
	power := physics.ClampPower(props.float("fire_power", 1.0))

	var kind FireZoneKind
	var area, maxFallback float64
	if obj.Kind == SceneFireSource {
		kind = FireSeat
		area = props.float("area_m2", 0)
		if area <= 0 {
			area = physics.DefaultSeatArea(rank, power)
		}
		maxFallback = sceneSyncFireMaxAreaFallback
	} else {
		kind = SmokeZone
		area = props.float("area_m2", 0)
		if area <= 0 {
			area = physics.DefaultSmokeArea(power)
		}
		maxFallback = sceneSyncSmokeMaxAreaFallback
	}

	maxArea := props.float("max_area_m2", 0)
	if maxArea <= 0 && obj.GeometryType == GeometryPolygon {
		maxArea = polygonArea(obj.Geometry)
	}
	if maxArea > 0 {
		maxArea = physics.Clamp(maxArea, physics.ContainmentAreaMin, physics.ContainmentAreaMax)
	} else {
		maxArea = maxFallback
	}
	maxArea = math.Max(maxArea, area)

	geometry, err := json.Marshal(obj.Geometry)
	if err != nil {
		return nil, err
	}
	name := obj.Label
	if name == "" {
		if kind == FireSeat {
			name = "Очаг пожара"
		} else {
			name = "Зона задымления"
		}
	}
	extra, err := json.Marshal(map[string]any{
		"source":          "ws:scene_sync",
		"scene_object_id": obj.ID,
		"floor_id":        floorID,
		"fire_rank":       rank,
		"fire_power":      power,
		"max_area_m2":     round2(maxArea),
		"synced_at":       now.Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}
	return &FireObject{
		SessionUID:   sessionUID,
		Kind:         kind,
		Name:         truncate(name, maxLabelLength),
		GeometryType: obj.GeometryType,
		Geometry:     datatypes.JSON(geometry),
		AreaM2:       round2(area),
		IsActive:     true,
		Extra:        datatypes.JSON(extra),
	}, nil
}
