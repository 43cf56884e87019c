package main

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Scene is the training-lead floor plan: per-floor object lists plus
// site-level entities around the building.
type Scene struct {
	Version       int           `json:"version"`
	Address       *SceneAddress `json:"address,omitempty"`
	SiteEntities  []SceneObject `json:"site_entities,omitempty"`
	Floors        []Floor       `json:"floors"`
	ActiveFloor   string        `json:"active_floor_id,omitempty"`
	ScaleMPerGrid float64       `json:"scale_m_per_grid,omitempty"`
}

// SceneAddress records where the drilled building is located.
type SceneAddress struct {
	Query    string  `json:"query"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	RadiusM  float64 `json:"radius_m"`
	Resolved bool    `json:"resolved"`
}

// Floor is one building level.
type Floor struct {
	ID         string        `json:"id"`
	Label      string        `json:"label,omitempty"`
	ElevationM float64       `json:"elevation_m"`
	Objects    []SceneObject `json:"objects"`
}

// SceneObject is one drawn element: wall, exit, hydrant, fire source, etc.
type SceneObject struct {
	ID           string          `json:"id"`
	Kind         SceneObjectKind `json:"kind"`
	GeometryType GeometryType    `json:"geometry_type"`
	Geometry     [][]float64     `json:"geometry"`
	Label        string          `json:"label,omitempty"`
	Props        map[string]any  `json:"props,omitempty"`
}

// SceneCheckpoint is a named saved copy of the whole scene.
type SceneCheckpoint struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	At    time.Time `json:"at"`
	Scene Scene     `json:"scene"`
}

// newScene returns an empty scene with one ground floor.
func newScene() *Scene {
	return &Scene{
		Version:     1,
		Floors:      []Floor{{ID: "F1", Label: "Этаж 1", Objects: []SceneObject{}}},
		ActiveFloor: "F1",
	}
}

// ensureScene returns the snapshot scene, creating a default one on demand.
func (d *SnapshotData) ensureScene() *Scene {
	if d.Scene == nil {
		d.Scene = newScene()
	}
	return d.Scene
}

// normalizeFloorID validates and canonicalizes a floor identifier.
func normalizeFloorID(raw string) (string, error) {
	id := strings.ToUpper(strings.TrimSpace(raw))
	if id == "" {
		return "", errValidation("floor id must not be empty")
	}
	if len(id) > maxFloorIDLength {
		return "", errValidation("floor id must be at most %d characters", maxFloorIDLength)
	}
	return id, nil
}

// floorByID finds a floor index, or -1.
func (s *Scene) floorIndex(id string) int {
	for i := range s.Floors {
		if s.Floors[i].ID == id {
			return i
		}
	}
	return -1
}

// UpsertFloor inserts or updates a floor, keeping floors sorted by elevation.
func (s *Scene) UpsertFloor(floor Floor) {
	if idx := s.floorIndex(floor.ID); idx >= 0 {
		floor.Objects = s.Floors[idx].Objects
		s.Floors[idx] = floor
	} else {
		floor.Objects = []SceneObject{}
		s.Floors = append(s.Floors, floor)
	}
	sort.SliceStable(s.Floors, func(i, j int) bool {
		return s.Floors[i].ElevationM < s.Floors[j].ElevationM
	})
	s.Version++
	if s.ActiveFloor == "" {
		s.ActiveFloor = floor.ID
	}
}

// SetActiveFloor switches the editing focus to an existing floor.
func (s *Scene) SetActiveFloor(id string) error {
	if s.floorIndex(id) < 0 {
		return errNotFound("Floor %s not found in scene", id)
	}
	s.ActiveFloor = id
	s.Version++
	return nil
}

// findObject locates an object on any floor. Returns the floor index and
// object index, or (-1, -1).
func (s *Scene) findObject(objectID string) (int, int) {
	for fi := range s.Floors {
		for oi := range s.Floors[fi].Objects {
			if s.Floors[fi].Objects[oi].ID == objectID {
				return fi, oi
			}
		}
	}
	return -1, -1
}

// UpsertObject inserts or replaces an object on the given floor. Last writer
// wins at object granularity.
func (s *Scene) UpsertObject(floorID string, obj SceneObject) error {
	idx := s.floorIndex(floorID)
	if idx < 0 {
		return errNotFound("Floor %s not found in scene", floorID)
	}
	if fi, oi := s.findObject(obj.ID); fi >= 0 {
		if fi == idx {
			s.Floors[fi].Objects[oi] = obj
			s.Version++
			return nil
		}
		// The object moved between floors.
		s.Floors[fi].Objects = append(s.Floors[fi].Objects[:oi], s.Floors[fi].Objects[oi+1:]...)
	}
	s.Floors[idx].Objects = append(s.Floors[idx].Objects, obj)
	s.Version++
	return nil
}

// RemoveObject deletes an object from whichever floor holds it.
func (s *Scene) RemoveObject(objectID string) error {
	fi, oi := s.findObject(objectID)
	if fi < 0 {
		return errNotFound("Scene object %s not found", objectID)
	}
	s.Floors[fi].Objects = append(s.Floors[fi].Objects[:oi], s.Floors[fi].Objects[oi+1:]...)
	s.Version++
	return nil
}

// ObjectByID returns a copy of the named object.
func (s *Scene) ObjectByID(objectID string) (SceneObject, bool) {
	fi, oi := s.findObject(objectID)
	if fi < 0 {
		return SceneObject{}, false
	}
	return s.Floors[fi].Objects[oi], true
}

// Clone deep-copies the scene through JSON, used for checkpoints.
func (s *Scene) Clone() Scene {
	raw, err := json.Marshal(s)
	if err != nil {
		return *s
	}
	var copied Scene
	if err := json.Unmarshal(raw, &copied); err != nil {
		return *s
	}
	return copied
}

// sameGeometry compares two vertex lists exactly.
func sameGeometry(a, b [][]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}

// runtimeSceneEditAllowed reports whether an upsert of obj over existing may
// proceed while the lesson is running or paused. Only in-place state updates
// of hydrants and walls are allowed then: same kind, geometry type and
// geometry. Walls additionally only accept the collapsed flag.
func runtimeSceneEditAllowed(existing, obj SceneObject) bool {
	if existing.Kind != obj.Kind || existing.GeometryType != obj.GeometryType {
		return false
	}
	if !sameGeometry(existing.Geometry, obj.Geometry) {
		return false
	}
	switch obj.Kind {
	case SceneHydrant:
		return true
	case SceneWall:
		collapsed, _ := obj.Props["collapsed"].(bool)
		return collapsed
	default:
		return false
	}
}

// AppendCheckpoint stores a scene copy, evicting the oldest past the cap.
func (d *SnapshotData) AppendCheckpoint(cp SceneCheckpoint) {
	d.SceneCheckpoints = append(d.SceneCheckpoints, cp)
	if len(d.SceneCheckpoints) > maxSceneCheckpoints {
		d.SceneCheckpoints = d.SceneCheckpoints[len(d.SceneCheckpoints)-maxSceneCheckpoints:]
	}
}
