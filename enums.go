package main

import "strings"

// Role identifies what a connected trainee is allowed to do in a session.
type Role string

const (
	RoleAdmin        Role = "ADMIN"
	RoleCombatArea1  Role = "COMBAT_AREA_1"
	RoleCombatArea2  Role = "COMBAT_AREA_2"
	RoleDispatcher   Role = "DISPATCHER"
	RoleHQ           Role = "HQ"
	RoleRTP          Role = "RTP"
	RoleTrainingLead Role = "TRAINING_LEAD"
)

// roleAliases maps legacy and localized role names found in older account
// records to canonical roles. Keys are uppercased before lookup.
var roleAliases = map[string]Role{
	"АДМИН":            RoleAdmin,
	"БОЕВОЙ УЧАСТОК 1": RoleCombatArea1,
	"БУ1":              RoleCombatArea1,
	"БУ 1":             RoleCombatArea1,
	"БОЕВОЙ УЧАСТОК 2": RoleCombatArea2,
	"БУ2":              RoleCombatArea2,
	"БУ 2":             RoleCombatArea2,
	"ДИСПЕТЧЕР":        RoleDispatcher,
	"ШТАБ":             RoleHQ,
	"РТП":              RoleRTP,
	"РУКОВОДИТЕЛЬ ЗАНЯТИЙ": RoleTrainingLead,
	"NSH":             RoleHQ,
	"НАЧАЛЬНИК ШТАБА": RoleHQ,
	"STAFF":           RoleCombatArea1,
	"ПОЖАРНЫЙ":        RoleCombatArea1,
	"СОТРУДНИК":       RoleCombatArea1,
	"FIREFIGHTER":     RoleCombatArea1,
}

var canonicalRoles = map[Role]struct{}{
	RoleAdmin:        {},
	RoleCombatArea1:  {},
	RoleCombatArea2:  {},
	RoleDispatcher:   {},
	RoleHQ:           {},
	RoleRTP:          {},
	RoleTrainingLead: {},
}

// NormalizeRole resolves a raw role string to a canonical Role.
func NormalizeRole(raw string) (Role, bool) {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if _, ok := canonicalRoles[Role(upper)]; ok {
		return Role(upper), true
	}
	if role, ok := roleAliases[upper]; ok {
		return role, true
	}
	return "", false
}

// NormalizeRoles maps a raw role list to the deduplicated canonical set,
// silently dropping names that resolve to nothing.
func NormalizeRoles(raw []string) []Role {
	seen := make(map[Role]struct{}, len(raw))
	roles := make([]Role, 0, len(raw))
	for _, r := range raw {
		role, ok := NormalizeRole(r)
		if !ok {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		roles = append(roles, role)
	}
	return roles
}

// SessionStatus is the stored lifecycle state of a training session.
type SessionStatus string

const (
	SessionCreated    SessionStatus = "CREATED"
	SessionInProgress SessionStatus = "IN_PROGRESS"
	SessionPaused     SessionStatus = "PAUSED"
	SessionCompleted  SessionStatus = "COMPLETED"
)

// LessonPhase is the lesson state machine vocabulary used in snapshots.
// Stored sessions keep the legacy SessionStatus names; the two map 1:1.
type LessonPhase string

const (
	LessonDraft     LessonPhase = "DRAFT"
	LessonRunning   LessonPhase = "RUNNING"
	LessonPaused    LessonPhase = "PAUSED"
	LessonCompleted LessonPhase = "COMPLETED"
)

// PhaseForStatus maps a stored session status to the lesson phase.
func PhaseForStatus(status SessionStatus) LessonPhase {
	switch status {
	case SessionInProgress:
		return LessonRunning
	case SessionPaused:
		return LessonPaused
	case SessionCompleted:
		return LessonCompleted
	default:
		return LessonDraft
	}
}

// StatusForPhase maps a lesson phase back to the stored session status.
func StatusForPhase(phase LessonPhase) SessionStatus {
	switch phase {
	case LessonRunning:
		return SessionInProgress
	case LessonPaused:
		return SessionPaused
	case LessonCompleted:
		return SessionCompleted
	default:
		return SessionCreated
	}
}

// VehicleType enumerates the apparatus classes in the vehicle dictionary.
type VehicleType string

const (
	VehicleAC  VehicleType = "AC"  // water tender
	VehicleAL  VehicleType = "AL"  // ladder
	VehicleASA VehicleType = "ASA" // rescue unit
)

// TimeOfDay partitions the simulated clock for lighting and visibility.
type TimeOfDay string

const (
	TimeDay     TimeOfDay = "DAY"
	TimeEvening TimeOfDay = "EVENING"
	TimeNight   TimeOfDay = "NIGHT"
)

// WaterSupplyStatus describes the municipal water supply condition.
type WaterSupplyStatus string

const (
	WaterSupplyOK       WaterSupplyStatus = "OK"
	WaterSupplyDegraded WaterSupplyStatus = "DEGRADED"
	WaterSupplyFailed   WaterSupplyStatus = "FAILED"
)

// FireZoneKind classifies simulated hazard objects.
type FireZoneKind string

const (
	FireSeat       FireZoneKind = "FIRE_SEAT"
	FireZone       FireZoneKind = "FIRE_ZONE"
	SmokeZone      FireZoneKind = "SMOKE_ZONE"
	TempImpactZone FireZoneKind = "TEMP_IMPACT_ZONE"
)

// GeometryType is the shape vocabulary shared by fire objects, deployments
// and scene objects.
type GeometryType string

const (
	GeometryPoint      GeometryType = "POINT"
	GeometryLineString GeometryType = "LINESTRING"
	GeometryPolygon    GeometryType = "POLYGON"
)

// ResourceKind classifies tactical deployments placed on the map.
type ResourceKind string

const (
	ResourceVehicle      ResourceKind = "VEHICLE"
	ResourceHoseLine     ResourceKind = "HOSE_LINE"
	ResourceHoseSplitter ResourceKind = "HOSE_SPLITTER"
	ResourceNozzle       ResourceKind = "NOZZLE"
	ResourceWaterSource  ResourceKind = "WATER_SOURCE"
	ResourceCrew         ResourceKind = "CREW"
	ResourceMarker       ResourceKind = "MARKER"
)

// DeploymentStatus tracks a resource through its tactical lifecycle.
type DeploymentStatus string

const (
	DeploymentPlanned   DeploymentStatus = "PLANNED"
	DeploymentEnRoute   DeploymentStatus = "EN_ROUTE"
	DeploymentDeployed  DeploymentStatus = "DEPLOYED"
	DeploymentActive    DeploymentStatus = "ACTIVE"
	DeploymentCompleted DeploymentStatus = "COMPLETED"
)

// SceneObjectKind enumerates floor-plan object categories.
type SceneObjectKind string

const (
	SceneWall        SceneObjectKind = "WALL"
	SceneExit        SceneObjectKind = "EXIT"
	SceneStair       SceneObjectKind = "STAIR"
	SceneRoom        SceneObjectKind = "ROOM"
	SceneDoor        SceneObjectKind = "DOOR"
	SceneFireSource  SceneObjectKind = "FIRE_SOURCE"
	SceneSmokeZone   SceneObjectKind = "SMOKE_ZONE"
	SceneHydrant     SceneObjectKind = "HYDRANT"
	SceneWaterSource SceneObjectKind = "WATER_SOURCE"
)

// Site-level entity kinds generated around the building. Not valid as
// floor objects.
const (
	SceneBuildingContour SceneObjectKind = "BUILDING_CONTOUR"
	SceneRoadAccess      SceneObjectKind = "ROAD_ACCESS"
)

var sceneObjectKinds = map[SceneObjectKind]struct{}{
	SceneWall: {}, SceneExit: {}, SceneStair: {}, SceneRoom: {}, SceneDoor: {},
	SceneFireSource: {}, SceneSmokeZone: {}, SceneHydrant: {}, SceneWaterSource: {},
}

// ValidSceneObjectKind reports whether kind names a known scene category.
func ValidSceneObjectKind(kind SceneObjectKind) bool {
	_, ok := sceneObjectKinds[kind]
	return ok
}
