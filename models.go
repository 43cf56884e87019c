package main

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DatabaseModels lists every struct migrated into the database schema.
var DatabaseModels = []interface{}{
	&User{},
	&SimulationSession{},
	&SessionStateSnapshot{},
	&FireObject{},
	&ResourceDeployment{},
	&VehicleSpec{},
	&WeatherSnapshot{},
	&RadioTransmission{},
}

// User is a trainee or instructor account. Roles are stored as a JSON array
// of canonical role names.
type User struct {
	gorm.Model
	UID      string         `json:"uid" gorm:"size:64;uniqueIndex"`
	Login    string         `json:"login" gorm:"size:127;uniqueIndex"`
	FullName string         `json:"fullName" gorm:"size:255"`
	Roles    datatypes.JSON `json:"roles"`
	IsActive bool           `json:"isActive" gorm:"default:true"`
}

func (*User) TableName() string { return "users" }

// SimulationSession is one training run, usually a classroom exercise.
type SimulationSession struct {
	gorm.Model
	UID          string        `json:"uid" gorm:"size:64;uniqueIndex"`
	Title        string        `json:"title" gorm:"size:255"`
	Status       SessionStatus `json:"status" gorm:"size:32;index"`
	CreatedByUID string        `json:"createdByUid" gorm:"size:64;index"`
	StartedAt    *time.Time    `json:"startedAt"`
	FinishedAt   *time.Time    `json:"finishedAt"`
}

func (*SimulationSession) TableName() string { return "simulation_sessions" }

// SessionStateSnapshot holds the authoritative world blob for one session.
// Exactly one row per session has IsCurrent set.
type SessionStateSnapshot struct {
	gorm.Model
	UID               string            `json:"uid" gorm:"size:64;uniqueIndex"`
	SessionUID        string            `json:"sessionUid" gorm:"size:64;index:idx_snapshot_session"`
	IsCurrent         bool              `json:"isCurrent" gorm:"index:idx_snapshot_current"`
	SimTimeSec        int64             `json:"simTimeSec"`
	TimeOfDay         TimeOfDay         `json:"timeOfDay" gorm:"size:16"`
	WaterSupplyStatus WaterSupplyStatus `json:"waterSupplyStatus" gorm:"size:16"`
	SchemaVersion     string            `json:"schemaVersion" gorm:"size:16"`
	SnapshotData      datatypes.JSON    `json:"snapshotData"`
}

func (*SessionStateSnapshot) TableName() string { return "session_state_snapshots" }

// FireObject is a simulated hazard (fire seat, fire zone, smoke zone).
// Geometry is GeoJSON-like coordinates; Extra carries runtime fields such as
// spread speed, rank, power, and provenance tags.
type FireObject struct {
	gorm.Model
	UID          string         `json:"uid" gorm:"size:64;uniqueIndex"`
	SessionUID   string         `json:"sessionUid" gorm:"size:64;index:idx_fire_session"`
	Kind         FireZoneKind   `json:"kind" gorm:"size:32"`
	Name         string         `json:"name" gorm:"size:255"`
	GeometryType GeometryType   `json:"geometryType" gorm:"size:16"`
	Geometry     datatypes.JSON `json:"geometry"`
	AreaM2       float64        `json:"areaM2"`
	IsActive     bool           `json:"isActive" gorm:"index"`
	Extra        datatypes.JSON `json:"extra"`
}

func (*FireObject) TableName() string { return "fire_objects" }

// ResourceDeployment is one tactical placement: a vehicle, hose line,
// splitter, nozzle, water source, crew, or marker.
type ResourceDeployment struct {
	gorm.Model
	UID                  string           `json:"uid" gorm:"size:64;uniqueIndex"`
	SessionUID           string           `json:"sessionUid" gorm:"size:64;index:idx_deploy_session"`
	Kind                 ResourceKind     `json:"kind" gorm:"size:32"`
	Status               DeploymentStatus `json:"status" gorm:"size:32"`
	RoleTag              string           `json:"roleTag" gorm:"size:64"`
	CreatedByUID         string           `json:"createdByUid" gorm:"size:64"`
	VehicleDictionaryUID string           `json:"vehicleDictionaryUid" gorm:"size:64;index"`
	GeometryType         GeometryType     `json:"geometryType" gorm:"size:16"`
	Geometry             datatypes.JSON   `json:"geometry"`
	Props                datatypes.JSON   `json:"props"`
}

func (*ResourceDeployment) TableName() string { return "resource_deployments" }

// VehicleSpec is a vehicle dictionary entry describing one apparatus.
type VehicleSpec struct {
	gorm.Model
	UID            string      `json:"uid" gorm:"size:64;uniqueIndex"`
	Callsign       string      `json:"callsign" gorm:"size:64"`
	Type           VehicleType `json:"type" gorm:"size:16"`
	WaterCapacityL float64     `json:"waterCapacityL"`
	PumpPressureM  float64     `json:"pumpPressureM"`
}

func (*VehicleSpec) TableName() string { return "vehicle_specs" }

// WeatherSnapshot is the active weather for a session.
type WeatherSnapshot struct {
	gorm.Model
	SessionUID    string  `json:"sessionUid" gorm:"size:64;index:idx_weather_session"`
	WindSpeedMS   float64 `json:"windSpeedMs"`
	WindDirDeg    float64 `json:"windDirDeg"`
	TemperatureC  float64 `json:"temperatureC"`
	HumidityPct   float64 `json:"humidityPct"`
	Precipitation string  `json:"precipitation" gorm:"size:32"`
}

func (*WeatherSnapshot) TableName() string { return "weather_snapshots" }

// RadioTransmission is one voice message pushed over the training radio net.
type RadioTransmission struct {
	gorm.Model
	UID        string    `json:"uid" gorm:"size:64;uniqueIndex"`
	SessionUID string    `json:"sessionUid" gorm:"size:64;index:idx_radio_session"`
	Channel    string    `json:"channel" gorm:"size:8"`
	SenderUID  string    `json:"senderUid" gorm:"size:64"`
	SenderRole string    `json:"senderRole" gorm:"size:32"`
	Transcript string    `json:"transcript" gorm:"size:2048"`
	DurationMS int64     `json:"durationMs"`
	SentAt     time.Time `json:"sentAt" gorm:"index"`
}

func (*RadioTransmission) TableName() string { return "radio_transmissions" }
