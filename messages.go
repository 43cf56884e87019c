package main

import (
	"encoding/json"
	"time"
)

// ClientMessage is the tagged union of every frame a client may send. Type
// decides which fields matter.
type ClientMessage struct {
	Type        string          `json:"type"`
	AccessToken string          `json:"accessToken,omitempty"`
	SessionID   string          `json:"sessionId,omitempty"`
	CommandID   string          `json:"commandId,omitempty"`
	Name        string          `json:"name,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// AuthOKMessage confirms the handshake and echoes the resolved identity.
type AuthOKMessage struct {
	Type       string `json:"type"`
	UserID     string `json:"userId"`
	SessionID  string `json:"sessionId,omitempty"`
	Roles      []Role `json:"roles"`
	ServerTime string `json:"serverTime"`
}

// AuthErrorMessage rejects the handshake before the socket closes.
type AuthErrorMessage struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

// PongMessage answers a client keepalive.
type PongMessage struct {
	Type       string `json:"type"`
	ServerTime string `json:"serverTime"`
}

// SubscribedMessage confirms a session subscription switch.
type SubscribedMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

// AckMessage confirms a command. Status is "applied" for fresh commands and
// "duplicate" for idempotent retries.
type AckMessage struct {
	Type       string `json:"type"`
	CommandID  string `json:"commandId"`
	Status     string `json:"status"`
	Command    string `json:"command"`
	SessionID  string `json:"sessionId"`
	ServerTime string `json:"serverTime"`
}

// ErrorMessage reports a failed command without dropping the connection.
type ErrorMessage struct {
	Type      string `json:"type"`
	Detail    string `json:"detail"`
	Code      string `json:"code"`
	Status    int    `json:"status"`
	CommandID string `json:"commandId,omitempty"`
}

// SessionStateMessage carries the full state bundle for one session.
type SessionStateMessage struct {
	Type      string       `json:"type"`
	SessionID string       `json:"sessionId"`
	Bundle    *StateBundle `json:"bundle"`
}

// StateBundle is everything a client needs to render a session.
type StateBundle struct {
	Session     SessionView      `json:"session"`
	Snapshot    SnapshotView     `json:"snapshot"`
	FireObjects []FireObjectView `json:"fire_objects"`
	Deployments []DeploymentView `json:"deployments"`
	Weather     *WeatherView     `json:"weather,omitempty"`
	State       *SnapshotData    `json:"state"`
}

// SessionView is the session row as clients see it.
type SessionView struct {
	UID        string     `json:"uid"`
	Title      string     `json:"title"`
	Status     string     `json:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// SnapshotView is the snapshot header without the state blob.
type SnapshotView struct {
	UID               string `json:"uid"`
	SimTimeSec        int64  `json:"sim_time_sec"`
	TimeOfDay         string `json:"time_of_day"`
	WaterSupplyStatus string `json:"water_supply_status"`
	SchemaVersion     string `json:"schema_version"`
}

// FireObjectView is one hazard row as clients see it.
type FireObjectView struct {
	UID          string          `json:"uid"`
	Kind         string          `json:"kind"`
	Name         string          `json:"name"`
	GeometryType string          `json:"geometry_type"`
	Geometry     json.RawMessage `json:"geometry,omitempty"`
	AreaM2       float64         `json:"area_m2"`
	IsActive     bool            `json:"is_active"`
	Extra        json.RawMessage `json:"extra,omitempty"`
}

// DeploymentView is one tactical placement as clients see it.
type DeploymentView struct {
	UID                  string          `json:"uid"`
	Kind                 string          `json:"kind"`
	Status               string          `json:"status"`
	RoleTag              string          `json:"role_tag,omitempty"`
	CreatedByUID         string          `json:"created_by_uid,omitempty"`
	VehicleDictionaryUID string          `json:"vehicle_dictionary_uid,omitempty"`
	GeometryType         string          `json:"geometry_type"`
	Geometry             json.RawMessage `json:"geometry,omitempty"`
	Props                json.RawMessage `json:"props,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
}

// WeatherView is the latest weather row.
type WeatherView struct {
	WindSpeedMS   float64 `json:"wind_speed_ms"`
	WindDirDeg    float64 `json:"wind_dir_deg"`
	TemperatureC  float64 `json:"temperature_c"`
	HumidityPct   float64 `json:"humidity_pct"`
	Precipitation string  `json:"precipitation,omitempty"`
}

func serverTime(now time.Time) string {
	return now.UTC().Format(time.RFC3339Nano)
}

// buildStateBundle assembles the full session bundle for broadcast.
func buildStateBundle(
	store *Store,
	session *SimulationSession,
	snap *SessionStateSnapshot,
	data *SnapshotData,
) (*StateBundle, error) {
	fires, err := store.FireObjects(session.UID)
	if err != nil {
		return nil, err
	}
	deployments, err := store.Deployments(session.UID)
	if err != nil {
		return nil, err
	}
	weather, err := store.Weather(session.UID)
	if err != nil {
		return nil, err
	}

	bundle := &StateBundle{
		Session: SessionView{
			UID:        session.UID,
			Title:      session.Title,
			Status:     string(session.Status),
			StartedAt:  session.StartedAt,
			FinishedAt: session.FinishedAt,
		},
		Snapshot: SnapshotView{
			UID:               snap.UID,
			SimTimeSec:        snap.SimTimeSec,
			TimeOfDay:         string(snap.TimeOfDay),
			WaterSupplyStatus: string(snap.WaterSupplyStatus),
			SchemaVersion:     snap.SchemaVersion,
		},
		FireObjects: make([]FireObjectView, 0, len(fires)),
		Deployments: make([]DeploymentView, 0, len(deployments)),
		State:       data,
	}
	for i := range fires {
		f := &fires[i]
		bundle.FireObjects = append(bundle.FireObjects, FireObjectView{
			UID:          f.UID,
			Kind:         string(f.Kind),
			Name:         f.Name,
			GeometryType: string(f.GeometryType),
			Geometry:     json.RawMessage(f.Geometry),
			AreaM2:       f.AreaM2,
			IsActive:     f.IsActive,
			Extra:        json.RawMessage(f.Extra),
		})
	}
	for i := range deployments {
		d := &deployments[i]
		bundle.Deployments = append(bundle.Deployments, DeploymentView{
			UID:                  d.UID,
			Kind:                 string(d.Kind),
			Status:               string(d.Status),
			RoleTag:              d.RoleTag,
			CreatedByUID:         d.CreatedByUID,
			VehicleDictionaryUID: d.VehicleDictionaryUID,
			GeometryType:         string(d.GeometryType),
			Geometry:             json.RawMessage(d.Geometry),
			Props:                json.RawMessage(d.Props),
			CreatedAt:            d.CreatedAt,
		})
	}
	if weather != nil {
		bundle.Weather = &WeatherView{
			WindSpeedMS:   weather.WindSpeedMS,
			WindDirDeg:    weather.WindDirDeg,
			TemperatureC:  weather.TemperatureC,
			HumidityPct:   weather.HumidityPct,
			Precipitation: weather.Precipitation,
		}
	}
	return bundle, nil
}
