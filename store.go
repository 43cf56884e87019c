package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store wraps the database behind the operations the command pipeline and
// simulation need. All mutating methods run inside transactions.
type Store struct {
	db *gorm.DB
}

// openStore opens (or creates) the sqlite database and migrates the schema.
func openStore(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(DatabaseModels...); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// newMemoryStore opens a throwaway in-memory database for tests.
func newMemoryStore() (*Store, error) {
	return openStore(":memory:")
}

// Transaction runs fn against a store bound to one database transaction, so
// every row the callback touches commits or rolls back as a unit.
func (s *Store) Transaction(fn func(*Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// UserByUID loads an active user account.
func (s *Store) UserByUID(uid string) (*User, error) {
	var user User
	err := s.db.Where("uid = ? AND is_active = ?", uid, true).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errUnauthorized("Auth session is not active")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserRoles decodes the stored role list of a user into canonical roles.
func (u *User) UserRoles() []Role {
	var raw []string
	if len(u.Roles) > 0 {
		if err := json.Unmarshal(u.Roles, &raw); err != nil {
			return nil
		}
	}
	return NormalizeRoles(raw)
}

// SessionByUID loads a session row.
func (s *Store) SessionByUID(uid string) (*SimulationSession, error) {
	var session SimulationSession
	err := s.db.Where("uid = ?", uid).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errNotFound("Session %s not found", uid)
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// SaveSession persists session status changes.
func (s *Store) SaveSession(session *SimulationSession) error {
	return s.db.Save(session).Error
}

// CurrentSnapshot returns the authoritative snapshot for a session, creating
// one when the session has none yet. Resolution order: the current snapshot,
// then the latest one re-marked current, then a fresh empty snapshot.
func (s *Store) CurrentSnapshot(sessionUID string) (*SessionStateSnapshot, error) {
	var snap SessionStateSnapshot
	err := s.db.Where("session_uid = ? AND is_current = ?", sessionUID, true).
		Order("created_at DESC").First(&snap).Error
	if err == nil {
		return &snap, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	err = s.db.Where("session_uid = ?", sessionUID).
		Order("created_at DESC").First(&snap).Error
	if err == nil {
		snap.IsCurrent = true
		if saveErr := s.db.Save(&snap).Error; saveErr != nil {
			return nil, saveErr
		}
		return &snap, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	snap = SessionStateSnapshot{
		UID:               uuid.NewString(),
		SessionUID:        sessionUID,
		IsCurrent:         true,
		SimTimeSec:        0,
		TimeOfDay:         TimeDay,
		WaterSupplyStatus: WaterSupplyOK,
		SchemaVersion:     snapshotSchemaVersion,
		SnapshotData:      datatypes.JSON([]byte(`{"source":"ws"}`)),
	}
	if err := s.db.Create(&snap).Error; err != nil {
		return nil, err
	}
	return &snap, nil
}

// SaveSnapshot persists snapshot changes. When markCurrent is set every other
// snapshot of the session loses its current flag first.
func (s *Store) SaveSnapshot(snap *SessionStateSnapshot, markCurrent bool) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if markCurrent {
			if err := tx.Model(&SessionStateSnapshot{}).
				Where("session_uid = ? AND uid <> ?", snap.SessionUID, snap.UID).
				Update("is_current", false).Error; err != nil {
				return err
			}
			snap.IsCurrent = true
		}
		return tx.Save(snap).Error
	})
}

// FireObjects lists every fire object of a session, oldest first.
func (s *Store) FireObjects(sessionUID string) ([]FireObject, error) {
	var objects []FireObject
	err := s.db.Where("session_uid = ?", sessionUID).Order("created_at ASC").Find(&objects).Error
	return objects, err
}

// CreateFireObject inserts a hazard row.
func (s *Store) CreateFireObject(obj *FireObject) error {
	if obj.UID == "" {
		obj.UID = uuid.NewString()
	}
	return s.db.Create(obj).Error
}

// SaveFireObject persists runtime updates to a hazard.
func (s *Store) SaveFireObject(obj *FireObject) error {
	return s.db.Save(obj).Error
}

// DeleteSceneSyncedFireObjects removes hazards that were generated from the
// floor-plan scene so a re-sync can recreate them.
func (s *Store) DeleteSceneSyncedFireObjects(sessionUID string) error {
	var objects []FireObject
	if err := s.db.Where("session_uid = ?", sessionUID).Find(&objects).Error; err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		for i := range objects {
			var extra map[string]any
			if len(objects[i].Extra) > 0 {
				if err := json.Unmarshal(objects[i].Extra, &extra); err != nil {
					continue
				}
			}
			source, _ := extra["source"].(string)
			if source == "ws:scene_object" || source == "ws:scene_sync" {
				if err := tx.Delete(&objects[i]).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Deployments lists every deployment of a session, oldest first.
func (s *Store) Deployments(sessionUID string) ([]ResourceDeployment, error) {
	var rows []ResourceDeployment
	err := s.db.Where("session_uid = ?", sessionUID).Order("created_at ASC").Find(&rows).Error
	return rows, err
}

// CreateDeployment inserts a tactical placement.
func (s *Store) CreateDeployment(row *ResourceDeployment) error {
	if row.UID == "" {
		row.UID = uuid.NewString()
	}
	return s.db.Create(row).Error
}

// VehicleSpecByUID loads one vehicle dictionary entry.
func (s *Store) VehicleSpecByUID(uid string) (*VehicleSpec, error) {
	var spec VehicleSpec
	err := s.db.Where("uid = ?", uid).First(&spec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errNotFound("Vehicle %s not found in dictionary", uid)
	}
	if err != nil {
		return nil, err
	}
	return &spec, nil
}

// VehicleSpecs loads the dictionary entries for a set of vehicle UIDs.
func (s *Store) VehicleSpecs(uids []string) (map[string]VehicleSpec, error) {
	specs := make(map[string]VehicleSpec, len(uids))
	if len(uids) == 0 {
		return specs, nil
	}
	var rows []VehicleSpec
	if err := s.db.Where("uid IN ?", uids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		specs[row.UID] = row
	}
	return specs, nil
}

// Weather returns the latest weather row for a session, if any.
func (s *Store) Weather(sessionUID string) (*WeatherSnapshot, error) {
	var weather WeatherSnapshot
	err := s.db.Where("session_uid = ?", sessionUID).Order("created_at DESC").First(&weather).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &weather, nil
}

// SaveWeather inserts a new weather row for the session.
func (s *Store) SaveWeather(weather *WeatherSnapshot) error {
	return s.db.Create(weather).Error
}

// SaveRadioTransmission persists one radio message.
func (s *Store) SaveRadioTransmission(tx *RadioTransmission) error {
	if tx.UID == "" {
		tx.UID = uuid.NewString()
	}
	if tx.SentAt.IsZero() {
		tx.SentAt = time.Now()
	}
	return s.db.Create(tx).Error
}

// RadioTransmissions lists every transmission of a session, oldest first.
func (s *Store) RadioTransmissions(sessionUID string) ([]RadioTransmission, error) {
	var rows []RadioTransmission
	err := s.db.Where("session_uid = ?", sessionUID).Order("sent_at ASC").Find(&rows).Error
	return rows, err
}

// CreateUser inserts an account row, mostly used by tests and seeding.
func (s *Store) CreateUser(user *User) error {
	if user.UID == "" {
		user.UID = uuid.NewString()
	}
	return s.db.Create(user).Error
}

// CreateSession inserts a session row.
func (s *Store) CreateSession(session *SimulationSession) error {
	if session.UID == "" {
		session.UID = uuid.NewString()
	}
	if session.Status == "" {
		session.Status = SessionCreated
	}
	return s.db.Create(session).Error
}

// CreateVehicleSpec inserts a vehicle dictionary row.
func (s *Store) CreateVehicleSpec(spec *VehicleSpec) error {
	if spec.UID == "" {
		spec.UID = uuid.NewString()
	}
	return s.db.Create(spec).Error
}
