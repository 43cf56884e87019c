package main

// Schema versions stamped into persisted snapshots. Bump when the shape of
// the stored runtime or snapshot payload changes.
const (
	fireRuntimeSchemaVersion = "2.0"
	snapshotSchemaVersion    = "2026.03"
)

// Simulated clock bounds.
const (
	gameDaySeconds      = 86400
	defaultStartSimTime = 36000 // 10:00 local
)

// Lesson timing bounds, seconds.
const (
	defaultLessonTimeLimit = 1800
	minLessonTimeLimit     = 300
	maxLessonTimeLimit     = 21600
)

// Time multiplier clamp for the simulated clock.
const (
	timeMultiplierMin = 0.1
	timeMultiplierMax = 30.0
)

// Dispatch workflow bounds.
const (
	dispatchCodeLength   = 7
	dispatchCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	dispatchETAMinSec    = 30
	dispatchETAMaxSec    = 120
)

// Command envelope limits.
const (
	maxCommandIDLength   = 128
	maxCommandNameLength = 64
	maxPayloadBytes      = 2500000
)

// Scene field limits.
const (
	maxFloorIDLength     = 16
	maxObjectIDLength    = 64
	maxLabelLength       = 255
	maxSceneCheckpoints  = 12
	sceneAddressRadiusLo = 50
	sceneAddressRadiusHi = 1000
)

// Radio runtime limits.
const (
	radioLogCapDefault  = 320
	radioLogCapMin      = 80
	radioLogCapMax      = 800
	radioAudioWindow    = 48
	radioJournalCap     = 300
	maxRadioAudioBytes  = 2000000
	radioHoldDefaultSec = 0.9
	radioHoldMinSec     = 0.5
	radioHoldMaxSec     = 5.0
)
