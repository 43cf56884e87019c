package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Radio channel plan. Channel 1 is the common net, 2 links the incident
// commander with HQ and dispatch, 3 and 4 are the combat area nets.
var radioChannelAliases = map[string]string{
	"MAIN":     "1",
	"RTP_HQ":   "2",
	"DISPATCH": "2",
	"RTP_BU1":  "3",
	"RTP_BU2":  "4",
}

var radioChannels = map[string]struct{}{
	"1": {}, "2": {}, "3": {}, "4": {},
}

// transmitRolesByChannel restricts who may key up on the combat area nets.
// Unlisted channels accept any role.
var transmitRolesByChannel = map[string][]Role{
	"3": {RoleRTP, RoleCombatArea1, RoleAdmin, RoleTrainingLead},
	"4": {RoleRTP, RoleCombatArea2, RoleAdmin, RoleTrainingLead},
}

// normalizeRadioChannel resolves channel numbers and named aliases.
func normalizeRadioChannel(raw string) (string, error) {
	ch := strings.ToUpper(strings.TrimSpace(raw))
	if alias, ok := radioChannelAliases[ch]; ok {
		ch = alias
	}
	if _, ok := radioChannels[ch]; !ok {
		return "", errValidation("Unknown radio channel %q", raw)
	}
	return ch, nil
}

// canTransmitOn reports whether any of the roles may key up on the channel.
func canTransmitOn(channel string, roles []Role) bool {
	allowed, restricted := transmitRolesByChannel[channel]
	if !restricted {
		return true
	}
	for _, role := range roles {
		for _, ok := range allowed {
			if role == ok {
				return true
			}
		}
	}
	return false
}

// radioRolePriority orders roles for labeling a multi-role speaker.
var radioRolePriority = []Role{
	RoleAdmin, RoleTrainingLead, RoleDispatcher, RoleRTP, RoleHQ,
	RoleCombatArea1, RoleCombatArea2,
}

// speakerRole picks the display role for a user holding several roles.
func speakerRole(roles []Role) string {
	for _, preferred := range radioRolePriority {
		for _, role := range roles {
			if role == preferred {
				return string(role)
			}
		}
	}
	if len(roles) > 0 {
		best := roles[0]
		for _, role := range roles[1:] {
			if role < best {
				best = role
			}
		}
		return string(best)
	}
	return "UNKNOWN"
}

// ChannelHold marks which speaker currently keys a channel.
type ChannelHold struct {
	UserUID  string    `json:"user_uid"`
	Role     string    `json:"role,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

// RadioLogEntry is one transmission in the per-session radio log.
type RadioLogEntry struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Channel    string    `json:"channel"`
	SenderUID  string    `json:"sender_uid"`
	SenderRole string    `json:"sender_role,omitempty"`
	AudioB64   string    `json:"audio_b64,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	At         time.Time `json:"at"`
}

// RadioRuntime is the radio block inside the snapshot.
type RadioRuntime struct {
	Holds   map[string]*ChannelHold `json:"channel_holds,omitempty"`
	Logs    []RadioLogEntry         `json:"logs,omitempty"`
	LogCap  int                     `json:"log_cap,omitempty"`
	HoldSec float64                 `json:"hold_timeout_sec,omitempty"`
	// Interference is a retired feature. The field survives for old
	// snapshots and is always cleared on load.
	Interference *string `json:"interference,omitempty"`
}

// RadioSummary condenses radio traffic for the lesson result.
type RadioSummary struct {
	TotalTransmissions int            `json:"total_transmissions"`
	ByChannel          map[string]int `json:"by_channel,omitempty"`
	ByRole             map[string]int `json:"by_role,omitempty"`
	FirstAt            *time.Time     `json:"first_at,omitempty"`
	LastAt             *time.Time     `json:"last_at,omitempty"`
}

// ensureRadioRuntime returns the radio block, initializing it on demand.
// Interference state never survives a load.
func (d *SnapshotData) ensureRadioRuntime() *RadioRuntime {
	if d.RadioRuntime == nil {
		d.RadioRuntime = &RadioRuntime{}
	}
	rt := d.RadioRuntime
	if rt.Holds == nil {
		rt.Holds = make(map[string]*ChannelHold)
	}
	if rt.LogCap == 0 {
		rt.LogCap = radioLogCapDefault
	}
	rt.LogCap = clampInt(rt.LogCap, radioLogCapMin, radioLogCapMax)
	if rt.HoldSec == 0 {
		rt.HoldSec = radioHoldDefaultSec
	}
	if rt.HoldSec < radioHoldMinSec {
		rt.HoldSec = radioHoldMinSec
	}
	if rt.HoldSec > radioHoldMaxSec {
		rt.HoldSec = radioHoldMaxSec
	}
	rt.Interference = nil
	return rt
}

// pruneStaleHolds drops channel holds whose speaker went silent past the
// hold timeout.
func (rt *RadioRuntime) pruneStaleHolds(now time.Time) {
	cutoff := time.Duration(rt.HoldSec * float64(time.Second))
	for channel, hold := range rt.Holds {
		if now.Sub(hold.LastSeen) > cutoff {
			delete(rt.Holds, channel)
		}
	}
}

// reserveChannel claims a channel for a speaker, refreshing an existing own
// hold. A live hold by another speaker rejects the claim.
func (rt *RadioRuntime) reserveChannel(channel, userUID, role string, now time.Time) error {
	rt.pruneStaleHolds(now)
	if hold, ok := rt.Holds[channel]; ok && hold.UserUID != userUID {
		return errConflict("Channel %s is busy by another speaker", channel)
	}
	rt.Holds[channel] = &ChannelHold{UserUID: userUID, Role: role, LastSeen: now}
	return nil
}

// releaseChannel drops a hold, but only for its owner.
func (rt *RadioRuntime) releaseChannel(channel, userUID string) {
	if hold, ok := rt.Holds[channel]; ok && hold.UserUID == userUID {
		delete(rt.Holds, channel)
	}
}

// appendLog prepends a transmission, trims to the cap, and blanks audio
// payloads outside the retained window so the snapshot stays bounded.
func (rt *RadioRuntime) appendLog(entry RadioLogEntry) {
	rt.Logs = append([]RadioLogEntry{entry}, rt.Logs...)
	if len(rt.Logs) > rt.LogCap {
		rt.Logs = rt.Logs[:rt.LogCap]
	}
	withAudio := 0
	for i := range rt.Logs {
		if rt.Logs[i].Type != "MESSAGE" || rt.Logs[i].AudioB64 == "" {
			continue
		}
		withAudio++
		if withAudio > radioAudioWindow {
			rt.Logs[i].AudioB64 = ""
		}
	}
}

// summarize reduces the radio log to the totals reported in a lesson result.
func (rt *RadioRuntime) summarize() RadioSummary {
	summary := RadioSummary{
		ByChannel: make(map[string]int),
		ByRole:    make(map[string]int),
	}
	for i := range rt.Logs {
		entry := &rt.Logs[i]
		if entry.Type != "MESSAGE" {
			continue
		}
		summary.TotalTransmissions++
		summary.ByChannel[entry.Channel]++
		role := entry.SenderRole
		if role == "" {
			role = "UNKNOWN"
		}
		summary.ByRole[role]++
		at := entry.At
		if summary.FirstAt == nil || at.Before(*summary.FirstAt) {
			first := at
			summary.FirstAt = &first
		}
		if summary.LastAt == nil || at.After(*summary.LastAt) {
			last := at
			summary.LastAt = &last
		}
	}
	return summary
}

// radioSummaryOf tolerates snapshots with no radio traffic at all.
func radioSummaryOf(data *SnapshotData) RadioSummary {
	if data == nil || data.RadioRuntime == nil {
		return RadioSummary{}
	}
	return data.RadioRuntime.summarize()
}

// appendJournal prepends a dispatcher journal line, trimmed to the cap.
func (d *SnapshotData) appendJournal(entry JournalEntry) {
	d.DispatcherJournal = append([]JournalEntry{entry}, d.DispatcherJournal...)
	if len(d.DispatcherJournal) > radioJournalCap {
		d.DispatcherJournal = d.DispatcherJournal[:radioJournalCap]
	}
}

func transmissionID() string {
	return fmt.Sprintf("tx_%s", strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

func journalEntryID() string {
	return fmt.Sprintf("jr_%s", strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// Transcriber converts a recorded transmission into text. The zero-config
// deployment runs without one and stores transmissions untranscribed.
type Transcriber interface {
	Transcribe(audioB64 string) (string, error)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
