package main

import (
	"fmt"
	"testing"
	"time"
)

func TestNormalizeRadioChannel(t *testing.T) {
	cases := map[string]string{
		"1":        "1",
		" 2 ":      "2",
		"main":     "1",
		"DISPATCH": "2",
		"rtp_hq":   "2",
		"RTP_BU1":  "3",
		"RTP_BU2":  "4",
	}
	for raw, want := range cases {
		got, err := normalizeRadioChannel(raw)
		if err != nil {
			t.Fatalf("%q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("%q: expected channel %s, got %s", raw, want, got)
		}
	}
	if _, err := normalizeRadioChannel("5"); err == nil {
		t.Fatalf("channel 5 does not exist")
	}
	if _, err := normalizeRadioChannel(""); err == nil {
		t.Fatalf("empty channel must be rejected")
	}
}

func TestCanTransmitOn(t *testing.T) {
	if !canTransmitOn("1", []Role{RoleCombatArea2}) {
		t.Fatalf("common net accepts everyone")
	}
	if !canTransmitOn("3", []Role{RoleCombatArea1}) {
		t.Fatalf("CA1 belongs on its own net")
	}
	if canTransmitOn("3", []Role{RoleCombatArea2}) {
		t.Fatalf("CA2 must not key up on the BU1 net")
	}
	if !canTransmitOn("4", []Role{RoleDispatcher, RoleCombatArea2}) {
		t.Fatalf("any matching role is enough")
	}
	if canTransmitOn("4", []Role{RoleHQ}) {
		t.Fatalf("HQ must not key up on the BU2 net")
	}
}

func TestSpeakerRolePriority(t *testing.T) {
	if got := speakerRole([]Role{RoleCombatArea1, RoleRTP}); got != string(RoleRTP) {
		t.Fatalf("RTP outranks CA1, got %s", got)
	}
	if got := speakerRole([]Role{RoleDispatcher, RoleAdmin}); got != string(RoleAdmin) {
		t.Fatalf("ADMIN outranks everything, got %s", got)
	}
	if got := speakerRole([]Role{"ZOO", "BAR"}); got != "BAR" {
		t.Fatalf("unlisted roles fall back to the sorted first, got %s", got)
	}
	if got := speakerRole(nil); got != "UNKNOWN" {
		t.Fatalf("no roles means UNKNOWN, got %s", got)
	}
}

func TestReserveChannelBusy(t *testing.T) {
	data := &SnapshotData{}
	rt := data.ensureRadioRuntime()
	now := time.Now()

	if err := rt.reserveChannel("1", "u1", "RTP", now); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	err := rt.reserveChannel("1", "u2", "HQ", now.Add(100*time.Millisecond))
	if err == nil {
		t.Fatalf("live hold must reject another speaker")
	}
	cmdErr, ok := asCommandError(err)
	if !ok || cmdErr.Status != 409 {
		t.Fatalf("expected 409 conflict, got %v", err)
	}
	if cmdErr.Detail != "Channel 1 is busy by another speaker" {
		t.Fatalf("unexpected detail %q", cmdErr.Detail)
	}

	// The owner may refresh their own hold.
	if err := rt.reserveChannel("1", "u1", "RTP", now.Add(200*time.Millisecond)); err != nil {
		t.Fatalf("owner refresh: %v", err)
	}
	// A stale hold frees the channel.
	late := now.Add(time.Duration(rt.HoldSec*float64(time.Second)) + time.Second)
	if err := rt.reserveChannel("1", "u2", "HQ", late); err != nil {
		t.Fatalf("stale hold should be pruned: %v", err)
	}
}

func TestReleaseChannelOwnerOnly(t *testing.T) {
	data := &SnapshotData{}
	rt := data.ensureRadioRuntime()
	now := time.Now()
	if err := rt.reserveChannel("2", "u1", "HQ", now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	rt.releaseChannel("2", "u2")
	if _, held := rt.Holds["2"]; !held {
		t.Fatalf("non-owner must not release the hold")
	}
	rt.releaseChannel("2", "u1")
	if _, held := rt.Holds["2"]; held {
		t.Fatalf("owner release failed")
	}
}

func TestAppendLogCapAndAudioWindow(t *testing.T) {
	data := &SnapshotData{}
	rt := data.ensureRadioRuntime()
	now := time.Now()

	total := radioAudioWindow + 20
	for i := 0; i < total; i++ {
		rt.appendLog(RadioLogEntry{
			ID:       fmt.Sprintf("tx-%d", i),
			Type:     "MESSAGE",
			Channel:  "1",
			AudioB64: "QUJD",
			At:       now.Add(time.Duration(i) * time.Second),
		})
	}

	if rt.Logs[0].ID != fmt.Sprintf("tx-%d", total-1) {
		t.Fatalf("log must be newest first, got %s", rt.Logs[0].ID)
	}
	withAudio := 0
	for i := range rt.Logs {
		if rt.Logs[i].AudioB64 != "" {
			withAudio++
		}
	}
	if withAudio != radioAudioWindow {
		t.Fatalf("expected audio on the newest %d entries, got %d", radioAudioWindow, withAudio)
	}
	if rt.Logs[len(rt.Logs)-1].AudioB64 != "" {
		t.Fatalf("oldest entries must lose their audio payload")
	}

	for i := 0; i < radioLogCapDefault+50; i++ {
		rt.appendLog(RadioLogEntry{ID: fmt.Sprintf("x-%d", i), Type: "MESSAGE", Channel: "1"})
	}
	if len(rt.Logs) != radioLogCapDefault {
		t.Fatalf("log cap broken: %d", len(rt.Logs))
	}
}

func TestRadioSummarize(t *testing.T) {
	data := &SnapshotData{}
	rt := data.ensureRadioRuntime()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rt.appendLog(RadioLogEntry{ID: "a", Type: "MESSAGE", Channel: "1", SenderRole: "RTP", At: base})
	rt.appendLog(RadioLogEntry{ID: "b", Type: "MESSAGE", Channel: "2", SenderRole: "HQ", At: base.Add(time.Minute)})
	rt.appendLog(RadioLogEntry{ID: "c", Type: "MESSAGE", Channel: "2", At: base.Add(2 * time.Minute)})
	rt.appendLog(RadioLogEntry{ID: "d", Type: "SYSTEM", Channel: "1", At: base.Add(3 * time.Minute)})

	sum := rt.summarize()
	if sum.TotalTransmissions != 3 {
		t.Fatalf("system lines do not count, got %d", sum.TotalTransmissions)
	}
	if sum.ByChannel["2"] != 2 || sum.ByChannel["1"] != 1 {
		t.Fatalf("per-channel counts broken: %v", sum.ByChannel)
	}
	if sum.ByRole["UNKNOWN"] != 1 || sum.ByRole["RTP"] != 1 {
		t.Fatalf("per-role counts broken: %v", sum.ByRole)
	}
	if sum.FirstAt == nil || !sum.FirstAt.Equal(base) {
		t.Fatalf("first timestamp broken: %v", sum.FirstAt)
	}
	if sum.LastAt == nil || !sum.LastAt.Equal(base.Add(2*time.Minute)) {
		t.Fatalf("last timestamp broken: %v", sum.LastAt)
	}
}

func TestEnsureRadioRuntimeClearsInterference(t *testing.T) {
	noise := "static"
	data := &SnapshotData{RadioRuntime: &RadioRuntime{Interference: &noise, LogCap: 5}}
	rt := data.ensureRadioRuntime()
	if rt.Interference != nil {
		t.Fatalf("interference must not survive a load")
	}
	if rt.LogCap != radioLogCapMin {
		t.Fatalf("undersized caps clamp up to %d, got %d", radioLogCapMin, rt.LogCap)
	}
	if rt.HoldSec != radioHoldDefaultSec {
		t.Fatalf("hold timeout default broken: %v", rt.HoldSec)
	}
}
