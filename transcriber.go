package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"os/exec"
	"strings"
	"time"
)

// commandTranscriber shells out to an external speech-to-text tool. The tool
// receives raw audio bytes on stdin and prints the transcript to stdout.
type commandTranscriber struct {
	command string
	timeout time.Duration
}

func newCommandTranscriber(command string) *commandTranscriber {
	return &commandTranscriber{command: command, timeout: 20 * time.Second}
}

func (t *commandTranscriber) Transcribe(audioB64 string) (string, error) {
	audio, err := base64.StdEncoding.DecodeString(audioB64)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", t.command)
	cmd.Stdin = bytes.NewReader(audio)
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
