package main

import (
	"errors"
	"fmt"
	"net/http"
)

// CommandError is the typed failure surface of the command pipeline. Status
// carries the HTTP-equivalent code clients already understand from the REST
// surface; Detail is safe to show to the operator.
type CommandError struct {
	Status int
	Detail string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command failed (%d): %s", e.Status, e.Detail)
}

// errValidation rejects malformed or out-of-range input, naming the field.
func errValidation(format string, args ...any) error {
	return &CommandError{Status: http.StatusUnprocessableEntity, Detail: fmt.Sprintf(format, args...)}
}

// errBadRequest rejects structurally broken payloads.
func errBadRequest(format string, args ...any) error {
	return &CommandError{Status: http.StatusBadRequest, Detail: fmt.Sprintf(format, args...)}
}

// errForbidden rejects a command the actor's roles do not allow.
func errForbidden(format string, args ...any) error {
	return &CommandError{Status: http.StatusForbidden, Detail: fmt.Sprintf(format, args...)}
}

// errUnauthorized signals a dead or revoked auth session.
func errUnauthorized(detail string) error {
	return &CommandError{Status: http.StatusUnauthorized, Detail: detail}
}

// errNotFound reports a missing entity by name.
func errNotFound(format string, args ...any) error {
	return &CommandError{Status: http.StatusNotFound, Detail: fmt.Sprintf(format, args...)}
}

// errConflict reports a workflow-state conflict with a human-readable reason.
func errConflict(format string, args ...any) error {
	return &CommandError{Status: http.StatusConflict, Detail: fmt.Sprintf(format, args...)}
}

// errGone reports a permanently retired capability.
func errGone(detail string) error {
	return &CommandError{Status: http.StatusGone, Detail: detail}
}

// errRateLimited reports a rate-limit rejection with a retry hint.
func errRateLimited(retryAfterSec int) error {
	return &CommandError{
		Status: http.StatusTooManyRequests,
		Detail: fmt.Sprintf("Too many commands, retry after %d s", retryAfterSec),
	}
}

// asCommandError extracts a CommandError from an error chain.
func asCommandError(err error) (*CommandError, bool) {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr, true
	}
	return nil, false
}
