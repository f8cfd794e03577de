/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"errors"
	"fmt"
)

// Playback error taxonomy. Match with errors.Is.
var (
	ErrNotFound           = errors.New("track not found")
	ErrAmbiguousReference = errors.New("ambiguous or malformed track reference")
	ErrPlayback           = errors.New("playback failed")
	ErrAccessDenied       = errors.New("access denied")
	ErrNetwork            = errors.New("network error")
)

// OpError wraps a taxonomy error with the failing operation and reference.
type OpError struct {
	Op  string
	Ref string
	Err error
}

func (e *OpError) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Ref, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// NewOpError builds an OpError.
func NewOpError(op, ref string, err error) *OpError {
	return &OpError{Op: op, Ref: ref, Err: err}
}

// ErrorCode maps an error onto a stable machine-readable code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAmbiguousReference):
		return "ambiguous_reference"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrPlayback):
		return "playback_error"
	case errors.Is(err, ErrNetwork):
		return "network_error"
	default:
		return "internal_error"
	}
}
