/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalogsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/friendsincode/grimnir_player/internal/models"
)

// ErrMalformedEvent marks a change notification that cannot be applied.
var ErrMalformedEvent = errors.New("malformed catalog event")

// ChangeType is the kind of row change.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// ChangeEvent is one catalog row change. Old is nil for inserts and New is nil
// for deletes.
type ChangeEvent struct {
	Type ChangeType    `json:"eventType"`
	Old  *models.Track `json:"old,omitempty"`
	New  *models.Track `json:"new,omitempty"`
}

// TrackID returns the id of the changed record.
func (e ChangeEvent) TrackID() string {
	if e.New != nil && e.New.ID != "" {
		return e.New.ID
	}
	if e.Old != nil {
		return e.Old.ID
	}
	return ""
}

type envelope struct {
	EventType string          `json:"eventType"`
	Type      string          `json:"type"`
	Old       json.RawMessage `json:"old"`
	New       json.RawMessage `json:"new"`
}

// Decode parses a {"eventType","old","new"} notification. The event type is
// case-insensitive and "type" is accepted as an alias for "eventType".
func Decode(data []byte) (ChangeEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ChangeEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	raw := env.EventType
	if raw == "" {
		raw = env.Type
	}
	ev := ChangeEvent{Type: ChangeType(strings.ToLower(strings.TrimSpace(raw)))}

	var err error
	if ev.Old, err = decodeRecord(env.Old); err != nil {
		return ChangeEvent{}, fmt.Errorf("%w: old: %v", ErrMalformedEvent, err)
	}
	if ev.New, err = decodeRecord(env.New); err != nil {
		return ChangeEvent{}, fmt.Errorf("%w: new: %v", ErrMalformedEvent, err)
	}

	switch ev.Type {
	case ChangeInsert:
		if ev.New == nil {
			return ChangeEvent{}, fmt.Errorf("%w: insert without new record", ErrMalformedEvent)
		}
		ev.Old = nil
	case ChangeUpdate:
		if ev.New == nil {
			return ChangeEvent{}, fmt.Errorf("%w: update without new record", ErrMalformedEvent)
		}
		if ev.Old != nil && ev.Old.ID != ev.New.ID {
			return ChangeEvent{}, fmt.Errorf("%w: update changes id %s to %s", ErrMalformedEvent, ev.Old.ID, ev.New.ID)
		}
	case ChangeDelete:
		if ev.Old == nil {
			return ChangeEvent{}, fmt.Errorf("%w: delete without old record", ErrMalformedEvent)
		}
		ev.New = nil
	default:
		return ChangeEvent{}, fmt.Errorf("%w: unknown event type %q", ErrMalformedEvent, raw)
	}

	return ev, nil
}

func decodeRecord(raw json.RawMessage) (*models.Track, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var t models.Track
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	if strings.TrimSpace(t.ID) == "" {
		return nil, errors.New("record has no id")
	}
	return &t, nil
}

// coalesce folds next into prev for the same record. The result spans from
// prev's before-image to next's after-image, so insert followed by update is
// an insert and update followed by delete is a delete.
func coalesce(prev, next ChangeEvent) ChangeEvent {
	out := ChangeEvent{Old: prev.Old, New: next.New}
	if prev.Type == ChangeInsert {
		out.Old = nil
	}

	switch {
	case out.New == nil:
		out.Type = ChangeDelete
		if out.Old == nil {
			out.Old = next.Old
		}
	case out.Old == nil:
		out.Type = ChangeInsert
	default:
		out.Type = ChangeUpdate
	}
	return out
}
