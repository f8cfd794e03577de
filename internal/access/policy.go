/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package access

import (
	"context"

	"github.com/friendsincode/grimnir_player/internal/models"
)

// Checker decides whether a viewer may stream a track.
type Checker interface {
	CanAccess(track models.Track, viewer models.Viewer) bool
}

// Policy is the default visibility-based access policy.
//
//	unapproved            -> nobody
//	public                -> everyone
//	subscribers           -> subscribers, the owner, admins
//	private               -> the owner, admins
type Policy struct{}

// CanAccess implements Checker.
func (Policy) CanAccess(track models.Track, viewer models.Viewer) bool {
	if !track.Approved {
		return false
	}

	owner := !viewer.Anonymous() && track.OwnerID != "" && track.OwnerID == viewer.ID

	switch track.Visibility {
	case models.VisibilityPublic, "":
		return true
	case models.VisibilitySubscribers:
		return viewer.Subscriber || owner || viewer.Admin
	case models.VisibilityPrivate:
		return owner || viewer.Admin
	default:
		return false
	}
}

// Filter returns the tracks viewer may access, preserving order.
func Filter(c Checker, tracks []models.Track, viewer models.Viewer) []models.Track {
	out := make([]models.Track, 0, len(tracks))
	for _, t := range tracks {
		if c.CanAccess(t, viewer) {
			out = append(out, t)
		}
	}
	return out
}

// CanPlay applies c to an already resolved item. Catalog items carry the
// visibility and owner of their track; inline and external items are public.
func CanPlay(c Checker, item models.PlayableItem, viewer models.Viewer) bool {
	return c.CanAccess(models.Track{
		ID:         item.ID,
		Approved:   true,
		Visibility: item.Visibility,
		OwnerID:    item.OwnerID,
	}, viewer)
}

// RelevantChange reports whether an update touched a field the policy reads.
func RelevantChange(before, after models.Track) bool {
	return before.Approved != after.Approved ||
		before.Visibility != after.Visibility ||
		before.OwnerID != after.OwnerID
}

type contextKey string

const viewerContextKey contextKey = "playerViewer"

// WithViewer attaches the acting viewer to ctx.
func WithViewer(ctx context.Context, viewer models.Viewer) context.Context {
	return context.WithValue(ctx, viewerContextKey, viewer)
}

// ViewerFromContext returns the acting viewer, or the anonymous viewer.
func ViewerFromContext(ctx context.Context) models.Viewer {
	v, _ := ctx.Value(viewerContextKey).(models.Viewer)
	return v
}
