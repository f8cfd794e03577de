package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsAbsoluteURL(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"https://cdn.example.com/a.mp3", true},
		{"http://localhost:8080/x", true},
		{"file:///var/media/a.mp3", true},
		{"s3+https://bucket/key", true},
		{"audio/a.mp3", false},
		{"/audio/a.mp3", false},
		{"", false},
		{"://nohost", false},
		{"we ird://x", false},
	}
	for _, tt := range tests {
		if got := IsAbsoluteURL(tt.in); got != tt.want {
			t.Errorf("IsAbsoluteURL(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRepeatModeCycle(t *testing.T) {
	mode := RepeatNone
	seen := []RepeatMode{mode}
	for i := 0; i < 3; i++ {
		mode = mode.Next()
		seen = append(seen, mode)
	}
	want := []RepeatMode{RepeatNone, RepeatAll, RepeatOne, RepeatNone}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("cycle step %d = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestPlayableItemRef(t *testing.T) {
	byID := PlayableItem{ID: "b1c2"}
	if ref := byID.Ref(); ref.Kind != RefID || ref.Value != "b1c2" {
		t.Fatalf("expected id ref, got %+v", ref)
	}

	bySlug := PlayableItem{Slug: "night-drive"}
	if ref := bySlug.Ref(); ref.Kind != RefSlug || ref.Value != "night-drive" {
		t.Fatalf("expected slug ref, got %+v", ref)
	}

	relative := PlayableItem{ID: "b1c2", AudioURL: "audio/b1c2.mp3", Title: "Song"}
	ref := relative.Ref()
	if ref.Kind != RefInline || ref.Inline == nil {
		t.Fatalf("expected inline ref, got %+v", ref)
	}
	if ref.Inline.AudioPath != "audio/b1c2.mp3" || ref.Inline.Title != "Song" {
		t.Fatalf("inline descriptor lost metadata: %+v", ref.Inline)
	}
	if relative.Resolved() {
		t.Fatal("relative audio url must not count as resolved")
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{NewOpError("resolve", "id:x", ErrNotFound), "not_found"},
		{fmt.Errorf("wrapped: %w", ErrAmbiguousReference), "ambiguous_reference"},
		{ErrAccessDenied, "access_denied"},
		{ErrPlayback, "playback_error"},
		{ErrNetwork, "network_error"},
		{errors.New("boom"), "internal_error"},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestOpErrorMessage(t *testing.T) {
	err := NewOpError("resolve", "slug:abc", ErrNotFound)
	if got := err.Error(); got != "resolve slug:abc: track not found" {
		t.Fatalf("unexpected message %q", got)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("OpError must unwrap to its cause")
	}
}
