package catalogsync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_player/internal/access"
	"github.com/friendsincode/grimnir_player/internal/events"
	"github.com/friendsincode/grimnir_player/internal/models"
	"github.com/friendsincode/grimnir_player/internal/queue"
	"github.com/friendsincode/grimnir_player/internal/transport"
)

func track(id string, mutate ...func(*models.Track)) *models.Track {
	t := &models.Track{
		ID:         id,
		Title:      "Title " + id,
		AudioPath:  id + ".mp3",
		Approved:   true,
		Visibility: models.VisibilityPublic,
	}
	for _, m := range mutate {
		m(t)
	}
	return t
}

func ids(tracks []models.Track) []string {
	out := make([]string, len(tracks))
	for i, t := range tracks {
		out[i] = t.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    ChangeType
		wantID  string
		wantErr bool
	}{
		{"insert", `{"eventType":"insert","new":{"id":"a","approved":true}}`, ChangeInsert, "a", false},
		{"update", `{"eventType":"update","old":{"id":"a"},"new":{"id":"a","title":"x"}}`, ChangeUpdate, "a", false},
		{"delete", `{"eventType":"delete","old":{"id":"a"}}`, ChangeDelete, "a", false},
		{"uppercase op", `{"eventType":"DELETE","old":{"id":"a"}}`, ChangeDelete, "a", false},
		{"type alias", `{"type":"insert","new":{"id":"b"}}`, ChangeInsert, "b", false},
		{"not json", `not json`, "", "", true},
		{"unknown type", `{"eventType":"truncate"}`, "", "", true},
		{"insert without new", `{"eventType":"insert","old":{"id":"a"}}`, "", "", true},
		{"delete without old", `{"eventType":"delete","new":{"id":"a"}}`, "", "", true},
		{"record without id", `{"eventType":"insert","new":{"title":"x"}}`, "", "", true},
		{"id changed", `{"eventType":"update","old":{"id":"a"},"new":{"id":"b"}}`, "", "", true},
		{"wrong record shape", `{"eventType":"insert","new":[1,2]}`, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedEvent) {
					t.Fatalf("err = %v, want ErrMalformedEvent", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if ev.Type != tt.want || ev.TrackID() != tt.wantID {
				t.Fatalf("got %s/%s, want %s/%s", ev.Type, ev.TrackID(), tt.want, tt.wantID)
			}
		})
	}
}

func TestCoalesce(t *testing.T) {
	a1, a2, a3 := track("a"), track("a", func(t *models.Track) { t.Title = "v2" }), track("a", func(t *models.Track) { t.Title = "v3" })

	tests := []struct {
		name    string
		events  []ChangeEvent
		want    ChangeType
		wantOld *models.Track
		wantNew *models.Track
	}{
		{
			"insert then update",
			[]ChangeEvent{{Type: ChangeInsert, New: a1}, {Type: ChangeUpdate, Old: a1, New: a2}},
			ChangeInsert, nil, a2,
		},
		{
			"update then update",
			[]ChangeEvent{{Type: ChangeUpdate, Old: a1, New: a2}, {Type: ChangeUpdate, Old: a2, New: a3}},
			ChangeUpdate, a1, a3,
		},
		{
			"update then delete",
			[]ChangeEvent{{Type: ChangeUpdate, Old: a1, New: a2}, {Type: ChangeDelete, Old: a2}},
			ChangeDelete, a1, nil,
		},
		{
			"insert then delete",
			[]ChangeEvent{{Type: ChangeInsert, New: a1}, {Type: ChangeDelete, Old: a1}},
			ChangeDelete, a1, nil,
		},
		{
			"delete then insert",
			[]ChangeEvent{{Type: ChangeDelete, Old: a1}, {Type: ChangeInsert, New: a2}},
			ChangeUpdate, a1, a2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.events[0]
			for _, ev := range tt.events[1:] {
				got = coalesce(got, ev)
			}
			if got.Type != tt.want || got.Old != tt.wantOld || got.New != tt.wantNew {
				t.Fatalf("got %s old=%v new=%v", got.Type, got.Old, got.New)
			}
		})
	}
}

func TestTrackListApply(t *testing.T) {
	owner := models.Viewer{ID: "owner-1"}
	private := func(t *models.Track) { t.Visibility = models.VisibilityPrivate }
	unapproved := func(t *models.Track) { t.Approved = false }
	retitled := func(t *models.Track) { t.Title = "Renamed" }

	tests := []struct {
		name      string
		viewer    models.Viewer
		initial   []*models.Track
		ev        ChangeEvent
		wantIDs   []string
		wantTitle string
	}{
		{
			name:    "insert passing",
			initial: []*models.Track{track("a")},
			ev:      ChangeEvent{Type: ChangeInsert, New: track("b")},
			wantIDs: []string{"a", "b"},
		},
		{
			name:    "insert private ignored",
			initial: []*models.Track{track("a")},
			ev:      ChangeEvent{Type: ChangeInsert, New: track("b", private)},
			wantIDs: []string{"a"},
		},
		{
			name:    "update loses access",
			initial: []*models.Track{track("a"), track("b")},
			ev:      ChangeEvent{Type: ChangeUpdate, Old: track("a"), New: track("a", unapproved)},
			wantIDs: []string{"b"},
		},
		{
			name:    "update gains access",
			initial: []*models.Track{track("a")},
			ev:      ChangeEvent{Type: ChangeUpdate, Old: track("b", unapproved), New: track("b")},
			wantIDs: []string{"a", "b"},
		},
		{
			name:      "update patches in place",
			initial:   []*models.Track{track("a"), track("b")},
			ev:        ChangeEvent{Type: ChangeUpdate, Old: track("a"), New: track("a", retitled)},
			wantIDs:   []string{"a", "b"},
			wantTitle: "Renamed",
		},
		{
			name:    "update irrelevant to hidden record",
			initial: []*models.Track{track("a")},
			ev:      ChangeEvent{Type: ChangeUpdate, Old: track("b", private), New: track("b", private, retitled)},
			wantIDs: []string{"a"},
		},
		{
			name:    "owner keeps private track",
			viewer:  owner,
			initial: []*models.Track{track("a")},
			ev: ChangeEvent{Type: ChangeUpdate, Old: track("a", func(t *models.Track) { t.OwnerID = "owner-1" }),
				New: track("a", private, func(t *models.Track) { t.OwnerID = "owner-1" })},
			wantIDs: []string{"a"},
		},
		{
			name:    "delete",
			initial: []*models.Track{track("a"), track("b"), track("c")},
			ev:      ChangeEvent{Type: ChangeDelete, Old: track("b")},
			wantIDs: []string{"a", "c"},
		},
		{
			name:    "delete unknown",
			initial: []*models.Track{track("a")},
			ev:      ChangeEvent{Type: ChangeDelete, Old: track("z")},
			wantIDs: []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initial := make([]models.Track, len(tt.initial))
			for i, tr := range tt.initial {
				initial[i] = *tr
			}
			list := NewTrackList(tt.viewer, access.Policy{}, initial)
			list.Apply(tt.ev)

			got := list.Tracks()
			if !equalIDs(ids(got), tt.wantIDs) {
				t.Fatalf("ids = %v, want %v", ids(got), tt.wantIDs)
			}
			if tt.wantTitle != "" && got[0].Title != tt.wantTitle {
				t.Fatalf("title = %q, want %q", got[0].Title, tt.wantTitle)
			}
		})
	}
}

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, id string) {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
}

func TestAdapterDebouncesAndCoalesces(t *testing.T) {
	bus := events.NewBus()
	done := bus.Subscribe(events.EventCatalogReconciled)
	inv := &recordingInvalidator{}

	a := NewAdapter(30*time.Millisecond, inv, bus, zerolog.Nop())
	list := NewTrackList(models.Viewer{}, access.Policy{}, []models.Track{*track("a"), *track("b")})
	a.Register(list)

	a.Ingest(ChangeEvent{Type: ChangeInsert, New: track("c")})
	a.Ingest(ChangeEvent{Type: ChangeUpdate, Old: track("c"), New: track("c", func(t *models.Track) { t.Title = "final" })})
	a.Ingest(ChangeEvent{Type: ChangeDelete, Old: track("a")})

	if got := a.Pending(); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}
	if list.Len() != 2 || list.Contains("c") {
		t.Fatal("changes applied before the window elapsed")
	}

	select {
	case ev := <-done:
		if ev["records"] != 2 {
			t.Fatalf("payload = %v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("debounce window never flushed")
	}

	got := list.Tracks()
	if !equalIDs(ids(got), []string{"b", "c"}) {
		t.Fatalf("ids = %v", ids(got))
	}
	if got[1].Title != "final" {
		t.Fatalf("title = %q, want final", got[1].Title)
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	if !equalIDs(inv.ids, []string{"a"}) {
		t.Fatalf("invalidated %v, want [a]", inv.ids)
	}
}

func TestAdapterDropsMalformed(t *testing.T) {
	a := NewAdapter(time.Hour, nil, nil, zerolog.Nop())
	list := NewTrackList(models.Viewer{}, access.Policy{}, nil)
	a.Register(list)

	a.Ingest(ChangeEvent{Type: ChangeInsert})
	_, err := Decode([]byte(`{"eventType":"insert"}`))
	a.Reject("test", err)

	if got := a.Flush(context.Background()); got != 0 {
		t.Fatalf("flushed %d records, want 0", got)
	}
	if list.Len() != 0 {
		t.Fatalf("list len = %d", list.Len())
	}
}

type fakeSource struct {
	payloads []string
}

func (f fakeSource) Name() string { return "fake" }

func (f fakeSource) Run(ctx context.Context, sink Sink) error {
	for _, p := range f.payloads {
		ev, err := Decode([]byte(p))
		if err != nil {
			sink.Reject(f.Name(), err)
			continue
		}
		sink.Ingest(ev)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestAdapterRunFlushesOnShutdown(t *testing.T) {
	a := NewAdapter(time.Hour, nil, nil, zerolog.Nop())
	list := NewTrackList(models.Viewer{}, access.Policy{}, nil)
	a.Register(list)

	src := fakeSource{payloads: []string{
		`{"eventType":"insert","new":{"id":"a","approved":true,"visibility":"public"}}`,
		`garbage`,
		`{"eventType":"insert","new":{"id":"b","approved":true,"visibility":"public"}}`,
	}}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.Run(ctx, src) }()

	deadline := time.Now().Add(2 * time.Second)
	for a.Pending() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("events never ingested")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !equalIDs(ids(list.Tracks()), []string{"a", "b"}) {
		t.Fatalf("ids = %v", ids(list.Tracks()))
	}
}

type fakeLoader struct {
	calls  int
	tracks []models.Track
}

func (f *fakeLoader) ListApproved(context.Context, int) ([]models.Track, error) {
	f.calls++
	return f.tracks, nil
}

func TestListCache(t *testing.T) {
	loader := &fakeLoader{tracks: []models.Track{
		*track("a"),
		*track("s", func(t *models.Track) { t.Visibility = models.VisibilitySubscribers }),
	}}
	cache := NewListCache(loader, access.Policy{}, 100, 2)
	ctx := context.Background()

	anon, err := cache.Get(ctx, models.Viewer{})
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(ids(anon.Tracks()), []string{"a"}) {
		t.Fatalf("anonymous ids = %v", ids(anon.Tracks()))
	}
	sub, _ := cache.Get(ctx, models.Viewer{ID: "v", Subscriber: true})
	if !equalIDs(ids(sub.Tracks()), []string{"a", "s"}) {
		t.Fatalf("subscriber ids = %v", ids(sub.Tracks()))
	}
	if again, _ := cache.Get(ctx, models.Viewer{}); again != anon || loader.calls != 2 {
		t.Fatalf("expected cached list, loader calls = %d", loader.calls)
	}

	cache.Apply(ChangeEvent{Type: ChangeDelete, Old: track("a")})
	if anon.Contains("a") || sub.Contains("a") {
		t.Fatal("delete not applied to every cached list")
	}

	// Third identity evicts the oldest.
	if _, err := cache.Get(ctx, models.Viewer{ID: "w"}); err != nil {
		t.Fatal(err)
	}
	if _, _ = cache.Get(ctx, models.Viewer{}); loader.calls != 4 {
		t.Fatalf("loader calls = %d, want 4 after eviction", loader.calls)
	}
}

type passthroughResolver struct{}

func (passthroughResolver) Resolve(context.Context, models.TrackRef) (models.PlayableItem, error) {
	return models.PlayableItem{}, models.ErrNotFound
}

func (passthroughResolver) Ensure(_ context.Context, item models.PlayableItem) (models.PlayableItem, error) {
	return item, nil
}

func TestDeletingPlayingTrackLeavesSessionAlone(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a.mp3")
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	url := "file://" + path

	bus := events.NewBus()
	ctrl := transport.NewController(transport.NewClockElement(time.Hour), bus, 0.8, zerolog.Nop())
	defer func() { _ = ctrl.Pause() }()
	q := queue.NewManager(passthroughResolver{}, ctrl, bus, queue.Config{Seed: 1}, zerolog.Nop())

	dur := 180.0
	playing := models.PlayableItem{ID: "a", Kind: models.KindTrack, AudioURL: url, DurationSeconds: &dur}
	next := models.PlayableItem{ID: "b", Kind: models.KindTrack, AudioURL: url, DurationSeconds: &dur}
	if err := q.SetQueue(ctx, []models.PlayableItem{playing, next}, 0); err != nil {
		t.Fatalf("SetQueue: %v", err)
	}
	before := ctrl.Snapshot()
	if !before.Playing || before.LoadedURL != url {
		t.Fatalf("session not playing: %+v", before)
	}

	adapter := NewAdapter(time.Hour, &recordingInvalidator{}, bus, zerolog.Nop())
	list := NewTrackList(models.Viewer{}, access.Policy{}, []models.Track{*track("a"), *track("b")})
	adapter.Register(list)

	ev, err := Decode([]byte(`{"eventType":"delete","old":{"id":"a","approved":true}}`))
	if err != nil {
		t.Fatal(err)
	}
	adapter.Ingest(ev)
	adapter.Flush(ctx)

	after := ctrl.Snapshot()
	if after.Playing != before.Playing || after.LoadedURL != before.LoadedURL {
		t.Fatalf("session changed: before %+v after %+v", before, after)
	}
	snap := q.Snapshot()
	if cur, _ := snap.Current(); cur.ID != "a" || snap.Index != 0 {
		t.Fatalf("queue current changed: %+v", snap)
	}
	if list.Contains("a") {
		t.Fatal("deleted track still listed for future enqueues")
	}
}
