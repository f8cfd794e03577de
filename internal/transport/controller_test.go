package transport

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/grimnir_player/internal/events"
	"github.com/friendsincode/grimnir_player/internal/models"
)

// fakeElement records calls and can block Load/Play until released.
type fakeElement struct {
	mu        sync.Mutex
	events    ElementEvents
	loads     []string
	plays     atomic.Int32
	seeks     []float64
	volume    float64
	muted     bool
	duration  float64
	loadErr   map[string]error
	playErr   error
	loadGate  map[string]chan struct{}
	playGate  chan struct{}
	playEnter chan struct{}
}

func newFakeElement() *fakeElement {
	return &fakeElement{
		duration: 180,
		loadErr:  map[string]error{},
		loadGate: map[string]chan struct{}{},
	}
}

func (f *fakeElement) Attach(ev ElementEvents) { f.events = ev }

func (f *fakeElement) Load(ctx context.Context, src Source) (float64, error) {
	f.mu.Lock()
	f.loads = append(f.loads, src.URL)
	gate := f.loadGate[src.URL]
	err := f.loadErr[src.URL]
	d := f.duration
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return 0, err
	}
	return d, nil
}

func (f *fakeElement) Play(context.Context) error {
	f.plays.Add(1)
	if f.playEnter != nil {
		f.playEnter <- struct{}{}
	}
	if f.playGate != nil {
		<-f.playGate
	}
	return f.playErr
}

func (f *fakeElement) Pause() error { return nil }

func (f *fakeElement) Seek(p float64) error {
	f.mu.Lock()
	f.seeks = append(f.seeks, p)
	f.mu.Unlock()
	return nil
}

func (f *fakeElement) SetVolume(v float64, muted bool) error {
	f.mu.Lock()
	f.volume, f.muted = v, muted
	f.mu.Unlock()
	return nil
}

func (f *fakeElement) Position() float64 { return 42 }

func (f *fakeElement) Seeks() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.seeks...)
}

func newController(el *fakeElement) *Controller {
	return NewController(el, events.NewBus(), 0.8, zerolog.Nop())
}

func TestLoadPlayPauseStateMachine(t *testing.T) {
	el := newFakeElement()
	c := newController(el)
	ctx := context.Background()

	if s := c.Snapshot(); s.State != StateIdle || s.Volume != 0.8 {
		t.Fatalf("initial session %+v", s)
	}

	if err := c.Load(ctx, Source{URL: "https://cdn/a.mp3"}); err != nil {
		t.Fatal(err)
	}
	s := c.Snapshot()
	if s.State != StateReady || s.LoadedURL != "https://cdn/a.mp3" || s.Duration != 180 {
		t.Fatalf("after load %+v", s)
	}

	if err := c.Play(ctx); err != nil {
		t.Fatal(err)
	}
	if s := c.Snapshot(); s.State != StatePlaying || !s.Playing {
		t.Fatalf("after play %+v", s)
	}

	if err := c.Pause(); err != nil {
		t.Fatal(err)
	}
	if s := c.Snapshot(); s.State != StatePaused || s.Playing || s.CurrentTime != 42 {
		t.Fatalf("after pause %+v", s)
	}

	if err := c.Play(ctx); err != nil {
		t.Fatal(err)
	}
	if s := c.Snapshot(); s.State != StatePlaying {
		t.Fatalf("after resume %+v", s)
	}
}

func TestPlayWithNothingLoaded(t *testing.T) {
	c := newController(newFakeElement())
	err := c.Play(context.Background())
	if !errors.Is(err, models.ErrPlayback) {
		t.Fatalf("expected ErrPlayback, got %v", err)
	}
}

// A second play while the first is still in flight must not reach the element.
func TestConcurrentPlayIsGuarded(t *testing.T) {
	el := newFakeElement()
	c := newController(el)
	ctx := context.Background()
	if err := c.Load(ctx, Source{URL: "https://cdn/a.mp3"}); err != nil {
		t.Fatal(err)
	}

	el.playGate = make(chan struct{})
	el.playEnter = make(chan struct{}, 1)

	firstDone := make(chan error, 1)
	go func() { firstDone <- c.Play(ctx) }()
	<-el.playEnter

	for i := 0; i < 3; i++ {
		if err := c.Play(ctx); err != nil {
			t.Fatalf("guarded play returned %v", err)
		}
	}
	if got := el.plays.Load(); got != 1 {
		t.Fatalf("element play called %d times while first in flight", got)
	}

	close(el.playGate)
	if err := <-firstDone; err != nil {
		t.Fatal(err)
	}

	// The guard releases once the first play settles.
	el.playGate = nil
	el.playEnter = nil
	if err := c.Pause(); err != nil {
		t.Fatal(err)
	}
	if err := c.Play(ctx); err != nil {
		t.Fatal(err)
	}
	if got := el.plays.Load(); got != 2 {
		t.Fatalf("expected play to be accepted after release, got %d calls", got)
	}
}

func TestLoadFailureRevertsToIdleAndRecovers(t *testing.T) {
	el := newFakeElement()
	c := newController(el)
	ctx := context.Background()

	if err := c.Load(ctx, Source{URL: "https://cdn/good.mp3"}); err != nil {
		t.Fatal(err)
	}
	el.loadErr["https://cdn/broken.mp3"] = errors.New("decode error")

	err := c.Load(ctx, Source{URL: "https://cdn/broken.mp3"})
	if !errors.Is(err, models.ErrPlayback) {
		t.Fatalf("expected ErrPlayback, got %v", err)
	}
	s := c.Snapshot()
	if s.State != StateIdle || s.LoadedURL != "https://cdn/good.mp3" || s.Playing {
		t.Fatalf("after failed load %+v", s)
	}

	if err := c.Load(ctx, Source{URL: "https://cdn/next.mp3"}); err != nil {
		t.Fatalf("load from Idle must recover: %v", err)
	}
	if s := c.Snapshot(); s.State != StateReady || s.LoadedURL != "https://cdn/next.mp3" {
		t.Fatalf("after recovery %+v", s)
	}
}

func TestNewerLoadSupersedesOlder(t *testing.T) {
	el := newFakeElement()
	c := newController(el)
	ctx := context.Background()

	gate := make(chan struct{})
	el.loadGate["https://cdn/slow.mp3"] = gate

	slowDone := make(chan error, 1)
	go func() { slowDone <- c.Load(ctx, Source{URL: "https://cdn/slow.mp3"}) }()

	waitFor(t, func() bool {
		el.mu.Lock()
		defer el.mu.Unlock()
		return len(el.loads) == 1
	})

	if err := c.Load(ctx, Source{URL: "https://cdn/fast.mp3"}); err != nil {
		t.Fatal(err)
	}
	close(gate)

	if err := <-slowDone; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	if s := c.Snapshot(); s.LoadedURL != "https://cdn/fast.mp3" || s.State != StateReady {
		t.Fatalf("stale load clobbered session: %+v", s)
	}
}

func TestSeekSemantics(t *testing.T) {
	el := newFakeElement()
	c := newController(el)
	ctx := context.Background()

	// Idle: ignored.
	if err := c.Seek(10); err != nil {
		t.Fatal(err)
	}
	if len(el.Seeks()) != 0 {
		t.Fatal("seek in Idle must not reach the element")
	}

	// Loading: deferred until ready.
	gate := make(chan struct{})
	el.loadGate["https://cdn/a.mp3"] = gate
	done := make(chan error, 1)
	go func() { done <- c.Load(ctx, Source{URL: "https://cdn/a.mp3"}) }()
	waitFor(t, func() bool { return c.Snapshot().State == StateLoading })

	if err := c.Seek(500); err != nil {
		t.Fatalf("seek while loading: %v", err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if seeks := el.Seeks(); len(seeks) != 1 || seeks[0] != 180 {
		t.Fatalf("deferred seek should clamp to duration, got %v", seeks)
	}

	// Ready: clamped below.
	if err := c.Seek(-5); err != nil {
		t.Fatal(err)
	}
	if s := c.Snapshot(); s.CurrentTime != 0 {
		t.Fatalf("current time = %v", s.CurrentTime)
	}
}

func TestVolumeAndMute(t *testing.T) {
	el := newFakeElement()
	c := newController(el)

	tests := []struct {
		in, want float64
	}{
		{0.5, 0.5},
		{1.7, 1},
		{-0.2, 0},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		got, err := c.SetVolume(tt.in)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want || c.Snapshot().Volume != tt.want {
			t.Errorf("SetVolume(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if _, err := c.SetVolume(0.6); err != nil {
		t.Fatal(err)
	}
	muted, err := c.ToggleMute()
	if err != nil || !muted {
		t.Fatalf("ToggleMute = %v, %v", muted, err)
	}
	if s := c.Snapshot(); s.Volume != 0.6 || !s.Muted || !el.muted {
		t.Fatalf("mute must preserve volume: %+v", s)
	}
	if muted, _ := c.ToggleMute(); muted {
		t.Fatal("second toggle should unmute")
	}
}

func TestUnknownDurationIsZero(t *testing.T) {
	el := newFakeElement()
	el.duration = math.NaN()
	c := newController(el)

	if err := c.Load(context.Background(), Source{URL: "https://cdn/live.mp3"}); err != nil {
		t.Fatal(err)
	}
	if d := c.Snapshot().Duration; d != 0 {
		t.Fatalf("NaN duration must be stored as unknown, got %v", d)
	}

	c.TimeUpdate(9999)
	if ct := c.Snapshot().CurrentTime; ct != 9999 {
		t.Fatalf("unknown duration only bounds below, got %v", ct)
	}

	c.DurationChange(120)
	if s := c.Snapshot(); s.Duration != 120 || s.CurrentTime != 120 {
		t.Fatalf("duration change must clamp current time: %+v", s)
	}
}

func TestEndedSignalsHandler(t *testing.T) {
	el := newFakeElement()
	bus := events.NewBus()
	ended := bus.Subscribe(events.EventTrackEnded)
	c := NewController(el, bus, 1, zerolog.Nop())
	ctx := context.Background()

	var calls atomic.Int32
	c.SetEndedHandler(func() { calls.Add(1) })

	// Stale end before playing is ignored.
	c.Ended()
	if calls.Load() != 0 {
		t.Fatal("ended outside Playing must be ignored")
	}

	if err := c.Load(ctx, Source{URL: "https://cdn/a.mp3"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Play(ctx); err != nil {
		t.Fatal(err)
	}
	c.Ended()

	if calls.Load() != 1 {
		t.Fatalf("handler calls = %d", calls.Load())
	}
	s := c.Snapshot()
	if s.State != StateEnded || s.Playing || s.CurrentTime != 180 {
		t.Fatalf("after end %+v", s)
	}
	select {
	case p := <-ended:
		if p["url"] != "https://cdn/a.mp3" {
			t.Fatalf("payload %v", p)
		}
	default:
		t.Fatal("expected track.ended event")
	}

	if err := c.Restart(ctx); err != nil {
		t.Fatal(err)
	}
	if s := c.Snapshot(); s.State != StatePlaying || s.CurrentTime != 0 {
		t.Fatalf("after restart %+v", s)
	}
	if len(el.loads) != 1 {
		t.Fatalf("restart must not reload, loads = %v", el.loads)
	}
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0:00"},
		{math.NaN(), "0:00"},
		{math.Inf(1), "0:00"},
		{-3, "0:00"},
		{5.9, "0:05"},
		{65, "1:05"},
		{3599, "59:59"},
		{3725, "1:02:05"},
	}
	for _, tt := range tests {
		if got := FormatTime(tt.in); got != tt.want {
			t.Errorf("FormatTime(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
