// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package relay

import (
	"context"
	"sync"
	"time"

	"github.com/ManuGH/streamrelay/internal/encoder"
	"github.com/ManuGH/streamrelay/internal/provider"
	"github.com/ManuGH/streamrelay/internal/resource"
	"github.com/ManuGH/streamrelay/internal/stream"
)

type mockClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)}
}

func (m *mockClock) Now() time.Time { m.mu.Lock(); defer m.mu.Unlock(); return m.now }

// After advances the clock by d and fires immediately.
func (m *mockClock) After(d time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	m.sleeps = append(m.sleeps, d)
	ch := make(chan time.Time, 1)
	ch <- m.now
	return ch
}

func (m *mockClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func (m *mockClock) Sleeps() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.sleeps...)
}

type fakeProvider struct {
	mu       sync.Mutex
	live     provider.Liveness
	variants []stream.Variant
	err      error
}

func (f *fakeProvider) set(live provider.Liveness, variants ...stream.Variant) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live = live
	f.variants = variants
	f.err = nil
}

func (f *fakeProvider) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeProvider) CheckLive(_ context.Context, ch stream.ChannelID) (provider.Liveness, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return provider.Offline, &provider.TransientError{Op: "check_live", Channel: ch, Err: f.err}
	}
	return f.live, nil
}

func (f *fakeProvider) ListVariants(_ context.Context, ch stream.ChannelID) ([]stream.Variant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, &provider.TransientError{Op: "list_variants", Channel: ch, Err: f.err}
	}
	return append([]stream.Variant(nil), f.variants...), nil
}

type fakeProc struct {
	variant   stream.Variant
	startedAt time.Time
	alive     bool
}

type stopCall struct {
	graceful    bool
	stateAtCall State
	variant     string
}

type fakeEncoder struct {
	mu    sync.Mutex
	clock clock
	sup   *Supervisor

	procs   map[*encoder.Handle]*fakeProc
	starts  []stream.Variant
	stops   []stopCall
	startFn func(attempt int) error
	attempt int
	// crashOnStart makes every started process dead immediately.
	crashOnStart bool
}

func newFakeEncoder(c clock) *fakeEncoder {
	return &fakeEncoder{clock: c, procs: make(map[*encoder.Handle]*fakeProc)}
}

func (f *fakeEncoder) Start(_ context.Context, v stream.Variant, _ resource.EncodingProfile, _ string) (*encoder.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempt++
	if f.startFn != nil {
		if err := f.startFn(f.attempt); err != nil {
			return nil, err
		}
	}
	for _, p := range f.procs {
		if p.alive {
			return nil, &encoder.LaunchError{Binary: "ffmpeg", Err: encoder.ErrAlreadyRunning}
		}
	}
	h := &encoder.Handle{}
	f.procs[h] = &fakeProc{variant: v, startedAt: f.clock.Now(), alive: !f.crashOnStart}
	f.starts = append(f.starts, v)
	return h, nil
}

func (f *fakeEncoder) IsAlive(h *encoder.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.procs[h]
	return ok && p.alive
}

func (f *fakeEncoder) ElapsedRuntime(h *encoder.Handle) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.procs[h]
	if !ok {
		return 0
	}
	return f.clock.Now().Sub(p.startedAt)
}

func (f *fakeEncoder) Stop(_ context.Context, h *encoder.Handle, graceful bool) error {
	var state State
	if f.sup != nil {
		state = f.sup.State()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.procs[h]
	if !ok {
		return nil
	}
	f.stops = append(f.stops, stopCall{graceful: graceful, stateAtCall: state, variant: p.variant.Label})
	p.alive = false
	delete(f.procs, h)
	return nil
}

func (f *fakeEncoder) crashAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.procs {
		p.alive = false
	}
}

func (f *fakeEncoder) alive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.procs {
		if p.alive {
			n++
		}
	}
	return n
}

func (f *fakeEncoder) Starts() []stream.Variant {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stream.Variant(nil), f.starts...)
}

func (f *fakeEncoder) Stops() []stopCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stopCall(nil), f.stops...)
}

func variant(label string) stream.Variant {
	ord, audio, _ := stream.ParseLabel(label)
	return stream.Variant{Label: label, Ordinal: ord, AudioOnly: audio, URL: "https://cdn.invalid/" + label + ".m3u8"}
}

// gateClock behaves like mockClock except that waits of exactly hold never
// fire. held is closed the first time such a wait starts.
type gateClock struct {
	*mockClock
	hold time.Duration
	once sync.Once
	held chan struct{}
}

func newGateClock(hold time.Duration) *gateClock {
	return &gateClock{mockClock: newMockClock(), hold: hold, held: make(chan struct{})}
}

func (g *gateClock) After(d time.Duration) <-chan time.Time {
	if d == g.hold {
		g.once.Do(func() { close(g.held) })
		return make(chan time.Time)
	}
	return g.mockClock.After(d)
}

func variantAt(label, url string) stream.Variant {
	v := variant(label)
	v.URL = url
	return v
}
