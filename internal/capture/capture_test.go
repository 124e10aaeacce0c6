package capture

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"sdr-waterfall/internal/source"
	"sdr-waterfall/internal/spectrum"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

// fakeSource delivers zero-valued buffers, advancing the clock one second per read
type fakeSource struct {
	clock   *fakeClock
	reads   int
	failAt  int
	onRead  func(n int)
	tuned   []float64
	started bool
	stopped bool
}

func (s *fakeSource) Name() string { return "fake" }
func (s *fakeSource) Bits() int { return 16 }
func (s *fakeSource) SetSampleRate(float64) error { return nil }
func (s *fakeSource) SetBandwidth(float64) error { return nil }
func (s *fakeSource) SetGain(string, float64) error { return nil }
func (s *fakeSource) StartStream() error {
	s.started = true
	return nil
}

func (s *fakeSource) StopStream() error {
	s.stopped = true
	return nil
}

func (s *fakeSource) Close() error { return nil }
func (s *fakeSource) SetCenterFrequency(f float64) error {
	s.tuned = append(s.tuned, f)
	return nil
}

func (s *fakeSource) ReadStream() (source.Buffer, error) {
	s.reads++
	if s.failAt > 0 && s.reads == s.failAt {
		return source.Buffer{}, errors.New("usb transfer failed")
	}
	s.clock.Advance(time.Second)
	if s.onRead != nil {
		s.onRead(s.reads)
	}
	return source.Buffer{Samples: make([]int16, 64), Bits: 16}, nil
}

type rowSink struct {
	batches [][]spectrum.Row
}

func (s *rowSink) Run(ctx context.Context, in <-chan []spectrum.Row) int {
	for {
		select {
		case <-ctx.Done():
			return len(s.batches)
		case b, ok := <-in:
			if !ok || len(b) == 0 {
				return len(s.batches)
			}
			s.batches = append(s.batches, b)
		}
	}
}

type iqSink struct {
	buffers int
}

func (s *iqSink) Run(ctx context.Context, in <-chan source.Buffer) int {
	for {
		select {
		case <-ctx.Done():
			return s.buffers
		case b, ok := <-in:
			if !ok || len(b.Samples) == 0 {
				return s.buffers
			}
			s.buffers++
		}
	}
}

// stuckSink never reads until it is forcibly cancelled
type stuckSink struct{}

func (stuckSink) Run(ctx context.Context, in <-chan []spectrum.Row) int {
	<-ctx.Done()
	return 0
}

func plentyOfSpace(string) (uint64, error) { return 1 << 40, nil }

func baseConfig() PumpConfig {
	return PumpConfig{
		Width:          16,
		Average:        1,
		Decimation:     1,
		BatchSize:      25,
		Tracks:         []float64{101e6},
		SaveWaterfall:  true,
		MarkerInterval: time.Minute,
		MarkerAlign:    true,
		OutputDir:      ".",
	}
}

func newTestPump(t *testing.T, cfg PumpConfig, src *fakeSource, opts ...PumpOption) *Pump {
	t.Helper()
	opts = append([]PumpOption{
		WithClock(src.clock.Now, src.clock.Sleep),
		WithDiskChecker(plentyOfSpace),
	}, opts...)
	p, err := NewPump(cfg, src, zaptest.NewLogger(t), opts...)
	if err != nil {
		t.Fatalf("NewPump: %v", err)
	}
	return p
}

func marked(row spectrum.Row) bool {
	return row[0] == spectrum.MarkerColor
}

func TestMarkerEveryInterval(t *testing.T) {
	m := NewMarker(time.Minute, true)
	marks := 0
	for i := 1; i <= 125; i++ {
		if m.Due(t0.Add(time.Duration(i) * time.Second)) {
			marks++
		}
	}
	if marks != 3 {
		t.Errorf("Expected 3 marks, got %d", marks)
	}
}

func TestMarkerSkipsMissedBoundaries(t *testing.T) {
	m := NewMarker(time.Minute, true)
	if !m.Due(t0.Add(10 * time.Second)) {
		t.Fatal("Expected first row to be marked")
	}
	// A stall across three boundaries yields one mark
	if !m.Due(t0.Add(200 * time.Second)) {
		t.Error("Expected mark after stall")
	}
	if m.Due(t0.Add(230 * time.Second)) {
		t.Error("Unexpected mark before next boundary")
	}
	if !m.Due(t0.Add(240 * time.Second)) {
		t.Error("Expected mark on aligned boundary")
	}
}

func TestMarkerDisabled(t *testing.T) {
	m := NewMarker(0, true)
	if m.Due(t0) {
		t.Error("Expected no marks with zero interval")
	}
}

func TestPlanTracks(t *testing.T) {
	tracks := PlanTracks(101e6, 100e6, 106e6, 2e6)
	want := []float64{101e6, 103e6, 105e6}
	if len(tracks) != len(want) {
		t.Fatalf("Expected %d tracks, got %v", len(want), tracks)
	}
	for i := range want {
		if tracks[i] != want[i] {
			t.Errorf("Track %d: expected %v, got %v", i, want[i], tracks[i])
		}
	}
	if c := SpanCenter(tracks); c != 103e6 {
		t.Errorf("Expected span centre 103e6, got %v", c)
	}

	single := PlanTracks(101e6, 0, 0, 2e6)
	if len(single) != 1 || single[0] != 101e6 {
		t.Errorf("Expected single track, got %v", single)
	}
}

func TestReasonFor(t *testing.T) {
	tests := []struct {
		err  error
		want StopReason
	}{
		{ErrUserCancel, StopUser},
		{errRunLimit, StopTimeLimit},
		{errEndTime, StopEndTime},
		{ErrFreeSpace, StopDiskFull},
		{errors.New("boom"), StopSourceError},
	}
	for _, tt := range tests {
		if got := ReasonFor(tt.err); got != tt.want {
			t.Errorf("ReasonFor(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
	if StopSourceError.Expected() {
		t.Error("Source errors should not be expected")
	}
}

func TestPumpRunLimit(t *testing.T) {
	src := &fakeSource{clock: &fakeClock{now: t0}}
	cfg := baseConfig()
	cfg.RunLimit = 126 * time.Second
	p := newTestPump(t, cfg, src)

	sink := &rowSink{}
	res := p.Run(context.Background(), sink, nil)

	if res.Reason != StopTimeLimit {
		t.Fatalf("Expected time limit stop, got %q (%v)", res.Reason, res.Err)
	}
	if res.Rows != 125 {
		t.Errorf("Expected 125 rows, got %d", res.Rows)
	}
	if len(sink.batches) != 5 || res.ImageChunks != 5 || !res.ImageAcked {
		t.Errorf("Expected 5 acked batches, got %d (chunks %d, acked %v)", len(sink.batches), res.ImageChunks, res.ImageAcked)
	}

	marks := 0
	for _, b := range sink.batches {
		if len(b) != 25 {
			t.Errorf("Expected batch of 25 rows, got %d", len(b))
		}
		for _, row := range b {
			if len(row) != 16 {
				t.Fatalf("Expected row width 16, got %d", len(row))
			}
			if marked(row) {
				marks++
			}
		}
	}
	if marks != 3 {
		t.Errorf("Expected 3 marked rows, got %d", marks)
	}
	if !src.started || !src.stopped {
		t.Error("Expected stream to be started and stopped")
	}

	history := p.History()
	want := []State{StateWaitingStart, StateRunning, StateStoppingTimeLimit, StateDraining, StateDone}
	if len(history) != len(want) {
		t.Fatalf("Expected history %v, got %v", want, history)
	}
	for i := range want {
		if history[i] != want[i] {
			t.Errorf("State %d: expected %v, got %v", i, want[i], history[i])
		}
	}
}

func TestPumpDiscardsPartialBatch(t *testing.T) {
	src := &fakeSource{clock: &fakeClock{now: t0}}
	cfg := baseConfig()
	cfg.RunLimit = 40 * time.Second
	p := newTestPump(t, cfg, src)

	sink := &rowSink{}
	res := p.Run(context.Background(), sink, nil)
	if res.Rows != 39 || len(sink.batches) != 1 {
		t.Errorf("Expected 39 rows in 1 batch, got %d rows in %d", res.Rows, len(sink.batches))
	}
}

func TestPumpDiskFull(t *testing.T) {
	src := &fakeSource{clock: &fakeClock{now: t0}}
	p := newTestPump(t, baseConfig(), src, WithDiskChecker(func(string) (uint64, error) { return 1024, nil }))

	res := p.Run(context.Background(), &rowSink{}, nil)
	if res.Reason != StopDiskFull {
		t.Fatalf("Expected disk full stop, got %q", res.Reason)
	}
	if res.Rows != 0 {
		t.Errorf("Expected no rows committed, got %d", res.Rows)
	}
}

func TestPumpIgnoresDiskCheckError(t *testing.T) {
	src := &fakeSource{clock: &fakeClock{now: t0}}
	cfg := baseConfig()
	cfg.RunLimit = 5 * time.Second
	p := newTestPump(t, cfg, src, WithDiskChecker(func(string) (uint64, error) { return 0, errors.New("statfs failed") }))

	res := p.Run(context.Background(), &rowSink{}, nil)
	if res.Reason != StopTimeLimit || res.Rows != 4 {
		t.Errorf("Expected time limit after 4 rows, got %q after %d", res.Reason, res.Rows)
	}
}

func TestPumpUserCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{clock: &fakeClock{now: t0}}
	src.onRead = func(n int) {
		if n == 30 {
			cancel()
		}
	}
	p := newTestPump(t, baseConfig(), src)

	sink := &rowSink{}
	res := p.Run(ctx, sink, nil)
	if res.Reason != StopUser {
		t.Fatalf("Expected user stop, got %q (%v)", res.Reason, res.Err)
	}
	if !res.ImageAcked || len(sink.batches) != 1 {
		t.Errorf("Expected the full batch to drain, got %d batches (acked %v)", len(sink.batches), res.ImageAcked)
	}
	if p.State() != StateDone {
		t.Errorf("Expected DONE, got %v", p.State())
	}
}

func TestPumpSourceError(t *testing.T) {
	src := &fakeSource{clock: &fakeClock{now: t0}, failAt: 3}
	p := newTestPump(t, baseConfig(), src)

	res := p.Run(context.Background(), &rowSink{}, nil)
	if res.Reason != StopSourceError || res.Err == nil {
		t.Fatalf("Expected source error stop, got %q", res.Reason)
	}
	if res.Rows != 2 {
		t.Errorf("Expected 2 rows before the failure, got %d", res.Rows)
	}
	if !src.stopped {
		t.Error("Expected stream to be stopped after failure")
	}
}

func TestPumpJoinTimeout(t *testing.T) {
	src := &fakeSource{clock: &fakeClock{now: t0}}
	cfg := baseConfig()
	cfg.BatchSize = 1
	cfg.RunLimit = 4 * time.Second
	cfg.HandoffTimeout = 10 * time.Millisecond
	cfg.JoinTimeout = 50 * time.Millisecond
	p := newTestPump(t, cfg, src)

	res := p.Run(context.Background(), stuckSink{}, nil)
	if res.ImageAcked {
		t.Error("Expected wedged writer not to acknowledge")
	}
	if res.Batches != 1 || res.Dropped != 2 {
		t.Errorf("Expected 1 handed and 2 dropped batches, got %d and %d", res.Batches, res.Dropped)
	}
	if p.State() != StateDone {
		t.Errorf("Expected DONE, got %v", p.State())
	}
}

func TestPumpWaitsForStartTime(t *testing.T) {
	src := &fakeSource{clock: &fakeClock{now: t0}}
	cfg := baseConfig()
	cfg.Start = t0.Add(3 * time.Second)
	cfg.RunLimit = 2 * time.Second
	var out bytes.Buffer
	p := newTestPump(t, cfg, src, WithStatus(&out))

	res := p.Run(context.Background(), &rowSink{}, nil)
	if !res.Started.Equal(cfg.Start) {
		t.Errorf("Expected start at %v, got %v", cfg.Start, res.Started)
	}
	if !strings.Contains(out.String(), "Recording starts in 3s") {
		t.Errorf("Expected countdown in status output, got %q", out.String())
	}
}

func TestPumpEndTimeBeforeStart(t *testing.T) {
	src := &fakeSource{clock: &fakeClock{now: t0}}
	cfg := baseConfig()
	cfg.Start = t0.Add(time.Hour)
	cfg.End = t0.Add(-time.Minute)
	p := newTestPump(t, cfg, src)

	res := p.Run(context.Background(), &rowSink{}, nil)
	if res.Reason != StopEndTime {
		t.Fatalf("Expected end time stop, got %q", res.Reason)
	}
	if src.started {
		t.Error("Stream should not start after the end time")
	}
	for _, s := range p.History() {
		if s == StateRunning {
			t.Error("Pump should not enter RUNNING")
		}
	}
}

func TestPumpForwardsIQ(t *testing.T) {
	src := &fakeSource{clock: &fakeClock{now: t0}}
	cfg := baseConfig()
	cfg.SaveWaterfall = false
	cfg.SaveIQ = true
	cfg.Average = 2
	cfg.RunLimit = 5 * time.Second
	p := newTestPump(t, cfg, src)

	iq := &iqSink{}
	res := p.Run(context.Background(), nil, iq)
	// Rows at 2s and 4s commit, the third row ends the run at 6s
	if res.Rows != 2 || res.IQBuffers != 6 || iq.buffers != 6 || !res.IQAcked {
		t.Errorf("Unexpected IQ result: rows %d, sent %d, written %d, acked %v",
			res.Rows, res.IQBuffers, iq.buffers, res.IQAcked)
	}
}

func TestPumpSpanMode(t *testing.T) {
	src := &fakeSource{clock: &fakeClock{now: t0}}
	cfg := baseConfig()
	cfg.Tracks = []float64{101e6, 103e6}
	cfg.SaveIQ = true
	cfg.BatchSize = 1
	cfg.SettleBuffers = 1
	cfg.RunLimit = 5 * time.Second
	p := newTestPump(t, cfg, src)

	sink := &rowSink{}
	iq := &iqSink{}
	res := p.Run(context.Background(), sink, iq)
	if res.Rows != 1 {
		t.Fatalf("Expected 1 row, got %d", res.Rows)
	}
	if len(sink.batches) != 1 || len(sink.batches[0][0]) != 32 {
		t.Errorf("Expected one joined row of 32 pixels")
	}
	if iq.buffers != 0 {
		t.Errorf("Expected no IQ in span mode, got %d buffers", iq.buffers)
	}
	// Initial tune plus one retune per track per row
	if len(src.tuned) < 3 || src.tuned[1] != 101e6 || src.tuned[2] != 103e6 {
		t.Errorf("Unexpected tuning sequence %v", src.tuned)
	}
}

func TestNewPumpRejectsBadConfig(t *testing.T) {
	src := &fakeSource{clock: &fakeClock{now: t0}}
	cfg := baseConfig()
	cfg.BatchSize = 0
	if _, err := NewPump(cfg, src, zaptest.NewLogger(t)); err == nil {
		t.Error("Expected error for zero batch size")
	}
	cfg = baseConfig()
	cfg.Tracks = nil
	if _, err := NewPump(cfg, src, zaptest.NewLogger(t)); err == nil {
		t.Error("Expected error without tracks")
	}
}

func TestPumpCancelDuringBusyHandoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &fakeSource{clock: &fakeClock{now: t0}}
	src.onRead = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	cfg := baseConfig()
	cfg.BatchSize = 1
	cfg.HandoffTimeout = 10 * time.Second
	cfg.JoinTimeout = 50 * time.Millisecond
	p := newTestPump(t, cfg, src)

	began := time.Now()
	res := p.Run(ctx, stuckSink{}, nil)
	if elapsed := time.Since(began); elapsed > 5*time.Second {
		t.Errorf("Stop waited %v on a busy writer", elapsed)
	}
	if res.Reason != StopUser {
		t.Errorf("Expected user stop, got %q", res.Reason)
	}
	if res.Dropped != 0 {
		t.Errorf("Expected no timed-out handoffs, got %d", res.Dropped)
	}
}

func TestPumpSkipsOutputsWithoutWriter(t *testing.T) {
	src := &fakeSource{clock: &fakeClock{now: t0}}
	cfg := baseConfig()
	cfg.BatchSize = 1
	cfg.SaveIQ = true
	cfg.RunLimit = 5 * time.Second
	cfg.HandoffTimeout = 10 * time.Second
	p := newTestPump(t, cfg, src)

	began := time.Now()
	res := p.Run(context.Background(), nil, nil)
	if elapsed := time.Since(began); elapsed > 5*time.Second {
		t.Errorf("Run blocked %v on outputs nobody consumes", elapsed)
	}
	if res.Rows != 4 {
		t.Errorf("Expected 4 rows, got %d", res.Rows)
	}
	if res.Batches != 0 || res.IQBuffers != 0 || res.Dropped != 0 {
		t.Errorf("Expected nothing handed off, got %d batches, %d buffers, %d dropped",
			res.Batches, res.IQBuffers, res.Dropped)
	}
	if !res.ImageAcked || !res.IQAcked {
		t.Error("Expected absent writers to count as acknowledged")
	}
}
