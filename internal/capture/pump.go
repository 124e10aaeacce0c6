// Package capture runs capture sessions: it pulls sample buffers from a
// receiver, turns them into waterfall rows, hands row batches and raw
// buffers to the chunk writers and assembles the result.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"sdr-waterfall/internal/diskspace"
	"sdr-waterfall/internal/source"
	"sdr-waterfall/internal/spectrum"
)

// Pump defaults
const (
	DefaultJoinTimeout    = 10 * time.Second
	DefaultHandoffTimeout = 10 * time.Second
	DefaultSettleBuffers  = 2
)

// WaterfallSink consumes row batches until an empty batch arrives
type WaterfallSink interface {
	Run(ctx context.Context, in <-chan []spectrum.Row) int
}

// IQSink consumes raw buffers until an empty buffer arrives
type IQSink interface {
	Run(ctx context.Context, in <-chan source.Buffer) int
}

// PumpConfig holds everything the sampling loop needs
type PumpConfig struct {
	Width          int       // Bins per track row
	Average        int       // Buffers averaged per row
	Decimation     int       // Complex sample stride
	Window         string    // Window function name
	BatchSize      int       // Rows per waterfall batch
	Tracks         []float64 // Centre frequencies captured each row
	SaveWaterfall  bool
	SaveIQ         bool
	MarkerInterval time.Duration
	MarkerAlign    bool
	Start          time.Time     // Wall-clock start (zero = start after StartDelay)
	End            time.Time     // Wall-clock stop (zero = none)
	RunLimit       time.Duration // Maximum RUNNING time (0 = none)
	StartDelay     time.Duration
	OutputDir      string // Volume checked for free space
	SettleBuffers  int    // Buffers discarded after each retune
	HandoffTimeout time.Duration
	JoinTimeout    time.Duration
}

// Result summarises one pump run
type Result struct {
	Reason      StopReason
	Err         error // Cause the loop stopped with
	Started     time.Time
	Stopped     time.Time
	Rows        int // Rows committed, including the discarded partial batch
	Batches     int // Batches handed to the waterfall writer
	IQBuffers   int // Buffers handed to the IQ writer
	Dropped     int // Payloads dropped after a handoff timeout
	ImageChunks int // Chunks the waterfall writer reported
	IQChunks    int // Chunks the IQ writer reported
	ImageAcked  bool
	IQAcked     bool
}

// Pump is the foreground sampling loop of one session
type Pump struct {
	cfg   PumpConfig
	src   source.Source
	gen   *spectrum.Generator
	scale int
	log   *zap.Logger
	out   io.Writer

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	free  diskspace.Checker

	waterfall chan []spectrum.Row
	iq        chan source.Buffer
	sendRows  bool // A waterfall writer is consuming batches
	sendIQ    bool // An IQ writer is consuming buffers

	mu      sync.Mutex
	state   State
	history []State
	res     Result
}

// PumpOption customises a Pump
type PumpOption func(*Pump)

// WithClock replaces the wall clock and the sleep used while waiting
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) PumpOption {
	return func(p *Pump) {
		p.now = now
		p.sleep = sleep
	}
}

// WithDiskChecker replaces the free-space probe
func WithDiskChecker(free diskspace.Checker) PumpOption {
	return func(p *Pump) { p.free = free }
}

// WithStatus sets where operator status lines are printed
func WithStatus(w io.Writer) PumpOption {
	return func(p *Pump) { p.out = w }
}

// NewPump creates a pump reading from src
func NewPump(cfg PumpConfig, src source.Source, log *zap.Logger, opts ...PumpOption) (*Pump, error) {
	if cfg.Average < 1 {
		cfg.Average = 1
	}
	if cfg.Decimation < 1 {
		cfg.Decimation = 1
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("invalid batch size %d", cfg.BatchSize)
	}
	if len(cfg.Tracks) == 0 {
		return nil, errors.New("no frequency to capture")
	}
	if cfg.SettleBuffers == 0 {
		cfg.SettleBuffers = DefaultSettleBuffers
	}
	if cfg.HandoffTimeout == 0 {
		cfg.HandoffTimeout = DefaultHandoffTimeout
	}
	if cfg.JoinTimeout == 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}

	gen, err := spectrum.NewGenerator(cfg.Width, src.Bits(), cfg.Window)
	if err != nil {
		return nil, err
	}

	p := &Pump{
		cfg:       cfg,
		src:       src,
		gen:       gen,
		scale:     spectrum.ScaleFor(src.Bits()),
		log:       log.With(zap.String("component", "pump")),
		out:       io.Discard,
		now:       time.Now,
		sleep:     sleepContext,
		free:      diskspace.Free,
		waterfall: make(chan []spectrum.Row, 1),
		iq:        make(chan source.Buffer, 1),
		history:   []State{StateWaitingStart},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current lifecycle stage
func (p *Pump) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// History returns every state the pump has entered, in order
func (p *Pump) History() []State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]State(nil), p.history...)
}

func (p *Pump) enter(s State) {
	p.mu.Lock()
	p.state = s
	p.history = append(p.history, s)
	p.mu.Unlock()
	p.log.Debug("state", zap.Stringer("state", s))
}

// Run executes one session: wait for the start, sample until a stop
// condition, then drain both writers. Either sink may be nil when that
// output is disabled. Cancelling ctx stops the session as a user cancel.
func (p *Pump) Run(ctx context.Context, wf WaterfallSink, iq IQSink) *Result {
	// Writers outlive ctx so a cancel still drains them
	wctx, forceStop := context.WithCancel(context.Background())
	defer forceStop()

	wfDone := make(chan int, 1)
	iqDone := make(chan int, 1)
	if wf != nil && p.cfg.SaveWaterfall {
		go func() { wfDone <- wf.Run(wctx, p.waterfall) }()
	} else {
		wfDone = nil
	}
	// Span mode mixes frequencies, so raw IQ is only kept for one track
	if iq != nil && p.cfg.SaveIQ && len(p.cfg.Tracks) == 1 {
		go func() { iqDone <- iq.Run(wctx, p.iq) }()
	} else {
		iqDone = nil
	}
	p.sendRows = wfDone != nil
	p.sendIQ = iqDone != nil

	err := p.waitStart(ctx)
	if err == nil {
		err = p.stream(ctx)
	}

	p.res.Err = err
	p.res.Reason = ReasonFor(err)
	p.res.Stopped = p.now()
	p.enter(stoppingState(p.res.Reason))
	if p.res.Reason.Expected() {
		p.log.Info("capture stopped", zap.String("reason", string(p.res.Reason)), zap.Int("rows", p.res.Rows))
	} else {
		p.log.Error("capture failed", zap.Error(err), zap.Int("rows", p.res.Rows))
	}

	p.enter(StateDraining)
	p.res.ImageChunks, p.res.ImageAcked = drain(p, p.waterfall, []spectrum.Row(nil), wfDone, "waterfall")
	p.res.IQChunks, p.res.IQAcked = drain(p, p.iq, source.Buffer{}, iqDone, "iq")
	forceStop()
	p.enter(StateDone)

	res := p.res
	return &res
}

// drain sends the empty sentinel, waits for the writer to report, and
// closes the channel whether or not it did.
func drain[T any](p *Pump, ch chan T, sentinel T, done <-chan int, name string) (int, bool) {
	defer close(ch)
	if done == nil {
		return 0, true
	}

	timer := time.NewTimer(p.cfg.JoinTimeout)
	defer timer.Stop()

	select {
	case ch <- sentinel:
	case n := <-done:
		return n, true
	case <-timer.C:
		p.log.Warn("writer did not accept stop signal", zap.String("writer", name))
		return 0, false
	}
	select {
	case n := <-done:
		return n, true
	case <-timer.C:
		p.log.Warn("writer did not complete in time", zap.String("writer", name),
			zap.Duration("timeout", p.cfg.JoinTimeout))
		return 0, false
	}
}

func (p *Pump) waitStart(ctx context.Context) error {
	if !p.cfg.Start.IsZero() {
		for {
			now := p.now()
			if !p.cfg.End.IsZero() && !now.Before(p.cfg.End) {
				return errEndTime
			}
			remaining := p.cfg.Start.Sub(now)
			if remaining <= 0 {
				break
			}
			fmt.Fprintf(p.out, "\rRecording starts in %v  ", remaining.Round(time.Second))
			step := time.Second
			if remaining < step {
				step = remaining
			}
			if err := p.sleep(ctx, step); err != nil {
				return ErrUserCancel
			}
		}
		fmt.Fprintf(p.out, "\n")
	} else if p.cfg.StartDelay > 0 {
		fmt.Fprintf(p.out, "Recording will be started after %v...\n", p.cfg.StartDelay)
		if err := p.sleep(ctx, p.cfg.StartDelay); err != nil {
			return ErrUserCancel
		}
	}
	if ctx.Err() != nil {
		return ErrUserCancel
	}
	return nil
}

func (p *Pump) stream(ctx context.Context) error {
	if err := p.src.SetCenterFrequency(p.cfg.Tracks[0]); err != nil {
		return fmt.Errorf("failed to tune receiver: %w", err)
	}
	if err := p.src.StartStream(); err != nil {
		return fmt.Errorf("failed to start stream: %w", err)
	}
	defer func() {
		if err := p.src.StopStream(); err != nil {
			p.log.Warn("failed to stop stream", zap.Error(err))
		}
	}()

	p.enter(StateRunning)
	p.res.Started = p.now()
	fmt.Fprintf(p.out, "Recording started, press Ctrl+C to stop\n")

	marker := NewMarker(p.cfg.MarkerInterval, p.cfg.MarkerAlign)
	batch := make([]spectrum.Row, 0, p.cfg.BatchSize)
	span := len(p.cfg.Tracks) > 1

	for {
		rows := make([]spectrum.Row, 0, len(p.cfg.Tracks))
		for _, freq := range p.cfg.Tracks {
			if ctx.Err() != nil {
				return ErrUserCancel
			}
			if span {
				if err := p.retune(ctx, freq); err != nil {
					return err
				}
			}
			line, err := p.averageLine(ctx)
			if err != nil {
				return err
			}
			if p.sendRows {
				rows = append(rows, spectrum.MapToPixels(line, p.scale, spectrum.DefaultPalette))
			}
		}

		now := p.now()
		if err := p.checkLimits(now); err != nil {
			return err
		}
		p.res.Rows++
		if !p.sendRows {
			continue
		}

		row := spectrum.Join(rows)
		if marker.Due(now) {
			spectrum.Mark(row)
		}
		batch = append(batch, row)
		if len(batch) == p.cfg.BatchSize {
			// Ownership of batch passes to the writer
			if handoff(ctx, p, p.waterfall, batch, "waterfall") {
				p.res.Batches++
			}
			batch = make([]spectrum.Row, 0, p.cfg.BatchSize)
		}
	}
}

func (p *Pump) retune(ctx context.Context, freq float64) error {
	if err := p.src.SetCenterFrequency(freq); err != nil {
		return fmt.Errorf("failed to tune to %.0f Hz: %w", freq, err)
	}
	for i := 0; i < p.cfg.SettleBuffers; i++ {
		if ctx.Err() != nil {
			return ErrUserCancel
		}
		if _, err := p.src.ReadStream(); err != nil {
			return fmt.Errorf("failed to read settle buffer: %w", err)
		}
	}
	return nil
}

// averageLine reads Average buffers and returns their mean spectral line
func (p *Pump) averageLine(ctx context.Context) ([]float64, error) {
	acc := spectrum.NewAccumulator(p.cfg.Width)
	for i := 0; i < p.cfg.Average; i++ {
		if ctx.Err() != nil {
			return nil, ErrUserCancel
		}
		buf, err := p.src.ReadStream()
		if err != nil {
			return nil, fmt.Errorf("failed to read samples: %w", err)
		}
		if len(buf.Samples) == 0 {
			continue
		}
		buf = buf.Decimate(p.cfg.Decimation)
		if p.sendRows {
			acc.Add(p.gen.ComputeLine(buf.Complex()))
		}
		if p.sendIQ {
			if handoff(ctx, p, p.iq, buf, "iq") {
				p.res.IQBuffers++
			}
		}
	}
	return acc.Average(p.cfg.Average), nil
}

// handoff sends v to a writer, giving up after HandoffTimeout or as soon
// as ctx is cancelled so a stop goes straight to draining.
func handoff[T any](ctx context.Context, p *Pump, ch chan T, v T, name string) bool {
	select {
	case ch <- v:
		return true
	default:
	}
	timer := time.NewTimer(p.cfg.HandoffTimeout)
	defer timer.Stop()
	select {
	case ch <- v:
		return true
	case <-ctx.Done():
		p.log.Debug("handoff abandoned on stop", zap.String("writer", name))
		return false
	case <-timer.C:
		p.res.Dropped++
		p.log.Warn("writer busy, payload dropped", zap.String("writer", name),
			zap.Duration("timeout", p.cfg.HandoffTimeout))
		return false
	}
}

func (p *Pump) checkLimits(now time.Time) error {
	if p.cfg.RunLimit > 0 && now.Sub(p.res.Started) >= p.cfg.RunLimit {
		return errRunLimit
	}
	if !p.cfg.End.IsZero() && !now.Before(p.cfg.End) {
		return errEndTime
	}
	if p.free != nil {
		free, err := p.free(p.cfg.OutputDir)
		if err != nil {
			p.log.Warn("free space check failed", zap.Error(err))
		} else if free < diskspace.Floor {
			p.log.Warn("free space below floor", zap.Uint64("free", free), zap.Uint64("floor", diskspace.Floor))
			return ErrFreeSpace
		}
	}
	return nil
}
