package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"sdr-waterfall/internal/assembler"
	"sdr-waterfall/internal/catalog"
	"sdr-waterfall/internal/chunk"
	"sdr-waterfall/internal/config"
	"sdr-waterfall/internal/gps"
	"sdr-waterfall/internal/source"
	"sdr-waterfall/internal/spectrum"
)

// Report describes one finished capture and its artifacts
type Report struct {
	ID        string // Catalog identifier, empty without a catalog
	BaseName  string
	Frequency float64 // Centre of the captured band
	Tracks    int
	Result    *Result
	Image     *assembler.ImageResult
	Wave      *assembler.IQResult
	Position  *gps.Position
}

// Session drives one or more captures on a single receiver
type Session struct {
	cfg       *config.Config
	driver    source.Driver
	log       *zap.Logger
	out       io.Writer
	pumpOpts  []PumpOption
	src       source.Source
	catalog   *catalog.Catalog
	assembler *assembler.Assembler

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSession creates a session for cfg. Receivers are opened through driver.
func NewSession(cfg *config.Config, driver source.Driver, log *zap.Logger, opts ...PumpOption) *Session {
	return &Session{
		cfg:       cfg,
		driver:    driver,
		log:       log.With(zap.String("component", "session")),
		out:       os.Stdout,
		pumpOpts:  opts,
		assembler: assembler.New(log),
	}
}

// SetOutput redirects operator status lines
func (s *Session) SetOutput(w io.Writer) {
	s.out = w
	s.pumpOpts = append(s.pumpOpts, WithStatus(w))
}

// Initialize opens and configures the receiver, creates the output
// directory and opens the catalog.
func (s *Session) Initialize() error {
	var err error
	s.src, err = source.Select(s.driver, s.cfg.SDR.Device, s.cfg.SDR.SyntheticFallback)
	if err != nil {
		return err
	}
	if s.src.Name() == source.SyntheticSelector {
		s.log.Warn("no receiver in use, recording synthetic samples")
	}

	if err := s.src.SetSampleRate(s.cfg.SDR.SampleRate); err != nil {
		return fmt.Errorf("failed to set sample rate: %w", err)
	}
	if s.cfg.SDR.Bandwidth > 0 {
		if err := s.src.SetBandwidth(s.cfg.SDR.Bandwidth); err != nil {
			return fmt.Errorf("failed to set bandwidth: %w", err)
		}
	}
	if err := s.src.SetCenterFrequency(s.firstFrequency()); err != nil {
		return fmt.Errorf("failed to set frequency: %w", err)
	}

	gains := s.cfg.SDR.Gain
	if gains == "" {
		gains = source.DefaultGains(s.src.Name())
	}
	parsed, bad := source.ParseGains(gains)
	for _, b := range bad {
		s.log.Warn("ignoring malformed gain", zap.String("gain", b))
	}
	for _, g := range parsed {
		if err := s.src.SetGain(g.Name, g.Value); err != nil {
			s.log.Warn("failed to set gain", zap.String("name", g.Name), zap.Float64("value", g.Value), zap.Error(err))
		}
	}

	if err := os.MkdirAll(s.cfg.Output.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if s.cfg.Catalog.Path != "" {
		s.catalog, err = catalog.Open(s.cfg.Catalog.Path)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) firstFrequency() float64 {
	if len(s.cfg.Capture.Batch) > 0 {
		return s.cfg.Capture.Batch[0].Frequency
	}
	return PlanTracks(s.cfg.SDR.Frequency, s.cfg.SDR.SpanLow, s.cfg.SDR.SpanHigh, s.cfg.SDR.SampleRate)[0]
}

// run is one scheduled capture
type run struct {
	tracks []float64
	start  time.Time
	end    time.Time
}

func (s *Session) plan(now time.Time) ([]run, error) {
	if len(s.cfg.Capture.Batch) == 0 {
		start, end, err := config.ParseWindow(s.cfg.Capture.StartTime, s.cfg.Capture.EndTime, now)
		if err != nil {
			return nil, err
		}
		tracks := PlanTracks(s.cfg.SDR.Frequency, s.cfg.SDR.SpanLow, s.cfg.SDR.SpanHigh, s.cfg.SDR.SampleRate)
		return []run{{tracks: tracks, start: start, end: end}}, nil
	}

	runs := make([]run, 0, len(s.cfg.Capture.Batch))
	for i, b := range s.cfg.Capture.Batch {
		start, end, err := config.ParseWindow(b.Start, b.End, now)
		if err != nil {
			return nil, fmt.Errorf("batch entry %d: %w", i, err)
		}
		runs = append(runs, run{tracks: []float64{b.Frequency}, start: start, end: end})
	}
	return runs, nil
}

// Run performs every scheduled capture in order. A user stop ends the
// remaining schedule; every capture that ran is assembled and reported.
func (s *Session) Run(ctx context.Context) ([]*Report, error) {
	if s.src == nil {
		return nil, errors.New("session not initialized")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	runs, err := s.plan(time.Now())
	if err != nil {
		return nil, err
	}

	pos, err := gps.Locate(ctx, s.cfg.GPS, s.log)
	if err != nil {
		s.log.Warn("receiver position unavailable", zap.Error(err))
		pos = nil
	} else if pos != nil {
		fmt.Fprintf(s.out, "Position: %.6f, %.6f (%s)\n", pos.Latitude, pos.Longitude, pos.Source)
	}

	var reports []*Report
	for i, r := range runs {
		if ctx.Err() != nil {
			break
		}
		if len(runs) > 1 {
			fmt.Fprintf(s.out, "Batch %d of %d: %.0f Hz\n", i+1, len(runs), r.tracks[0])
		}
		report, err := s.capture(ctx, r, i, len(runs), pos)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
		if report.Result.Reason == StopUser {
			break
		}
	}
	return reports, nil
}

func (s *Session) baseName(centre float64, index, total int) string {
	name := s.cfg.Output.Name
	switch {
	case name == "":
		name = time.Now().Format("2006-01-02-15-04-05") + "-" + strconv.FormatInt(int64(centre), 10)
	case total > 1:
		name = fmt.Sprintf("%s-%d", name, index+1)
	}
	return filepath.Join(s.cfg.Output.Dir, name)
}

func (s *Session) capture(ctx context.Context, r run, index, total int, pos *gps.Position) (*Report, error) {
	width := spectrum.NearestWidth(s.cfg.Spectrum.Width)
	decimation := s.cfg.Spectrum.Decimation
	if decimation < 1 {
		decimation = 1
	}
	n := len(r.tracks)
	centre := SpanCenter(r.tracks)
	base := s.baseName(centre, index, total)

	saveIQ := s.cfg.Capture.SaveIQ
	if saveIQ && n > 1 {
		s.log.Warn("IQ recording is not available in span mode", zap.Int("tracks", n))
		saveIQ = false
	}

	s.banner(width, n, centre, base, saveIQ)

	wf := chunk.NewWaterfallWriter(s.waterfallConfig(base, width, decimation, r.tracks), s.log)
	iq := chunk.NewIQWriter(chunk.IQConfig{BaseName: base}, s.log)

	pump, err := NewPump(PumpConfig{
		Width:          width,
		Average:        s.cfg.Spectrum.Average,
		Decimation:     decimation,
		Window:         s.cfg.Spectrum.Window,
		BatchSize:      s.cfg.Capture.BatchSize,
		Tracks:         r.tracks,
		SaveWaterfall:  s.cfg.Capture.SaveWaterfall,
		SaveIQ:         saveIQ,
		MarkerInterval: s.cfg.Capture.MarkerInterval,
		MarkerAlign:    s.cfg.Capture.MarkerAlign,
		Start:          r.start,
		End:            r.end,
		RunLimit:       s.cfg.Capture.RunLimit,
		StartDelay:     s.cfg.Capture.StartDelay,
		OutputDir:      s.cfg.Output.Dir,
	}, s.src, s.log, s.pumpOpts...)
	if err != nil {
		return nil, err
	}

	res := pump.Run(ctx, wf, iq)
	fmt.Fprintf(s.out, "Recording stopped (%s), %d rows\n", res.Reason, res.Rows)

	report := &Report{
		BaseName:  base,
		Frequency: centre,
		Tracks:    n,
		Result:    res,
		Position:  pos,
	}
	s.assemble(report, base, res, decimation)
	s.record(report, width*n)
	return report, nil
}

// waterfallConfig calibrates the ruler for tracks joined side by side
func (s *Session) waterfallConfig(base string, width, decimation int, tracks []float64) chunk.WaterfallConfig {
	n := len(tracks)
	return chunk.WaterfallConfig{
		BaseName:   base,
		Width:      width * n,
		SampleRate: s.cfg.SDR.SampleRate * float64(n) / float64(decimation),
		Frequency:  int64(SpanCenter(tracks)),
	}
}

func (s *Session) banner(width, tracks int, centre float64, base string, saveIQ bool) {
	fmt.Fprintf(s.out, "Device: %s\n", s.src.Name())
	fmt.Fprintf(s.out, "Sample rate: %.0f Hz, frequency: %.0f Hz", s.cfg.SDR.SampleRate, centre)
	if tracks > 1 {
		fmt.Fprintf(s.out, " (%d tracks)", tracks)
	}
	fmt.Fprintf(s.out, "\n")
	fmt.Fprintf(s.out, "Width: %d, average: %d, marker: %v\n", width*tracks, s.cfg.Spectrum.Average, s.cfg.Capture.MarkerInterval)
	if s.cfg.SDR.Gain != "" {
		fmt.Fprintf(s.out, "Gain: %s\n", s.cfg.SDR.Gain)
	}
	fmt.Fprintf(s.out, "Output: %s, save IQ: %v\n", base, saveIQ)
}

// assemble folds the chunks the writers produced. When a writer did not
// report, the chunk files on disk decide the count.
func (s *Session) assemble(report *Report, base string, res *Result, decimation int) {
	if s.cfg.Capture.SaveWaterfall {
		count := res.ImageChunks
		if !res.ImageAcked {
			count = chunk.Discover(base, chunk.ImageExt)
		}
		if count > 0 {
			img, err := s.assembler.AssembleImages(base, count, !s.cfg.Capture.KeepChunks)
			if err != nil {
				s.log.Error("failed to assemble waterfall", zap.String("base", base), zap.Error(err))
			} else {
				report.Image = img
				fmt.Fprintf(s.out, "Waterfall saved to: %s (%dx%d)\n", img.Path, img.Width, img.Height)
			}
		}
	}

	if res.IQChunks > 0 || !res.IQAcked {
		count := res.IQChunks
		if !res.IQAcked {
			count = chunk.Discover(base, chunk.IQExt)
		}
		if count == 0 {
			return
		}
		rate := uint32(s.cfg.SDR.SampleRate / float64(decimation))
		wave, err := s.assembler.AssembleIQ(base, count, rate, s.src.Bits())
		if err != nil {
			s.log.Error("failed to assemble IQ recording", zap.String("base", base), zap.Error(err))
			return
		}
		report.Wave = wave
		fmt.Fprintf(s.out, "IQ saved to: %s (%.1f s)\n", wave.Path, wave.Header.Duration())
	}
}

func (s *Session) record(report *Report, width int) {
	if s.catalog == nil {
		return
	}
	entry := catalog.Session{
		BaseName:   report.BaseName,
		Device:     s.src.Name(),
		Frequency:  int64(report.Frequency),
		SampleRate: s.cfg.SDR.SampleRate,
		Width:      width,
		Tracks:     report.Tracks,
		Start:      report.Result.Started,
		End:        report.Result.Stopped,
		StopReason: string(report.Result.Reason),
		Rows:       report.Result.Rows,
	}
	if report.Image != nil {
		entry.ImageChunks = report.Image.Chunks
		entry.ImagePath = report.Image.Path
	}
	if report.Wave != nil {
		entry.IQChunks = report.Wave.Chunks
		entry.WavePath = report.Wave.Path
	}
	if report.Position != nil {
		entry.Latitude = report.Position.Latitude
		entry.Longitude = report.Position.Longitude
		entry.Altitude = report.Position.Altitude
	}
	// The capture context may already be cancelled by a user stop
	id, err := s.catalog.Record(context.Background(), entry)
	if err != nil {
		s.log.Error("failed to record session", zap.Error(err))
		return
	}
	report.ID = id
}

// Stop ends the running capture as a user cancel
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Close releases the receiver and the catalog
func (s *Session) Close() error {
	s.Stop()

	var errs []error
	if s.src != nil {
		if err := s.src.Close(); err != nil {
			errs = append(errs, fmt.Errorf("receiver close error: %w", err))
		}
	}
	if s.catalog != nil {
		if err := s.catalog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("catalog close error: %w", err))
		}
	}
	return errors.Join(errs...)
}
