// Package config provides configuration structures and defaults for the waterfall recorder
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	SDR      SDRConfig      `mapstructure:"sdr" yaml:"sdr"`           // Receiver settings
	Spectrum SpectrumConfig `mapstructure:"spectrum" yaml:"spectrum"` // FFT and image settings
	Capture  CaptureConfig  `mapstructure:"capture" yaml:"capture"`   // Session timing and chunking
	Output   OutputConfig   `mapstructure:"output" yaml:"output"`     // Where artifacts are written
	GPS      GPSConfig      `mapstructure:"gps" yaml:"gps"`           // Receiver position
	Catalog  CatalogConfig  `mapstructure:"catalog" yaml:"catalog"`   // Session database
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`   // Logging configuration
}

// SDRConfig contains receiver configuration parameters
type SDRConfig struct {
	Device            string  `mapstructure:"device" yaml:"device"`                         // Receiver selector ("" = first found, "synthetic")
	SyntheticFallback bool    `mapstructure:"synthetic_fallback" yaml:"synthetic_fallback"` // Use random samples when no receiver is present
	Frequency         float64 `mapstructure:"frequency" yaml:"frequency"`                   // Centre frequency in Hz
	SpanLow           float64 `mapstructure:"span_low" yaml:"span_low"`                     // Span mode lower edge in Hz (0 = single frequency)
	SpanHigh          float64 `mapstructure:"span_high" yaml:"span_high"`                   // Span mode upper edge in Hz
	SampleRate        float64 `mapstructure:"sample_rate" yaml:"sample_rate"`               // Sample rate in Hz
	Bandwidth         float64 `mapstructure:"bandwidth" yaml:"bandwidth"`                   // Tuner bandwidth in Hz (0 = driver default)
	Gain              string  `mapstructure:"gain" yaml:"gain"`                             // Gain string "name:value;name:value"
}

// SpectrumConfig contains line generation parameters
type SpectrumConfig struct {
	Width      int    `mapstructure:"width" yaml:"width"`           // Requested image width, rounded up to a power of two
	Average    int    `mapstructure:"average" yaml:"average"`       // Buffers averaged per row
	Decimation int    `mapstructure:"decimation" yaml:"decimation"` // Keep every Nth complex sample
	Window     string `mapstructure:"window" yaml:"window"`         // "none" or "hann"
}

// CaptureConfig contains session timing and chunking parameters
type CaptureConfig struct {
	BatchSize      int           `mapstructure:"batch_size" yaml:"batch_size"`           // Rows per image chunk
	MarkerInterval time.Duration `mapstructure:"marker_interval" yaml:"marker_interval"` // Time marker spacing (0 = off)
	MarkerAlign    bool          `mapstructure:"marker_align" yaml:"marker_align"`       // Align markers to wall-clock boundaries
	StartTime      string        `mapstructure:"start_time" yaml:"start_time"`           // Wall-clock start (HH:MM, HH:MM:SS or RFC3339)
	EndTime        string        `mapstructure:"end_time" yaml:"end_time"`               // Wall-clock stop
	RunLimit       time.Duration `mapstructure:"run_limit" yaml:"run_limit"`             // Maximum recording time (0 = unlimited)
	StartDelay     time.Duration `mapstructure:"start_delay" yaml:"start_delay"`         // Delay before recording when no start time is set
	SaveWaterfall  bool          `mapstructure:"save_waterfall" yaml:"save_waterfall"`   // Write waterfall chunks
	SaveIQ         bool          `mapstructure:"save_iq" yaml:"save_iq"`                 // Write IQ chunks
	KeepChunks     bool          `mapstructure:"keep_chunks" yaml:"keep_chunks"`         // Keep image chunks after assembly
	Batch          []BatchEntry  `mapstructure:"batch" yaml:"batch"`                     // Sequential scheduled sessions
}

// BatchEntry schedules one session at a frequency between two wall-clock times
type BatchEntry struct {
	Frequency float64 `mapstructure:"frequency" yaml:"frequency"`
	Start     string  `mapstructure:"start" yaml:"start"`
	End       string  `mapstructure:"end" yaml:"end"`
}

// OutputConfig contains artifact naming
type OutputConfig struct {
	Dir  string `mapstructure:"dir" yaml:"dir"`   // Output directory
	Name string `mapstructure:"name" yaml:"name"` // Base file name without extension ("" = timestamp-frequency)
}

// GPSConfig contains GPS receiver configuration parameters
type GPSConfig struct {
	Mode            string        `mapstructure:"mode" yaml:"mode"`                           // GPS mode: "none", "manual", "nmea" or "gpsd"
	Port            string        `mapstructure:"port" yaml:"port"`                           // Serial port device path (for NMEA mode)
	BaudRate        int           `mapstructure:"baud_rate" yaml:"baud_rate"`                 // Serial communication baud rate (for NMEA mode)
	GPSDHost        string        `mapstructure:"gpsd_host" yaml:"gpsd_host"`                 // GPSD host address (for gpsd mode)
	GPSDPort        string        `mapstructure:"gpsd_port" yaml:"gpsd_port"`                 // GPSD port (for gpsd mode)
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout"`                     // Timeout for GPS fix acquisition
	ManualLatitude  float64       `mapstructure:"manual_latitude" yaml:"manual_latitude"`     // Manual latitude in decimal degrees
	ManualLongitude float64       `mapstructure:"manual_longitude" yaml:"manual_longitude"`   // Manual longitude in decimal degrees
	ManualAltitude  float64       `mapstructure:"manual_altitude" yaml:"manual_altitude"`     // Manual altitude in meters
}

// CatalogConfig contains the session database location
type CatalogConfig struct {
	Path string `mapstructure:"path" yaml:"path"` // SQLite file ("" = disabled)
}

// LoggingConfig contains logging configuration parameters
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"` // Log level (debug, info, warn, error)
	File  string `mapstructure:"file" yaml:"file"`   // Log file path ("" = stderr only)
}

// DefaultConfig returns a configuration with sensible default values
func DefaultConfig() *Config {
	return &Config{
		SDR: SDRConfig{
			Frequency:  101000000, // 101 MHz broadcast FM
			SampleRate: 2000000,   // 2 MSps
		},
		Spectrum: SpectrumConfig{
			Width:      1024,
			Average:    64,
			Decimation: 1,
			Window:     "none",
		},
		Capture: CaptureConfig{
			BatchSize:      64,
			MarkerInterval: 60 * time.Second,
			MarkerAlign:    true,
			StartDelay:     4 * time.Second,
			SaveWaterfall:  true,
		},
		Output: OutputConfig{
			Dir: ".",
		},
		GPS: GPSConfig{
			Mode:     "none",
			Port:     "/dev/ttyUSB0",   // Common USB GPS device path
			BaudRate: 9600,             // Standard NMEA baud rate
			GPSDHost: "localhost",      // Default gpsd host
			GPSDPort: "2947",           // Default gpsd port
			Timeout:  30 * time.Second, // 30 second GPS fix timeout
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SpanMode reports whether the session sweeps several sub-bands
func (c *Config) SpanMode() bool {
	return c.SDR.SpanLow > 0 && c.SDR.SpanHigh > c.SDR.SpanLow
}

// Validate checks option ranges and that all times parse
func (c *Config) Validate() error {
	var errs []error
	if c.SDR.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate must be positive, got %.0f", c.SDR.SampleRate))
	}
	if !c.SpanMode() && c.SDR.Frequency <= 0 && len(c.Capture.Batch) == 0 {
		errs = append(errs, fmt.Errorf("frequency must be positive, got %.0f", c.SDR.Frequency))
	}
	if c.SDR.SpanLow != 0 && c.SDR.SpanHigh <= c.SDR.SpanLow {
		errs = append(errs, fmt.Errorf("span high %.0f must exceed span low %.0f", c.SDR.SpanHigh, c.SDR.SpanLow))
	}
	if c.Spectrum.Width < 16 {
		errs = append(errs, fmt.Errorf("image width must be at least 16, got %d", c.Spectrum.Width))
	}
	if c.Spectrum.Average < 1 {
		errs = append(errs, fmt.Errorf("average must be at least 1, got %d", c.Spectrum.Average))
	}
	if c.Spectrum.Decimation < 1 {
		errs = append(errs, fmt.Errorf("decimation must be at least 1, got %d", c.Spectrum.Decimation))
	}
	switch c.Spectrum.Window {
	case "", "none", "hann":
	default:
		errs = append(errs, fmt.Errorf("unknown window %q (must be 'none' or 'hann')", c.Spectrum.Window))
	}
	if c.Capture.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("batch size must be at least 1, got %d", c.Capture.BatchSize))
	}
	if c.Capture.MarkerInterval < 0 || c.Capture.RunLimit < 0 || c.Capture.StartDelay < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if !c.Capture.SaveWaterfall && !c.Capture.SaveIQ {
		errs = append(errs, errors.New("nothing to save: enable the waterfall or IQ output"))
	}
	now := time.Now()
	if _, _, err := ParseWindow(c.Capture.StartTime, c.Capture.EndTime, now); err != nil {
		errs = append(errs, err)
	}
	for i, b := range c.Capture.Batch {
		if _, _, err := ParseWindow(b.Start, b.End, now); err != nil {
			errs = append(errs, fmt.Errorf("batch entry %d: %w", i, err))
		}
		if b.Frequency <= 0 {
			errs = append(errs, fmt.Errorf("batch entry %d: frequency must be positive", i))
		}
	}
	switch c.GPS.Mode {
	case "", "none", "gpsd", "nmea":
	case "manual":
		if c.GPS.ManualLatitude < -90 || c.GPS.ManualLatitude > 90 {
			errs = append(errs, fmt.Errorf("invalid latitude: %.8f (must be between -90 and 90 degrees)", c.GPS.ManualLatitude))
		}
		if c.GPS.ManualLongitude < -180 || c.GPS.ManualLongitude > 180 {
			errs = append(errs, fmt.Errorf("invalid longitude: %.8f (must be between -180 and 180 degrees)", c.GPS.ManualLongitude))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid GPS mode: %s (must be 'none', 'manual', 'nmea' or 'gpsd')", c.GPS.Mode))
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Logging.Level))
	}
	return errors.Join(errs...)
}

// ParseClock parses a wall-clock time. HH:MM and HH:MM:SS refer to today in
// the local zone relative to now; RFC3339 is taken as is. The empty string
// yields the zero time.
func ParseClock(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"15:04:05", "15:04"} {
		t, err := time.ParseInLocation(layout, s, now.Location())
		if err == nil {
			y, m, d := now.Date()
			return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, now.Location()), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q (use HH:MM, HH:MM:SS or RFC3339)", s)
}

// ParseWindow parses a start and end time pair. An HH:MM or HH:MM:SS end
// that is not after the start (or after now when no start is given) is
// moved to the next day, so 23:00 to 01:00 spans midnight. An RFC3339 end
// that is not after the start is an error.
func ParseWindow(start, end string, now time.Time) (time.Time, time.Time, error) {
	st, err := ParseClock(start, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	en, err := ParseClock(end, now)
	if err != nil || en.IsZero() {
		return st, en, err
	}

	ref := st
	if ref.IsZero() {
		ref = now
	}
	if en.After(ref) {
		return st, en, nil
	}
	if isClock(end) {
		return st, en.AddDate(0, 0, 1), nil
	}
	if !st.IsZero() {
		return time.Time{}, time.Time{}, fmt.Errorf("end %s is not after start %s", end, start)
	}
	return st, en, nil
}

func isClock(s string) bool {
	_, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	return err != nil
}

// ParseBatchEntry parses "frequency,start,end", e.g. "7100000,10:00,10:30"
func ParseBatchEntry(s string) (BatchEntry, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return BatchEntry{}, fmt.Errorf("invalid batch entry %q (use frequency,start,end)", s)
	}
	freq, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return BatchEntry{}, fmt.Errorf("invalid batch frequency %q: %w", parts[0], err)
	}
	return BatchEntry{
		Frequency: freq,
		Start:     strings.TrimSpace(parts[1]),
		End:       strings.TrimSpace(parts[2]),
	}, nil
}
