package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
	if cfg.SpanMode() {
		t.Errorf("Default config should not be in span mode")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"sample rate", func(c *Config) { c.SDR.SampleRate = 0 }, "sample rate"},
		{"average", func(c *Config) { c.Spectrum.Average = 0 }, "average"},
		{"decimation", func(c *Config) { c.Spectrum.Decimation = 0 }, "decimation"},
		{"window", func(c *Config) { c.Spectrum.Window = "kaiser" }, "window"},
		{"span", func(c *Config) { c.SDR.SpanLow, c.SDR.SpanHigh = 200e6, 100e6 }, "span"},
		{"start time", func(c *Config) { c.Capture.StartTime = "25:99" }, "invalid time"},
		{"outputs", func(c *Config) { c.Capture.SaveWaterfall = false }, "nothing to save"},
		{"gps", func(c *Config) { c.GPS.Mode = "glonass" }, "GPS mode"},
		{"batch order", func(c *Config) {
			c.Capture.Batch = []BatchEntry{{Frequency: 7e6, Start: "2024-05-01T10:30:00Z", End: "2024-05-01T10:00:00Z"}}
		}, "not after"},
		{"window order", func(c *Config) {
			c.Capture.StartTime, c.Capture.EndTime = "2024-05-01T10:30:00Z", "2024-05-01T10:30:00Z"
		}, "not after"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)

	got, err := ParseClock("10:30", now)
	if err != nil {
		t.Fatalf("ParseClock failed: %v", err)
	}
	if want := time.Date(2024, 5, 1, 10, 30, 0, 0, time.Local); !got.Equal(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	got, err = ParseClock("08:15:05", now)
	if err != nil || got.Hour() != 8 || got.Second() != 5 {
		t.Errorf("Unexpected HH:MM:SS parse %v, %v", got, err)
	}

	zero, err := ParseClock("", now)
	if err != nil || !zero.IsZero() {
		t.Errorf("Empty time should be zero, got %v, %v", zero, err)
	}

	if _, err := ParseClock("2024-05-01T10:00:00Z", now); err != nil {
		t.Errorf("RFC3339 should parse: %v", err)
	}
}

func TestParseWindowOvernight(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.Local)
	tests := []struct {
		name       string
		start, end string
		wantStart  time.Time
		wantEnd    time.Time
	}{
		{"same day", "10:00", "11:00",
			time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local), time.Date(2024, 5, 1, 11, 0, 0, 0, time.Local)},
		{"across midnight", "23:00", "01:00",
			time.Date(2024, 5, 1, 23, 0, 0, 0, time.Local), time.Date(2024, 5, 2, 1, 0, 0, 0, time.Local)},
		{"equal times", "10:00", "10:00",
			time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local), time.Date(2024, 5, 2, 10, 0, 0, 0, time.Local)},
		{"end only, already past", "", "08:00",
			time.Time{}, time.Date(2024, 5, 2, 8, 0, 0, 0, time.Local)},
		{"end only, later today", "", "12:00",
			time.Time{}, time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := ParseWindow(tt.start, tt.end, now)
			if err != nil {
				t.Fatalf("ParseWindow failed: %v", err)
			}
			if !start.Equal(tt.wantStart) || !end.Equal(tt.wantEnd) {
				t.Errorf("Expected %v - %v, got %v - %v", tt.wantStart, tt.wantEnd, start, end)
			}
			if !end.After(start) {
				t.Errorf("End %v is not after start %v", end, start)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.Capture.StartTime, cfg.Capture.EndTime = "23:00", "01:00"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Overnight window should validate, got %v", err)
	}
}

func TestParseBatchEntry(t *testing.T) {
	e, err := ParseBatchEntry("7100000, 10:00, 10:30")
	if err != nil {
		t.Fatalf("ParseBatchEntry failed: %v", err)
	}
	if e.Frequency != 7100000 || e.Start != "10:00" || e.End != "10:30" {
		t.Errorf("Unexpected entry %+v", e)
	}
	if _, err := ParseBatchEntry("7100000,10:00"); err == nil {
		t.Errorf("Expected error for short entry")
	}
}
