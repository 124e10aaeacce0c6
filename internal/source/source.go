// Package source defines the sample source abstraction used by the capture
// pipeline along with a synthetic source for running without hardware.
package source

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoDevice is returned when no receiver matches the requested selector
var ErrNoDevice = errors.New("no receiver found")

// SyntheticSelector selects the synthetic random-sample source explicitly
const SyntheticSelector = "synthetic"

// DeviceInfo describes one receiver visible to a driver
type DeviceInfo struct {
	Index  int    // Driver-level device index
	Driver string // Driver name, e.g. "rtlsdr"
	Label  string // Human readable description
	Serial string // USB serial number, if known
}

// Buffer is one block of interleaved I/Q samples read from a source.
// Samples holds I0, Q0, I1, Q1, ... as signed integers; Bits is the
// component precision the device delivered (8 or 16).
type Buffer struct {
	Samples []int16
	Bits    int
}

// Len returns the number of complex samples in the buffer
func (b Buffer) Len() int {
	return len(b.Samples) / 2
}

// Complex converts the interleaved components into complex values
func (b Buffer) Complex() []complex128 {
	out := make([]complex128, b.Len())
	for i := range out {
		out[i] = complex(float64(b.Samples[2*i]), float64(b.Samples[2*i+1]))
	}
	return out
}

// Decimate keeps every factor-th complex sample. No filtering is applied.
func (b Buffer) Decimate(factor int) Buffer {
	if factor <= 1 {
		return b
	}
	n := (b.Len() + factor - 1) / factor
	out := make([]int16, 0, 2*n)
	for i := 0; i < b.Len(); i += factor {
		out = append(out, b.Samples[2*i], b.Samples[2*i+1])
	}
	return Buffer{Samples: out, Bits: b.Bits}
}

// Source is an opened receiver that streams sample buffers
type Source interface {
	Name() string
	Bits() int
	SetSampleRate(rate float64) error
	SetBandwidth(bw float64) error
	SetCenterFrequency(freq float64) error
	SetGain(name string, value float64) error
	StartStream() error
	StopStream() error
	ReadStream() (Buffer, error)
	Close() error
}

// Driver enumerates and opens receivers of one hardware family
type Driver interface {
	ListDevices() ([]DeviceInfo, error)
	Open(selector string) (Source, error)
}

// Gain is one named gain stage setting
type Gain struct {
	Name  string
	Value float64
}

// ParseGains parses a "name:value;name:value" gain string. Malformed
// entries are returned in bad and otherwise ignored.
func ParseGains(s string) (gains []Gain, bad []string) {
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, val, ok := strings.Cut(part, ":")
		if !ok || strings.TrimSpace(name) == "" {
			bad = append(bad, part)
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			bad = append(bad, part)
			continue
		}
		gains = append(gains, Gain{Name: strings.TrimSpace(name), Value: v})
	}
	return gains, bad
}

// DefaultGains returns the gain string used for a driver when none is configured
func DefaultGains(driver string) string {
	switch driver {
	case "sdrplay":
		return "IFGR:40;RFGR:4"
	case "rtlsdr":
		return "TUNER:30"
	default:
		return ""
	}
}

// Select opens the receiver named by selector. The synthetic source is
// used when the selector asks for it, or when no device is present and
// fallback is allowed.
func Select(d Driver, selector string, fallback bool) (Source, error) {
	if selector == SyntheticSelector {
		return NewSynthetic(), nil
	}
	if d == nil {
		if fallback {
			return NewSynthetic(), nil
		}
		return nil, ErrNoDevice
	}
	src, err := d.Open(selector)
	if err != nil {
		if fallback && errors.Is(err, ErrNoDevice) {
			return NewSynthetic(), nil
		}
		return nil, fmt.Errorf("failed to open receiver %q: %w", selector, err)
	}
	return src, nil
}
