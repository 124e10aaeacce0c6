//go:build rtlsdr

// Package rtlsdr provides the RTL-SDR receiver driver for the capture pipeline.
// This file is only compiled when the "rtlsdr" build tag is specified
package rtlsdr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jpoirier/gortlsdr"

	"sdr-waterfall/internal/source"
)

// readLength is the number of bytes per ReadSync call (must be a multiple of 512)
const readLength = 32768

// Driver enumerates and opens RTL-SDR dongles
type Driver struct{}

// NewDriver returns the hardware RTL-SDR driver
func NewDriver() source.Driver {
	return Driver{}
}

// ListDevices returns information about all available RTL-SDR devices
func (Driver) ListDevices() ([]source.DeviceInfo, error) {
	count := rtlsdr.GetDeviceCount()
	devices := make([]source.DeviceInfo, 0, count)
	for i := 0; i < count; i++ {
		info := source.DeviceInfo{
			Index:  i,
			Driver: DriverName,
			Label:  rtlsdr.GetDeviceName(i),
		}
		// USB strings are optional, the device name is enough to list it
		if manufacturer, product, serial, err := rtlsdr.GetDeviceUsbStrings(i); err == nil {
			info.Label = fmt.Sprintf("%s %s", manufacturer, product)
			info.Serial = serial
		}
		devices = append(devices, info)
	}
	return devices, nil
}

// Open opens the dongle matching selector. Accepted selectors are "" or
// "rtlsdr" (first device), a numeric index, or "serial=<serial>".
func (d Driver) Open(selector string) (source.Source, error) {
	count := rtlsdr.GetDeviceCount()
	if count == 0 {
		return nil, source.ErrNoDevice
	}

	index, err := d.resolve(selector, count)
	if err != nil {
		return nil, err
	}

	dev, err := rtlsdr.Open(index)
	if err != nil {
		return nil, fmt.Errorf("failed to open RTL-SDR device %d: %w", index, err)
	}
	return &Device{dev: dev, index: index, buf: make([]byte, readLength)}, nil
}

func (Driver) resolve(selector string, count int) (int, error) {
	selector = strings.TrimPrefix(strings.TrimSpace(selector), DriverName)
	selector = strings.TrimPrefix(selector, ",")
	if selector == "" {
		return 0, nil
	}

	if serial, ok := strings.CutPrefix(selector, "serial="); ok {
		for i := 0; i < count; i++ {
			_, _, s, err := rtlsdr.GetDeviceUsbStrings(i)
			if err != nil {
				continue // Skip devices we can't query
			}
			if s == serial {
				return i, nil
			}
		}
		return 0, fmt.Errorf("serial %s: %w", serial, source.ErrNoDevice)
	}

	index, err := strconv.Atoi(selector)
	if err != nil || index < 0 || index >= count {
		return 0, fmt.Errorf("device %q (found %d devices): %w", selector, count, source.ErrNoDevice)
	}
	return index, nil
}

// Device is an opened RTL-SDR dongle
type Device struct {
	dev        *rtlsdr.Context
	index      int
	frequency  int
	sampleRate int
	bandwidth  int
	buf        []byte
}

func (d *Device) Name() string { return DriverName }

// Bits reports the dongle's native 8-bit component precision
func (d *Device) Bits() int { return 8 }

func (d *Device) SetSampleRate(rate float64) error {
	if err := d.dev.SetSampleRate(int(rate)); err != nil {
		return fmt.Errorf("failed to set sample rate to %.0f Hz: %w", rate, err)
	}
	d.sampleRate = int(rate)
	return nil
}

// SetBandwidth records the requested bandwidth; the tuner picks its own
// filter from the sample rate.
func (d *Device) SetBandwidth(bw float64) error {
	d.bandwidth = int(bw)
	return nil
}

func (d *Device) SetCenterFrequency(freq float64) error {
	if err := d.dev.SetCenterFreq(int(freq)); err != nil {
		return fmt.Errorf("failed to set frequency to %.0f Hz: %w", freq, err)
	}
	d.frequency = int(freq)
	return nil
}

// SetGain handles the "TUNER" stage (dB) and "AGC" (non-zero enables AGC)
func (d *Device) SetGain(name string, value float64) error {
	switch strings.ToUpper(name) {
	case "TUNER":
		// Manual gain mode must be enabled before setting a gain value
		if err := d.dev.SetTunerGainMode(true); err != nil {
			return fmt.Errorf("failed to enable manual gain: %w", err)
		}
		// Convert gain from dB to tenths of dB (RTL-SDR API requirement)
		if err := d.dev.SetTunerGain(int(value * 10)); err != nil {
			return fmt.Errorf("failed to set gain to %.1f dB: %w", value, err)
		}
		return nil
	case "AGC":
		if err := d.dev.SetTunerGainMode(value == 0); err != nil {
			return fmt.Errorf("failed to set AGC mode: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported gain stage %q", name)
	}
}

// StartStream resets the device buffer so reads start clean
func (d *Device) StartStream() error {
	if err := d.dev.ResetBuffer(); err != nil {
		return fmt.Errorf("failed to reset buffer: %w", err)
	}
	return nil
}

func (d *Device) StopStream() error { return nil }

// ReadStream reads one block and converts unsigned 8-bit pairs to signed values
func (d *Device) ReadStream() (source.Buffer, error) {
	n, err := d.dev.ReadSync(d.buf, len(d.buf))
	if err != nil {
		return source.Buffer{}, fmt.Errorf("failed to read samples: %w", err)
	}
	return source.Buffer{Samples: toSigned(d.buf[:n&^1]), Bits: 8}, nil
}

// Close properly closes the RTL-SDR device and releases resources
func (d *Device) Close() error {
	if d.dev != nil {
		return d.dev.Close()
	}
	return nil
}
