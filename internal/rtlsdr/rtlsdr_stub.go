//go:build !rtlsdr

// Package rtlsdr provides a stub driver when RTL-SDR support is not compiled in.
// This file is compiled when the "rtlsdr" build tag is NOT specified
package rtlsdr

import (
	"sdr-waterfall/internal/source"
)

// Driver reports no hardware; callers fall back to the synthetic source
type Driver struct{}

// NewDriver returns the stub driver
func NewDriver() source.Driver {
	return Driver{}
}

// ListDevices always returns an empty list
func (Driver) ListDevices() ([]source.DeviceInfo, error) {
	return nil, nil
}

// Open always fails with source.ErrNoDevice
func (Driver) Open(selector string) (source.Source, error) {
	return nil, source.ErrNoDevice
}
