//go:build !rtlsdr

package rtlsdr

import (
	"errors"
	"testing"

	"sdr-waterfall/internal/source"
)

func TestStubDriverHasNoDevices(t *testing.T) {
	d := NewDriver()

	devices, err := d.ListDevices()
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("Expected no devices, got %d", len(devices))
	}

	if _, err := d.Open(""); !errors.Is(err, source.ErrNoDevice) {
		t.Errorf("Expected ErrNoDevice, got %v", err)
	}

	src, err := source.Select(d, "", true)
	if err != nil {
		t.Fatalf("Select with fallback failed: %v", err)
	}
	if src.Name() != source.SyntheticSelector {
		t.Errorf("Expected synthetic fallback, got %s", src.Name())
	}
}
