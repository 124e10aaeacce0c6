package source

import (
	"errors"
	"testing"
)

type missingDriver struct{}

func (missingDriver) ListDevices() ([]DeviceInfo, error) { return nil, nil }
func (missingDriver) Open(string) (Source, error)        { return nil, ErrNoDevice }

func TestBufferDecimate(t *testing.T) {
	b := Buffer{Samples: []int16{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, Bits: 16}

	d := b.Decimate(2)
	want := []int16{0, 1, 4, 5, 8, 9}
	if len(d.Samples) != len(want) {
		t.Fatalf("Expected %d values, got %d", len(want), len(d.Samples))
	}
	for i := range want {
		if d.Samples[i] != want[i] {
			t.Errorf("Value %d: expected %d, got %d", i, want[i], d.Samples[i])
		}
	}

	if got := b.Decimate(1); len(got.Samples) != len(b.Samples) {
		t.Errorf("Factor 1 should keep all samples")
	}
}

func TestBufferComplex(t *testing.T) {
	b := Buffer{Samples: []int16{3, -4, 7, 8}, Bits: 8}
	c := b.Complex()
	if len(c) != 2 || c[0] != complex(3, -4) || c[1] != complex(7, 8) {
		t.Fatalf("Unexpected complex conversion: %v", c)
	}
}

func TestParseGains(t *testing.T) {
	gains, bad := ParseGains("IFGR:40; RFGR:4;broken;LNA:x")
	if len(gains) != 2 {
		t.Fatalf("Expected 2 gains, got %d", len(gains))
	}
	if gains[0].Name != "IFGR" || gains[0].Value != 40 {
		t.Errorf("Unexpected first gain: %+v", gains[0])
	}
	if gains[1].Name != "RFGR" || gains[1].Value != 4 {
		t.Errorf("Unexpected second gain: %+v", gains[1])
	}
	if len(bad) != 2 {
		t.Errorf("Expected 2 malformed entries, got %v", bad)
	}
}

func TestSelectFallback(t *testing.T) {
	if _, err := Select(missingDriver{}, "", false); !errors.Is(err, ErrNoDevice) {
		t.Fatalf("Expected ErrNoDevice without fallback, got %v", err)
	}

	src, err := Select(missingDriver{}, "", true)
	if err != nil {
		t.Fatalf("Fallback should succeed: %v", err)
	}
	if src.Name() != SyntheticSelector {
		t.Errorf("Expected synthetic source, got %s", src.Name())
	}
}

func TestSyntheticRange(t *testing.T) {
	s := NewSynthetic()
	s.Interval = 0
	buf, err := s.ReadStream()
	if err != nil {
		t.Fatalf("ReadStream failed: %v", err)
	}
	if buf.Bits != 16 || len(buf.Samples) != syntheticValues {
		t.Fatalf("Unexpected buffer shape: bits=%d len=%d", buf.Bits, len(buf.Samples))
	}
	for _, v := range buf.Samples {
		if v < -16384 || v >= 16384 {
			t.Fatalf("Sample %d out of range", v)
		}
	}
}
