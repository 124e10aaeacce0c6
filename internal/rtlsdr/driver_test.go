package rtlsdr

import "testing"

func TestToSignedRange(t *testing.T) {
	got := toSigned([]byte{0, 127, 128, 255})
	want := []int16{-128, -1, 0, 127}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Byte %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}
