package header

import (
	"math"
	"testing"
)

func TestLayoutCenterLabel(t *testing.T) {
	l := NewLayout(1024, 2000000, 100500000)

	label, ok := l.Nearest(512)
	if !ok {
		t.Fatalf("Expected labels")
	}
	if label.Text != "100500" {
		t.Errorf("Expected centre label 100500, got %s", label.Text)
	}
	if label.X != 512 {
		t.Errorf("Expected centre label at x=512, got %f", label.X)
	}

	wantSpacing := float64(Step) * 1024 / 2000000
	if l.TickWidth != wantSpacing {
		t.Errorf("Expected tick width %f, got %f", wantSpacing, l.TickWidth)
	}
	for i := 1; i < len(l.Labels); i++ {
		if d := l.Labels[i].X - l.Labels[i-1].X; math.Abs(d-wantSpacing) > 1e-9 {
			t.Errorf("Labels %d and %d are %f apart, want %f", i-1, i, d, wantSpacing)
		}
	}
	if len(l.Labels) != 9 {
		t.Errorf("Expected 9 labels, got %d", len(l.Labels))
	}
	if len(l.Ticks) != 41 {
		t.Errorf("Expected 41 ticks, got %d", len(l.Ticks))
	}
}

func TestLayoutRemainderOffset(t *testing.T) {
	// 101.2 MHz is 300 kHz short of the next round step
	l := NewLayout(1024, 2000000, 101200000)
	if l.FreqOffset != 300000 {
		t.Fatalf("Expected 300 kHz offset, got %d", l.FreqOffset)
	}
	for _, lb := range l.Labels {
		if lb.Hz%Step != 0 {
			t.Errorf("Label %s is not on a round frequency", lb.Text)
		}
	}
	label, _ := l.Nearest(512 + l.Offset)
	if label.Text != "101500" {
		t.Errorf("Expected first round label 101500, got %s", label.Text)
	}
	wantOffset := 300000 * 1024 / 2000000.0
	if l.Offset != wantOffset {
		t.Errorf("Expected offset %f, got %f", wantOffset, l.Offset)
	}
}

func TestLayoutLowSampleRate(t *testing.T) {
	l := NewLayout(512, 250000, 7100000)
	if len(l.Labels) == 0 {
		t.Fatalf("Expected at least one label for a sample rate below the step")
	}
}

func TestRenderDimensions(t *testing.T) {
	img := Render(1024, 2000000, 100500000)
	b := img.Bounds()
	if b.Dx() != 1024 || b.Dy() != Height {
		t.Fatalf("Unexpected header size %dx%d", b.Dx(), b.Dy())
	}

	// Divider row is solid
	for x := 0; x < 1024; x++ {
		if r, _, _, _ := img.At(x, Divider).RGBA(); r>>8 != majorGray {
			t.Fatalf("Divider pixel %d has value %d", x, r>>8)
		}
	}

	// Major tick at the centre, minor tick one fifth of a step to the right
	if r, _, _, _ := img.At(512, TickTop).RGBA(); r>>8 != majorGray {
		t.Errorf("Expected major tick at centre, got %d", r>>8)
	}
	minorX := 512 + int(tickWidth(1024, 2000000)/Minor)
	if r, _, _, _ := img.At(minorX, TickTop).RGBA(); r>>8 != minorGray {
		t.Errorf("Expected minor tick at %d, got %d", minorX, r>>8)
	}
}

func tickWidth(width int, sampleRate float64) float64 {
	return Step * float64(width) / sampleRate
}
