// Package spectrum turns complex sample blocks into calibrated FFT power
// lines and maps those lines to waterfall pixel rows.
package spectrum

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/floats"
)

// Window names accepted by NewGenerator
const (
	WindowNone = "none"
	WindowHann = "hann"
)

// NearestWidth returns the smallest power of two >= requested
func NearestWidth(requested int) int {
	w := 1
	for w < requested {
		w <<= 1
	}
	return w
}

// Generator computes spectral lines of a fixed width
type Generator struct {
	width  int
	bits   int
	window []float64 // nil means pass-through
}

// NewGenerator creates a generator for lines of exactly width bins from a
// source delivering bits-wide components.
func NewGenerator(width, bits int, windowName string) (*Generator, error) {
	if width <= 0 {
		return nil, fmt.Errorf("invalid line width %d", width)
	}
	g := &Generator{width: width, bits: bits}
	switch windowName {
	case "", WindowNone:
	case WindowHann:
		g.window = window.Hann(width)
	default:
		return nil, fmt.Errorf("unknown window %q", windowName)
	}
	return g, nil
}

// Width returns the number of bins per line
func (g *Generator) Width() int { return g.width }

// ComputeLine returns the orthonormal FFT magnitude of samples, truncated
// or zero padded to exactly Width bins. For 8-bit sources bin 0 is replaced
// by bin 1 to hide the DC spike.
func (g *Generator) ComputeLine(samples []complex128) []float64 {
	in := make([]complex128, g.width)
	copy(in, samples)
	if g.window != nil {
		for i, w := range g.window {
			in[i] *= complex(w, 0)
		}
	}

	out := fft.FFT(in)
	norm := 1 / math.Sqrt(float64(g.width))
	line := make([]float64, g.width)
	for i, v := range out {
		line[i] = cmplx.Abs(v) * norm
	}

	if g.bits == 8 && g.width > 1 {
		line[0] = line[1]
	}
	return line
}

// Accumulator averages a run of spectral lines
type Accumulator struct {
	sum   []float64
	count int
}

// NewAccumulator returns an empty accumulator for lines of width bins
func NewAccumulator(width int) *Accumulator {
	return &Accumulator{sum: make([]float64, width)}
}

// Add folds one line into the running sum
func (a *Accumulator) Add(line []float64) {
	floats.Add(a.sum, line)
	a.count++
}

// Count returns how many lines were added since the last reset
func (a *Accumulator) Count() int { return a.count }

// Average returns the mean line and resets the accumulator. The divisor
// is n, not the number of lines actually added.
func (a *Accumulator) Average(n int) []float64 {
	out := a.sum
	if n > 0 {
		floats.Scale(1/float64(n), out)
	}
	a.sum = make([]float64, len(out))
	a.count = 0
	return out
}
