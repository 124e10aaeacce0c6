package source

import (
	"math/rand"
	"sync"
	"time"
)

// Synthetic block shape, matching a small 16-bit device read
const (
	syntheticValues = 4096
	syntheticRange  = 32768
)

// Synthetic produces uniformly distributed 16-bit noise
type Synthetic struct {
	// Interval is slept before each read to pace the stream
	Interval time.Duration

	mu         sync.Mutex
	rng        *rand.Rand
	sampleRate float64
	bandwidth  float64
	frequency  float64
	gains      map[string]float64
	streaming  bool
}

// NewSynthetic creates a synthetic source paced at 10ms per buffer
func NewSynthetic() *Synthetic {
	return &Synthetic{
		Interval: 10 * time.Millisecond,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		gains:    make(map[string]float64),
	}
}

func (s *Synthetic) Name() string { return SyntheticSelector }
func (s *Synthetic) Bits() int    { return 16 }

func (s *Synthetic) SetSampleRate(rate float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampleRate = rate
	return nil
}

func (s *Synthetic) SetBandwidth(bw float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bandwidth = bw
	return nil
}

func (s *Synthetic) SetCenterFrequency(freq float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frequency = freq
	return nil
}

// CenterFrequency returns the last frequency the source was tuned to
func (s *Synthetic) CenterFrequency() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frequency
}

func (s *Synthetic) SetGain(name string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gains[name] = value
	return nil
}

func (s *Synthetic) StartStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = true
	return nil
}

func (s *Synthetic) StopStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = false
	return nil
}

// ReadStream returns one buffer of values in [-16384, 16384)
func (s *Synthetic) ReadStream() (Buffer, error) {
	if s.Interval > 0 {
		time.Sleep(s.Interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int16, syntheticValues)
	for i := range out {
		out[i] = int16(s.rng.Intn(syntheticRange) - syntheticRange/2)
	}
	return Buffer{Samples: out, Bits: 16}, nil
}

func (s *Synthetic) Close() error {
	return s.StopStream()
}
