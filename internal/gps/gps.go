// Package gps determines the receiver position stamped into session records.
// Positions come from fixed coordinates, an NMEA serial receiver, or gpsd.
package gps

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/stratoberry/go-gpsd"
	"go.bug.st/serial"
	"go.uber.org/zap"

	"sdr-waterfall/internal/config"
)

// ErrNoFix is returned when no position arrives in time
var ErrNoFix = errors.New("no GPS fix")

// Position represents one receiver location fix
type Position struct {
	Latitude   float64
	Longitude  float64
	Altitude   float64
	Timestamp  time.Time
	FixQuality int // 0 = invalid, 1 = GPS, 2 = DGPS, ...
	Satellites int
	Source     string // "manual", "nmea" or "gpsd"
}

// Receiver is a running position source
type Receiver interface {
	Start() error
	WaitForFix(ctx context.Context) (*Position, error)
	Close() error
}

// Locate returns the receiver position described by cfg. It returns nil
// without error when positioning is disabled.
func Locate(ctx context.Context, cfg config.GPSConfig, log *zap.Logger) (*Position, error) {
	log = log.With(zap.String("component", "gps"))

	var r Receiver
	switch cfg.Mode {
	case "", "none":
		return nil, nil
	case "manual":
		return &Position{
			Latitude:   cfg.ManualLatitude,
			Longitude:  cfg.ManualLongitude,
			Altitude:   cfg.ManualAltitude,
			Timestamp:  time.Now(),
			FixQuality: 7,
			Source:     "manual",
		}, nil
	case "nmea":
		n, err := OpenNMEA(cfg.Port, cfg.BaudRate, log)
		if err != nil {
			return nil, err
		}
		r = n
	case "gpsd":
		r = NewGPSD(cfg.GPSDHost, cfg.GPSDPort, log)
	default:
		return nil, fmt.Errorf("invalid GPS mode: %s", cfg.Mode)
	}
	defer r.Close()

	if err := r.Start(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	return r.WaitForFix(ctx)
}

// fixes holds the latest position and wakes waiters on new fixes
type fixes struct {
	mu       sync.RWMutex
	position Position
	fixChan  chan Position
}

func (f *fixes) publish(pos Position) {
	f.mu.Lock()
	f.position = pos
	f.mu.Unlock()

	// Drop if nobody is waiting; the latest position is kept above
	select {
	case f.fixChan <- pos:
	default:
	}
}

func (f *fixes) current() Position {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.position
}

func (f *fixes) wait(ctx context.Context) (*Position, error) {
	if pos := f.current(); pos.FixQuality > 0 {
		return &pos, nil
	}
	for {
		select {
		case pos := <-f.fixChan:
			if pos.FixQuality > 0 {
				return &pos, nil
			}
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrNoFix, ctx.Err())
		}
	}
}

// NMEA reads GGA and RMC sentences from a serial GPS receiver
type NMEA struct {
	port io.ReadCloser
	log  *zap.Logger
	fixes
}

// OpenNMEA opens the serial port at baudRate, 8N1
func OpenNMEA(portName string, baudRate int, log *zap.Logger) (*NMEA, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open GPS port %s: %w", portName, err)
	}
	return newNMEA(port, log), nil
}

func newNMEA(r io.ReadCloser, log *zap.Logger) *NMEA {
	return &NMEA{port: r, log: log, fixes: fixes{fixChan: make(chan Position, 10)}}
}

// Start begins reading sentences in the background
func (n *NMEA) Start() error {
	go n.readLoop()
	return nil
}

func (n *NMEA) readLoop() {
	scanner := bufio.NewScanner(n.port)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] != '$' {
			continue
		}
		sentence, err := nmea.Parse(line)
		if err != nil {
			n.log.Debug("NMEA parse error", zap.String("line", line), zap.Error(err))
			continue
		}
		n.handle(sentence)
	}
	if err := scanner.Err(); err != nil {
		n.log.Debug("NMEA read loop ended", zap.Error(err))
	}
}

func (n *NMEA) handle(sentence nmea.Sentence) {
	switch s := sentence.(type) {
	case nmea.GGA:
		quality := ggaQuality(s.FixQuality)
		if quality == 0 {
			return
		}
		n.publish(Position{
			Latitude:   s.Latitude,
			Longitude:  s.Longitude,
			Altitude:   s.Altitude,
			Timestamp:  time.Now(),
			FixQuality: quality,
			Satellites: int(s.NumSatellites),
			Source:     "nmea",
		})
	case nmea.RMC:
		// RMC refines an existing GGA fix; it carries no altitude or quality
		cur := n.current()
		if s.Validity != "A" || cur.FixQuality == 0 {
			return
		}
		cur.Latitude, cur.Longitude = s.Latitude, s.Longitude
		if s.Time.Valid {
			now := time.Now().UTC()
			cur.Timestamp = time.Date(now.Year(), now.Month(), now.Day(),
				s.Time.Hour, s.Time.Minute, s.Time.Second, int(s.Time.Millisecond)*1000000, time.UTC)
		}
		n.mu.Lock()
		n.position = cur
		n.mu.Unlock()
	}
}

func ggaQuality(q string) int {
	switch q {
	case nmea.GPS:
		return 1
	case nmea.DGPS:
		return 2
	case nmea.PPS:
		return 3
	case nmea.RTK:
		return 4
	case nmea.FRTK:
		return 5
	case nmea.Manual:
		return 7
	default:
		return 0
	}
}

// WaitForFix blocks until a valid fix arrives or ctx ends
func (n *NMEA) WaitForFix(ctx context.Context) (*Position, error) {
	return n.wait(ctx)
}

// Close closes the serial port
func (n *NMEA) Close() error {
	if n.port != nil {
		return n.port.Close()
	}
	return nil
}

// GPSD reads TPV and SKY reports from a gpsd daemon
type GPSD struct {
	address string
	session *gpsd.Session
	log     *zap.Logger
	fixes
}

// NewGPSD creates a client for gpsd at host:port
func NewGPSD(host, port string, log *zap.Logger) *GPSD {
	return &GPSD{address: fmt.Sprintf("%s:%s", host, port), log: log, fixes: fixes{fixChan: make(chan Position, 10)}}
}

// Start connects and subscribes to position reports
func (g *GPSD) Start() error {
	session, err := gpsd.Dial(g.address)
	if err != nil {
		return fmt.Errorf("failed to connect to gpsd at %s: %w", g.address, err)
	}
	g.session = session
	session.AddFilter("TPV", g.handleTPV)
	session.AddFilter("SKY", g.handleSKY)
	session.Watch()
	return nil
}

func (g *GPSD) handleTPV(r interface{}) {
	tpv, ok := r.(*gpsd.TPVReport)
	if !ok {
		return
	}
	// Mode 2 and 3 are 2D and 3D fixes
	if tpv.Mode < 2 || (tpv.Lat == 0 && tpv.Lon == 0) {
		return
	}
	g.publish(Position{
		Latitude:   tpv.Lat,
		Longitude:  tpv.Lon,
		Altitude:   tpv.Alt,
		Timestamp:  tpv.Time,
		FixQuality: 1,
		Satellites: g.current().Satellites,
		Source:     "gpsd",
	})
}

func (g *GPSD) handleSKY(r interface{}) {
	sky, ok := r.(*gpsd.SKYReport)
	if !ok {
		return
	}
	g.mu.Lock()
	g.position.Satellites = len(sky.Satellites)
	g.mu.Unlock()
}

// WaitForFix blocks until a valid fix arrives or ctx ends
func (g *GPSD) WaitForFix(ctx context.Context) (*Position, error) {
	return g.wait(ctx)
}

// Close ends the gpsd session
func (g *GPSD) Close() error {
	if g.session != nil {
		g.session.Close()
	}
	return nil
}
