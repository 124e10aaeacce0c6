package chunk

import (
	"bufio"
	"context"
	"encoding/binary"
	"os"
	"time"

	"go.uber.org/zap"

	"sdr-waterfall/internal/source"
)

// IQConfig describes the raw chunks an IQWriter produces
type IQConfig struct {
	BaseName    string
	IdleTimeout time.Duration
}

// IQWriter dumps each received buffer to its own headerless chunk file.
// 8-bit sources are stored one signed byte per value, others as 16-bit
// little endian.
type IQWriter struct {
	cfg  IQConfig
	log  *zap.Logger
	next int
}

// NewIQWriter creates a writer for cfg
func NewIQWriter(cfg IQConfig, log *zap.Logger) *IQWriter {
	return &IQWriter{
		cfg: cfg,
		log: log.With(zap.String("component", "iq-writer")),
	}
}

// Run persists buffers from in until an empty buffer arrives and returns
// the number of chunks written.
func (w *IQWriter) Run(ctx context.Context, in <-chan source.Buffer) int {
	saved := consume(ctx, in, func(b source.Buffer) int { return len(b.Samples) }, w.Write, w.cfg.IdleTimeout, w.log)
	w.log.Info("iq writer done", zap.Int("chunks", saved))
	return saved
}

// Write saves one buffer as the next chunk
func (w *IQWriter) Write(buf source.Buffer) error {
	name := Name(w.cfg.BaseName, w.next, IQExt)

	f, err := os.Create(name)
	if err != nil {
		return &IOError{Op: "create", Path: name, Err: err}
	}
	bw := bufio.NewWriter(f)
	if err := writeSamples(bw, buf); err != nil {
		f.Close()
		os.Remove(name)
		return &IOError{Op: "write", Path: name, Err: err}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(name)
		return &IOError{Op: "write", Path: name, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return &IOError{Op: "close", Path: name, Err: err}
	}

	w.next++
	return nil
}

func writeSamples(bw *bufio.Writer, buf source.Buffer) error {
	if buf.Bits == 8 {
		for _, s := range buf.Samples {
			if err := bw.WriteByte(byte(clamp8(s))); err != nil {
				return err
			}
		}
		return nil
	}
	return binary.Write(bw, binary.LittleEndian, buf.Samples)
}

// clamp8 saturates v to the int8 range so full-scale values keep their sign
func clamp8(v int16) int8 {
	switch {
	case v > 127:
		return 127
	case v < -128:
		return -128
	}
	return int8(v)
}

// BytesPerValue returns the stored width of one I or Q value
func BytesPerValue(bits int) int {
	if bits == 8 {
		return 1
	}
	return 2
}
