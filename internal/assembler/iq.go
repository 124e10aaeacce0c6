package assembler

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"sdr-waterfall/internal/chunk"
	"sdr-waterfall/internal/wav"
)

// Upscale8Bit widens 8-bit values to the 16-bit range of the recording
const Upscale8Bit = 32

// IQResult describes an assembled recording
type IQResult struct {
	Path    string
	Header  wav.Header
	Chunks  int
	Skipped int
}

// AssembleIQ concatenates IQ chunks 0..count-1 of base into base.wav,
// removing each chunk once it has been copied. Chunks are streamed so
// memory use does not grow with count. The recording is always 16-bit;
// 8-bit chunks are scaled up by Upscale8Bit.
func (a *Assembler) AssembleIQ(base string, count int, sampleRate uint32, bits int) (*IQResult, error) {
	res := &IQResult{Path: base + WaveExt}

	w, err := wav.Create(res.Path, sampleRate, 16)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", res.Path, err)
	}

	for i := 0; i < count; i++ {
		path := chunk.Name(base, i, chunk.IQExt)
		if err := appendChunk(w, path, bits); err != nil {
			a.log.Warn("chunk ignored", zap.Error(&chunk.IOError{Op: "append", Path: path, Err: err}))
			res.Skipped++
			continue
		}
		res.Chunks++
		if err := chunk.Remove(path); err != nil {
			a.log.Warn("chunk not removed", zap.Error(err))
		}
	}

	res.Header = w.Header()
	if err := w.Close(); err != nil {
		return nil, err
	}
	if res.Chunks == 0 {
		os.Remove(res.Path)
		return nil, fmt.Errorf("%s: %w", base, ErrNoChunks)
	}

	a.log.Info("iq assembled", zap.String("file", res.Path),
		zap.Int("chunks", res.Chunks), zap.Uint32("samples", res.Header.Samples))
	return res, nil
}

func appendChunk(w *wav.Writer, path string, bits int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if bits != 8 {
		_, err := io.Copy(w, bufio.NewReader(f))
		return err
	}

	in := make([]byte, 1<<15)
	out := make([]byte, 2*len(in))
	r := bufio.NewReader(f)
	for {
		n, err := r.Read(in)
		for i := 0; i < n; i++ {
			binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(int8(in[i]))*Upscale8Bit))
		}
		if n > 0 {
			if _, werr := w.Write(out[:2*n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
