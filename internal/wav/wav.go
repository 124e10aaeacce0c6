// Package wav reads and writes the stereo PCM RIFF container used for
// assembled IQ recordings. I is stored in the left channel and Q in the right.
package wav

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrBadFormat is returned for files that are not stereo PCM WAVE data
var ErrBadFormat = errors.New("bad wave format")

const (
	pcmFormat = 1
	fmtSize   = 16
	// headerSize is the byte length of the RIFF, fmt and data headers
	headerSize = 44
)

type riffChunk struct {
	ID     [4]byte
	Size   uint32
	Format [4]byte
}

type fmtChunk struct {
	ID            [4]byte
	Size          uint32
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

type chunkHeader struct {
	ID   [4]byte
	Size uint32
}

// Header describes a recording. Samples counts individual channel values,
// so a stereo file holds Samples/2 frames.
type Header struct {
	SampleRate    uint32
	Channels      uint16
	BitsPerSample uint16
	Samples       uint32
}

// DataSize returns the payload length in bytes
func (h Header) DataSize() uint32 {
	return h.Samples * uint32(h.BitsPerSample) / 8
}

// Frames returns the number of complete multi-channel frames
func (h Header) Frames() uint32 {
	if h.Channels == 0 {
		return 0
	}
	return h.Samples / uint32(h.Channels)
}

// Duration returns the recording length in seconds
func (h Header) Duration() float64 {
	if h.SampleRate == 0 {
		return 0
	}
	return float64(h.Frames()) / float64(h.SampleRate)
}

// WriteTo writes the 44 byte canonical header
func (h Header) WriteTo(w io.Writer) (int64, error) {
	size := h.DataSize()
	blockAlign := h.Channels * h.BitsPerSample / 8
	chunks := []any{
		riffChunk{ID: [4]byte{'R', 'I', 'F', 'F'}, Size: 4 + (8 + fmtSize) + (8 + size), Format: [4]byte{'W', 'A', 'V', 'E'}},
		fmtChunk{
			ID:            [4]byte{'f', 'm', 't', ' '},
			Size:          fmtSize,
			AudioFormat:   pcmFormat,
			Channels:      h.Channels,
			SampleRate:    h.SampleRate,
			ByteRate:      h.SampleRate * uint32(blockAlign),
			BlockAlign:    blockAlign,
			BitsPerSample: h.BitsPerSample,
		},
		chunkHeader{ID: [4]byte{'d', 'a', 't', 'a'}, Size: size},
	}
	for _, c := range chunks {
		if err := binary.Write(w, binary.LittleEndian, c); err != nil {
			return 0, err
		}
	}
	return headerSize, nil
}

// ReadHeader parses a RIFF header and leaves r positioned at the payload.
// Chunks other than fmt and data are skipped.
func ReadHeader(r io.Reader) (Header, error) {
	var rc riffChunk
	if err := binary.Read(r, binary.LittleEndian, &rc); err != nil {
		return Header{}, err
	}
	if string(rc.ID[:]) != "RIFF" || string(rc.Format[:]) != "WAVE" {
		return Header{}, ErrBadFormat
	}

	var h Header
	haveFmt := false
	for {
		var ch chunkHeader
		if err := binary.Read(r, binary.LittleEndian, &ch); err != nil {
			return Header{}, err
		}
		switch string(ch.ID[:]) {
		case "fmt ":
			body := struct {
				AudioFormat   uint16
				Channels      uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}{}
			if err := binary.Read(r, binary.LittleEndian, &body); err != nil {
				return Header{}, err
			}
			if body.AudioFormat != pcmFormat {
				return Header{}, ErrBadFormat
			}
			if extra := int64(ch.Size) - fmtSize; extra > 0 {
				if _, err := io.CopyN(io.Discard, r, extra); err != nil {
					return Header{}, err
				}
			}
			h.Channels = body.Channels
			h.SampleRate = body.SampleRate
			h.BitsPerSample = body.BitsPerSample
			haveFmt = true
		case "data":
			if !haveFmt || h.BitsPerSample == 0 {
				return Header{}, ErrBadFormat
			}
			h.Samples = ch.Size / (uint32(h.BitsPerSample) / 8)
			return h, nil
		default:
			if _, err := io.CopyN(io.Discard, r, int64(ch.Size+ch.Size&1)); err != nil {
				return Header{}, err
			}
		}
	}
}

// Writer streams PCM payload after a placeholder header and patches the
// declared length on Close.
type Writer struct {
	f       *os.File
	w       *bufio.Writer
	header  Header
	written uint64
}

// Create opens path for a stereo recording with the given sample format
func Create(path string, sampleRate uint32, bitsPerSample uint16) (*Writer, error) {
	if sampleRate == 0 || (bitsPerSample != 8 && bitsPerSample != 16) {
		return nil, ErrBadFormat
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create wave file: %w", err)
	}
	ww := &Writer{
		f:      f,
		w:      bufio.NewWriterSize(f, 1<<16),
		header: Header{SampleRate: sampleRate, Channels: 2, BitsPerSample: bitsPerSample},
	}
	if _, err := ww.header.WriteTo(ww.w); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write wave header: %w", err)
	}
	return ww, nil
}

// Write appends raw payload bytes
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.written += uint64(n)
	return n, err
}

// WriteSamples appends 16-bit values little endian
func (w *Writer) WriteSamples(samples []int16) error {
	if w.header.BitsPerSample != 16 {
		return ErrBadFormat
	}
	buf := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}
	_, err := w.Write(buf)
	return err
}

// Header returns the header as it will be written on Close
func (w *Writer) Header() Header {
	h := w.header
	h.Samples = uint32(w.written / uint64(h.BitsPerSample/8))
	return h
}

// Close flushes the payload and rewrites the header with the final length
func (w *Writer) Close() error {
	if err := w.w.Flush(); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to flush wave payload: %w", err)
	}
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to seek wave header: %w", err)
	}
	if _, err := w.Header().WriteTo(w.f); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to patch wave header: %w", err)
	}
	return w.f.Close()
}

// Reader reads interleaved 16-bit frames from a stereo recording
type Reader struct {
	Header
	f *os.File
	r *bufio.Reader
}

// Open opens a 16-bit stereo recording for reading
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open wave file: %w", err)
	}
	br := bufio.NewReaderSize(f, 1<<16)
	h, err := ReadHeader(br)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read wave header: %w", err)
	}
	if h.Channels != 2 || h.BitsPerSample != 16 {
		f.Close()
		return nil, fmt.Errorf("%d channel %d-bit data: %w", h.Channels, h.BitsPerSample, ErrBadFormat)
	}
	return &Reader{Header: h, f: f, r: br}, nil
}

// ReadFrames fills dst with up to len(dst)/2 frames of I/Q values and
// returns the number of values read. io.EOF is returned once no complete
// frame remains.
func (r *Reader) ReadFrames(dst []int16) (int, error) {
	dst = dst[:len(dst)&^1]
	buf := make([]byte, 2*len(dst))
	n, err := io.ReadFull(r.r, buf)
	n = n &^ 3
	for i := 0; i < n/2; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(buf[2*i:]))
	}
	if n == 0 {
		if err == nil || errors.Is(err, io.ErrUnexpectedEOF) {
			err = io.EOF
		}
		return 0, err
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		err = nil
	}
	return n / 2, err
}

// Close closes the underlying file
func (r *Reader) Close() error {
	return r.f.Close()
}
