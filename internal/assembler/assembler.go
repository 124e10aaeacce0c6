// Package assembler stitches chunk files written during a capture into the
// final waterfall image and IQ recording, and renders offline spectrograms
// from existing recordings.
package assembler

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"os"

	"go.uber.org/zap"

	"sdr-waterfall/internal/chunk"
	"sdr-waterfall/internal/header"
)

// ErrNoChunks is returned when none of the expected chunks could be used
var ErrNoChunks = errors.New("no usable chunks")

// Output file extensions
const (
	ImageExt = ".jpg"
	WaveExt  = ".wav"
)

// ImageResult describes an assembled image
type ImageResult struct {
	Path    string
	Width   int
	Height  int
	Chunks  int // Chunks folded into the image
	Skipped int // Chunks that could not be loaded or did not fit
}

// Assembler combines chunk files into final artifacts
type Assembler struct {
	log     *zap.Logger
	quality int
}

// New creates an assembler logging to log
func New(log *zap.Logger) *Assembler {
	return &Assembler{
		log:     log.With(zap.String("component", "assembler")),
		quality: chunk.DefaultQuality,
	}
}

type imageChunk struct {
	path   string
	height int
}

// AssembleImages stacks chunks 0..count-1 of base into base.jpg. The first
// usable chunk keeps its header; later chunks have theirs cropped off.
// Chunks that fail to load or differ in width are skipped.
func (a *Assembler) AssembleImages(base string, count int, deleteOriginals bool) (*ImageResult, error) {
	res := &ImageResult{Path: base + ImageExt}

	// Size everything up front so the output is allocated once
	var parts []imageChunk
	total := 0
	for i := 0; i < count; i++ {
		path := chunk.Name(base, i, chunk.ImageExt)
		cfg, err := decodeConfig(path)
		if err != nil {
			a.log.Warn("chunk ignored", zap.Error(&chunk.IOError{Op: "load", Path: path, Err: err}))
			res.Skipped++
			continue
		}
		if res.Width == 0 {
			res.Width = cfg.Width
		}
		if cfg.Width != res.Width || cfg.Height <= header.Height {
			a.log.Warn("chunk ignored", zap.String("file", path),
				zap.Int("width", cfg.Width), zap.Int("height", cfg.Height))
			res.Skipped++
			continue
		}
		h := cfg.Height
		if len(parts) > 0 {
			h -= header.Height
		}
		parts = append(parts, imageChunk{path: path, height: h})
		total += h
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("%s: %w", base, ErrNoChunks)
	}

	out := image.NewRGBA(image.Rect(0, 0, res.Width, total))
	y := 0
	for i, p := range parts {
		img, err := decode(p.path)
		if err != nil {
			a.log.Warn("chunk ignored", zap.Error(&chunk.IOError{Op: "load", Path: p.path, Err: err}))
			res.Skipped++
			continue
		}
		src := img.Bounds().Min
		if i > 0 {
			src.Y += header.Height
		}
		draw.Draw(out, image.Rect(0, y, res.Width, y+p.height), img, src, draw.Src)
		y += p.height
		res.Chunks++
		a.log.Debug("chunk added", zap.String("file", p.path))
	}
	if y < total {
		out = out.SubImage(image.Rect(0, 0, res.Width, y)).(*image.RGBA)
	}
	res.Height = y

	if err := encode(res.Path, out, a.quality); err != nil {
		return nil, err
	}
	a.log.Info("image assembled", zap.String("file", res.Path),
		zap.Int("chunks", res.Chunks), zap.Int("height", res.Height))

	if deleteOriginals {
		for i := 0; i < count; i++ {
			if err := chunk.Remove(chunk.Name(base, i, chunk.ImageExt)); err != nil {
				a.log.Warn("chunk not removed", zap.Error(err))
			}
		}
	}
	return res, nil
}

func decodeConfig(path string) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, err
	}
	defer f.Close()
	return jpeg.DecodeConfig(f)
}

func decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return jpeg.Decode(f)
}

func encode(path string, img image.Image, quality int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: quality}); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
