package chunk

import (
	"bufio"
	"context"
	"image"
	"image/draw"
	"image/jpeg"
	"os"
	"time"

	"go.uber.org/zap"

	"sdr-waterfall/internal/header"
	"sdr-waterfall/internal/spectrum"
)

// DefaultQuality is the JPEG quality used for chunk images
const DefaultQuality = 90

// WaterfallConfig describes the images a WaterfallWriter produces.
// SampleRate and Frequency describe the whole image: with N tracks side by
// side the rate is N times the per-track rate, not the device rate divided
// by N, and the frequency is the centre of all tracks.
type WaterfallConfig struct {
	BaseName    string        // Output path without index or extension
	Width       int           // Image width, all tracks included
	SampleRate  float64       // Rate covered by the full image width
	Frequency   int64         // Frequency shown at the ruler midpoint
	Quality     int           // JPEG quality, DefaultQuality if zero
	IdleTimeout time.Duration // Quiet period before a debug notice
}

// WaterfallWriter saves each received row batch as header plus rows
type WaterfallWriter struct {
	cfg    WaterfallConfig
	log    *zap.Logger
	header *image.RGBA
	next   int
}

// NewWaterfallWriter creates a writer for cfg
func NewWaterfallWriter(cfg WaterfallConfig, log *zap.Logger) *WaterfallWriter {
	if cfg.Quality == 0 {
		cfg.Quality = DefaultQuality
	}
	return &WaterfallWriter{
		cfg:    cfg,
		log:    log.With(zap.String("component", "waterfall-writer")),
		header: header.Render(cfg.Width, cfg.SampleRate, cfg.Frequency),
	}
}

// Run persists batches from in until the empty sentinel batch arrives and
// returns the number of chunks written.
func (w *WaterfallWriter) Run(ctx context.Context, in <-chan []spectrum.Row) int {
	saved := consume(ctx, in, func(b []spectrum.Row) int { return len(b) }, w.Write, w.cfg.IdleTimeout, w.log)
	w.log.Info("waterfall writer done", zap.Int("chunks", saved))
	return saved
}

// Write saves one batch as the next chunk. The index only advances when
// the file was written, keeping the sequence contiguous.
func (w *WaterfallWriter) Write(rows []spectrum.Row) error {
	name := Name(w.cfg.BaseName, w.next, ImageExt)
	img := w.compose(rows)

	f, err := os.Create(name)
	if err != nil {
		return &IOError{Op: "create", Path: name, Err: err}
	}
	bw := bufio.NewWriter(f)
	if err := jpeg.Encode(bw, img, &jpeg.Options{Quality: w.cfg.Quality}); err != nil {
		f.Close()
		os.Remove(name)
		return &IOError{Op: "encode", Path: name, Err: err}
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

	w.log.Debug("chunk saved", zap.String("file", name), zap.Int("rows", len(rows)))
	w.next++
	return nil
}

func (w *WaterfallWriter) compose(rows []spectrum.Row) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w.cfg.Width, header.Height+len(rows)))
	draw.Draw(img, w.header.Bounds(), w.header, image.Point{}, draw.Src)
	for y, row := range rows {
		PaintRow(img, header.Height+y, row)
	}
	return img
}

// PaintRow copies row into line y of img
func PaintRow(img *image.RGBA, y int, row spectrum.Row) {
	width := img.Bounds().Dx()
	o := img.PixOffset(0, y)
	for x := 0; x < len(row) && x < width; x++ {
		p := row[x]
		img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = p[0], p[1], p[2], 255
		o += 4
	}
}
