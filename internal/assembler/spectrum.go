package assembler

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"

	"go.uber.org/zap"

	"sdr-waterfall/internal/chunk"
	"sdr-waterfall/internal/header"
	"sdr-waterfall/internal/source"
	"sdr-waterfall/internal/spectrum"
	"sdr-waterfall/internal/wav"
)

// MaxRows caps the height of an offline spectrogram
const MaxRows = 16384

// WaveToSpectrum renders a 16-bit stereo recording as a waterfall image.
// Each block of width frames produces one FFT line; average lines make one
// row. frequency is the centre shown on the ruler.
func (a *Assembler) WaveToSpectrum(input, output string, width, average int, frequency int64) (*ImageResult, error) {
	if average < 1 {
		average = 1
	}
	width = spectrum.NearestWidth(width)

	r, err := wav.Open(input)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	gen, err := spectrum.NewGenerator(width, 16, spectrum.WindowNone)
	if err != nil {
		return nil, err
	}

	rows := int(r.Frames()) / (width * average)
	if rows > MaxRows {
		rows = MaxRows
	}
	if rows == 0 {
		return nil, fmt.Errorf("%s is shorter than one row: %w", input, ErrNoChunks)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, header.Height+rows))
	hdr := header.Render(width, float64(r.SampleRate), frequency)
	draw.Draw(img, hdr.Bounds(), hdr, image.Point{}, draw.Src)

	acc := spectrum.NewAccumulator(width)
	block := make([]int16, 2*width)
	scale := spectrum.ScaleFor(16)
	done := 0
	for done < rows {
		n, err := r.ReadFrames(block)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", input, err)
		}
		buf := source.Buffer{Samples: block[:n], Bits: 16}
		acc.Add(gen.ComputeLine(buf.Complex()))
		if acc.Count() < average {
			continue
		}
		row := spectrum.MapToPixels(acc.Average(average), scale, spectrum.DefaultPalette)
		chunk.PaintRow(img, header.Height+done, row)
		done++
	}
	if done < rows {
		img = img.SubImage(image.Rect(0, 0, width, header.Height+done)).(*image.RGBA)
	}

	if err := encode(output, img, a.quality); err != nil {
		return nil, err
	}
	a.log.Info("spectrogram rendered", zap.String("input", input),
		zap.String("file", output), zap.Int("rows", done))
	return &ImageResult{Path: output, Width: width, Height: header.Height + done, Chunks: 1}, nil
}
