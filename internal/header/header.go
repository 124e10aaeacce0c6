// Package header draws the frequency ruler placed above every waterfall image.
package header

import (
	"image"
	"image/color"
	"image/draw"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Ruler geometry
const (
	Height    = 20     // Header height in pixels
	Step      = 500000 // Labelled tick spacing in Hz
	Minor     = 5      // Minor ticks per labelled step
	TickTop   = Height - 5
	LabelTop  = 3
	Divider   = Height - 1
	majorGray = 200
	minorGray = 100
)

// Tick is one ruler mark
type Tick struct {
	X     float64
	Major bool
}

// Label is one frequency label centred on X
type Label struct {
	X    float64
	Hz   int64
	Text string
}

// Layout is the computed ruler geometry for one image
type Layout struct {
	Width      int
	SampleRate float64
	Center     int64
	TickWidth  float64 // Pixels between labelled ticks
	Offset     float64 // Pixel offset from the midpoint to the first round frequency
	FreqOffset int64   // Hz from Center to the first round frequency above it
	Ticks      []Tick
	Labels     []Label
}

// NewLayout computes where ticks and labels fall so that center sits at
// the horizontal midpoint and labels land on round multiples of Step.
func NewLayout(width int, sampleRate float64, center int64) Layout {
	l := Layout{Width: width, SampleRate: sampleRate, Center: center}
	if sampleRate <= 0 || width <= 0 {
		return l
	}

	l.TickWidth = Step * float64(width) / sampleRate
	mid := float64(width) / 2
	cnt := int(sampleRate / Step)

	if rem := center % Step; rem != 0 {
		l.FreqOffset = Step - rem
	}
	l.Offset = float64(l.FreqOffset) * float64(width) / sampleRate

	for p := -Minor * cnt; p <= Minor*cnt; p++ {
		l.Ticks = append(l.Ticks, Tick{
			X:     mid + l.Offset + float64(p)*l.TickWidth/Minor,
			Major: p%Minor == 0,
		})
	}

	if cnt == 0 {
		cnt = 1
	}
	for p := -cnt; p <= cnt; p++ {
		hz := center + l.FreqOffset + int64(p)*Step
		l.Labels = append(l.Labels, Label{
			X:    mid + l.Offset + float64(p)*l.TickWidth,
			Hz:   hz,
			Text: strconv.FormatFloat(float64(hz)/1000, 'f', -1, 64),
		})
	}
	return l
}

// Nearest returns the label closest to pixel x
func (l Layout) Nearest(x float64) (Label, bool) {
	var best Label
	found := false
	for _, lb := range l.Labels {
		if !found || abs(lb.X-x) < abs(best.X-x) {
			best, found = lb, true
		}
	}
	return best, found
}

// Render draws the header image for the given geometry
func Render(width int, sampleRate float64, center int64) *image.RGBA {
	return NewLayout(width, sampleRate, center).Draw()
}

// Draw renders the layout onto a new black image of Height rows
func (l Layout) Draw() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, l.Width, Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	for _, t := range l.Ticks {
		c := gray(minorGray)
		if t.Major {
			c = gray(majorGray)
		}
		x := int(t.X)
		for y := TickTop; y < Height; y++ {
			img.Set(x, y, c)
		}
	}

	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(gray(majorGray)),
		Face: face,
	}
	ascent := face.Metrics().Ascent
	for _, lb := range l.Labels {
		w := d.MeasureString(lb.Text)
		d.Dot = fixed.Point26_6{
			X: fixed.Int26_6(lb.X*64) - w/2,
			Y: fixed.I(LabelTop) + ascent,
		}
		d.DrawString(lb.Text)
	}

	for x := 0; x < l.Width; x++ {
		img.Set(x, Divider, gray(majorGray))
	}
	return img
}

func gray(v uint8) color.RGBA {
	return color.RGBA{v, v, v, 255}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
