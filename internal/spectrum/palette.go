package spectrum

// Per-channel palette divisors and intensity clamp
const (
	RedDivisor   = 4
	GreenDivisor = 1
	BlueDivisor  = 4
	MaxIntensity = 255
)

// Scale divisors applied to magnitudes before clamping
const (
	Scale8Bit  = 2
	Scale16Bit = 4 * 256
)

// MarkerLength is the number of leading pixels overwritten by a time marker
const MarkerLength = 10

// MarkerColor tags rows at elapsed-time boundaries
var MarkerColor = Pixel{220, 0, 0}

// Pixel is one RGB value
type Pixel [3]uint8

// Row is one waterfall line
type Row []Pixel

// Palette holds the channel divisors used by MapToPixels
type Palette struct {
	R, G, B int
}

// DefaultPalette is the green-dominant waterfall palette
var DefaultPalette = Palette{R: RedDivisor, G: GreenDivisor, B: BlueDivisor}

// ScaleFor returns the magnitude divisor for a source component width
func ScaleFor(bits int) int {
	if bits == 8 {
		return Scale8Bit
	}
	return Scale16Bit
}

// MapToPixels converts a line into a pixel row. The two halves of the line
// are swapped so that the tuned frequency lands in the middle.
func MapToPixels(line []float64, scale int, p Palette) Row {
	n := len(line)
	row := make(Row, n)
	half := n / 2
	for j := range row {
		row[j] = p.pixel(line[(j+half)%n], scale)
	}
	return row
}

func (p Palette) pixel(v float64, scale int) Pixel {
	s := v / float64(scale)
	// Compare before conversion so huge magnitudes never wrap
	if !(s < MaxIntensity) {
		s = MaxIntensity
	}
	if s < 0 {
		s = 0
	}
	i := int(s)
	return Pixel{uint8(i / p.R), uint8(i / p.G), uint8(i / p.B)}
}

// Mark overwrites the first MarkerLength pixels of row with MarkerColor
func Mark(row Row) {
	for i := 0; i < MarkerLength && i < len(row); i++ {
		row[i] = MarkerColor
	}
}

// Join places track rows side by side into one row
func Join(rows []Row) Row {
	if len(rows) == 1 {
		return rows[0]
	}
	n := 0
	for _, r := range rows {
		n += len(r)
	}
	out := make(Row, 0, n)
	for _, r := range rows {
		out = append(out, r...)
	}
	return out
}
