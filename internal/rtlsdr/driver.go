package rtlsdr

// DriverName is the selector prefix and device label for RTL-SDR dongles
const DriverName = "rtlsdr"

// toSigned centres unsigned 8-bit components on zero, giving -128..127
func toSigned(raw []byte) []int16 {
	out := make([]int16, len(raw))
	for i, b := range raw {
		out[i] = int16(b) - 128
	}
	return out
}
