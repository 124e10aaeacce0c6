package capture

// PlanTracks returns the centre frequencies captured each row. In span
// mode sub-bands one sample rate wide are laid edge to edge from low
// until high is covered; otherwise the single frequency is returned.
func PlanTracks(frequency, low, high, sampleRate float64) []float64 {
	if low <= 0 || high <= low || sampleRate <= 0 {
		return []float64{frequency}
	}
	var tracks []float64
	for edge := low; edge < high; edge += sampleRate {
		tracks = append(tracks, edge+sampleRate/2)
	}
	return tracks
}

// SpanCenter returns the frequency at the middle of the joined tracks
func SpanCenter(tracks []float64) float64 {
	if len(tracks) == 0 {
		return 0
	}
	return (tracks[0] + tracks[len(tracks)-1]) / 2
}
