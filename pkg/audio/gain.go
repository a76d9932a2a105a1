package audio

// ApplyGain scales int16 PCM samples by gain and returns a new slice, clamping
// to the int16 range. gain 1.0 (or a non-positive length) returns the input
// unchanged; gain 0.0 produces silence of the same length.
//
// Gain is applied at playback time rather than at synthesis so that volume
// changes do not fragment the synthesised-audio cache.
func ApplyGain(pcm []byte, gain float64) []byte {
	if gain == 1.0 || len(pcm) < 2 {
		return pcm
	}

	out := make([]byte, len(pcm)&^1)
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := float64(int16(pcm[i]) | int16(pcm[i+1])<<8)
		scaled := sample * gain

		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}

		s := int16(scaled)
		out[i] = byte(s)
		out[i+1] = byte(s >> 8)
	}
	return out
}
