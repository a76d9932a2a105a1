package audio

// Clip is a complete PCM utterance ready for playback.
// Samples are interleaved little-endian int16.
type Clip struct {
	// PCM audio data.
	PCM []byte

	// SampleRate in Hz (e.g., 24000 for Kokoro output, 48000 for Discord).
	SampleRate int

	// Channels: 1 for mono (synthesis output), 2 for stereo (Discord).
	Channels int
}

// Duration-free length helpers are intentionally absent; callers that need
// timing derive it from len(PCM), SampleRate and Channels.

// Empty reports whether the clip carries no audio.
func (c Clip) Empty() bool {
	return len(c.PCM) == 0
}
