package tts

// Request carries the synthesis-relevant parameters for one utterance.
// Volume is intentionally absent: gain is applied at playback time and must
// not fragment the audio cache.
type Request struct {
	// Text is the utterance to speak.
	Text string

	// Voice is the provider-specific voice identifier (e.g., "af_sarah").
	Voice string

	// Speed adjusts speaking rate (0.5–2.0, 1.0 = default).
	Speed float64

	// Pitch adjusts voice pitch (0.0–2.0, 1.0 = default). Providers without
	// native pitch control may approximate or ignore it.
	Pitch float64

	// Language is the language code (e.g., "en-us").
	Language string
}

// Audio is a decoded PCM clip returned by a provider.
// Samples are interleaved little-endian int16.
type Audio struct {
	PCM        []byte
	SampleRate int
	Channels   int
}
