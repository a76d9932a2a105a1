// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (a local Kokoro FastAPI
// server, ElevenLabs, the OpenAI speech endpoint, …) and presents a uniform
// batch interface: one Request in, one decoded PCM clip out. Streaming is
// deliberately not part of the contract — the playback queue serialises
// utterance-sized clips per guild, so a blocking call with bounded latency
// is the natural shape.
//
// Implementations must be safe for concurrent use; requests for different
// guilds may run in parallel.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts req.Text into a PCM clip using the requested voice
	// parameters. Returns a non-nil Audio on success. Implementations should
	// honour ctx cancellation and return its error when cancelled mid-request.
	Synthesize(ctx context.Context, req Request) (*Audio, error)

	// ListVoices returns the identifiers of all voices this provider can
	// synthesise with. The list reflects the backend's current catalogue and
	// may change between calls.
	ListVoices(ctx context.Context) ([]string, error)
}
