package resilience

import (
	"context"

	"github.com/Viker/Kokoro-TTS-Discord-Bot/pkg/provider/tts"
)

// SynthFallback implements [tts.Provider] with automatic failover across
// multiple TTS backends. Each backend has its own circuit breaker, so a dead
// local Kokoro server stops being probed on every utterance while a hosted
// fallback carries the traffic.
type SynthFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*SynthFallback)(nil)

// NewSynthFallback creates a [SynthFallback] with primary as the preferred
// backend.
func NewSynthFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *SynthFallback {
	return &SynthFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *SynthFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize produces a clip from the first healthy provider. Fallback
// providers may use different voice catalogues; an unknown voice surfaces as
// that provider's error and moves failover along.
func (f *SynthFallback) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (*tts.Audio, error) {
		return p.Synthesize(ctx, req)
	})
}

// ListVoices returns available voices from the first healthy provider.
func (f *SynthFallback) ListVoices(ctx context.Context) ([]string, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]string, error) {
		return p.ListVoices(ctx)
	})
}

// BreakerStates returns the breaker state of every backend, keyed by name.
// Surfaced by the status command.
func (f *SynthFallback) BreakerStates() map[string]BreakerState {
	return f.group.States()
}
