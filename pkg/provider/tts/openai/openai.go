// Package openai provides a TTS provider backed by the OpenAI speech
// endpoint. It implements the tts.Provider interface and serves as the last
// fallback in the synthesis chain.
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/Viker/Kokoro-TTS-Discord-Bot/pkg/provider/tts"
)

// DefaultModel is the default OpenAI speech model.
const DefaultModel = oai.SpeechModelGPT4oMiniTTS

// pcmSampleRate is the fixed rate of the endpoint's "pcm" response format.
const pcmSampleRate = 24000

// Ensure Provider implements the tts.Provider interface.
var _ tts.Provider = (*Provider)(nil)

// voices is the fixed voice catalogue of the OpenAI speech endpoint.
var voices = []string{
	"alloy", "ash", "ballad", "coral", "echo",
	"fable", "nova", "onyx", "sage", "shimmer",
}

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI speech Provider.
// If model is empty, DefaultModel (gpt-4o-mini-tts) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai tts: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model}, nil
}

// Synthesize implements tts.Provider. The endpoint returns raw 24 kHz mono
// int16 PCM when the "pcm" response format is requested. Pitch has no native
// control on this endpoint and is not applied.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	if req.Text == "" {
		return nil, fmt.Errorf("openai tts: empty text")
	}
	voice := req.Voice
	if voice == "" {
		voice = "alloy"
	}

	params := oai.AudioSpeechNewParams{
		Model:          p.model,
		Input:          req.Text,
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if req.Speed > 0 {
		params.Speed = param.NewOpt(req.Speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai tts: speech request: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read audio: %w", err)
	}

	return &tts.Audio{
		PCM:        pcm,
		SampleRate: pcmSampleRate,
		Channels:   1,
	}, nil
}

// ListVoices returns the endpoint's fixed voice catalogue.
func (p *Provider) ListVoices(ctx context.Context) ([]string, error) {
	out := make([]string, len(voices))
	copy(out, voices)
	return out, nil
}
