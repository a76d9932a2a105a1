// Package kokoro provides a TTS provider backed by a locally-running Kokoro
// FastAPI server (https://github.com/remsky/Kokoro-FastAPI). It implements
// the tts.Provider interface.
//
// The server operates in batch mode — one HTTP call per utterance — and
// performs best on sentence-sized inputs. Synthesize therefore segments long
// text into sentences and dispatches one request per chunk, concatenating
// the resulting PCM.
//
// Typical usage:
//
//	p := kokoro.New("http://localhost:8880",
//	    kokoro.WithTimeout(15*time.Second),
//	)
//	audio, err := p.Synthesize(ctx, tts.Request{Text: "hello", Voice: "af_sarah", Speed: 1.0})
package kokoro

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/neurosnap/sentences/english"

	"github.com/Viker/Kokoro-TTS-Discord-Bot/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	speechEndpoint = "/v1/audio/speech"
	voicesEndpoint = "/v1/audio/voices"

	defaultTimeout = 30 * time.Second

	// nativeSampleRate is the fixed output rate of the Kokoro model.
	nativeSampleRate = 24000
	nativeChannels   = 1

	// maxChunkChars bounds the text sent in a single synthesis request.
	// Whole sentences are packed into chunks up to this size.
	maxChunkChars = 400
)

// Option is a functional option for configuring a Kokoro Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithModel sets the model name sent to the server. The server default is
// used when empty.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// Provider implements tts.Provider backed by a Kokoro FastAPI server.
// It is safe for concurrent use.
type Provider struct {
	serverURL  string
	model      string
	httpClient *http.Client
}

// New creates a Provider targeting the Kokoro server at serverURL
// (e.g., "http://localhost:8880").
func New(serverURL string, opts ...Option) *Provider {
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// speechRequest is the JSON body for POST /v1/audio/speech.
type speechRequest struct {
	Model          string  `json:"model,omitempty"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format"`
	Speed          float64 `json:"speed,omitempty"`
	LangCode       string  `json:"lang_code,omitempty"`
}

// Synthesize segments req.Text into sentence-sized chunks, synthesises each
// chunk via the server, and returns the concatenated PCM clip.
//
// Kokoro has no native pitch control; req.Pitch is accepted but not applied.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("kokoro: empty text")
	}
	if req.Voice == "" {
		return nil, fmt.Errorf("kokoro: voice must not be empty")
	}

	var pcm []byte
	for _, chunk := range splitChunks(req.Text) {
		data, err := p.requestSpeech(ctx, chunk, req)
		if err != nil {
			return nil, err
		}
		pcm = append(pcm, data...)
	}

	return &tts.Audio{
		PCM:        pcm,
		SampleRate: nativeSampleRate,
		Channels:   nativeChannels,
	}, nil
}

// requestSpeech performs one synthesis HTTP call and returns raw PCM bytes.
func (p *Provider) requestSpeech(ctx context.Context, text string, req tts.Request) ([]byte, error) {
	body := speechRequest{
		Model:          p.model,
		Input:          text,
		Voice:          req.Voice,
		ResponseFormat: "pcm",
		Speed:          req.Speed,
		LangCode:       req.Language,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("kokoro: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+speechEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("kokoro: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/octet-stream")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("kokoro: speech request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("kokoro: speech request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("kokoro: read audio: %w", err)
	}
	return data, nil
}

// voicesResponse is the JSON body of GET /v1/audio/voices.
type voicesResponse struct {
	Voices []string `json:"voices"`
}

// ListVoices retrieves the server's voice catalogue.
func (p *Provider) ListVoices(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+voicesEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("kokoro: create request: %w", err)
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("kokoro: voices request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("kokoro: voices request: status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("kokoro: decode voices: %w", err)
	}
	return vr.Voices, nil
}

// splitChunks packs whole sentences into chunks of at most maxChunkChars.
// Short text comes back as a single chunk. A single sentence longer than the
// limit is sent as-is rather than split mid-sentence.
func splitChunks(text string) []string {
	if len(text) <= maxChunkChars {
		return []string{text}
	}

	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return []string{text}
	}

	var chunks []string
	var b strings.Builder
	for _, s := range tokenizer.Tokenize(text) {
		sent := strings.TrimSpace(s.Text)
		if sent == "" {
			continue
		}
		if b.Len() > 0 && b.Len()+1+len(sent) > maxChunkChars {
			chunks = append(chunks, b.String())
			b.Reset()
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(sent)
	}
	if b.Len() > 0 {
		chunks = append(chunks, b.String())
	}
	if len(chunks) == 0 {
		return []string{text}
	}
	return chunks
}
