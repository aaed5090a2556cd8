// Package coqui provides a local Coqui TTS-backed TTS provider that connects to
// either a Coqui XTTS v2 server or a standard Coqui TTS server via its REST API.
// It implements the tts.Provider interface.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): targets the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts with
//     URL query parameters.
//
//   - APIModeXTTS: targets the Coqui XTTS v2 API server. Synthesis is performed
//     via POST /tts_to_audio/ with a JSON body naming a reference speaker WAV.
//
// Both servers answer with a complete WAV file which is decoded into a clip.
//
// Typical usage:
//
//	p, err := coqui.New("http://localhost:5002",
//	    coqui.WithLanguage("en"),
//	    coqui.WithSpeaker("p225"),
//	)
//	clip, err := p.Synthesize(ctx, "Hello there, I am Ioanna!")
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/ioanna/pkg/audio"
	"github.com/MrWong99/ioanna/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
	xttsEndpoint    = "/tts_to_audio/"
	apiTTSEndpoint  = "/api/tts"
)

// APIMode selects which Coqui server API the provider will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the TTS server (e.g., "en",
// "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSpeaker sets the speaker: a speaker_id for standard multi-speaker
// models or the reference speaker WAV name in XTTS mode.
func WithSpeaker(id string) Option {
	return func(p *Provider) {
		p.speaker = id
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithOutputSampleRate resamples synthesised mono audio to rate. Zero keeps
// the model's native rate.
func WithOutputSampleRate(rate int) Option {
	return func(p *Provider) {
		p.outputRate = rate
	}
}

// Provider implements tts.Provider backed by a locally-running Coqui TTS server.
type Provider struct {
	serverURL  string
	language   string
	speaker    string
	httpClient *http.Client
	apiMode    APIMode
	outputRate int
}

// New creates a new Coqui Provider that targets the TTS server at serverURL
// (e.g., "http://localhost:5002"). serverURL must be non-empty. XTTS mode
// requires a speaker.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		apiMode:    APIModeStandard,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	switch p.apiMode {
	case APIModeStandard:
	case APIModeXTTS:
		if p.speaker == "" {
			return nil, errors.New("coqui: xtts mode requires a speaker")
		}
	default:
		return nil, fmt.Errorf("coqui: unknown api mode %q", p.apiMode)
	}
	return p, nil
}

// xttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type xttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Clip{}, tts.ErrEmptyText
	}

	req, err := p.newRequest(ctx, text)
	if err != nil {
		return audio.Clip{}, err
	}
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return audio.Clip{}, fmt.Errorf("coqui: %s %s returned status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("coqui: read WAV response: %w", err)
	}
	clip, err := audio.DecodeWAV(wav)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("coqui: %w", err)
	}
	if p.outputRate > 0 && clip.Format.SampleRate != p.outputRate {
		clip = audio.Convert(clip, audio.Format{SampleRate: p.outputRate, Channels: clip.Format.Channels})
	}
	return clip, nil
}

func (p *Provider) newRequest(ctx context.Context, text string) (*http.Request, error) {
	if p.apiMode == APIModeXTTS {
		body, err := json.Marshal(xttsRequest{Text: text, SpeakerWav: p.speaker, Language: p.language})
		if err != nil {
			return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+xttsEndpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("coqui: create tts request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}

	params := url.Values{}
	params.Set("text", text)
	if p.speaker != "" {
		params.Set("speaker_id", p.speaker)
	}
	if p.language != "" {
		params.Set("language_id", p.language)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+apiTTSEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	return req, nil
}
