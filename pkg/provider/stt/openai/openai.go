// Package openai provides an STT provider backed by the OpenAI audio
// transcription endpoint (whisper-1, gpt-4o-transcribe, ...). Any
// OpenAI-compatible server (e.g. faster-whisper-server) works through
// [WithBaseURL].
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/MrWong99/ioanna/pkg/audio"
	"github.com/MrWong99/ioanna/pkg/provider/stt"
)

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client    oai.Client
	model     string
	language  string
	converter *audio.Converter
}

var _ stt.Provider = (*Provider)(nil)

type config struct {
	baseURL  string
	language string
	timeout  time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithLanguage sets an ISO-639-1 language hint (e.g. "en").
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a new OpenAI STT Provider. model defaults to "whisper-1".
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = string(oai.AudioModelWhisper1)
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{
		client:    oai.NewClient(reqOpts...),
		model:     model,
		language:  cfg.language,
		converter: &audio.Converter{Target: audio.DefaultFormat},
	}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	clip = p.converter.Convert(clip)
	if clip.Empty() {
		return "", nil
	}

	params := oai.AudioTranscriptionNewParams{
		Model: oai.AudioModel(p.model),
		File:  oai.File(bytes.NewReader(audio.EncodeWAV(clip)), "audio.wav", "audio/wav"),
	}
	if p.language != "" {
		params.Language = param.NewOpt(p.language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
