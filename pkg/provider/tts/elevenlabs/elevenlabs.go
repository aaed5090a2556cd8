// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs streaming WebSocket API. It implements the tts.Provider interface.
//
// The WebSocket API streams audio as it is generated; the provider collects
// every chunk until ElevenLabs reports isFinal and returns the whole clip.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/ioanna/pkg/audio"
	"github.com/MrWong99/ioanna/pkg/provider/tts"
)

const (
	defaultEndpoint  = "wss://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "pcm_16000"
)

var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the PCM output format (e.g., "pcm_16000", "pcm_24000").
// Only pcm_* formats are supported.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithEndpoint overrides the WebSocket base URL (scheme and host).
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = strings.TrimRight(endpoint, "/")
	}
}

// WithVoiceSettings sets stability and similarity boost. Defaults are 0.5
// and 0.75.
func WithVoiceSettings(stability, similarity float64) Option {
	return func(p *Provider) {
		p.settings = voiceSettings{Stability: stability, SimilarityBoost: similarity}
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	voiceID      string
	model        string
	outputFormat string
	endpoint     string
	settings     voiceSettings
	format       audio.Format
}

// New creates a new ElevenLabs Provider speaking with voiceID. apiKey and
// voiceID must be non-empty.
func New(apiKey, voiceID string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	if voiceID == "" {
		return nil, errors.New("elevenlabs: voiceID must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		voiceID:      voiceID,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		endpoint:     defaultEndpoint,
		settings:     voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
	}
	for _, o := range opts {
		o(p)
	}
	f, err := parseOutputFormat(p.outputFormat)
	if err != nil {
		return nil, err
	}
	p.format = f
	return p, nil
}

// ---- WebSocket message types ----

// textMessage is the JSON payload sent to ElevenLabs for each text fragment.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// audioResponse is the JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// boiMessage is used for the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

// Synthesize implements tts.Provider. It opens one WebSocket per utterance,
// sends the text followed by a flush, and gathers audio until the final
// message or the server closes the connection.
func (p *Provider) Synthesize(ctx context.Context, text string) (audio.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return audio.Clip{}, tts.ErrEmptyText
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(), nil)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(1 << 22)

	// ElevenLabs requires a non-empty first text value.
	boi, _ := json.Marshal(boiMessage{Text: " ", VoiceSettings: &p.settings, XiAPIKey: p.apiKey})
	if err := conn.Write(ctx, websocket.MessageText, boi); err != nil {
		return audio.Clip{}, fmt.Errorf("elevenlabs: send BOI: %w", err)
	}
	// A trailing space tells ElevenLabs the sentence is complete.
	msg, _ := buildWSMessage(text+" ", nil)
	if err := conn.Write(ctx, websocket.MessageText, msg); err != nil {
		return audio.Clip{}, fmt.Errorf("elevenlabs: send text: %w", err)
	}
	flush, _ := buildWSMessage("", nil)
	if err := conn.Write(ctx, websocket.MessageText, flush); err != nil {
		return audio.Clip{}, fmt.Errorf("elevenlabs: send flush: %w", err)
	}

	var chunks [][]byte
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return audio.Clip{}, fmt.Errorf("elevenlabs: read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			continue
		}
		if resp.Error != "" {
			return audio.Clip{}, fmt.Errorf("elevenlabs: server error: %s: %s", resp.Error, resp.Message)
		}
		if resp.Audio != "" {
			pcm, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return audio.Clip{}, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			chunks = append(chunks, pcm)
		}
		if resp.IsFinal {
			break
		}
	}
	_ = conn.Close(websocket.StatusNormalClosure, "done")
	return audio.Concat(p.format, chunks), nil
}

// ---- helpers ----

// buildWSMessage constructs the JSON text payload for a single text fragment.
func buildWSMessage(text string, vs *voiceSettings) ([]byte, error) {
	return json.Marshal(textMessage{Text: text, VoiceSettings: vs})
}

// streamURL constructs the stream-input WebSocket URL for the configured
// voice, model and output format.
func (p *Provider) streamURL() string {
	q := url.Values{}
	q.Set("model_id", p.model)
	q.Set("output_format", p.outputFormat)
	return fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?%s", p.endpoint, url.PathEscape(p.voiceID), q.Encode())
}

// parseOutputFormat maps "pcm_<rate>" to a mono PCM format.
func parseOutputFormat(s string) (audio.Format, error) {
	rate, ok := strings.CutPrefix(s, "pcm_")
	if !ok {
		return audio.Format{}, fmt.Errorf("elevenlabs: unsupported output format %q (want pcm_<rate>)", s)
	}
	n, err := strconv.Atoi(rate)
	if err != nil || n <= 0 {
		return audio.Format{}, fmt.Errorf("elevenlabs: invalid sample rate in output format %q", s)
	}
	return audio.Format{SampleRate: n, Channels: 1}, nil
}
