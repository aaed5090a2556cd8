package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/ioanna/internal/turn"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":       {"mistral", "openai", "anthropic", "ollama", "gemini", "deepseek", "groq", "llamacpp", "llamafile"},
	"stt":       {"whisper", "whisper-native", "openai"},
	"tts":       {"elevenlabs", "coqui"},
	"vad":       {"energy"},
	"vision":    {"google-vision"},
	"face":      {"face-api"},
	"camera":    {"snapshot"},
	"tone":      {"http"},
	"sentiment": {"lexicon", "llm"},
	"nlp":       {"prose", "rules"},
	"audio_in":  {"arecord", "command"},
	"audio_out": {"aplay", "command", "wav-file"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. Scoring fields missing from the document keep their defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	p := turn.DefaultPolicy()
	cfg := &Config{Memory: MemoryConfig{Scoring: &p}}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	p := cfg.Providers
	for _, e := range []struct {
		kind  string
		entry ProviderEntry
	}{
		{"llm", p.LLM}, {"stt", p.STT}, {"tts", p.TTS}, {"vad", p.VAD},
		{"vision", p.Vision}, {"face", p.Face}, {"camera", p.Camera},
		{"tone", p.Tone}, {"sentiment", p.Sentiment}, {"nlp", p.NLP},
		{"audio_in", p.AudioIn}, {"audio_out", p.AudioOut},
	} {
		validateProviderName(e.kind, e.entry.Name)
	}
	for _, fb := range []struct {
		kind    string
		entries []ProviderEntry
	}{
		{"llm", p.LLMFallbacks}, {"stt", p.STTFallbacks}, {"tts", p.TTSFallbacks},
	} {
		for i, e := range fb.entries {
			if e.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s_fallbacks[%d].name is required", fb.kind, i))
				continue
			}
			validateProviderName(fb.kind, e.Name)
		}
	}
	if p.Tone.Name == "http" && p.Tone.BaseURL == "" {
		errs = append(errs, errors.New("providers.tone.base_url is required for the http tone classifier"))
	}
	if p.Sentiment.Name == "llm" && p.LLM.Name == "" {
		errs = append(errs, errors.New("providers.sentiment \"llm\" requires providers.llm to be configured"))
	}
	if p.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; the agent will not start without a question generator")
	}

	// Capture
	c := cfg.Capture
	if c.Channels != 0 && c.Channels != 1 && c.Channels != 2 {
		errs = append(errs, fmt.Errorf("capture.channels %d is invalid; valid values: 1, 2", c.Channels))
	}
	if c.SpeechThreshold < 0 || c.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("capture.speech_threshold %.2f is out of range [0, 1]", c.SpeechThreshold))
	}
	if c.MaxDuration != 0 && c.SilenceLimit > c.MaxDuration {
		errs = append(errs, fmt.Errorf("capture.silence_limit %s exceeds capture.max_duration %s", c.SilenceLimit, c.MaxDuration))
	}

	// Memory
	if cfg.Memory.MatchThreshold < 0 {
		errs = append(errs, fmt.Errorf("memory.match_threshold %.2f must not be negative", cfg.Memory.MatchThreshold))
	}
	if cfg.Memory.EncodingDimensions < 0 {
		errs = append(errs, fmt.Errorf("memory.encoding_dimensions %d must not be negative", cfg.Memory.EncodingDimensions))
	}
	if cfg.Memory.PostgresDSN == "" {
		slog.Warn("memory.postgres_dsn is empty; the agent needs an injected profile store to start")
	}
	if s := cfg.Memory.Scoring; s != nil {
		errs = append(errs, validatePolicy(*s)...)
	}

	// Dialogue
	d := cfg.Dialogue
	if d.Temperature < 0 || d.Temperature > 2 {
		errs = append(errs, fmt.Errorf("dialogue.temperature %.2f is out of range [0, 2]", d.Temperature))
	}
	for i, ph := range d.FarewellPhrases {
		if ph == "" {
			errs = append(errs, fmt.Errorf("dialogue.farewell_phrases[%d] is empty", i))
		}
	}

	// Identity
	if cfg.Identity.NameAttempts < 0 {
		errs = append(errs, fmt.Errorf("identity.name_attempts %d must not be negative", cfg.Identity.NameAttempts))
	}

	// Events and MCP share the HTTP mux.
	if cfg.Events.WebSocketPath != "" && cfg.Events.WebSocketPath[0] != '/' {
		errs = append(errs, fmt.Errorf("events.websocket_path %q must start with /", cfg.Events.WebSocketPath))
	}
	if cfg.MCP.Path != "" && cfg.MCP.Path[0] != '/' {
		errs = append(errs, fmt.Errorf("mcp.path %q must start with /", cfg.MCP.Path))
	}
	if cfg.MCP.Enabled && cfg.MCP.Path == cfg.Events.WebSocketPath {
		errs = append(errs, fmt.Errorf("mcp.path %q collides with events.websocket_path", cfg.MCP.Path))
	}

	return errors.Join(errs...)
}

// validatePolicy checks the scoring weights and threshold.
func validatePolicy(p turn.Policy) []error {
	var errs []error
	for _, w := range []struct {
		name string
		v    float64
	}{
		{"subjectivity_weight", p.SubjectivityWeight},
		{"audio_weight", p.AudioWeight},
		{"facial_weight", p.FacialWeight},
	} {
		if w.v < 0 || w.v > 1 {
			errs = append(errs, fmt.Errorf("memory.scoring.%s %.2f is out of range [0, 1]", w.name, w.v))
		}
	}
	if sum := p.SubjectivityWeight + p.AudioWeight + p.FacialWeight; sum == 0 {
		errs = append(errs, errors.New("memory.scoring weights must not all be zero"))
	}
	if p.Threshold < 0 || p.Threshold > 1 {
		errs = append(errs, fmt.Errorf("memory.scoring.threshold %.2f is out of range [0, 1]", p.Threshold))
	}
	return errs
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
