// Package config provides the configuration schema, loader, and provider
// registry for the Ioanna agent.
package config

import (
	"time"

	"github.com/MrWong99/ioanna/internal/turn"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Capture   CaptureConfig   `yaml:"capture"`
	Memory    MemoryConfig    `yaml:"memory"`
	Dialogue  DialogueConfig  `yaml:"dialogue"`
	Identity  IdentityConfig  `yaml:"identity"`
	Events    EventsConfig    `yaml:"events"`
	MCP       MCPConfig       `yaml:"mcp"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares which implementation to use for each external
// capability. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	LLM       ProviderEntry `yaml:"llm"`
	STT       ProviderEntry `yaml:"stt"`
	TTS       ProviderEntry `yaml:"tts"`
	VAD       ProviderEntry `yaml:"vad"`
	Vision    ProviderEntry `yaml:"vision"`
	Face      ProviderEntry `yaml:"face"`
	Camera    ProviderEntry `yaml:"camera"`
	Tone      ProviderEntry `yaml:"tone"`
	Sentiment ProviderEntry `yaml:"sentiment"`
	NLP       ProviderEntry `yaml:"nlp"`
	AudioIn   ProviderEntry `yaml:"audio_in"`
	AudioOut  ProviderEntry `yaml:"audio_out"`

	// Fallbacks are tried in order when the primary LLM, STT or TTS
	// provider fails or its circuit breaker is open.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
	TTSFallbacks []ProviderEntry `yaml:"tts_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "mistral", "whisper").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. HTTP-only
	// providers such as the tone classifier require it.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// OptionString returns Options[key] as a string, or def when it is missing
// or not a string.
func (e ProviderEntry) OptionString(key, def string) string {
	if v, ok := e.Options[key].(string); ok && v != "" {
		return v
	}
	return def
}

// OptionInt returns Options[key] as an int, or def when it is missing or not
// a number.
func (e ProviderEntry) OptionInt(key string, def int) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

// OptionFloat returns Options[key] as a float64, or def when it is missing or
// not a number.
func (e ProviderEntry) OptionFloat(key string, def float64) float64 {
	switch v := e.Options[key].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return def
}

// CaptureConfig tunes camera polling and microphone recording.
type CaptureConfig struct {
	// FrameInterval is how often the camera is grabbed into the frame buffer.
	FrameInterval time.Duration `yaml:"frame_interval"`

	// FrameMaxAge is the age after which the latest frame counts as stale
	// for readiness checks.
	FrameMaxAge time.Duration `yaml:"frame_max_age"`

	// EmotionPollInterval is the emotion sampler tick.
	EmotionPollInterval time.Duration `yaml:"emotion_poll_interval"`

	// EmotionMinInterval throttles emotion classifier queries.
	EmotionMinInterval time.Duration `yaml:"emotion_min_interval"`

	// EmotionRetries is how many times a transient classifier failure is
	// retried within one sampling tick.
	EmotionRetries int `yaml:"emotion_retries"`

	// EmotionRetryBackoff is the pause between classifier retries.
	EmotionRetryBackoff time.Duration `yaml:"emotion_retry_backoff"`

	// SampleRate and Channels describe the microphone stream.
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`

	// ChunkSamples is the number of sample frames read per chunk.
	ChunkSamples int `yaml:"chunk_samples"`

	// SilenceLimit ends a recording after this much trailing silence.
	SilenceLimit time.Duration `yaml:"silence_limit"`

	// MaxDuration caps a single recording.
	MaxDuration time.Duration `yaml:"max_duration"`

	// SpeechThreshold is the VAD score above which a chunk is speech.
	SpeechThreshold float64 `yaml:"speech_threshold"`

	// WorkDir holds per-turn artifacts: output.wav, segments/ and the
	// synthesized speech file. They are removed after every turn.
	WorkDir string `yaml:"work_dir"`
}

// MemoryConfig configures the profile store and the scoring policy.
type MemoryConfig struct {
	// PostgresDSN is the PostgreSQL connection string. It is required unless
	// a profile store is injected into the application.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EncodingDimensions is the length of face identity encodings.
	EncodingDimensions int `yaml:"encoding_dimensions"`

	// MatchThreshold is the maximum encoding distance for a returning user.
	MatchThreshold float64 `yaml:"match_threshold"`

	// Scoring holds the importance weights and threshold. It is hot-reloadable.
	Scoring *turn.Policy `yaml:"scoring"`
}

// DialogueConfig tunes question generation and the end of a conversation.
type DialogueConfig struct {
	Persona          string  `yaml:"persona"`
	HistoryWindow    int     `yaml:"history_window"`
	MemoryTurns      int     `yaml:"memory_turns"`
	WordLimit        int     `yaml:"word_limit"`
	MaxTokens        int     `yaml:"max_tokens"`
	Temperature      float64 `yaml:"temperature"`
	FollowUpLimit    int     `yaml:"follow_up_limit"`
	FallbackQuestion string  `yaml:"fallback_question"`

	// FarewellPhrases end the conversation when heard in an answer.
	FarewellPhrases []string `yaml:"farewell_phrases"`

	// PhoneticFarewell also accepts answers that sound like a farewell
	// phrase, which helps with mistranscriptions.
	PhoneticFarewell bool `yaml:"phonetic_farewell"`

	// Goodbye is spoken before the conversation ends.
	Goodbye string `yaml:"goodbye"`
}

// IdentityConfig tunes user identification.
type IdentityConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	NameAttempts    int           `yaml:"name_attempts"`
	RetryPrompt     string        `yaml:"retry_prompt"`
	WelcomeBack     string        `yaml:"welcome_back"`
	Greeting        string        `yaml:"greeting"`
	NameRetryPrompt string        `yaml:"name_retry_prompt"`
	DefaultName     string        `yaml:"default_name"`
}

// EventsConfig configures the UI event stream.
type EventsConfig struct {
	// BufferSize is the dispatcher queue length. Events are dropped when
	// the queue is full.
	BufferSize int `yaml:"buffer_size"`

	// WebSocketPath is where UI clients subscribe.
	WebSocketPath string `yaml:"websocket_path"`

	// OriginPatterns lists extra origins allowed to open the websocket.
	OriginPatterns []string `yaml:"origin_patterns"`
}

// MCPConfig configures the memory MCP server.
type MCPConfig struct {
	// Enabled mounts the server on the HTTP listener.
	Enabled bool `yaml:"enabled"`

	// Path is the mount point of the streamable HTTP handler.
	Path string `yaml:"path"`
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr          = ":8080"
	DefaultFrameInterval       = 200 * time.Millisecond
	DefaultFrameMaxAge         = 10 * time.Second
	DefaultEmotionPollInterval = 100 * time.Millisecond
	DefaultEmotionMinInterval  = 500 * time.Millisecond
	DefaultEmotionRetries      = 3
	DefaultEmotionRetryBackoff = time.Second
	DefaultSampleRate          = 16000
	DefaultChannels            = 1
	DefaultEncodingDimensions  = 128
	DefaultGoodbye             = "Goodbye!"
	DefaultEventBuffer         = 64
	DefaultWebSocketPath       = "/v1/events"
	DefaultMCPPath             = "/mcp"
)

// ApplyDefaults fills zero values with their defaults. Component-level
// settings left at zero are defaulted by the component itself.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}

	c := &cfg.Capture
	if c.FrameInterval <= 0 {
		c.FrameInterval = DefaultFrameInterval
	}
	if c.FrameMaxAge <= 0 {
		c.FrameMaxAge = DefaultFrameMaxAge
	}
	if c.EmotionPollInterval <= 0 {
		c.EmotionPollInterval = DefaultEmotionPollInterval
	}
	if c.EmotionMinInterval <= 0 {
		c.EmotionMinInterval = DefaultEmotionMinInterval
	}
	if c.EmotionRetries <= 0 {
		c.EmotionRetries = DefaultEmotionRetries
	}
	if c.EmotionRetryBackoff <= 0 {
		c.EmotionRetryBackoff = DefaultEmotionRetryBackoff
	}
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = DefaultChannels
	}

	if cfg.Memory.EncodingDimensions <= 0 {
		cfg.Memory.EncodingDimensions = DefaultEncodingDimensions
	}
	if cfg.Memory.Scoring == nil {
		p := turn.DefaultPolicy()
		cfg.Memory.Scoring = &p
	}

	if cfg.Dialogue.Goodbye == "" {
		cfg.Dialogue.Goodbye = DefaultGoodbye
	}

	if cfg.Events.BufferSize <= 0 {
		cfg.Events.BufferSize = DefaultEventBuffer
	}
	if cfg.Events.WebSocketPath == "" {
		cfg.Events.WebSocketPath = DefaultWebSocketPath
	}
	if cfg.MCP.Path == "" {
		cfg.MCP.Path = DefaultMCPPath
	}
}
