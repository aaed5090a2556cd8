package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/ioanna/internal/app"
	"github.com/MrWong99/ioanna/internal/config"
	"github.com/MrWong99/ioanna/internal/observe"
	"github.com/MrWong99/ioanna/internal/resilience"
	"github.com/MrWong99/ioanna/pkg/audio"
	"github.com/MrWong99/ioanna/pkg/provider/llm"
	"github.com/MrWong99/ioanna/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/ioanna/pkg/provider/llm/openai"
	"github.com/MrWong99/ioanna/pkg/provider/nlp"
	"github.com/MrWong99/ioanna/pkg/provider/nlp/prose"
	"github.com/MrWong99/ioanna/pkg/provider/nlp/rules"
	"github.com/MrWong99/ioanna/pkg/provider/sentiment"
	"github.com/MrWong99/ioanna/pkg/provider/sentiment/lexicon"
	"github.com/MrWong99/ioanna/pkg/provider/sentiment/llmscore"
	"github.com/MrWong99/ioanna/pkg/provider/stt"
	oastt "github.com/MrWong99/ioanna/pkg/provider/stt/openai"
	"github.com/MrWong99/ioanna/pkg/provider/stt/whisper"
	"github.com/MrWong99/ioanna/pkg/provider/tone"
	"github.com/MrWong99/ioanna/pkg/provider/tone/httptone"
	"github.com/MrWong99/ioanna/pkg/provider/tts"
	"github.com/MrWong99/ioanna/pkg/provider/tts/coqui"
	"github.com/MrWong99/ioanna/pkg/provider/tts/elevenlabs"
	"github.com/MrWong99/ioanna/pkg/provider/vad"
	"github.com/MrWong99/ioanna/pkg/provider/vad/energy"
	"github.com/MrWong99/ioanna/pkg/provider/vision"
	"github.com/MrWong99/ioanna/pkg/provider/vision/faceapi"
	"github.com/MrWong99/ioanna/pkg/provider/vision/gcpvision"
	"github.com/MrWong99/ioanna/pkg/provider/vision/snapshot"
)

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmProviders share the same pattern: optional APIKey + optional BaseURL.
var anyllmProviders = []string{
	"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
// current returns the providers built so far; the LLM-backed sentiment
// scorer reuses the configured LLM through it.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config, current func() app.Providers) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	for _, providerName := range anyllmProviders {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.OptionString("language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.OptionString("model_path", "")
		}
		var opts []whisper.NativeOption
		if lang := entry.OptionString("language", ""); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oastt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oastt.WithBaseURL(entry.BaseURL))
		}
		if lang := entry.OptionString("language", ""); lang != "" {
			opts = append(opts, oastt.WithLanguage(lang))
		}
		return oastt.New(entry.APIKey, entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := entry.OptionString("output_format", ""); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithEndpoint(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, entry.OptionString("voice_id", ""), opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := entry.OptionString("language", ""); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := entry.OptionString("api_mode", ""); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if speaker := entry.OptionString("speaker", ""); speaker != "" {
			opts = append(opts, coqui.WithSpeaker(speaker))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(entry config.ProviderEntry) (vad.Engine, error) {
		var opts []energy.Option
		if rms := entry.OptionFloat("full_scale_rms", 0); rms > 0 {
			opts = append(opts, energy.WithFullScaleRMS(rms))
		}
		return energy.New(opts...), nil
	})

	// ── Vision ────────────────────────────────────────────────────────────────

	reg.RegisterCamera("snapshot", func(entry config.ProviderEntry) (vision.Camera, error) {
		return snapshot.New(entry.BaseURL)
	})

	reg.RegisterFace("face-api", func(entry config.ProviderEntry) (vision.FaceAnalyzer, error) {
		return faceapi.New(entry.BaseURL, faceapi.WithDimensions(cfg.Memory.EncodingDimensions))
	})

	reg.RegisterVision("google-vision", func(entry config.ProviderEntry) (vision.EmotionClassifier, error) {
		var opts []gcpvision.Option
		if entry.BaseURL != "" {
			opts = append(opts, gcpvision.WithEndpoint(entry.BaseURL))
		}
		return gcpvision.New(entry.APIKey, opts...)
	})

	// ── Turn analysis ─────────────────────────────────────────────────────────

	reg.RegisterTone("http", func(entry config.ProviderEntry) (tone.Classifier, error) {
		return httptone.New(entry.BaseURL), nil
	})

	reg.RegisterSentiment("lexicon", func(entry config.ProviderEntry) (sentiment.Scorer, error) {
		path := entry.OptionString("path", "")
		if path == "" {
			return lexicon.New(nil)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read lexicon: %w", err)
		}
		lx, err := lexicon.Parse(data)
		if err != nil {
			return nil, err
		}
		return lexicon.New(lx)
	})

	reg.RegisterSentiment("llm", func(config.ProviderEntry) (sentiment.Scorer, error) {
		p := current().LLM
		if p == nil {
			return nil, errors.New("llm sentiment scorer needs providers.llm")
		}
		return llmscore.New(p), nil
	})

	reg.RegisterNLP("prose", func(config.ProviderEntry) (nlp.Analyzer, error) {
		return prose.New(), nil
	})
	reg.RegisterNLP("rules", func(config.ProviderEntry) (nlp.Analyzer, error) {
		return rules.New(), nil
	})

	// ── Audio devices ─────────────────────────────────────────────────────────

	format := audio.Format{SampleRate: cfg.Capture.SampleRate, Channels: cfg.Capture.Channels}

	reg.RegisterAudioIn("arecord", func(entry config.ProviderEntry) (audio.Source, error) {
		return audio.NewArecordSource(format, entry.OptionString("device", "")), nil
	})
	reg.RegisterAudioIn("command", func(entry config.ProviderEntry) (audio.Source, error) {
		name := entry.OptionString("command", "")
		if name == "" {
			return nil, errors.New("audio_in \"command\" needs options.command")
		}
		return audio.NewCommandSource(format, name, optStrings(entry.Options, "args")...), nil
	})

	reg.RegisterAudioOut("aplay", func(config.ProviderEntry) (audio.Player, error) {
		return audio.NewAplayPlayer(), nil
	})
	reg.RegisterAudioOut("command", func(entry config.ProviderEntry) (audio.Player, error) {
		name := entry.OptionString("command", "")
		if name == "" {
			return nil, errors.New("audio_out \"command\" needs options.command")
		}
		return &audio.CommandPlayer{Name: name, Args: optStrings(entry.Options, "args")}, nil
	})
	reg.RegisterAudioOut("wav-file", func(entry config.ProviderEntry) (audio.Player, error) {
		return &audio.WAVFilePlayer{Path: entry.OptionString("path", "ioanna-speech.wav")}, nil
	})
}

// buildProviders instantiates all providers named in cfg using the registry
// and fills ps. Primary LLM, STT and TTS providers with configured fallbacks
// are wrapped in circuit-breaker fallback groups. The returned closers
// release models and devices and must be closed even when err is non-nil.
func buildProviders(cfg *config.Config, reg *config.Registry, ps *app.Providers, metrics *observe.Metrics) ([]io.Closer, error) {
	b := &builder{metrics: metrics}
	p := cfg.Providers

	// The LLM comes first: the llm sentiment scorer reuses it.
	ps.LLM = build(b, "llm", p.LLM, reg.CreateLLM)
	if ps.LLM != nil && len(p.LLMFallbacks) > 0 {
		fb := resilience.NewLLMFallback(ps.LLM, p.LLM.Name, b.fallbackConfig("llm"))
		for _, e := range p.LLMFallbacks {
			if v := build(b, "llm fallback", e, reg.CreateLLM); v != nil {
				fb.AddFallback(e.Name, v)
			}
		}
		ps.LLM = fb
	}

	ps.STT = build(b, "stt", p.STT, reg.CreateSTT)
	if ps.STT != nil && len(p.STTFallbacks) > 0 {
		fb := resilience.NewSTTFallback(ps.STT, p.STT.Name, b.fallbackConfig("stt"))
		for _, e := range p.STTFallbacks {
			if v := build(b, "stt fallback", e, reg.CreateSTT); v != nil {
				fb.AddFallback(e.Name, v)
			}
		}
		ps.STT = fb
	}

	ps.TTS = build(b, "tts", p.TTS, reg.CreateTTS)
	if ps.TTS != nil && len(p.TTSFallbacks) > 0 {
		fb := resilience.NewTTSFallback(ps.TTS, p.TTS.Name, b.fallbackConfig("tts"))
		for _, e := range p.TTSFallbacks {
			if v := build(b, "tts fallback", e, reg.CreateTTS); v != nil {
				fb.AddFallback(e.Name, v)
			}
		}
		ps.TTS = fb
	}

	ps.VAD = build(b, "vad", p.VAD, reg.CreateVAD)
	ps.Camera = build(b, "camera", p.Camera, reg.CreateCamera)
	ps.Face = build(b, "face", p.Face, reg.CreateFace)
	ps.Vision = build(b, "vision", p.Vision, reg.CreateVision)
	ps.Tone = build(b, "tone", p.Tone, reg.CreateTone)
	ps.Sentiment = build(b, "sentiment", p.Sentiment, reg.CreateSentiment)
	ps.NLP = build(b, "nlp", p.NLP, reg.CreateNLP)
	ps.AudioIn = build(b, "audio_in", p.AudioIn, reg.CreateAudioIn)
	ps.AudioOut = build(b, "audio_out", p.AudioOut, reg.CreateAudioOut)

	return b.closers, errors.Join(b.errs...)
}

// builder collects creation errors and closable providers.
type builder struct {
	metrics *observe.Metrics
	closers []io.Closer
	errs    []error
}

func (b *builder) fallbackConfig(kind string) resilience.FallbackConfig {
	return resilience.FallbackConfig{CircuitBreaker: resilience.CircuitBreakerConfig{
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("provider circuit breaker changed state", "kind", kind, "provider", name, "from", from, "to", to)
			if to == resilience.StateOpen {
				b.metrics.RecordProviderError(context.Background(), name, kind)
			}
		},
	}}
}

// build creates one provider. Unset and unregistered names are skipped so
// the application reports every missing slot at once.
func build[T any](b *builder, kind string, entry config.ProviderEntry, create func(config.ProviderEntry) (T, error)) T {
	var zero T
	if entry.Name == "" {
		return zero
	}
	v, err := create(entry)
	switch {
	case errors.Is(err, config.ErrProviderNotRegistered):
		slog.Warn("provider not registered, skipping", "kind", kind, "name", entry.Name)
		return zero
	case err != nil:
		b.errs = append(b.errs, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err))
		return zero
	}
	if c, ok := any(v).(io.Closer); ok {
		b.closers = append(b.closers, c)
	}
	slog.Info("provider created", "kind", kind, "name", entry.Name)
	return v
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optStrings extracts a string list from a provider Options map. Non-string
// elements are skipped.
func optStrings(opts map[string]any, key string) []string {
	list, ok := opts[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
