// Package app wires all Ioanna subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the camera loop, the event dispatcher, the
// conversation loop and the HTTP server, and Shutdown tears everything down
// in order.
//
// For testing, inject test doubles via functional options (WithStore,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/ioanna/internal/capture"
	"github.com/MrWong99/ioanna/internal/config"
	"github.com/MrWong99/ioanna/internal/dialogue"
	"github.com/MrWong99/ioanna/internal/events"
	"github.com/MrWong99/ioanna/internal/health"
	"github.com/MrWong99/ioanna/internal/identity"
	"github.com/MrWong99/ioanna/internal/mcp/memoryserver"
	"github.com/MrWong99/ioanna/internal/observe"
	"github.com/MrWong99/ioanna/internal/resilience"
	"github.com/MrWong99/ioanna/internal/session"
	"github.com/MrWong99/ioanna/internal/transcript/phonetic"
	"github.com/MrWong99/ioanna/internal/turn"
	"github.com/MrWong99/ioanna/pkg/audio"
	"github.com/MrWong99/ioanna/pkg/memory"
	"github.com/MrWong99/ioanna/pkg/memory/postgres"
	"github.com/MrWong99/ioanna/pkg/provider/llm"
	"github.com/MrWong99/ioanna/pkg/provider/nlp"
	"github.com/MrWong99/ioanna/pkg/provider/sentiment"
	"github.com/MrWong99/ioanna/pkg/provider/stt"
	"github.com/MrWong99/ioanna/pkg/provider/tone"
	"github.com/MrWong99/ioanna/pkg/provider/tts"
	"github.com/MrWong99/ioanna/pkg/provider/vad"
	"github.com/MrWong99/ioanna/pkg/provider/vision"
	"github.com/MrWong99/ioanna/pkg/provider/voice"
)

// Providers holds one interface value per provider slot. Populated by
// main.go via the config registry. Every slot is required.
type Providers struct {
	LLM       llm.Provider
	STT       stt.Provider
	TTS       tts.Provider
	VAD       vad.Engine
	Camera    vision.Camera
	Face      vision.FaceAnalyzer
	Vision    vision.EmotionClassifier
	Tone      tone.Classifier
	Sentiment sentiment.Scorer
	NLP       nlp.Analyzer
	AudioIn   audio.Source
	AudioOut  audio.Player
}

// missing returns the names of unset slots.
func (p *Providers) missing() []string {
	var out []string
	for _, s := range []struct {
		name string
		set  bool
	}{
		{"llm", p.LLM != nil}, {"stt", p.STT != nil}, {"tts", p.TTS != nil},
		{"vad", p.VAD != nil}, {"camera", p.Camera != nil}, {"face", p.Face != nil},
		{"vision", p.Vision != nil}, {"tone", p.Tone != nil},
		{"sentiment", p.Sentiment != nil}, {"nlp", p.NLP != nil},
		{"audio_in", p.AudioIn != nil}, {"audio_out", p.AudioOut != nil},
	} {
		if !s.set {
			out = append(out, s.name)
		}
	}
	return out
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	store      memory.ProfileStore
	guard      *session.StoreGuard
	metrics    *observe.Metrics
	logLevel   *slog.LevelVar
	frames     *capture.FrameBuffer
	dispatcher *events.Dispatcher
	hub        *events.Hub
	recorder   *capture.Recorder
	sampler    *capture.Sampler
	speaker    *voice.TTSSpeaker
	segmenter  *turn.Segmenter
	annotator  *turn.Annotator
	scorer     *turn.Scorer
	farewell   *session.FarewellDetector
	memoryMCP  *memoryserver.Server
	sessions   *SessionManager
	handler    http.Handler

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a profile store instead of connecting to PostgreSQL.
func WithStore(s memory.ProfileStore) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics records telemetry on m instead of the global meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevel lets [App.ApplyConfig] change the level of the running logger.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers come
// from main.go (populated via the config registry). New connects to the
// profile store and prepares the work directory but starts no goroutines.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if missing := providers.missing(); len(missing) > 0 {
		return nil, fmt.Errorf("app: providers not configured: %v", missing)
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		frames:    &capture.FrameBuffer{},
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Work directory ───────────────────────────────────────────────
	if dir := cfg.Capture.WorkDir; dir != "" {
		if err := os.MkdirAll(filepath.Join(dir, "segments"), 0o755); err != nil {
			return nil, fmt.Errorf("app: create work dir: %w", err)
		}
	}

	// ── 2. Profile store ────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 3. Events ───────────────────────────────────────────────────────
	a.hub = events.NewHub(
		events.WithOriginPatterns(cfg.Events.OriginPatterns...),
		events.WithHubMetrics(a.metrics),
	)
	a.dispatcher = events.NewDispatcher(
		[]events.Sink{a.hub, &events.LogSink{Level: slog.LevelDebug}},
		events.WithBufferSize(cfg.Events.BufferSize),
		events.WithMetrics(a.metrics),
	)

	// ── 4. Turn pipeline ────────────────────────────────────────────────
	a.initCapture()
	a.speaker = voice.New(providers.TTS, providers.AudioOut, a.speakerOptions()...)
	a.segmenter = turn.NewSegmenter(providers.NLP)
	a.annotator = turn.NewAnnotator(providers.Sentiment, providers.Tone, a.annotatorOptions()...)
	a.scorer = turn.NewScorer(*cfg.Memory.Scoring, turn.WithScorerMetrics(a.metrics))

	var spotter *phonetic.Matcher
	if cfg.Dialogue.PhoneticFarewell {
		spotter = phonetic.New()
	}
	a.farewell = session.NewFarewellDetector(cfg.Dialogue.FarewellPhrases, spotter)

	// ── 5. Conversations ────────────────────────────────────────────────
	a.sessions = NewSessionManager(a.newSession, WithSessionPause(cfg.Identity.RetryDelay))

	// ── 6. HTTP ─────────────────────────────────────────────────────────
	if cfg.MCP.Enabled {
		a.memoryMCP = memoryserver.New(a.store)
	}
	a.handler = a.routes()
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore connects to PostgreSQL unless a store was injected, and wraps
// the store so failed turn writes never end a conversation.
func (a *App) initStore(ctx context.Context) error {
	if a.store == nil {
		dsn := a.cfg.Memory.PostgresDSN
		if dsn == "" {
			return errors.New("memory.postgres_dsn is required when no profile store is injected")
		}
		store, err := postgres.NewStore(ctx, dsn, a.cfg.Memory.EncodingDimensions)
		if err != nil {
			return err
		}
		a.store = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})
	}
	a.guard = session.NewStoreGuard(a.store)
	return nil
}

// initCapture builds the recorder and the emotion sampler.
func (a *App) initCapture() {
	c := a.cfg.Capture
	rc := capture.RecorderConfig{
		ChunkSamples:    c.ChunkSamples,
		SilenceLimit:    c.SilenceLimit,
		MaxDuration:     c.MaxDuration,
		SpeechThreshold: c.SpeechThreshold,
	}
	if c.WorkDir != "" {
		rc.OutputPath = filepath.Join(c.WorkDir, "output.wav")
	}
	a.recorder = capture.NewRecorder(a.providers.AudioIn, a.providers.VAD, rc)

	a.sampler = capture.NewSampler(a.frames, a.providers.Vision,
		capture.WithPollInterval(c.EmotionPollInterval),
		capture.WithMinQueryInterval(c.EmotionMinInterval),
		capture.WithRetryPolicy(emotionRetryPolicy(c)),
		capture.WithSamplerMetrics(a.metrics),
	)
}

// emotionRetryPolicy is the classifier retry policy. The sampler records
// retries itself, so no OnRetry hook is set.
func emotionRetryPolicy(c config.CaptureConfig) resilience.RetryPolicy {
	return resilience.RetryPolicy{
		MaxAttempts: c.EmotionRetries,
		Backoff:     c.EmotionRetryBackoff,
		Retryable:   vision.IsTransient,
	}
}

func (a *App) speakerOptions() []voice.Option {
	var opts []voice.Option
	if dir := a.cfg.Capture.WorkDir; dir != "" {
		opts = append(opts, voice.WithOutputFile(filepath.Join(dir, "speech.wav")))
	}
	return opts
}

func (a *App) annotatorOptions() []turn.AnnotatorOption {
	opts := []turn.AnnotatorOption{turn.WithAnnotatorMetrics(a.metrics)}
	if dir := a.cfg.Capture.WorkDir; dir != "" {
		opts = append(opts, turn.WithSegmentDir(filepath.Join(dir, "segments")))
	}
	return opts
}

// newSession builds one conversation. Every conversation gets a fresh
// history and questioner; the capture devices and scorers are shared.
func (a *App) newSession() (*session.Session, *dialogue.History) {
	id := uuid.NewString()
	notifier := events.WithSession(a.dispatcher, id)
	history := dialogue.NewHistory()

	d := a.cfg.Dialogue
	questioner := dialogue.NewQuestioner(a.providers.LLM, history, dialogue.Config{
		Persona:          d.Persona,
		HistoryWindow:    d.HistoryWindow,
		MemoryTurns:      d.MemoryTurns,
		WordLimit:        d.WordLimit,
		MaxTokens:        d.MaxTokens,
		Temperature:      d.Temperature,
		FollowUpLimit:    d.FollowUpLimit,
		FallbackQuestion: d.FallbackQuestion,
	}, dialogue.WithMetrics(a.metrics))

	var sess *session.Session
	i := a.cfg.Identity
	resolver := identity.NewResolver(a.frames, a.providers.Face, a.guard, a.speaker,
		identity.ListenerFunc(a.listen),
		identity.Config{
			PollInterval:    i.PollInterval,
			RetryDelay:      i.RetryDelay,
			MatchThreshold:  a.cfg.Memory.MatchThreshold,
			NameAttempts:    i.NameAttempts,
			RetryPrompt:     i.RetryPrompt,
			WelcomeBack:     i.WelcomeBack,
			Greeting:        i.Greeting,
			NameRetryPrompt: i.NameRetryPrompt,
			DefaultName:     i.DefaultName,
		},
		identity.WithNameExtractors(a.providers.NLP),
		identity.WithNotifier(notifier),
		identity.WithStopCheck(func() bool { return sess.Stopped() }),
		identity.WithMetrics(a.metrics),
	)

	sess = session.New(session.Config{
		ID:         id,
		Identity:   resolver,
		Questioner: questioner,
		History:    history,
		Speaker:    a.speaker,
		Recorder:   a.recorder,
		Sampler:    a.sampler,
		STT:        a.providers.STT,
		Segmenter:  a.segmenter,
		Annotator:  a.annotator,
		Scorer:     a.scorer,
		Store:      a.guard,
		Farewell:   a.farewell,
		Goodbye:    d.Goodbye,
		Notifier:   a.dispatcher,
		Cleaners:   []session.Cleaner{a.speaker},
		Metrics:    a.metrics,
	})
	return sess, history
}

// listen records one answer and transcribes it. It is used while asking a
// new user for their name.
func (a *App) listen(ctx context.Context) (string, error) {
	rec, err := a.recorder.Record(ctx)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := rec.Remove(); err != nil {
			slog.Debug("app: removing name recording failed", "err", err)
		}
	}()
	if rec.Clip.Empty() {
		return "", nil
	}
	start := time.Now()
	text, err := a.providers.STT.Transcribe(ctx, rec.Clip)
	a.metrics.ObserveStage(ctx, observe.StageSTT, start)
	return text, err
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the camera loop, the event dispatcher, the conversation loop
// and the HTTP server, and blocks until ctx is cancelled or the server
// fails. It returns nil after a clean cancellation.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen on %s: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve is [App.Run] on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return capture.Grab(gctx, a.providers.Camera, a.frames, a.cfg.Capture.FrameInterval)
	})
	g.Go(func() error { return a.dispatcher.Run(gctx) })
	g.Go(func() error { return a.sessions.Run(gctx) })
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: http server: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	slog.Info("app running", "listen_addr", ln.Addr().String(), "mcp", a.cfg.MCP.Enabled)
	return g.Wait()
}

// Handler returns the HTTP handler serving metrics, health, the UI API, the
// event stream and the memory MCP server.
func (a *App) Handler() http.Handler { return a.handler }

// Sessions returns the conversation manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// Frames returns the camera frame buffer.
func (a *App) Frames() *capture.FrameBuffer { return a.frames }

// ApplyConfig applies the hot-reloadable parts of a config change: the log
// level and the scoring policy. Other changes are logged and take effect
// after a restart.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(SlogLevel(d.NewLogLevel))
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if d.ScoringChanged {
		a.scorer.SetPolicy(d.NewScoring)
		slog.Info("app: scoring policy changed",
			"threshold", d.NewScoring.Threshold,
			"subjectivity_weight", d.NewScoring.SubjectivityWeight,
			"audio_weight", d.NewScoring.AudioWeight,
			"facial_weight", d.NewScoring.FacialWeight)
	}
	if d.RestartRequired {
		slog.Warn("app: config sections changed that need a restart", "sections", d.RestartSections)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		_ = a.sessions.Stop()
		a.dispatcher.Close()
		if err := a.speaker.Cleanup(); err != nil {
			slog.Warn("speech file cleanup error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// SlogLevel converts a config log level to a slog level.
func SlogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// readiness returns the checks behind /readyz.
func (a *App) readiness() []health.Checker {
	return []health.Checker{
		health.PingCheck("profile_store", a.store),
		health.FreshnessCheck("camera", a.cfg.Capture.FrameMaxAge, a.frames.Fresh),
		{Name: "profile_writes", Advisory: true, Check: func(context.Context) error {
			if a.guard.IsDegraded() {
				return errors.New("last turn could not be stored")
			}
			return nil
		}},
	}
}
