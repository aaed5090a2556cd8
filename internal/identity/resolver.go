// Package identity works out who is standing in front of the camera.
//
// A [Resolver] waits for a face, turns it into an identity encoding and looks
// it up in the profile store. Returning users are welcomed by name; new users
// are asked for their name, which is pulled out of the transcribed answer by
// a chain of entity extractors, and a profile is created for them.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/ioanna/internal/events"
	"github.com/MrWong99/ioanna/internal/observe"
	"github.com/MrWong99/ioanna/pkg/memory"
	"github.com/MrWong99/ioanna/pkg/provider/nlp"
	"github.com/MrWong99/ioanna/pkg/provider/vision"
	"github.com/MrWong99/ioanna/pkg/provider/voice"
)

// ErrStopped is returned by [Resolver.Resolve] when the stop check fired
// before a user was identified.
var ErrStopped = errors.New("identity: stopped")

// FrameSource yields the most recent camera frame.
type FrameSource interface {
	Latest() (vision.Frame, bool)
}

// Listener records one spoken answer and returns its transcript.
type Listener interface {
	Listen(ctx context.Context) (string, error)
}

// ListenerFunc adapts a function to [Listener].
type ListenerFunc func(ctx context.Context) (string, error)

// Listen implements [Listener].
func (f ListenerFunc) Listen(ctx context.Context) (string, error) { return f(ctx) }

// Config tunes identification. Zero fields take the defaults.
type Config struct {
	// PollInterval is the delay between face detection attempts.
	PollInterval time.Duration

	// RetryDelay is the pause after a failed face encoding.
	RetryDelay time.Duration

	// MatchThreshold is the encoding distance under which a stored profile
	// is the same person.
	MatchThreshold float64

	// NameAttempts is how many answers are heard before falling back to
	// DefaultName.
	NameAttempts int

	// RetryPrompt is spoken when the face could not be encoded.
	RetryPrompt string

	// WelcomeBack greets a returning user. "{name}" is replaced with the
	// profile's display name.
	WelcomeBack string

	// Greeting introduces the agent and asks a new user for their name.
	Greeting string

	// NameRetryPrompt is spoken when no name was found in an answer.
	NameRetryPrompt string

	// DefaultName is used when no attempt yielded a name.
	DefaultName string
}

// Defaults for [Config].
const (
	DefaultPollInterval    = time.Second
	DefaultRetryDelay      = time.Second
	DefaultNameAttempts    = 2
	DefaultRetryPrompt     = "I couldn't recognize your face, please try again!"
	DefaultWelcomeBack     = "Welcome back, {name}!"
	DefaultGreeting        = "Hello there, I am Ioanna! What is your name?"
	DefaultNameRetryPrompt = "Sorry, I didn't catch that. What is your name?"
	DefaultName            = "friend"
)

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MatchThreshold <= 0 {
		c.MatchThreshold = memory.DefaultMatchThreshold
	}
	if c.NameAttempts <= 0 {
		c.NameAttempts = DefaultNameAttempts
	}
	if c.RetryPrompt == "" {
		c.RetryPrompt = DefaultRetryPrompt
	}
	if c.WelcomeBack == "" {
		c.WelcomeBack = DefaultWelcomeBack
	}
	if c.Greeting == "" {
		c.Greeting = DefaultGreeting
	}
	if c.NameRetryPrompt == "" {
		c.NameRetryPrompt = DefaultNameRetryPrompt
	}
	if c.DefaultName == "" {
		c.DefaultName = DefaultName
	}
}

// Result is the outcome of a successful identification.
type Result struct {
	Profile *memory.Profile

	// Returning is true when the profile was found in the store.
	Returning bool

	// Persisted is false when a new profile could not be stored and only
	// lives in memory for this session.
	Persisted bool
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithNameExtractors sets the extractors consulted for a new user's name, in
// order. The first non-empty result wins.
func WithNameExtractors(ex ...nlp.EntityExtractor) Option {
	return func(r *Resolver) { r.names = ex }
}

// WithNotifier sends face_detected events to n.
func WithNotifier(n events.Notifier) Option {
	return func(r *Resolver) { r.notifier = n }
}

// WithStopCheck makes Resolve return [ErrStopped] once stopped reports true.
// It is checked before every poll and retry.
func WithStopCheck(stopped func() bool) Option {
	return func(r *Resolver) { r.stopped = stopped }
}

// WithMetrics records vision latency on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// Resolver identifies the current user.
type Resolver struct {
	frames   FrameSource
	faces    vision.FaceAnalyzer
	store    memory.ProfileStore
	speaker  voice.Speaker
	listener Listener
	cfg      Config

	names    []nlp.EntityExtractor
	notifier events.Notifier
	stopped  func() bool
	metrics  *observe.Metrics
}

// NewResolver returns a Resolver.
func NewResolver(frames FrameSource, faces vision.FaceAnalyzer, store memory.ProfileStore,
	speaker voice.Speaker, listener Listener, cfg Config, opts ...Option) *Resolver {
	cfg.applyDefaults()
	r := &Resolver{
		frames:   frames,
		faces:    faces,
		store:    store,
		speaker:  speaker,
		listener: listener,
		cfg:      cfg,
		notifier: events.Discard,
		stopped:  func() bool { return false },
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve blocks until a user is identified, ctx is done or the stop check
// fires. Store failures never abort identification: a failed lookup treats
// the user as new and a failed insert keeps the profile in memory.
func (r *Resolver) Resolve(ctx context.Context) (Result, error) {
	if err := r.waitForFace(ctx); err != nil {
		return Result{}, err
	}
	r.notifier.Notify(ctx, events.FaceDetected(true))

	enc, err := r.encode(ctx)
	if err != nil {
		return Result{}, err
	}

	match, err := r.store.FindByEncoding(ctx, enc, r.cfg.MatchThreshold)
	switch {
	case err == nil:
		slog.Info("identity: returning user", "profile_id", match.Profile.ID, "distance", match.Distance)
		r.say(ctx, strings.ReplaceAll(r.cfg.WelcomeBack, "{name}", match.Profile.DisplayName))
		return Result{Profile: match.Profile, Returning: true, Persisted: true}, nil
	case errors.Is(err, memory.ErrNoMatch):
	default:
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		slog.Warn("identity: profile lookup failed, treating as new user", "err", err)
	}

	r.say(ctx, r.cfg.Greeting)
	name, err := r.askName(ctx)
	if err != nil {
		return Result{}, err
	}

	p, err := r.store.CreateProfile(ctx, name, enc)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		p = &memory.Profile{ID: uuid.New(), DisplayName: name, Encoding: enc, CreatedAt: time.Now().UTC()}
		slog.Warn("identity: storing profile failed, keeping it for this session only",
			"profile_id", p.ID, "err", err)
		return Result{Profile: p, Persisted: false}, nil
	}
	slog.Info("identity: new user", "profile_id", p.ID, "name", p.DisplayName)
	return Result{Profile: p, Persisted: true}, nil
}

// waitForFace polls the latest frame until a face is detected.
func (r *Resolver) waitForFace(ctx context.Context) error {
	for {
		if err := r.check(ctx); err != nil {
			return err
		}
		if f, ok := r.frames.Latest(); ok {
			start := time.Now()
			found, err := r.faces.DetectFace(ctx, f)
			r.observe(ctx, start)
			if err != nil {
				slog.Debug("identity: face detection failed", "err", err)
			} else if found {
				return nil
			}
		}
		if err := sleep(ctx, r.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// encode retries until the current frame yields an identity encoding.
func (r *Resolver) encode(ctx context.Context) ([]float32, error) {
	for {
		if err := r.check(ctx); err != nil {
			return nil, err
		}
		var (
			enc []float32
			err = vision.ErrNoFrame
		)
		if f, ok := r.frames.Latest(); ok {
			start := time.Now()
			enc, err = r.faces.EncodeFace(ctx, f)
			r.observe(ctx, start)
		}
		if err == nil && len(enc) > 0 {
			return enc, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Info("identity: unable to obtain face encoding, retrying", "err", err)
		r.say(ctx, r.cfg.RetryPrompt)
		if err := sleep(ctx, r.cfg.RetryDelay); err != nil {
			return nil, err
		}
	}
}

// askName listens for up to NameAttempts answers and returns the first name
// found, or DefaultName.
func (r *Resolver) askName(ctx context.Context) (string, error) {
	for attempt := range r.cfg.NameAttempts {
		if err := r.check(ctx); err != nil {
			return "", err
		}
		if attempt > 0 {
			r.say(ctx, r.cfg.NameRetryPrompt)
		}
		transcript, err := r.listener.Listen(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			slog.Warn("identity: listening for name failed", "attempt", attempt+1, "err", err)
			continue
		}
		if name := r.extractName(ctx, transcript); name != "" {
			return name, nil
		}
		slog.Info("identity: no name in answer", "attempt", attempt+1, "transcript", transcript)
	}
	return r.cfg.DefaultName, nil
}

// extractName returns the first person name any extractor finds.
func (r *Resolver) extractName(ctx context.Context, transcript string) string {
	if strings.TrimSpace(transcript) == "" {
		return ""
	}
	for _, ex := range r.names {
		people, err := ex.People(ctx, transcript)
		if err != nil {
			slog.Debug("identity: name extractor failed", "err", err)
			continue
		}
		for _, p := range people {
			if p = strings.TrimSpace(p); p != "" {
				return p
			}
		}
	}
	return ""
}

func (r *Resolver) say(ctx context.Context, text string) {
	if err := r.speaker.Say(ctx, text); err != nil {
		slog.Warn("identity: speaking failed", "err", err)
	}
}

func (r *Resolver) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.stopped() {
		return ErrStopped
	}
	return nil
}

func (r *Resolver) observe(ctx context.Context, start time.Time) {
	if r.metrics != nil {
		r.metrics.ObserveStage(ctx, observe.StageVision, start)
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("identity: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
