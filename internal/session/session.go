// Package session drives one conversation with one user.
//
// A [Session] is an explicit state machine:
//
//	await_identity → ask → record → score → persist → ask …
//	                                              └→ farewell → done
//
// [Session.Step] advances exactly one state, which keeps every transition
// testable on its own. [Session.Run] loops until the session is done.
//
// Stop requests are honoured at safe points only: while waiting for a face,
// at the start of every turn and between recording and scoring. Scoring and
// persisting a recorded answer are never interrupted by Stop; cancelling the
// context passed to Run aborts immediately.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/ioanna/internal/capture"
	"github.com/MrWong99/ioanna/internal/dialogue"
	"github.com/MrWong99/ioanna/internal/events"
	"github.com/MrWong99/ioanna/internal/identity"
	"github.com/MrWong99/ioanna/internal/observe"
	"github.com/MrWong99/ioanna/internal/turn"
	"github.com/MrWong99/ioanna/pkg/memory"
	"github.com/MrWong99/ioanna/pkg/provider/stt"
	"github.com/MrWong99/ioanna/pkg/provider/voice"
	"github.com/MrWong99/ioanna/pkg/types"
)

// DefaultGoodbye is spoken when the user says farewell.
const DefaultGoodbye = "Goodbye!"

// Identifier finds out who the user is.
type Identifier interface {
	Resolve(ctx context.Context) (identity.Result, error)
}

// Asker produces the next question for a user.
type Asker interface {
	Next(ctx context.Context, profile *memory.Profile) (string, error)
}

// Recorder records one spoken answer.
type Recorder interface {
	Record(ctx context.Context) (capture.Recording, error)
}

// Sampler collects facial-emotion samples while active is set.
type Sampler interface {
	Run(ctx context.Context, active *atomic.Bool) []types.EmotionSample
}

// Cleaner releases a per-turn artifact such as a synthesised speech file.
type Cleaner interface {
	Cleanup() error
}

// Config holds the collaborators and settings of a [Session]. Identity,
// Questioner, History, Speaker, Recorder, Sampler, STT, Segmenter,
// Annotator, Scorer and Store are required.
type Config struct {
	Identity   Identifier
	Questioner Asker
	History    *dialogue.History
	Speaker    voice.Speaker
	Recorder   Recorder
	Sampler    Sampler
	STT        stt.Provider
	Segmenter  *turn.Segmenter
	Annotator  *turn.Annotator
	Scorer     *turn.Scorer
	Store      memory.ProfileStore

	// Farewell decides when the conversation ends. Default: the phrase
	// "goodbye" anywhere in the answer.
	Farewell *FarewellDetector

	// Goodbye is spoken before the session ends. Default: "Goodbye!".
	Goodbye string

	// Notifier receives session events. Default: discard.
	Notifier events.Notifier

	// Cleaners are called after every turn and when the session ends.
	Cleaners []Cleaner

	// Metrics is optional.
	Metrics *observe.Metrics

	// ID identifies the session in events and logs. Default: a random UUID.
	ID string
}

// Session is one conversation. Create with [New]; a Session is single-use.
type Session struct {
	id  string
	cfg Config

	mu    sync.Mutex
	state State

	stopped atomic.Bool
	stopCh  chan struct{}
	stopper sync.Once
	running atomic.Bool

	profile   *memory.Profile
	persisted bool
	turnN     int
	cur       turnState
}

// turnState is everything one dialogue turn accumulates.
type turnState struct {
	question   string
	askedAt    time.Time
	startedAt  time.Time
	recording  capture.Recording
	samples    []types.EmotionSample
	transcript string
	memories   []memory.Entry
	annotation turn.Annotation
	farewell   bool
}

// New returns a session in [StateAwaitIdentity].
func New(cfg Config) *Session {
	if cfg.Farewell == nil {
		cfg.Farewell = NewFarewellDetector(nil, nil)
	}
	if cfg.Goodbye == "" {
		cfg.Goodbye = DefaultGoodbye
	}
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = events.Discard
	}
	cfg.Notifier = events.WithSession(cfg.Notifier, id)
	return &Session{
		id:     id,
		cfg:    cfg,
		state:  StateAwaitIdentity,
		stopCh: make(chan struct{}),
	}
}

// ID returns the session identifier stamped on every event.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Profile returns the identified user, or nil before identification.
func (s *Session) Profile() *memory.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// Stop asks the session to end at the next safe point. Safe to call more
// than once and from any goroutine.
func (s *Session) Stop() {
	s.stopper.Do(func() {
		s.stopped.Store(true)
		close(s.stopCh)
	})
}

// Stopped reports whether Stop was called.
func (s *Session) Stopped() bool { return s.stopped.Load() }

// Run advances the session until it is done. It returns nil after a
// farewell or a Stop, the context error when ctx is cancelled, and the
// first hard failure otherwise. Per-turn artifacts are released on every
// exit path.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer s.running.Store(false)

	if m := s.cfg.Metrics; m != nil {
		m.ActiveSessions.Add(ctx, 1)
		defer m.ActiveSessions.Add(context.WithoutCancel(ctx), -1)
	}
	slog.Info("session: started", "session_id", s.id)

	for {
		st, err := s.Step(ctx)
		if err != nil {
			return err
		}
		if st == StateDone {
			return nil
		}
	}
}

// Step runs the current state and moves to the next one, which it returns.
// Any error ends the session: the returned state is then [StateDone].
func (s *Session) Step(ctx context.Context) (State, error) {
	s.mu.Lock()
	cur := s.state
	s.mu.Unlock()

	if cur == StateDone {
		return StateDone, ErrFinished
	}

	ctx, span := observe.StartSpan(ctx, "session."+cur.String())
	span.SetAttributes(observe.KeySessionID.String(s.id), observe.KeyTurn.Int(s.turnN))

	next, err := s.run(ctx, cur)
	observe.EndSpan(span, err)

	if err != nil {
		s.finish(context.WithoutCancel(ctx), false)
		next = StateDone
		if ctx.Err() == nil {
			slog.Error("session: ended with error", "session_id", s.id, "state", cur, "err", err)
		}
	}
	s.setState(ctx, next)
	return next, err
}

func (s *Session) run(ctx context.Context, st State) (State, error) {
	switch st {
	case StateAwaitIdentity:
		return s.awaitIdentity(ctx)
	case StateAsk:
		return s.ask(ctx)
	case StateRecord:
		return s.record(ctx)
	case StateScore:
		return s.score(ctx)
	case StatePersist:
		return s.persist(ctx)
	case StateFarewell:
		return s.farewell(ctx)
	default:
		return StateDone, fmt.Errorf("session: unknown state %d", st)
	}
}

func (s *Session) setState(ctx context.Context, next State) {
	s.mu.Lock()
	changed := s.state != next
	s.state = next
	s.mu.Unlock()
	if changed && next != StateDone {
		slog.Debug("session: state changed", "session_id", s.id, "state", next)
		s.cfg.Notifier.Notify(ctx, events.StateChanged(next.String()))
	}
}

// ── States ──────────────────────────────────────────────────────────────────

func (s *Session) awaitIdentity(ctx context.Context) (State, error) {
	// Stop cancels the lookup so polling ends promptly.
	ictx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ictx.Done():
		}
	}()

	res, err := s.cfg.Identity.Resolve(ictx)
	if err != nil {
		if ctx.Err() != nil {
			return StateDone, ctx.Err()
		}
		if s.Stopped() || errors.Is(err, identity.ErrStopped) {
			return s.stop(ctx), nil
		}
		return StateDone, fmt.Errorf("session: identify: %w", err)
	}

	s.mu.Lock()
	s.profile = res.Profile
	s.persisted = res.Persisted
	s.mu.Unlock()
	slog.Info("session: user identified", "session_id", s.id,
		"profile_id", res.Profile.ID, "returning", res.Returning)
	return StateAsk, nil
}

func (s *Session) ask(ctx context.Context) (State, error) {
	if s.Stopped() {
		return s.stop(ctx), nil
	}
	if err := ctx.Err(); err != nil {
		return StateDone, err
	}

	s.turnN++
	s.cur = turnState{}
	question, err := s.cfg.Questioner.Next(ctx, s.profile)
	if err != nil && ctx.Err() != nil {
		return StateDone, ctx.Err()
	}
	s.cur.question = question
	s.cfg.Notifier.Notify(ctx, events.NewMessage(types.Message{Role: types.RoleAssistant, Content: question}))

	start := time.Now()
	if err := s.cfg.Speaker.Say(ctx, question); err != nil {
		if ctx.Err() != nil {
			return StateDone, ctx.Err()
		}
		slog.Warn("session: speaking question failed", "session_id", s.id, "turn", s.turnN, "err", err)
	}
	s.observe(ctx, observe.StageTTS, start)
	s.cur.askedAt = time.Now().UTC()
	return StateRecord, nil
}

func (s *Session) record(ctx context.Context) (State, error) {
	var active atomic.Bool
	active.Store(true)
	s.cur.startedAt = time.Now()

	var (
		rec     capture.Recording
		samples []types.EmotionSample
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer active.Store(false)
		var err error
		rec, err = s.cfg.Recorder.Record(gctx)
		return err
	})
	g.Go(func() error {
		samples = s.cfg.Sampler.Run(gctx, &active)
		return nil
	})
	err := g.Wait()
	s.cur.recording = rec
	s.cur.samples = samples

	if err != nil {
		if ctx.Err() != nil {
			return StateDone, ctx.Err()
		}
		return StateDone, fmt.Errorf("session: record: %w", err)
	}
	slog.Debug("session: answer recorded", "session_id", s.id, "turn", s.turnN,
		"duration", rec.Duration, "stop_reason", rec.StopReason, "samples", len(samples))

	if s.Stopped() {
		return s.stop(ctx), nil
	}
	return StateScore, nil
}

func (s *Session) score(ctx context.Context) (State, error) {
	rec := s.cur.recording

	start := time.Now()
	transcript, err := s.cfg.STT.Transcribe(ctx, rec.Clip)
	s.observe(ctx, observe.StageSTT, start)
	if err != nil {
		if ctx.Err() != nil {
			return StateDone, ctx.Err()
		}
		slog.Warn("session: transcription failed, treating answer as empty",
			"session_id", s.id, "turn", s.turnN, "err", err)
		transcript = ""
	}
	s.cur.transcript = transcript

	if transcript != "" {
		msg := types.Message{Role: types.RoleUser, Content: transcript}
		s.cfg.History.Append(msg)
		s.cfg.Notifier.Notify(ctx, events.NewMessage(msg))
	}
	s.cur.farewell = s.cfg.Farewell.IsFarewell(transcript)

	totalMs := float64(rec.Duration) / float64(time.Millisecond)
	tailMs := float64(rec.TrailingSilence) / float64(time.Millisecond)
	sentences, err := s.cfg.Segmenter.Segment(ctx, transcript, totalMs, tailMs)
	switch {
	case errors.Is(err, turn.ErrEmptyTranscript):
		slog.Info("session: empty answer, nothing to remember", "session_id", s.id, "turn", s.turnN)
		return StatePersist, nil
	case err != nil:
		if ctx.Err() != nil {
			return StateDone, ctx.Err()
		}
		slog.Warn("session: segmentation failed", "session_id", s.id, "turn", s.turnN, "err", err)
		return StatePersist, nil
	}
	turn.AttachAudio(sentences, rec.Clip)

	ann, err := s.cfg.Annotator.Annotate(ctx, sentences)
	s.cur.annotation = ann
	if err != nil {
		return StateDone, err
	}

	aligned := turn.Align(s.cur.samples, sentences, s.cur.startedAt)
	s.cur.memories = s.cfg.Scorer.Select(ctx, aligned)
	slog.Info("session: answer scored", "session_id", s.id, "turn", s.turnN,
		"sentences", len(sentences), "memories", len(s.cur.memories))
	return StatePersist, nil
}

func (s *Session) persist(ctx context.Context) (State, error) {
	t := memory.NewTurn(s.cur.question, s.cur.memories, s.cur.askedAt)

	if s.persisted {
		if err := s.cfg.Store.AppendTurn(ctx, s.profile.ID, t); err != nil {
			if ctx.Err() != nil {
				return StateDone, ctx.Err()
			}
			slog.Warn("session: storing turn failed, keeping it in memory only",
				"session_id", s.id, "profile_id", s.profile.ID, "turn", s.turnN, "err", err)
		} else if m := s.cfg.Metrics; m != nil {
			m.MemoriesPersisted.Add(ctx, int64(len(t.Memories)))
		}
	}

	s.mu.Lock()
	s.profile.Turns = append(s.profile.Turns, t)
	s.mu.Unlock()

	s.cfg.Notifier.Notify(ctx, events.MemoriesUpdated(s.cfg.History.Snapshot()))

	outcome := "ok"
	if s.cur.transcript == "" {
		outcome = "empty"
	}
	if m := s.cfg.Metrics; m != nil {
		m.RecordTurn(ctx, outcome)
		m.ObserveStage(ctx, observe.StageTurn, s.cur.startedAt)
	}

	s.releaseTurn()
	if s.cur.farewell {
		return StateFarewell, nil
	}
	return StateAsk, nil
}

func (s *Session) farewell(ctx context.Context) (State, error) {
	if err := s.cfg.Speaker.Say(ctx, s.cfg.Goodbye); err != nil && ctx.Err() == nil {
		slog.Warn("session: speaking goodbye failed", "session_id", s.id, "err", err)
	}
	s.finish(ctx, true)
	slog.Info("session: finished", "session_id", s.id, "turns", s.turnN)
	return StateDone, nil
}

// stop ends the session at a safe point.
func (s *Session) stop(ctx context.Context) State {
	slog.Info("session: stopped", "session_id", s.id, "turns", s.turnN)
	s.finish(ctx, true)
	return StateDone
}

// finish releases every per-turn artifact and announces the end.
func (s *Session) finish(ctx context.Context, ok bool) {
	s.releaseTurn()
	s.cfg.Notifier.Notify(ctx, events.SessionFinished(ok))
}

// releaseTurn deletes the recording, segment files and speech output of the
// current turn. Failures are logged.
func (s *Session) releaseTurn() {
	var errs []error
	if err := s.cur.recording.Remove(); err != nil {
		errs = append(errs, err)
	}
	if err := s.cur.annotation.Remove(); err != nil {
		errs = append(errs, err)
	}
	for _, c := range s.cfg.Cleaners {
		if err := c.Cleanup(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Warn("session: releasing turn artifacts failed", "session_id", s.id, "turn", s.turnN, "err", err)
	}
	s.cur.recording = capture.Recording{}
	s.cur.annotation = turn.Annotation{}
}

func (s *Session) observe(ctx context.Context, stage string, start time.Time) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveStage(ctx, stage, start)
	}
}
