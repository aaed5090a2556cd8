package dialogue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/ioanna/internal/observe"
	"github.com/MrWong99/ioanna/pkg/memory"
	"github.com/MrWong99/ioanna/pkg/provider/llm"
	"github.com/MrWong99/ioanna/pkg/types"
)

// Config tunes question generation. Zero fields take the defaults.
type Config struct {
	// Persona is the agent's name used in prompts. Default: "Ioanna".
	Persona string

	// HistoryWindow is how many recent messages follow-up prompts include.
	// Default: 5.
	HistoryWindow int

	// MemoryTurns caps how many remembered turns are included, newest
	// first. Default: 20.
	MemoryTurns int

	// WordLimit is the maximum question length requested from the model.
	// Default: 25.
	WordLimit int

	// MaxTokens and Temperature are passed to the model. Defaults: 50, 0.7.
	MaxTokens   int
	Temperature float64

	// FollowUpLimit is how many questions may follow up on one topic before
	// the model is asked to change it. Default: 2.
	FollowUpLimit int

	// FallbackQuestion is asked when the model fails or returns nothing.
	FallbackQuestion string
}

// Defaults for [Config].
const (
	DefaultPersona          = "Ioanna"
	DefaultHistoryWindow    = 5
	DefaultMemoryTurns      = 20
	DefaultWordLimit        = 25
	DefaultMaxTokens        = 50
	DefaultTemperature      = 0.7
	DefaultFollowUpLimit    = 2
	DefaultFallbackQuestion = "Tell me something that made you happy recently?"
)

func (c *Config) applyDefaults() {
	if c.Persona == "" {
		c.Persona = DefaultPersona
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = DefaultHistoryWindow
	}
	if c.MemoryTurns <= 0 {
		c.MemoryTurns = DefaultMemoryTurns
	}
	if c.WordLimit <= 0 {
		c.WordLimit = DefaultWordLimit
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Temperature <= 0 {
		c.Temperature = DefaultTemperature
	}
	if c.FollowUpLimit <= 0 {
		c.FollowUpLimit = DefaultFollowUpLimit
	}
	if c.FallbackQuestion == "" {
		c.FallbackQuestion = DefaultFallbackQuestion
	}
}

// Questioner asks the next question of a conversation. Every question it
// returns is appended to the history as an assistant message exactly once.
// Calls are serialised.
type Questioner struct {
	llm     llm.Provider
	history *History
	cfg     Config
	metrics *observe.Metrics

	mu        sync.Mutex
	followUps int
}

// QuestionerOption configures a [Questioner].
type QuestionerOption func(*Questioner)

// WithMetrics records model latency and failures on m.
func WithMetrics(m *observe.Metrics) QuestionerOption {
	return func(q *Questioner) { q.metrics = m }
}

// NewQuestioner returns a Questioner that generates questions with p and
// records them in history.
func NewQuestioner(p llm.Provider, history *History, cfg Config, opts ...QuestionerOption) *Questioner {
	cfg.applyDefaults()
	q := &Questioner{llm: p, history: history, cfg: cfg}
	for _, o := range opts {
		o(q)
	}
	return q
}

// History returns the history the questioner appends to.
func (q *Questioner) History() *History {
	return q.history
}

// Next generates the next question for profile.
//
// The first question of a session (empty history) only uses the user's name.
// Later questions include the most recent messages and the user's remembered
// answers. When the model fails the configured fallback question is used and
// returned together with the model error; the returned text is always safe
// to speak.
func (q *Questioner) Next(ctx context.Context, profile *memory.Profile) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	in := promptInput{
		Persona:   q.cfg.Persona,
		UserName:  profile.DisplayName,
		WordLimit: q.cfg.WordLimit,
	}
	var prompt string
	if q.history.Len() == 0 {
		prompt = openerPrompt(in)
	} else {
		in.Recent = q.history.Last(q.cfg.HistoryWindow)
		in.Memories = recentTurns(profile.Turns, q.cfg.MemoryTurns)
		in.NewTopic = q.followUps == 0
		prompt = followUpPrompt(in)
	}

	question, err := q.complete(ctx, prompt)
	if err != nil {
		slog.Warn("dialogue: question generation failed, using fallback",
			"profile_id", profile.ID, "err", err)
		question = q.cfg.FallbackQuestion
	} else {
		q.followUps++
		if q.followUps >= q.cfg.FollowUpLimit {
			q.followUps = 0
		}
	}

	q.history.Append(types.Message{Role: types.RoleAssistant, Content: question})
	return question, err
}

func (q *Questioner) complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	resp, err := q.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: prompt,
		MaxTokens:    q.cfg.MaxTokens,
		Temperature:  q.cfg.Temperature,
	})
	if q.metrics != nil {
		q.metrics.ObserveStage(ctx, observe.StageLLM, start)
		status := "ok"
		if err != nil {
			status = "error"
			q.metrics.RecordProviderError(ctx, q.llm.Model(), "llm")
		}
		q.metrics.RecordProviderRequest(ctx, q.llm.Model(), "llm", status)
	}
	if err != nil {
		return "", fmt.Errorf("dialogue: complete: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyQuestion
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", ErrEmptyQuestion
	}
	return text, nil
}

// recentTurns returns at most n turns, the newest last.
func recentTurns(turns []memory.Turn, n int) []memory.Turn {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}
