package dialogue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/ioanna/pkg/memory"
	"github.com/MrWong99/ioanna/pkg/provider/llm"
	llmmock "github.com/MrWong99/ioanna/pkg/provider/llm/mock"
	"github.com/MrWong99/ioanna/pkg/types"
)

func testProfile() *memory.Profile {
	return &memory.Profile{
		DisplayName: "Maria",
		Turns: []memory.Turn{
			memory.NewTurn("What do you love doing?", []memory.Entry{{Text: "I adore painting at the sea."}}, time.Now()),
			memory.NewTurn("Anything else?", nil, time.Now()),
		},
	}
}

func TestNext_OpenerOmitsMemories(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{Responses: []string{"  Hi Maria, what was the best trip you ever took?  "}}
	h := NewHistory()
	q := NewQuestioner(p, h, Config{})

	got, err := q.Next(context.Background(), testProfile())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got != "Hi Maria, what was the best trip you ever took?" {
		t.Errorf("question = %q, want trimmed model output", got)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("llm calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	if !strings.Contains(req.SystemPrompt, "Maria") || !strings.Contains(req.SystemPrompt, "Ioanna") {
		t.Errorf("opener prompt missing names: %q", req.SystemPrompt)
	}
	if strings.Contains(req.SystemPrompt, "painting") {
		t.Error("opener prompt includes stored memories")
	}
	if !strings.Contains(req.SystemPrompt, "25 words") {
		t.Error("opener prompt missing word limit")
	}
	if req.MaxTokens != 50 || req.Temperature != 0.7 {
		t.Errorf("request limits = %d/%v, want 50/0.7", req.MaxTokens, req.Temperature)
	}
}

func TestNext_AppendsQuestionOnce(t *testing.T) {
	t.Parallel()

	h := NewHistory()
	q := NewQuestioner(&llmmock.Provider{Responses: []string{"Q1?"}}, h, Config{})

	if _, err := q.Next(context.Background(), testProfile()); err != nil {
		t.Fatalf("Next: %v", err)
	}
	snap := h.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("history = %d messages, want 1", len(snap))
	}
	if snap[0] != (types.Message{Role: types.RoleAssistant, Content: "Q1?"}) {
		t.Errorf("history[0] = %+v", snap[0])
	}
}

func TestNext_FollowUpUsesRecentHistoryAndMemories(t *testing.T) {
	t.Parallel()

	h := NewHistory()
	for i := range 4 {
		h.Append(types.Message{Role: types.RoleAssistant, Content: "old question " + string(rune('a'+i))})
		h.Append(types.Message{Role: types.RoleUser, Content: "old answer " + string(rune('a'+i))})
	}
	p := &llmmock.Provider{Responses: []string{"Next?"}}
	q := NewQuestioner(p, h, Config{})

	if _, err := q.Next(context.Background(), testProfile()); err != nil {
		t.Fatalf("Next: %v", err)
	}
	prompt := p.Calls()[0].Req.SystemPrompt

	// The last five of eight messages start with "old answer b".
	if strings.Contains(prompt, "old question b") {
		t.Error("prompt includes messages outside the history window")
	}
	for _, want := range []string{"user: old answer b", "assistant: old question d", "user: old answer d"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if !strings.Contains(prompt, "I adore painting at the sea.") {
		t.Error("follow-up prompt missing remembered answer")
	}
	if strings.Contains(prompt, "Anything else?") {
		t.Error("prompt includes a turn without remembered answers")
	}
}

func TestNext_FollowUpCounterRequestsNewTopic(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{Responses: []string{"q"}}
	h := NewHistory()
	q := NewQuestioner(p, h, Config{FollowUpLimit: 2})

	for range 4 {
		if _, err := q.Next(context.Background(), testProfile()); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	calls := p.Calls()
	newTopic := func(i int) bool {
		return strings.Contains(calls[i].Req.SystemPrompt, "different part of their life")
	}
	// Call 0 is the opener, 1 follows up, 2 changes topic, 3 follows up.
	want := []bool{false, false, true, false}
	for i, w := range want {
		if got := newTopic(i); got != w {
			t.Errorf("call %d new topic = %v, want %v", i, got, w)
		}
	}
}

func TestNext_FallbackOnError(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("rate limited")
	h := NewHistory()
	q := NewQuestioner(&llmmock.Provider{CompleteErr: sentinel}, h, Config{FallbackQuestion: "What is on your mind?"})

	got, err := q.Next(context.Background(), testProfile())
	if !errors.Is(err, sentinel) {
		t.Errorf("err = %v, want %v", err, sentinel)
	}
	if got != "What is on your mind?" {
		t.Errorf("question = %q, want fallback", got)
	}
	if snap := h.Snapshot(); len(snap) != 1 || snap[0].Content != got {
		t.Errorf("history = %+v, want the fallback question", snap)
	}
}

func TestNext_EmptyResponseFallsBack(t *testing.T) {
	t.Parallel()

	for name, p := range map[string]*llmmock.Provider{
		"blank": {Responses: []string{"   "}},
		"nil":   {CompleteResponse: nil},
		"empty": {CompleteResponse: &llm.CompletionResponse{}},
	} {
		t.Run(name, func(t *testing.T) {
			q := NewQuestioner(p, NewHistory(), Config{})
			got, err := q.Next(context.Background(), testProfile())
			if !errors.Is(err, ErrEmptyQuestion) {
				t.Errorf("err = %v, want ErrEmptyQuestion", err)
			}
			if got != DefaultFallbackQuestion {
				t.Errorf("question = %q, want default fallback", got)
			}
		})
	}
}

func TestRecentTurns(t *testing.T) {
	t.Parallel()

	turns := make([]memory.Turn, 5)
	for i := range turns {
		turns[i].Question = string(rune('a' + i))
	}
	got := recentTurns(turns, 2)
	if len(got) != 2 || got[0].Question != "d" || got[1].Question != "e" {
		t.Errorf("recentTurns = %+v", got)
	}
	if got := recentTurns(turns, 10); len(got) != 5 {
		t.Errorf("recentTurns(10) = %d turns, want 5", len(got))
	}
}
