package anyllm

import (
	"context"
	"slices"
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/ioanna/pkg/provider/llm"
	"github.com/MrWong99/ioanna/pkg/types"
)

func TestParams(t *testing.T) {
	t.Parallel()

	history := []types.Message{
		{Role: types.RoleAssistant, Content: "Where do you hike?"},
		{Role: types.RoleUser, Content: "Mostly in the Alps."},
	}
	tests := []struct {
		name      string
		req       llm.CompletionRequest
		wantRoles []string
		wantTemp  *float64
		wantMax   *int
	}{
		{
			name:      "system prompt leads",
			req:       llm.CompletionRequest{SystemPrompt: "Ask one question.", Messages: history, Temperature: 0.7, MaxTokens: 50},
			wantRoles: []string{anyllmlib.RoleSystem, "assistant", "user"},
			wantTemp:  ptr(0.7),
			wantMax:   ptr(50),
		},
		{
			name:      "defaults left unset",
			req:       llm.CompletionRequest{Messages: history[1:]},
			wantRoles: []string{"user"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &Provider{name: "mistral", model: "mistral-tiny"}
			got := p.params(tt.req)

			if got.Model != "mistral-tiny" {
				t.Errorf("model = %q", got.Model)
			}
			roles := make([]string, len(got.Messages))
			for i, m := range got.Messages {
				roles[i] = m.Role
			}
			if !slices.Equal(roles, tt.wantRoles) {
				t.Errorf("roles = %v, want %v", roles, tt.wantRoles)
			}
			if last := got.Messages[len(got.Messages)-1]; last.ContentString() != "Mostly in the Alps." {
				t.Errorf("last content = %q", last.ContentString())
			}
			if !equalPtr(got.Temperature, tt.wantTemp) {
				t.Errorf("temperature = %v, want %v", got.Temperature, tt.wantTemp)
			}
			if !equalPtr(got.MaxTokens, tt.wantMax) {
				t.Errorf("max tokens = %v, want %v", got.MaxTokens, tt.wantMax)
			}
		})
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider string
		model    string
		errPart  string
	}{
		{name: "empty model", provider: "mistral", errPart: "model"},
		{name: "unknown provider", provider: "nope", model: "m", errPart: "supported: anthropic"},
		{name: "empty provider", provider: "", model: "m", errPart: "unsupported"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tt.provider, tt.model)
			if err == nil || !strings.Contains(err.Error(), tt.errPart) {
				t.Errorf("New(%q, %q) err = %v, want mention of %q", tt.provider, tt.model, err, tt.errPart)
			}
		})
	}
}

func TestSupported(t *testing.T) {
	t.Parallel()

	got := Supported()
	if !slices.IsSorted(got) {
		t.Errorf("Supported() not sorted: %v", got)
	}
	for _, want := range []string{"mistral", "ollama", "anthropic"} {
		if !slices.Contains(got, want) {
			t.Errorf("Supported() lacks %q", want)
		}
	}
}

func TestComplete_RejectsInvalidRequest(t *testing.T) {
	t.Parallel()

	// The nil backend proves validation happens before any network call.
	p := &Provider{name: "mistral", model: "m"}
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err == nil {
		t.Error("expected error for an empty request")
	}
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{SystemPrompt: "x", Temperature: 3}); err == nil {
		t.Error("expected error for temperature 3")
	}
}

func ptr[T any](v T) *T { return &v }

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
