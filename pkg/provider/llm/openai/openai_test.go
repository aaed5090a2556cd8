package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/ioanna/pkg/provider/llm"
	"github.com/MrWong99/ioanna/pkg/types"
)

// fakeCompletions serves /chat/completions with a canned reply and records
// the decoded request body.
func fakeCompletions(t *testing.T, content string, got *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			}},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 6, "total_tokens": 18},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestComplete(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := fakeCompletions(t, "  What got you into hiking?  ", &body)
	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "You are Ioanna.",
		Messages:     []types.Message{{Role: types.RoleUser, Content: "I hike a lot."}},
		Temperature:  0.7,
		MaxTokens:    50,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "What got you into hiking?" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 18 {
		t.Errorf("total tokens = %d, want 18", resp.Usage.TotalTokens)
	}

	if body["model"] != "gpt-4o-mini" {
		t.Errorf("request model = %v", body["model"])
	}
	if body["temperature"] != 0.7 || body["max_completion_tokens"] != float64(50) {
		t.Errorf("sampling params = %v / %v", body["temperature"], body["max_completion_tokens"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("request messages = %d, want 2", len(msgs))
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Errorf("first message role = %v, want system", first["role"])
	}
}

func TestComplete_EmptyReply(t *testing.T) {
	t.Parallel()

	var body map[string]any
	srv := fakeCompletions(t, "   ", &body)
	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Complete(context.Background(), llm.CompletionRequest{SystemPrompt: "Ask."})
	if !errors.Is(err, llm.ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		role    types.Role
		wantErr bool
	}{
		{role: types.RoleSystem},
		{role: types.RoleUser},
		{role: types.RoleAssistant},
		{role: "tool", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			t.Parallel()
			got, err := message(types.Message{Role: tt.role, Content: "hello"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			set := map[types.Role]bool{
				types.RoleSystem:    got.OfSystem != nil,
				types.RoleUser:      got.OfUser != nil,
				types.RoleAssistant: got.OfAssistant != nil,
			}
			if !set[tt.role] {
				t.Errorf("union member for %s not set", tt.role)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New("", "m"); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := New("k", ""); err == nil {
		t.Error("expected error for empty model")
	}
}
