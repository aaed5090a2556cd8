// Package anyllm adapts github.com/mozilla-ai/any-llm-go to [llm.Provider],
// giving Ioanna one code path for Mistral, Anthropic, Gemini, Ollama and the
// other hosted or local backends that library supports.
//
// Mistral is the default question generator:
//
//	p, err := anyllm.NewMistral("mistral-tiny", anyllmlib.WithAPIKey("..."))
package anyllm

import (
	"context"
	"fmt"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/ioanna/pkg/provider/llm"
	"github.com/MrWong99/ioanna/pkg/types"
)

type backendFunc func(opts ...anyllmlib.Option) (anyllmlib.Provider, error)

// backends maps lower-case provider names to their constructors.
var backends = map[string]backendFunc{
	"anthropic": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anthropic.New(o...) },
	"deepseek":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return deepseek.New(o...) },
	"gemini":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return gemini.New(o...) },
	"groq":      func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return groq.New(o...) },
	"llamacpp":  func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamacpp.New(o...) },
	"llamafile": func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return llamafile.New(o...) },
	"mistral":   func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return mistral.New(o...) },
	"ollama":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return ollama.New(o...) },
	"openai":    func(o ...anyllmlib.Option) (anyllmlib.Provider, error) { return anyllmoai.New(o...) },
}

// Supported lists the accepted provider names in sorted order.
func Supported() []string {
	names := make([]string, 0, len(backends))
	for n := range backends {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Provider is an [llm.Provider] over one any-llm-go backend.
type Provider struct {
	name    string
	backend anyllmlib.Provider
	model   string
}

var _ llm.Provider = (*Provider)(nil)

// New builds a Provider for the named backend (see [Supported]). Without an
// API key option the backend reads its usual environment variable, such as
// MISTRAL_API_KEY.
func New(providerName, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("anyllm: model must not be empty")
	}
	name := strings.ToLower(strings.TrimSpace(providerName))
	ctor, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported provider %q (supported: %s)", providerName, strings.Join(Supported(), ", "))
	}
	backend, err := ctor(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: create %s backend: %w", name, err)
	}
	return &Provider{name: name, backend: backend, model: model}, nil
}

// NewMistral is New("mistral", model, opts...).
func NewMistral(model string, opts ...anyllmlib.Option) (*Provider, error) {
	return New("mistral", model, opts...)
}

// Model implements llm.Provider.
func (p *Provider) Model() string { return p.model }

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	resp, err := p.backend.Completion(ctx, p.params(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s completion: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s: %w", p.name, llm.ErrEmptyResponse)
	}

	out := &llm.CompletionResponse{Content: strings.TrimSpace(resp.Choices[0].Message.ContentString())}
	if out.Content == "" {
		return nil, fmt.Errorf("anyllm: %s: %w", p.name, llm.ErrEmptyResponse)
	}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

// params maps a request onto any-llm-go. Zero temperature and max tokens are
// left unset so the backend defaults apply.
func (p *Provider) params(req llm.CompletionRequest) anyllmlib.CompletionParams {
	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, message(m))
	}

	params := anyllmlib.CompletionParams{Model: p.model, Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = &req.MaxTokens
	}
	return params
}

func message(m types.Message) anyllmlib.Message {
	return anyllmlib.Message{Role: string(m.Role), Content: m.Content}
}
