// Package memoryserver exposes the profile store to MCP clients.
//
// Two read-only tools are registered by [New]:
//   - "list_profiles": every known user with turn and memory counts.
//   - "recall_memories": the remembered sentences of one user, newest
//     first, optionally filtered by text and importance.
//
// [Server.Handler] serves both over the streamable HTTP transport so an
// external assistant can inspect what the agent remembers. All handlers are
// safe for concurrent use.
package memoryserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/ioanna/pkg/memory"
)

// Implementation identifies the server to MCP clients.
var Implementation = &mcpsdk.Implementation{Name: "ioanna-memory", Version: "1.0.0"}

// ─────────────────────────────────────────────────────────────────────────────
// list_profiles
// ─────────────────────────────────────────────────────────────────────────────

// listProfilesArgs is the input of the "list_profiles" tool. It takes none.
type listProfilesArgs struct{}

// ProfileInfo is one row of the "list_profiles" result.
type ProfileInfo struct {
	ID          string `json:"id" jsonschema:"profile identifier for recall_memories"`
	DisplayName string `json:"display_name" jsonschema:"the name the user gave"`
	TurnCount   int    `json:"turn_count" jsonschema:"questions answered so far"`
	MemoryCount int    `json:"memory_count" jsonschema:"sentences judged worth remembering"`
	CreatedAt   string `json:"created_at" jsonschema:"first meeting, RFC 3339"`
}

// ListProfilesResult is the output of the "list_profiles" tool.
type ListProfilesResult struct {
	Profiles []ProfileInfo `json:"profiles"`
}

// ─────────────────────────────────────────────────────────────────────────────
// recall_memories
// ─────────────────────────────────────────────────────────────────────────────

// recallArgs is the input of the "recall_memories" tool.
type recallArgs struct {
	ProfileID     string  `json:"profile_id" jsonschema:"profile identifier from list_profiles"`
	Query         string  `json:"query,omitempty" jsonschema:"only memories whose text matches this query"`
	MinImportance float64 `json:"min_importance,omitempty" jsonschema:"drop memories scored below this value"`
	Limit         int     `json:"limit,omitempty" jsonschema:"maximum number of memories, default 20"`
}

// RecalledMemory is one entry of the "recall_memories" result.
type RecalledMemory struct {
	Text         string  `json:"text"`
	Question     string  `json:"question" jsonschema:"the question the sentence answered"`
	Importance   float64 `json:"importance"`
	Polarity     float64 `json:"polarity"`
	Subjectivity float64 `json:"subjectivity"`
	AudioEmotion string  `json:"audio_emotion,omitempty" jsonschema:"tone label of the spoken sentence"`
	AskedAt      string  `json:"asked_at" jsonschema:"when the question was asked, RFC 3339"`
}

// RecallResult is the output of the "recall_memories" tool.
type RecallResult struct {
	Memories []RecalledMemory `json:"memories"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Server
// ─────────────────────────────────────────────────────────────────────────────

// Server is an MCP server backed by a [memory.ProfileStore].
type Server struct {
	store memory.ProfileStore
	mcp   *mcpsdk.Server
}

// New returns a server with both tools registered.
func New(store memory.ProfileStore) *Server {
	s := &Server{
		store: store,
		mcp:   mcpsdk.NewServer(Implementation, nil),
	}
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "list_profiles",
		Description: "List every user the agent has met, oldest first.",
	}, s.handleListProfiles)
	mcpsdk.AddTool(s.mcp, &mcpsdk.Tool{
		Name:        "recall_memories",
		Description: "Recall what a user said that was worth remembering, newest first.",
	}, s.handleRecall)
	return s
}

// MCP returns the underlying SDK server, e.g. to connect it to an in-memory
// transport.
func (s *Server) MCP() *mcpsdk.Server { return s.mcp }

// Handler returns an http.Handler speaking the MCP streamable HTTP
// transport.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.mcp }, nil)
}

func (s *Server) handleListProfiles(ctx context.Context, _ *mcpsdk.CallToolRequest, _ listProfilesArgs) (*mcpsdk.CallToolResult, ListProfilesResult, error) {
	out, err := s.listProfiles(ctx)
	return nil, out, err
}

func (s *Server) handleRecall(ctx context.Context, _ *mcpsdk.CallToolRequest, args recallArgs) (*mcpsdk.CallToolResult, RecallResult, error) {
	out, err := s.recall(ctx, args)
	return nil, out, err
}

func (s *Server) listProfiles(ctx context.Context) (ListProfilesResult, error) {
	rows, err := s.store.ListProfiles(ctx)
	if err != nil {
		return ListProfilesResult{}, fmt.Errorf("memory server: list_profiles: %w", err)
	}
	out := ListProfilesResult{Profiles: make([]ProfileInfo, 0, len(rows))}
	for _, r := range rows {
		out.Profiles = append(out.Profiles, ProfileInfo{
			ID:          r.ID.String(),
			DisplayName: r.DisplayName,
			TurnCount:   r.TurnCount,
			MemoryCount: r.MemoryCount,
			CreatedAt:   r.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out, nil
}

func (s *Server) recall(ctx context.Context, args recallArgs) (RecallResult, error) {
	id, err := uuid.Parse(args.ProfileID)
	if err != nil {
		return RecallResult{}, fmt.Errorf("memory server: recall_memories: invalid profile_id %q: %w", args.ProfileID, err)
	}
	if args.Limit < 0 || args.MinImportance < 0 {
		return RecallResult{}, fmt.Errorf("memory server: recall_memories: limit and min_importance must not be negative")
	}

	opts := []memory.RecallOpt{memory.WithLimit(args.Limit), memory.WithMinImportance(args.MinImportance)}
	if args.Query != "" {
		opts = append(opts, memory.WithQuery(args.Query))
	}
	recalled, err := s.store.Recall(ctx, id, opts...)
	if err != nil {
		return RecallResult{}, fmt.Errorf("memory server: recall_memories: %w", err)
	}

	out := RecallResult{Memories: make([]RecalledMemory, 0, len(recalled))}
	for _, r := range recalled {
		out.Memories = append(out.Memories, RecalledMemory{
			Text:         r.Text,
			Question:     r.Question,
			Importance:   r.Importance,
			Polarity:     r.Sentiment.Polarity,
			Subjectivity: r.Sentiment.Subjectivity,
			AudioEmotion: r.AudioEmotion.Label,
			AskedAt:      r.AskedAt.UTC().Format(time.RFC3339),
		})
	}
	return out, nil
}
