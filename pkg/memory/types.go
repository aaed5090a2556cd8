package memory

import (
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/ioanna/pkg/types"
)

// Entry is a sentence judged important enough to keep. It carries every
// signal the importance score was computed from so the decision can be
// explained later.
type Entry struct {
	// Text is the sentence as transcribed.
	Text string `json:"text"`

	// Sentiment is the textual polarity/subjectivity of Text.
	Sentiment types.Sentiment `json:"sentiment"`

	// AudioEmotion is the tone classification of the sentence audio.
	AudioEmotion types.AudioEmotion `json:"audio_emotion"`

	// DetectedEmotions are the facial-emotion samples observed while the
	// sentence was spoken.
	DetectedEmotions []types.Likelihoods `json:"detected_emotions"`

	// Importance is the fused score that qualified this entry.
	Importance float64 `json:"importance"`
}

// Turn is one question and the memorable parts of the answer.
type Turn struct {
	// Question is what the agent asked.
	Question string `json:"question"`

	// Answers are the texts of Memories, in sentence order.
	Answers []string `json:"answers"`

	// Memories are the qualifying sentences of the answer.
	Memories []Entry `json:"memories,omitempty"`

	// AskedAt is when the question was asked.
	AskedAt time.Time `json:"asked_at"`
}

// NewTurn builds a Turn whose Answers mirror the memory texts.
func NewTurn(question string, memories []Entry, askedAt time.Time) Turn {
	answers := make([]string, len(memories))
	for i, m := range memories {
		answers[i] = m.Text
	}
	return Turn{Question: question, Answers: answers, Memories: memories, AskedAt: askedAt}
}

// Profile is a known user.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`

	// Encoding is the face identity vector the profile is matched by.
	Encoding []float32 `json:"-"`

	// Turns holds the conversation history, oldest first. Summary listings
	// leave it empty.
	Turns []Turn `json:"turns,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Memories flattens every turn's memories, oldest first.
func (p *Profile) Memories() []Entry {
	var out []Entry
	for _, t := range p.Turns {
		out = append(out, t.Memories...)
	}
	return out
}

// Match is the outcome of a successful encoding lookup.
type Match struct {
	Profile  *Profile
	Distance float64
}

// ProfileSummary is a lightweight listing row.
type ProfileSummary struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	TurnCount   int       `json:"turn_count"`
	MemoryCount int       `json:"memory_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// Recalled is a memory together with the question it answered.
type Recalled struct {
	Entry
	Question string    `json:"question"`
	AskedAt  time.Time `json:"asked_at"`
}
