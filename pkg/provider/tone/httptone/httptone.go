// Package httptone implements tone.Classifier against a local speech emotion
// recognition service.
//
// The service accepts a multipart POST with the WAV file in the "audio_file"
// field and answers {"emotion": "...", "confidence": 0.0-1.0}.
package httptone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/MrWong99/ioanna/pkg/audio"
	"github.com/MrWong99/ioanna/pkg/provider/tone"
	"github.com/MrWong99/ioanna/pkg/types"
)

var _ tone.Classifier = (*Classifier)(nil)

// DefaultURL is where the service listens by default.
const DefaultURL = "http://127.0.0.1:8000/emotion_recognition"

// Option configures a Classifier.
type Option func(*Classifier)

// WithHTTPClient replaces the default client (30 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Classifier) { cl.client = c }
}

// Classifier posts sentence clips to the emotion service.
type Classifier struct {
	url    string
	client *http.Client
}

// New returns a Classifier posting to url, or [DefaultURL] when empty.
func New(url string, opts ...Option) *Classifier {
	if url == "" {
		url = DefaultURL
	}
	c := &Classifier{url: url, client: &http.Client{Timeout: 30 * time.Second}}
	for _, o := range opts {
		o(c)
	}
	return c
}

type result struct {
	Emotion    string  `json:"emotion"`
	Confidence float64 `json:"confidence"`
}

// Classify implements tone.Classifier. Non-200 answers produce an
// AudioEmotion carrying the status and body alongside the error.
func (c *Classifier) Classify(ctx context.Context, clip audio.Clip) (types.AudioEmotion, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="audio_file"; filename="audio.wav"`)
	h.Set("Content-Type", "audio/wav")
	part, err := mw.CreatePart(h)
	if err != nil {
		return failed(err)
	}
	if _, err := part.Write(audio.EncodeWAV(clip)); err != nil {
		return failed(err)
	}
	if err := mw.Close(); err != nil {
		return failed(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return failed(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return failed(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		msg := fmt.Sprintf("API request failed with status code %d", resp.StatusCode)
		return types.AudioEmotion{Error: msg + ": " + string(raw)},
			fmt.Errorf("httptone: %s", msg)
	}

	var r result
	if err := json.Unmarshal(raw, &r); err != nil {
		return failed(fmt.Errorf("decode response: %w", err))
	}
	return types.AudioEmotion{Label: r.Emotion, Confidence: r.Confidence}, nil
}

func failed(err error) (types.AudioEmotion, error) {
	err = fmt.Errorf("httptone: %w", err)
	return types.AudioEmotion{Error: err.Error()}, err
}
