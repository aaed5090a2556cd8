// Package faceapi implements vision.FaceAnalyzer against a face-recognition
// sidecar that wraps dlib's HOG detector and ResNet encoder (for example the
// "face_recognition" Python package behind a small HTTP server).
//
// The sidecar exposes one endpoint:
//
//	POST /faces?encode=<bool>   multipart field "image"
//	200 {"faces":[{"box":[top,right,bottom,left],"encoding":[...128 floats]}]}
//
// Encodings are only computed when encode=true.
package faceapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/ioanna/pkg/provider/vision"
)

var _ vision.FaceAnalyzer = (*Analyzer)(nil)

// DefaultDimensions is the length of a dlib face descriptor.
const DefaultDimensions = 128

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithHTTPClient replaces the default client (10 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(a *Analyzer) { a.client = c }
}

// WithDimensions sets the expected encoding length. Encodings of any other
// length are rejected.
func WithDimensions(n int) Option {
	return func(a *Analyzer) { a.dims = n }
}

// Analyzer talks to the face sidecar.
type Analyzer struct {
	baseURL string
	client  *http.Client
	dims    int
}

// New returns an Analyzer for the sidecar at baseURL.
func New(baseURL string, opts ...Option) (*Analyzer, error) {
	if baseURL == "" {
		return nil, errors.New("faceapi: base URL must not be empty")
	}
	a := &Analyzer{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		dims:    DefaultDimensions,
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

type face struct {
	Box      []int     `json:"box"`
	Encoding []float32 `json:"encoding"`
}

type facesResponse struct {
	Faces []face `json:"faces"`
}

// DetectFace implements vision.FaceAnalyzer.
func (a *Analyzer) DetectFace(ctx context.Context, f vision.Frame) (bool, error) {
	faces, err := a.faces(ctx, f, false)
	if err != nil {
		return false, err
	}
	return len(faces) > 0, nil
}

// EncodeFace implements vision.FaceAnalyzer. Only the first face is used.
func (a *Analyzer) EncodeFace(ctx context.Context, f vision.Frame) ([]float32, error) {
	faces, err := a.faces(ctx, f, true)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, vision.ErrNoFace
	}
	enc := faces[0].Encoding
	if len(enc) != a.dims {
		return nil, fmt.Errorf("faceapi: encoding has %d dimensions, want %d", len(enc), a.dims)
	}
	return enc, nil
}

func (a *Analyzer) faces(ctx context.Context, f vision.Frame, encode bool) ([]face, error) {
	if len(f.Image) == 0 {
		return nil, vision.ErrNoFrame
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "frame"+extension(f.ContentType))
	if err != nil {
		return nil, fmt.Errorf("faceapi: create form file: %w", err)
	}
	if _, err := part.Write(f.Image); err != nil {
		return nil, fmt.Errorf("faceapi: write image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("faceapi: close multipart: %w", err)
	}

	url := fmt.Sprintf("%s/faces?encode=%t", a.baseURL, encode)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("faceapi: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("faceapi: %w: %w", vision.ErrTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("faceapi: sidecar returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			err = fmt.Errorf("%w: %w", vision.ErrTransient, err)
		}
		return nil, err
	}

	var out facesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("faceapi: decode response: %w", err)
	}
	return out.Faces, nil
}

func extension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	default:
		return ".jpg"
	}
}
