// Package gcpvision implements vision.EmotionClassifier using the Google Cloud
// Vision REST API (images:annotate with FACE_DETECTION).
//
// Only the first face annotation is used. Likelihood names map onto the
// ordinal scale UNKNOWN=0, VERY_UNLIKELY=1, UNLIKELY=2, POSSIBLE=3,
// LIKELY=4, VERY_LIKELY=5.
package gcpvision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/ioanna/pkg/provider/vision"
	"github.com/MrWong99/ioanna/pkg/types"
)

var _ vision.EmotionClassifier = (*Classifier)(nil)

const defaultEndpoint = "https://vision.googleapis.com/v1/images:annotate"

// likelihoods maps Cloud Vision likelihood names onto the ordinal scale.
var likelihoods = map[string]types.Likelihood{
	"UNKNOWN":       0,
	"VERY_UNLIKELY": 1,
	"UNLIKELY":      2,
	"POSSIBLE":      3,
	"LIKELY":        4,
	"VERY_LIKELY":   5,
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithEndpoint overrides the annotate URL (tests, regional endpoints).
func WithEndpoint(u string) Option {
	return func(c *Classifier) { c.endpoint = u }
}

// WithHTTPClient replaces the default client (10 s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Classifier) { c.client = hc }
}

// Classifier calls images:annotate with an API key.
type Classifier struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// New returns a Classifier authenticated with apiKey.
func New(apiKey string, opts ...Option) (*Classifier, error) {
	if apiKey == "" {
		return nil, errors.New("gcpvision: api key must not be empty")
	}
	c := &Classifier{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type feature struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults"`
}

type image struct {
	Content string `json:"content"`
}

type imageRequest struct {
	Image    image     `json:"image"`
	Features []feature `json:"features"`
}

type annotateRequest struct {
	Requests []imageRequest `json:"requests"`
}

type faceAnnotation struct {
	AngerLikelihood    string `json:"angerLikelihood"`
	JoyLikelihood      string `json:"joyLikelihood"`
	SorrowLikelihood   string `json:"sorrowLikelihood"`
	SurpriseLikelihood string `json:"surpriseLikelihood"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type annotateResponse struct {
	Responses []struct {
		FaceAnnotations []faceAnnotation `json:"faceAnnotations"`
		Error           *apiError        `json:"error"`
	} `json:"responses"`
	Error *apiError `json:"error"`
}

// Classify implements vision.EmotionClassifier.
func (c *Classifier) Classify(ctx context.Context, f vision.Frame) (types.Likelihoods, error) {
	if len(f.Image) == 0 {
		return types.Likelihoods{}, vision.ErrNoFrame
	}

	body := annotateRequest{Requests: []imageRequest{{
		Image:    image{Content: base64.StdEncoding.EncodeToString(f.Image)},
		Features: []feature{{Type: "FACE_DETECTION", MaxResults: 1}},
	}}}

	payload, err := json.Marshal(body)
	if err != nil {
		return types.Likelihoods{}, fmt.Errorf("gcpvision: marshal request: %w", err)
	}

	u := c.endpoint + "?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return types.Likelihoods{}, fmt.Errorf("gcpvision: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return types.Likelihoods{}, fmt.Errorf("gcpvision: annotate: %w", ctx.Err())
		}
		return types.Likelihoods{}, fmt.Errorf("gcpvision: annotate: %w: %w", vision.ErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return types.Likelihoods{}, fmt.Errorf("gcpvision: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("gcpvision: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		if retryable(resp.StatusCode) {
			err = fmt.Errorf("%w: %w", vision.ErrTransient, err)
		}
		return types.Likelihoods{}, err
	}

	var out annotateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return types.Likelihoods{}, fmt.Errorf("gcpvision: decode response: %w", err)
	}
	if len(out.Responses) == 0 {
		return types.Likelihoods{}, vision.ErrNoFace
	}
	r := out.Responses[0]
	if r.Error != nil && r.Error.Code != 0 {
		err := fmt.Errorf("gcpvision: %s (code %d)", r.Error.Message, r.Error.Code)
		// google.rpc.Code 14 is UNAVAILABLE, 8 is RESOURCE_EXHAUSTED.
		if r.Error.Code == 14 || r.Error.Code == 8 {
			err = fmt.Errorf("%w: %w", vision.ErrTransient, err)
		}
		return types.Likelihoods{}, err
	}
	if len(r.FaceAnnotations) == 0 {
		return types.Likelihoods{}, vision.ErrNoFace
	}
	return toLikelihoods(r.FaceAnnotations[0]), nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func toLikelihoods(a faceAnnotation) types.Likelihoods {
	return types.Likelihoods{
		Anger:    likelihoods[a.AngerLikelihood],
		Joy:      likelihoods[a.JoyLikelihood],
		Sorrow:   likelihoods[a.SorrowLikelihood],
		Surprise: likelihoods[a.SurpriseLikelihood],
	}
}
