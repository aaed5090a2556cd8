// Package snapshot implements vision.Camera by fetching still images from an
// HTTP snapshot endpoint, such as mjpg-streamer's "?action=snapshot", an IP
// camera, or a go2rtc "/api/frame.jpeg" URL.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MrWong99/ioanna/pkg/provider/vision"
)

var _ vision.Camera = (*Camera)(nil)

// maxImageBytes bounds a single snapshot.
const maxImageBytes = 16 << 20

// Option configures a Camera.
type Option func(*Camera)

// WithHTTPClient replaces the default client (5 s timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(cam *Camera) { cam.client = c }
}

// Camera fetches a fresh snapshot on every Capture call.
type Camera struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// New returns a Camera reading from url.
func New(url string, opts ...Option) (*Camera, error) {
	if url == "" {
		return nil, errors.New("snapshot: url must not be empty")
	}
	c := &Camera{url: url, client: &http.Client{Timeout: 5 * time.Second}, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Capture implements vision.Camera.
func (c *Camera) Capture(ctx context.Context) (vision.Frame, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return vision.Frame{}, fmt.Errorf("snapshot: create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return vision.Frame{}, fmt.Errorf("snapshot: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return vision.Frame{}, fmt.Errorf("snapshot: camera returned HTTP %d", resp.StatusCode)
	}

	img, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return vision.Frame{}, fmt.Errorf("snapshot: read image: %w", err)
	}
	if len(img) == 0 {
		return vision.Frame{}, vision.ErrNoFrame
	}
	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(img)
	}
	return vision.Frame{Image: img, ContentType: ct, CapturedAt: c.now()}, nil
}
