package gcpvision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/ioanna/pkg/provider/vision"
	"github.com/MrWong99/ioanna/pkg/types"
)

func TestToLikelihoods(t *testing.T) {
	got := toLikelihoods(faceAnnotation{
		AngerLikelihood:    "VERY_UNLIKELY",
		JoyLikelihood:      "VERY_LIKELY",
		SorrowLikelihood:   "POSSIBLE",
		SurpriseLikelihood: "bogus",
	})
	want := types.Likelihoods{Anger: 1, Joy: 5, Sorrow: 3, Surprise: 0}
	if got != want {
		t.Errorf("toLikelihoods = %+v, want %+v", got, want)
	}
}

func TestClassify(t *testing.T) {
	type capture struct {
		key     string
		content string
		feature string
	}
	ch := make(chan capture, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req annotateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ch <- capture{
			key:     r.URL.Query().Get("key"),
			content: req.Requests[0].Image.Content,
			feature: req.Requests[0].Features[0].Type,
		}
		_, _ = w.Write([]byte(`{"responses":[{"faceAnnotations":[
			{"angerLikelihood":"UNLIKELY","joyLikelihood":"LIKELY","sorrowLikelihood":"VERY_UNLIKELY","surpriseLikelihood":"UNKNOWN"},
			{"angerLikelihood":"VERY_LIKELY","joyLikelihood":"VERY_LIKELY","sorrowLikelihood":"VERY_LIKELY","surpriseLikelihood":"VERY_LIKELY"}
		]}]}`))
	}))
	defer srv.Close()

	c, err := New("secret", WithEndpoint(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	got, err := c.Classify(context.Background(), vision.Frame{Image: []byte("img")})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	want := types.Likelihoods{Anger: 2, Joy: 4, Sorrow: 1, Surprise: 0}
	if got != want {
		t.Errorf("Classify = %+v, want first face %+v", got, want)
	}

	cp := <-ch
	if cp.key != "secret" {
		t.Errorf("key = %q", cp.key)
	}
	if cp.content != base64.StdEncoding.EncodeToString([]byte("img")) {
		t.Errorf("content = %q", cp.content)
	}
	if cp.feature != "FACE_DETECTION" {
		t.Errorf("feature = %q", cp.feature)
	}
}

func TestClassify_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantNoFace    bool
		wantTransient bool
	}{
		{name: "no faces", status: 200, body: `{"responses":[{}]}`, wantNoFace: true},
		{name: "empty responses", status: 200, body: `{"responses":[]}`, wantNoFace: true},
		{name: "service unavailable", status: 503, body: `{"error":{"code":503}}`, wantTransient: true},
		{name: "rate limited", status: 429, body: `{}`, wantTransient: true},
		{name: "forbidden", status: 403, body: `{}`},
		{name: "inline unavailable", status: 200, body: `{"responses":[{"error":{"code":14,"message":"try later"}}]}`, wantTransient: true},
		{name: "inline invalid", status: 200, body: `{"responses":[{"error":{"code":3,"message":"bad image"}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, _ := New("k", WithEndpoint(srv.URL))
			_, err := c.Classify(context.Background(), vision.Frame{Image: []byte("x")})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, vision.ErrNoFace); got != tt.wantNoFace {
				t.Errorf("ErrNoFace = %v, want %v (%v)", got, tt.wantNoFace, err)
			}
			if got := vision.IsTransient(err); got != tt.wantTransient {
				t.Errorf("transient = %v, want %v (%v)", got, tt.wantTransient, err)
			}
		})
	}
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error")
	}
}
