package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/ioanna/pkg/audio"
)

// ---- WebSocket message construction ----

func TestBuildWSMessage_FlushCommand(t *testing.T) {
	// ElevenLabs flush = {"text":""} with no other fields.
	data, err := buildWSMessage("", nil)
	if err != nil {
		t.Fatalf("buildWSMessage: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal flush: %v", err)
	}
	if string(raw["text"]) != `""` {
		t.Errorf("expected empty string for text, got %s", raw["text"])
	}
	if _, exists := raw["voice_settings"]; exists {
		t.Error("flush message should not contain voice_settings")
	}
}

func TestStreamURL(t *testing.T) {
	p, err := New("key", "voice-abc123")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	u := p.streamURL()
	for _, want := range []string{"wss://", "voice-abc123", "model_id=eleven_flash_v2_5", "output_format=pcm_16000"} {
		if !strings.Contains(u, want) {
			t.Errorf("URL %q should contain %q", u, want)
		}
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    audio.Format
		wantErr bool
	}{
		{in: "pcm_16000", want: audio.Format{SampleRate: 16000, Channels: 1}},
		{in: "pcm_24000", want: audio.Format{SampleRate: 24000, Channels: 1}},
		{in: "mp3_44100_128", wantErr: true},
		{in: "pcm_x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseOutputFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("format = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("", "v"); err == nil {
		t.Error("expected error for empty api key")
	}
	if _, err := New("k", ""); err == nil {
		t.Error("expected error for empty voice")
	}
	if _, err := New("k", "v", WithOutputFormat("ulaw_8000")); err == nil {
		t.Error("expected error for non-PCM output format")
	}
}

// ---- Synthesize against a fake server ----

func TestSynthesize(t *testing.T) {
	chunk1 := []byte{1, 0, 2, 0}
	chunk2 := []byte{3, 0}
	type capture struct {
		apiKey   string
		received []textMessage
	}
	got := make(chan capture, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/v1/text-to-speech/v1d/stream-input") {
			http.NotFound(w, r)
			return
		}
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
		if err != nil {
			return
		}
		defer conn.CloseNow()
		ctx := r.Context()

		// BOI, text, flush.
		var c capture
		for i := 0; i < 3; i++ {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			if i == 0 {
				var boi boiMessage
				_ = json.Unmarshal(data, &boi)
				c.apiKey = boi.XiAPIKey
				continue
			}
			var m textMessage
			_ = json.Unmarshal(data, &m)
			c.received = append(c.received, m)
		}
		got <- c
		for _, c := range [][]byte{chunk1, chunk2} {
			msg, _ := json.Marshal(audioResponse{Audio: base64.StdEncoding.EncodeToString(c)})
			_ = conn.Write(ctx, websocket.MessageText, msg)
		}
		final, _ := json.Marshal(audioResponse{IsFinal: true})
		_ = conn.Write(ctx, websocket.MessageText, final)
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}))
	defer srv.Close()

	p, err := New("secret", "v1d", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clip, err := p.Synthesize(context.Background(), "Hello there, I am Ioanna!")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	c := <-got
	if c.apiKey != "secret" {
		t.Errorf("BOI api key = %q, want secret", c.apiKey)
	}
	if len(c.received) != 2 || c.received[0].Text != "Hello there, I am Ioanna! " || c.received[1].Text != "" {
		t.Errorf("received messages = %+v", c.received)
	}
	if clip.Format != audio.DefaultFormat {
		t.Errorf("format = %v, want %v", clip.Format, audio.DefaultFormat)
	}
	if len(clip.PCM) != 6 {
		t.Errorf("pcm bytes = %d, want 6", len(clip.PCM))
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	p, _ := New("k", "v")
	if _, err := p.Synthesize(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty text")
	}
}
