package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"

	"github.com/nanobot-edge/nanobot/pkg/provider/tts"
)

// ---- URL and format helpers ----

func TestBuildURL(t *testing.T) {
	p, err := New("key", WithModel("eleven_turbo_v2"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	u := p.buildURL("voice-abc123")
	if !strings.HasPrefix(u, "wss://api.elevenlabs.io/v1/text-to-speech/voice-abc123/stream-input?") {
		t.Errorf("url = %q", u)
	}
	if !strings.Contains(u, "model_id=eleven_turbo_v2") || !strings.Contains(u, "output_format=pcm_16000") {
		t.Errorf("url missing query: %q", u)
	}
}

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"pcm_16000", 16000, false},
		{"pcm_24000", 24000, false},
		{"mp3_44100_128", 0, true},
		{"pcm_", 0, true},
		{"pcm_-1", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseOutputFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("rate = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := New("k", WithOutputFormat("mp3_44100_128")); err == nil {
		t.Error("expected error for non-PCM format")
	}
}

// ---- Round trip against a fake server ----

type fakeServer struct {
	mu       sync.Mutex
	received []map[string]any
	path     string
}

func (f *fakeServer) handler(t *testing.T, chunks [][]byte) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		f.mu.Lock()
		f.path = r.URL.Path
		f.mu.Unlock()

		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var m map[string]any
			_ = json.Unmarshal(data, &m)
			f.mu.Lock()
			f.received = append(f.received, m)
			f.mu.Unlock()
			if m["text"] == "" {
				break
			}
		}
		for _, c := range chunks {
			msg, _ := json.Marshal(audioResponse{Audio: base64.StdEncoding.EncodeToString(c)})
			_ = conn.Write(ctx, websocket.MessageText, msg)
		}
		final, _ := json.Marshal(audioResponse{IsFinal: true})
		_ = conn.Write(ctx, websocket.MessageText, final)
		conn.Close(websocket.StatusNormalClosure, "")
	}
}

func TestSynthesize_RoundTrip(t *testing.T) {
	fs := &fakeServer{}
	srv := httptest.NewServer(fs.handler(t, [][]byte{{1, 2}, {3, 4}}))
	defer srv.Close()

	p, _ := New("secret", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")), WithVoice("v1"))
	ch, err := p.Synthesize(context.Background(), "Hello there.", "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	var got []byte
	for c := range ch {
		got = append(got, c...)
	}
	if string(got) != string([]byte{1, 2, 3, 4}) {
		t.Errorf("audio = %v", got)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.path != "/v1/text-to-speech/v1/stream-input" {
		t.Errorf("path = %q", fs.path)
	}
	if len(fs.received) != 3 {
		t.Fatalf("received %d messages, want 3", len(fs.received))
	}
	if fs.received[0]["xi_api_key"] != "secret" {
		t.Errorf("BOI = %v", fs.received[0])
	}
	if fs.received[1]["text"] != "Hello there. " {
		t.Errorf("text message = %v", fs.received[1])
	}
}

func TestSynthesize_Validation(t *testing.T) {
	p, _ := New("k")
	if _, err := p.Synthesize(context.Background(), "", "v"); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("err = %v, want ErrEmptyText", err)
	}
	if _, err := p.Synthesize(context.Background(), "hi", ""); err == nil {
		t.Error("expected error without a voice")
	}
}
