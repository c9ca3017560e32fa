package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nanobot-edge/nanobot/internal/app"
	"github.com/nanobot-edge/nanobot/internal/config"
	"github.com/nanobot-edge/nanobot/internal/indicator"
	"github.com/nanobot-edge/nanobot/pkg/memory"
	audiomock "github.com/nanobot-edge/nanobot/pkg/audio/mock"
	"github.com/nanobot-edge/nanobot/pkg/provider/llm"
	llmmock "github.com/nanobot-edge/nanobot/pkg/provider/llm/mock"
	sttmock "github.com/nanobot-edge/nanobot/pkg/provider/stt/mock"
	ttsmock "github.com/nanobot-edge/nanobot/pkg/provider/tts/mock"
	vadmock "github.com/nanobot-edge/nanobot/pkg/provider/vad/mock"
	"github.com/nanobot-edge/nanobot/pkg/provider/wakeword"
	wwmock "github.com/nanobot-edge/nanobot/pkg/provider/wakeword/mock"
)

const consoleYAML = `
server:
  listen_addr: "127.0.0.1:0"
providers:
  llm: [{name: openai}]
conversation:
  console_debug_mode: true
agents:
  - name: Nano
`

const audioYAML = `
server:
  listen_addr: "127.0.0.1:0"
  log_level: info
providers:
  llm: [{name: openai}]
  stt: [{name: whisper}]
  tts: [{name: openai}]
agents:
  - name: Nano
    wake_word: hey_nano
  - name: Bolt
    wake_word: hey_bolt
`

func loadConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

func replyLLM(text string) *llmmock.Provider {
	return &llmmock.Provider{StreamChunks: []llm.Chunk{{Text: text}, {FinishReason: "stop"}}}
}

// spotterRecorder is a SpotterFactory that records the profiles it was
// asked for.
type spotterRecorder struct {
	mu       sync.Mutex
	calls    [][]wakeword.Profile
	spotters []*wwmock.Spotter
}

func (r *spotterRecorder) build(profiles []wakeword.Profile) (wakeword.Spotter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &wwmock.Spotter{ProfileList: profiles}
	r.calls = append(r.calls, profiles)
	r.spotters = append(r.spotters, s)
	return s, nil
}

func (r *spotterRecorder) Calls() [][]wakeword.Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func newAudioApp(t *testing.T, yaml string, opts ...app.Option) (*app.App, *spotterRecorder, *vadmock.Scorer) {
	t.Helper()
	cfg := loadConfig(t, yaml)
	rec := &spotterRecorder{}
	scorer := &vadmock.Scorer{}
	providers := &app.Providers{
		LLM: replyLLM("Hi."),
		STT: &sttmock.Provider{Text: "hello"},
		TTS: &ttsmock.Provider{},
		VAD: scorer,
	}
	opts = append([]app.Option{
		app.WithAudio(&audiomock.Capturer{}, &audiomock.Sink{}),
		app.WithIndicatorDriver(&indicator.Recorder{}),
		app.WithSpotterFactory(rec.build),
	}, opts...)
	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a, rec, scorer
}

// runApp starts Run and returns a function that waits for its result.
func runApp(t *testing.T, a *app.App) func() error {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- a.Run(context.Background()) }()
	return func() error {
		t.Helper()
		select {
		case err := <-errc:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("Run did not return")
			return nil
		}
	}
}

func waitReady(t *testing.T, a *app.App) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rr := httptest.NewRecorder()
		a.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rr.Code == http.StatusOK {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("app never became ready")
}

func TestRun_ConsoleAnswersUntilInputEnds(t *testing.T) {
	cfg := loadConfig(t, consoleYAML)
	rec := &indicator.Recorder{}
	var out strings.Builder
	a, err := app.New(context.Background(), cfg, &app.Providers{LLM: replyLLM("Hello there.")},
		app.WithConsole(strings.NewReader("hello\n"), &out),
		app.WithIndicatorDriver(rec),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	if err := runApp(t, a)(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "Nano: Hello there.") {
		t.Errorf("console output = %q, want the reply", out.String())
	}
	if got := rec.Current(); got != indicator.Off {
		t.Errorf("indicator after stop = %v, want off", got)
	}
}

func TestRun_StopAndRestart(t *testing.T) {
	tests := []struct {
		name    string
		restart bool
		want    error
	}{
		{name: "stop", restart: false, want: nil},
		{name: "restart", restart: true, want: app.ErrRestart},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, w := io.Pipe()
			defer w.Close()
			a, err := app.New(context.Background(), loadConfig(t, consoleYAML), &app.Providers{LLM: replyLLM("ok")},
				app.WithConsole(in, io.Discard),
				app.WithIndicatorDriver(&indicator.Recorder{}),
			)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer a.Shutdown(context.Background())

			wait := runApp(t, a)
			waitReady(t, a)
			a.Stop(tt.restart)
			if err := wait(); !errors.Is(err, tt.want) {
				t.Errorf("Run = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRun_RestartTool(t *testing.T) {
	in, w := io.Pipe()
	defer w.Close()
	var (
		mu  sync.Mutex
		ran [][]string
	)
	cfg := loadConfig(t, consoleYAML+"system:\n  restart_command: [sudo, reboot]\n")
	a, err := app.New(context.Background(), cfg, &app.Providers{LLM: replyLLM("ok")},
		app.WithConsole(in, io.Discard),
		app.WithIndicatorDriver(&indicator.Recorder{}),
		app.WithCommandRunner(func(_ context.Context, argv []string) error {
			mu.Lock()
			defer mu.Unlock()
			ran = append(ran, argv)
			return nil
		}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	wait := runApp(t, a)
	waitReady(t, a)
	if _, err := a.Tools().Execute(context.Background(), "restart", "{}"); err != nil {
		t.Fatalf("Execute restart: %v", err)
	}
	if err := wait(); !errors.Is(err, app.ErrRestart) {
		t.Errorf("Run = %v, want ErrRestart", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 1 || strings.Join(ran[0], " ") != "sudo reboot" {
		t.Errorf("commands = %v, want [[sudo reboot]]", ran)
	}
}

func TestNew_RegistersBuiltinToolGroups(t *testing.T) {
	a, err := app.New(context.Background(), loadConfig(t, consoleYAML), &app.Providers{LLM: replyLLM("ok")},
		app.WithMemoryStore(memory.NewInMemory()),
		app.WithIndicatorDriver(&indicator.Recorder{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	groups := a.Tools().Groups()
	for _, want := range []string{"system", "eyes", "datetime", "memory"} {
		if !slices.Contains(groups, want) {
			t.Errorf("groups %v missing %q", groups, want)
		}
	}
	if slices.Contains(groups, "wordmaths") {
		t.Error("wordmaths registered without a problems path")
	}
	if slices.Contains(groups, "youtube") {
		t.Error("youtube registered without a data dir")
	}
}

func TestNew_RegistersYouTubeWithDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "youtube")
	yaml := consoleYAML + "    tools: [youtube]\nyoutube:\n  data_dir: \"" + dir + "\"\n"
	a, err := app.New(context.Background(), loadConfig(t, yaml), &app.Providers{LLM: replyLLM("ok")},
		app.WithMemoryStore(memory.NewInMemory()),
		app.WithIndicatorDriver(&indicator.Recorder{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	if !slices.Contains(a.Tools().Groups(), "youtube") {
		t.Fatalf("groups %v missing youtube", a.Tools().Groups())
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("cache dir not created: %v", err)
	}
	out, err := a.Tools().Execute(context.Background(), "search_local_cache", "")
	if err != nil || out != "[]" {
		t.Errorf("search_local_cache = %q, %v", out, err)
	}
}

func TestNew_AudioModeBuildsSpotterFromAgents(t *testing.T) {
	a, rec, scorer := newAudioApp(t, audioYAML)

	calls := rec.Calls()
	if len(calls) != 1 {
		t.Fatalf("spotter factory calls = %d, want 1", len(calls))
	}
	var phrases []string
	for _, p := range calls[0] {
		phrases = append(phrases, p.Phrase)
	}
	if !slices.Equal(phrases, []string{"hey_nano", "hey_bolt"}) {
		t.Errorf("phrases = %v", phrases)
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if rec.spotters[0].CloseCallCount != 1 {
		t.Errorf("spotter closed %d times, want 1", rec.spotters[0].CloseCallCount)
	}
	if scorer.CloseCallCount != 1 {
		t.Errorf("vad closed %d times, want 1", scorer.CloseCallCount)
	}
}

func TestNew_AudioModeRequiresSpotter(t *testing.T) {
	cfg := loadConfig(t, audioYAML)
	providers := &app.Providers{
		LLM: replyLLM("ok"),
		STT: &sttmock.Provider{},
		TTS: &ttsmock.Provider{},
		VAD: &vadmock.Scorer{},
	}
	_, err := app.New(context.Background(), cfg, providers,
		app.WithAudio(&audiomock.Capturer{}, &audiomock.Sink{}),
		app.WithIndicatorDriver(&indicator.Recorder{}),
	)
	if err == nil || !strings.Contains(err.Error(), "spotter") {
		t.Fatalf("New error = %v, want spotter error", err)
	}
}

func TestNew_AudioModeRequiresDevices(t *testing.T) {
	cfg := loadConfig(t, audioYAML)
	providers := &app.Providers{
		LLM:     replyLLM("ok"),
		STT:     &sttmock.Provider{},
		TTS:     &ttsmock.Provider{},
		VAD:     &vadmock.Scorer{},
		Spotter: &wwmock.Spotter{},
	}
	a, err := app.New(context.Background(), cfg, providers, app.WithIndicatorDriver(&indicator.Recorder{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	err = a.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "capturer is required") {
		t.Fatalf("Run error = %v, want missing capturer", err)
	}
}

func TestHandler_Routes(t *testing.T) {
	a, _, _ := newAudioApp(t, audioYAML)

	tests := []struct {
		method, path string
		wantStatus   int
		wantBody     string
	}{
		{http.MethodGet, "/healthz", http.StatusOK, `"status":"ok"`},
		{http.MethodGet, "/readyz", http.StatusServiceUnavailable, `"conversation":"fail: not running"`},
		{http.MethodPost, "/hangup", http.StatusAccepted, ""},
		{http.MethodGet, "/metrics", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			a.Handler().ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, nil))
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && !strings.Contains(rr.Body.String(), tt.wantBody) {
				t.Errorf("body = %q, want %q", rr.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestReload_AppliesLiveSettings(t *testing.T) {
	lv := new(slog.LevelVar)
	a, rec, _ := newAudioApp(t, audioYAML, app.WithLogLevel(lv))
	old := loadConfig(t, audioYAML)

	yaml := strings.Replace(audioYAML, "hey_bolt", "hey_volt", 1)
	yaml = strings.Replace(yaml, "log_level: info", "log_level: debug", 1)
	changed := loadConfig(t, yaml+"indicator:\n  default_colour: red\n")
	a.Reload(old, changed)

	if lv.Level() != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", lv.Level())
	}
	if got := a.Indicator().DefaultColour(); got != indicator.Red {
		t.Errorf("default colour = %v, want red", got)
	}
	calls := rec.Calls()
	if len(calls) != 2 {
		t.Fatalf("spotter factory calls = %d, want 2 (startup and reload)", len(calls))
	}
	if calls[1][1].Phrase != "hey_volt" {
		t.Errorf("reloaded phrases = %+v", calls[1])
	}
}

func TestReload_InstructionsOnlyKeepsSpotter(t *testing.T) {
	a, rec, _ := newAudioApp(t, audioYAML)
	old := loadConfig(t, audioYAML)
	changed := loadConfig(t, strings.Replace(audioYAML, "wake_word: hey_nano", "wake_word: hey_nano\n    instructions: Be brief.", 1))

	a.Reload(old, changed)

	if n := len(rec.Calls()); n != 1 {
		t.Errorf("spotter factory calls = %d, want 1", n)
	}
}
