// Package app wires all nanobot subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the conversation loop next to the event bus, the
// status indicator, the config watcher and the HTTP server, and Shutdown
// tears everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithAudio, WithMemoryStore, WithIndicatorDriver, etc.). When an option is
// not provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/nanobot-edge/nanobot/internal/agent"
	"github.com/nanobot-edge/nanobot/internal/config"
	"github.com/nanobot-edge/nanobot/internal/conversation"
	"github.com/nanobot-edge/nanobot/internal/detect"
	"github.com/nanobot-edge/nanobot/internal/endpoint"
	"github.com/nanobot-edge/nanobot/internal/events"
	"github.com/nanobot-edge/nanobot/internal/frontend"
	"github.com/nanobot-edge/nanobot/internal/health"
	"github.com/nanobot-edge/nanobot/internal/indicator"
	"github.com/nanobot-edge/nanobot/internal/observe"
	"github.com/nanobot-edge/nanobot/internal/tools"
	"github.com/nanobot-edge/nanobot/internal/tools/datetime"
	"github.com/nanobot-edge/nanobot/internal/tools/eyes"
	mcptools "github.com/nanobot-edge/nanobot/internal/tools/mcp"
	memtools "github.com/nanobot-edge/nanobot/internal/tools/memory"
	"github.com/nanobot-edge/nanobot/internal/tools/system"
	"github.com/nanobot-edge/nanobot/internal/tools/wordmaths"
	"github.com/nanobot-edge/nanobot/internal/tools/youtube"
	"github.com/nanobot-edge/nanobot/pkg/audio"
	"github.com/nanobot-edge/nanobot/pkg/memory"
	"github.com/nanobot-edge/nanobot/pkg/memory/postgres"
	"github.com/nanobot-edge/nanobot/pkg/provider/wakeword"
)

// busSize is the event queue depth.
const busSize = 256

// shutdownTimeout bounds the HTTP server shutdown.
const shutdownTimeout = 5 * time.Second

var (
	// ErrRestart is returned by Run when the restart tool or Stop(true)
	// ended the application. The caller should build a fresh App.
	ErrRestart = errors.New("app: restart requested")

	errStopped = errors.New("app: stopped")
)

// SpotterFactory builds a wake-word spotter for the given phrases.
type SpotterFactory func(profiles []wakeword.Profile) (wakeword.Spotter, error)

// App owns all subsystem lifetimes and orchestrates the voice assistant.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Injected or built in New.
	capturer   audio.Capturer
	sink       audio.Sink
	store      memory.Store
	driver     indicator.Driver
	consoleIn  io.Reader
	consoleOut io.Writer
	levels     *slog.LevelVar
	watcher    *config.Watcher
	spotters   SpotterFactory
	metrics    *observe.Metrics
	runner     system.Runner

	// Subsystems: initialised in New, torn down in Shutdown.
	bus       *events.Bus
	indicator *indicator.Indicator
	registry  *tools.Registry
	mcp       *mcptools.Client
	videos    *youtube.Library
	fe        *frontend.FrontEnd
	orch      *conversation.Orchestrator
	health    *health.Handler
	running   health.Flag
	handler   http.Handler

	mu        sync.Mutex
	stop      context.CancelCauseFunc
	stopCause error

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithAudio injects the microphone and speaker.
func WithAudio(capturer audio.Capturer, sink audio.Sink) Option {
	return func(a *App) {
		a.capturer = capturer
		a.sink = sink
	}
}

// WithMemoryStore injects a memory store instead of creating one from config.
func WithMemoryStore(s memory.Store) Option {
	return func(a *App) { a.store = s }
}

// WithIndicatorDriver injects the status colour driver.
func WithIndicatorDriver(d indicator.Driver) Option {
	return func(a *App) { a.driver = d }
}

// WithConsole sets the streams used in console debug mode. Default: stdin
// and stdout.
func WithConsole(in io.Reader, out io.Writer) Option {
	return func(a *App) {
		a.consoleIn = in
		a.consoleOut = out
	}
}

// WithLogLevel lets configuration reloads change the level of the process
// logger.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.levels = lv }
}

// WithWatcher runs w next to the conversation loop.
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithSpotterFactory sets how wake-word spotters are built at startup and
// when the agents' wake phrases change.
func WithSpotterFactory(f SpotterFactory) Option {
	return func(a *App) { a.spotters = f }
}

// WithMetrics injects the metrics instance. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithCommandRunner overrides how the system tools run host commands.
func WithCommandRunner(r system.Runner) Option {
	return func(a *App) { a.runner = r }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from [BuildProviders]. Use Option functions to inject test doubles
// for any subsystem.
//
// New performs all initialisation synchronously: memory store connection,
// tool registration, MCP server sessions, agent loading, and orchestrator
// assembly. On error, everything created so far is released.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (_ *App, err error) {
	a := &App{
		cfg:        cfg,
		providers:  providers,
		consoleIn:  os.Stdin,
		consoleOut: os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	defer func() {
		if err != nil {
			_ = a.Shutdown(context.Background())
		}
	}()

	// ── 1. Events + indicator ───────────────────────────────────────────
	if err := a.initIndicator(); err != nil {
		return nil, fmt.Errorf("app: init indicator: %w", err)
	}

	// ── 2. Memory store ─────────────────────────────────────────────────
	if err := a.initMemory(ctx); err != nil {
		return nil, fmt.Errorf("app: init memory: %w", err)
	}

	// ── 3. Tools + MCP servers ──────────────────────────────────────────
	if err := a.initTools(ctx); err != nil {
		return nil, fmt.Errorf("app: init tools: %w", err)
	}

	// ── 4. Agents + orchestrator ────────────────────────────────────────
	if err := a.initConversation(); err != nil {
		return nil, fmt.Errorf("app: init conversation: %w", err)
	}

	// ── 5. HTTP surface ─────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initIndicator() error {
	def, err := indicator.ParseColour(a.cfg.Indicator.DefaultColour)
	if err != nil {
		return err
	}
	if a.driver == nil {
		switch a.cfg.Indicator.Driver {
		case config.IndicatorConsole:
			a.driver = indicator.NewConsoleDriver(os.Stderr)
		default:
			a.driver = indicator.LogDriver{}
		}
	}
	a.bus = events.NewBus(busSize)
	a.indicator = indicator.New(a.driver, def)
	a.bus.Subscribe(a.indicator.Publish)
	a.bus.Subscribe(logEvent)
	return nil
}

// initMemory sets up the memory store or uses the injected one.
func (a *App) initMemory(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	if a.cfg.Memory.Backend != config.MemoryPostgres {
		a.store = memory.NewInMemory()
		return nil
	}
	store, err := postgres.NewStore(ctx, a.cfg.Memory.PostgresDSN)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	slog.Info("memory store connected", "backend", a.cfg.Memory.Backend)
	return nil
}

// initTools registers the built-in tool groups and connects MCP servers.
func (a *App) initTools(ctx context.Context) error {
	a.registry = tools.NewRegistry(
		tools.WithEvents(a.bus),
		tools.WithObserver(a.observeTool),
	)

	sysTools, err := system.Tools(system.Config{
		ClearHistory:    a.clearHistory,
		Stop:            a.Stop,
		ShutdownCommand: a.cfg.System.ShutdownCommand,
		RestartCommand:  a.cfg.System.RestartCommand,
		Runner:          a.runner,
	})
	if err != nil {
		return err
	}
	groups := [][]tools.Tool{
		sysTools,
		eyes.Tools(a.indicator),
		datetime.Tools(time.Now),
		memtools.Tools(a.store, a.cfg.Memory.MaxMemories),
	}
	if path := a.cfg.WordMaths.ProblemsPath; path != "" {
		set, err := wordmaths.Load(path)
		if err != nil {
			return err
		}
		groups = append(groups, wordmaths.Tools(set))
	}
	if yt := a.cfg.YouTube; yt.DataDir != "" {
		player := youtube.NewExecPlayer(yt.Player)
		lib, err := youtube.New(yt.DataDir, youtube.NewYTDLP(yt.Downloader, nil), player)
		if err != nil {
			return err
		}
		a.videos = lib
		a.closers = append(a.closers, player.Close)
		groups = append(groups, youtube.Tools(lib))
	}
	for _, g := range groups {
		if err := a.registry.Register(g...); err != nil {
			return err
		}
	}

	if len(a.cfg.MCP.Servers) == 0 {
		return nil
	}
	a.mcp = mcptools.New(a.registry)
	a.closers = append(a.closers, a.mcp.Close)
	for _, srv := range a.cfg.MCP.Servers {
		names, err := a.mcp.Connect(ctx, srv.Server())
		if err != nil {
			return fmt.Errorf("connect mcp server %q: %w", srv.Name, err)
		}
		slog.Info("connected MCP server", "name", srv.Name, "tools", len(names))
	}
	return nil
}

// initConversation loads the agents and builds the orchestrator. The audio
// pipeline is skipped in console mode.
func (a *App) initConversation() error {
	agents, err := a.loadAgents(a.cfg)
	if err != nil {
		return err
	}

	deps := conversation.Deps{Agents: agents}
	if !a.cfg.Conversation.ConsoleDebugMode {
		spotter, err := a.initialSpotter(agents)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { return a.fe.Spotter().Close() })
		if a.providers.VAD != nil {
			a.closers = append(a.closers, a.providers.VAD.Close)
		}

		det := detect.New(a.providers.VAD, a.cfg.Detector.Detect())
		a.fe = frontend.New(det, spotter,
			frontend.WithParams(a.cfg.FrontEnd.Params()),
			frontend.WithEvents(a.bus),
		)
		deps.Capturer = a.capturer
		deps.Sink = a.sink
		deps.FrontEnd = a.fe
		deps.Endpointer = endpoint.New(det, endpoint.WithParams(a.cfg.Endpoint.Params()))
		deps.STT = a.providers.STT
		deps.TTS = a.providers.TTS
	}

	orch, err := conversation.New(deps,
		conversation.WithEvents(a.bus),
		conversation.WithMetrics(a.metrics),
		conversation.WithHistory(conversation.NewHistory(a.cfg.Conversation.HistoryTTL())),
		conversation.WithBackoff(a.cfg.Conversation.ErrorBackoff),
		conversation.WithVolume(volume(a.cfg.Audio.Volume)),
		conversation.WithLanguage(a.cfg.Conversation.Language),
	)
	if err != nil {
		return err
	}
	a.orch = orch
	return nil
}

func (a *App) initialSpotter(agents []agent.Agent) (wakeword.Spotter, error) {
	if a.providers.Spotter != nil {
		return a.providers.Spotter, nil
	}
	if a.spotters == nil {
		return nil, errors.New("a wake word spotter or spotter factory is required")
	}
	s, err := a.spotters(agent.WakeProfiles(agents))
	if err != nil {
		return nil, fmt.Errorf("create wake word spotter: %w", err)
	}
	return s, nil
}

// loadAgents builds one agent per configured profile over the LLM provider.
func (a *App) loadAgents(cfg *config.Config) ([]agent.Agent, error) {
	profiles := make([]agent.Profile, 0, len(cfg.Agents))
	for _, ac := range cfg.Agents {
		profiles = append(profiles, ac.Profile())
	}
	loader := agent.NewLoader(a.providers.LLM,
		agent.WithTools(a.registry),
		agent.WithGlobalInstructions(cfg.Conversation.GlobalInstructions),
		agent.WithMaxSentence(cfg.Conversation.MaxSentence),
	)
	agents, err := loader.LoadAll(profiles)
	if err != nil {
		return nil, err
	}
	for _, ag := range agents {
		p := ag.Profile()
		slog.Info("loaded agent", "name", p.Name, "wake_word", p.WakeWord, "disabled", p.Disabled, "tools", p.Tools)
	}
	return agents, nil
}

func (a *App) initHTTP() {
	checks := []health.Checker{a.running.Checker("conversation")}
	for _, kind := range []string{"llm", "stt", "tts"} {
		if bs, ok := a.providers.Breakers[kind]; ok {
			checks = append(checks, health.Breakers(kind, bs))
		}
	}
	if p, ok := a.store.(health.Pinger); ok {
		checks = append(checks, health.Ping("memory", p))
	}
	a.health = health.New(checks...)

	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /hangup", func(w http.ResponseWriter, _ *http.Request) {
		a.Hangup()
		w.WriteHeader(http.StatusAccepted)
	})
	a.handler = observe.Middleware(a.metrics)(mux)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the conversation loop and its companions and blocks until ctx
// is cancelled or the application is stopped. It returns nil on a normal
// stop, [ErrRestart] when a restart was requested, and the first failure
// otherwise.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	a.mu.Lock()
	if a.stopCause != nil {
		cancel(a.stopCause)
	}
	a.stop = cancel
	a.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	busCtx, stopBus := context.WithCancel(context.Background())
	defer stopBus()
	busDone := make(chan struct{})
	go func() {
		defer close(busDone)
		_ = a.bus.Run(busCtx)
	}()

	g.Go(func() error { return a.indicator.Run(gctx) })

	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}

	if a.videos != nil {
		yt := a.cfg.YouTube
		limits := youtube.CacheLimits{
			Trigger: int64(yt.TriggerSizeMB) << 20,
			Target:  int64(yt.TargetSizeMB) << 20,
		}
		g.Go(func() error { return youtube.RunCleanup(gctx, a.videos.Dir(), limits, yt.CleanupInterval) })
	}

	if addr := a.cfg.Server.ListenAddr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: a.handler, ReadHeaderTimeout: 5 * time.Second}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			cancel(err)
			stopBus()
			<-busDone
			return fmt.Errorf("app: listen %s: %w", addr, err)
		}
		slog.Info("http server listening", "addr", ln.Addr().String())
		g.Go(func() error {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	g.Go(func() error {
		a.running.Set(true)
		defer a.running.Set(false)
		var err error
		if a.cfg.Conversation.ConsoleDebugMode {
			err = a.orch.RunConsole(gctx, a.consoleIn, a.consoleOut)
		} else {
			err = a.orch.Run(gctx)
		}
		if err != nil {
			return fmt.Errorf("app: conversation: %w", err)
		}
		// A clean return ends the application.
		cancel(context.Cause(ctx))
		return nil
	})

	slog.Info("app running", "agents", len(a.cfg.Agents), "console", a.cfg.Conversation.ConsoleDebugMode)
	err := g.Wait()

	// Deliver the final events (Shutdown) before returning.
	stopBus()
	<-busDone

	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, ErrRestart):
		return ErrRestart
	case err != nil:
		return err
	default:
		return nil
	}
}

// Stop ends Run. With restart set, Run returns [ErrRestart].
func (a *App) Stop(restart bool) {
	cause := errStopped
	if restart {
		cause = ErrRestart
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopCause == nil {
		a.stopCause = cause
	}
	if a.stop != nil {
		a.stop(a.stopCause)
	}
}

// Hangup abandons the current conversation stage.
func (a *App) Hangup() {
	slog.Info("hangup requested")
	a.orch.Hangup()
}

// Handler returns the HTTP handler serving /healthz, /readyz, /metrics and
// POST /hangup.
func (a *App) Handler() http.Handler { return a.handler }

// Events returns the application event bus.
func (a *App) Events() *events.Bus { return a.bus }

// Tools returns the tool registry.
func (a *App) Tools() *tools.Registry { return a.registry }

// Conversation returns the orchestrator.
func (a *App) Conversation() *conversation.Orchestrator { return a.orch }

// Indicator returns the status indicator.
func (a *App) Indicator() *indicator.Indicator { return a.indicator }

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies a changed configuration to the running application. Agent
// profiles, wake phrases, the log level and the default colour take effect
// immediately; every other section needs a restart and is only reported.
func (a *App) Reload(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.levels != nil {
		a.levels.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.DefaultColourChanged {
		if c, err := indicator.ParseColour(d.NewDefaultColour); err == nil {
			a.indicator.SetDefaultColour(c)
			slog.Info("default colour changed", "colour", c)
		}
	}

	if d.AgentsChanged {
		agents, err := a.loadAgents(new)
		if err != nil {
			slog.Error("reload: keeping previous agents", "err", err)
			return
		}
		a.orch.SetAgents(agents)
		for _, ch := range d.AgentChanges {
			slog.Info("agent changed", "name", ch.Name, "added", ch.Added, "removed", ch.Removed,
				"instructions", ch.InstructionsChanged, "wake", ch.WakeChanged, "tools", ch.ToolsChanged)
		}

		if d.WakeProfilesChanged && a.fe != nil && a.spotters != nil {
			s, err := a.spotters(agent.WakeProfiles(agents))
			if err != nil {
				slog.Error("reload: keeping previous wake word spotter", "err", err)
			} else {
				a.orch.ReplaceSpotter(s)
			}
		}
	}

	for _, section := range d.Restart {
		slog.Warn("config section changed; restart to apply", "section", section)
	}
	a.cfg = new
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases every subsystem in order. It is safe to call more than
// once; only the first call has effect.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		for _, c := range a.closers {
			if ctx.Err() != nil {
				errs = append(errs, ctx.Err())
				return
			}
			if err := c(); err != nil {
				errs = append(errs, err)
			}
		}
		slog.Info("app shut down")
	})
	return errors.Join(errs...)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (a *App) clearHistory() {
	a.orch.History().Clear()
}

func (a *App) observeTool(name string, d time.Duration, err error) {
	ctx := context.Background()
	status := "ok"
	if err != nil {
		status = "error"
	}
	a.metrics.RecordToolCall(ctx, name, status)
	a.metrics.ToolExecutionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(observe.Attr("tool", name)))
}

func volume(v *int) int {
	if v == nil {
		return conversation.DefaultVolume
	}
	return *v
}

func logEvent(e events.Event) {
	switch e.Kind {
	case events.KindError:
		slog.Warn("event", "kind", e.Kind, "err", e.Err)
	case events.KindWakeDetected:
		slog.Info("event", "kind", e.Kind, "phrase", e.Phrase)
	case events.KindFunctionInvoking, events.KindFunctionInvoked:
		slog.Debug("event", "kind", e.Kind, "tool", e.Tool)
	default:
		slog.Debug("event", "kind", e.Kind)
	}
}
