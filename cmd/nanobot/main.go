// Command nanobot is the entry point of the nanobot voice assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nanobot-edge/nanobot/internal/app"
	"github.com/nanobot-edge/nanobot/internal/config"
	"github.com/nanobot-edge/nanobot/internal/observe"
	"github.com/nanobot-edge/nanobot/pkg/audio/device"
	"github.com/nanobot-edge/nanobot/pkg/provider/wakeword"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	console := flag.Bool("console", false, "talk over stdin/stdout instead of the microphone and speaker")
	flag.Parse()

	// ── Logger ────────────────────────────────────────────────────────────────
	levels := new(slog.LevelVar)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levels})))

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "nanobot",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	app.RegisterBuiltins(reg)

	// SIGHUP abandons the current conversation stage.
	var current atomic.Pointer[app.App]
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			if a := current.Load(); a != nil {
				a.Hangup()
			}
		}
	}()

	for {
		err := serve(ctx, *configPath, *console, reg, levels, &current)
		switch {
		case errors.Is(err, app.ErrRestart):
			slog.Info("restarting")
			continue
		case err != nil:
			slog.Error("nanobot stopped", "err", err)
			return 1
		default:
			slog.Info("goodbye")
			return 0
		}
	}
}

// serve runs one application lifetime: load config, build providers and
// devices, run until stopped, and shut everything down.
func serve(ctx context.Context, path string, console bool, reg *config.Registry, levels *slog.LevelVar, current *atomic.Pointer[app.App]) error {
	var application *app.App

	// ── Load configuration ────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(path, func(old, new *config.Config) {
		if console {
			new.Conversation.ConsoleDebugMode = true
		}
		if a := current.Load(); a != nil {
			a.Reload(old, new)
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "nanobot: config file %q not found, copy configs/example.yaml to get started\n", path)
		}
		return err
	}
	cfg := watcher.Current()
	if console {
		cfg.Conversation.ConsoleDebugMode = true
	}
	levels.Set(cfg.Server.LogLevel.Level())

	slog.Info("nanobot starting",
		"version", version,
		"config", path,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"console", cfg.Conversation.ConsoleDebugMode,
	)
	printStartupSummary(cfg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		return fmt.Errorf("build providers: %w", err)
	}

	opts := []app.Option{
		app.WithLogLevel(levels),
		app.WithWatcher(watcher),
		app.WithSpotterFactory(func(profiles []wakeword.Profile) (wakeword.Spotter, error) {
			return reg.CreateWakeWord(cfg.Providers.WakeWord, profiles)
		}),
	}

	// ── Audio devices ─────────────────────────────────────────────────────────
	if !cfg.Conversation.ConsoleDebugMode {
		dctx, err := device.NewContext()
		if err != nil {
			return fmt.Errorf("open audio devices: %w", err)
		}
		defer dctx.Close()

		capture := device.NewCapture(dctx,
			device.WithSampleRate(cfg.Audio.SampleRate),
			device.WithFrameSamples(cfg.Audio.FrameSamples),
			device.WithStallTimeout(cfg.Audio.StallTimeout),
		)
		rate := cfg.Audio.PlaybackRate
		if rate == 0 {
			rate = providers.TTS.SampleRate()
		}
		playback, err := device.NewPlayback(dctx, rate)
		if err != nil {
			return fmt.Errorf("open speaker: %w", err)
		}
		defer playback.Close()
		opts = append(opts, app.WithAudio(capture, playback))
	}

	application, err = app.New(ctx, cfg, providers, opts...)
	if err != nil {
		return fmt.Errorf("initialise application: %w", err)
	}
	current.Store(application)
	defer current.Store(nil)

	slog.Info("nanobot ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         nanobot: startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", chainNames(cfg.Providers.LLM))
	if cfg.Conversation.ConsoleDebugMode {
		printProvider("Mode", "console")
	} else {
		printProvider("STT", chainNames(cfg.Providers.STT))
		printProvider("TTS", chainNames(cfg.Providers.TTS))
		printProvider("VAD", cfg.Providers.VAD.Name)
		printProvider("Wake word", cfg.Providers.WakeWord.Name)
	}
	var enabled []string
	for _, a := range cfg.Agents {
		if !a.Disabled {
			enabled = append(enabled, a.Name)
		}
	}
	printProvider("Agents", strings.Join(enabled, ", "))
	fmt.Printf("║  MCP servers     : %-19d ║\n", len(cfg.MCP.Servers))
	fmt.Printf("║  Memory          : %-19s ║\n", cfg.Memory.Backend)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func chainNames(entries []config.ProviderEntry) string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Model != "" {
			names = append(names, e.Name+"/"+e.Model)
			continue
		}
		names = append(names, e.Name)
	}
	return strings.Join(names, " > ")
}

func printProvider(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}
