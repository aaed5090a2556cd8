// Command ioanna is the main entry point for the Ioanna conversational agent.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/ioanna/internal/app"
	"github.com/MrWong99/ioanna/internal/config"
	"github.com/MrWong99/ioanna/internal/observe"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watchInterval := flag.Duration("watch", config.DefaultWatchInterval, "how often to check the config file for changes (0 disables)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	var application *app.App
	watcher, err := config.NewWatcher(*configPath, func(_, _ *config.Config, d config.ConfigDiff) {
		if application != nil {
			application.ApplyConfig(d)
		}
	}, config.WithInterval(*watchInterval))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "ioanna: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "ioanna: %v\n", err)
		}
		return 1
	}
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("ioanna starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "ioanna",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	providers := &app.Providers{}
	registerBuiltinProviders(reg, cfg, func() app.Providers { return *providers })

	closers, err := buildProviders(cfg, reg, providers, metrics)
	defer closeAll(closers)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err = app.New(ctx, cfg, providers, app.WithMetrics(metrics), app.WithLogLevel(&level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("agent ready, press Ctrl+C to shut down")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return application.Run(gctx) })
	if *watchInterval > 0 {
		g.Go(func() error { return watcher.Run(gctx) })
	}
	runErr := g.Wait()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// closeAll releases providers that hold devices or models.
func closeAll(closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			slog.Warn("provider close error", "err", err)
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	p := cfg.Providers
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Ioanna, startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", p.LLM.Name, p.LLM.Model)
	printProvider("STT", p.STT.Name, p.STT.Model)
	printProvider("TTS", p.TTS.Name, p.TTS.Model)
	printProvider("VAD", p.VAD.Name, "")
	printProvider("Camera", p.Camera.Name, "")
	printProvider("Face", p.Face.Name, "")
	printProvider("Emotion", p.Vision.Name, "")
	printProvider("Tone", p.Tone.Name, "")
	printProvider("Sentiment", p.Sentiment.Name, "")
	printProvider("NLP", p.NLP.Name, "")
	printProvider("Audio in", p.AudioIn.Name, "")
	printProvider("Audio out", p.AudioOut.Name, "")
	fmt.Printf("║  Fallbacks       : %-19s ║\n",
		fmt.Sprintf("%d llm %d stt %d tts", len(p.LLMFallbacks), len(p.STTFallbacks), len(p.TTSFallbacks)))
	if cfg.MCP.Enabled {
		fmt.Printf("║  Memory MCP      : %-19s ║\n", cfg.MCP.Path)
	} else {
		fmt.Printf("║  Memory MCP      : %-19s ║\n", "(disabled)")
	}
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}
