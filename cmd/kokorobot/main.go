// Command kokorobot is the main entry point for the Kokoro TTS Discord bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/app"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/config"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/observe"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/pkg/provider/tts"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/pkg/provider/tts/elevenlabs"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/pkg/provider/tts/kokoro"
	openaitts "github.com/Viker/Kokoro-TTS-Discord-Bot/pkg/provider/tts/openai"
)

// version is stamped by the build (go build -ldflags "-X main.version=...").
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ─────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "kokorobot: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "kokorobot: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("kokorobot starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "kokorobot",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Application ───────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	printStartupSummary(cfg)
	slog.Info("bot ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the built-in TTS provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterTTS("kokoro", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []kokoro.Option
		if entry.Model != "" {
			opts = append(opts, kokoro.WithModel(entry.Model))
		}
		if t := optDuration(entry.Options, "timeout"); t > 0 {
			opts = append(opts, kokoro.WithTimeout(t))
		}
		return kokoro.New(entry.BaseURL, opts...), nil
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []openaitts.Option
		if entry.BaseURL != "" {
			opts = append(opts, openaitts.WithBaseURL(entry.BaseURL))
		}
		if t := optDuration(entry.Options, "timeout"); t > 0 {
			opts = append(opts, openaitts.WithTimeout(t))
		}
		return openaitts.New(entry.APIKey, entry.Model, opts...)
	})
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       kokorobot — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Primary TTS", cfg.TTS.Primary.Name, cfg.TTS.Primary.Model)
	for _, fb := range cfg.TTS.Fallbacks {
		printProvider("Fallback", fb.Name, fb.Model)
	}
	if cfg.Settings.Path != "" {
		fmt.Printf("║  Settings     : %-22s ║\n", trimTo(cfg.Settings.Path, 22))
	} else {
		fmt.Printf("║  Settings     : %-22s ║\n", "(in memory)")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Metrics      : %-22s ║\n", cfg.Server.ListenAddr)
	} else {
		fmt.Printf("║  Metrics      : %-22s ║\n", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	fmt.Printf("║  %-12s : %-22s ║\n", kind, trimTo(value, 22))
}

func trimTo(s string, n int) string {
	if len(s) > n {
		return s[:n-1] + "…"
	}
	return s
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optDuration parses a Go duration string from a provider Options map.
func optDuration(opts map[string]any, key string) time.Duration {
	s := optString(opts, key)
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		slog.Warn("invalid duration option ignored", "key", key, "value", s)
		return 0
	}
	return d
}
