// Package app wires all bot subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the main loops, and Shutdown tears everything
// down in order.
//
// For testing, inject mock implementations via functional options
// (WithTTSProvider, WithAudioPlatform, etc.). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/cache"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/config"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/discord"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/discord/commands"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/health"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/observe"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/queue"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/resilience"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/settings"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/internal/voice"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/pkg/audio"
	discordaudio "github.com/Viker/Kokoro-TTS-Discord-Bot/pkg/audio/discord"
	"github.com/Viker/Kokoro-TTS-Discord-Bot/pkg/provider/tts"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	// Subsystems — initialised in New, torn down in Shutdown.
	bot        *discord.Bot
	settings   *settings.Manager
	store      settings.Store
	cache      *cache.Cache
	synth      tts.Provider
	fallback   *resilience.SynthFallback
	platform   audio.Platform
	voices     *voice.Manager
	dispatcher *queue.Dispatcher
	metrics    *observe.Metrics
	httpSrv    *http.Server

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSettingsStore injects a settings store instead of creating one from
// config.
func WithSettingsStore(s settings.Store) Option {
	return func(a *App) { a.store = s }
}

// WithTTSProvider injects a synthesis provider instead of creating one via
// the registry.
func WithTTSProvider(p tts.Provider) Option {
	return func(a *App) { a.synth = p }
}

// WithAudioPlatform injects an audio platform. When set, New skips the
// Discord bot entirely, so tests run without a gateway connection.
func WithAudioPlatform(p audio.Platform) Option {
	return func(a *App) { a.platform = p }
}

// WithMetrics injects a metrics instance. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The registry supplies
// provider factories; main.go registers the built-in ones. Use Option
// functions to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Settings ──────────────────────────────────────────────────────
	if err := a.initSettings(); err != nil {
		return nil, fmt.Errorf("app: init settings: %w", err)
	}

	// ── 2. Synthesis providers ───────────────────────────────────────────
	if err := a.initSynthesis(reg); err != nil {
		return nil, fmt.Errorf("app: init synthesis: %w", err)
	}

	// ── 3. Discord bot + audio platform ──────────────────────────────────
	if err := a.initPlatform(ctx); err != nil {
		return nil, fmt.Errorf("app: init platform: %w", err)
	}

	// ── 4. Cache, voice lifecycle, dispatcher ────────────────────────────
	a.initPlayback()

	// ── 5. Event handlers + slash commands ───────────────────────────────
	a.initBotSurface()

	// ── 6. Observability endpoints ───────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initSettings sets up the persisted settings store and the resolver.
func (a *App) initSettings() error {
	if a.store == nil {
		if a.cfg.Settings.Path != "" {
			a.store = settings.NewFileStore(a.cfg.Settings.Path)
		} else {
			a.store = &settings.MemoryStore{}
		}
	}

	mgr, err := settings.NewManager(a.store)
	if err != nil {
		return err
	}
	a.settings = mgr
	return nil
}

// initSynthesis builds the primary provider and wraps it with the fallback
// chain when fallbacks are configured.
func (a *App) initSynthesis(reg *config.Registry) error {
	if a.synth != nil {
		return nil // injected
	}

	primary, err := reg.CreateTTS(a.cfg.TTS.Primary)
	if err != nil {
		return fmt.Errorf("create tts provider %q: %w", a.cfg.TTS.Primary.Name, err)
	}

	fb := resilience.NewSynthFallback(primary, a.cfg.TTS.Primary.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.BreakerConfig{
			FailureThreshold: a.cfg.TTS.Breaker.FailureThreshold,
			RecoveryTimeout:  a.cfg.TTS.Breaker.RecoveryTimeout.Std(),
		},
	})
	for _, entry := range a.cfg.TTS.Fallbacks {
		p, err := reg.CreateTTS(entry)
		if err != nil {
			return fmt.Errorf("create fallback tts provider %q: %w", entry.Name, err)
		}
		fb.AddFallback(entry.Name, p)
		slog.Info("fallback provider registered", "name", entry.Name)
	}

	a.fallback = fb
	a.synth = fb
	return nil
}

// initPlatform connects the Discord bot and derives the audio platform from
// its session, unless a platform was injected.
func (a *App) initPlatform(ctx context.Context) error {
	if a.platform != nil {
		return nil // injected; no gateway connection
	}

	bot, err := discord.New(ctx, a.cfg.Discord)
	if err != nil {
		return err
	}
	a.bot = bot
	a.platform = discordaudio.New(bot.Session())
	return nil
}

// initPlayback creates the cache, the voice lifecycle manager, and the
// dispatcher, then cross-wires them: playback rearms the inactivity timer,
// deliberate leaves clear the guild's queue.
func (a *App) initPlayback() {
	a.cache = cache.New(
		cache.WithMaxEntries(a.cfg.Cache.MaxEntries),
		cache.WithTTL(a.cfg.Cache.TTL.Std()),
	)

	a.voices = voice.NewManager(a.platform,
		voice.WithMetrics(a.metrics),
		voice.WithTimeoutSource(func(guildID string) time.Duration {
			secs := a.settings.Resolve(guildID, "").TimeoutSeconds
			return time.Duration(secs) * time.Second
		}),
		voice.WithTeardownHook(func(guildID string) {
			if n := a.dispatcher.Clear(guildID); n > 0 {
				slog.Info("queue cleared on leave", "guild", guildID, "dropped", n)
			}
		}),
	)

	a.dispatcher = queue.NewDispatcher(a.synth, a.cache, a.voices,
		queue.WithMetrics(a.metrics),
		queue.WithQueueOptions(
			queue.WithMaxSize(a.cfg.Queue.MaxSize),
			queue.WithTTL(a.cfg.Queue.MessageTTL.Std()),
		),
	)
}

// initBotSurface registers gateway event handlers and slash commands. A
// no-op when the bot was skipped via WithAudioPlatform.
func (a *App) initBotSurface() {
	if a.bot == nil {
		return
	}

	events := discord.NewEvents(a.settings, a.dispatcher, a.voices, a.metrics, slog.Default())
	events.Register(a.bot.Session())

	var breakers func() map[string]resilience.BreakerState
	if a.fallback != nil {
		breakers = a.fallback.BreakerStates
	}
	commands.NewVoiceCommands(a.voices, a.dispatcher, a.cache, a.synth, breakers).
		Register(a.bot.Router())
	commands.NewSettingsCommands(a.settings, a.bot.Permissions(), a.synth).
		Register(a.bot.Router())
}

// initHTTP sets up the /metrics, /healthz and /readyz endpoints. Disabled
// when no listen address is configured.
func (a *App) initHTTP() {
	if a.cfg.Server.ListenAddr == "" {
		return
	}

	probes := health.NewHandler()
	probes.AddComponent("synthesis", func(ctx context.Context) error {
		_, err := a.synth.ListVoices(ctx)
		return err
	})
	if a.bot != nil {
		probes.AddComponent("discord", func(context.Context) error {
			if a.bot.Session().State.User == nil {
				return errors.New("gateway session not ready")
			}
			return nil
		})
	}

	mux := http.NewServeMux()
	probes.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the bot, the dispatcher drain loops, and the HTTP endpoints,
// then blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.dispatcher.Run(gctx)
	})

	if a.bot != nil {
		g.Go(func() error {
			if err := a.bot.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if a.httpSrv != nil {
		g.Go(func() error {
			slog.Info("http endpoints listening", "addr", a.httpSrv.Addr)
			if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.httpSrv.Shutdown(shutdownCtx)
		})
	}

	slog.Info("app running")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems: voice sessions leave their channels,
// the bot disconnects, and the HTTP server stops accepting requests.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down")

		a.voices.Shutdown()

		if a.bot != nil {
			if err := a.bot.Close(); err != nil {
				slog.Warn("discord close error", "err", err)
			}
		}

		if a.httpSrv != nil {
			if err := a.httpSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				shutdownErr = err
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Settings returns the settings resolver.
func (a *App) Settings() *settings.Manager { return a.settings }

// Voices returns the voice lifecycle manager.
func (a *App) Voices() *voice.Manager { return a.voices }

// Dispatcher returns the playback dispatcher.
func (a *App) Dispatcher() *queue.Dispatcher { return a.dispatcher }

// Cache returns the synthesised-audio cache.
func (a *App) Cache() *cache.Cache { return a.cache }
