// Command karaoke-maker is the main entry point for the karaoke lyric
// synchronization server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/chetanrakshe2510/karaoke-maker/internal/api"
	"github.com/chetanrakshe2510/karaoke-maker/internal/app"
	"github.com/chetanrakshe2510/karaoke-maker/internal/config"
	"github.com/chetanrakshe2510/karaoke-maker/internal/health"
	"github.com/chetanrakshe2510/karaoke-maker/internal/mcp"
	"github.com/chetanrakshe2510/karaoke-maker/internal/mcp/tools/lyrictools"
	"github.com/chetanrakshe2510/karaoke-maker/internal/observe"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/llm"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/llm/anyllm"
	oallm "github.com/chetanrakshe2510/karaoke-maker/pkg/provider/llm/openai"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/separation"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/separation/demucs"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/transcribe"
	oatranscribe "github.com/chetanrakshe2510/karaoke-maker/pkg/provider/transcribe/openai"
	"github.com/chetanrakshe2510/karaoke-maker/pkg/provider/transcribe/whisper"
)

// version is set at build time via -ldflags.
var version = "dev"

const (
	defaultListenAddr = ":8080"
	shutdownTimeout   = 15 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	mcpStdio := flag.Bool("mcp", false, "serve the lyric tools over MCP stdio instead of HTTP")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "karaoke-maker: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "karaoke-maker: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// Logs always go to stderr; in MCP mode stdout carries the protocol.
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level})))

	slog.Info("karaoke-maker starting",
		"version", version,
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
		"mcp", *mcpStdio,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	aligner, err := app.NewAligner(cfg.Alignment)
	if err != nil {
		slog.Error("invalid alignment config", "err", err)
		return 1
	}
	mcpServer, err := mcp.NewServer(version, lyrictools.Tools(aligner), tel.Metrics)
	if err != nil {
		slog.Error("failed to build MCP server", "err", err)
		return 1
	}

	if *mcpStdio {
		if err := mcpServer.Run(ctx); err != nil {
			slog.Error("mcp server error", "err", err)
			return 1
		}
		return 0
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err, "registered", reg.Registered())
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithMetrics(tel.Metrics))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = defaultListenAddr
	}
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewRouter(api.Config{
			Sessions:       application.Sessions(),
			Health:         health.New(application.Checkers()...),
			Metrics:        tel.Metrics,
			MetricsHandler: tel.Handler,
			CORSOrigins:    cfg.Server.CORSOrigins,
			MaxUploadMB:    cfg.Server.MaxUploadMB,
			MCP:            mcpServer.Handler(),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(_, next *config.Config, d config.ConfigDiff) {
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
		}
		application.ApplyConfig(next)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}
	g.Go(func() error {
		slog.Info("http server listening", "addr", addr, "tls", cfg.Server.TLS != nil)
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	slog.Info("server ready, press Ctrl+C to shut down")

	exit := 0
	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return exit
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Separation ────────────────────────────────────────────────────────────

	reg.RegisterSeparation("demucs", func(entry config.ProviderEntry) (separation.Provider, error) {
		var opts []demucs.Option
		if entry.APIKey != "" {
			opts = append(opts, demucs.WithAPIKey(entry.APIKey))
		}
		if entry.Model != "" {
			opts = append(opts, demucs.WithModel(entry.Model))
		}
		if d := optDuration(entry.Options, "poll_interval"); d > 0 {
			opts = append(opts, demucs.WithPollInterval(d))
		}
		return demucs.New(entry.BaseURL, opts...)
	})

	reg.RegisterSeparation("passthrough", func(config.ProviderEntry) (separation.Provider, error) {
		return separation.Passthrough{}, nil
	})

	// ── Transcription ─────────────────────────────────────────────────────────

	reg.RegisterTranscribe("openai", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		return oatranscribe.New(entry.APIKey, openAITranscribeOptions(entry)...)
	})

	reg.RegisterTranscribe("groq", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		return oatranscribe.NewGroq(entry.APIKey, openAITranscribeOptions(entry)...)
	})

	reg.RegisterTranscribe("whisper", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterTranscribe("whisper-native", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		modelPath := optString(entry.Options, "model_path")
		var opts []whisper.NativeOption
		if dir := optString(entry.Options, "model_dir"); dir != "" {
			f, err := whisper.NewModelFetcher(dir, entry.Model)
			if err != nil {
				return nil, err
			}
			opts = append(opts, whisper.WithFetcher(f))
		} else if modelPath == "" {
			modelPath = entry.Model
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n := optInt(entry.Options, "threads"); n > 0 {
			opts = append(opts, whisper.WithThreads(uint(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// Every any-llm backend takes an optional APIKey and BaseURL.
	for _, providerName := range anyllm.Backends() {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}
}

func openAITranscribeOptions(entry config.ProviderEntry) []oatranscribe.Option {
	var opts []oatranscribe.Option
	if entry.BaseURL != "" {
		opts = append(opts, oatranscribe.WithBaseURL(entry.BaseURL))
	}
	fast, accurate := optString(entry.Options, "fast_model"), optString(entry.Options, "accurate_model")
	switch {
	case fast != "" && accurate != "":
		opts = append(opts, oatranscribe.WithModels(fast, accurate))
	case entry.Model != "":
		opts = append(opts, oatranscribe.WithModel(entry.Model))
	}
	if d := optDuration(entry.Options, "timeout"); d > 0 {
		opts = append(opts, oatranscribe.WithTimeout(d))
	}
	return opts
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	pc := cfg.Providers

	if name := pc.Separation.Name; name != "" {
		p, err := reg.CreateSeparation(pc.Separation)
		if err != nil {
			return nil, fmt.Errorf("create separation provider %q: %w", name, err)
		}
		ps.Separation = app.Named[separation.Provider]{Name: name, Provider: p}
		slog.Info("provider created", "kind", app.KindSeparation, "name", name)
	}

	// Breakers are keyed by name, so repeated providers get a suffix.
	seen := make(map[string]int)
	for _, entry := range pc.Transcription {
		p, err := reg.CreateTranscribe(entry)
		if err != nil {
			return nil, fmt.Errorf("create transcription provider %q: %w", entry.Name, err)
		}
		name := entry.Name
		if n := seen[entry.Name]; n > 0 {
			name = fmt.Sprintf("%s#%d", entry.Name, n+1)
		}
		seen[entry.Name]++
		ps.Transcription = append(ps.Transcription, app.Named[transcribe.Provider]{Name: name, Provider: p})
		slog.Info("provider created", "kind", app.KindTranscription, "name", name)
	}

	if name := pc.LocalTranscription.Name; name != "" {
		p, err := reg.CreateTranscribe(pc.LocalTranscription)
		if err != nil {
			return nil, fmt.Errorf("create local transcription provider %q: %w", name, err)
		}
		ps.Local = app.Named[transcribe.Provider]{Name: name, Provider: p}
		slog.Info("provider created", "kind", app.KindLocal, "name", name, "enabled", cfg.Pipeline.EnableLocal)
	}

	if name := pc.Polish.Name; name != "" {
		p, err := reg.CreateLLM(pc.Polish)
		if err != nil {
			return nil, fmt.Errorf("create polish provider %q: %w", name, err)
		}
		ps.Polish = app.Named[llm.Provider]{Name: name, Provider: p}
		slog.Info("provider created", "kind", app.KindPolish, "name", name)
	}

	if name := pc.Recall.Name; name != "" {
		p, err := reg.CreateLLM(pc.Recall)
		if err != nil {
			return nil, fmt.Errorf("create recall provider %q: %w", name, err)
		}
		ps.Recall = app.Named[llm.Provider]{Name: name, Provider: p}
		slog.Info("provider created", "kind", app.KindRecall, "name", name)
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	pc := cfg.Providers
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      karaoke-maker startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Separation", pc.Separation.Name, pc.Separation.Model)
	if len(pc.Transcription) == 0 {
		printProvider("Transcribe", "", "")
	}
	for _, e := range pc.Transcription {
		printProvider("Transcribe", e.Name, e.Model)
	}
	local := pc.LocalTranscription.Name
	if local != "" && !cfg.Pipeline.EnableLocal {
		local += " (off)"
	}
	printProvider("Local", local, "")
	printProvider("Polish", pc.Polish.Name, pc.Polish.Model)
	recall := pc.RecallEntry()
	printProvider("Recall", recall.Name, recall.Model)
	matcher := string(cfg.Alignment.Matcher)
	if matcher == "" {
		matcher = string(config.MatcherSubstring)
	}
	fmt.Printf("║  Matcher         : %-19s ║\n", matcher)
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
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
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer option. YAML numbers decode as int; strings are
// parsed. Returns 0 when absent or malformed.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		n, _ := strconv.Atoi(v)
		return n
	}
	return 0
}

// optDuration extracts a duration option such as "30s". Returns 0 when
// absent or malformed.
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}
