package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/polzovatel/paced-actions/internal/agent"
	"github.com/polzovatel/paced-actions/internal/browser"
	"github.com/polzovatel/paced-actions/internal/clock"
	"github.com/polzovatel/paced-actions/internal/config"
)

type cliOptions struct {
	configPath string
	url        string
	storage    string
	saveState  string
	sessionCap int
}

func main() {
	_ = godotenv.Load()
	opts := parseFlags()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	file, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	file.ApplyEnv(os.Getenv)
	opts.apply(file)
	cfg, err := file.Resolve()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	zerolog.SetGlobalLevel(cfg.LogLevel)
	if cfg.Browser.URL == "" {
		log.Fatal().Msg("no start url: set browser.url in the config or pass -url")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	launcher, err := browser.NewLauncher(ctx, browser.LaunchOptions{Headless: cfg.Browser.Headless})
	if err != nil {
		log.Fatal().Err(err).Msg("browser init")
	}
	defer launcher.Close()

	ctrl, err := launcher.NewController(ctx, cfg.Browser.StorageState)
	if err != nil {
		log.Fatal().Err(err).Msg("browser controller")
	}
	defer ctrl.Close(ctx)
	if cfg.Browser.StorageState != "" && !ctrl.HasStorageState() {
		log.Warn().Str("path", cfg.Browser.StorageState).Msg("storage state not found, starting logged out")
	}

	if err := ctrl.Navigate(ctx, cfg.Browser.URL); err != nil {
		log.Fatal().Err(err).Str("url", cfg.Browser.URL).Msg("navigate")
	}
	if err := ctrl.WaitForStableDOM(ctx, 5*time.Second); err != nil {
		log.Warn().Err(err).Msg("page did not settle")
	}

	surface, err := browser.NewSurface(ctrl, cfg.Browser.Surface, cfg.Patterns, clock.Real(),
		log.With().Str("comp", "browser").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("surface")
	}
	orch, err := agent.NewOrchestrator(cfg.Agent, surface, surface, log.With().Str("comp", "orch").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("orchestrator")
	}

	go watchSignals(ctx, orch, cancel)

	sum, err := orch.Run(ctx)
	ev := log.Info()
	if err != nil {
		ev = log.Error().Err(err)
	}
	ev.Str("run", sum.RunID).
		Str("reason", string(sum.Reason)).
		Int("successes", sum.Successes).
		Int("attempts", sum.Attempts).
		Int("unverified", sum.Unverified).
		Int("throttled", sum.Throttled).
		Dur("elapsed", sum.Elapsed).
		Msg("run finished")

	if cfg.Browser.SaveState != "" {
		// ctx may already be cancelled by a second signal
		if err := ctrl.SaveState(context.Background(), cfg.Browser.SaveState); err != nil {
			log.Error().Err(err).Msg("save state")
		} else {
			log.Info().Str("path", cfg.Browser.SaveState).Msg("storage saved")
		}
	}
}

// watchSignals stops the run gracefully on the first signal and cancels it
// on the second.
func watchSignals(ctx context.Context, orch *agent.Orchestrator, cancel context.CancelFunc) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(ch)

	select {
	case <-ctx.Done():
		return
	case sig := <-ch:
		log.Warn().Str("signal", sig.String()).Msg("finishing current attempt, signal again to abort")
		orch.Stop()
	}
	select {
	case <-ctx.Done():
	case <-ch:
		log.Warn().Msg("aborting")
		cancel()
	}
}

func parseFlags() cliOptions {
	cfgPath := flag.String("config", "", "Path to YAML or JSON config")
	url := flag.String("url", "", "Start URL, overrides browser.url")
	storage := flag.String("storage", "", "Path to Playwright storage state")
	save := flag.String("save-state", "", "Path to save updated storage state")
	sessionCap := flag.Int("session-cap", -1, "Stop after this many successes (0 = no cap)")
	flag.Parse()
	return cliOptions{
		configPath: strings.TrimSpace(*cfgPath),
		url:        strings.TrimSpace(*url),
		storage:    strings.TrimSpace(*storage),
		saveState:  strings.TrimSpace(*save),
		sessionCap: *sessionCap,
	}
}

// apply lets explicit flags win over file values.
func (o cliOptions) apply(f *config.File) {
	if o.url != "" {
		f.Browser.URL = o.url
	}
	if o.storage != "" {
		f.Browser.StorageState = o.storage
	}
	if o.saveState != "" {
		f.Browser.SaveState = o.saveState
	}
	if o.sessionCap >= 0 {
		f.Session.Cap = o.sessionCap
	}
}
