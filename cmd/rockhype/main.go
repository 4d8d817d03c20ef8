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

	audioimpl "github.com/foxseedlab/rockhype/external/audio"
	configloader "github.com/foxseedlab/rockhype/external/config"
	discordimpl "github.com/foxseedlab/rockhype/external/discord"
	"github.com/foxseedlab/rockhype/external/gemini"
	liveimpl "github.com/foxseedlab/rockhype/external/live"
	mediaimpl "github.com/foxseedlab/rockhype/external/media"
	recordingimpl "github.com/foxseedlab/rockhype/external/recording"
	repositoryimpl "github.com/foxseedlab/rockhype/external/repository"
	transcriberimpl "github.com/foxseedlab/rockhype/external/transcriber"
	webhookimpl "github.com/foxseedlab/rockhype/external/webhook"
	"github.com/foxseedlab/rockhype/internal/config"
	"github.com/foxseedlab/rockhype/internal/generation"
	"github.com/foxseedlab/rockhype/internal/inbox"
	"github.com/foxseedlab/rockhype/internal/repository"
	"github.com/foxseedlab/rockhype/internal/server"
	"github.com/foxseedlab/rockhype/internal/session"
	"github.com/foxseedlab/rockhype/internal/studio"
	"github.com/foxseedlab/rockhype/internal/telemetry"
	"github.com/samber/do/v2"
)

const (
	sessionShutdownTimeout = 30 * time.Second
	finalizeWaitTimeout    = 2 * time.Minute
)

func main() {
	listDevices := flag.Bool("list-devices", false, "print audio devices and exit")
	play := flag.String("play", "", "play a WAV recording through the default output and exit")
	flag.Parse()

	if *listDevices {
		if err := printDevices(); err != nil {
			slog.Error("failed to list audio devices", "error", err)
			os.Exit(1)
		}
		return
	}
	if *play != "" {
		if err := playFile(*play); err != nil {
			slog.Error("failed to play recording", "error", err, "file", *play)
			os.Exit(1)
		}
		return
	}

	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "user_transcription", cfg.UserTranscription, "archive_driver", cfg.ArchiveDriver)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	run(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	telemetry.RegisterDI(injector)
	mediaimpl.RegisterDI(injector)
	repositoryimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	discordimpl.RegisterDI(injector)
	gemini.RegisterDI(injector)
	liveimpl.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	recordingimpl.RegisterDI(injector)
	generation.RegisterDI(injector)
	studio.RegisterDI(injector)
	session.RegisterDI(injector)
	server.RegisterDI(injector)

	return injector
}

func mustInvoke[T any](injector do.Injector, name string) T {
	v, err := do.Invoke[T](injector)
	if err != nil {
		slog.Error("failed to resolve "+name, "error", err)
		os.Exit(1)
	}
	return v
}

func run(cfg *config.Config, injector do.Injector) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel := mustInvoke[*telemetry.Telemetry](injector, "telemetry")
	repo := mustInvoke[repository.Repository](injector, "archive repository")
	controller := mustInvoke[*session.Controller](injector, "session controller")
	st := mustInvoke[*studio.Studio](injector, "studio")
	hub := mustInvoke[*server.Hub](injector, "event hub")
	srv := mustInvoke[*server.Server](injector, "http server")

	controller.AddObserver(hub)
	st.AddListener(hub)

	inboxDone := make(chan struct{})
	if cfg.InboxDir != "" {
		go func() {
			defer close(inboxDone)
			if err := inbox.NewWatcher(cfg.InboxDir, st).Run(ctx); err != nil {
				slog.Error("inbox watcher stopped", "error", err)
			}
		}()
	} else {
		close(inboxDone)
	}

	slog.Info("startup: ready", "http_addr", cfg.HTTPAddr, "inbox_dir", cfg.InboxDir)
	if err := srv.Run(ctx); err != nil {
		slog.Error("http server failed", "error", err)
	}
	stop()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), sessionShutdownTimeout)
	if err := controller.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to stop live session", "error", err)
	}
	cancel()
	<-inboxDone

	waitCtx, cancel := context.WithTimeout(context.Background(), finalizeWaitTimeout)
	if err := st.Wait(waitCtx); err != nil {
		slog.Error("session finalization did not finish", "error", err)
	}
	if err := tel.Shutdown(waitCtx); err != nil {
		slog.Error("telemetry shutdown failed", "error", err)
	}
	cancel()

	if err := repo.Close(); err != nil {
		slog.Error("archive close failed", "error", err)
	}
}

func printDevices() error {
	devices, err := audioimpl.ListDevices()
	if err != nil {
		return err
	}
	for _, d := range devices {
		fmt.Printf("%3d  in:%d out:%d  %.0f Hz  %s\n", d.Index, d.MaxInputChannels, d.MaxOutputChannels, d.DefaultSampleRate, d.Name)
	}
	return nil
}

func playFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := audioimpl.PlayWAV(ctx, f); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
