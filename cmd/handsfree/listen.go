package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"handsfree/config"
	"handsfree/internal/application"
	"handsfree/internal/infra"
	"handsfree/internal/infra/evdev"
	"handsfree/internal/infra/recorder"
	"handsfree/internal/infra/userenv"
	"handsfree/internal/infra/whisper"
	"handsfree/internal/infra/ydotool"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Run the dictation daemon",
	Long: "Watches the configured input device for the trigger key and runs " +
		"the record-transcribe-type cycle on every hold. Needs read access " +
		"to /dev/input, so it normally runs as root with an unprivileged " +
		"user.name configured for audio and injection.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		code, err := evdev.ParseKey(cfg.Device.TriggerKey)
		if err != nil {
			return fmt.Errorf("device.trigger_key: %w", err)
		}

		if cfg.User.Name == "" {
			return errors.New("user.name is not set (configure it, or run via sudo so SUDO_USER carries over)")
		}
		sessionUser, err := userenv.Lookup(cfg.User.Name)
		if err != nil {
			return err
		}
		env := sessionUser.Environ(cfg.Session.Display, cfg.Session.WaylandDisplay, logger)

		rec := buildRecorder(cfg, sessionUser, env, logger)

		transcriber, err := whisper.New(whisper.Config{
			Binary:    cfg.Whisper.Binary,
			ModelPath: cfg.Whisper.Model,
			ModelSize: cfg.Whisper.ModelSize,
			ModelDir:  cfg.Whisper.ModelDir,
			Language:  cfg.Whisper.Language,
			Device:    whisper.DevicePolicy(cfg.Whisper.Device),
			Timeout:   cfg.Whisper.Timeout.Std(),
		}, logger)
		if err != nil {
			return err
		}

		socket := cfg.Ydotool.Socket
		if socket == "" {
			socket = sessionUser.DefaultSocketPath()
		}
		injector, err := ydotool.New(ydotool.Config{
			Binary:     cfg.Ydotool.Binary,
			SocketPath: socket,
			KeyDelayMS: cfg.Ydotool.KeyDelayMS,
			Env:        env,
		}, logger)
		if err != nil {
			return err
		}

		resolver := evdev.NewResolver(code, logger)
		opener := func(path string) (application.KeyEventSource, error) {
			return evdev.Open(path, code)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go func() {
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			logger.Info("shutting down")
			cancel()
		}()

		dictation := application.NewDictation(
			application.DictationConfig{
				DevicePath:    cfg.Device.Path,
				KeepArtifacts: cfg.Audio.Keep,
				Retry:         infra.DefaultRetryConfig(),
			},
			resolver,
			opener,
			rec,
			transcriber,
			injector,
			logger,
		)

		logger.Info("starting dictation daemon",
			"user", sessionUser.Name,
			"trigger", evdev.KeyName(code),
			"backend", cfg.Audio.Backend,
			"socket", injector.SocketPath(),
		)

		if err := dictation.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func buildRecorder(cfg *config.Config, sessionUser userenv.SessionUser, env []string, logger *slog.Logger) application.Recorder {
	rcfg := recorder.Config{
		OutputPath:  cfg.Audio.File,
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
		Format:      cfg.Audio.Format,
		StopTimeout: cfg.Audio.StopTimeout.Std(),
		User:        sessionUser,
		Env:         env,
	}

	if cfg.Audio.Backend == "portaudio" {
		return recorder.NewPortaudio(rcfg, logger)
	}
	return recorder.NewArecord(rcfg, logger)
}
