package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"handsfree/internal/domain"
	"handsfree/internal/infra/userenv"
	"handsfree/internal/infra/wavcheck"
	"handsfree/internal/infra/whisper"
	"handsfree/internal/infra/ydotool"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <audio.wav>",
	Short: "Transcribe a WAV file once and print the text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		path := args[0]
		info, err := wavcheck.Probe(path)
		if err != nil {
			return fmt.Errorf("probing %s: %w", path, err)
		}

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

		segments, err := transcriber.Transcribe(cmd.Context(), domain.Artifact{
			Path:       path,
			SampleRate: info.SampleRate,
			Channels:   info.Channels,
		})
		if err != nil {
			return err
		}
		if len(segments) == 0 {
			logger.Info("no speech detected")
			return nil
		}

		typeIt, _ := cmd.Flags().GetBool("type")
		if !typeIt {
			for _, seg := range segments {
				fmt.Println(seg.Text)
			}
			return nil
		}

		socket := cfg.Ydotool.Socket
		if socket == "" {
			if cfg.User.Name != "" {
				sessionUser, err := userenv.Lookup(cfg.User.Name)
				if err != nil {
					return err
				}
				socket = sessionUser.DefaultSocketPath()
			} else {
				socket = filepath.Join(os.Getenv("XDG_RUNTIME_DIR"), ".ydotool_socket")
			}
		}
		injector, err := ydotool.New(ydotool.Config{
			Binary:     cfg.Ydotool.Binary,
			SocketPath: socket,
			KeyDelayMS: cfg.Ydotool.KeyDelayMS,
		}, logger)
		if err != nil {
			return err
		}

		for _, seg := range segments {
			if err := injector.Inject(cmd.Context(), seg.Text); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	transcribeCmd.Flags().Bool("type", false, "type the transcript into the active window instead of printing it")
}
