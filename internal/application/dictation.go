package application

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"handsfree/internal/domain"
	"handsfree/internal/infra"
)

// DictationConfig tunes the hold-to-talk loop.
type DictationConfig struct {
	// DevicePath pins a specific input device. Empty means auto-detect.
	DevicePath string
	// KeepArtifacts leaves captured WAV files on disk after each gesture.
	KeepArtifacts bool
	Retry         infra.RetryConfig
}

// Dictation drives one hold-to-talk cycle at a time: press starts the
// recorder, release stops it and hands the audio to the transcriber, and
// the resulting text goes to the injector. A press that arrives while a
// previous gesture is still transcribing is ignored.
type Dictation struct {
	cfg         DictationConfig
	resolver    DeviceResolver
	open        DeviceOpener
	recorder    Recorder
	transcriber Transcriber
	injector    Injector
	logger      *slog.Logger

	// Mutated only by the serve goroutine.
	state      domain.SessionState
	gestureLog *slog.Logger
	finished   chan struct{}
}

func NewDictation(
	cfg DictationConfig,
	resolver DeviceResolver,
	open DeviceOpener,
	recorder Recorder,
	transcriber Transcriber,
	injector Injector,
	logger *slog.Logger,
) *Dictation {
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = infra.DefaultRetryConfig()
	}
	return &Dictation{
		cfg:         cfg,
		resolver:    resolver,
		open:        open,
		recorder:    recorder,
		transcriber: transcriber,
		injector:    injector,
		logger:      logger,
		state:       domain.StateIdle,
		finished:    make(chan struct{}),
	}
}

// Run listens until the context is canceled. A device that disappears
// mid-session is re-resolved with backoff, so replugging a keyboard does not
// require a restart.
func (d *Dictation) Run(ctx context.Context) error {
	for {
		var dev KeyEventSource
		err := infra.WithRetry(ctx, d.cfg.Retry, func() error {
			path, err := d.resolver.Resolve(ctx, d.cfg.DevicePath)
			if err != nil {
				return err
			}
			dev, err = d.open(path)
			if err != nil {
				return fmt.Errorf("opening %s: %w", path, err)
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("acquiring input device: %w", err)
		}

		d.logger.Info("listening for trigger key")
		err = d.serve(ctx, dev)
		dev.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.logger.Warn("input device lost, rescanning", "error", err)
	}
}

func (d *Dictation) serve(ctx context.Context, dev KeyEventSource) error {
	events := dev.Events(ctx)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				d.teardown()
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return dev.Err()
			}
			d.handleEvent(ctx, ev)
		case <-d.finished:
			d.state = domain.StateIdle
		}
	}
}

func (d *Dictation) handleEvent(ctx context.Context, ev domain.KeyEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("gesture handling panicked", "panic", r)
			if d.state == domain.StateRecording {
				if err := d.recorder.Abort(); err != nil {
					d.logger.Error("aborting capture", "error", err)
				}
			}
			d.state = domain.StateIdle
		}
	}()

	switch ev.Type {
	case domain.KeyPress:
		if d.state != domain.StateIdle {
			d.logger.Debug("trigger press ignored", "state", d.state)
			return
		}
		log := d.logger.With("gesture", uuid.NewString())
		if err := d.recorder.Start(ctx); err != nil {
			log.Error("starting capture", "error", err)
			return
		}
		d.gestureLog = log
		d.state = domain.StateRecording
		log.Info("recording")

	case domain.KeyRelease:
		if d.state != domain.StateRecording {
			d.logger.Debug("trigger release ignored", "state", d.state)
			return
		}
		log := d.gestureLog
		artifact, err := d.recorder.Stop()
		if err != nil {
			if artifact.Path == "" {
				log.Error("capture failed", "error", err)
				d.state = domain.StateIdle
				return
			}
			log.Warn("capture ended early, transcribing partial audio", "error", err)
		}
		d.state = domain.StateTranscribing
		go d.process(ctx, log, artifact)
	}
}

// process runs the transcribe-and-inject half of a gesture off the event
// loop, so new trigger presses are seen (and ignored) while it works.
func (d *Dictation) process(ctx context.Context, log *slog.Logger, artifact domain.Artifact) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("dictation pipeline panicked", "panic", r)
		}
		d.cleanup(log, artifact)
		d.finished <- struct{}{}
	}()

	segments, err := d.transcriber.Transcribe(ctx, artifact)
	if err != nil {
		log.Error("transcribing", "error", err)
		return
	}
	if len(segments) == 0 {
		log.Info("no speech detected")
		return
	}

	log.Info("injecting transcript", "state", domain.StateInjecting, "segments", len(segments))
	for _, seg := range segments {
		if err := d.injector.Inject(ctx, seg.Text); err != nil {
			log.Error("injecting segment", "text", seg.Text, "error", err)
		}
	}
}

func (d *Dictation) cleanup(log *slog.Logger, artifact domain.Artifact) {
	if d.cfg.KeepArtifacts || artifact.Path == "" {
		return
	}
	if err := os.Remove(artifact.Path); err != nil && !os.IsNotExist(err) {
		log.Warn("removing audio artifact", "path", artifact.Path, "error", err)
	}
}

// teardown settles any in-flight gesture before serve returns: an active
// recording is aborted and a running pipeline is waited out.
func (d *Dictation) teardown() {
	switch d.state {
	case domain.StateRecording:
		if err := d.recorder.Abort(); err != nil {
			d.logger.Error("aborting capture", "error", err)
		}
	case domain.StateTranscribing:
		<-d.finished
	}
	d.state = domain.StateIdle
}
