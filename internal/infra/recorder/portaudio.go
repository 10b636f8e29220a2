//go:build portaudio
// +build portaudio

package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"

	"handsfree/internal/domain"
)

// Portaudio captures in-process instead of spawning a subprocess. Useful
// when the daemon runs unprivileged and no identity drop is needed; selected
// with `audio.backend: portaudio`.
type Portaudio struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	stream  *portaudio.Stream
	samples []int
	stop    chan struct{}
	done    chan struct{}
}

func NewPortaudio(cfg Config, logger *slog.Logger) *Portaudio {
	cfg.setDefaults()
	return &Portaudio{cfg: cfg, logger: logger}
}

func (p *Portaudio) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stream != nil {
		return fmt.Errorf("%w: capture already in progress", ErrSpawn)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: initializing portaudio: %v", ErrSpawn, err)
	}

	framesPerBuffer := 1024
	buffer := make([]int16, framesPerBuffer*p.cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(
		p.cfg.Channels,
		0,
		float64(p.cfg.SampleRate),
		framesPerBuffer,
		buffer,
	)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: opening stream: %v", ErrSpawn, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("%w: starting stream: %v", ErrSpawn, err)
	}

	p.stream = stream
	p.samples = p.samples[:0]
	p.stop = make(chan struct{})
	p.done = make(chan struct{})

	go p.capture(stream, buffer, p.stop, p.done)
	p.logger.Info("recording started", "backend", "portaudio", "output", p.cfg.OutputPath)
	return nil
}

func (p *Portaudio) capture(stream *portaudio.Stream, buffer []int16, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}
		if err := stream.Read(); err != nil {
			p.logger.Warn("portaudio read", "error", err)
			return
		}
		p.mu.Lock()
		for _, s := range buffer {
			p.samples = append(p.samples, int(s))
		}
		p.mu.Unlock()
	}
}

func (p *Portaudio) Stop() (domain.Artifact, error) {
	samples, ok := p.teardown()
	if !ok {
		return domain.Artifact{}, nil
	}
	if len(samples) == 0 {
		return domain.Artifact{}, fmt.Errorf("%w: no samples captured", ErrNoAudio)
	}

	if err := p.writeWAV(samples); err != nil {
		return domain.Artifact{}, fmt.Errorf("%w: %v", ErrNoAudio, err)
	}
	return domain.Artifact{
		Path:       p.cfg.OutputPath,
		SampleRate: p.cfg.SampleRate,
		Channels:   p.cfg.Channels,
	}, nil
}

func (p *Portaudio) Abort() error {
	if _, ok := p.teardown(); !ok {
		return nil
	}
	if err := os.Remove(p.cfg.OutputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing aborted capture: %w", err)
	}
	return nil
}

func (p *Portaudio) teardown() ([]int, bool) {
	p.mu.Lock()
	stream, stop, done := p.stream, p.stop, p.done
	p.stream = nil
	p.mu.Unlock()

	if stream == nil {
		return nil, false
	}

	close(stop)
	<-done

	stream.Stop()
	stream.Close()
	portaudio.Terminate()

	p.mu.Lock()
	samples := p.samples
	p.samples = nil
	p.mu.Unlock()
	return samples, true
}

func (p *Portaudio) writeWAV(samples []int) error {
	if err := os.MkdirAll(filepath.Dir(p.cfg.OutputPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(p.cfg.OutputPath)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := wav.NewEncoder(f, p.cfg.SampleRate, 16, p.cfg.Channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: p.cfg.Channels, SampleRate: p.cfg.SampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}
