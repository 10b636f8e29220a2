//go:build !portaudio
// +build !portaudio

package recorder

import (
	"context"
	"errors"
	"log/slog"

	"handsfree/internal/domain"
)

// Portaudio stub when portaudio is not compiled in.
type Portaudio struct {
	logger *slog.Logger
}

func NewPortaudio(cfg Config, logger *slog.Logger) *Portaudio {
	return &Portaudio{logger: logger}
}

func (p *Portaudio) Start(_ context.Context) error {
	return errors.New("portaudio capture not available: rebuild with -tags portaudio")
}

func (p *Portaudio) Stop() (domain.Artifact, error) {
	return domain.Artifact{}, nil
}

func (p *Portaudio) Abort() error {
	return nil
}
