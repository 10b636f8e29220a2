package application

import (
	"context"

	"handsfree/internal/domain"
)

// Recorder captures microphone audio between Start and Stop. Stop returns the
// recorded artifact; Abort discards it. Both are no-ops on an idle recorder.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (domain.Artifact, error)
	Abort() error
}
