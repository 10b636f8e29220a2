package application

import (
	"context"

	"handsfree/internal/domain"
)

type Transcriber interface {
	Transcribe(ctx context.Context, artifact domain.Artifact) ([]domain.TranscriptSegment, error)
}
