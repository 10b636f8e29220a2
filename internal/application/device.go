package application

import (
	"context"

	"handsfree/internal/domain"
)

// KeyEventSource streams press/release transitions of the trigger key from a
// single input device. The channel closes when the context is canceled or the
// device disappears; Err reports which.
type KeyEventSource interface {
	Events(ctx context.Context) <-chan domain.KeyEvent
	Err() error
	Close() error
}

type DeviceResolver interface {
	Resolve(ctx context.Context, configured string) (string, error)
}

// DeviceOpener opens a resolved device path for reading trigger key events.
type DeviceOpener func(path string) (KeyEventSource, error)
