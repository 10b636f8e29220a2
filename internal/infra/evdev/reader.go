// Package evdev reads raw Linux input devices and resolves which device
// carries the hold-to-talk trigger key.
package evdev

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	evdev "github.com/holoplot/go-evdev"

	"handsfree/internal/domain"
)

var (
	// ErrDeviceUnavailable means the device node could not be opened at all.
	ErrDeviceUnavailable = errors.New("input device unavailable")
	// ErrDeviceLost means an opened device stopped delivering events. A fresh
	// resolve/open cycle is required; the reader cannot be restarted.
	ErrDeviceLost = errors.New("input device lost")
)

// Device is an opened input device filtered down to one trigger key.
type Device struct {
	dev  *evdev.InputDevice
	path string
	code evdev.EvCode

	closeOnce sync.Once

	mu      sync.Mutex
	readErr error
}

// Open opens the device node and prepares it for trigger-key reading.
func Open(path string, code uint16) (*Device, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrDeviceUnavailable, path, err)
	}
	return &Device{dev: dev, path: path, code: evdev.EvCode(code)}, nil
}

// Path returns the device node this reader was opened on.
func (d *Device) Path() string {
	return d.path
}

// Events returns the stream of press/release transitions for the trigger
// key. All other codes and autorepeat events are discarded. The channel is
// closed when the device fails or the context is cancelled; Err tells the
// two apart.
func (d *Device) Events(ctx context.Context) <-chan domain.KeyEvent {
	out := make(chan domain.KeyEvent)

	// ReadOne blocks in the kernel; closing the fd is the only way to
	// interrupt it on shutdown.
	go func() {
		<-ctx.Done()
		d.Close()
	}()

	go func() {
		defer close(out)
		for {
			ev, err := d.dev.ReadOne()
			if err != nil {
				if ctx.Err() == nil {
					d.setErr(fmt.Errorf("%w: reading %s: %v", ErrDeviceLost, d.path, err))
				}
				return
			}
			key, ok := keyTransition(ev, d.code)
			if !ok {
				continue
			}
			select {
			case out <- key:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// Err reports why the event stream ended. It is nil after a clean,
// context-driven shutdown.
func (d *Device) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readErr
}

func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = d.dev.Close()
	})
	return err
}

func (d *Device) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readErr = err
}

// keyTransition maps a raw input event to a logical key edge. Value 1 is a
// press, 0 a release; 2 is kernel autorepeat and must never look like a new
// press.
func keyTransition(ev *evdev.InputEvent, code evdev.EvCode) (domain.KeyEvent, bool) {
	if ev.Type != evdev.EV_KEY || ev.Code != code {
		return domain.KeyEvent{}, false
	}
	switch ev.Value {
	case 1:
		return domain.KeyEvent{Type: domain.KeyPress, Code: uint16(code), Time: time.Now()}, true
	case 0:
		return domain.KeyEvent{Type: domain.KeyRelease, Code: uint16(code), Time: time.Now()}, true
	default:
		return domain.KeyEvent{}, false
	}
}

// ParseKey accepts either a symbolic evdev name such as KEY_RIGHTCTRL or a
// numeric key code.
func ParseKey(name string) (uint16, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return 0, errors.New("trigger key is empty")
	}
	if n, err := strconv.ParseUint(trimmed, 10, 16); err == nil {
		return uint16(n), nil
	}
	if code, ok := evdev.KEYFromString[strings.ToUpper(trimmed)]; ok {
		return uint16(code), nil
	}
	return 0, fmt.Errorf("unknown trigger key %q", name)
}

// KeyName returns the symbolic name for a key code, for logging.
func KeyName(code uint16) string {
	return evdev.CodeName(evdev.EV_KEY, evdev.EvCode(code))
}
