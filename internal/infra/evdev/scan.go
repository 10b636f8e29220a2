package evdev

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	evdev "github.com/holoplot/go-evdev"
)

// DeviceInfo describes one input device node for discovery output.
type DeviceInfo struct {
	Path       string
	Name       string
	HasTrigger bool
	Keyboardy  bool
}

// Resolver finds a device node that reports the trigger key. Device numbers
// shuffle across reboots, so the configured path is treated as a hint, not a
// fact.
type Resolver struct {
	code   uint16
	logger *slog.Logger
}

func NewResolver(code uint16, logger *slog.Logger) *Resolver {
	return &Resolver{code: code, logger: logger}
}

// Resolve returns a currently valid device path. The configured path wins
// when it still reports the trigger key; otherwise all event devices are
// scanned, preferring one that advertises the key and falling back to a
// keyboard-looking name.
func (r *Resolver) Resolve(ctx context.Context, configured string) (string, error) {
	if configured != "" && supportsKey(configured, r.code) {
		return configured, nil
	}

	devices, err := ListDevices(r.code)
	if err != nil {
		return "", fmt.Errorf("scanning input devices: %w", err)
	}

	for _, d := range devices {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if d.HasTrigger {
			if configured != "" && d.Path != configured {
				r.logger.Info("detected device differs from configured device",
					"detected", d.Path, "configured", configured)
			}
			return d.Path, nil
		}
	}

	// No device advertises the key; take anything that looks like a keyboard.
	for _, d := range devices {
		if d.Keyboardy {
			r.logger.Warn("no device reports trigger key, using keyboard-like device",
				"path", d.Path, "name", d.Name)
			return d.Path, nil
		}
	}

	return "", fmt.Errorf("%w: no input device reports key %s", ErrDeviceUnavailable, KeyName(r.code))
}

// ListDevices enumerates the event devices in event-number order and marks
// which ones report the trigger code. Inaccessible devices are skipped.
func ListDevices(code uint16) ([]DeviceInfo, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, err
	}

	sort.Slice(paths, func(i, j int) bool {
		return eventNumber(paths[i].Path) < eventNumber(paths[j].Path)
	})

	infos := make([]DeviceInfo, 0, len(paths))
	for _, p := range paths {
		info := DeviceInfo{Path: p.Path, Name: p.Name, Keyboardy: looksLikeKeyboard(p.Name)}
		info.HasTrigger = supportsKey(p.Path, code)
		infos = append(infos, info)
	}
	return infos, nil
}

func supportsKey(path string, code uint16) bool {
	dev, err := evdev.Open(path)
	if err != nil {
		return false
	}
	defer dev.Close()

	for _, t := range dev.CapableTypes() {
		if t != evdev.EV_KEY {
			continue
		}
		for _, c := range dev.CapableEvents(t) {
			if c == evdev.EvCode(code) {
				return true
			}
		}
	}
	return false
}

func looksLikeKeyboard(name string) bool {
	lower := strings.ToLower(name)
	for _, keyword := range []string{"keyboard", "kbd", "key"} {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

func eventNumber(path string) int {
	const prefix = "event"
	i := strings.LastIndex(path, prefix)
	if i < 0 {
		return 1 << 30
	}
	n, err := strconv.Atoi(path[i+len(prefix):])
	if err != nil {
		return 1 << 30
	}
	return n
}
