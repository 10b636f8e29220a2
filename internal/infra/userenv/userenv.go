// Package userenv resolves the unprivileged desktop user and builds the
// session environment for helpers that must run inside that user's session.
package userenv

import (
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// SessionUser is the desktop user that owns the graphical session and the
// audio routing. The daemon itself runs as root; capture and injection
// helpers run with this identity.
type SessionUser struct {
	Name       string
	UID        uint32
	GID        uint32
	Home       string
	RuntimeDir string
}

// Lookup resolves the configured target user to uid/gid and directories.
func Lookup(username string) (SessionUser, error) {
	u, err := user.Lookup(username)
	if err != nil {
		return SessionUser{}, fmt.Errorf("looking up user %q: %w", username, err)
	}

	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return SessionUser{}, fmt.Errorf("parsing uid %q: %w", u.Uid, err)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return SessionUser{}, fmt.Errorf("parsing gid %q: %w", u.Gid, err)
	}

	return SessionUser{
		Name:       u.Username,
		UID:        uint32(uid),
		GID:        uint32(gid),
		Home:       u.HomeDir,
		RuntimeDir: fmt.Sprintf("/run/user/%d", uid),
	}, nil
}

// Environ returns the process environment for a helper spawned inside the
// user's session: the daemon's own environment with the user's HOME, cache
// and runtime directories, and display variables layered on top.
func (s SessionUser) Environ(display, waylandDisplay string, logger *slog.Logger) []string {
	if display == "" {
		display = ":0"
	}
	if waylandDisplay == "" {
		waylandDisplay = DiscoverWaylandDisplay(s.RuntimeDir, logger)
	}

	overrides := map[string]string{
		"HOME":            s.Home,
		"XDG_CACHE_HOME":  filepath.Join(s.Home, ".cache"),
		"XDG_RUNTIME_DIR": s.RuntimeDir,
		"DISPLAY":         display,
		"WAYLAND_DISPLAY": waylandDisplay,
	}

	return mergeEnv(os.Environ(), overrides)
}

// DiscoverWaylandDisplay finds the user's Wayland display socket in the
// runtime directory, falling back to wayland-0 when none is found.
func DiscoverWaylandDisplay(runtimeDir string, logger *slog.Logger) string {
	matches, err := filepath.Glob(filepath.Join(runtimeDir, "wayland-*"))
	if err == nil && len(matches) > 0 {
		sort.Strings(matches)
		for _, m := range matches {
			// wayland-0.lock and similar are not display sockets.
			if filepath.Ext(m) != "" {
				continue
			}
			name := filepath.Base(m)
			logger.Info("auto-detected wayland display", "display", name)
			return name
		}
	}
	logger.Warn("no wayland display found, falling back to wayland-0", "runtimeDir", runtimeDir)
	return "wayland-0"
}

// DefaultSocketPath returns where ydotoold creates its socket for this user
// unless overridden in configuration.
func (s SessionUser) DefaultSocketPath() string {
	return filepath.Join(s.RuntimeDir, ".ydotool_socket")
}

func mergeEnv(base []string, overrides map[string]string) []string {
	merged := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		merged = append(merged, kv)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		merged = append(merged, k+"="+overrides[k])
	}
	return merged
}
