// Package ydotool delivers recognised text to the focused window through the
// ydotoold virtual-input daemon. The daemon is owned by an external
// supervisor; this is only a client.
package ydotool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

var (
	// ErrInjectorMissing means the ydotool binary is not installed.
	ErrInjectorMissing = errors.New("ydotool binary not found")
	// ErrSocketMissing means ydotoold has not created its socket.
	ErrSocketMissing = errors.New("ydotool socket missing")
	// ErrInjection means the typing command ran but reported failure.
	ErrInjection = errors.New("text injection failed")
)

// Config for the injector client.
type Config struct {
	Binary     string
	SocketPath string
	KeyDelayMS int
	Env        []string
}

// Client types text via the ydotool CLI.
type Client struct {
	binary     string
	socketPath string
	keyDelay   int
	env        []string
	logger     *slog.Logger
}

// New resolves the ydotool binary. The socket is checked per delivery, not
// here: ydotoold may come up after the daemon does.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	binary := cfg.Binary
	if binary == "" {
		binary = "ydotool"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s (install the ydotool package)", ErrInjectorMissing, binary)
	}

	if cfg.Env == nil {
		cfg.Env = os.Environ()
	}

	return &Client{
		binary:     path,
		socketPath: cfg.SocketPath,
		keyDelay:   cfg.KeyDelayMS,
		env:        cfg.Env,
		logger:     logger,
	}, nil
}

// SocketPath returns the resolved injector socket, for startup logging.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// Inject types the text into the active window, appending one trailing space
// so consecutive utterances stay word-separated. Synchronous; no retry.
func (c *Client) Inject(ctx context.Context, text string) error {
	if _, err := os.Stat(c.socketPath); err != nil {
		return fmt.Errorf("%w: %s (ensure ydotoold.service is running and created the socket)",
			ErrSocketMissing, c.socketPath)
	}

	args := []string{"type", "--key-delay", strconv.Itoa(c.keyDelay), "--", text + " "}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Stderr = &stderr
	cmd.Env = append(append([]string{}, c.env...), "YDOTOOL_SOCKET="+c.socketPath)

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %v: %s", ErrInjection, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
