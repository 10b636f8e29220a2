// Package recorder owns the audio-capture subprocess for one hold-to-talk
// gesture at a time.
package recorder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"handsfree/internal/domain"
	"handsfree/internal/infra/userenv"
)

var (
	// ErrSpawn means the capture binary could not be launched at all.
	ErrSpawn = errors.New("recorder failed to start")
	// ErrExitedAbnormally means the capture process exited with a failure
	// status on its own. The artifact may still be usable; callers decide.
	ErrExitedAbnormally = errors.New("recorder exited abnormally")
	// ErrNoAudio means the capture process left no usable output file.
	ErrNoAudio = errors.New("recording produced no usable audio")
)

// Config describes one capture invocation. The output path is deterministic
// and overwritten every session.
type Config struct {
	Binary      string
	OutputPath  string
	SampleRate  int
	Channels    int
	Format      string
	StopTimeout time.Duration

	// User is the desktop user the capture process runs as, so that the
	// user's audio-session routing applies. A zero UID leaves the daemon's
	// own identity in place.
	User userenv.SessionUser
	Env  []string
}

func (c *Config) setDefaults() {
	if c.Binary == "" {
		c.Binary = "arecord"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.Format == "" {
		c.Format = "S16_LE"
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 2 * time.Second
	}
}

// Arecord records via an ALSA capture subprocess. At most one capture is
// active at a time; Stop and Abort on an idle recorder are no-ops.
type Arecord struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	waitErr chan error
	stderr  *bytes.Buffer
}

func NewArecord(cfg Config, logger *slog.Logger) *Arecord {
	cfg.setDefaults()
	return &Arecord{cfg: cfg, logger: logger}
}

// Start spawns the capture subprocess under the target user's identity.
func (a *Arecord) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cmd != nil {
		return fmt.Errorf("%w: capture already in progress", ErrSpawn)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(a.cfg.OutputPath), 0o755); err != nil {
		return fmt.Errorf("%w: creating output directory: %v", ErrSpawn, err)
	}

	stderr := &bytes.Buffer{}
	cmd := exec.Command(a.cfg.Binary, buildArgs(a.cfg)...)
	cmd.Stderr = stderr
	if a.cfg.Env != nil {
		cmd.Env = a.cfg.Env
	}
	if cred := credentialFor(a.cfg.User); cred != nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{Credential: cred}
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrSpawn, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	a.cmd = cmd
	a.waitErr = waitErr
	a.stderr = stderr
	a.logger.Info("recording started", "pid", cmd.Process.Pid, "output", a.cfg.OutputPath)
	return nil
}

// Stop terminates the capture gracefully and returns the finished artifact.
// If the process had already exited with a failure status the artifact is
// still returned alongside ErrExitedAbnormally when the file is non-empty;
// partial captures are often transcribable.
func (a *Arecord) Stop() (domain.Artifact, error) {
	cmd, waitErr, stderr := a.take()
	if cmd == nil {
		return domain.Artifact{}, nil
	}

	var exitErr error
	exitedEarly := false
	select {
	case err := <-waitErr:
		exitedEarly = true
		exitErr = err
	default:
		exitErr = a.terminate(cmd, waitErr)
	}

	artifact, usable := a.artifact()

	if exitedEarly && exitErr != nil {
		a.logger.Warn("recorder exited before stop", "error", exitErr, "stderr", trimmed(stderr))
		if usable {
			return artifact, fmt.Errorf("%w: %v", ErrExitedAbnormally, exitErr)
		}
		return domain.Artifact{}, fmt.Errorf("%w: %v", ErrExitedAbnormally, exitErr)
	}

	if exitErr != nil {
		a.logger.Warn("reaping recorder", "error", exitErr, "stderr", trimmed(stderr))
	}
	if !usable {
		return domain.Artifact{}, fmt.Errorf("%w: %s", ErrNoAudio, a.cfg.OutputPath)
	}
	return artifact, nil
}

// Abort tears the capture down without producing an artifact: terminate,
// reap, remove the temp file. Used on shutdown and after gesture failures.
func (a *Arecord) Abort() error {
	cmd, waitErr, _ := a.take()
	if cmd == nil {
		return nil
	}

	_ = a.terminate(cmd, waitErr)
	if err := os.Remove(a.cfg.OutputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing aborted capture: %w", err)
	}
	return nil
}

// take claims the active subprocess, leaving the recorder idle. Subsequent
// Stop/Abort calls become no-ops.
func (a *Arecord) take() (*exec.Cmd, chan error, *bytes.Buffer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cmd, waitErr, stderr := a.cmd, a.waitErr, a.stderr
	a.cmd, a.waitErr, a.stderr = nil, nil, nil
	return cmd, waitErr, stderr
}

// terminate sends SIGTERM, waits up to the stop timeout, then force-kills.
// An exit caused by our own signal is not a failure.
func (a *Arecord) terminate(cmd *exec.Cmd, waitErr chan error) error {
	_ = cmd.Process.Signal(syscall.SIGTERM)

	select {
	case err := <-waitErr:
		return normalizeExit(err)
	case <-time.After(a.cfg.StopTimeout):
		a.logger.Warn("recorder ignored SIGTERM, killing", "pid", cmd.Process.Pid)
		_ = cmd.Process.Kill()
		return normalizeExit(<-waitErr)
	}
}

func (a *Arecord) artifact() (domain.Artifact, bool) {
	info, err := os.Stat(a.cfg.OutputPath)
	if err != nil || info.Size() == 0 {
		return domain.Artifact{}, false
	}
	return domain.Artifact{
		Path:       a.cfg.OutputPath,
		SampleRate: a.cfg.SampleRate,
		Channels:   a.cfg.Channels,
	}, true
}

func buildArgs(cfg Config) []string {
	return []string{
		"-q",
		"-f", cfg.Format,
		"-r", strconv.Itoa(cfg.SampleRate),
		"-c", strconv.Itoa(cfg.Channels),
		"-t", "wav",
		cfg.OutputPath,
	}
}

func credentialFor(u userenv.SessionUser) *syscall.Credential {
	if u.UID == 0 {
		return nil
	}
	return &syscall.Credential{Uid: u.UID, Gid: u.GID}
}

// normalizeExit drops exit errors caused by termination signals; stopping
// the recorder is the normal way a capture ends.
func normalizeExit(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimmed(buf *bytes.Buffer) string {
	if buf == nil {
		return ""
	}
	return string(bytes.TrimSpace(buf.Bytes()))
}
