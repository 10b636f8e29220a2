// Package whisper invokes the whisper.cpp CLI to transcribe recorded audio.
// The binary, model and compute device are resolved once at startup; only
// the per-utterance decode runs per gesture.
package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"handsfree/internal/domain"
	"handsfree/internal/infra/wavcheck"
)

var (
	// ErrBackendMissing means no whisper.cpp binary could be located.
	ErrBackendMissing = errors.New("whisper binary not found")
	// ErrModelMissing means the model file does not exist.
	ErrModelMissing = errors.New("whisper model not found")
	// ErrAcceleratorUnavailable means accelerated compute was forced but no
	// accelerator is present. Only possible with the `accelerated` policy.
	ErrAcceleratorUnavailable = errors.New("accelerated compute device unavailable")
	// ErrTranscription covers per-utterance backend failures: corrupt audio,
	// decode errors, timeouts. Terminal for the gesture, never retried.
	ErrTranscription = errors.New("transcription failed")
)

// DevicePolicy selects the compute device for the backend.
type DevicePolicy string

const (
	DeviceAuto        DevicePolicy = "auto"
	DeviceCPU         DevicePolicy = "cpu"
	DeviceAccelerated DevicePolicy = "accelerated"
)

// Config for the transcription backend.
type Config struct {
	Binary    string
	ModelPath string
	ModelSize string
	ModelDir  string
	Language  string
	Device    DevicePolicy
	Timeout   time.Duration
}

// CLI shells out to whisper.cpp for each utterance.
type CLI struct {
	binary    string
	modelPath string
	language  string
	useGPU    bool
	timeout   time.Duration
	logger    *slog.Logger
}

// detectAccelerator is swapped in tests. The default looks for a GPU render
// node, which is what whisper.cpp's GPU backends drive.
var detectAccelerator = func() bool {
	if matches, err := filepath.Glob("/dev/dri/renderD*"); err == nil && len(matches) > 0 {
		return true
	}
	if _, err := os.Stat("/dev/nvidia0"); err == nil {
		return true
	}
	return false
}

// New resolves binary, model and compute device once. These checks are the
// slow/load-bearing part; Transcribe never repeats them.
func New(cfg Config, logger *slog.Logger) (*CLI, error) {
	binary, err := findBinary(cfg.Binary)
	if err != nil {
		return nil, err
	}

	modelPath := cfg.ModelPath
	if modelPath == "" {
		size := cfg.ModelSize
		if size == "" {
			size = "small"
		}
		dir := cfg.ModelDir
		if dir == "" {
			dir = "/var/lib/handsfree/models"
		}
		modelPath = filepath.Join(dir, fmt.Sprintf("ggml-%s.bin", size))
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrModelMissing, modelPath)
	}

	useGPU, err := resolveDevice(cfg.Device, detectAccelerator, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("transcription backend ready",
		"binary", binary, "model", modelPath, "accelerated", useGPU)

	return &CLI{
		binary:    binary,
		modelPath: modelPath,
		language:  cfg.Language,
		useGPU:    useGPU,
		timeout:   cfg.Timeout,
		logger:    logger,
	}, nil
}

// Transcribe runs one decode over the artifact and returns the recognised
// segments. Whitespace-only recognition yields zero segments, not an error.
func (c *CLI) Transcribe(ctx context.Context, artifact domain.Artifact) ([]domain.TranscriptSegment, error) {
	info, err := wavcheck.Probe(artifact.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTranscription, err)
	}
	if artifact.SampleRate > 0 && info.SampleRate != artifact.SampleRate {
		c.logger.Warn("artifact sample rate differs from expected",
			"got", info.SampleRate, "want", artifact.SampleRate)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.binary, c.args(artifact.Path)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: backend did not finish in time: %v", ErrTranscription, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %v: %s", ErrTranscription, err, strings.TrimSpace(stderr.String()))
	}

	return parseSegments(stdout.String()), nil
}

func (c *CLI) args(audioPath string) []string {
	args := []string{
		"-m", c.modelPath,
		"-f", audioPath,
		"-nt",
		"--no-prints",
	}
	if c.language != "" {
		args = append(args, "-l", c.language)
	}
	if !c.useGPU {
		args = append(args, "-ng")
	}
	return args
}

// parseSegments splits the backend's plain-text output into trimmed,
// non-empty segments.
func parseSegments(out string) []domain.TranscriptSegment {
	var segments []domain.TranscriptSegment
	for _, line := range strings.Split(out, "\n") {
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		segments = append(segments, domain.TranscriptSegment{Text: text})
	}
	return segments
}

func resolveDevice(policy DevicePolicy, probe func() bool, logger *slog.Logger) (bool, error) {
	switch policy {
	case DeviceCPU:
		return false, nil
	case DeviceAccelerated:
		if !probe() {
			return false, ErrAcceleratorUnavailable
		}
		return true, nil
	case DeviceAuto, "":
		if probe() {
			return true, nil
		}
		logger.Info("no accelerator available, using cpu")
		return false, nil
	default:
		return false, fmt.Errorf("unknown device policy %q", policy)
	}
}

// findBinary locates the whisper.cpp CLI. Homebrew calls it whisper-cli,
// older builds ship main.
func findBinary(explicit string) (string, error) {
	if explicit != "" {
		if path, err := exec.LookPath(explicit); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("%w: %s", ErrBackendMissing, explicit)
	}

	names := []string{"whisper-cli", "whisper-cpp", "whisper", "main"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}

	for _, dir := range []string{"/usr/local/bin", "/opt/whisper.cpp"} {
		for _, name := range names {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}
	}

	return "", ErrBackendMissing
}
