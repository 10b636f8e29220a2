package whisper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"handsfree/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeScript(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("writing script: %v", err)
	}
	return path
}

func writeModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ggml-small.bin")
	if err := os.WriteFile(path, []byte("model"), 0o600); err != nil {
		t.Fatalf("writing model: %v", err)
	}
	return path
}

func writeArtifact(t *testing.T) domain.Artifact {
	t.Helper()
	path := filepath.Join(t.TempDir(), "utterance.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating wav: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           make([]int, 160),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("writing samples: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("closing encoder: %v", err)
	}
	return domain.Artifact{Path: path, SampleRate: 16000, Channels: 1}
}

func newTestCLI(t *testing.T, script string, cfg Config) *CLI {
	t.Helper()
	cfg.Binary = script
	if cfg.ModelPath == "" {
		cfg.ModelPath = writeModel(t)
	}
	if cfg.Device == "" {
		cfg.Device = DeviceCPU
	}
	cli, err := New(cfg, discardLogger())
	if err != nil {
		t.Fatalf("constructing backend: %v", err)
	}
	return cli
}

func TestTranscribeReturnsTrimmedSegments(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "whisper.sh", "#!/bin/sh\nprintf '  turn on the lights  \\n\\n second line \\n'\n")
	cli := newTestCLI(t, script, Config{})

	segments, err := cli.Transcribe(context.Background(), writeArtifact(t))
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d: %v", len(segments), segments)
	}
	if segments[0].Text != "turn on the lights" {
		t.Fatalf("segment[0] = %q", segments[0].Text)
	}
	if segments[1].Text != "second line" {
		t.Fatalf("segment[1] = %q", segments[1].Text)
	}
}

func TestTranscribeWhitespaceOnlyYieldsZeroSegments(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "whisper.sh", "#!/bin/sh\nprintf '   \\n\\t\\n'\n")
	cli := newTestCLI(t, script, Config{})

	segments, err := cli.Transcribe(context.Background(), writeArtifact(t))
	if err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if len(segments) != 0 {
		t.Fatalf("expected zero segments, got %v", segments)
	}
}

func TestTranscribeBackendFailure(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "whisper.sh", "#!/bin/sh\necho 'decode error' 1>&2\nexit 1\n")
	cli := newTestCLI(t, script, Config{})

	_, err := cli.Transcribe(context.Background(), writeArtifact(t))
	if !errors.Is(err, ErrTranscription) {
		t.Fatalf("expected ErrTranscription, got %v", err)
	}
}

func TestTranscribeCorruptArtifact(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "whisper.sh", "#!/bin/sh\necho should-not-run\n")
	cli := newTestCLI(t, script, Config{})

	bad := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(bad, []byte("not audio"), 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	_, err := cli.Transcribe(context.Background(), domain.Artifact{Path: bad})
	if !errors.Is(err, ErrTranscription) {
		t.Fatalf("expected ErrTranscription, got %v", err)
	}
}

func TestTranscribeTimesOut(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "whisper.sh", "#!/bin/sh\nsleep 5\n")
	cli := newTestCLI(t, script, Config{Timeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := cli.Transcribe(context.Background(), writeArtifact(t))
	if !errors.Is(err, ErrTranscription) {
		t.Fatalf("expected ErrTranscription, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Fatalf("timeout was not enforced")
	}
}

func TestNewMissingModel(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "whisper.sh", "#!/bin/sh\n")
	_, err := New(Config{
		Binary:    script,
		ModelPath: filepath.Join(t.TempDir(), "missing.bin"),
		Device:    DeviceCPU,
	}, discardLogger())
	if !errors.Is(err, ErrModelMissing) {
		t.Fatalf("expected ErrModelMissing, got %v", err)
	}
}

func TestNewMissingBinary(t *testing.T) {
	t.Parallel()

	_, err := New(Config{
		Binary:    filepath.Join(t.TempDir(), "no-such-whisper"),
		ModelPath: writeModel(t),
		Device:    DeviceCPU,
	}, discardLogger())
	if !errors.Is(err, ErrBackendMissing) {
		t.Fatalf("expected ErrBackendMissing, got %v", err)
	}
}

func TestResolveDevicePolicies(t *testing.T) {
	t.Parallel()

	logger := discardLogger()
	available := func() bool { return true }
	absent := func() bool { return false }

	if gpu, err := resolveDevice(DeviceCPU, available, logger); err != nil || gpu {
		t.Fatalf("cpu policy: gpu=%v err=%v", gpu, err)
	}
	if gpu, err := resolveDevice(DeviceAccelerated, available, logger); err != nil || !gpu {
		t.Fatalf("accelerated with hardware: gpu=%v err=%v", gpu, err)
	}
	if _, err := resolveDevice(DeviceAccelerated, absent, logger); !errors.Is(err, ErrAcceleratorUnavailable) {
		t.Fatalf("accelerated without hardware: err=%v", err)
	}
	if gpu, err := resolveDevice(DeviceAuto, available, logger); err != nil || !gpu {
		t.Fatalf("auto with hardware: gpu=%v err=%v", gpu, err)
	}
	if gpu, err := resolveDevice(DeviceAuto, absent, logger); err != nil || gpu {
		t.Fatalf("auto without hardware must fall back silently: gpu=%v err=%v", gpu, err)
	}
	if _, err := resolveDevice(DevicePolicy("xpu"), available, logger); err == nil {
		t.Fatalf("unknown policy must fail")
	}
}

func TestArgsIncludeCPUFlagAndLanguage(t *testing.T) {
	t.Parallel()

	cli := &CLI{binary: "whisper-cli", modelPath: "/m.bin", language: "en", useGPU: false}
	args := cli.args("/tmp/a.wav")

	joined := ""
	for _, a := range args {
		joined += a + " "
	}
	for _, want := range []string{"-m", "/m.bin", "-f", "/tmp/a.wav", "-nt", "-l", "en", "-ng"} {
		found := false
		for _, a := range args {
			if a == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("args missing %q: %s", want, joined)
		}
	}

	gpu := &CLI{binary: "whisper-cli", modelPath: "/m.bin", useGPU: true}
	for _, a := range gpu.args("/tmp/a.wav") {
		if a == "-ng" {
			t.Fatalf("gpu mode must not pass -ng")
		}
	}
}
