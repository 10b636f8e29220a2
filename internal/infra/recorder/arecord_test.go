package recorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"handsfree/internal/infra/userenv"
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

// captureScript behaves like a well-mannered capture tool: it writes bytes
// to the output path (the last argument) and runs until terminated.
const captureScript = `#!/bin/sh
out=""
for a in "$@"; do out="$a"; done
printf 'fake-pcm-bytes' > "$out"
trap 'exit 0' TERM INT
sleep 5 &
wait $!
`

func newTestRecorder(t *testing.T, script string, cfg Config) *Arecord {
	t.Helper()
	cfg.Binary = script
	if cfg.OutputPath == "" {
		cfg.OutputPath = filepath.Join(t.TempDir(), "capture.wav")
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = 2 * time.Second
	}
	return NewArecord(cfg, discardLogger())
}

func TestStartStopProducesArtifact(t *testing.T) {
	t.Parallel()

	rec := newTestRecorder(t, writeScript(t, "capture.sh", captureScript), Config{})

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	// Give the script a moment to write its output.
	time.Sleep(100 * time.Millisecond)

	artifact, err := rec.Stop()
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if artifact.Path == "" {
		t.Fatalf("expected artifact path")
	}
	data, err := os.ReadFile(artifact.Path)
	if err != nil || len(data) == 0 {
		t.Fatalf("expected non-empty artifact, err=%v", err)
	}
	if artifact.SampleRate != 16000 || artifact.Channels != 1 {
		t.Fatalf("unexpected artifact format: %+v", artifact)
	}
}

func TestStopIsNoOpWhenIdle(t *testing.T) {
	t.Parallel()

	rec := newTestRecorder(t, writeScript(t, "capture.sh", captureScript), Config{})

	artifact, err := rec.Stop()
	if err != nil {
		t.Fatalf("stop on idle recorder must be a no-op, got %v", err)
	}
	if artifact.Path != "" {
		t.Fatalf("expected no artifact, got %+v", artifact)
	}
}

func TestDoubleStopIsNoOp(t *testing.T) {
	t.Parallel()

	rec := newTestRecorder(t, writeScript(t, "capture.sh", captureScript), Config{})
	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if _, err := rec.Stop(); err != nil {
		t.Fatalf("first stop failed: %v", err)
	}
	if _, err := rec.Stop(); err != nil {
		t.Fatalf("second stop must be a no-op, got %v", err)
	}
}

func TestStartMissingBinaryReportsSpawnFailure(t *testing.T) {
	t.Parallel()

	rec := NewArecord(Config{
		Binary:     filepath.Join(t.TempDir(), "no-such-binary"),
		OutputPath: filepath.Join(t.TempDir(), "capture.wav"),
	}, discardLogger())

	if err := rec.Start(context.Background()); !errors.Is(err, ErrSpawn) {
		t.Fatalf("expected ErrSpawn, got %v", err)
	}
}

func TestAbnormalExitStillReturnsUsableArtifact(t *testing.T) {
	t.Parallel()

	// Writes output, then dies with a failure status before Stop is called.
	script := writeScript(t, "dies.sh", `#!/bin/sh
out=""
for a in "$@"; do out="$a"; done
printf 'partial-capture' > "$out"
exit 3
`)
	rec := newTestRecorder(t, script, Config{})

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	artifact, err := rec.Stop()
	if !errors.Is(err, ErrExitedAbnormally) {
		t.Fatalf("expected ErrExitedAbnormally, got %v", err)
	}
	if artifact.Path == "" {
		t.Fatalf("partial capture should still be returned")
	}
}

func TestAbnormalExitWithoutOutputReturnsNoArtifact(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fails.sh", "#!/bin/sh\nexit 1\n")
	rec := newTestRecorder(t, script, Config{})

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	artifact, err := rec.Stop()
	if !errors.Is(err, ErrExitedAbnormally) {
		t.Fatalf("expected ErrExitedAbnormally, got %v", err)
	}
	if artifact.Path != "" {
		t.Fatalf("expected no artifact, got %+v", artifact)
	}
}

func TestStopForceKillsStubbornProcess(t *testing.T) {
	t.Parallel()

	// Ignores SIGTERM; Stop must fall back to SIGKILL and still reap.
	script := writeScript(t, "stubborn.sh", `#!/bin/sh
out=""
for a in "$@"; do out="$a"; done
printf 'bytes' > "$out"
trap '' TERM
sleep 30 &
wait $!
`)
	rec := newTestRecorder(t, script, Config{StopTimeout: 200 * time.Millisecond})

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := rec.Stop(); err != nil {
			t.Errorf("stop after force kill: %v", err)
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("stop did not complete; process was not reaped")
	}
}

func TestAbortRemovesOutputFile(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "capture.wav")
	rec := newTestRecorder(t, writeScript(t, "capture.sh", captureScript), Config{OutputPath: out})

	if err := rec.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := rec.Abort(); err != nil {
		t.Fatalf("abort failed: %v", err)
	}
	if _, err := os.Stat(out); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected output file removed, stat err=%v", err)
	}

	// Abort on an idle recorder is a no-op.
	if err := rec.Abort(); err != nil {
		t.Fatalf("second abort must be a no-op, got %v", err)
	}
}

func TestBuildArgsMatchesCaptureContract(t *testing.T) {
	t.Parallel()

	args := buildArgs(Config{Format: "S16_LE", SampleRate: 16000, Channels: 1, OutputPath: "/tmp/a.wav"})
	want := []string{"-q", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "wav", "/tmp/a.wav"}
	if len(args) != len(want) {
		t.Fatalf("args = %v, want %v", args, want)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Fatalf("args[%d] = %q, want %q", i, args[i], want[i])
		}
	}
}

func TestCredentialForDropsPrivileges(t *testing.T) {
	t.Parallel()

	cred := credentialFor(userenv.SessionUser{UID: 1000, GID: 1000})
	if cred == nil || cred.Uid != 1000 || cred.Gid != 1000 {
		t.Fatalf("unexpected credential: %+v", cred)
	}
	if credentialFor(userenv.SessionUser{}) != nil {
		t.Fatalf("zero user must not produce a credential")
	}
}
