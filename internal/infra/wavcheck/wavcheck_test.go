package wavcheck

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeTestWAV(t *testing.T, sampleRate, channels int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "capture.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating wav: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, 160*channels),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("writing samples: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("closing encoder: %v", err)
	}
	return path
}

func TestProbeValidFile(t *testing.T) {
	t.Parallel()

	path := writeTestWAV(t, 16000, 1)

	info, err := Probe(path)
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if info.SampleRate != 16000 {
		t.Errorf("sample rate = %d, want 16000", info.SampleRate)
	}
	if info.Channels != 1 {
		t.Errorf("channels = %d, want 1", info.Channels)
	}
	if info.BitDepth != 16 {
		t.Errorf("bit depth = %d, want 16", info.BitDepth)
	}
}

func TestProbeGarbageFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "garbage.wav")
	if err := os.WriteFile(path, []byte("this is not audio"), 0o600); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	if _, err := Probe(path); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestProbeMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Probe(filepath.Join(t.TempDir(), "nope.wav")); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
