// Package wavcheck probes recorded audio artifacts before they are handed to
// the transcription backend.
package wavcheck

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// ErrInvalid marks a file that is not parseable WAV at all.
var ErrInvalid = errors.New("invalid wav file")

// Info is the decoded header of an artifact.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// Probe opens the artifact and decodes its header. A missing or empty file
// and a corrupt header are both reported as ErrInvalid; the caller treats
// either as a transcription-stage failure.
func Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	d.ReadInfo()
	if !d.IsValidFile() {
		return Info{}, fmt.Errorf("%w: %s", ErrInvalid, path)
	}

	return Info{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
	}, nil
}
