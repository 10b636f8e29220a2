package domain

// SessionState models the hold-to-talk gesture lifecycle.
type SessionState string

const (
	StateIdle         SessionState = "idle"
	StateRecording    SessionState = "recording"
	StateTranscribing SessionState = "transcribing"
	StateInjecting    SessionState = "injecting"
)

// Artifact is the audio file produced by one recording session. The path is
// deterministic and overwritten each session, never accumulated.
type Artifact struct {
	Path       string
	SampleRate int
	Channels   int
}

// TranscriptSegment is one recognised span of text. Text is always non-empty
// after trimming; whitespace-only recognition yields no segment at all.
type TranscriptSegment struct {
	Text string
}
