package vad

// VADEvent is the result of analysing one frame.
type VADEvent struct {
	Type VADEventType

	// Probability is the speech score (0.0–1.0).
	Probability float64
}

// IsSpeech reports whether the frame belongs to an active speech segment.
func (e VADEvent) IsSpeech() bool {
	return e.Type == VADSpeechStart || e.Type == VADSpeechContinue
}

// VADEventType classifies a frame.
type VADEventType int

const (
	// VADSpeechStart indicates speech has just begun.
	VADSpeechStart VADEventType = iota

	// VADSpeechContinue indicates ongoing speech.
	VADSpeechContinue

	// VADSpeechEnd indicates speech has just ended.
	VADSpeechEnd

	// VADSilence indicates no speech detected.
	VADSilence
)

// String returns the event name.
func (t VADEventType) String() string {
	switch t {
	case VADSpeechStart:
		return "speech_start"
	case VADSpeechContinue:
		return "speech_continue"
	case VADSpeechEnd:
		return "speech_end"
	case VADSilence:
		return "silence"
	default:
		return "unknown"
	}
}
