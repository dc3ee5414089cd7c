package session

import (
	"fmt"

	"github.com/rbright/unirecog/internal/mrcp"
)

// RecognizeParams are the recognizer header values sent with RECOGNIZE.
// Timeouts are milliseconds.
type RecognizeParams struct {
	NoInputTimeout        int
	RecognitionTimeout    int
	StartInputTimers      bool
	ConfidenceThreshold   float64
	SpeechCompleteTimeout int
	CancelIfQueue         bool
}

// DefaultRecognizeParams returns the fixed parameter set of every request.
func DefaultRecognizeParams() RecognizeParams {
	return RecognizeParams{
		NoInputTimeout:        1000,
		RecognitionTimeout:    10000,
		StartInputTimers:      true,
		ConfidenceThreshold:   0.87,
		SpeechCompleteTimeout: 1600,
		CancelIfQueue:         false,
	}
}

// BuildRecognize allocates a RECOGNIZE request through the stack and fills
// its headers. Cancel-If-Queue only exists in MRCPv2, so it is set only
// when the session negotiated that version.
func BuildRecognize(factory mrcp.MessageFactory, session mrcp.SessionID, channel mrcp.ChannelID) (*mrcp.Message, error) {
	msg, err := factory.CreateMessage(session, channel, mrcp.MethodRecognize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRecognizeBuild, err)
	}
	if msg == nil {
		return nil, ErrRecognizeBuild
	}

	params := DefaultRecognizeParams()

	msg.Generic.SetContentType("text/plain")

	h := &msg.Recog
	if msg.StartLine.Version == mrcp.Version2 {
		h.SetCancelIfQueue(params.CancelIfQueue)
	}
	h.SetNoInputTimeout(params.NoInputTimeout)
	h.SetRecognitionTimeout(params.RecognitionTimeout)
	h.SetStartInputTimers(params.StartInputTimers)
	h.SetConfidenceThreshold(params.ConfidenceThreshold)
	h.SetSpeechCompleteTimeout(params.SpeechCompleteTimeout)

	msg.Body = nil
	return msg, nil
}
