package session

import "errors"

var (
	// ErrSessionCreate indicates the stack could not create a signaling session.
	ErrSessionCreate = errors.New("could not create session")
	// ErrChannelCreate indicates the stack could not create the recognizer channel.
	ErrChannelCreate = errors.New("could not create channel")
	// ErrChannelAdd indicates the stack refused to start channel negotiation.
	ErrChannelAdd = errors.New("could not add channel to session")

	// ErrChannelAddFailed indicates the server answered CHANNEL_ADD with a failure status.
	ErrChannelAddFailed = errors.New("channel added unsuccessfully")
	// ErrRecognizeBuild indicates the RECOGNIZE request could not be created or sent.
	ErrRecognizeBuild = errors.New("could not create RECOGNIZE message")
	// ErrRecognizeRejected indicates the server did not acknowledge RECOGNIZE as in progress.
	ErrRecognizeRejected = errors.New("server did not start to recognize")
	// ErrNoCompletionCause indicates RECOGNITION-COMPLETE arrived without a Completion-Cause header.
	ErrNoCompletionCause = errors.New("no completion cause from the server")
	// ErrInterrupted indicates the session was terminated before recognition finished.
	ErrInterrupted = errors.New("session interrupted")
)
