package mrcp

import "errors"

// ErrUnknownSession is returned by stacks for operations on a missing or destroyed session.
var ErrUnknownSession = errors.New("unknown session")

// ErrUnknownChannel is returned by stacks for operations on a missing or removed channel.
var ErrUnknownChannel = errors.New("unknown channel")

// MessageHandler receives every asynchronous message the stack delivers to an application.
type MessageHandler interface {
	HandleMessage(AppMessage)
}

// MessageHandlerFunc adapts a function to the MessageHandler interface.
type MessageHandlerFunc func(AppMessage)

func (f MessageHandlerFunc) HandleMessage(msg AppMessage) {
	f(msg)
}

// StreamHandler is the receive-direction audio termination an application
// attaches to a channel. The stack calls it from its media goroutine.
type StreamHandler interface {
	Open(Codec) error
	Close() error
	// ReadFrame fills frame with the next chunk of audio. It must not block.
	ReadFrame(frame *Frame) error
	Destroy() error
}

// MessageFactory allocates control requests bound to a session and channel.
type MessageFactory interface {
	CreateMessage(SessionID, ChannelID, Method) (*Message, error)
}

// Stack is the signaling/media collaborator that carries sessions, channels,
// control messages, and audio frames.
type Stack interface {
	MessageFactory

	Register(name string, handler MessageHandler) error
	CreateSession(profile string) (SessionID, error)
	CreateChannel(SessionID, StreamHandler, Capabilities) (ChannelID, error)
	AddChannel(SessionID, ChannelID) error
	RemoveChannel(SessionID, ChannelID) error
	TerminateSession(SessionID) error
	DestroySession(SessionID) error
	SendMessage(SessionID, ChannelID, *Message) error
}

// Direction is the media direction of a stream from the application's side.
type Direction int

const (
	DirectionReceive Direction = 1 << iota
	DirectionSend
)

// Codec describes one audio codec descriptor.
type Codec struct {
	Name       string
	SampleRate int
	Channels   int
}

// FrameSize returns the byte size of one frame of the given duration for 16-bit samples.
func (c Codec) FrameSize(frameMS int) int {
	channels := c.Channels
	if channels <= 0 {
		channels = 1
	}
	return c.SampleRate * frameMS / 1000 * 2 * channels
}

// Capabilities is the codec set offered for one stream direction.
type Capabilities struct {
	Direction Direction
	Codecs    []Codec
}

// LPCM8k is the only profile this client negotiates: 8 kHz mono linear PCM.
var LPCM8k = Codec{Name: "LPCM", SampleRate: 8000, Channels: 1}

// FrameType is a bit set describing frame contents.
type FrameType int

const (
	FrameTypeNone  FrameType = 0
	FrameTypeAudio FrameType = 1
)

// Frame is one fixed-size media frame handed to StreamHandler.ReadFrame.
type Frame struct {
	Type   FrameType
	Buffer []byte
}
