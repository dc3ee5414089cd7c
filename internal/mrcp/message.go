// Package mrcp models the MRCP client application boundary: signaling and
// control messages, recognizer headers, audio frames, and the collaborator
// stack that carries them.
package mrcp

import "fmt"

// SessionID identifies one signaling session owned by the collaborator stack.
type SessionID string

// ChannelID identifies one resource channel within a session.
type ChannelID string

// AppMessageType is the top-level category of a message delivered to the application.
type AppMessageType int

const (
	AppMessageSignaling AppMessageType = iota + 1
	AppMessageControl
)

func (t AppMessageType) String() string {
	switch t {
	case AppMessageSignaling:
		return "signaling"
	case AppMessageControl:
		return "control"
	default:
		return fmt.Sprintf("app-message(%d)", int(t))
	}
}

// SignalingType distinguishes responses, events, and requests on the signaling plane.
type SignalingType int

const (
	SignalingRequest SignalingType = iota + 1
	SignalingResponse
	SignalingEvent
)

func (t SignalingType) String() string {
	switch t {
	case SignalingRequest:
		return "request"
	case SignalingResponse:
		return "response"
	case SignalingEvent:
		return "event"
	default:
		return fmt.Sprintf("signaling(%d)", int(t))
	}
}

// Command is the signaling command a response answers.
type Command int

const (
	CommandSessionUpdate Command = iota + 1
	CommandSessionTerminate
	CommandChannelAdd
	CommandChannelRemove
	CommandResourceDiscover
)

func (c Command) String() string {
	switch c {
	case CommandSessionUpdate:
		return "SESSION_UPDATE"
	case CommandSessionTerminate:
		return "SESSION_TERMINATE"
	case CommandChannelAdd:
		return "CHANNEL_ADD"
	case CommandChannelRemove:
		return "CHANNEL_REMOVE"
	case CommandResourceDiscover:
		return "RESOURCE_DISCOVER"
	default:
		return fmt.Sprintf("COMMAND(%d)", int(c))
	}
}

// SignalEvent identifies an unsolicited signaling notification.
type SignalEvent int

const (
	SignalingEventTerminate SignalEvent = iota + 1
)

func (e SignalEvent) String() string {
	if e == SignalingEventTerminate {
		return "TERMINATE"
	}
	return fmt.Sprintf("EVENT(%d)", int(e))
}

// StatusCode is the outcome carried by a signaling response.
type StatusCode int

const (
	StatusSuccess StatusCode = iota
	StatusFailure
	StatusTerminate
	StatusCancel
)

func (s StatusCode) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusTerminate:
		return "terminate"
	case StatusCancel:
		return "cancel"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Signaling is the signaling-plane part of an application message.
type Signaling struct {
	Type    SignalingType
	Command Command
	Event   SignalEvent
	Status  StatusCode
}

// AppMessage is one asynchronous message delivered by the stack to the application.
type AppMessage struct {
	Type      AppMessageType
	Session   SessionID
	Channel   ChannelID
	Signaling Signaling
	Control   *Message
}

// ResponseMessage builds a signaling response for command.
func ResponseMessage(session SessionID, channel ChannelID, command Command, status StatusCode) AppMessage {
	return AppMessage{
		Type:    AppMessageSignaling,
		Session: session,
		Channel: channel,
		Signaling: Signaling{
			Type:    SignalingResponse,
			Command: command,
			Status:  status,
		},
	}
}

// ControlMessage wraps a control-plane message for delivery.
func ControlMessage(session SessionID, channel ChannelID, msg *Message) AppMessage {
	return AppMessage{
		Type:    AppMessageControl,
		Session: session,
		Channel: channel,
		Control: msg,
	}
}
