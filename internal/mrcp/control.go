package mrcp

import "fmt"

// Version is the negotiated MRCP protocol version of a session.
type Version int

const (
	Version1 Version = 1
	Version2 Version = 2
)

func (v Version) String() string {
	return fmt.Sprintf("MRCP/%d.0", int(v))
}

// ControlType distinguishes control-plane requests, responses, and events.
type ControlType int

const (
	ControlRequest ControlType = iota + 1
	ControlResponse
	ControlEvent
)

func (t ControlType) String() string {
	switch t {
	case ControlRequest:
		return "request"
	case ControlResponse:
		return "response"
	case ControlEvent:
		return "event"
	default:
		return fmt.Sprintf("control(%d)", int(t))
	}
}

// Method names a recognizer request method or event.
type Method string

const (
	MethodRecognize        Method = "RECOGNIZE"
	MethodStartInputTimers Method = "START-INPUT-TIMERS"
	MethodStop             Method = "STOP"

	EventStartOfInput        Method = "START-OF-INPUT"
	EventRecognitionComplete Method = "RECOGNITION-COMPLETE"
)

// RequestState reports how far the server has progressed on a request.
type RequestState int

const (
	RequestStateComplete RequestState = iota
	RequestStateInProgress
)

func (s RequestState) String() string {
	switch s {
	case RequestStateComplete:
		return "COMPLETE"
	case RequestStateInProgress:
		return "IN-PROGRESS"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// StatusOK is the MRCP success status code for responses.
const StatusOK = 200

// StartLine is the first line of a control message.
type StartLine struct {
	Version      Version
	Type         ControlType
	Method       Method
	RequestID    uint32
	RequestState RequestState
	StatusCode   int
}

// Message is one control-plane message for the recognizer resource.
type Message struct {
	StartLine StartLine
	Channel   string
	Generic   GenericHeader
	Recog     RecogHeader
	Body      []byte
}

// NewRequest allocates an empty request for method.
func NewRequest(version Version, method Method, requestID uint32) *Message {
	return &Message{
		StartLine: StartLine{
			Version:   version,
			Type:      ControlRequest,
			Method:    method,
			RequestID: requestID,
		},
	}
}

// NewResponse allocates a response to req with the given request state.
func NewResponse(req *Message, state RequestState, status int) *Message {
	return &Message{
		StartLine: StartLine{
			Version:      req.StartLine.Version,
			Type:         ControlResponse,
			Method:       req.StartLine.Method,
			RequestID:    req.StartLine.RequestID,
			RequestState: state,
			StatusCode:   status,
		},
		Channel: req.Channel,
	}
}

// NewEvent allocates an event tied to the request that triggered it.
func NewEvent(req *Message, event Method, state RequestState) *Message {
	return &Message{
		StartLine: StartLine{
			Version:      req.StartLine.Version,
			Type:         ControlEvent,
			Method:       event,
			RequestID:    req.StartLine.RequestID,
			RequestState: state,
		},
		Channel: req.Channel,
	}
}
