package mrcp

import (
	"fmt"
	"strconv"
	"strings"
)

const crlf = "\r\n"

// Encode renders the message in MRCP text form. MRCPv2 messages carry the
// total message length in the start line; MRCPv1 messages use the RTSP-style
// start line.
func (m *Message) Encode() string {
	var rest strings.Builder
	if m.Channel != "" {
		writeHeader(&rest, "Channel-Identifier", m.Channel)
	}
	if m.Generic.HasContentType() {
		writeHeader(&rest, "Content-Type", m.Generic.ContentType)
	}
	m.encodeRecogHeader(&rest)
	if len(m.Body) > 0 {
		writeHeader(&rest, "Content-Length", strconv.Itoa(len(m.Body)))
	}
	rest.WriteString(crlf)
	rest.Write(m.Body)

	if m.StartLine.Version != Version2 {
		return m.startLineV1() + crlf + rest.String()
	}

	// The length field counts itself, so iterate until its width settles.
	length := rest.Len()
	for {
		line := m.startLineV2(length) + crlf
		total := len(line) + rest.Len()
		if total == length {
			return line + rest.String()
		}
		length = total
	}
}

func (m *Message) startLineV2(length int) string {
	sl := m.StartLine
	switch sl.Type {
	case ControlResponse:
		return fmt.Sprintf("%s %d %d %d %s", sl.Version, length, sl.RequestID, sl.StatusCode, sl.RequestState)
	case ControlEvent:
		return fmt.Sprintf("%s %d %s %d %s", sl.Version, length, sl.Method, sl.RequestID, sl.RequestState)
	default:
		return fmt.Sprintf("%s %d %s %d", sl.Version, length, sl.Method, sl.RequestID)
	}
}

func (m *Message) startLineV1() string {
	sl := m.StartLine
	switch sl.Type {
	case ControlResponse:
		return fmt.Sprintf("%s %d %d %s", sl.Version, sl.RequestID, sl.StatusCode, sl.RequestState)
	case ControlEvent:
		return fmt.Sprintf("%s %d %s %s", sl.Method, sl.RequestID, sl.RequestState, sl.Version)
	default:
		return fmt.Sprintf("%s %d %s", sl.Method, sl.RequestID, sl.Version)
	}
}

func (m *Message) encodeRecogHeader(b *strings.Builder) {
	h := m.Recog
	for p := PropCancelIfQueue; p <= PropCompletionReason; p++ {
		if !h.Has(p) {
			continue
		}
		var value string
		switch p {
		case PropCancelIfQueue:
			value = strconv.FormatBool(h.CancelIfQueue)
		case PropNoInputTimeout:
			value = strconv.Itoa(h.NoInputTimeout)
		case PropRecognitionTimeout:
			value = strconv.Itoa(h.RecognitionTimeout)
		case PropStartInputTimers:
			value = strconv.FormatBool(h.StartInputTimers)
		case PropConfidenceThreshold:
			value = strconv.FormatFloat(h.ConfidenceThreshold, 'f', -1, 64)
		case PropSpeechCompleteTimeout:
			value = strconv.Itoa(h.SpeechCompleteTimeout)
		case PropCompletionCause:
			value = h.CompletionCause.String()
		case PropCompletionReason:
			value = h.CompletionReason
		}
		writeHeader(b, p.String(), value)
	}
}

func writeHeader(b *strings.Builder, name string, value string) {
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString(crlf)
}
