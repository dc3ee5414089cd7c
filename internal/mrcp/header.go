package mrcp

import "fmt"

// GenericHeader holds the generic MRCP header fields this client uses.
type GenericHeader struct {
	ContentType string
	hasContent  bool
}

// SetContentType sets Content-Type and marks it present.
func (h *GenericHeader) SetContentType(contentType string) {
	h.ContentType = contentType
	h.hasContent = true
}

// HasContentType reports whether Content-Type is present.
func (h GenericHeader) HasContentType() bool {
	return h.hasContent
}

// RecogProperty identifies one recognizer header field.
type RecogProperty int

const (
	PropCancelIfQueue RecogProperty = iota
	PropNoInputTimeout
	PropRecognitionTimeout
	PropStartInputTimers
	PropConfidenceThreshold
	PropSpeechCompleteTimeout
	PropCompletionCause
	PropCompletionReason
)

var recogPropertyNames = [...]string{
	PropCancelIfQueue:         "Cancel-If-Queue",
	PropNoInputTimeout:        "No-Input-Timeout",
	PropRecognitionTimeout:    "Recognition-Timeout",
	PropStartInputTimers:      "Start-Input-Timers",
	PropConfidenceThreshold:   "Confidence-Threshold",
	PropSpeechCompleteTimeout: "Speech-Complete-Timeout",
	PropCompletionCause:       "Completion-Cause",
	PropCompletionReason:      "Completion-Reason",
}

func (p RecogProperty) String() string {
	if p < 0 || int(p) >= len(recogPropertyNames) {
		return fmt.Sprintf("property(%d)", int(p))
	}
	return recogPropertyNames[p]
}

// RecogHeader is the recognizer resource header. Timeouts are milliseconds.
type RecogHeader struct {
	CancelIfQueue         bool
	NoInputTimeout        int
	RecognitionTimeout    int
	StartInputTimers      bool
	ConfidenceThreshold   float64
	SpeechCompleteTimeout int
	CompletionCause       CompletionCause
	CompletionReason      string

	props uint32
}

// Has reports whether the property was set on this header.
func (h RecogHeader) Has(p RecogProperty) bool {
	return h.props&(1<<uint(p)) != 0
}

func (h *RecogHeader) mark(p RecogProperty) {
	h.props |= 1 << uint(p)
}

func (h *RecogHeader) SetCancelIfQueue(v bool) {
	h.CancelIfQueue = v
	h.mark(PropCancelIfQueue)
}

func (h *RecogHeader) SetNoInputTimeout(ms int) {
	h.NoInputTimeout = ms
	h.mark(PropNoInputTimeout)
}

func (h *RecogHeader) SetRecognitionTimeout(ms int) {
	h.RecognitionTimeout = ms
	h.mark(PropRecognitionTimeout)
}

func (h *RecogHeader) SetStartInputTimers(v bool) {
	h.StartInputTimers = v
	h.mark(PropStartInputTimers)
}

func (h *RecogHeader) SetConfidenceThreshold(v float64) {
	h.ConfidenceThreshold = v
	h.mark(PropConfidenceThreshold)
}

func (h *RecogHeader) SetSpeechCompleteTimeout(ms int) {
	h.SpeechCompleteTimeout = ms
	h.mark(PropSpeechCompleteTimeout)
}

func (h *RecogHeader) SetCompletionCause(cause CompletionCause) {
	h.CompletionCause = cause
	h.mark(PropCompletionCause)
}

func (h *RecogHeader) SetCompletionReason(reason string) {
	h.CompletionReason = reason
	h.mark(PropCompletionReason)
}

// CompletionCause is the recognizer's numeric reason for ending recognition.
type CompletionCause int

const (
	CauseSuccess                  CompletionCause = 0
	CauseNoMatch                  CompletionCause = 1
	CauseNoInputTimeout           CompletionCause = 2
	CauseHotwordMaxtime           CompletionCause = 3
	CauseGrammarLoadFailure       CompletionCause = 4
	CauseGrammarCompFailure       CompletionCause = 5
	CauseRecognizerError          CompletionCause = 6
	CauseSpeechTooEarly           CompletionCause = 7
	CauseSuccessMaxtime           CompletionCause = 8
	CauseURIFailure               CompletionCause = 9
	CauseLanguageUnsupported      CompletionCause = 10
	CauseCancelled                CompletionCause = 11
	CauseSemanticsFailure         CompletionCause = 12
	CausePartialMatch             CompletionCause = 13
	CausePartialMatchMaxtime      CompletionCause = 14
	CauseNoMatchMaxtime           CompletionCause = 15
	CauseGrammarDefinitionFailure CompletionCause = 16
)

var completionCauseNames = map[CompletionCause]string{
	CauseSuccess:                  "success",
	CauseNoMatch:                  "no-match",
	CauseNoInputTimeout:           "no-input-timeout",
	CauseHotwordMaxtime:           "hotword-maxtime",
	CauseGrammarLoadFailure:       "grammar-load-failure",
	CauseGrammarCompFailure:       "grammar-compilation-failure",
	CauseRecognizerError:          "recognizer-error",
	CauseSpeechTooEarly:           "speech-too-early",
	CauseSuccessMaxtime:           "success-maxtime",
	CauseURIFailure:               "uri-failure",
	CauseLanguageUnsupported:      "language-unsupported",
	CauseCancelled:                "cancelled",
	CauseSemanticsFailure:         "semantics-failure",
	CausePartialMatch:             "partial-match",
	CausePartialMatchMaxtime:      "partial-match-maxtime",
	CauseNoMatchMaxtime:           "no-match-maxtime",
	CauseGrammarDefinitionFailure: "grammar-definition-failure",
}

// String renders the cause the way it appears on the wire, e.g. "002 no-input-timeout".
func (c CompletionCause) String() string {
	name, ok := completionCauseNames[c]
	if !ok {
		name = "unknown"
	}
	return fmt.Sprintf("%03d %s", int(c), name)
}
