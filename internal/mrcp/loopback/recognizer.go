package loopback

import (
	"bytes"
	"encoding/binary"
	"encoding/xml"
	"fmt"

	"github.com/rbright/unirecog/internal/mrcp"
)

// frameMS is the duration of one pulled frame. Recognition timers advance
// by this much per pull regardless of wall-clock pacing.
const frameMS = 10

// speechThreshold is the peak sample magnitude above which a frame counts as speech.
const speechThreshold = 256

// MRCP status codes used in responses.
const (
	statusMethodNotAllowed = 401
	statusMethodNotValid   = 402
	statusMethodFailed     = 407
)

// Recognizer header defaults applied when RECOGNIZE leaves a field unset.
const (
	defaultNoInputTimeout        = 5000
	defaultRecognitionTimeout    = 10000
	defaultSpeechCompleteTimeout = 1000
	resultConfidence             = 0.9
	resultGrammar                = "session:loopback"
)

type recognition struct {
	request *mrcp.Message

	noInputTimeout        int
	recognitionTimeout    int
	speechCompleteTimeout int
	startInputTimers      bool

	elapsed    int
	speech     bool
	lastSpeech int
	done       bool

	buf []byte
}

func newRecognition(req *mrcp.Message, codec mrcp.Codec) *recognition {
	h := req.Recog
	r := &recognition{
		request:               req,
		noInputTimeout:        defaultNoInputTimeout,
		recognitionTimeout:    defaultRecognitionTimeout,
		speechCompleteTimeout: defaultSpeechCompleteTimeout,
		startInputTimers:      true,
		buf:                   make([]byte, codec.FrameSize(frameMS)),
	}
	if h.Has(mrcp.PropNoInputTimeout) {
		r.noInputTimeout = h.NoInputTimeout
	}
	if h.Has(mrcp.PropRecognitionTimeout) {
		r.recognitionTimeout = h.RecognitionTimeout
	}
	if h.Has(mrcp.PropSpeechCompleteTimeout) {
		r.speechCompleteTimeout = h.SpeechCompleteTimeout
	}
	if h.Has(mrcp.PropStartInputTimers) {
		r.startInputTimers = h.StartInputTimers
	}
	return r
}

// verdict reports whether recognition is over and with which cause.
func (r *recognition) verdict() (mrcp.CompletionCause, bool) {
	switch {
	case r.speech && r.elapsed-r.lastSpeech >= r.speechCompleteTimeout:
		return mrcp.CauseSuccess, true
	case !r.speech && r.startInputTimers && r.noInputTimeout > 0 && r.elapsed >= r.noInputTimeout:
		return mrcp.CauseNoInputTimeout, true
	case r.recognitionTimeout > 0 && r.elapsed >= r.recognitionTimeout:
		if r.speech {
			return mrcp.CauseSuccessMaxtime, true
		}
		return mrcp.CauseNoMatchMaxtime, true
	}
	return 0, false
}

func (s *Stack) handleRequest(sess *session, ch *channel, req *mrcp.Message) {
	switch req.StartLine.Method {
	case mrcp.MethodRecognize:
		s.startRecognition(sess, ch, req)
	case mrcp.MethodStop:
		// The stopped RECOGNIZE gets no RECOGNITION-COMPLETE.
		if active := ch.recog; active != nil && !active.done {
			active.done = true
			s.logger.Info("recognition stopped", "channel", string(ch.id), "elapsed_ms", active.elapsed)
		}
		s.respond(sess, ch.id, req, mrcp.RequestStateComplete, mrcp.StatusOK)
	case mrcp.MethodStartInputTimers:
		if active := ch.recog; active != nil && !active.done {
			active.startInputTimers = true
		}
		s.respond(sess, ch.id, req, mrcp.RequestStateComplete, mrcp.StatusOK)
	default:
		s.logger.Info("unsupported method", "method", string(req.StartLine.Method))
		s.respond(sess, ch.id, req, mrcp.RequestStateComplete, statusMethodNotAllowed)
	}
}

func (s *Stack) startRecognition(sess *session, ch *channel, req *mrcp.Message) {
	if ch.recog != nil && !ch.recog.done {
		s.respond(sess, ch.id, req, mrcp.RequestStateComplete, statusMethodNotValid)
		return
	}
	if s.cfg.RefuseRecognize {
		s.logger.Info("refusing RECOGNIZE", "channel", string(ch.id))
		s.respond(sess, ch.id, req, mrcp.RequestStateComplete, statusMethodFailed)
		return
	}

	ch.recog = newRecognition(req, ch.codec)
	s.logger.Info("recognition started",
		"channel", string(ch.id),
		"no_input_timeout_ms", ch.recog.noInputTimeout,
		"recognition_timeout_ms", ch.recog.recognitionTimeout,
		"speech_complete_timeout_ms", ch.recog.speechCompleteTimeout,
	)
	s.respond(sess, ch.id, req, mrcp.RequestStateInProgress, mrcp.StatusOK)
}

func (s *Stack) respond(sess *session, cid mrcp.ChannelID, req *mrcp.Message, state mrcp.RequestState, status int) {
	resp := mrcp.NewResponse(req, state, status)
	s.deliver(sess, mrcp.ControlMessage(sess.id, cid, resp))
}

type activeChannel struct {
	sess *session
	ch   *channel
}

func (s *Stack) activeChannels() []activeChannel {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []activeChannel
	for _, sess := range s.sessions {
		for _, ch := range sess.channels {
			if ch.recog != nil && !ch.recog.done {
				out = append(out, activeChannel{sess: sess, ch: ch})
			}
		}
	}
	return out
}

func (s *Stack) pullAll(active []activeChannel) {
	for _, a := range active {
		// A handler called during an earlier pull may have ended this one.
		if a.ch.recog == nil || a.ch.recog.done {
			continue
		}
		s.pull(a.sess, a.ch)
	}
}

// pull reads one frame from the channel's stream and advances recognition.
func (s *Stack) pull(sess *session, ch *channel) {
	r := ch.recog
	clear(r.buf)
	frame := mrcp.Frame{Type: mrcp.FrameTypeNone, Buffer: r.buf}
	if err := ch.stream.ReadFrame(&frame); err != nil {
		s.logger.Warn("read frame failed", "channel", string(ch.id), "error", err.Error())
	}
	r.elapsed += frameMS

	if frame.Type&mrcp.FrameTypeAudio != 0 {
		if s.cfg.AudioSink != nil {
			ch.pcm = append(ch.pcm, frame.Buffer...)
		}
		if !silent(frame.Buffer) {
			if !r.speech {
				r.speech = true
				s.logger.Info("start of input", "channel", string(ch.id), "elapsed_ms", r.elapsed)
				event := mrcp.NewEvent(r.request, mrcp.EventStartOfInput, mrcp.RequestStateInProgress)
				s.deliver(sess, mrcp.ControlMessage(sess.id, ch.id, event))
			}
			r.lastSpeech = r.elapsed
		}
	}

	cause, done := r.verdict()
	if !done {
		return
	}
	r.done = true
	s.logger.Info("recognition complete", "channel", string(ch.id), "cause", cause.String(), "elapsed_ms", r.elapsed)

	event := mrcp.NewEvent(r.request, mrcp.EventRecognitionComplete, mrcp.RequestStateComplete)
	event.Recog.SetCompletionCause(cause)
	if cause == mrcp.CauseSuccess || cause == mrcp.CauseSuccessMaxtime {
		event.Generic.SetContentType("application/nlsml+xml")
		event.Body = nlsml(s.cfg.ResultText)
	}
	s.deliver(sess, mrcp.ControlMessage(sess.id, ch.id, event))
}

// silent reports whether every 16-bit little-endian sample is below the speech threshold.
func silent(pcm []byte) bool {
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i:]))
		if sample > speechThreshold || sample < -speechThreshold {
			return false
		}
	}
	return true
}

func nlsml(text string) []byte {
	var escaped bytes.Buffer
	_ = xml.EscapeText(&escaped, []byte(text))

	var b bytes.Buffer
	b.WriteString(`<?xml version="1.0"?>` + "\n")
	fmt.Fprintf(&b, "<result>\n  <interpretation grammar=%q confidence=\"%.2f\">\n", resultGrammar, resultConfidence)
	fmt.Fprintf(&b, "    <instance>%s</instance>\n", escaped.String())
	fmt.Fprintf(&b, "    <input mode=\"speech\">%s</input>\n", escaped.String())
	b.WriteString("  </interpretation>\n</result>\n")
	return b.Bytes()
}
