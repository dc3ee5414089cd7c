package session

import (
	"fmt"
	"log/slog"

	"github.com/rbright/unirecog/internal/fsm"
	"github.com/rbright/unirecog/internal/mrcp"
	"github.com/rbright/unirecog/internal/transcript"
)

// Channel drives one recognizer channel from creation to removal. All
// methods run on the stack's callback goroutine.
type Channel struct {
	app    *Application
	id     mrcp.ChannelID
	logger *slog.Logger

	state     fsm.State
	recog     *RecogState
	requestID uint32
}

func newChannel(app *Application, id mrcp.ChannelID, recog *RecogState) *Channel {
	return &Channel{
		app:    app,
		id:     id,
		logger: app.logger.With("channel", string(id)),
		state:  fsm.StateCreated,
		recog:  recog,
	}
}

// State returns the lifecycle state.
func (c *Channel) State() fsm.State {
	return c.state
}

// transition applies one FSM event, logging rejected events instead of acting on them.
func (c *Channel) transition(event fsm.Event) bool {
	next, err := fsm.Transition(c.state, event)
	if err != nil {
		c.logger.Warn("ignoring channel event", "state", c.state, "event", event, "error", err.Error())
		return false
	}
	c.logger.Debug("channel transition", "from", c.state, "event", event, "to", next)
	c.state = next
	return true
}

func (c *Channel) onChannelAdded(status mrcp.StatusCode) {
	c.logger.Info("channel added", "status", status.String())

	if status != mrcp.StatusSuccess {
		if !c.transition(fsm.EventAddFailed) {
			return
		}
		c.release()
		c.app.fail(fmt.Errorf("%w with status %s", ErrChannelAddFailed, status))
		c.app.terminateFromCallback()
		return
	}

	if !c.transition(fsm.EventAdded) {
		return
	}

	msg, err := BuildRecognize(c.app.stack, c.app.sessionID(), c.id)
	if err == nil {
		err = c.app.send(c.id, msg)
		if err != nil {
			err = fmt.Errorf("%w: send: %w", ErrRecognizeBuild, err)
		}
	}
	if err != nil {
		c.logger.Error("could not create RECOGNIZE message", "error", err.Error())
		if c.transition(fsm.EventRecognizeFail) {
			c.release()
		}
		c.app.fail(err)
		c.app.terminateFromCallback()
		return
	}

	c.requestID = msg.StartLine.RequestID
	c.transition(fsm.EventRecognizeSent)
	c.recog.openSource(c.app.opts.OpenSource, c.logger)
}

func (c *Channel) onControlMessage(msg *mrcp.Message) {
	sl := msg.StartLine
	if fsm.Terminal(c.state) {
		c.logger.Info("ignoring control message on channel being removed",
			"type", sl.Type.String(),
			"method", string(sl.Method),
			"state", c.state,
		)
		return
	}

	switch sl.Type {
	case mrcp.ControlResponse:
		c.onResponse(msg)
	case mrcp.ControlEvent:
		switch sl.Method {
		case mrcp.EventStartOfInput:
			c.logger.Info("server received voice data (start of input)")
		case mrcp.EventRecognitionComplete:
			c.onRecognitionComplete(msg)
		default:
			c.logger.Warn("unexpected event", "method", string(sl.Method))
		}
	default:
		c.logger.Warn("unexpected control message type", "type", sl.Type.String())
	}
}

func (c *Channel) onResponse(msg *mrcp.Message) {
	sl := msg.StartLine
	if sl.Method != mrcp.MethodRecognize {
		c.logger.Warn("unexpected response method", "method", string(sl.Method))
		return
	}
	if sl.RequestID != c.requestID {
		c.logger.Warn("response for unknown request", "request_id", sl.RequestID, "expected", c.requestID)
		return
	}

	if sl.RequestState == mrcp.RequestStateInProgress {
		if c.transition(fsm.EventInProgress) {
			c.recog.setStreaming(fsm.Streaming(c.state))
			c.logger.Info("recognition in progress; streaming audio", "status", sl.StatusCode)
		}
		return
	}

	c.logger.Warn("server did not start to recognize; tearing down the channel",
		"request_state", sl.RequestState.String(),
		"status", sl.StatusCode,
	)
	if !c.transition(fsm.EventRejected) {
		return
	}
	c.app.fail(fmt.Errorf("%w: status %d %s", ErrRecognizeRejected, sl.StatusCode, sl.RequestState))
	c.requestRemoval()
}

func (c *Channel) onRecognitionComplete(msg *mrcp.Message) {
	if !c.transition(fsm.EventComplete) {
		return
	}
	c.recog.setStreaming(fsm.Streaming(c.state))
	c.app.complete(c.interpretCompletion(msg))

	if c.transition(fsm.EventRemoveRequest) {
		c.requestRemoval()
	}
}

// interpretCompletion maps the Completion-Cause header to an outcome. The
// channel is removed afterwards whatever the cause.
func (c *Channel) interpretCompletion(msg *mrcp.Message) Completion {
	h := msg.Recog
	if !h.Has(mrcp.PropCompletionCause) {
		c.logger.Error("FATAL: no completion cause from the server")
		return Completion{Err: ErrNoCompletionCause}
	}

	out := Completion{Cause: h.CompletionCause, HasCause: true}
	c.logger.Info("recognition complete",
		"completion_cause", h.CompletionCause.String(),
		"completion_reason", h.CompletionReason,
	)

	switch h.CompletionCause {
	case mrcp.CauseSuccess:
		result := transcript.Decode(msg.Body)
		out.Result = &result
		fields := []any{"text", result.Text(), "valid_utf8", result.ValidUTF8}
		if confidence, ok := result.Confidence(); ok {
			fields = append(fields, "confidence", confidence)
		}
		c.logger.Info("recognition result", fields...)
	case mrcp.CauseNoInputTimeout:
		out.NoInput = true
		c.logger.Info("no input detected by server")
	}
	return out
}

// requestRemoval asks the stack to remove the channel. If the request cannot
// be issued the removal is completed locally.
func (c *Channel) requestRemoval() {
	if err := c.app.stack.RemoveChannel(c.app.sessionID(), c.id); err != nil {
		c.logger.Error("channel remove request failed", "error", err.Error())
		c.onChannelRemoved(mrcp.StatusFailure)
	}
}

// onChannelRemoved releases the channel and always ends the session, since
// the session carries exactly one channel.
func (c *Channel) onChannelRemoved(status mrcp.StatusCode) {
	c.logger.Info("channel removed", "status", status.String())
	if c.transition(fsm.EventRemoved) {
		c.release()
	}
	c.app.terminateFromCallback()
}

// release frees the RecogState and drops the channel from the registry.
// Callers reach it only on a successful transition into removed.
func (c *Channel) release() {
	if c.recog == nil {
		return
	}
	c.recog.release()
	c.recog = nil
	c.app.unregister(c.id)
	c.logger.Debug("channel state released")
}
