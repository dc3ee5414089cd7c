// Package session runs one recognition session against an MRCP stack: it
// negotiates the recognizer channel, feeds audio frames, interprets
// recognizer events, and signals completion exactly once.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/rbright/unirecog/internal/fsm"
	"github.com/rbright/unirecog/internal/mrcp"
	"github.com/rbright/unirecog/internal/transcript"
)

// Completion is how the recognizer ended the RECOGNIZE request.
type Completion struct {
	Cause    mrcp.CompletionCause
	HasCause bool
	// Result is set for a successful recognition.
	Result  *transcript.Result
	NoInput bool
	Err     error
}

// Outcome is delivered exactly once on Done when the session is gone.
type Outcome struct {
	Session    mrcp.SessionID
	Completed  bool
	Completion Completion
	// Err is the first failure seen during the session, if any.
	Err error
}

// Options configures an Application.
type Options struct {
	// Profile selects the client profile used to create the session.
	Profile string
	// OpenSource opens the audio file; defaults to OpenFileSource.
	OpenSource SourceOpener
	// ControlDump receives every control message in MRCP text form.
	ControlDump io.Writer
}

// Application owns the single session of a process run.
type Application struct {
	logger *slog.Logger
	stack  mrcp.Stack
	opts   Options

	mu          sync.Mutex
	session     mrcp.SessionID
	live        bool
	terminating bool
	channels    map[mrcp.ChannelID]*Channel
	outcome     Outcome

	done     chan Outcome
	doneOnce sync.Once
}

// NewApplication constructs an Application bound to stack.
func NewApplication(logger *slog.Logger, stack mrcp.Stack, opts Options) *Application {
	if opts.OpenSource == nil {
		opts.OpenSource = OpenFileSource
	}
	if opts.Profile == "" {
		opts.Profile = "uni2"
	}
	return &Application{
		logger:   orDiscard(logger),
		stack:    stack,
		opts:     opts,
		channels: make(map[mrcp.ChannelID]*Channel),
		done:     make(chan Outcome, 1),
	}
}

// Start creates the session and the recognizer channel for path and asks the
// stack to add it. Errors are setup failures: no completion will follow.
func (a *Application) Start(path string) error {
	session, err := a.stack.CreateSession(a.opts.Profile)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSessionCreate, err)
	}
	a.mu.Lock()
	a.session = session
	a.live = true
	a.outcome.Session = session
	a.mu.Unlock()
	a.logger = a.logger.With("session", string(session))
	a.logger.Info("session created", "profile", a.opts.Profile)

	recog := newRecogState(path)
	caps := mrcp.Capabilities{Direction: mrcp.DirectionReceive, Codecs: []mrcp.Codec{mrcp.LPCM8k}}
	channelID, err := a.stack.CreateChannel(session, NewFrameFeeder(recog, a.logger), caps)
	if err != nil {
		a.abortSetup(session)
		return fmt.Errorf("%w: %w", ErrChannelCreate, err)
	}

	ch := newChannel(a, channelID, recog)
	a.mu.Lock()
	a.channels[channelID] = ch
	a.mu.Unlock()
	a.logger.Info("channel created", "channel", string(channelID), "path", path)

	if err := a.stack.AddChannel(session, channelID); err != nil {
		a.unregister(channelID)
		recog.release()
		a.abortSetup(session)
		return fmt.Errorf("%w: %w", ErrChannelAdd, err)
	}
	return nil
}

// abortSetup destroys a session that never reached negotiation.
func (a *Application) abortSetup(session mrcp.SessionID) {
	a.mu.Lock()
	a.live = false
	a.mu.Unlock()
	if err := a.stack.DestroySession(session); err != nil {
		a.logger.Warn("destroy session after setup failure", "error", err.Error())
	}
}

// Done delivers exactly one Outcome, sent when the session is destroyed.
func (a *Application) Done() <-chan Outcome {
	return a.done
}

// Wait blocks until the session completes or ctx ends.
func (a *Application) Wait(ctx context.Context) (Outcome, error) {
	select {
	case out := <-a.done:
		return out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Terminate asks the stack to end the session early. Completion still
// arrives through the session-terminate response.
func (a *Application) Terminate() error {
	a.fail(ErrInterrupted)
	return a.terminateSession()
}

func (a *Application) sessionID() mrcp.SessionID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

func (a *Application) channel(id mrcp.ChannelID) *Channel {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.channels[id]
}

func (a *Application) unregister(id mrcp.ChannelID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.channels, id)
}

// fail records the first failure of the session.
func (a *Application) fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.outcome.Err == nil {
		a.outcome.Err = err
	}
}

func (a *Application) complete(c Completion) {
	a.mu.Lock()
	a.outcome.Completed = true
	a.outcome.Completion = c
	a.mu.Unlock()
	if c.Err != nil {
		a.fail(c.Err)
	}
}

func (a *Application) send(channel mrcp.ChannelID, msg *mrcp.Message) error {
	a.dumpControl("send", msg)
	return a.stack.SendMessage(a.sessionID(), channel, msg)
}

// terminateSession requests session termination at most once.
func (a *Application) terminateSession() error {
	a.mu.Lock()
	if !a.live || a.terminating {
		a.mu.Unlock()
		return nil
	}
	a.terminating = true
	session := a.session
	a.mu.Unlock()

	a.logger.Info("terminating session")
	if err := a.stack.TerminateSession(session); err != nil {
		a.mu.Lock()
		a.terminating = false
		a.mu.Unlock()
		return fmt.Errorf("terminate session: %w", err)
	}
	return nil
}

// terminateFromCallback is terminateSession for callback paths: when the
// stack refuses, the session is finished locally so Done still fires.
func (a *Application) terminateFromCallback() {
	if err := a.terminateSession(); err != nil {
		a.logger.Error("session terminate request failed; destroying locally", "error", err.Error())
		a.onSessionTerminated(mrcp.StatusFailure)
	}
}

// onSessionTerminated is the only path that destroys the session and fires
// the completion signal.
func (a *Application) onSessionTerminated(status mrcp.StatusCode) {
	a.mu.Lock()
	if !a.live {
		a.mu.Unlock()
		a.logger.Warn("session terminate for a session already destroyed")
		return
	}
	a.live = false
	session := a.session
	remaining := make([]*Channel, 0, len(a.channels))
	for _, ch := range a.channels {
		remaining = append(remaining, ch)
	}
	a.mu.Unlock()

	a.logger.Info("session terminated", "status", status.String())
	for _, ch := range remaining {
		if ch.transition(fsm.EventRemoved) {
			ch.release()
		}
	}

	if err := a.stack.DestroySession(session); err != nil {
		a.logger.Warn("destroy session", "error", err.Error())
	}

	a.doneOnce.Do(func() {
		a.mu.Lock()
		out := a.outcome
		a.mu.Unlock()
		a.done <- out
	})
}

func (a *Application) dumpControl(direction string, msg *mrcp.Message) {
	if a.opts.ControlDump == nil || msg == nil {
		return
	}
	_, _ = fmt.Fprintf(a.opts.ControlDump, "# %s\n%s\n", direction, msg.Encode())
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
