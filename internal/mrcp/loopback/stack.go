// Package loopback is an in-process mrcp.Stack. It negotiates channels,
// acknowledges RECOGNIZE, pulls audio frames from the attached stream, and
// ends recognition from a simple energy detector running on virtual time.
// Every callback runs on the goroutine executing Run.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/unirecog/internal/mrcp"
)

// DefaultResultText is recognized when Config.ResultText is empty.
const DefaultResultText = "hello world"

// resourceName is the recognizer resource suffix of Channel-Identifier.
const resourceName = "speechrecog"

var (
	errNoHandler     = errors.New("no application registered")
	errSessionClosed = errors.New("session is terminating")
)

// Config controls how the loopback server answers.
type Config struct {
	// FrameInterval paces frame pulls. Zero pulls as fast as the worker runs.
	FrameInterval time.Duration
	// ChannelAddStatus answers every CHANNEL_ADD.
	ChannelAddStatus mrcp.StatusCode
	// RefuseRecognize answers RECOGNIZE with COMPLETE instead of IN-PROGRESS.
	RefuseRecognize bool
	// ResultText is placed in the NLSML <input> of successful results.
	ResultText string
	// Version is the MRCP version of created messages.
	Version mrcp.Version
	// AudioSink receives the audio a channel streamed once it is removed.
	AudioSink func(pcm []byte, codec mrcp.Codec)
}

// Stack is the loopback collaborator. Create it with New and drive it with Run.
type Stack struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	handlers  map[string]mrcp.MessageHandler
	handler   mrcp.MessageHandler
	sessions  map[mrcp.SessionID]*session
	tasks     []func()
	requestID uint32

	wake chan struct{}
}

type session struct {
	id          mrcp.SessionID
	profile     string
	handler     mrcp.MessageHandler
	channels    map[mrcp.ChannelID]*channel
	terminating bool
}

type channel struct {
	id     mrcp.ChannelID
	stream mrcp.StreamHandler
	codec  mrcp.Codec
	added  bool
	opened bool
	recog  *recognition
	pcm    []byte
}

var _ mrcp.Stack = (*Stack)(nil)

// New constructs a stack. A nil logger discards logs.
func New(cfg Config, logger *slog.Logger) *Stack {
	if cfg.Version == 0 {
		cfg.Version = mrcp.Version2
	}
	if strings.TrimSpace(cfg.ResultText) == "" {
		cfg.ResultText = DefaultResultText
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Stack{
		cfg:       cfg,
		logger:    logger.With("component", "loopback"),
		handlers:  make(map[string]mrcp.MessageHandler),
		sessions:  make(map[mrcp.SessionID]*session),
		requestID: 1,
		wake:      make(chan struct{}, 1),
	}
}

// Run executes queued callbacks and frame pulls until ctx ends.
func (s *Stack) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if s.cfg.FrameInterval > 0 {
		ticker := time.NewTicker(s.cfg.FrameInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if task := s.dequeue(); task != nil {
			task()
			continue
		}

		if tick == nil {
			if active := s.activeChannels(); len(active) > 0 {
				if ctx.Err() != nil {
					return nil
				}
				s.pullAll(active)
				continue
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-s.wake:
		case <-tick:
			s.pullAll(s.activeChannels())
		}
	}
}

// Register binds an application handler. Sessions created afterwards
// deliver their messages to the most recently registered handler.
func (s *Stack) Register(name string, handler mrcp.MessageHandler) error {
	if handler == nil {
		return fmt.Errorf("register %q: nil handler", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handlers[name]; ok {
		return fmt.Errorf("register %q: application already registered", name)
	}
	s.handlers[name] = handler
	s.handler = handler
	return nil
}

func (s *Stack) CreateSession(profile string) (mrcp.SessionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler == nil {
		return "", errNoHandler
	}
	id := mrcp.SessionID(uuid.NewString())
	s.sessions[id] = &session{
		id:       id,
		profile:  profile,
		handler:  s.handler,
		channels: make(map[mrcp.ChannelID]*channel),
	}
	s.logger.Debug("session created", "session", string(id), "profile", profile)
	return id, nil
}

func (s *Stack) CreateChannel(sid mrcp.SessionID, stream mrcp.StreamHandler, caps mrcp.Capabilities) (mrcp.ChannelID, error) {
	if stream == nil {
		return "", errors.New("create channel: nil stream handler")
	}
	if caps.Direction&mrcp.DirectionReceive == 0 {
		return "", errors.New("create channel: only receive-direction streams are supported")
	}
	codec, ok := pickCodec(caps.Codecs)
	if !ok {
		return "", fmt.Errorf("create channel: no supported codec in %v", caps.Codecs)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, err := s.liveSession(sid)
	if err != nil {
		return "", err
	}
	id := newChannelID()
	sess.channels[id] = &channel{id: id, stream: stream, codec: codec}
	return id, nil
}

func (s *Stack) AddChannel(sid mrcp.SessionID, cid mrcp.ChannelID) error {
	s.mu.Lock()
	sess, ch, err := s.lookup(sid, cid)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.enqueue(func() {
		status := s.cfg.ChannelAddStatus
		if status == mrcp.StatusSuccess {
			ch.added = true
			if err := ch.stream.Open(ch.codec); err != nil {
				s.logger.Warn("stream open failed", "channel", string(cid), "error", err.Error())
			} else {
				ch.opened = true
			}
		}
		s.deliver(sess, mrcp.ResponseMessage(sid, cid, mrcp.CommandChannelAdd, status))
	})
	return nil
}

func (s *Stack) RemoveChannel(sid mrcp.SessionID, cid mrcp.ChannelID) error {
	s.mu.Lock()
	sess, ch, err := s.lookup(sid, cid)
	if err == nil {
		delete(sess.channels, cid)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.enqueue(func() {
		s.closeChannel(ch)
		s.deliver(sess, mrcp.ResponseMessage(sid, cid, mrcp.CommandChannelRemove, mrcp.StatusSuccess))
	})
	return nil
}

func (s *Stack) TerminateSession(sid mrcp.SessionID) error {
	s.mu.Lock()
	sess, ok := s.sessions[sid]
	if !ok {
		s.mu.Unlock()
		return mrcp.ErrUnknownSession
	}
	if sess.terminating {
		s.mu.Unlock()
		return errSessionClosed
	}
	sess.terminating = true
	remaining := sess.detachChannels()
	s.mu.Unlock()

	s.enqueue(func() {
		for _, ch := range remaining {
			s.closeChannel(ch)
		}
		s.deliver(sess, mrcp.ResponseMessage(sid, "", mrcp.CommandSessionTerminate, mrcp.StatusSuccess))
	})
	return nil
}

// DestroySession forgets the session. Channels still attached are closed on
// the worker goroutine without further messages.
func (s *Stack) DestroySession(sid mrcp.SessionID) error {
	s.mu.Lock()
	sess, ok := s.sessions[sid]
	if !ok {
		s.mu.Unlock()
		return mrcp.ErrUnknownSession
	}
	delete(s.sessions, sid)
	sess.terminating = true
	remaining := sess.detachChannels()
	s.mu.Unlock()

	if len(remaining) > 0 {
		s.enqueue(func() {
			for _, ch := range remaining {
				s.closeChannel(ch)
			}
		})
	}
	s.logger.Debug("session destroyed", "session", string(sid))
	return nil
}

func (s *Stack) CreateMessage(sid mrcp.SessionID, cid mrcp.ChannelID, method mrcp.Method) (*mrcp.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, _, err := s.lookup(sid, cid); err != nil {
		return nil, err
	}
	msg := mrcp.NewRequest(s.cfg.Version, method, s.requestID)
	msg.Channel = fmt.Sprintf("%s@%s", cid, resourceName)
	s.requestID++
	return msg, nil
}

func (s *Stack) SendMessage(sid mrcp.SessionID, cid mrcp.ChannelID, msg *mrcp.Message) error {
	if msg == nil {
		return errors.New("send message: nil message")
	}
	s.mu.Lock()
	sess, ch, err := s.lookup(sid, cid)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.enqueue(func() {
		if !ch.added {
			s.respond(sess, cid, msg, mrcp.RequestStateComplete, statusMethodNotValid)
			return
		}
		s.handleRequest(sess, ch, msg)
	})
	return nil
}

func (s *Stack) lookup(sid mrcp.SessionID, cid mrcp.ChannelID) (*session, *channel, error) {
	sess, err := s.liveSession(sid)
	if err != nil {
		return nil, nil, err
	}
	ch, ok := sess.channels[cid]
	if !ok {
		return nil, nil, mrcp.ErrUnknownChannel
	}
	return sess, ch, nil
}

func (s *Stack) liveSession(sid mrcp.SessionID) (*session, error) {
	sess, ok := s.sessions[sid]
	if !ok {
		return nil, mrcp.ErrUnknownSession
	}
	if sess.terminating {
		return nil, errSessionClosed
	}
	return sess, nil
}

func (sess *session) detachChannels() []*channel {
	out := make([]*channel, 0, len(sess.channels))
	for id, ch := range sess.channels {
		out = append(out, ch)
		delete(sess.channels, id)
	}
	return out
}

func (s *Stack) enqueue(task func()) {
	s.mu.Lock()
	s.tasks = append(s.tasks, task)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Stack) dequeue() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return nil
	}
	task := s.tasks[0]
	s.tasks[0] = nil
	s.tasks = s.tasks[1:]
	return task
}

// deliver hands msg to the session's application. Called without s.mu held
// so handlers may call back into the stack.
func (s *Stack) deliver(sess *session, msg mrcp.AppMessage) {
	sess.handler.HandleMessage(msg)
}

// closeChannel ends recognition and tears the stream down.
func (s *Stack) closeChannel(ch *channel) {
	if ch.recog != nil {
		ch.recog.done = true
	}
	if ch.opened {
		if err := ch.stream.Close(); err != nil {
			s.logger.Warn("stream close failed", "channel", string(ch.id), "error", err.Error())
		}
		ch.opened = false
	}
	if err := ch.stream.Destroy(); err != nil {
		s.logger.Warn("stream destroy failed", "channel", string(ch.id), "error", err.Error())
	}
	if s.cfg.AudioSink != nil && len(ch.pcm) > 0 {
		s.cfg.AudioSink(ch.pcm, ch.codec)
		ch.pcm = nil
	}
}

func pickCodec(codecs []mrcp.Codec) (mrcp.Codec, bool) {
	for _, c := range codecs {
		if strings.EqualFold(c.Name, mrcp.LPCM8k.Name) && c.SampleRate == mrcp.LPCM8k.SampleRate {
			if c.Channels <= 0 {
				c.Channels = 1
			}
			return c, true
		}
	}
	return mrcp.Codec{}, false
}

func newChannelID() mrcp.ChannelID {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return mrcp.ChannelID(id[:14])
}
