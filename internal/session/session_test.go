package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rbright/unirecog/internal/audio"
	"github.com/rbright/unirecog/internal/fsm"
	"github.com/rbright/unirecog/internal/mrcp"
)

const (
	testSession mrcp.SessionID = "sess-1"
	testChannel mrcp.ChannelID = "chan-1"
)

type fakeStack struct {
	version mrcp.Version
	nextID  uint32

	createSessionErr error
	createChannelErr error
	addErr           error
	createMsgErr     error
	sendErr          error
	removeErr        error
	terminateErr     error

	stream     mrcp.StreamHandler
	caps       mrcp.Capabilities
	sent       []*mrcp.Message
	adds       int
	removes    int
	terminates int
	destroys   int
}

func newFakeStack() *fakeStack {
	return &fakeStack{version: mrcp.Version2, nextID: 1}
}

func (s *fakeStack) Register(string, mrcp.MessageHandler) error { return nil }

func (s *fakeStack) CreateSession(string) (mrcp.SessionID, error) {
	if s.createSessionErr != nil {
		return "", s.createSessionErr
	}
	return testSession, nil
}

func (s *fakeStack) CreateChannel(_ mrcp.SessionID, stream mrcp.StreamHandler, caps mrcp.Capabilities) (mrcp.ChannelID, error) {
	if s.createChannelErr != nil {
		return "", s.createChannelErr
	}
	s.stream = stream
	s.caps = caps
	return testChannel, nil
}

func (s *fakeStack) AddChannel(mrcp.SessionID, mrcp.ChannelID) error {
	s.adds++
	return s.addErr
}

func (s *fakeStack) RemoveChannel(mrcp.SessionID, mrcp.ChannelID) error {
	s.removes++
	return s.removeErr
}

func (s *fakeStack) TerminateSession(mrcp.SessionID) error {
	s.terminates++
	return s.terminateErr
}

func (s *fakeStack) DestroySession(mrcp.SessionID) error {
	s.destroys++
	return nil
}

func (s *fakeStack) SendMessage(_ mrcp.SessionID, _ mrcp.ChannelID, msg *mrcp.Message) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeStack) CreateMessage(_ mrcp.SessionID, channel mrcp.ChannelID, method mrcp.Method) (*mrcp.Message, error) {
	if s.createMsgErr != nil {
		return nil, s.createMsgErr
	}
	msg := mrcp.NewRequest(s.version, method, s.nextID)
	msg.Channel = string(channel) + "@speechrecog"
	s.nextID++
	return msg, nil
}

type fakeSource struct {
	*bytes.Reader
	closes int
}

func (f *fakeSource) Close() error {
	f.closes++
	return nil
}

type openerSpy struct {
	source *fakeSource
	stream audio.Source
	err    error
	calls  int
}

func (o *openerSpy) open(string) (audio.Source, error) {
	o.calls++
	if o.err != nil {
		return nil, o.err
	}
	if o.stream != nil {
		return o.stream, nil
	}
	return o.source, nil
}

// pipeSource is a source whose bytes trickle in, like a FIFO.
type pipeSource struct {
	*io.PipeReader
}

func newOpener(data []byte) *openerSpy {
	return &openerSpy{source: &fakeSource{Reader: bytes.NewReader(data)}}
}

func startApp(t *testing.T, stack *fakeStack, opener *openerSpy) *Application {
	t.Helper()
	app := NewApplication(nil, stack, Options{OpenSource: opener.open})
	require.NoError(t, app.Start("speech.raw"))
	return app
}

func deliverAdd(app *Application, status mrcp.StatusCode) {
	app.HandleMessage(mrcp.ResponseMessage(testSession, testChannel, mrcp.CommandChannelAdd, status))
}

func deliverControl(app *Application, msg *mrcp.Message) {
	app.HandleMessage(mrcp.ControlMessage(testSession, testChannel, msg))
}

func deliverRemoved(app *Application) {
	app.HandleMessage(mrcp.ResponseMessage(testSession, testChannel, mrcp.CommandChannelRemove, mrcp.StatusSuccess))
}

func deliverTerminated(app *Application) {
	app.HandleMessage(mrcp.ResponseMessage(testSession, "", mrcp.CommandSessionTerminate, mrcp.StatusSuccess))
}

func completion(req *mrcp.Message, cause *mrcp.CompletionCause, body string) *mrcp.Message {
	msg := mrcp.NewEvent(req, mrcp.EventRecognitionComplete, mrcp.RequestStateComplete)
	if cause != nil {
		msg.Recog.SetCompletionCause(*cause)
	}
	if body != "" {
		msg.Body = []byte(body)
	}
	return msg
}

func causePtr(c mrcp.CompletionCause) *mrcp.CompletionCause {
	return &c
}

func requireOutcome(t *testing.T, app *Application) Outcome {
	t.Helper()
	select {
	case out := <-app.Done():
		return out
	case <-time.After(time.Second):
		t.Fatal("completion was not signalled")
		return Outcome{}
	}
}

func requireNoOutcome(t *testing.T, app *Application) {
	t.Helper()
	select {
	case out := <-app.Done():
		t.Fatalf("unexpected completion: %+v", out)
	default:
	}
}

func readFrame(t *testing.T, stack *fakeStack, fill byte) mrcp.Frame {
	t.Helper()
	frame := mrcp.Frame{Buffer: bytes.Repeat([]byte{fill}, mrcp.LPCM8k.FrameSize(10))}
	require.NoError(t, stack.stream.ReadFrame(&frame))
	return frame
}

// runToStreaming starts an app and drives it through a successful add and
// an IN-PROGRESS acknowledgement.
func runToStreaming(t *testing.T, stack *fakeStack, opener *openerSpy) (*Application, *mrcp.Message) {
	t.Helper()
	app := startApp(t, stack, opener)
	deliverAdd(app, mrcp.StatusSuccess)
	require.Len(t, stack.sent, 1)
	req := stack.sent[0]
	deliverControl(app, mrcp.NewResponse(req, mrcp.RequestStateInProgress, mrcp.StatusOK))
	return app, req
}

func TestStartOffersReceiveOnlyLPCM(t *testing.T) {
	stack := newFakeStack()
	startApp(t, stack, newOpener(nil))

	require.Equal(t, 1, stack.adds)
	require.Equal(t, mrcp.DirectionReceive, stack.caps.Direction)
	require.Equal(t, []mrcp.Codec{mrcp.LPCM8k}, stack.caps.Codecs)
}

func TestStartErrors(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(*fakeStack)
		want         error
		wantDestroys int
	}{
		{name: "session", setup: func(s *fakeStack) { s.createSessionErr = errors.New("boom") }, want: ErrSessionCreate},
		{name: "channel", setup: func(s *fakeStack) { s.createChannelErr = errors.New("boom") }, want: ErrChannelCreate, wantDestroys: 1},
		{name: "add", setup: func(s *fakeStack) { s.addErr = errors.New("boom") }, want: ErrChannelAdd, wantDestroys: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stack := newFakeStack()
			tc.setup(stack)
			app := NewApplication(nil, stack, Options{OpenSource: newOpener(nil).open})

			err := app.Start("speech.raw")
			require.ErrorIs(t, err, tc.want)
			require.Equal(t, tc.wantDestroys, stack.destroys)
			require.Empty(t, stack.sent)
			requireNoOutcome(t, app)
		})
	}
}

func TestChannelAddSuccessSendsRecognize(t *testing.T) {
	stack := newFakeStack()
	opener := newOpener(nil)
	app := startApp(t, stack, opener)

	deliverAdd(app, mrcp.StatusSuccess)

	require.Len(t, stack.sent, 1)
	require.Equal(t, mrcp.MethodRecognize, stack.sent[0].StartLine.Method)
	require.Zero(t, stack.terminates)
	require.Equal(t, 1, opener.calls)
	require.Equal(t, fsm.StateRecognizing, app.channel(testChannel).State())
}

func TestChannelAddFailureTerminatesWithoutRecognize(t *testing.T) {
	stack := newFakeStack()
	opener := newOpener(nil)
	app := startApp(t, stack, opener)

	deliverAdd(app, mrcp.StatusFailure)

	require.Empty(t, stack.sent)
	require.Equal(t, 1, stack.terminates)
	require.Zero(t, opener.calls)
	require.Nil(t, app.channel(testChannel))

	deliverTerminated(app)
	out := requireOutcome(t, app)
	require.False(t, out.Completed)
	require.ErrorIs(t, out.Err, ErrChannelAddFailed)
	require.Equal(t, testSession, out.Session)
	require.Equal(t, 1, stack.destroys)
}

func TestRecognizeBuildFailureTerminates(t *testing.T) {
	for name, setup := range map[string]func(*fakeStack){
		"create": func(s *fakeStack) { s.createMsgErr = errors.New("no memory") },
		"send":   func(s *fakeStack) { s.sendErr = errors.New("closed") },
	} {
		t.Run(name, func(t *testing.T) {
			stack := newFakeStack()
			setup(stack)
			app := startApp(t, stack, newOpener(nil))

			deliverAdd(app, mrcp.StatusSuccess)

			require.Empty(t, stack.sent)
			require.Equal(t, 1, stack.terminates)
			require.Nil(t, app.channel(testChannel))

			deliverTerminated(app)
			out := requireOutcome(t, app)
			require.ErrorIs(t, out.Err, ErrRecognizeBuild)
		})
	}
}

func TestFeederStreamsOnlyWhileInProgress(t *testing.T) {
	stack := newFakeStack()
	data := bytes.Repeat([]byte{0x11}, 200)
	opener := newOpener(data)
	app := startApp(t, stack, opener)

	before := readFrame(t, stack, 0xAA)
	require.Equal(t, mrcp.FrameTypeNone, before.Type)
	require.Equal(t, bytes.Repeat([]byte{0xAA}, 160), before.Buffer)

	deliverAdd(app, mrcp.StatusSuccess)
	awaiting := readFrame(t, stack, 0xAA)
	require.Equal(t, mrcp.FrameTypeNone, awaiting.Type)

	deliverControl(app, mrcp.NewResponse(stack.sent[0], mrcp.RequestStateInProgress, mrcp.StatusOK))
	require.Equal(t, fsm.StateStreaming, app.channel(testChannel).State())
	recog := app.channel(testChannel).recog
	require.Equal(t, "speech.raw", recog.Path())
	require.True(t, recog.HasSource())

	first := readFrame(t, stack, 0xAA)
	require.Equal(t, mrcp.FrameTypeAudio, first.Type&mrcp.FrameTypeAudio)
	require.Equal(t, data[:160], first.Buffer)

	second := readFrame(t, stack, 0xAA)
	require.Equal(t, data[160:], second.Buffer[:40])
	require.Equal(t, make([]byte, 120), second.Buffer[40:])
	require.Zero(t, opener.source.closes)

	third := readFrame(t, stack, 0xAA)
	require.Equal(t, make([]byte, 160), third.Buffer)
	require.Equal(t, 1, opener.source.closes)
	require.False(t, recog.HasSource())

	fourth := readFrame(t, stack, 0xAA)
	require.Equal(t, make([]byte, 160), fourth.Buffer)
	require.Equal(t, 1, opener.source.closes)
	require.Equal(t, 1, opener.calls)

	deliverControl(app, completion(stack.sent[0], causePtr(mrcp.CauseSuccess), "hi"))
	after := readFrame(t, stack, 0xAA)
	require.Equal(t, mrcp.FrameTypeNone, after.Type)
	require.Equal(t, bytes.Repeat([]byte{0xAA}, 160), after.Buffer)
}

func TestFeederTakesPartialReadWithoutWaiting(t *testing.T) {
	stack := newFakeStack()
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })
	opener := &openerSpy{stream: pipeSource{PipeReader: pr}}
	runToStreaming(t, stack, opener)

	chunk := bytes.Repeat([]byte{0x42}, 10)
	go func() { _, _ = pw.Write(chunk) }()

	frames := make(chan mrcp.Frame, 1)
	go func() {
		frame := mrcp.Frame{Buffer: bytes.Repeat([]byte{0xAA}, mrcp.LPCM8k.FrameSize(10))}
		_ = stack.stream.ReadFrame(&frame)
		frames <- frame
	}()

	select {
	case frame := <-frames:
		require.Equal(t, mrcp.FrameTypeAudio, frame.Type)
		require.Equal(t, chunk, frame.Buffer[:10])
		require.Equal(t, make([]byte, 150), frame.Buffer[10:])
	case <-time.After(2 * time.Second):
		t.Fatal("ReadFrame waited for a full frame")
	}
}

func TestFeederStreamsBytesOfUnparsableWAV(t *testing.T) {
	content := append([]byte("RIFF\x00\x00\x00\x00WAVE"), bytes.Repeat([]byte{0x55}, 400)...)
	path := filepath.Join(t.TempDir(), "bogus.wav")
	require.NoError(t, os.WriteFile(path, content, 0o600))
	src, err := OpenFileSource(path)
	require.NoError(t, err)

	stack := newFakeStack()
	runToStreaming(t, stack, &openerSpy{stream: src})

	frame := readFrame(t, stack, 0xAA)
	require.Equal(t, mrcp.FrameTypeAudio, frame.Type)
	require.Equal(t, content[:160], frame.Buffer)
}

func TestFeederStreamsSilenceWithoutSource(t *testing.T) {
	stack := newFakeStack()
	opener := &openerSpy{err: errors.New("no such file")}
	runToStreaming(t, stack, opener)

	frame := readFrame(t, stack, 0xAA)
	require.Equal(t, mrcp.FrameTypeAudio, frame.Type)
	require.Equal(t, make([]byte, 160), frame.Buffer)
	require.Equal(t, 1, opener.calls)
}

func TestRecognitionCompleteOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		cause       *mrcp.CompletionCause
		body        string
		wantText    string
		wantNoInput bool
		wantErr     error
	}{
		{name: "success", cause: causePtr(mrcp.CauseSuccess), body: "hello world", wantText: "hello world"},
		{name: "no input", cause: causePtr(mrcp.CauseNoInputTimeout), wantNoInput: true},
		{name: "no match", cause: causePtr(mrcp.CauseNoMatch)},
		{name: "missing cause", wantErr: ErrNoCompletionCause},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stack := newFakeStack()
			app, req := runToStreaming(t, stack, newOpener(nil))

			deliverControl(app, completion(req, tc.cause, tc.body))
			require.Equal(t, 1, stack.removes)
			require.Equal(t, fsm.StateRemoving, app.channel(testChannel).State())
			require.False(t, app.channel(testChannel).recog.Streaming())
			requireNoOutcome(t, app)

			deliverRemoved(app)
			require.Equal(t, 1, stack.terminates)
			deliverTerminated(app)

			out := requireOutcome(t, app)
			require.True(t, out.Completed)
			require.Equal(t, tc.wantNoInput, out.Completion.NoInput)
			if tc.wantErr != nil {
				require.ErrorIs(t, out.Err, tc.wantErr)
				require.False(t, out.Completion.HasCause)
				return
			}
			require.NoError(t, out.Err)
			require.True(t, out.Completion.HasCause)
			require.Equal(t, *tc.cause, out.Completion.Cause)
			if tc.wantText == "" {
				require.Nil(t, out.Completion.Result)
				return
			}
			require.NotNil(t, out.Completion.Result)
			require.Equal(t, tc.wantText, out.Completion.Result.Text())
		})
	}
}

func TestDuplicateCompletionRequestsRemovalOnce(t *testing.T) {
	stack := newFakeStack()
	app, req := runToStreaming(t, stack, newOpener(nil))

	deliverControl(app, completion(req, causePtr(mrcp.CauseSuccess), "one"))
	deliverControl(app, completion(req, causePtr(mrcp.CauseSuccess), "two"))
	require.Equal(t, 1, stack.removes)

	deliverRemoved(app)
	deliverRemoved(app)
	deliverTerminated(app)

	out := requireOutcome(t, app)
	require.Equal(t, "one", out.Completion.Result.Text())
}

func TestRejectedRecognizeRemovesChannel(t *testing.T) {
	stack := newFakeStack()
	app := startApp(t, stack, newOpener(nil))
	deliverAdd(app, mrcp.StatusSuccess)

	deliverControl(app, mrcp.NewResponse(stack.sent[0], mrcp.RequestStateComplete, 407))
	require.Equal(t, 1, stack.removes)
	require.False(t, app.channel(testChannel).recog.Streaming())

	readFrame(t, stack, 0xAA)
	deliverRemoved(app)
	deliverTerminated(app)

	out := requireOutcome(t, app)
	require.False(t, out.Completed)
	require.ErrorIs(t, out.Err, ErrRecognizeRejected)
}

func TestResponseForOtherRequestIsIgnored(t *testing.T) {
	stack := newFakeStack()
	app := startApp(t, stack, newOpener(nil))
	deliverAdd(app, mrcp.StatusSuccess)

	stale := mrcp.NewRequest(mrcp.Version2, mrcp.MethodRecognize, 99)
	deliverControl(app, mrcp.NewResponse(stale, mrcp.RequestStateInProgress, mrcp.StatusOK))
	require.Equal(t, fsm.StateRecognizing, app.channel(testChannel).State())
	require.Zero(t, stack.removes)
}

func TestCompletionSignalledOnce(t *testing.T) {
	stack := newFakeStack()
	app, req := runToStreaming(t, stack, newOpener(nil))
	deliverControl(app, completion(req, causePtr(mrcp.CauseNoInputTimeout), ""))
	deliverRemoved(app)

	deliverTerminated(app)
	deliverTerminated(app)

	requireOutcome(t, app)
	requireNoOutcome(t, app)
	require.Equal(t, 1, stack.destroys)
}

func TestRemoveFailureFinishesLocally(t *testing.T) {
	stack := newFakeStack()
	stack.removeErr = errors.New("link down")
	app, req := runToStreaming(t, stack, newOpener(nil))

	deliverControl(app, completion(req, causePtr(mrcp.CauseSuccess), "ok"))
	require.Equal(t, 1, stack.removes)
	require.Equal(t, 1, stack.terminates)
	require.Nil(t, app.channel(testChannel))

	deliverTerminated(app)
	out := requireOutcome(t, app)
	require.True(t, out.Completed)
}

func TestTerminateFailureDestroysLocally(t *testing.T) {
	stack := newFakeStack()
	stack.terminateErr = errors.New("link down")
	app := startApp(t, stack, newOpener(nil))

	deliverAdd(app, mrcp.StatusFailure)

	out := requireOutcome(t, app)
	require.ErrorIs(t, out.Err, ErrChannelAddFailed)
	require.Equal(t, 1, stack.destroys)
}

func TestTerminateInterruptsStreaming(t *testing.T) {
	stack := newFakeStack()
	opener := newOpener(bytes.Repeat([]byte{1}, 320))
	app, _ := runToStreaming(t, stack, opener)

	require.NoError(t, app.Terminate())
	require.NoError(t, app.Terminate())
	require.Equal(t, 1, stack.terminates)

	deliverTerminated(app)
	out := requireOutcome(t, app)
	require.ErrorIs(t, out.Err, ErrInterrupted)
	require.False(t, out.Completed)
	require.Equal(t, 1, opener.source.closes)
}

func TestWaitHonoursContext(t *testing.T) {
	app := startApp(t, newFakeStack(), newOpener(nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := app.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestUnexpectedMessagesAreIgnored(t *testing.T) {
	stack := newFakeStack()
	app := startApp(t, stack, newOpener(nil))

	app.HandleMessage(mrcp.ResponseMessage("other", testChannel, mrcp.CommandChannelAdd, mrcp.StatusSuccess))
	app.HandleMessage(mrcp.AppMessage{Type: mrcp.AppMessageSignaling, Session: testSession, Signaling: mrcp.Signaling{Type: mrcp.SignalingRequest, Command: mrcp.CommandSessionUpdate}})
	app.HandleMessage(mrcp.AppMessage{Type: mrcp.AppMessageSignaling, Session: testSession, Signaling: mrcp.Signaling{Type: mrcp.SignalingEvent, Event: mrcp.SignalingEventTerminate}})
	app.HandleMessage(mrcp.ResponseMessage(testSession, testChannel, mrcp.CommandResourceDiscover, mrcp.StatusSuccess))
	app.HandleMessage(mrcp.ResponseMessage(testSession, testChannel, mrcp.CommandSessionUpdate, mrcp.StatusSuccess))
	app.HandleMessage(mrcp.ResponseMessage(testSession, "ghost", mrcp.CommandChannelAdd, mrcp.StatusSuccess))
	app.HandleMessage(mrcp.ControlMessage(testSession, "ghost", mrcp.NewRequest(mrcp.Version2, mrcp.MethodRecognize, 1)))
	app.HandleMessage(mrcp.AppMessage{Type: mrcp.AppMessageType(42), Session: testSession})

	deliverControl(app, mrcp.NewEvent(mrcp.NewRequest(mrcp.Version2, mrcp.MethodRecognize, 1), mrcp.EventStartOfInput, mrcp.RequestStateInProgress))

	require.Empty(t, stack.sent)
	require.Zero(t, stack.terminates)
	require.Equal(t, fsm.StateCreated, app.channel(testChannel).State())
	requireNoOutcome(t, app)
}

func TestControlDumpRecordsTraffic(t *testing.T) {
	stack := newFakeStack()
	var dump bytes.Buffer
	app := NewApplication(nil, stack, Options{OpenSource: newOpener(nil).open, ControlDump: &dump})
	require.NoError(t, app.Start("speech.raw"))
	deliverAdd(app, mrcp.StatusSuccess)
	deliverControl(app, mrcp.NewResponse(stack.sent[0], mrcp.RequestStateInProgress, mrcp.StatusOK))

	out := dump.String()
	require.Contains(t, out, "# send\nMRCP/2.0 ")
	require.Contains(t, out, " RECOGNIZE 1\r\n")
	require.Contains(t, out, "# recv\nMRCP/2.0 ")
	require.Contains(t, out, " 1 200 IN-PROGRESS\r\n")
}

func TestBuildRecognizeHeaders(t *testing.T) {
	stack := newFakeStack()
	msg, err := BuildRecognize(stack, testSession, testChannel)
	require.NoError(t, err)

	h := msg.Recog
	require.True(t, msg.Generic.HasContentType())
	require.Equal(t, "text/plain", msg.Generic.ContentType)
	require.True(t, h.Has(mrcp.PropCancelIfQueue))
	require.False(t, h.CancelIfQueue)
	require.Equal(t, 1000, h.NoInputTimeout)
	require.Equal(t, 10000, h.RecognitionTimeout)
	require.True(t, h.StartInputTimers)
	require.InDelta(t, 0.87, h.ConfidenceThreshold, 1e-9)
	require.Equal(t, 1600, h.SpeechCompleteTimeout)
	require.Empty(t, msg.Body)

	encoded := msg.Encode()
	require.Contains(t, encoded, "Cancel-If-Queue: false\r\n")
	require.Contains(t, encoded, "Confidence-Threshold: 0.87\r\n")
	require.True(t, strings.HasSuffix(encoded, "\r\n\r\n"))
}

func TestBuildRecognizeOmitsCancelIfQueueForVersion1(t *testing.T) {
	stack := newFakeStack()
	stack.version = mrcp.Version1
	msg, err := BuildRecognize(stack, testSession, testChannel)
	require.NoError(t, err)

	require.False(t, msg.Recog.Has(mrcp.PropCancelIfQueue))
	require.True(t, msg.Recog.Has(mrcp.PropSpeechCompleteTimeout))
	require.NotContains(t, msg.Encode(), "Cancel-If-Queue")
}

func TestBuildRecognizeWrapsFactoryError(t *testing.T) {
	stack := newFakeStack()
	stack.createMsgErr = errors.New("pool exhausted")
	_, err := BuildRecognize(stack, testSession, testChannel)
	require.ErrorIs(t, err, ErrRecognizeBuild)
	require.Contains(t, err.Error(), "pool exhausted")
}
