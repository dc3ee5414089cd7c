package session

import (
	"log/slog"

	"github.com/rbright/unirecog/internal/mrcp"
)

// FrameFeeder is the receive-direction stream attached to the recognizer
// channel. The stack pulls one frame at a time from ReadFrame.
type FrameFeeder struct {
	state  *RecogState
	logger *slog.Logger
}

// NewFrameFeeder binds a feeder to state.
func NewFrameFeeder(state *RecogState, logger *slog.Logger) *FrameFeeder {
	return &FrameFeeder{state: state, logger: orDiscard(logger)}
}

func (f *FrameFeeder) Open(codec mrcp.Codec) error {
	f.logger.Debug("stream open", "codec", codec.Name, "sample_rate", codec.SampleRate)
	return nil
}

func (f *FrameFeeder) Close() error {
	f.logger.Debug("stream close")
	return nil
}

func (f *FrameFeeder) Destroy() error {
	f.logger.Debug("stream destroy")
	return nil
}

// ReadFrame leaves the frame untouched until streaming starts. While
// streaming it marks the frame as audio and takes whatever a single source
// read returns, zero-padding the tail. An empty read drops the source for good.
func (f *FrameFeeder) ReadFrame(frame *mrcp.Frame) error {
	st := f.state
	if st == nil || !st.Streaming() {
		return nil
	}

	frame.Type |= mrcp.FrameTypeAudio
	buf := frame.Buffer
	if !st.HasSource() {
		clear(buf)
		return nil
	}

	n, _ := st.source.Read(buf)
	clear(buf[n:])
	if n == 0 {
		st.dropSource()
		f.logger.Debug("audio source exhausted", "path", st.Path())
	}
	return nil
}
