package session

import (
	"log/slog"
	"sync/atomic"

	"github.com/rbright/unirecog/internal/audio"
	"github.com/rbright/unirecog/internal/mrcp"
)

// SourceOpener opens the audio file fed to the recognizer.
type SourceOpener func(path string) (audio.Source, error)

// OpenFileSource is the default SourceOpener.
func OpenFileSource(path string) (audio.Source, error) {
	src, err := audio.Open(path)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// RecogState is the per-channel state touched by the frame pull. It is
// mutated only from the stack's callback goroutine; streaming is atomic so
// a stack with a separate media goroutine still observes it safely.
type RecogState struct {
	path      string
	streaming atomic.Bool
	source    audio.Source
	released  bool
}

func newRecogState(path string) *RecogState {
	return &RecogState{path: path}
}

// Path returns the audio file path.
func (s *RecogState) Path() string {
	return s.path
}

// Streaming reports whether frame pulls currently carry audio.
func (s *RecogState) Streaming() bool {
	return s.streaming.Load()
}

// HasSource reports whether unread audio may remain.
func (s *RecogState) HasSource() bool {
	return s.source != nil
}

func (s *RecogState) setStreaming(v bool) {
	s.streaming.Store(v)
}

// openSource opens the file; failure leaves the source absent and frames silent.
func (s *RecogState) openSource(open SourceOpener, logger *slog.Logger) {
	if s.released || s.source != nil {
		return
	}
	src, err := open(s.path)
	if err != nil {
		logger.Warn("could not open the audio source; streaming silence", "path", s.path, "error", err.Error())
		return
	}
	if fs, ok := src.(*audio.FileSource); ok && fs.Format != nil && !fs.Format.Matches(mrcp.LPCM8k.SampleRate, mrcp.LPCM8k.Channels) {
		logger.Warn("audio file format differs from the negotiated codec",
			"path", s.path,
			"sample_rate", fs.Format.SampleRate,
			"channels", fs.Format.Channels,
			"bits_per_sample", fs.Format.BitsPerSample,
		)
	}
	s.source = src
}

// dropSource closes the source once it is exhausted. It is never reopened.
func (s *RecogState) dropSource() {
	if s.source == nil {
		return
	}
	_ = s.source.Close()
	s.source = nil
}

// release stops streaming and closes the source.
func (s *RecogState) release() {
	if s.released {
		return
	}
	s.released = true
	s.setStreaming(false)
	s.dropSource()
}
