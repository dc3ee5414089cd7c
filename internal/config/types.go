// Package config resolves, parses, validates, and defaults unirecog configuration.
package config

import (
	"log/slog"
	"strings"
	"time"
)

// Config is the fully materialized runtime configuration used by unirecog.
type Config struct {
	Client            ClientConfig
	Transport         string
	Loopback          LoopbackConfig
	Log               LogConfig
	ShutdownTimeoutMS int
	Debug             DebugConfig
}

// ClientConfig identifies the client profile and the registered application.
type ClientConfig struct {
	Profile     string
	Application string
}

// LoopbackConfig controls the in-process recognizer stack.
type LoopbackConfig struct {
	FrameIntervalMS  int
	ChannelAddStatus string
	RecognizeState   string
	ResultText       string
	MRCPVersion      int
}

// LogConfig controls the runtime log level.
type LogConfig struct {
	Level string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump   bool
	EnableControlDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

const (
	TransportLoopback = "loopback"

	ChannelAddSuccess = "success"
	ChannelAddFailure = "failure"

	RecognizeInProgress = "in-progress"
	RecognizeComplete   = "complete"
)

// FrameInterval returns the frame pull pacing.
func (c LoopbackConfig) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMS) * time.Millisecond
}

// ShutdownTimeout bounds how long an interrupted run waits for teardown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}

// SlogLevel maps the configured level name to a slog level.
func (c LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
