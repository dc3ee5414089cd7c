// Package app wires the command line, configuration, logging, and the MRCP
// stack into one recognition run.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rbright/unirecog/internal/audio"
	"github.com/rbright/unirecog/internal/cli"
	"github.com/rbright/unirecog/internal/config"
	"github.com/rbright/unirecog/internal/logging"
	"github.com/rbright/unirecog/internal/mrcp"
	"github.com/rbright/unirecog/internal/mrcp/loopback"
	"github.com/rbright/unirecog/internal/session"
	"github.com/rbright/unirecog/internal/version"
)

var errShutdownTimeout = errors.New("session did not terminate before the shutdown timeout")

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText("unirecog"))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText("unirecog"))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	logRuntime, err := logging.New()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	cfgLoaded, err := config.Load("")
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("load config failed", "error", err.Error())
		return 1
	}
	logRuntime.SetLevel(cfgLoaded.Config.Log.SlogLevel())
	for _, w := range cfgLoaded.Warnings {
		msg := w.Message
		if w.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", w.Line, w.Message)
		}
		fmt.Fprintf(r.Stderr, "warning: %s\n", msg)
		logger.Warn("config warning", "line", w.Line, "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"audio", parsed.AudioPath,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
		"version", version.Version,
	)

	return r.recognize(ctx, cfgLoaded.Config, logger, parsed.AudioPath)
}

// recognize runs one session to completion. The stack keeps running after
// ctx ends so that an interrupted session can still tear down.
func (r Runner) recognize(ctx context.Context, cfg config.Config, logger *slog.Logger, path string) int {
	artifacts := openDebugArtifacts(cfg.Debug, logger)
	defer artifacts.Close()

	stack := loopback.New(loopbackConfig(cfg.Loopback, artifacts.audioSink()), logger)
	application := session.NewApplication(logger, stack, session.Options{
		Profile:     cfg.Client.Profile,
		ControlDump: artifacts.controlWriter(),
	})
	if err := stack.Register(cfg.Client.Application, application); err != nil {
		fmt.Fprintf(r.Stderr, "error: register application: %v\n", err)
		return 1
	}
	logger.Info("application registered", "application", cfg.Client.Application, "profile", cfg.Client.Profile)

	runCtx, stopStack := context.WithCancel(context.Background())
	defer stopStack()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return stack.Run(gctx)
	})

	startedAt := time.Now()
	var outcome session.Outcome
	g.Go(func() error {
		defer stopStack()
		if err := application.Start(path); err != nil {
			return err
		}
		var err error
		outcome, err = waitForOutcome(ctx, application, cfg.ShutdownTimeout(), logger)
		return err
	})

	if err := g.Wait(); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("session failed", "error", err.Error())
		return 1
	}

	logOutcome(logger, outcome, time.Since(startedAt))
	return r.report(outcome)
}

func waitForOutcome(ctx context.Context, application *session.Application, timeout time.Duration, logger *slog.Logger) (session.Outcome, error) {
	select {
	case out := <-application.Done():
		return out, nil
	case <-ctx.Done():
	}

	logger.Warn("interrupted; terminating session")
	if err := application.Terminate(); err != nil {
		logger.Warn("terminate request failed", "error", err.Error())
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case out := <-application.Done():
		return out, nil
	case <-timer.C:
		return session.Outcome{}, errShutdownTimeout
	}
}

// report prints the outcome and returns the exit code.
func (r Runner) report(out session.Outcome) int {
	if out.Err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", out.Err)
		return 1
	}
	if !out.Completed {
		fmt.Fprintln(r.Stderr, "error: session ended without a recognition result")
		return 1
	}

	c := out.Completion
	switch {
	case c.Result != nil:
		fmt.Fprintln(r.Stdout, c.Result.Text())
	case c.NoInput:
		fmt.Fprintln(r.Stdout, "no input detected")
	default:
		fmt.Fprintf(r.Stdout, "recognition ended: %s\n", c.Cause)
	}
	return 0
}

func logOutcome(logger *slog.Logger, out session.Outcome, elapsed time.Duration) {
	fields := []any{
		"session", string(out.Session),
		"completed", out.Completed,
		"duration_ms", elapsed.Milliseconds(),
	}
	if out.Completion.HasCause {
		fields = append(fields, "completion_cause", out.Completion.Cause.String())
	}
	if out.Err != nil {
		logger.Error("session finished with error", append(fields, "error", out.Err.Error())...)
		return
	}
	logger.Info("session finished", fields...)
}

func loopbackConfig(cfg config.LoopbackConfig, sink func([]byte, mrcp.Codec)) loopback.Config {
	status := mrcp.StatusSuccess
	if cfg.ChannelAddStatus == config.ChannelAddFailure {
		status = mrcp.StatusFailure
	}
	return loopback.Config{
		FrameInterval:    cfg.FrameInterval(),
		ChannelAddStatus: status,
		RefuseRecognize:  cfg.RecognizeState == config.RecognizeComplete,
		ResultText:       cfg.ResultText,
		Version:          mrcp.Version(cfg.MRCPVersion),
		AudioSink:        sink,
	}
}

// debugArtifacts holds the optional debug sinks for one run.
type debugArtifacts struct {
	cfg     config.DebugConfig
	logger  *slog.Logger
	control *os.File
}

func openDebugArtifacts(cfg config.DebugConfig, logger *slog.Logger) *debugArtifacts {
	a := &debugArtifacts{cfg: cfg, logger: logger}
	if cfg.EnableControlDump {
		file, err := logging.CreateDebugFile("control", "txt")
		if err != nil {
			logger.Warn("unable to create control dump", "error", err.Error())
		} else {
			a.control = file
		}
	}
	return a
}

func (a *debugArtifacts) controlWriter() io.Writer {
	if a.control == nil {
		return nil
	}
	return a.control
}

func (a *debugArtifacts) audioSink() func([]byte, mrcp.Codec) {
	if !a.cfg.EnableAudioDump {
		return nil
	}
	return a.writeAudio
}

// writeAudio writes received PCM to a WAV debug artifact.
func (a *debugArtifacts) writeAudio(pcm []byte, codec mrcp.Codec) {
	if len(pcm) == 0 {
		return
	}
	file, err := logging.CreateDebugFile("audio", "wav")
	if err != nil {
		a.logger.Warn("unable to create debug audio dump", "error", err.Error())
		return
	}
	defer file.Close()

	if err := audio.WritePCM16WAV(file, pcm, codec.SampleRate, codec.Channels); err != nil {
		a.logger.Warn("unable to write debug audio dump", "error", err.Error())
	}
}

func (a *debugArtifacts) Close() {
	if a.control != nil {
		_ = a.control.Close()
		a.control = nil
	}
}
