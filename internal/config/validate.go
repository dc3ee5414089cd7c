package config

import (
	"fmt"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Client.Profile) == "" {
		return nil, fmt.Errorf("client.profile must not be empty")
	}
	if strings.TrimSpace(cfg.Client.Application) == "" {
		return nil, fmt.Errorf("client.application must not be empty")
	}
	if strings.TrimSpace(cfg.Transport) != TransportLoopback {
		return nil, fmt.Errorf("transport must be %q", TransportLoopback)
	}

	lb := cfg.Loopback
	if lb.FrameIntervalMS < 0 {
		return nil, fmt.Errorf("loopback.frame_interval_ms must be >= 0")
	}
	switch lb.ChannelAddStatus {
	case ChannelAddSuccess, ChannelAddFailure:
	default:
		return nil, fmt.Errorf("loopback.channel_add_status must be one of: %s, %s", ChannelAddSuccess, ChannelAddFailure)
	}
	switch lb.RecognizeState {
	case RecognizeInProgress, RecognizeComplete:
	default:
		return nil, fmt.Errorf("loopback.recognize_state must be one of: %s, %s", RecognizeInProgress, RecognizeComplete)
	}
	if lb.MRCPVersion != 1 && lb.MRCPVersion != 2 {
		return nil, fmt.Errorf("loopback.mrcp_version must be 1 or 2")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	if cfg.ShutdownTimeoutMS <= 0 {
		return nil, fmt.Errorf("shutdown_timeout_ms must be > 0")
	}

	if lb.FrameIntervalMS > 0 && lb.FrameIntervalMS != 10 {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("loopback.frame_interval_ms=%d does not pace 10 ms frames in real time", lb.FrameIntervalMS)})
	}

	return warnings, nil
}
