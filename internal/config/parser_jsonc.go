package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Client            *jsoncClient   `json:"client"`
	Transport         *string        `json:"transport"`
	Loopback          *jsoncLoopback `json:"loopback"`
	Log               *jsoncLog      `json:"log"`
	ShutdownTimeoutMS *int           `json:"shutdown_timeout_ms"`
	Debug             *jsoncDebug    `json:"debug"`
}

type jsoncClient struct {
	Profile     *string `json:"profile"`
	Application *string `json:"application"`
}

type jsoncLoopback struct {
	FrameIntervalMS  *int    `json:"frame_interval_ms"`
	ChannelAddStatus *string `json:"channel_add_status"`
	RecognizeState   *string `json:"recognize_state"`
	ResultText       *string `json:"result_text"`
	MRCPVersion      *int    `json:"mrcp_version"`
}

type jsoncLog struct {
	Level *string `json:"level"`
}

type jsoncDebug struct {
	AudioDump   *bool `json:"audio_dump"`
	ControlDump *bool `json:"control_dump"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	payload.applyTo(&cfg)

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) {
	if c := payload.Client; c != nil {
		setTrimmed(&cfg.Client.Profile, c.Profile)
		setTrimmed(&cfg.Client.Application, c.Application)
	}

	setTrimmed(&cfg.Transport, payload.Transport)

	if lb := payload.Loopback; lb != nil {
		if lb.FrameIntervalMS != nil {
			cfg.Loopback.FrameIntervalMS = *lb.FrameIntervalMS
		}
		if lb.ChannelAddStatus != nil {
			cfg.Loopback.ChannelAddStatus = strings.ToLower(strings.TrimSpace(*lb.ChannelAddStatus))
		}
		if lb.RecognizeState != nil {
			cfg.Loopback.RecognizeState = strings.ToLower(strings.TrimSpace(*lb.RecognizeState))
		}
		if lb.ResultText != nil {
			cfg.Loopback.ResultText = *lb.ResultText
		}
		if lb.MRCPVersion != nil {
			cfg.Loopback.MRCPVersion = *lb.MRCPVersion
		}
	}

	if payload.Log != nil {
		setTrimmed(&cfg.Log.Level, payload.Log.Level)
	}

	if payload.ShutdownTimeoutMS != nil {
		cfg.ShutdownTimeoutMS = *payload.ShutdownTimeoutMS
	}

	if payload.Debug != nil {
		if payload.Debug.AudioDump != nil {
			cfg.Debug.EnableAudioDump = *payload.Debug.AudioDump
		}
		if payload.Debug.ControlDump != nil {
			cfg.Debug.EnableControlDump = *payload.Debug.ControlDump
		}
	}
}

func setTrimmed(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

// normalizeJSONC blanks out comments and drops trailing commas so the result
// is plain JSON with the same line and column layout.
func normalizeJSONC(content string) (string, error) {
	stripped, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(stripped), nil
}

type jsoncState int

const (
	jsoncCode jsoncState = iota
	jsoncString
	jsoncStringEscape
	jsoncLineComment
	jsoncBlockComment
)

func stripJSONCComments(content string) (string, error) {
	out := []byte(content)
	state := jsoncCode

	for i := 0; i < len(out); i++ {
		ch := out[i]
		switch state {
		case jsoncString:
			switch ch {
			case '\\':
				state = jsoncStringEscape
			case '"':
				state = jsoncCode
			}
		case jsoncStringEscape:
			state = jsoncString
		case jsoncLineComment:
			if ch == '\n' || ch == '\r' {
				state = jsoncCode
				continue
			}
			out[i] = ' '
		case jsoncBlockComment:
			if ch == '*' && i+1 < len(out) && out[i+1] == '/' {
				out[i], out[i+1] = ' ', ' '
				i++
				state = jsoncCode
				continue
			}
			if !isJSONWhitespace(ch) {
				out[i] = ' '
			}
		default:
			switch {
			case ch == '"':
				state = jsoncString
			case ch == '/' && i+1 < len(out) && out[i+1] == '/':
				out[i], out[i+1] = ' ', ' '
				i++
				state = jsoncLineComment
			case ch == '/' && i+1 < len(out) && out[i+1] == '*':
				out[i], out[i+1] = ' ', ' '
				i++
				state = jsoncBlockComment
			}
		}
	}

	if state == jsoncBlockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}
	return string(out), nil
}

// stripJSONCTrailingCommas replaces a comma followed only by whitespace and
// a closing bracket with a space.
func stripJSONCTrailingCommas(content string) string {
	out := []byte(content)
	state := jsoncCode

	for i, ch := range out {
		switch state {
		case jsoncString:
			switch ch {
			case '\\':
				state = jsoncStringEscape
			case '"':
				state = jsoncCode
			}
			continue
		case jsoncStringEscape:
			state = jsoncString
			continue
		}

		if ch == '"' {
			state = jsoncString
			continue
		}
		if ch != ',' {
			continue
		}
		j := i + 1
		for j < len(out) && isJSONWhitespace(out[j]) {
			j++
		}
		if j < len(out) && (out[j] == '}' || out[j] == ']') {
			out[i] = ' '
		}
	}
	return string(out)
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := min(int(offset), len(content))

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
