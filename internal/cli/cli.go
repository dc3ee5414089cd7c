// Package cli parses the unirecog command line.
package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandRecognize Command = "recognize"
	CommandVersion   Command = "version"
	CommandHelp      Command = "help"
)

// ErrMissingPath is returned when no audio file path is given.
var ErrMissingPath = errors.New("expect only one argument, path to audio file")

type Parsed struct {
	Command   Command
	AudioPath string
	ShowHelp  bool
}

// Parse accepts exactly one audio file path. -h/--help and --version are
// recognized only as the sole argument; "--" ends flag handling so paths
// that start with "-" can be passed.
func Parse(args []string) (Parsed, error) {
	if len(args) == 2 && args[0] == "--" {
		args = args[1:]
		if strings.TrimSpace(args[0]) == "" {
			return Parsed{}, ErrMissingPath
		}
		return Parsed{Command: CommandRecognize, AudioPath: args[0]}, nil
	}

	switch len(args) {
	case 0:
		return Parsed{}, ErrMissingPath
	case 1:
	default:
		return Parsed{}, fmt.Errorf("%w; got %d arguments", ErrMissingPath, len(args))
	}

	arg := args[0]
	switch arg {
	case "-h", "--help":
		return Parsed{Command: CommandHelp, ShowHelp: true}, nil
	case "--version":
		return Parsed{Command: CommandVersion}, nil
	}
	if strings.HasPrefix(arg, "-") {
		return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
	}
	if strings.TrimSpace(arg) == "" {
		return Parsed{}, ErrMissingPath
	}
	return Parsed{Command: CommandRecognize, AudioPath: arg}, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s <audio-file>
  %[1]s -- <audio-file>

Streams 8 kHz 16-bit mono PCM (raw or WAV) to an MRCP recognizer and prints
the recognition result.

Flags:
  -h, --help      Show help
  --version       Show version

Environment:
  UNIRECOG_CONFIG   Config file path (default: $XDG_CONFIG_HOME/unirecog/config.jsonc)
`, binaryName)
}
