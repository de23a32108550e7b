// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command parsing and usage for arth.
package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdAsk
	CmdReplay
	CmdUpload
	CmdConfig
	CmdDoctor
	CmdVersion
	CmdHelp
)

// String returns the command name.
func (c Command) String() string {
	switch c {
	case CmdChat:
		return "chat"
	case CmdAsk:
		return "ask"
	case CmdReplay:
		return "replay"
	case CmdUpload:
		return "upload"
	case CmdConfig:
		return "config"
	case CmdDoctor:
		return "doctor"
	case CmdVersion:
		return "version"
	default:
		return "help"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet     bool
	Verbose   bool
	JSON      bool
	NoColor   bool
	Transport string // overrides api.transport
	SessionID string // reuse a session instead of starting a new one

	// Command-specific
	Query      string   // ask: the message
	Images     []string // ask: --image paths
	Files      []string // replay, upload: file arguments
	ChunkSize  int      // replay: bytes per chunk (0 = config default)
	Subcommand string   // config: show, get, set, reset, path
	ConfigKey  string
	ConfigVal  string

	// Raw args after the command name
	Raw []string
}

const usageText = `arth - terminal client for the Arth portfolio assistant

Usage:
  arth [chat]                        Interactive chat (default)
  arth ask "message" [--image p]...  Send one message and print the reply
  arth replay <file|-> [--chunk N]   Decode a captured reply body offline
  arth upload <image>...             Upload images and print their URLs
  arth config [show|get|set|reset|path]  View or change configuration
  arth doctor                        Check configuration and connectivity
  arth version                       Show version information
  arth help                          Show this help

Global flags:
  --transport http|sse|websocket     Reply transport (overrides api.transport)
  --session ID                       Continue an existing session
  --json                             Machine-readable output
  --no-color                         Disable colors
  -q, --quiet                        Minimal output
  -v, --verbose                      Debug logging to stderr

Chat commands:
  /image <path>     Attach an image to the next message
  /followups, /f    List suggested follow-ups; /1, /2 ... sends one
  /status, /s       Show session status
  /clear, /c        Clear the conversation view
  /help, /h         Show chat commands
  /quit, /q         Exit
  Ctrl+C            Cancel the reply in progress

Examples:
  arth ask "How is my portfolio doing?"
  arth ask --image holdings.png "What do you see here?"
  arth replay captured.txt --chunk 7 --json
  arth config set api.transport sse
  ARTH_TOKEN=... arth

Configuration: ~/.arth/config.toml (ARTH_HOME overrides the directory)

Version: %s
`

// PrintUsage writes the usage text to w.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion writes version information to w.
func PrintVersion(w io.Writer) {
	fmt.Fprintf(w, "arth version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
	fmt.Fprintf(w, "  Go:         %s\n", runtime.Version())
}

// HandleVersion prints version information, as JSON in JSON mode.
func HandleVersion(w io.Writer, args Args) error {
	if args.JSON {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Write(w)
	}
	PrintVersion(w)
	return nil
}

// =============================================================================
// PARSING
// =============================================================================

// Parse parses command-line arguments (without the program name).
func Parse(argv []string) (Command, Args, error) {
	remaining, parsedArgs, err := parseGlobalFlags(argv)
	if err != nil {
		return CmdHelp, parsedArgs, err
	}

	if len(remaining) == 0 {
		return CmdChat, parsedArgs, nil
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "chat":
		return CmdChat, parsedArgs, nil

	case "ask", "a":
		parseAskArgs(&parsedArgs, remaining)
		return CmdAsk, parsedArgs, nil

	case "replay":
		if err := parseReplayArgs(&parsedArgs, remaining); err != nil {
			return CmdReplay, parsedArgs, err
		}
		return CmdReplay, parsedArgs, nil

	case "upload":
		parsedArgs.Files = NewArgParser(remaining).PositionalFrom(0)
		if len(parsedArgs.Files) == 0 {
			return CmdUpload, parsedArgs, ErrMissingArgument("image path", "arth upload holdings.png")
		}
		return CmdUpload, parsedArgs, nil

	case "config":
		parseConfigArgs(&parsedArgs, remaining)
		return CmdConfig, parsedArgs, nil

	case "doctor":
		return CmdDoctor, parsedArgs, nil

	case "version", "--version":
		return CmdVersion, parsedArgs, nil

	case "help", "-h", "--help":
		return CmdHelp, parsedArgs, nil

	default:
		reason := "unknown command"
		if s := SuggestCommand(cmd); s != "" {
			reason += fmt.Sprintf(", did you mean %q?", s)
		}
		return CmdHelp, parsedArgs, &ValidationError{Field: "command", Value: cmd, Reason: reason}
	}
}

// parseGlobalFlags extracts global flags and returns the other arguments.
func parseGlobalFlags(args []string) ([]string, Args, error) {
	var remaining []string
	var parsedArgs Args

	takeValue := func(i int, name string) (string, error) {
		if i+1 >= len(args) || strings.HasPrefix(args[i+1], "-") {
			return "", ErrMissingArgument(name, "--"+name+" VALUE")
		}
		return args[i+1], nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			remaining = append(remaining, args[i:]...)
			break
		}
		switch arg {
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "--json":
			parsedArgs.JSON = true
		case "--no-color":
			parsedArgs.NoColor = true
		case "--transport", "-t":
			v, err := takeValue(i, "transport")
			if err != nil {
				return nil, parsedArgs, err
			}
			parsedArgs.Transport = v
			i++
		case "--session":
			v, err := takeValue(i, "session")
			if err != nil {
				return nil, parsedArgs, err
			}
			parsedArgs.SessionID = v
			i++
		default:
			switch {
			case strings.HasPrefix(arg, "--transport="):
				parsedArgs.Transport = strings.TrimPrefix(arg, "--transport=")
			case strings.HasPrefix(arg, "--session="):
				parsedArgs.SessionID = strings.TrimPrefix(arg, "--session=")
			default:
				remaining = append(remaining, arg)
			}
		}
	}

	return remaining, parsedArgs, nil
}

// parseAskArgs parses the message and --image flags of ask.
func parseAskArgs(args *Args, remaining []string) {
	p := NewArgParser(remaining)
	args.Images = p.FlagValues("image", "i")
	args.Query = JoinPositionalArgs(p, 0)
}

// parseReplayArgs parses the file and --chunk flag of replay.
func parseReplayArgs(args *Args, remaining []string) error {
	p := NewArgParser(remaining)
	args.Files = p.PositionalFrom(0)
	if len(args.Files) == 0 {
		return ErrMissingArgument("file", "arth replay captured.txt --chunk 16")
	}
	if p.HasFlag("chunk") || p.HasFlag("c") {
		n, err := ParseIntWithValidation(p.Flag("chunk", "c"), "chunk")
		if err != nil {
			return ErrInvalidFormat("chunk", p.Flag("chunk", "c"), "--chunk 16")
		}
		args.ChunkSize = n
	}
	return nil
}

// parseConfigArgs parses config subcommands.
func parseConfigArgs(args *Args, remaining []string) {
	if len(remaining) > 0 {
		args.Subcommand = strings.ToLower(remaining[0])
		if len(remaining) > 1 {
			args.ConfigKey = remaining[1]
		}
		if len(remaining) > 2 {
			args.ConfigVal = strings.Join(remaining[2:], " ")
		}
	}
}
