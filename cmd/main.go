package main

import (
	"fmt"
	"io"
	"os"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.1.0" ./cmd
var Version = "dev"

const usage = `excel-agent - ask questions about your spreadsheets in plain language

Usage:
  excel-agent <command> [options]

Commands:
  chat          Start an interactive chat session (default)
  ask <question>       Ask one question and exit
  voice <audio-file>   Submit a recorded audio question
  history list         List recent sessions
  history show <chat-id>    Replay a past session
  history delete <chat-id>  Delete a past session
  check         Probe backend health and exit
  version       Print version

Options shared by chat, ask and voice:
  --config <path>      Config file (default: ~/.excel-agent/config.toml)
  --server <url>       Backend base URL (overrides config)
  --transport <name>   websocket or sse (overrides config)
  --plain              Disable colors and interactive UI

Run 'excel-agent <command> --help' for more information on a command.
`

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runChat(nil, stdout, stderr)
	}

	switch args[1] {
	case "chat":
		return runChat(args[2:], stdout, stderr)
	case "ask":
		return runAsk(args[2:], stdout, stderr)
	case "voice":
		return runVoice(args[2:], stdout, stderr)
	case "history":
		if len(args) < 3 {
			fmt.Fprintln(stdout, "Usage: excel-agent history <list|show|delete>")
			return 1
		}
		switch args[2] {
		case "list":
			return runHistoryList(args[3:], stdout, stderr)
		case "show":
			return runHistoryShow(args[3:], stdout, stderr)
		case "delete":
			return runHistoryDelete(args[3:], stdout, stderr)
		default:
			fmt.Fprintf(stderr, "Unknown history command: %s\n", args[2])
			return 1
		}
	case "check":
		return runCheck(args[2:], stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "excel-agent %s\n", Version)
		return 0
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		fmt.Fprint(stdout, usage)
		return 1
	}
}
