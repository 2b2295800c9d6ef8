package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/lfzhong/excel-agent/internal/config"
	"github.com/lfzhong/excel-agent/internal/history"
	"github.com/lfzhong/excel-agent/internal/render"
	"github.com/lfzhong/excel-agent/internal/session"
	"github.com/lfzhong/excel-agent/internal/transport"
	"github.com/lfzhong/excel-agent/internal/voice"
)

// clientFlags are the options shared by the chat, ask and voice commands.
type clientFlags struct {
	configPath    string
	serverURL     string
	transportName string
	plain         bool
}

func (f *clientFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Config file path")
	fs.StringVar(&f.serverURL, "server", "", "Backend base URL")
	fs.StringVar(&f.transportName, "transport", "", "Delivery transport: websocket or sse")
	fs.BoolVar(&f.plain, "plain", false, "Disable colors and interactive UI")
}

// loadConfig loads the config file and applies flag overrides on top.
func (f *clientFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.serverURL != "" {
		cfg.ServerURL = f.serverURL
	}
	if f.transportName != "" {
		cfg.Transport = f.transportName
	}
	if f.plain {
		cfg.Plain = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildClient assembles the transport, history store and controller from
// config. The returned cleanup releases the transport and the store.
func buildClient(cfg *config.Config, sink session.Sink, onError func(error)) (*session.Controller, func(), error) {
	var (
		tr      transport.Transport
		closers []func()
	)
	switch cfg.Transport {
	case config.TransportSSE:
		tr = transport.NewSSE(transport.SSEConfig{URL: cfg.QueryURL()})
	default:
		ws := transport.NewWebSocket(transport.WebSocketConfig{
			URL:            cfg.WebSocketURL(),
			ReconnectDelay: time.Duration(cfg.ReconnectMs) * time.Millisecond,
		})
		tr = ws
		closers = append(closers, func() { ws.Close() })
	}

	store, err := openHistory(cfg)
	if err != nil {
		return nil, nil, err
	}
	if store != nil {
		closers = append(closers, func() { store.Close() })
	}

	ctrl := session.NewController(session.ControllerConfig{
		Transport:     tr,
		TransportName: cfg.Transport,
		Sink:          sink,
		History:       store,
		OnError:       onError,
	})
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return ctrl, cleanup, nil
}

// openHistory opens the session history store, creating the directory on
// first use. HistoryDB "off" disables persistence.
func openHistory(cfg *config.Config) (*history.Store, error) {
	if cfg.HistoryDB == "off" {
		return nil, nil
	}
	path := cfg.HistoryDB
	if path == "" {
		p, err := config.DefaultHistoryPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	return history.NewStore(path)
}

func styles(cfg *config.Config) *render.Styles {
	if cfg.Plain {
		return render.PlainStyles()
	}
	return render.DefaultStyles()
}

// printSink streams sections to a writer as they arrive: a heading when a
// section opens, its rendered body when it finalizes. Suits one-shot runs
// where repainting the terminal is not an option.
type printSink struct {
	out io.Writer
	st  *render.Styles
}

func (s *printSink) SectionOpened(sec render.Section)  {}
func (s *printSink) SectionUpdated(sec render.Section) {}

func (s *printSink) SectionFinalized(sec render.Section) {
	view := strings.TrimRight(sec.View(s.st), "\n")
	if view == "" {
		return
	}
	fmt.Fprintln(s.out, view)
	fmt.Fprintln(s.out)
}

func (s *printSink) SessionFinished(*session.Document) {}

const askUsage = `Usage: excel-agent ask [options] <question>

Asks one question, streams the answer to stdout and exits.
`

func runAsk(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cf clientFlags
	cf.register(fs)
	fs.Usage = func() {
		fmt.Fprint(stderr, askUsage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		fmt.Fprint(stderr, askUsage)
		return 1
	}

	cfg, err := cf.loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctrl, cleanup, err := buildClient(cfg, &printSink{out: stdout, st: styles(cfg)}, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer cleanup()

	return runOneShot(ctrl, stderr, func(ctx context.Context) (*session.Document, error) {
		return ctrl.Ask(ctx, question)
	})
}

const voiceUsage = `Usage: excel-agent voice [options] <audio-file>

Submits a recorded audio file as a voice question. Use "-" to read the
audio from stdin (for piping from a recorder). Recordings are capped at
the configured duration; anything past the cap is cut off, not rejected.
Voice questions require the websocket transport.
`

func runVoice(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("voice", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cf clientFlags
	cf.register(fs)
	fs.Usage = func() {
		fmt.Fprint(stderr, voiceUsage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprint(stderr, voiceUsage)
		return 1
	}

	cfg, err := cf.loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if cfg.Transport != config.TransportWebSocket {
		fmt.Fprintln(stderr, "Error: voice questions require the websocket transport")
		return 1
	}

	var src io.Reader
	if fs.Arg(0) == "-" {
		src = os.Stdin
	} else {
		file, err := os.Open(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		defer file.Close()
		src = file
	}

	audio, err := voice.Capture(context.Background(), src,
		time.Duration(cfg.VoiceCapMs)*time.Millisecond)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctrl, cleanup, err := buildClient(cfg, &printSink{out: stdout, st: styles(cfg)}, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer cleanup()

	return runOneShot(ctrl, stderr, func(ctx context.Context) (*session.Document, error) {
		return ctrl.AskVoice(ctx, audio)
	})
}

// runOneShot drives a single session to completion, cancelling on SIGINT.
func runOneShot(ctrl *session.Controller, stderr io.Writer,
	ask func(context.Context) (*session.Document, error)) int {

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := ask(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
