package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lfzhong/excel-agent/internal/config"
	"github.com/lfzhong/excel-agent/internal/render"
	"github.com/lfzhong/excel-agent/internal/session"
)

const chatUsage = `Usage: excel-agent chat [options]

Starts an interactive chat session. Type a question and press enter; the
answer streams into the transcript as the backend produces it. Esc cancels
the question in flight, ctrl+c quits. With --plain, a line-oriented prompt
replaces the interactive UI.
`

func runChat(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var cf clientFlags
	cf.register(fs)
	fs.Usage = func() {
		fmt.Fprint(stderr, chatUsage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := cf.loadConfig()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if cfg.Plain {
		return runPlainChat(cfg, stdout, stderr)
	}

	events := make(chan tea.Msg, 256)
	ctrl, cleanup, err := buildClient(cfg, &uiSink{events: events}, func(err error) {
		events <- statusMsg{text: fmt.Sprintf("dropped frame: %v", err)}
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer cleanup()

	m := newChatModel(cfg, ctrl, events)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// runPlainChat is the line-oriented fallback: one prompt, one streamed
// answer, repeat until EOF.
func runPlainChat(cfg *config.Config, stdout, stderr io.Writer) int {
	ctrl, cleanup, err := buildClient(cfg, &printSink{out: stdout, st: render.PlainStyles()}, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer cleanup()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(stdout, "? ")
		if !scanner.Scan() {
			fmt.Fprintln(stdout)
			return 0
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			return 0
		}
		if _, err := ctrl.Ask(context.Background(), question); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
	}
}

// Messages flowing from the session into the UI loop.
type (
	// sectionEventMsg signals that the live document changed and the
	// transcript needs repainting.
	sectionEventMsg struct{}

	// statusMsg carries a transient status-line notice.
	statusMsg struct{ text string }

	// sessionDoneMsg ends the in-flight question.
	sessionDoneMsg struct {
		doc *session.Document
		err error
	}
)

// uiSink forwards section updates into the UI's event channel.
type uiSink struct {
	events chan<- tea.Msg
}

func (s *uiSink) SectionOpened(render.Section)    { s.events <- sectionEventMsg{} }
func (s *uiSink) SectionUpdated(render.Section)   { s.events <- sectionEventMsg{} }
func (s *uiSink) SectionFinalized(render.Section) { s.events <- sectionEventMsg{} }
func (s *uiSink) SessionFinished(*session.Document) {}

type chatModel struct {
	cfg  *config.Config
	ctrl *session.Controller
	st   *render.Styles

	events <-chan tea.Msg

	input  textinput.Model
	output viewport.Model
	spin   spinner.Model

	transcript strings.Builder
	status     string
	busy       bool
	ready      bool
	width      int
	height     int
}

func newChatModel(cfg *config.Config, ctrl *session.Controller, events <-chan tea.Msg) chatModel {
	input := textinput.New()
	input.Placeholder = "Ask about your spreadsheet..."
	input.Prompt = "? "
	input.CharLimit = 2000
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points

	return chatModel{
		cfg:    cfg,
		ctrl:   ctrl,
		st:     render.DefaultStyles(),
		events: events,
		input:  input,
		output: viewport.New(0, 0),
		spin:   sp,
		status: "Connected to " + cfg.ServerURL + " (" + cfg.Transport + ")",
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick, waitEvent(m.events))
}

// waitEvent relays the next session event into the UI loop.
func waitEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

func (m chatModel) askCmd(question string) tea.Cmd {
	return func() tea.Msg {
		doc, err := m.ctrl.Ask(context.Background(), question)
		return sessionDoneMsg{doc: doc, err: err}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.output.Width = msg.Width
		m.output.Height = msg.Height - 4
		m.input.Width = msg.Width - 4
		m.ready = true
		m.repaint()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		cmds = append(cmds, cmd)

	case sectionEventMsg:
		m.repaint()
		cmds = append(cmds, waitEvent(m.events))

	case statusMsg:
		m.status = msg.text
		cmds = append(cmds, waitEvent(m.events))

	case sessionDoneMsg:
		m.busy = false
		if msg.doc != nil {
			m.transcript.WriteString(m.renderDocument(msg.doc))
		}
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
		} else {
			m.status = "Done. Ask another question."
		}
		m.repaint()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.ctrl.Cancel()
			return m, tea.Quit
		case "esc":
			if m.busy {
				m.ctrl.Cancel()
				m.status = "Cancelling..."
			}
		case "enter":
			question := strings.TrimSpace(m.input.Value())
			if question == "" || m.busy {
				break
			}
			m.busy = true
			m.status = "Waiting for answer..."
			m.input.Reset()
			m.transcript.WriteString(m.st.Bold.Render("You: "+question) + "\n\n")
			m.repaint()
			cmds = append(cmds, m.askCmd(question))
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.output, cmd = m.output.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	if !m.busy {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// repaint rebuilds the viewport from the finished transcript plus the
// live document, keeping the latest output in view.
func (m *chatModel) repaint() {
	content := m.transcript.String()
	if doc := m.ctrl.Document(); doc != nil {
		content += doc.View(m.st)
	}
	m.output.SetContent(content)
	m.output.GotoBottom()
}

func (m *chatModel) renderDocument(doc *session.Document) string {
	view := strings.TrimRight(doc.View(m.st), "\n")
	if view == "" {
		return ""
	}
	return view + "\n\n"
}

var statusBarStyle = lipgloss.NewStyle().Faint(true)

func (m chatModel) View() string {
	if !m.ready {
		return "Starting..."
	}

	status := m.status
	if m.busy {
		status = m.spin.View() + " " + status
	}

	return m.output.View() + "\n" +
		statusBarStyle.Render(status) + "\n" +
		m.input.View()
}
