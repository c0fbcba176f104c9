package render

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type frameMsg Frame

type stopMsg struct{}

// liveModel replaces the previous render of the response on every frame.
// Before the first frame it shows a spinner.
type liveModel struct {
	spinner spinner.Model
	frame   Frame
	started bool
	stopped bool
	width   int
}

func newLiveModel(width int) liveModel {
	sp := spinner.New()
	sp.Spinner = spinner.Pulse
	sp.Spinner.FPS = time.Second / 10
	sp.Style = lipgloss.NewStyle().Foreground(colorResponse)
	return liveModel{spinner: sp, width: width}
}

func (m liveModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m liveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case frameMsg:
		m.frame = Frame(msg)
		m.started = true
		return m, nil
	case stopMsg:
		m.stopped = true
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case spinner.TickMsg:
		if m.started {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m liveModel) View() string {
	if m.stopped {
		return ""
	}
	if !m.started {
		return m.spinner.View() + " waiting for response..."
	}
	return ResponsePanel(m.frame, m.width)
}

// Live draws the response in place while it streams. The final frame is
// printed after the live region is torn down so long responses are never
// clipped to the terminal height.
type Live struct {
	out    io.Writer
	errOut io.Writer
	width  int

	prog *tea.Program
	done chan struct{}
}

func NewLive(out, errOut io.Writer, width int) *Live {
	return &Live{out: out, errOut: errOut, width: width}
}

func (l *Live) Prompt(info PromptInfo) {
	fmt.Fprintln(l.out, PromptPanel(info, l.width))
}

func (l *Live) Warn(msg string) {
	fmt.Fprintln(l.errOut, Warning(msg))
}

// Begin starts the live region. Input and signals stay with the caller.
func (l *Live) Begin() {
	l.prog = tea.NewProgram(newLiveModel(l.width),
		tea.WithOutput(l.out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler())
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		l.prog.Run()
	}()
}

func (l *Live) Update(f Frame) {
	if l.prog != nil {
		l.prog.Send(frameMsg(f))
	}
}

func (l *Live) stop() {
	if l.prog == nil {
		return
	}
	l.prog.Send(stopMsg{})
	<-l.done
	l.prog = nil
}

// Finish tears down the live region and prints the complete response.
func (l *Live) Finish(f Frame) {
	l.stop()
	fmt.Fprintln(l.out, ResponsePanel(f, l.width))
}

// Abort tears down the live region, keeping the last partial frame visible.
func (l *Live) Abort(last Frame) {
	l.stop()
	if last.Text != "" {
		fmt.Fprintln(l.out, ResponsePanel(last, l.width))
	}
}
