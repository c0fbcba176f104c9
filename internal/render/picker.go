package render

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/kir-gadjello/oai/internal/conversation"
)

type sessionItem struct {
	session conversation.Session
	active  bool
}

func (s sessionItem) Title() string {
	if s.active {
		return s.session.Name + " (active)"
	}
	return s.session.Name
}

func (s sessionItem) Description() string {
	return fmt.Sprintf("%s · %d bytes", s.session.ModTime.Format("01/02 15:04"), s.session.Size)
}

func (s sessionItem) FilterValue() string { return s.session.Name }

type pickerModel struct {
	list     list.Model
	selected string
	quitting bool
}

var pickerMargin = lipgloss.NewStyle().Margin(1, 2)

func newPickerModel(sessions []conversation.Session, active string) pickerModel {
	items := make([]list.Item, len(sessions))
	for i, s := range sessions {
		items[i] = sessionItem{session: s, active: s.Name == active}
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Conversations"
	l.Styles.Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFF")).
		Background(lipgloss.Color("#7D56F4")).
		Padding(0, 1)

	return pickerModel{list: l}
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			if i, ok := m.list.SelectedItem().(sessionItem); ok {
				m.selected = i.session.Name
				return m, tea.Quit
			}
		}
	case tea.WindowSizeMsg:
		h, v := pickerMargin.GetFrameSize()
		m.list.SetSize(msg.Width-h, msg.Height-v)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m pickerModel) View() string {
	if m.quitting || m.selected != "" {
		return ""
	}
	return pickerMargin.Render(m.list.View())
}

// PickSession lets the user choose one of sessions. It returns "" when the
// picker is dismissed.
func PickSession(in io.Reader, out io.Writer, sessions []conversation.Session, active string) (string, error) {
	p := tea.NewProgram(newPickerModel(sessions, active),
		tea.WithInput(in),
		tea.WithOutput(out),
		tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return "", err
	}
	return final.(pickerModel).selected, nil
}
