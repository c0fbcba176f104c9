package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/kir-gadjello/oai/internal/conversation"
)

func TestPlain(t *testing.T) {
	var out, errOut bytes.Buffer
	p := NewPlain(&out, &errOut)

	p.Prompt(PromptInfo{Model: "gpt-4o", DisplayText: "hello"})
	p.Warn("skipped x")
	p.Begin()
	p.Update(Frame{Text: "hi"})
	p.Update(Frame{Text: "hi"})
	p.Update(Frame{Text: "hi there"})
	p.Finish(Frame{Text: "hi there!"})

	if got := out.String(); got != "hi there!\n" {
		t.Errorf("expected stdout %q, got %q", "hi there!\n", got)
	}
	if !strings.Contains(errOut.String(), ">> hello") {
		t.Errorf("prompt should go to stderr, got %q", errOut.String())
	}
	if !strings.Contains(errOut.String(), "warning: skipped x") {
		t.Errorf("warning missing from stderr: %q", errOut.String())
	}
}

func TestPlain_Abort(t *testing.T) {
	var out bytes.Buffer
	p := NewPlain(&out, &bytes.Buffer{})
	p.Begin()
	p.Update(Frame{Text: "partial"})
	p.Abort(Frame{Text: "partial"})
	if out.String() != "partial\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestLiveModel(t *testing.T) {
	m := newLiveModel(100)

	t.Run("Spinner Before First Frame", func(t *testing.T) {
		if !strings.Contains(m.View(), "waiting for response") {
			t.Errorf("expected waiting view, got %q", m.View())
		}
	})

	t.Run("Frame Replaces Render", func(t *testing.T) {
		next, _ := m.Update(frameMsg(Frame{Text: "first", ResponseTokens: 1, TotalTokens: 5}))
		next, _ = next.Update(frameMsg(Frame{Text: "second", ResponseTokens: 2, TotalTokens: 6}))
		view := next.View()
		if strings.Contains(view, "first") {
			t.Errorf("stale frame still rendered: %q", view)
		}
		if !strings.Contains(view, "second") || !strings.Contains(view, "response 2 tok") {
			t.Errorf("latest frame not rendered: %q", view)
		}
	})

	t.Run("Stop Clears View", func(t *testing.T) {
		next, cmd := m.Update(stopMsg{})
		if next.View() != "" {
			t.Errorf("expected empty view after stop, got %q", next.View())
		}
		if cmd == nil {
			t.Fatal("expected quit command")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("expected tea.QuitMsg")
		}
	})
}

func TestLive_FinishPrintsCompleteText(t *testing.T) {
	var out bytes.Buffer
	l := NewLive(&out, &bytes.Buffer{}, 100)
	l.Begin()
	l.Update(Frame{Text: "partial"})
	done := make(chan struct{})
	go func() {
		l.Finish(Frame{Text: "the complete answer", ResponseTokens: 3, TotalTokens: 9})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Finish did not return")
	}
	if !strings.Contains(out.String(), "the complete answer") {
		t.Errorf("final render missing complete text: %q", out.String())
	}
}

func TestPanels(t *testing.T) {
	prompt := PromptPanel(PromptInfo{
		Model: "gpt-4o", Session: "default", DisplayText: "hello",
		PromptTokens: 3, TotalTokens: 10,
	}, 120)
	for _, want := range []string{"oai prompt", "gpt-4o", "default", "prompt 3 tok", "total 10 tok", ">> hello"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt panel missing %q:\n%s", want, prompt)
		}
	}

	est := PromptPanel(PromptInfo{Model: "local", PromptTokens: 3, Estimated: true}, 120)
	if !strings.Contains(est, "~3 tok") {
		t.Errorf("estimated counts should be marked:\n%s", est)
	}

	errPanel := ErrorPanel(errors.New("boom"), 80)
	if !strings.Contains(errPanel, "oai error") || !strings.Contains(errPanel, "boom") {
		t.Errorf("unexpected error panel:\n%s", errPanel)
	}
}

func TestTranscript(t *testing.T) {
	msgs := []conversation.Message{
		{Role: conversation.RoleUser, Content: "hello\n"},
		{Role: conversation.RoleAssistant, Content: "hi there"},
	}

	raw := Transcript(msgs, false, 80)
	want := "### USER:\nhello\n\n### ASSISTANT:\nhi there\n\n"
	if raw != want {
		t.Errorf("raw transcript mismatch:\nwant %q\ngot  %q", want, raw)
	}

	rich := Transcript(msgs, true, 100)
	if !strings.Contains(rich, "USER #1") || !strings.Contains(rich, "ASSISTANT #2") {
		t.Errorf("rich transcript missing headers:\n%s", rich)
	}
}

func TestPickerModel(t *testing.T) {
	sessions := []conversation.Session{
		{Name: "default", ModTime: time.Now()},
		{Name: "work", ModTime: time.Now()},
	}

	t.Run("Enter Selects", func(t *testing.T) {
		var m tea.Model = newPickerModel(sessions, "work")
		m, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
		m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
		if got := m.(pickerModel).selected; got != "work" {
			t.Errorf("expected work, got %q", got)
		}
		if cmd == nil {
			t.Error("expected quit command")
		}
	})

	t.Run("Escape Dismisses", func(t *testing.T) {
		var m tea.Model = newPickerModel(sessions, "")
		m, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
		pm := m.(pickerModel)
		if !pm.quitting || pm.selected != "" {
			t.Errorf("expected dismissal, got %+v", pm)
		}
	})

	t.Run("Active Marked", func(t *testing.T) {
		item := sessionItem{session: sessions[1], active: true}
		if item.Title() != "work (active)" {
			t.Errorf("unexpected title %q", item.Title())
		}
	})
}
