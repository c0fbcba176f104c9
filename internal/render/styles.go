// Package render draws prompts, streamed responses and transcripts in the
// terminal.
package render

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	markdown "github.com/vlanse/go-term-markdown"
	"golang.org/x/term"
)

const (
	defaultWidth = 80
	mdPadding    = 2
)

var (
	colorPrompt   = lipgloss.Color("42")
	colorResponse = lipgloss.Color("39")
	colorError    = lipgloss.Color("196")
	colorWarn     = lipgloss.Color("214")
	colorSubtle   = lipgloss.Color("245")

	titleStyle    = lipgloss.NewStyle().Bold(true)
	subtitleStyle = lipgloss.NewStyle().Foreground(colorSubtle)
	warnStyle     = lipgloss.NewStyle().Foreground(colorWarn)
)

// PromptInfo is shown before any response text exists.
type PromptInfo struct {
	Model        string
	Session      string
	DisplayText  string
	PromptTokens int
	TotalTokens  int
	Estimated    bool
}

// Frame is one render of the accumulated response.
type Frame struct {
	Text           string
	ResponseTokens int
	TotalTokens    int
	Estimated      bool
}

// Width returns the width of the terminal on stdout.
func Width() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

// Markdown renders text as ANSI-styled markdown wrapped to width.
func Markdown(text string, width int) string {
	if width <= 0 {
		width = defaultWidth
	}
	out := markdown.Render(text, width, mdPadding)
	return strings.TrimRight(string(out), " \t\r\n")
}

// Panel draws body in a rounded border of the given colour, headed by title
// and followed by an optional subtitle line.
func Panel(title, subtitle, body string, color lipgloss.Color, width int) string {
	if width <= 0 {
		width = defaultWidth
	}
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(0, 1).
		Width(width - 2)

	var b strings.Builder
	b.WriteString(titleStyle.Foreground(color).Render(title))
	b.WriteString("\n")
	b.WriteString(body)
	if subtitle != "" {
		b.WriteString("\n")
		b.WriteString(subtitleStyle.Render(subtitle))
	}
	return style.Render(b.String())
}

func tokenLabel(n int, estimated bool) string {
	if estimated {
		return fmt.Sprintf("~%d tok", n)
	}
	return fmt.Sprintf("%d tok", n)
}

// PromptPanel renders the prompt with model, session and token counts.
func PromptPanel(info PromptInfo, width int) string {
	sub := fmt.Sprintf("%s · %s · prompt %s · total %s",
		info.Model, info.Session,
		tokenLabel(info.PromptTokens, info.Estimated),
		tokenLabel(info.TotalTokens, info.Estimated))
	return Panel("oai prompt", sub, ">> "+info.DisplayText, colorPrompt, width)
}

// ResponsePanel renders a frame of the response as markdown.
func ResponsePanel(f Frame, width int) string {
	sub := fmt.Sprintf("response %s · total %s",
		tokenLabel(f.ResponseTokens, f.Estimated),
		tokenLabel(f.TotalTokens, f.Estimated))
	return Panel("oai response", sub, Markdown(f.Text, width-4), colorResponse, width)
}

// ErrorPanel renders err in the error colour.
func ErrorPanel(err error, width int) string {
	return Panel("oai error", "", err.Error(), colorError, width)
}

// Warning renders a single warning line.
func Warning(msg string) string {
	return warnStyle.Render("warning: " + msg)
}
