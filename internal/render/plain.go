package render

import (
	"fmt"
	"io"
	"strings"
)

// Plain writes the response as unformatted text when stdout is not a
// terminal. Only text not yet written is emitted on each frame.
type Plain struct {
	out     io.Writer
	errOut  io.Writer
	written int
}

func NewPlain(out, errOut io.Writer) *Plain {
	return &Plain{out: out, errOut: errOut}
}

// Prompt goes to errOut so stdout carries only the response.
func (p *Plain) Prompt(info PromptInfo) {
	fmt.Fprintf(p.errOut, "[%s] Prompt:\n>> %s\n\n", info.Model, info.DisplayText)
}

func (p *Plain) Warn(msg string) {
	fmt.Fprintln(p.errOut, "warning: "+msg)
}

func (p *Plain) Begin() {
	p.written = 0
}

func (p *Plain) Update(f Frame) {
	if len(f.Text) > p.written {
		io.WriteString(p.out, f.Text[p.written:])
		p.written = len(f.Text)
	}
}

func (p *Plain) Finish(f Frame) {
	p.Update(f)
	if !strings.HasSuffix(f.Text, "\n") {
		io.WriteString(p.out, "\n")
	}
}

func (p *Plain) Abort(last Frame) {
	if p.written > 0 {
		io.WriteString(p.out, "\n")
	}
}
