// Package runner drives one conversation turn: it assembles the prompt,
// streams the completion, renders it live and persists the transcript only
// when the stream ends cleanly.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/kir-gadjello/oai/internal/completion"
	"github.com/kir-gadjello/oai/internal/contextset"
	"github.com/kir-gadjello/oai/internal/conversation"
	"github.com/kir-gadjello/oai/internal/render"
	"github.com/kir-gadjello/oai/internal/tokens"
)

// DefaultRefresh is the render cadence when none is configured.
const DefaultRefresh = time.Second / 6

type State int

const (
	Idle State = iota
	Assembling
	Sending
	Streaming
	Finalizing
	Persisted
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Assembling:
		return "assembling"
	case Sending:
		return "sending"
	case Streaming:
		return "streaming"
	case Finalizing:
		return "finalizing"
	case Persisted:
		return "persisted"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Completer submits a message list and streams back fragments.
type Completer interface {
	Stream(ctx context.Context, model string, msgs []conversation.Message) (<-chan completion.Event, error)
}

type Assembler interface {
	Assemble(ctx context.Context, prompt string, paths []string) contextset.Assembly
}

// Display shows the turn. Update may be called many times between Begin
// and exactly one of Finish or Abort.
type Display interface {
	Prompt(render.PromptInfo)
	Warn(msg string)
	Begin()
	Update(render.Frame)
	Finish(render.Frame)
	Abort(last render.Frame)
}

// Archiver records completed turns. Failures are reported, never fatal.
type Archiver interface {
	RecordTurn(ctx context.Context, session, model string, user, assistant conversation.Message) error
}

type Config struct {
	Sessions  *conversation.Store
	Assembler Assembler
	Tokens    *tokens.Accountant
	Completer Completer
	Display   Display
	Archive   Archiver
	Logger    *slog.Logger
	Refresh   time.Duration
}

// Turn is the input of one invocation.
type Turn struct {
	Model   string
	Session string
	Prompt  string
	Context []string
	// Dry stops after the prompt is assembled and shown.
	Dry bool
}

type Result struct {
	SendText     string
	Response     string
	History      []conversation.Message
	PromptTokens int
	TotalTokens  int
}

type Runner struct {
	cfg   Config
	state State
	// estimated is set once the model's tokenizer is unknown.
	estimated bool
}

func New(cfg Config) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Refresh <= 0 {
		cfg.Refresh = DefaultRefresh
	}
	return &Runner{cfg: cfg}
}

func (r *Runner) State() State { return r.state }

func (r *Runner) transition(to State) {
	r.cfg.Logger.Debug("turn state", "from", r.state, "to", to)
	r.state = to
}

// count falls back to the word estimate for models without a tokenizer.
func (r *Runner) count(text, model string) int {
	if !r.estimated {
		n, err := r.cfg.Tokens.Count(text, model)
		if err == nil {
			return n
		}
		if !errors.Is(err, tokens.ErrUnsupportedModel) {
			r.cfg.Logger.Warn("token count failed", "model", model, "error", err)
		}
		r.estimated = true
		r.cfg.Display.Warn(fmt.Sprintf("no tokenizer for %s, token counts are estimates", model))
	}
	return tokens.Estimate(text)
}

func (r *Runner) countAll(msgs []conversation.Message, model string) int {
	total := 0
	for _, m := range msgs {
		total += r.count(m.Content, model)
	}
	return total
}

// Run executes one turn. On any failure after Sending the persisted
// conversation is left exactly as it was.
func (r *Runner) Run(ctx context.Context, turn Turn) (Result, error) {
	r.state = Idle
	r.estimated = false
	log := r.cfg.Logger.With("session", turn.Session, "model", turn.Model)

	r.transition(Assembling)
	history, err := r.cfg.Sessions.Load(turn.Session)
	if err != nil {
		r.transition(Failed)
		return Result{}, err
	}

	asm := r.cfg.Assembler.Assemble(ctx, turn.Prompt, turn.Context)
	for _, w := range asm.Warnings {
		r.cfg.Display.Warn(w.Error())
	}

	res := Result{SendText: asm.SendText}
	res.PromptTokens = r.count(asm.SendText, turn.Model)
	base := res.PromptTokens + r.countAll(history, turn.Model)
	res.TotalTokens = base

	r.cfg.Display.Prompt(render.PromptInfo{
		Model:        turn.Model,
		Session:      r.cfg.Sessions.Name(turn.Session),
		DisplayText:  asm.DisplayText,
		PromptTokens: res.PromptTokens,
		TotalTokens:  res.TotalTokens,
		Estimated:    r.estimated,
	})

	user := conversation.Message{Role: conversation.RoleUser, Content: asm.SendText}
	outgoing := make([]conversation.Message, 0, len(history)+2)
	outgoing = append(outgoing, history...)
	outgoing = append(outgoing, user)
	res.History = outgoing

	if turn.Dry {
		r.transition(Idle)
		return res, nil
	}

	r.transition(Sending)
	ch, err := r.cfg.Completer.Stream(ctx, turn.Model, outgoing)
	if err != nil {
		r.transition(Failed)
		return res, err
	}

	r.cfg.Display.Begin()
	text, err := r.receive(ctx, ch, turn.Model, base)
	if err != nil {
		r.cfg.Display.Abort(r.frame(text, turn.Model, base))
		r.transition(Failed)
		log.Debug("turn failed", "error", err, "received_bytes", len(text))
		return res, err
	}

	r.transition(Finalizing)
	final := r.frame(text, turn.Model, base)
	r.cfg.Display.Finish(final)

	assistant := conversation.Message{Role: conversation.RoleAssistant, Content: text}
	outgoing = append(outgoing, assistant)
	if err := r.cfg.Sessions.Save(turn.Session, outgoing); err != nil {
		r.transition(Failed)
		return res, fmt.Errorf("saving conversation: %w", err)
	}
	r.transition(Persisted)

	res.Response = text
	res.History = outgoing
	res.TotalTokens = final.TotalTokens

	if r.cfg.Archive != nil {
		if err := r.cfg.Archive.RecordTurn(ctx, r.cfg.Sessions.Name(turn.Session), turn.Model, user, assistant); err != nil {
			r.cfg.Display.Warn("archiving turn: " + err.Error())
		}
	}
	return res, nil
}

func (r *Runner) frame(text, model string, base int) render.Frame {
	n := r.count(text, model)
	return render.Frame{Text: text, ResponseTokens: n, TotalTokens: base + n, Estimated: r.estimated}
}

// receive accumulates fragments in arrival order. Renders are throttled to
// the refresh interval and always show the latest text.
func (r *Runner) receive(ctx context.Context, ch <-chan completion.Event, model string, base int) (string, error) {
	ticker := time.NewTicker(r.cfg.Refresh)
	defer ticker.Stop()

	var acc strings.Builder
	dirty := false

	for {
		select {
		case <-ctx.Done():
			return acc.String(), fmt.Errorf("turn cancelled: %w", ctx.Err())

		case ev, ok := <-ch:
			if !ok {
				return acc.String(), nil
			}
			if ev.Err != nil {
				return acc.String(), ev.Err
			}
			if ev.Text == "" {
				continue
			}
			if r.state == Sending {
				r.transition(Streaming)
			}
			acc.WriteString(ev.Text)
			dirty = true

		case <-ticker.C:
			if dirty {
				r.cfg.Display.Update(r.frame(acc.String(), model, base))
				dirty = false
			}
		}
	}
}
