package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kir-gadjello/oai/internal/contextset"
	"github.com/kir-gadjello/oai/internal/runner"
)

var errNoPrompt = errors.New("no prompt given")

type SendOptions struct {
	Words []string
	// Model overrides the active model for this turn only.
	Model string
	Dry   bool
}

// Send runs one turn against the active conversation.
func (a *App) Send(ctx context.Context, o SendOptions) error {
	st, err := a.state.Load()
	if err != nil {
		return err
	}

	prompt, err := a.prompt(o.Words)
	if err != nil {
		return err
	}

	model := st.Model
	if o.Model != "" {
		model = o.Model
	}

	maxFile, maxTotal, skeletonize := a.opts.Settings.ContextLimits()
	asm := contextset.NewAssembler(contextset.Limits{
		MaxFile:     maxFile,
		MaxTotal:    maxTotal,
		Skeletonize: skeletonize,
	}, a.logger)

	var arch runner.Archiver
	if !o.Dry {
		if ar, err := a.openArchive(); err != nil {
			a.warn("archive unavailable: " + err.Error())
		} else {
			arch = ar
		}
	}

	r := runner.New(runner.Config{
		Sessions:  a.sessions,
		Assembler: asm,
		Tokens:    a.accounts,
		Completer: a.opts.Completer,
		Display:   a.display(),
		Archive:   arch,
		Logger:    a.logger,
		Refresh:   a.opts.Settings.RefreshInterval(),
	})

	res, err := r.Run(ctx, runner.Turn{
		Model:   model,
		Session: st.Conversation,
		Prompt:  prompt,
		Context: st.Context,
		Dry:     o.Dry,
	})
	if err != nil {
		return err
	}

	if o.Dry {
		a.printf("--- request: model %s, %d messages, prompt %d tok, total %d tok ---\n%s\n",
			model, len(res.History), res.PromptTokens, res.TotalTokens, res.SendText)
	}
	return nil
}

// prompt joins the words and appends piped stdin as its own paragraph.
func (a *App) prompt(words []string) (string, error) {
	prompt := strings.Join(words, " ")

	if a.opts.StdinPiped {
		data, err := io.ReadAll(a.opts.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		if piped := strings.TrimRight(string(data), "\r\n"); strings.TrimSpace(piped) != "" {
			if prompt == "" {
				prompt = piped
			} else {
				prompt += "\n\n" + piped
			}
		}
	}

	if strings.TrimSpace(prompt) == "" {
		return "", errNoPrompt
	}
	return prompt, nil
}
