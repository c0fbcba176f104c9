package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kir-gadjello/oai/internal/completion"
	"github.com/kir-gadjello/oai/internal/config"
	"github.com/kir-gadjello/oai/internal/render"
)

// Init creates the state record and the default conversation.
func (a *App) Init(force bool) error {
	st, created, err := a.state.Init(force)
	if err != nil {
		return err
	}
	if !created {
		a.printf("Config already exists at %s (use --force to reset it)\n", a.opts.Paths.State)
		return nil
	}
	a.printf("Initialized %s (model %s, conversation %s)\n",
		a.opts.Paths.State, st.Model, a.sessions.Name(st.Conversation))
	return nil
}

// Clear deletes the named conversation, or the active one when name is
// empty. Clearing an absent conversation only reports it.
func (a *App) Clear(ctx context.Context, name string) error {
	if name == "" {
		st, err := a.state.Load()
		if err != nil {
			return err
		}
		name = st.Conversation
	}

	existed, err := a.sessions.Delete(name)
	if err != nil {
		return err
	}
	display := a.sessions.Name(name)
	if !existed {
		a.printf("No conversation %s to clear\n", display)
		return nil
	}
	a.forget(ctx, display)
	a.printf("Cleared conversation %s\n", display)
	return nil
}

// forget drops archived turns of a deleted conversation.
func (a *App) forget(ctx context.Context, names ...string) {
	ar, err := a.openArchive()
	if err != nil {
		a.logger.Debug("archive unavailable, keeping archived turns", "error", err)
		return
	}
	for _, n := range names {
		if _, err := ar.DeleteSession(ctx, n); err != nil {
			a.warn(fmt.Sprintf("removing archived turns of %s: %v", n, err))
		}
	}
}

func (a *App) SetModel(name string) error {
	st, err := a.state.SetModel(strings.TrimSpace(name))
	if err != nil {
		return err
	}
	a.printf("Model set to %s\n", st.Model)
	return nil
}

// Use makes name the active conversation, creating it if needed. Without a
// name an interactive picker is shown.
func (a *App) Use(name string) error {
	if name == "" {
		picked, err := a.pick()
		if err != nil || picked == "" {
			return err
		}
		name = picked
	}

	st, created, err := a.state.SetConversation(name)
	if err != nil {
		return err
	}
	if created {
		a.printf("Switched to new conversation %s\n", a.sessions.Name(st.Conversation))
	} else {
		a.printf("Switched to conversation %s\n", a.sessions.Name(st.Conversation))
	}
	return nil
}

func (a *App) pick() (string, error) {
	if !a.opts.Interactive {
		return "", errors.New("conversation name required")
	}
	st, err := a.state.Load()
	if err != nil {
		return "", err
	}
	sessions, err := a.sessions.List()
	if err != nil {
		return "", err
	}
	if len(sessions) == 0 {
		return "", errors.New("no conversations yet")
	}
	return render.PickSession(a.opts.Stdin, a.opts.Stdout, sessions, a.sessions.Name(st.Conversation))
}

// History prints the active transcript.
func (a *App) History(raw bool) error {
	st, err := a.state.Load()
	if err != nil {
		return err
	}
	msgs, err := a.sessions.Load(st.Conversation)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		a.printf("Conversation %s is empty\n", a.sessions.Name(st.Conversation))
		return nil
	}
	a.printf("%s", render.Transcript(msgs, !raw && a.opts.Interactive, a.opts.Width))
	return nil
}

func (a *App) Which() error {
	st, err := a.state.Load()
	if err != nil {
		return err
	}
	a.printf("%s\n", a.sessions.Name(st.Conversation))
	return nil
}

// List prints every conversation, marking the active one.
func (a *App) List() error {
	st, err := a.state.Load()
	if err != nil {
		return err
	}
	sessions, err := a.sessions.List()
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		a.printf("No conversations\n")
		return nil
	}
	active := a.sessions.Name(st.Conversation)
	for _, s := range sessions {
		mark := " "
		if s.Name == active {
			mark = "*"
		}
		a.printf("%s %-24s %s %8d bytes\n", mark, s.Name, s.ModTime.Format("2006-01-02 15:04"), s.Size)
	}
	return nil
}

// ClearAll deletes every conversation and makes the default one active.
func (a *App) ClearAll(ctx context.Context) error {
	if _, err := a.state.Load(); err != nil {
		return err
	}
	removed, err := a.sessions.ClearAll()
	if err != nil {
		return err
	}
	st, err := a.state.Update(func(st *config.State) error {
		st.Conversation = a.state.Defaults().Conversation
		return nil
	})
	if err != nil {
		return err
	}
	a.forget(ctx, removed...)
	a.printf("Deleted %d conversation(s); active conversation is %s\n", len(removed), a.sessions.Name(st.Conversation))
	return nil
}

// Tokens prints per-message and cumulative token counts of the active
// conversation.
func (a *App) Tokens() error {
	st, err := a.state.Load()
	if err != nil {
		return err
	}
	msgs, err := a.sessions.Load(st.Conversation)
	if err != nil {
		return err
	}
	total := 0
	for i, m := range msgs {
		n, err := a.accounts.Count(m.Content, st.Model)
		if err != nil {
			return err
		}
		total += n
		a.printf("%3d %-9s %7d\n", i+1, m.Role, n)
	}
	a.printf("total %d tokens (%s, %d messages)\n", total, st.Model, len(msgs))
	return nil
}

// Search queries the archive of past turns.
func (a *App) Search(ctx context.Context, query string) error {
	ar, err := a.openArchive()
	if err != nil {
		return err
	}
	hits, err := ar.Search(ctx, query, 50)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		a.printf("No matches\n")
		return nil
	}
	for _, h := range hits {
		a.printf("%s  %-10s %-9s %s\n    %s\n",
			h.Timestamp.Format("2006-01-02 15:04"), h.Session, h.Role, shortID(h.TurnID),
			strings.ReplaceAll(h.Preview, "\n", " "))
	}
	return nil
}

// Models lists the models offered by the endpoint of the active model.
func (a *App) Models(ctx context.Context) error {
	st, err := a.state.Load()
	if err != nil {
		return err
	}
	lister, ok := a.opts.Completer.(interface {
		Models(ctx context.Context, model string) ([]completion.Model, error)
	})
	if !ok {
		return errors.New("model listing is not supported by this backend")
	}
	models, err := lister.Models(ctx, st.Model)
	if err != nil {
		return err
	}
	for _, m := range models {
		mark := " "
		if m.ID == st.Model {
			mark = "*"
		}
		a.printf("%s %s\n", mark, m.ID)
	}
	return nil
}

// shortID abbreviates a turn id for listings.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
