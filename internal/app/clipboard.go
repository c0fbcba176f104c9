package app

import (
	"fmt"

	"github.com/kir-gadjello/oai/internal/codeblock"
	"github.com/kir-gadjello/oai/internal/conversation"
)

func (a *App) lastAssistant() (conversation.Message, error) {
	st, err := a.state.Load()
	if err != nil {
		return conversation.Message{}, err
	}
	msgs, err := a.sessions.Load(st.Conversation)
	if err != nil {
		return conversation.Message{}, err
	}
	return conversation.LastAssistant(msgs)
}

// CopyBlock copies code block n of the last assistant message.
func (a *App) CopyBlock(n int) error {
	msg, err := a.lastAssistant()
	if err != nil {
		return err
	}
	block, err := codeblock.Fetch(msg.Content, n)
	if err != nil {
		return err
	}
	if err := a.opts.Clipboard.WriteAll(block.Code); err != nil {
		return fmt.Errorf("copying to clipboard: %w", err)
	}
	a.printf("Copied block %d (%s, %d bytes) to clipboard\n", block.Number, block.Language, len(block.Code))
	return nil
}

// CopyLast copies the whole last assistant message.
func (a *App) CopyLast() error {
	msg, err := a.lastAssistant()
	if err != nil {
		return err
	}
	if err := a.opts.Clipboard.WriteAll(msg.Content); err != nil {
		return fmt.Errorf("copying to clipboard: %w", err)
	}
	a.printf("Copied last response (%d bytes) to clipboard\n", len(msg.Content))
	return nil
}
