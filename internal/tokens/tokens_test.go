package tokens

import (
	"errors"
	"testing"

	"github.com/kir-gadjello/oai/internal/conversation"
	"pgregory.net/rapid"
)

func TestTiktoken_Count(t *testing.T) {
	tok := NewTiktoken(map[string]string{"local-llama": Approx, "o1-preview": "o200k_base"})

	t.Run("Empty String Is Zero", func(t *testing.T) {
		for _, model := range []string{"gpt-4", "gpt-4o", "o1-preview", "local-llama"} {
			n, err := tok.Count("", model)
			if err != nil {
				t.Fatalf("%s: unexpected error: %v", model, err)
			}
			if n != 0 {
				t.Errorf("%s: expected 0, got %d", model, n)
			}
		}
	})

	t.Run("Known Model", func(t *testing.T) {
		n, err := tok.Count("hello world", "gpt-4")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 2 {
			t.Errorf("expected 2 tokens for 'hello world' under cl100k_base, got %d", n)
		}
	})

	t.Run("Prefix Family", func(t *testing.T) {
		n, err := tok.Count("hello world", "gpt-4o-mini-2024-07-18")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n <= 0 {
			t.Errorf("expected positive count, got %d", n)
		}
	})

	t.Run("Approx Override", func(t *testing.T) {
		n, err := tok.Count("one two  three\nfour", "local-llama")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 4 {
			t.Errorf("expected 4, got %d", n)
		}
	})

	t.Run("Unsupported Model", func(t *testing.T) {
		_, err := tok.Count("hi", "mystery-model")
		if !errors.Is(err, ErrUnsupportedModel) {
			t.Fatalf("expected ErrUnsupportedModel, got %v", err)
		}
		_, err = tok.Count("", "mystery-model")
		if !errors.Is(err, ErrUnsupportedModel) {
			t.Fatalf("empty text must still report an unsupported model, got %v", err)
		}
	})

	t.Run("Special Tokens Are Plain Text", func(t *testing.T) {
		if _, err := tok.Count("<|endoftext|>", "gpt-4"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestTiktoken_NonNegative(t *testing.T) {
	tok := NewTiktoken(map[string]string{"local": Approx})
	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.String().Draw(rt, "text")
		model := rapid.SampledFrom([]string{"gpt-4", "gpt-3.5-turbo", "gpt-4o", "local"}).Draw(rt, "model")
		n, err := tok.Count(text, model)
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		if n < 0 {
			rt.Fatalf("negative count %d", n)
		}
		if text == "" && n != 0 {
			rt.Fatalf("empty text counted as %d", n)
		}
	})
}

type wordTokenizer struct{ calls int }

func (w *wordTokenizer) Count(text, model string) (int, error) {
	w.calls++
	if model == "bad" {
		return 0, ErrUnsupportedModel
	}
	return Estimate(text), nil
}

func TestAccountant(t *testing.T) {
	tok := &wordTokenizer{}
	acc := NewAccountant(tok)

	history := []conversation.Message{
		{Role: conversation.RoleUser, Content: "a b c"},
		{Role: conversation.RoleAssistant, Content: "d e"},
	}

	t.Run("Cumulative", func(t *testing.T) {
		n, err := acc.Cumulative(history, "m")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 5 {
			t.Errorf("expected 5, got %d", n)
		}
	})

	t.Run("Recomputed Each Call", func(t *testing.T) {
		before := tok.calls
		acc.Cumulative(history, "m")
		acc.Cumulative(history, "m")
		if tok.calls-before != 4 {
			t.Errorf("expected 4 tokenizer calls, got %d", tok.calls-before)
		}
	})

	t.Run("Prompt Totals", func(t *testing.T) {
		prompt, total, err := acc.Prompt("x y", history, "m")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if prompt != 2 || total != 7 {
			t.Errorf("expected prompt=2 total=7, got prompt=%d total=%d", prompt, total)
		}
	})

	t.Run("Unsupported Model", func(t *testing.T) {
		if _, _, err := acc.Prompt("x", history, "bad"); !errors.Is(err, ErrUnsupportedModel) {
			t.Errorf("expected ErrUnsupportedModel, got %v", err)
		}
	})
}
