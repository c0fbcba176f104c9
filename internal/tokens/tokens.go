// Package tokens counts tokens per model and aggregates them over a
// transcript.
package tokens

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kir-gadjello/oai/internal/conversation"
	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// ErrUnsupportedModel is returned for models without a known encoding.
var ErrUnsupportedModel = errors.New("unsupported model")

// Approx is the encoding name that selects the word-count estimator.
const Approx = "approx"

// Tokenizer counts the tokens of text under model's encoding.
type Tokenizer interface {
	Count(text, model string) (int, error)
}

// prefixEncodings covers model families newer than the tokenizer tables.
var prefixEncodings = []struct {
	prefix   string
	encoding string
}{
	{"gpt-4o", "o200k_base"},
	{"gpt-4.1", "o200k_base"},
	{"gpt-4.5", "o200k_base"},
	{"gpt-5", "o200k_base"},
	{"chatgpt-4o", "o200k_base"},
	{"o1", "o200k_base"},
	{"o3", "o200k_base"},
	{"o4", "o200k_base"},
}

var loaderOnce sync.Once

// Tiktoken resolves encodings through tiktoken-go using the embedded BPE
// ranks, so counting never touches the network.
type Tiktoken struct {
	overrides map[string]string

	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
}

// NewTiktoken returns a Tokenizer. overrides maps model names to encoding
// names and takes precedence over the built-in tables.
func NewTiktoken(overrides map[string]string) *Tiktoken {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})
	if overrides == nil {
		overrides = map[string]string{}
	}
	return &Tiktoken{
		overrides: overrides,
		encodings: make(map[string]*tiktoken.Tiktoken),
	}
}

func (t *Tiktoken) encodingName(model string) string {
	if enc, ok := t.overrides[model]; ok {
		return enc
	}
	if enc, ok := tiktoken.MODEL_TO_ENCODING[model]; ok {
		return enc
	}
	for _, p := range prefixEncodings {
		if strings.HasPrefix(model, p.prefix) {
			return p.encoding
		}
	}
	for prefix, enc := range tiktoken.MODEL_PREFIX_TO_ENCODING {
		if strings.HasPrefix(model, prefix) {
			return enc
		}
	}
	return ""
}

func (t *Tiktoken) encoder(model string) (*tiktoken.Tiktoken, string, error) {
	name := t.encodingName(model)
	if name == "" {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedModel, model)
	}
	if name == Approx {
		return nil, name, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if enc, ok := t.encodings[name]; ok {
		return enc, name, nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %q (encoding %s: %v)", ErrUnsupportedModel, model, name, err)
	}
	t.encodings[name] = enc
	return enc, name, nil
}

// Count implements Tokenizer.
func (t *Tiktoken) Count(text, model string) (int, error) {
	enc, name, err := t.encoder(model)
	if err != nil {
		return 0, err
	}
	if text == "" {
		return 0, nil
	}
	if name == Approx {
		return Estimate(text), nil
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// Estimate approximates a token count by counting words.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	return len(strings.Fields(text))
}

// Accountant aggregates token counts over transcripts. Totals are
// recomputed on every call.
type Accountant struct {
	tok Tokenizer
}

func NewAccountant(tok Tokenizer) *Accountant {
	return &Accountant{tok: tok}
}

// Count returns the tokens of text under model.
func (a *Accountant) Count(text, model string) (int, error) {
	return a.tok.Count(text, model)
}

// Cumulative sums the tokens of every message content in msgs.
func (a *Accountant) Cumulative(msgs []conversation.Message, model string) (int, error) {
	total := 0
	for _, m := range msgs {
		n, err := a.tok.Count(m.Content, model)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Prompt returns the tokens of the outgoing text and the total including
// the existing history.
func (a *Accountant) Prompt(sendText string, history []conversation.Message, model string) (prompt, total int, err error) {
	prompt, err = a.tok.Count(sendText, model)
	if err != nil {
		return 0, 0, err
	}
	hist, err := a.Cumulative(history, model)
	if err != nil {
		return 0, 0, err
	}
	return prompt, prompt + hist, nil
}
