// Package codeblock finds fenced code blocks in markdown text.
package codeblock

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultLanguage is reported for fences without a language tag.
const DefaultLanguage = "plaintext"

// ErrBlockIndexOutOfRange is returned by Fetch for a number outside 1..N.
var ErrBlockIndexOutOfRange = errors.New("code block index out of range")

// Block is one fenced region. Number is 1-based in order of appearance.
type Block struct {
	Language string
	Code     string
	Number   int
}

// fenceRe matches ```lang\n...``` non-greedily across newlines. The rest of
// the opening line after the language (info string, \r) is skipped. Fences
// do not nest.
var fenceRe = regexp.MustCompile("(?s)```([\\w+#.-]*)[^\\n]*\\n(.*?)```")

// Extract returns every block in content.
func Extract(content string) []Block {
	matches := fenceRe.FindAllStringSubmatch(content, -1)
	blocks := make([]Block, 0, len(matches))
	for i, m := range matches {
		lang := m[1]
		if lang == "" {
			lang = DefaultLanguage
		}
		blocks = append(blocks, Block{
			Language: lang,
			Code:     strings.TrimSpace(m[2]),
			Number:   i + 1,
		})
	}
	return blocks
}

// Fetch returns block n of content.
func Fetch(content string, n int) (Block, error) {
	blocks := Extract(content)
	if n < 1 || n > len(blocks) {
		return Block{}, fmt.Errorf("%w: %d (found %d)", ErrBlockIndexOutOfRange, n, len(blocks))
	}
	return blocks[n-1], nil
}
