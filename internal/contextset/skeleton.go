package contextset

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// maxSkeletonSource bounds how much source is parsed for a skeleton.
const maxSkeletonSource = 8 << 20

const (
	goOutline = `
(function_declaration name: (identifier) @name) @def
(method_declaration name: (field_identifier) @name) @def
(type_declaration (type_spec name: (type_identifier) @name)) @def
`
	pyOutline = `
(function_definition name: (identifier) @name) @def
(class_definition name: (identifier) @name) @def
`
	jsOutline = `
(function_declaration name: (identifier) @name) @def
(class_declaration name: (identifier) @name) @def
(variable_declarator name: (identifier) @name value: [(arrow_function) (function_expression)]) @def
`
	tsOutline = `
(function_declaration name: (identifier) @name) @def
(class_declaration name: (type_identifier) @name) @def
(interface_declaration name: (type_identifier) @name) @def
(variable_declarator name: (identifier) @name value: [(arrow_function) (function_expression)]) @def
`
)

// outline describes how definitions of one language are found.
type outline struct {
	lang  *sitter.Language
	query string

	once     sync.Once
	compiled *sitter.Query
	err      error
}

func (o *outline) compile() (*sitter.Query, error) {
	o.once.Do(func() {
		o.compiled, o.err = sitter.NewQuery([]byte(o.query), o.lang)
	})
	return o.compiled, o.err
}

// skeletonizer reduces oversized source files to one line per top-level
// definition.
type skeletonizer struct {
	byExt map[string]*outline
}

func newSkeletonizer() *skeletonizer {
	js := &outline{lang: javascript.GetLanguage(), query: jsOutline}
	ts := &outline{lang: typescript.GetLanguage(), query: tsOutline}
	return &skeletonizer{byExt: map[string]*outline{
		".go":  {lang: golang.GetLanguage(), query: goOutline},
		".py":  {lang: python.GetLanguage(), query: pyOutline},
		".js":  js,
		".jsx": js,
		".ts":  ts,
		".tsx": ts,
	}}
}

func (s *skeletonizer) supports(path string) bool {
	_, ok := s.byExt[filepath.Ext(path)]
	return ok
}

// skeleton renders "line: signature" for every definition in content, in
// source order.
func (s *skeletonizer) skeleton(ctx context.Context, path string, content []byte) (string, error) {
	o, ok := s.byExt[filepath.Ext(path)]
	if !ok {
		return "", fmt.Errorf("no outline for %s", filepath.Ext(path))
	}
	query, err := o.compile()
	if err != nil {
		return "", fmt.Errorf("compiling outline query for %s: %w", filepath.Ext(path), err)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(o.lang)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", path, err)
	}
	defer tree.Close()

	cursor := sitter.NewQueryCursor()
	defer cursor.Close()
	cursor.Exec(query, tree.RootNode())

	var lines []string
	for {
		match, ok := cursor.NextMatch()
		if !ok {
			break
		}
		var def *sitter.Node
		named := false
		for _, c := range match.Captures {
			switch query.CaptureNameForId(c.Index) {
			case "def":
				def = c.Node
			case "name":
				named = c.Node.Content(content) != ""
			}
		}
		if def == nil || !named {
			continue
		}
		if sig := headerLine(content, def); sig != "" {
			lines = append(lines, fmt.Sprintf("%d: %s", def.StartPoint().Row+1, sig))
		}
	}
	return strings.Join(lines, "\n"), nil
}

// headerLine returns the first line of a definition with its body opener
// removed.
func headerLine(content []byte, node *sitter.Node) string {
	start, end := node.StartByte(), node.EndByte()
	if end > uint32(len(content)) || start >= end {
		return ""
	}
	src := content[start:end]
	if i := bytes.IndexByte(src, '\n'); i >= 0 {
		src = src[:i]
	}
	if i := bytes.IndexByte(src, '{'); i >= 0 {
		src = src[:i]
	}
	return strings.TrimSpace(string(src))
}
