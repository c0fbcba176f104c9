// Package contextset turns the files of the Context Set into the invisible
// preamble attached to an outgoing prompt.
package contextset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// ErrContextBudgetExceeded marks files skipped once the preamble is full.
var ErrContextBudgetExceeded = errors.New("context size limit reached")

// Warning is a non-fatal problem with one context file. The file is left
// out of the preamble.
type Warning struct {
	Path string
	Err  error
}

func (w Warning) Error() string {
	return fmt.Sprintf("skipping context file %s: %v", w.Path, w.Err)
}

func (w Warning) Unwrap() error { return w.Err }

// Assembly is the result of attaching the Context Set to a prompt.
type Assembly struct {
	// SendText is what the model receives.
	SendText string
	// DisplayText is what the user sees: the prompt plus inclusion markers.
	DisplayText string
	Included    []string
	Warnings    []Warning
}

// Limits bounds the injected context. Sizes are in bytes.
type Limits struct {
	MaxFile     int
	MaxTotal    int
	Skeletonize bool
}

// Assembler reads context files fresh on every call.
type Assembler struct {
	limits Limits
	skel   *skeletonizer
	logger *slog.Logger
}

func NewAssembler(limits Limits, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Assembler{limits: limits, skel: newSkeletonizer(), logger: logger}
}

// Assemble attaches the contents of paths, in order, to prompt.
func (a *Assembler) Assemble(ctx context.Context, prompt string, paths []string) Assembly {
	var out Assembly
	var preamble strings.Builder
	var markers []string
	full := false

	for _, path := range paths {
		if full {
			out.Warnings = append(out.Warnings, Warning{Path: path, Err: ErrContextBudgetExceeded})
			continue
		}

		contents, err := a.contents(ctx, path)
		if err != nil {
			w := Warning{Path: path, Err: fmt.Errorf("%w: %w", ErrContextFileUnreadable, err)}
			a.logger.Debug("context file skipped", "path", path, "error", err)
			out.Warnings = append(out.Warnings, w)
			continue
		}

		block := "\n\n[Context from " + path + "]\n" + contents
		if a.limits.MaxTotal > 0 && preamble.Len()+len(block) > a.limits.MaxTotal {
			full = true
			out.Warnings = append(out.Warnings, Warning{Path: path, Err: ErrContextBudgetExceeded})
			continue
		}

		preamble.WriteString(block)
		markers = append(markers, "[+ "+displayPath(path)+"]")
		out.Included = append(out.Included, path)
		a.logger.Debug("context file included", "path", path, "bytes", len(contents))
	}

	if preamble.Len() == 0 {
		out.SendText = prompt
	} else {
		out.SendText = preamble.String() + "\n\n" + prompt
	}

	if len(markers) == 0 {
		out.DisplayText = prompt
	} else {
		out.DisplayText = prompt + "\n\n" + strings.Join(markers, " ")
	}
	return out
}

// contents returns the text injected for path, reduced to a skeleton or
// truncated when the file exceeds the per-file limit.
func (a *Assembler) contents(ctx context.Context, path string) (string, error) {
	limit := a.limits.MaxFile
	if limit <= 0 {
		limit = maxSkeletonSource
	}

	f, err := readFile(path, limit)
	if err != nil {
		return "", err
	}
	if !f.Oversized {
		return string(f.Content), nil
	}

	if a.limits.Skeletonize && a.skel.supports(path) && f.SizeBytes <= maxSkeletonSource {
		if sk, err := a.skeletonOf(ctx, path); err == nil && sk != "" {
			return fmt.Sprintf("[skeleton of %d bytes]\n%s", f.SizeBytes, sk), nil
		} else if err != nil {
			a.logger.Debug("skeleton failed, truncating", "path", path, "error", err)
		}
	}

	kept := trimToRune(f.Content)
	return fmt.Sprintf("%s\n[truncated %d bytes]", kept, f.SizeBytes-int64(len(kept))), nil
}

func (a *Assembler) skeletonOf(ctx context.Context, path string) (string, error) {
	data, err := readWhole(path)
	if err != nil {
		return "", err
	}
	return a.skel.skeleton(ctx, path, data)
}

// trimToRune drops a trailing partial UTF-8 sequence.
func trimToRune(b []byte) string {
	end := len(b)
	for i := 0; i < utf8.UTFMax && end-i > 0; i++ {
		if utf8.RuneStart(b[end-i-1]) {
			if !utf8.Valid(b[end-i-1:]) {
				end = end - i - 1
			}
			break
		}
	}
	return string(b[:end])
}

// displayPath shortens path relative to the working directory when possible.
func displayPath(path string) string {
	wd, err := os.Getwd()
	if err != nil {
		return path
	}
	rel, err := filepath.Rel(wd, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// Status describes one Context Set entry for listing.
type Status struct {
	Path string
	Size int64
	Err  error
}

// Inspect reports the size and readability of every path without reading
// more than a header of each.
func Inspect(paths []string) []Status {
	out := make([]Status, 0, len(paths))
	for _, p := range paths {
		st := Status{Path: p}
		f, err := readFile(p, 512)
		if err != nil {
			st.Err = err
		} else {
			st.Size = f.SizeBytes
		}
		out = append(out, st)
	}
	return out
}
