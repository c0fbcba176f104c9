package contextset

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var gitAliases = map[string][]string{
	"staged": {"diff", "--name-only", "--cached"},
	"dirty":  {"diff", "--name-only"},
	"last":   {"diff-tree", "--no-commit-id", "--name-only", "-r", "HEAD"},
}

// defaultIgnores are skipped when walking directories.
var defaultIgnores = []string{"package-lock.json", "yarn.lock", "pnpm-lock.yaml", ".DS_Store", "node_modules", ".git"}

// Resolve expands patterns into absolute file paths, in order and without
// duplicates. A pattern may be a file, a directory (walked), a glob or one
// of the git aliases staged, dirty and last. Patterns that match nothing
// are returned as errors alongside whatever did resolve.
func Resolve(patterns []string) ([]string, []error) {
	var paths []string
	var errs []error

	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}

		if args, ok := gitAliases[pattern]; ok {
			found, err := expandGit(pattern, args)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			paths = append(paths, found...)
			continue
		}

		info, err := os.Stat(pattern)
		if err != nil {
			matches, globErr := filepath.Glob(pattern)
			if globErr == nil && len(matches) > 0 {
				for _, m := range matches {
					if fi, err := os.Stat(m); err == nil && !fi.IsDir() {
						paths = append(paths, m)
					}
				}
				continue
			}
			errs = append(errs, fmt.Errorf("cannot access %s: %w", pattern, err))
			continue
		}

		if info.IsDir() {
			filepath.Walk(pattern, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return nil
				}
				if info.IsDir() {
					if path != pattern && isIgnored(info.Name()) {
						return filepath.SkipDir
					}
					return nil
				}
				if !isIgnored(info.Name()) {
					paths = append(paths, path)
				}
				return nil
			})
			continue
		}

		paths = append(paths, pattern)
	}

	seen := make(map[string]bool)
	unique := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if !seen[abs] {
			seen[abs] = true
			unique = append(unique, abs)
		}
	}
	return unique, errs
}

func isIgnored(name string) bool {
	for _, d := range defaultIgnores {
		if name == d {
			return true
		}
	}
	return false
}

// expandGit lists the files named by a git alias, relative to the
// repository root and made absolute.
func expandGit(alias string, args []string) ([]string, error) {
	top, err := exec.Command("git", "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return nil, fmt.Errorf("not in a git repository (required for %s)", alias)
	}
	root := strings.TrimSpace(string(top))

	var stdout, stderr bytes.Buffer
	cmd := exec.Command("git", args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git command failed for %s: %v - %s", alias, err, strings.TrimSpace(stderr.String()))
	}

	var paths []string
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		p := filepath.Join(root, line)
		if _, err := os.Stat(p); err == nil {
			paths = append(paths, p)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse git output: %w", err)
	}
	return paths, nil
}
