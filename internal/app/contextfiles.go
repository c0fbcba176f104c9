package app

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/kir-gadjello/oai/internal/config"
	"github.com/kir-gadjello/oai/internal/contextset"
)

// Add resolves patterns and appends new files to the Context Set.
// Patterns that match nothing are reported; if nothing at all resolves the
// command fails.
func (a *App) Add(patterns []string) error {
	paths, errs := contextset.Resolve(patterns)
	for _, err := range errs {
		a.warn(err.Error())
	}
	if len(paths) == 0 {
		return errors.New("no files to add")
	}

	var added, dup []string
	_, err := a.state.Update(func(st *config.State) error {
		have := make(map[string]bool, len(st.Context))
		for _, p := range st.Context {
			have[p] = true
		}
		for _, p := range paths {
			if have[p] {
				dup = append(dup, p)
				continue
			}
			have[p] = true
			st.Context = append(st.Context, p)
			added = append(added, p)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, p := range dup {
		a.printf("Already in context: %s\n", p)
	}
	for _, p := range added {
		a.printf("Added to context: %s\n", p)
	}
	return nil
}

// Rm removes paths from the Context Set. Arguments are matched as given
// and as absolute paths.
func (a *App) Rm(args []string) error {
	var removed, missing []string
	_, err := a.state.Update(func(st *config.State) error {
		drop := make(map[string]string, len(args))
		for _, arg := range args {
			drop[arg] = arg
			if abs, err := filepath.Abs(arg); err == nil {
				drop[abs] = arg
			}
		}

		matched := make(map[string]bool)
		kept := st.Context[:0:0]
		for _, p := range st.Context {
			if arg, ok := drop[p]; ok {
				matched[arg] = true
				removed = append(removed, p)
				continue
			}
			kept = append(kept, p)
		}
		st.Context = kept

		for _, arg := range args {
			if !matched[arg] {
				missing = append(missing, arg)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, p := range removed {
		a.printf("Removed from context: %s\n", p)
	}
	for _, p := range missing {
		a.printf("Not in context: %s\n", p)
	}
	return nil
}

// ClearContext empties the Context Set.
func (a *App) ClearContext() error {
	_, err := a.state.Update(func(st *config.State) error {
		st.Context = []string{}
		return nil
	})
	if err != nil {
		return err
	}
	a.printf("Context cleared\n")
	return nil
}

// ListContext prints the Context Set with sizes and readability.
func (a *App) ListContext() error {
	st, err := a.state.Load()
	if err != nil {
		return err
	}
	if len(st.Context) == 0 {
		a.printf("Context is empty\n")
		return nil
	}
	var total int64
	for _, s := range contextset.Inspect(st.Context) {
		if s.Err != nil {
			a.printf("  %s  (unreadable: %v)\n", s.Path, s.Err)
			continue
		}
		total += s.Size
		a.printf("  %s  %s\n", s.Path, humanSize(s.Size))
	}
	a.printf("%d file(s), %s\n", len(st.Context), humanSize(total))
	return nil
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
