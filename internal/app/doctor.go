package app

import (
	"errors"
	"os"

	"github.com/atotto/clipboard"
	"github.com/kir-gadjello/oai/internal/archive"
	"github.com/kir-gadjello/oai/internal/config"
)

// Doctor reports on optional capabilities and the local setup.
func (a *App) Doctor() error {
	a.printf("oai doctor\n==========\n")

	if archive.CheckFTS() {
		a.printf("✅ SQLite FTS5   : enabled (search available)\n")
	} else {
		a.printf("❌ SQLite FTS5   : disabled\n   -> FIX: build with '-tags sqlite_fts5'\n")
	}

	switch _, err := a.state.Load(); {
	case err == nil:
		a.printf("✅ Config        : %s\n", a.opts.Paths.State)
	case errors.Is(err, config.ErrConfigMissing):
		a.printf("⚠️  Config        : missing (run `oai init`)\n")
	default:
		a.printf("❌ Config        : %v\n", err)
	}

	if _, err := os.Stat(a.opts.Paths.Settings); err == nil {
		a.printf("✅ Settings      : %s\n", a.opts.Paths.Settings)
	} else {
		a.printf("ℹ️  Settings      : none (%s), using defaults\n", a.opts.Paths.Settings)
	}

	a.printf("ℹ️  API base      : %s\n", a.opts.Settings.APIBaseURL())
	if a.opts.APIKey != "" {
		a.printf("✅ OPENAI_API_KEY: set\n")
	} else {
		a.printf("⚠️  OPENAI_API_KEY: not set\n")
	}

	if clipboard.Unsupported {
		a.printf("⚠️  Clipboard     : unsupported on this system\n")
	} else {
		a.printf("✅ Clipboard     : available\n")
	}
	return nil
}
