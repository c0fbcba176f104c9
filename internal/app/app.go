// Package app implements the oai commands on top of the state record, the
// conversation store and the streaming runner.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/atotto/clipboard"
	"github.com/kir-gadjello/oai/internal/archive"
	"github.com/kir-gadjello/oai/internal/codeblock"
	"github.com/kir-gadjello/oai/internal/completion"
	"github.com/kir-gadjello/oai/internal/config"
	"github.com/kir-gadjello/oai/internal/conversation"
	"github.com/kir-gadjello/oai/internal/render"
	"github.com/kir-gadjello/oai/internal/runner"
	"github.com/kir-gadjello/oai/internal/tokens"
)

// ErrMissingAPIKey is returned when talking to the default endpoint
// without OPENAI_API_KEY.
var ErrMissingAPIKey = errors.New("the OPENAI_API_KEY environment variable is not set")

// Clipboard receives copied text.
type Clipboard interface {
	WriteAll(text string) error
}

// SystemClipboard uses the operating system clipboard.
type SystemClipboard struct{}

func (SystemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

// Options configures an App. Zero values are filled from the environment
// by New.
type Options struct {
	Paths    config.Paths
	Settings *config.Settings
	Logger   *slog.Logger

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Interactive selects the live renderer and the session picker.
	Interactive bool
	// StdinPiped appends stdin to the prompt.
	StdinPiped bool
	Width      int

	Clipboard Clipboard
	Tokenizer tokens.Tokenizer
	// Completer replaces the HTTP client built from Settings.
	Completer runner.Completer
	APIKey    string
}

type App struct {
	opts     Options
	logger   *slog.Logger
	sessions *conversation.Store
	state    *config.Store
	accounts *tokens.Accountant

	archive    *archive.Archive
	archiveErr error
}

func New(opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = config.DiscardLogger()
	}
	if opts.Settings == nil {
		opts.Settings = &config.Settings{}
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Width <= 0 {
		opts.Width = 80
	}
	if opts.Clipboard == nil {
		opts.Clipboard = SystemClipboard{}
	}
	if opts.Tokenizer == nil {
		opts.Tokenizer = tokens.NewTiktoken(opts.Settings.Encodings())
	}
	if opts.Completer == nil {
		opts.Completer = &profileCompleter{
			settings: opts.Settings,
			apiKey:   opts.APIKey,
			logger:   opts.Logger,
		}
	}

	sessions := conversation.NewStore(opts.Paths.Sessions, opts.Logger)
	return &App{
		opts:     opts,
		logger:   opts.Logger,
		sessions: sessions,
		state:    config.NewStore(opts.Paths.State, sessions, opts.Logger),
		accounts: tokens.NewAccountant(opts.Tokenizer),
	}
}

// Close releases the archive if it was opened.
func (a *App) Close() error {
	if a.archive != nil {
		return a.archive.Close()
	}
	return nil
}

// openArchive opens the archive once; later calls return the same result.
func (a *App) openArchive() (*archive.Archive, error) {
	if a.archive == nil && a.archiveErr == nil {
		a.archive, a.archiveErr = archive.Open(a.opts.Paths.Archive, a.logger)
	}
	return a.archive, a.archiveErr
}

func (a *App) printf(format string, args ...interface{}) {
	fmt.Fprintf(a.opts.Stdout, format, args...)
}

func (a *App) warn(msg string) {
	if a.opts.Interactive {
		fmt.Fprintln(a.opts.Stderr, render.Warning(msg))
		return
	}
	fmt.Fprintln(a.opts.Stderr, "warning: "+msg)
}

func (a *App) display() runner.Display {
	if a.opts.Interactive {
		return render.NewLive(a.opts.Stdout, a.opts.Stderr, a.opts.Width)
	}
	return render.NewPlain(a.opts.Stdout, a.opts.Stderr)
}

// IsNotice reports errors that are shown as a message with a zero exit
// status and no state change.
func IsNotice(err error) bool {
	return errors.Is(err, codeblock.ErrBlockIndexOutOfRange) ||
		errors.Is(err, conversation.ErrNoAssistantMessage)
}

// profileCompleter resolves the model profile for every turn and streams
// through a completion client for the profile's endpoint.
type profileCompleter struct {
	settings *config.Settings
	apiKey   string
	logger   *slog.Logger
}

func (p *profileCompleter) client(profile config.ModelProfile) (*completion.Client, error) {
	base := p.settings.APIBaseURL()
	if os.Getenv("OPENAI_API_BASE") == "" && profile.APIBase != nil && *profile.APIBase != "" {
		base = *profile.APIBase
	}
	if p.apiKey == "" && base == config.DefaultAPIBase {
		return nil, ErrMissingAPIKey
	}
	return completion.NewClient(base, p.apiKey, p.settings.RequestTimeout(), p.logger), nil
}

func (p *profileCompleter) Stream(ctx context.Context, model string, msgs []conversation.Message) (<-chan completion.Event, error) {
	profile, err := p.settings.Resolve(model)
	if err != nil {
		return nil, err
	}
	c, err := p.client(profile)
	if err != nil {
		return nil, err
	}
	return c.Stream(ctx, completion.Request{
		Model:       profile.UpstreamModel(model),
		Messages:    msgs,
		Temperature: profile.Temperature,
		Extra:       profile.ExtraBody,
	})
}

func (p *profileCompleter) Models(ctx context.Context, model string) ([]completion.Model, error) {
	profile, err := p.settings.Resolve(model)
	if err != nil {
		return nil, err
	}
	c, err := p.client(profile)
	if err != nil {
		return nil, err
	}
	return c.Models(ctx)
}
