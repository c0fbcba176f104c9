package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/kir-gadjello/oai/internal/app"
	"github.com/kir-gadjello/oai/internal/config"
	"github.com/kir-gadjello/oai/internal/render"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func isInteractive(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// stdinPiped reports whether stdin is a pipe or a regular file.
func stdinPiped() bool {
	if isInteractive(os.Stdin.Fd()) {
		return false
	}
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice == 0
}

// cli holds what the persistent flags produce for every command.
type cli struct {
	logLevel  string
	logFormat string
	app       *app.App
}

func (c *cli) setup(cmd *cobra.Command, args []string) error {
	paths, err := config.DefaultPaths()
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(c.logLevel)
	if err != nil {
		return err
	}
	logger := config.NewLogger(os.Stderr, level, c.logFormat)

	settings, err := config.LoadSettings(paths.Settings, logger)
	if err != nil {
		return err
	}

	if !cmd.Flags().Changed("log-level") && settings.LogLevel != "" {
		if level, err = config.ParseLogLevel(settings.LogLevel); err != nil {
			return fmt.Errorf("settings: %w", err)
		}
	}
	format := c.logFormat
	if !cmd.Flags().Changed("log-format") && settings.LogFormat != "" {
		format = settings.LogFormat
	}
	logger = config.NewLogger(os.Stderr, level, format)
	logger.Debug("starting", "command", cmd.Name(), "home", paths.Home)

	c.app = app.New(app.Options{
		Paths:       paths,
		Settings:    settings,
		Logger:      logger,
		Stdin:       os.Stdin,
		Stdout:      os.Stdout,
		Stderr:      os.Stderr,
		Interactive: isInteractive(os.Stdout.Fd()),
		StdinPiped:  stdinPiped(),
		Width:       render.Width(),
		APIKey:      os.Getenv("OPENAI_API_KEY"),
	})
	return nil
}

func optionalArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func newRootCmd(c *cli) *cobra.Command {
	var sendOpts app.SendOptions

	rootCmd := &cobra.Command{
		Use:   "oai [prompt...]",
		Short: "Stream answers from an OpenAI-compatible model into the terminal",
		Long: "Sends the prompt, together with the active conversation and any context files,\n" +
			"and renders the streamed answer. Piped stdin is appended to the prompt.",
		Args:              cobra.ArbitraryArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			sendOpts.Words = args
			return c.app.Send(cmd.Context(), sendOpts)
		},
	}
	rootCmd.Flags().StringVarP(&sendOpts.Model, "model", "m", "", "Model for this turn only")
	rootCmd.Flags().BoolVarP(&sendOpts.Dry, "dry", "d", false, "Dry run: print the assembled prompt and token counts without sending")
	rootCmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level: trace|debug|info|warn|error (default warn)")
	rootCmd.PersistentFlags().StringVar(&c.logFormat, "log-format", "text", "Log format: text|json")

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the config record and the default conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.Init(force)
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Reset an existing config record")

	var raw bool
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Print the active conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.app.History(raw)
		},
	}
	historyCmd.Flags().BoolVar(&raw, "raw", false, "Print plain text without markdown rendering")

	rootCmd.AddCommand(
		initCmd,
		historyCmd,
		&cobra.Command{
			Use:   "clear [name]",
			Short: "Delete a conversation (default: the active one)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.app.Clear(cmd.Context(), optionalArg(args))
			},
		},
		&cobra.Command{
			Use:   "set-model <model>",
			Short: "Set the active model",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.app.SetModel(args[0])
			},
		},
		&cobra.Command{
			Use:     "set-chat [name]",
			Aliases: []string{"use"},
			Short:   "Switch to a conversation, creating it if needed",
			Args:    cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.app.Use(optionalArg(args))
			},
		},
		&cobra.Command{
			Use:     "c <n>",
			Aliases: []string{"copy-block"},
			Short:   "Copy code block n of the last response to the clipboard",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("block number must be an integer: %q", args[0])
				}
				return c.app.CopyBlock(n)
			},
		},
		&cobra.Command{
			Use:     "cl",
			Aliases: []string{"copy-last"},
			Short:   "Copy the last response to the clipboard",
			Args:    cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.app.CopyLast()
			},
		},
		&cobra.Command{
			Use:   "add <path|glob|staged|dirty|last>...",
			Short: "Add files to the context injected into every prompt",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.app.Add(args)
			},
		},
		&cobra.Command{
			Use:   "rm <path>...",
			Short: "Remove files from the context",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.app.Rm(args)
			},
		},
		&cobra.Command{
			Use:   "clear-context",
			Short: "Remove every file from the context",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.app.ClearContext()
			},
		},
		&cobra.Command{
			Use:   "context",
			Short: "List the context files",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.app.ListContext()
			},
		},
		&cobra.Command{
			Use:   "clear-all",
			Short: "Delete every conversation and switch to the default one",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.app.ClearAll(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "which",
			Short: "Print the active conversation name",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.app.Which()
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List conversations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.app.List()
			},
		},
		&cobra.Command{
			Use:   "tokens",
			Short: "Show token counts of the active conversation",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.app.Tokens()
			},
		},
		&cobra.Command{
			Use:   "search <query>...",
			Short: "Search archived turns",
			Long:  "Full-text search over past turns. Use 'user:term' or 'ai:term' to filter by role.",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.app.Search(cmd.Context(), strings.Join(args, " "))
			},
		},
		&cobra.Command{
			Use:   "models",
			Short: "List models offered by the endpoint of the active model",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.app.Models(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "doctor",
			Short: "Check optional capabilities and the local setup",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.app.Doctor()
			},
		},
	)
	return rootCmd
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{}
	err := newRootCmd(c).ExecuteContext(ctx)
	if c.app != nil {
		defer c.app.Close()
	}
	if err == nil {
		return 0
	}

	if app.IsNotice(err) {
		fmt.Fprintln(os.Stdout, err)
		return 0
	}
	if isInteractive(os.Stderr.Fd()) {
		fmt.Fprintln(os.Stderr, render.ErrorPanel(err, render.Width()))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return 1
}

func main() {
	os.Exit(run())
}
