package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"allenchat/internal/config"
)

const version = "0.1.0"

type globalOptions struct {
	configPath string
	envFile    string
	debug      bool

	cfg config.Config
}

// Execute runs the CLI with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:     "allenchat",
		Short:   "Chat with the Allen tutor and OpenAI-compatible models",
		Version: version,
		Long: `allenchat is a terminal chat client for the Allen tutoring backend and
OpenAI-compatible APIs (including Azure deployments), plus the proxy server
and page shell the web client is served from.`,
		Example: `  # Start the proxy server
  $ allenchat serve --config allenchat.yaml

  # Sign in and start chatting
  $ allenchat login
  $ allenchat chat

  # Check spending for the current month
  $ allenchat usage`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate(fmt.Sprintf("allenchat version %s\n", version))

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "path to YAML configuration file")
	flags.StringVar(&opts.envFile, "env", "", "path to a .env file (defaults to ./.env when present)")
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(opts),
		newChatCmd(opts),
		newUsageCmd(opts),
		newModelsCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newWhoamiCmd(opts),
	)
	return root
}

func (o *globalOptions) load() error {
	level := slog.LevelInfo
	if o.debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := config.LoadEnvFile(o.envFile); err != nil {
		return err
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	o.cfg = cfg
	return nil
}
