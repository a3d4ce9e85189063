// Command zhenghe is a terminal and HTTP front end for a chat-completion API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"zhenghe/config"
	"zhenghe/internal/logging"
)

// cli carries state shared by all subcommands after the root pre-run.
type cli struct {
	configPath string
	logLevel   string

	cfg       *config.Config
	logCloser io.Closer
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "zhenghe",
		Short:         "Chat with a chat-completion API from the terminal or over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.logCloser != nil {
				return c.logCloser.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "path to a YAML config file (default: $"+config.EnvConfigPath+", config.yaml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override the log level (debug, info, warn, error)")

	root.AddCommand(
		newChatCmd(c),
		newModelsCmd(c),
		newCompleteCmd(c),
		newServeCmd(c),
		newVersionCmd(),
	)
	return root
}

func (c *cli) setup() error {
	if c.configPath != "" {
		if err := os.Setenv(config.EnvConfigPath, c.configPath); err != nil {
			return err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}

	closer, err := logging.Setup(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return err
	}

	c.cfg = cfg
	c.logCloser = closer
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		// A second signal during shutdown terminates the process.
		<-ctx.Done()
		stop()
	}()
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
