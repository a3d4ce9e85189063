package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"zhenghe/internal/app"
)

func newCompleteCmd(c *cli) *cobra.Command {
	var maxTokens int

	cmd := &cobra.Command{
		Use:   "complete <prompt>",
		Short: "Send a single legacy completion request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.New(cmd.Context(), c.cfg, app.Options{})
			if err != nil {
				return err
			}
			defer a.Shutdown(cmd.Context())

			var limit []int
			if cmd.Flags().Changed("max-tokens") {
				limit = []int{maxTokens}
			}
			resp, err := a.Conversation().GenerateCompletion(cmd.Context(), strings.Join(args, " "), limit...)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Text)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "token limit (default: configured default_max_tokens)")
	return cmd
}
