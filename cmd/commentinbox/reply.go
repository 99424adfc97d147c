package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newReplyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reply <commentID> <text>",
		Short: "Post a reply under a comment with the stored page token",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.TrimSpace(strings.Join(args[1:], " "))
			if message == "" {
				return fmt.Errorf("reply text must not be empty")
			}

			application, _, err := opts.open(cmd.Context(), opts.loadConfig())
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.Reply(cmd.Context(), args[0], message); err != nil {
				return fmt.Errorf("send reply: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reply sent to %s\n", args[0])
			return nil
		},
	}
}
