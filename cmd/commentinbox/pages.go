package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"CommentInbox/internal/render"
)

func newPagesCmd(opts *rootOptions) *cobra.Command {
	var userToken string

	cmd := &cobra.Command{
		Use:   "pages",
		Short: "List the pages a user access token can manage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, _, err := opts.open(cmd.Context(), opts.loadConfig())
			if err != nil {
				return err
			}
			defer application.Close()

			pages, err := application.ListPages(cmd.Context(), userToken)
			if err != nil {
				return fmt.Errorf("list pages: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), render.Pages(pages, render.NewStyles()))
			return nil
		},
	}

	cmd.Flags().StringVar(&userToken, "user-token", "", "user access token")
	_ = cmd.MarkFlagRequired("user-token")
	return cmd
}

func newSelectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "select <pageID> <pageToken>",
		Short: "Store the page the inbox works on",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, _, err := opts.open(cmd.Context(), opts.loadConfig())
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.SelectPage(cmd.Context(), args[0], args[1]); err != nil {
				return fmt.Errorf("save page: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Selected page %s\n", args[0])
			return nil
		},
	}
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored page and token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, _, err := opts.open(cmd.Context(), opts.loadConfig())
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.Logout(cmd.Context()); err != nil {
				return fmt.Errorf("logout: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}
