package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"CommentInbox/internal/render"
)

func newFetchCmd(opts *rootOptions) *cobra.Command {
	var (
		page  int
		debug bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch, classify and print one page of comments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, _, err := opts.open(cmd.Context(), opts.loadConfig())
			if err != nil {
				return err
			}
			defer application.Close()

			view, err := application.FetchPage(cmd.Context(), page)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprint(out, render.Page(view.Page, render.NewStyles()))
			if debug {
				fmt.Fprint(out, render.Diagnostics(view.Page.Items, view.Diagnostics))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "1-based page number to classify and print")
	cmd.Flags().BoolVar(&debug, "debug", false, "print the prompt and failure log of every comment on the page")
	return cmd
}
