package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rushteam/cinerank/core"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list <user>",
		Short: "Show the user's saved curated list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ctx.persistence(cmd.Context())
			if err != nil {
				return err
			}
			list, err := p.CuratedList(cmd.Context(), args[0])
			if core.IsStoreNotFound(err) {
				fmt.Fprintf(cmd.OutOrStdout(), "No saved list for %s.\n", args[0])
				return nil
			}
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, list)
			}
			rows := make([][]string, 0, len(list.Items))
			for i, c := range list.Items {
				rows = append(rows, []string{
					strconv.Itoa(i + 1),
					strconv.FormatInt(int64(c.ID), 10),
					c.Title,
					c.PosterURL(),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"#", "ID", "Title", "Poster"}, rows,
				[]columnAlignment{alignRight, alignRight}))
			fmt.Fprintf(out, "Updated %s\n", list.UpdatedAt.Format("2006-01-02 15:04 MST"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}
