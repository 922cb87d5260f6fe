package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rushteam/cinerank/exclusion"
)

func newBlockCommand(ctx *commandContext) *cobra.Command {
	var user, kind string
	cmd := &cobra.Command{
		Use:   "block <id> [id...]",
		Short: "Never recommend these titles to the user again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := parseContentType(kind)
			if err != nil {
				return err
			}
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			p, err := ctx.persistence(cmd.Context())
			if err != nil {
				return err
			}
			mgr := exclusion.NewManager(p, ctx.log())
			for _, id := range ids {
				if err := mgr.Block(cmd.Context(), user, id, ct); err != nil {
					return err
				}
			}
			blocked, err := mgr.Permanent(cmd.Context(), user, ct)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Blocked %d title(s); %s has %d blocked %s title(s).\n",
				len(ids), user, len(blocked), ct)
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "User id")
	cmd.Flags().StringVarP(&kind, "type", "t", "movie", "Content type: movie or tv")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
