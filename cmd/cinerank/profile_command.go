package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rushteam/cinerank/core"
)

func newProfileCommand(ctx *commandContext) *cobra.Command {
	var kind string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "profile <trakt-user>",
		Short: "Build a taste profile from Trakt watch history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := parseContentType(kind)
			if err != nil {
				return err
			}
			b, err := ctx.tasteBuilder()
			if err != nil {
				return err
			}
			profile, err := b.Build(cmd.Context(), args[0], ct)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, map[string]any{
					"liked":     profile.Liked,
					"disliked":  profile.Disliked,
					"watched":   profile.Watched.Sorted(),
					"synced_at": profile.SyncedAt,
					"text":      profile.Text(),
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderProfile(profile))
			fmt.Fprintf(out, "%d watched title(s) will be excluded from recommendations.\n", len(profile.Watched))
			return nil
		},
	}
	cmd.Flags().StringVarP(&kind, "type", "t", "movie", "Content type: movie or tv")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func renderProfile(p *core.TasteProfile) string {
	rows := make([][]string, 0, len(p.Liked)+len(p.Disliked))
	for _, r := range p.Liked {
		bucket := "liked"
		if r.Rating >= 9 {
			bucket = "loved"
		}
		rows = append(rows, []string{bucket, r.Title, strconv.Itoa(r.Rating)})
	}
	for _, r := range p.Disliked {
		rows = append(rows, []string{"disliked", r.Title, strconv.Itoa(r.Rating)})
	}
	return renderTable([]string{"Bucket", "Title", "Rating"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight})
}
