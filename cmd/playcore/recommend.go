package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/PizzaHomicide/playcore/internal/player"
	"github.com/PizzaHomicide/playcore/internal/selector"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend [uri]",
	Short: "Show which player would be used for a source, and why",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src, err := sourceFromFlags(cmd, args)
		if err != nil {
			return err
		}

		sel := player.NewFactory(cfg).Selector()
		rec := sel.GetRecommendation(src)

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, titleStyle.Render("Player recommendation"))
		_, _ = fmt.Fprintln(out, field("Source", src.URI))
		_, _ = fmt.Fprintln(out, field("Content", string(selector.Classify(src))))
		_, _ = fmt.Fprintln(out, field("Player", okStyle.Render(string(rec.Type))))
		_, _ = fmt.Fprintln(out, field("Reason", rec.Reason))
		_, _ = fmt.Fprintln(out, field("Cross-thread", strconv.FormatBool(sel.IsCrossThreadAvailable())))
		return nil
	},
}

func init() {
	addSourceFlags(recommendCmd)
}
