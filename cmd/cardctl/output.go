package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"card-tracker-backend/pkg/models"
)

// commandContext 带超时的命令上下文
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSets(w io.Writer, sets []models.CardSet) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tRELEASED\tCARDS")
	for _, s := range sets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", s.ID, s.Name, s.ReleaseDate, s.TotalCards)
	}
	return tw.Flush()
}

func printCards(w io.Writer, cards []models.Card) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNO.\tNAME\tRARITY")
	for _, c := range cards {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Number, c.Name, c.Rarity)
	}
	return tw.Flush()
}

func printOwnedCards(w io.Writer, cards []models.CardWithCollectionStatus) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNO.\tNAME\tRARITY\tOWNED")
	for _, c := range cards {
		owned := ""
		if c.Owned {
			owned = "✓"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Number, c.Name, c.Rarity, owned)
	}
	return tw.Flush()
}
