package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"card-tracker-backend/pkg/catalog"
	"card-tracker-backend/pkg/database"
	"card-tracker-backend/pkg/models"
)

var searchLimit int

// setsCmd lists all card sets
var setsCmd = &cobra.Command{
	Use:   "sets",
	Short: "List card sets by release date",
	Args:  cobra.NoArgs,
	RunE:  runSets,
}

// setCmd shows one set with ownership marks
var setCmd = &cobra.Command{
	Use:   "set <set-id>",
	Short: "Show a card set and which of its cards you own",
	Args:  cobra.ExactArgs(1),
	RunE:  runSet,
}

// cardCmd shows one card
var cardCmd = &cobra.Command{
	Use:   "card <card-id>",
	Short: "Show a single card",
	Args:  cobra.ExactArgs(1),
	RunE:  runCard,
}

// searchCmd fuzzy-searches card names
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search cards by name",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 20, "Maximum number of results")
}

func runSets(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	sets, err := app.catalog.ListSets(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), sets)
	}
	return printSets(cmd.OutOrStdout(), sets)
}

func runSet(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	setID := args[0]
	detail, err := app.catalog.SetDetail(ctx, setID)
	if errors.Is(err, catalog.ErrNotFound) {
		return fmt.Errorf("card set %s not found", setID)
	}
	if err != nil {
		return err
	}

	// 未登录时全部显示为未拥有
	var cards []models.CardWithCollectionStatus
	if sess, err := app.currentSession(ctx); err == nil {
		tracker, err := app.tracker(sess, database.UserCollection)
		if err != nil {
			return err
		}
		cards = tracker.MergeStatus(ctx, detail.Cards, sess.User.ID)
	} else {
		for _, c := range detail.Cards {
			cards = append(cards, models.CardWithCollectionStatus{Card: c})
		}
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{"set": detail.Set, "cards": cards})
	}
	owned := 0
	for _, c := range cards {
		if c.Owned {
			owned++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) - %d/%d owned\n\n", detail.Set.Name, detail.Set.ID, owned, len(cards))
	return printOwnedCards(cmd.OutOrStdout(), cards)
}

func runCard(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	cardID := args[0]
	card, err := app.catalog.GetCard(ctx, cardID)
	if errors.Is(err, catalog.ErrNotFound) {
		return fmt.Errorf("card %s not found", cardID)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), card)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s #%s (%s)\n", card.Name, card.Number, card.ID)
	if set, err := app.catalog.GetSet(ctx, card.SetID); err == nil {
		fmt.Fprintf(out, "set:    %s\n", set.Name)
	}
	if card.Rarity != "" {
		fmt.Fprintf(out, "rarity: %s\n", card.Rarity)
	}
	if card.Artist != "" {
		fmt.Fprintf(out, "artist: %s\n", card.Artist)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	cards, err := app.catalog.Search(ctx, strings.Join(args, " "), searchLimit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), cards)
	}
	if len(cards) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No cards found")
		return nil
	}
	return printCards(cmd.OutOrStdout(), cards)
}
