package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"card-tracker-backend/pkg/collection"
	"card-tracker-backend/pkg/database"
)

var boosterSet string

// collectCmd adds a card to the real collection
var collectCmd = &cobra.Command{
	Use:   "collect <card-id>",
	Short: "Add a card to your collection",
	Args:  cobra.ExactArgs(1),
	RunE:  runCollect,
}

// boosterCmd groups the booster-pack game commands
var boosterCmd = &cobra.Command{
	Use:   "booster",
	Short: "Play the booster-pack game",
}

var boosterOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a booster pack",
	Args:  cobra.NoArgs,
	RunE:  runBoosterOpen,
}

var boosterClaimCmd = &cobra.Command{
	Use:   "claim <card-id>...",
	Short: "Claim cards from an opened pack into your game collection",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBoosterClaim,
}

func init() {
	boosterOpenCmd.Flags().StringVarP(&boosterSet, "set", "s", "", "Only draw cards from this set")
	boosterCmd.AddCommand(boosterOpenCmd)
	boosterCmd.AddCommand(boosterClaimCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	sess, err := app.currentSession(ctx)
	if err != nil {
		return err
	}
	tracker, err := app.tracker(sess, database.UserCollection)
	if err != nil {
		return err
	}

	cardID := args[0]
	switch err := tracker.Add(ctx, sess.User.ID, cardID); {
	case errors.Is(err, database.ErrNotFound):
		return fmt.Errorf("card %s not found", cardID)
	case errors.Is(err, collection.ErrAddFailed):
		app.log.Debug("add failed", zap.Error(err))
		return fmt.Errorf("could not add %s to your collection, please try again", cardID)
	case err != nil:
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ %s added to your collection\n", cardID)
	return nil
}

func runBoosterOpen(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	// 未登录时直接提示，不访问后端
	sess, err := app.currentSession(ctx)
	if errors.Is(err, errSignInRequired) {
		fmt.Fprintln(cmd.OutOrStdout(), "🔒 Sign in with 'cardctl login' to open booster packs")
		return nil
	}
	if err != nil {
		return err
	}

	game, err := app.game(sess)
	if err != nil {
		return err
	}
	pack, err := game.Open(ctx, sess.User.ID, boosterSet)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("card set %s not found", boosterSet)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), pack)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "🎁 You opened %d cards\n\n", len(pack.Cards))
	return printOwnedCards(cmd.OutOrStdout(), pack.Cards)
}

func runBoosterClaim(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	sess, err := app.currentSession(ctx)
	if err != nil {
		return err
	}
	game, err := app.game(sess)
	if err != nil {
		return err
	}
	summary, err := game.Claim(ctx, sess.User.ID, args)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), summary)
	}
	out := cmd.OutOrStdout()
	for _, r := range summary.Results {
		if r.Added {
			fmt.Fprintf(out, "✅ %s\n", r.CardID)
		} else {
			fmt.Fprintf(out, "❌ %s: %s\n", r.CardID, r.Error)
		}
	}
	if summary.Count >= 0 {
		fmt.Fprintf(out, "\nGame collection: %d cards\n", summary.Count)
	}
	return nil
}
