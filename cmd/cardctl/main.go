// Command cardctl is the terminal client for the card tracker: browse the
// catalog, track owned cards and play the booster-pack game.
package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	verbose    bool
	jsonOutput bool
	timeout    time.Duration

	// app is built lazily by the root command; tests install their own.
	app *cliApp
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cardctl",
	Short: "Browse the card catalog and manage your collection",
	Long: `cardctl talks to the card tracker backend directly.

Sign in with 'cardctl login', then:
  sets / set <id> / card <id> / search <query>   browse the catalog
  collect <card-id>                              add a card to your collection
  booster open | booster claim <ids...>          play the booster-pack game
  watch                                          follow session changes`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if app != nil {
			return nil
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		app = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app != nil {
			app.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "TOML config file overriding the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Backend request timeout")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(setsCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(cardCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(boosterCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
