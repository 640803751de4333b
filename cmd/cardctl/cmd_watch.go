package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"card-tracker-backend/pkg/session"
)

var refreshMargin time.Duration

// watchCmd follows session changes until interrupted
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow sign-in state and the game collection count",
	Long: `Print the session state every time it changes. Tokens are refreshed
before they expire. When REDIS_ADDR is set, changes made by other cardctl
processes are mirrored through the session channel.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&refreshMargin, "refresh-margin", time.Minute, "Refresh tokens this long before expiry")
}

func runWatch(cmd *cobra.Command, args []string) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	auth, err := app.authClient(nil)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		auth.AutoRefresh(gctx, refreshMargin)
		return nil
	})

	var provider session.Provider = auth
	rdb, err := app.redis(ctx)
	if err != nil {
		app.log.Warn("⚠️ session relay unavailable, watching local session only", zap.Error(err))
	}
	if rdb != nil {
		relay := session.NewRedisRelay(rdb, app.cfg.SessionChannel, auth, app.log)
		defer relay.Close()
		provider = relay

		g.Go(func() error { return relay.Run(gctx) })
		// 本进程内的刷新/登出也转发到频道
		sub := auth.Subscribe()
		defer sub.Close()
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case ev, ok := <-sub.C:
					if !ok {
						return nil
					}
					if err := relay.Publish(gctx, ev); err != nil {
						app.log.Warn("⚠️ failed to relay session event", zap.Error(err))
					}
				}
			}
		})
	}

	obs := session.NewObserver(provider, app, app.log)
	if err := obs.Start(gctx); err != nil {
		return err
	}
	defer obs.Close()

	out := cmd.OutOrStdout()
	for st := range obs.Changes() {
		if jsonOutput {
			if err := printJSON(out, st); err != nil {
				return err
			}
			continue
		}
		printState(out, st)
	}

	stop()
	return g.Wait()
}

func printState(w io.Writer, st session.State) {
	ts := time.Now().Format("15:04:05")
	if !st.LoggedIn {
		fmt.Fprintf(w, "[%s] %s: signed out\n", ts, st.Event)
		return
	}
	count := fmt.Sprintf("%d game cards", st.GameCount)
	if st.CountError != "" {
		count = "game cards unavailable"
	}
	fmt.Fprintf(w, "[%s] %s: %s (%s)\n", ts, st.Event, st.Username, count)
}
