package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"card-tracker-backend/pkg/session"
)

var (
	loginEmail    string
	loginPassword string
)

// loginCmd signs in with email and password
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	Long: `Sign in to the hosted auth provider. The password is read from
--password, the CARDCTL_PASSWORD environment variable, or stdin.`,
	RunE: runLogin,
}

// logoutCmd signs out and forgets the saved session
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out",
	RunE:  runLogout,
}

// whoamiCmd prints the signed-in user
var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE:  runWhoami,
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Account password")
	_ = loginCmd.MarkFlagRequired("email")
}

// relayPublisher 配置了 Redis 时返回会话事件发布者
func relayPublisher(cmd *cobra.Command) session.Publisher {
	rdb, err := app.redis(cmd.Context())
	if err != nil {
		app.log.Warn("⚠️ session relay unavailable", zap.Error(err))
		return nil
	}
	if rdb == nil {
		return nil
	}
	return session.NewRedisRelay(rdb, app.cfg.SessionChannel, nil, app.log)
}

func runLogin(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	password := loginPassword
	if password == "" {
		password = os.Getenv("CARDCTL_PASSWORD")
	}
	if password == "" {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimSpace(line)
	}

	auth, err := app.authClient(relayPublisher(cmd))
	if err != nil {
		return err
	}
	sess, err := auth.SignInWithPassword(ctx, loginEmail, password)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), sess.User)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Signed in as %s\n", sess.User.DisplayName())
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	auth, err := app.authClient(relayPublisher(cmd))
	if err != nil {
		return err
	}
	if _, err := auth.Current(ctx); errors.Is(err, session.ErrNoSession) {
		fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
		return nil
	}
	if err := auth.SignOut(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "👋 Signed out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	sess, err := app.currentSession(ctx)
	if errors.Is(err, errSignInRequired) {
		fmt.Fprintln(cmd.OutOrStdout(), "Not signed in")
		return nil
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), sess.User)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\nuser id: %s\nexpires: %s\n",
		sess.User.DisplayName(), sess.User.Email, sess.User.ID, sess.ExpiresAt.Local().Format("2006-01-02 15:04"))
	return nil
}
