package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/xueqianLu/contestpay/internal/backend"
	"github.com/xueqianLu/contestpay/internal/session"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the contest backend with the wallet",
	Long: `Signs a one-time login message with the custodial wallet and exchanges
the signature for a session token. The token is kept in the configured
session store (OS keychain or a local bolt file).`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := session.Clear(cmd.Context(), current.session); err != nil {
			return err
		}
		current.users.Clear()
		fmt.Println("Logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := current.requireBackend(); err != nil {
			return err
		}
		ticket := current.users.Ticket()
		u, err := current.backend.Me(cmd.Context())
		if err != nil {
			if backend.IsKind(err, backend.KindUnauthorized) {
				return fmt.Errorf("not logged in, run `contestpay login`")
			}
			return err
		}
		current.users.SetUser(ticket, *u)
		fmt.Printf("%s (%s)\n", color.CyanString(u.Username), u.WalletAddress)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
}

func loginMessage(address string, now time.Time) string {
	return fmt.Sprintf("contestpay login\naddress: %s\nnonce: %s\nissued: %s",
		address, uuid.NewString(), now.UTC().Format(time.RFC3339))
}

func runLogin(cmd *cobra.Command, args []string) error {
	if err := current.requireBackend(); err != nil {
		return err
	}
	ctx := cmd.Context()
	address := current.adapter.Address()
	message := loginMessage(address, time.Now())

	ticket := current.users.Ticket()
	sig, err := current.adapter.SignMessage(ctx, []byte(message))
	if err != nil {
		return fmt.Errorf("failed to sign login message: %w", err)
	}
	resp, err := current.backend.Login(ctx, backend.LoginRequest{
		Address:   address,
		Message:   message,
		Signature: sig.String(),
	})
	if err != nil {
		return fmt.Errorf("login rejected: %w", err)
	}
	if err := session.Save(ctx, current.session, resp.Token, address); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	current.users.SetUser(ticket, resp.User)
	fmt.Printf("%s as %s\n", color.GreenString("Logged in"), color.CyanString(resp.User.Username))
	return nil
}
