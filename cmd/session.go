package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"techtribe-client/internal/services"

	"github.com/spf13/cobra"
)

func newLoginCommand() *cobra.Command {
	var creds services.Credentials

	c := &cobra.Command{
		Use:   "login",
		Short: "Log in with email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			if creds.Password == "" {
				pw, err := prompt(cmd.InOrStdin(), cmd.OutOrStdout(), "Password: ")
				if err != nil {
					return err
				}
				creds.Password = pw
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				s, err := a.sessions.Login(ctx, creds)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Welcome back, %s!\n", s.User.FirstName)
				return nil
			})
		},
	}

	c.Flags().StringVarP(&creds.Email, "email", "e", "", "account email")
	c.Flags().StringVarP(&creds.Password, "password", "p", "", "account password (prompted when omitted)")
	c.MarkFlagRequired("email")
	return c
}

func newSignupCommand() *cobra.Command {
	var seed services.ProfileSeed

	c := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if seed.Password == "" {
				pw, err := prompt(cmd.InOrStdin(), cmd.OutOrStdout(), "Password: ")
				if err != nil {
					return err
				}
				seed.Password = pw
			}
			return withApp(cmd, func(ctx context.Context, a *app) error {
				s, err := a.sessions.Signup(ctx, seed)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Welcome to TechTribe, %s!\n", s.User.FirstName)
				return nil
			})
		},
	}

	c.Flags().StringVar(&seed.FirstName, "first-name", "", "first name")
	c.Flags().StringVar(&seed.LastName, "last-name", "", "last name")
	c.Flags().StringVarP(&seed.Email, "email", "e", "", "account email")
	c.Flags().StringVarP(&seed.Password, "password", "p", "", "account password (prompted when omitted)")
	c.MarkFlagRequired("first-name")
	c.MarkFlagRequired("email")
	return c
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.sessions.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
				return nil
			})
		},
	}
}

func prompt(in io.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
