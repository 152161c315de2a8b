package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSignInCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "signin <user-id> <identity-token>",
		Short: "Register an identity token and sign in",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.session.SignIn(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%d favorites).\n", args[0], c.app.favorites.Len())
			return err
		},
	}
}

func newSignOutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Forget the saved credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.session.SignOut(cmd.Context()); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return err
		},
	}
}

func newDeleteAccountCmd(c *cli) *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "delete-account",
		Short: "Delete the account and everything saved with it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirm {
				return fmt.Errorf("refusing to delete the account without --yes")
			}
			if err := c.app.session.DeleteAccount(cmd.Context()); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "Account deleted.")
			return err
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm the deletion")
	return cmd
}

func newRecentSearchesCmd(c *cli) *cobra.Command {
	var clearAll bool
	cmd := &cobra.Command{
		Use:   "recent-searches",
		Short: "List or clear the saved search terms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if _, ok := c.app.session.SignedIn(); !ok {
				return errNotSignedIn
			}
			if clearAll {
				if err := c.app.session.ClearRecentSearches(ctx); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "Recent searches cleared.")
				return err
			}
			if err := c.app.session.RefreshRecentSearches(ctx); err != nil {
				return err
			}
			return renderRecentSearches(cmd.OutOrStdout(), c.app.session.RecentSearches())
		},
	}
	cmd.Flags().BoolVar(&clearAll, "clear", false, "delete every saved search")
	return cmd
}
