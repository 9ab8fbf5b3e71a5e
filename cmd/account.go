package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLoginCmd(opts *globalOptions) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with your Firebase account",
		Long: `Sign in with email and password. The session is saved under your user
config directory and reused by later commands until you log out.`,
		Example: `  $ allenchat login
  $ allenchat login --email ada@example.com`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fb, err := newFirebase(opts.cfg, email)
			if err != nil {
				return err
			}
			authCtx, err := signedInContext(cmd.Context(), fb)
			if err != nil {
				printError("login failed: %v", err)
				return fmt.Errorf("authentication failed")
			}
			defer authCtx.Close()

			printSuccess("Signed in as %s", authCtx.User().Name())
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "email address (prompted when empty)")
	return cmd
}

func newLogoutCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fb, err := newFirebase(opts.cfg, "")
			if err != nil {
				return err
			}
			if err := fb.SignOut(cmd.Context()); err != nil {
				return err
			}
			printSuccess("Signed out")
			return nil
		},
	}
}

func newWhoamiCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fb, err := newFirebase(opts.cfg, "")
			if err != nil {
				return err
			}
			user, err := fb.Lookup(cmd.Context())
			if err != nil {
				return err
			}

			boldColor.Println(user.Name())
			fmt.Printf("UID:    %s\n", user.UID)
			fmt.Printf("Email:  %s\n", user.Email)
			return nil
		},
	}
}
