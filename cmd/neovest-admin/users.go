package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"neovest/internal/auth"
	"neovest/internal/records"
)

const passwordEnv = "NEOVEST_ADMIN_PASSWORD"

func usersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage user accounts",
	}
	cmd.AddCommand(usersAddCmd(a))
	cmd.AddCommand(usersShowCmd(a))
	return cmd
}

func usersAddCmd(a *app) *cobra.Command {
	var (
		email    string
		name     string
		password string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a user",
		Long:  `Create a user account. The password comes from --password or $` + passwordEnv + `.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				password = os.Getenv(passwordEnv)
			}
			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			// Sessions are never issued here, so any secret will do when none is configured.
			secret := []byte(a.cfg.SessionSecret)
			if len(secret) == 0 {
				secret = make([]byte, 32)
				if _, err := rand.Read(secret); err != nil {
					return fmt.Errorf("generate secret: %w", err)
				}
			}
			svc, err := auth.NewService(repo, repo, auth.Options{Secret: secret, Logger: a.logger})
			if err != nil {
				return err
			}

			u, err := svc.SignUp(cmd.Context(), email, password, name)
			switch {
			case errors.Is(err, auth.ErrEmailTaken):
				return fmt.Errorf("a user with email %s already exists", email)
			case err != nil:
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "password (at least 8 characters)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func usersShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <email>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			u, err := repo.UserByEmail(cmd.Context(), args[0])
			if errors.Is(err, records.ErrUserNotFound) {
				return fmt.Errorf("no user with email %s", args[0])
			}
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintf(w, "%s\t%s\n", headerStyle.Render("ID"), u.ID)
			fmt.Fprintf(w, "%s\t%s\n", headerStyle.Render("Email"), u.Email)
			fmt.Fprintf(w, "%s\t%s\n", headerStyle.Render("Name"), u.DisplayName)
			fmt.Fprintf(w, "%s\t%s\n", headerStyle.Render("Created"), u.CreatedAt.In(a.loc).Format("02 Jan 2006 15:04"))
			return nil
		},
	}
}
