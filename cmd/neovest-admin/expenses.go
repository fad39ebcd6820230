package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"neovest/internal/core"
	"neovest/internal/records"
	"neovest/internal/stats"
	"neovest/internal/storage"
)

func userByEmail(ctx context.Context, repo *storage.SQLiteRepository, email string) (core.User, error) {
	u, err := repo.UserByEmail(ctx, email)
	if errors.Is(err, records.ErrUserNotFound) {
		return core.User{}, fmt.Errorf("no user with email %s", email)
	}
	return u, err
}

func expensesCmd(a *app) *cobra.Command {
	var (
		email string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "expenses",
		Short: "List a user's expenses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			u, err := userByEmail(ctx, repo, email)
			if err != nil {
				return err
			}
			list, err := repo.QueryRecords(ctx, u.ID, limit)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No expenses recorded.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				headerStyle.Render("Date"),
				headerStyle.Render("Description"),
				headerStyle.Render("Category"),
				headerStyle.Render("Amount"),
				headerStyle.Render("Method"),
				headerStyle.Render("Tags"))
			for _, e := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.Date.In(a.loc).Format("02 Jan 2006"),
					e.Description,
					e.Category,
					stats.FormatINR(e.Amount),
					e.PaymentMethod.Label(),
					strings.Join(e.Tags, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "owner's email address")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of expenses")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func statsCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the dashboard figures for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			u, err := userByEmail(ctx, repo, email)
			if err != nil {
				return err
			}
			list, err := repo.QueryRecords(ctx, u.ID, a.cfg.DashboardFetchLimit)
			if err != nil {
				return err
			}
			s := stats.ComputeStats(list, time.Now().In(a.loc))

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "%s\t%s\n", headerStyle.Render("Total"), stats.FormatINR(s.TotalExpenses))
			fmt.Fprintf(w, "%s\t%s\n", headerStyle.Render("This month"), stats.FormatINR(s.MonthlyExpenses))
			fmt.Fprintf(w, "%s\t%d\n", headerStyle.Render("Transactions"), s.ExpenseCount)
			fmt.Fprintf(w, "%s\t%s\n", headerStyle.Render("Average"), stats.FormatINRWhole(s.AveragePerTransaction()))
			if err := w.Flush(); err != nil {
				return err
			}

			ranked := stats.RankCategories(s, stats.DisplayCategories)
			if len(ranked) == 0 {
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout())
			w = tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				headerStyle.Render("Category"),
				headerStyle.Render("Amount"),
				headerStyle.Render("Share"))
			for _, c := range ranked {
				fmt.Fprintf(w, "%s\t%s\t%.1f%%\n", c.Category, stats.FormatINR(c.Amount), c.Percent)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "owner's email address")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func exportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Inspect the Google Sheets export queue",
	}
	var limit int
	status := &cobra.Command{
		Use:   "status",
		Short: "List expenses not yet exported, including ones the worker gave up on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			pending, err := repo.PendingSync(cmd.Context(), limit, 0)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d expense(s) pending export\n", len(pending))
			if len(pending) == 0 {
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				headerStyle.Render("ID"),
				headerStyle.Render("Recorded"),
				headerStyle.Render("Description"))
			for _, e := range pending {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.ID, e.CreatedAt.In(a.loc).Format("02 Jan 2006 15:04"), e.Description)
			}
			return nil
		},
	}
	status.Flags().IntVar(&limit, "limit", 50, "maximum number of rows")
	cmd.AddCommand(status)
	return cmd
}

func sessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Maintain signed-out session records",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete revocations whose tokens have expired",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			n, err := repo.PurgeRevoked(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired revocation(s)\n", n)
			return nil
		},
	})
	return cmd
}
