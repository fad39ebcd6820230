package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"neovest/internal/core"
)

func recommendationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "recommendations",
		Aliases: []string{"recs"},
		Short:   "Store and list recommendations shown to a user",
	}
	cmd.AddCommand(recommendationsAddCmd(a))
	cmd.AddCommand(recommendationsListCmd(a))
	return cmd
}

func recommendationsAddCmd(a *app) *cobra.Command {
	var (
		email string
		file  string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Store a recommendation read from a JSON file",
		Long: `Store a recommendation for a user. The JSON document carries Title, Description,
Confidence, Priority, ActionRequired, ExpiresAt and a Payload of the form
{"type": "budget_alert", "data": {...}}. Use --file - to read from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			raw, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			var rec core.Recommendation
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("decode recommendation: %w", err)
			}

			repo, err := a.openRepo()
			if err != nil {
				return err
			}
			defer repo.Close()

			u, err := userByEmail(ctx, repo, email)
			if err != nil {
				return err
			}
			rec.UserID = u.ID
			id, err := repo.SaveRecommendation(ctx, rec)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s recommendation %s\n", rec.Payload.Kind(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "owner's email address")
	cmd.Flags().StringVar(&file, "file", "-", "JSON file, or - for stdin")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}

func recommendationsListCmd(a *app) *cobra.Command {
	var (
		email  string
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's unexpired recommendations, newest first",
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
			recs, err := repo.Recommendations(ctx, u.ID, limit)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No recommendations.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				headerStyle.Render("Kind"),
				headerStyle.Render("Priority"),
				headerStyle.Render("Confidence"),
				headerStyle.Render("Title"))
			for _, r := range recs {
				fmt.Fprintf(w, "%s\t%s\t%.0f%%\t%s\n", r.Payload.Kind(), r.Priority, r.Confidence*100, r.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "owner's email address")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of recommendations")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON with tagged payloads")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
