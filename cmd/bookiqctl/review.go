package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/neomorfeo/bookiq/internal/adapter/sqlite"
	"github.com/neomorfeo/bookiq/internal/app"
	"github.com/neomorfeo/bookiq/internal/domain"
)

func reviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Inspect and resolve quarantined payment events",
	}
	cmd.AddCommand(reviewListCmd(), reviewResolveCmd())
	return cmd
}

func reviewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List review items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			all, _ := cmd.Flags().GetBool("all")
			limit, _ := cmd.Flags().GetInt("limit")

			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			filter := domain.ReviewFilter{IncludeResolved: all, Limit: limit}
			if kind != "" {
				k := domain.ReviewKind(kind)
				filter.Kind = &k
			}
			items, err := app.NewReviewService(sqlite.NewReviewRepository(db)).List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tTENANT\tRESERVATION\tCREATED\tRESOLVED\tDETAIL")
			for _, item := range items {
				resolved := "-"
				if item.ResolvedAt != nil {
					resolved = item.ResolvedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					item.ID, item.Kind, dash(item.TenantID), dash(item.ReservationID),
					item.CreatedAt.Format(time.RFC3339), resolved, item.Detail)
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("kind", "", "Only items of this kind")
	cmd.Flags().Bool("all", false, "Include resolved items")
	cmd.Flags().Int("limit", 100, "Maximum items")
	return cmd
}

func reviewResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <id>",
		Short: "Mark a review item as handled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := app.NewReviewService(sqlite.NewReviewRepository(db)).Resolve(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resolved %s\n", args[0])
			return nil
		},
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
