package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/neomorfeo/bookiq/internal/adapter/fsm"
	"github.com/neomorfeo/bookiq/internal/adapter/sqlite"
	"github.com/neomorfeo/bookiq/internal/app"
	"github.com/neomorfeo/bookiq/internal/domain"
)

func tenantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "List clinics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, _ := cmd.Flags().GetString("status")

			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			filter := domain.ListFilter{Limit: 500}
			if status != "" {
				s := domain.Status(status)
				filter.Status = &s
			}
			svc := app.NewTenantService(sqlite.NewTenantRepository(db), fsm.New(), nil)
			tenants, err := svc.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tHOST\tSTATUS")
			for _, t := range tenants {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.ID, t.Name, t.RoutingKey, t.Status)
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("status", "", "Filter by status (active, suspended)")
	return cmd
}
