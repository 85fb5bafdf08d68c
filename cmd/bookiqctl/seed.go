package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/neomorfeo/bookiq/internal/adapter/fsm"
	"github.com/neomorfeo/bookiq/internal/adapter/sqlite"
	"github.com/neomorfeo/bookiq/internal/app"
	"github.com/neomorfeo/bookiq/internal/domain"
)

// seedFile is the YAML layout accepted by `bookiqctl seed`.
type seedFile struct {
	Tenants []seedTenant `yaml:"tenants"`
}

type seedTenant struct {
	ID         string    `yaml:"id"`
	Name       string    `yaml:"name"`
	RoutingKey string    `yaml:"routing_key"`
	Aliases    []string  `yaml:"aliases"`
	Fees       []seedFee `yaml:"fees"`
}

type seedFee struct {
	ProviderID string `yaml:"provider_id"`
	Amount     int64  `yaml:"amount"`
	Currency   string `yaml:"currency"`
}

func parseSeed(r io.Reader) (seedFile, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return seedFile{}, fmt.Errorf("parsing seed file: %w", err)
	}

	for i, t := range f.Tenants {
		if t.ID == "" || t.Name == "" || t.RoutingKey == "" {
			return seedFile{}, fmt.Errorf("tenant %d: id, name and routing_key are required", i)
		}
		for _, fee := range t.Fees {
			if fee.ProviderID == "" || fee.Amount <= 0 || len(fee.Currency) != 3 {
				return seedFile{}, fmt.Errorf("tenant %s: invalid fee for provider %q", t.ID, fee.ProviderID)
			}
		}
	}
	return f, nil
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create clinics, hostnames and fees from a YAML file",
		Long: `Seed is idempotent: existing tenants are left as they are, hostnames
already mapped to the same tenant are skipped, and fees are overwritten.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("file")
			fh, err := os.Open(path)
			if err != nil {
				return err
			}
			defer fh.Close()

			f, err := parseSeed(fh)
			if err != nil {
				return err
			}

			db, err := openDB(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			return seed(cmd.Context(), db, f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringP("file", "f", "tenants.yaml", "Seed file")
	return cmd
}

func seed(ctx context.Context, db *sqlite.DB, f seedFile, out io.Writer) error {
	repo := sqlite.NewTenantRepository(db)
	tenants := app.NewTenantService(repo, fsm.New(), nil)
	fees := sqlite.NewFeeRepository(db)

	for _, st := range f.Tenants {
		tenant, err := tenants.GetByID(ctx, st.ID)
		switch {
		case err == nil:
			fmt.Fprintf(out, "tenant %s exists\n", st.ID)
		case errors.Is(err, domain.ErrTenantNotFound):
			if tenant, err = tenants.CreateWithID(ctx, st.ID, st.Name, st.RoutingKey); err != nil {
				return fmt.Errorf("tenant %s: %w", st.ID, err)
			}
			fmt.Fprintf(out, "tenant %s created on %s\n", tenant.ID, tenant.RoutingKey)
		default:
			return err
		}

		for _, alias := range st.Aliases {
			if err := addAlias(ctx, tenants, repo, tenant.ID, alias); err != nil {
				return fmt.Errorf("tenant %s: %w", st.ID, err)
			}
		}

		for _, fee := range st.Fees {
			money := domain.Money{Amount: fee.Amount, Currency: fee.Currency}
			if err := fees.SetFee(ctx, tenant, fee.ProviderID, money); err != nil {
				return fmt.Errorf("tenant %s: fee for %s: %w", st.ID, fee.ProviderID, err)
			}
		}
	}
	return nil
}

func addAlias(ctx context.Context, tenants *app.TenantService, repo domain.TenantRepository, tenantID, alias string) error {
	err := tenants.AddRoutingKey(ctx, tenantID, alias)
	if !errors.Is(err, domain.ErrRoutingKeyConflict) {
		return err
	}
	owner, lookupErr := repo.GetByRoutingKey(ctx, app.NormalizeHost(alias))
	if lookupErr == nil && owner.ID == tenantID {
		return nil
	}
	return err
}
