// Command bookiqctl is the operator CLI: it seeds clinics and works the
// review queue directly against the service database.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/neomorfeo/bookiq/internal/adapter/sqlite"
	"github.com/neomorfeo/bookiq/internal/config"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bookiqctl",
		Short:         "Operate a bookiq deployment",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("env-file", ".env", "Optional dotenv file loaded before the environment")
	root.PersistentFlags().String("db", "", "Database path (overrides DATABASE_PATH)")

	root.AddCommand(seedCmd())
	root.AddCommand(tenantsCmd())
	root.AddCommand(reviewCmd())
	return root
}

// openDB loads configuration the way the server does and opens its database.
func openDB(cmd *cobra.Command) (*sqlite.DB, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if path, _ := cmd.Flags().GetString("db"); path != "" {
		cfg.DatabasePath = path
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.DatabasePath, err)
	}
	return db, nil
}
