package main

import (
	"context"
	"fmt"

	"github.com/smallbiznis/schoolpay/internal/migration"
	"github.com/smallbiznis/schoolpay/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func migrateCmd() *cobra.Command {
	var statusOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending postgres migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var conn *gorm.DB
			return runOnce(cmd.Context(), func(context.Context) error {
				if !db.IsPostgres(conn) {
					return fmt.Errorf("migrate: unsupported dialect %q", conn.Dialector.Name())
				}
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				if !statusOnly {
					if err := migration.RunMigrations(sqlDB); err != nil {
						return err
					}
				}
				v, dirty, err := migration.Version(sqlDB)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", v, dirty)
				return nil
			}, infra(), fx.Populate(&conn))
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "print the applied version without migrating")
	return cmd
}
