package main

import (
	"context"
	"fmt"

	"github.com/smallbiznis/schoolpay/internal/migration"
	"github.com/smallbiznis/schoolpay/internal/seed"
	"github.com/smallbiznis/schoolpay/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed [fixture.yaml]",
		Short: "Load a development school from a YAML fixture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fixture, err := seed.ParseFile(args[0])
			if err != nil {
				return err
			}
			var loader *seed.Loader
			return runOnce(cmd.Context(), func(ctx context.Context) error {
				res, err := loader.Load(ctx, fixture)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "school %s (%s): %d students, %d fee structures\n",
					res.School.ID, res.School.Slug, res.Students, res.Fees)
				return nil
			}, infra(), migration.Module, server.Domain, seed.Module, fx.Populate(&loader))
		},
	}
}
