package main

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolpay/internal/invoicegen"
	obscontext "github.com/smallbiznis/schoolpay/internal/observability/context"
	"github.com/smallbiznis/schoolpay/internal/server"
	"github.com/smallbiznis/schoolpay/internal/tenancy"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func generateCmd() *cobra.Command {
	var (
		schoolID        string
		termID          string
		includeOptional bool
		applyArrears    bool
	)
	cmd := &cobra.Command{
		Use:   "generate-invoices",
		Short: "Generate term invoices for every active enrollment of a school",
		RunE: func(cmd *cobra.Command, _ []string) error {
			school, err := snowflake.ParseString(schoolID)
			if err != nil || school == 0 {
				return tenancy.ErrMissingTargetSchool
			}
			var gen *invoicegen.Generator
			return runOnce(cmd.Context(), func(ctx context.Context) error {
				ctx = tenancy.WithSchool(ctx, school)
				ctx = obscontext.WithSchoolID(ctx, school.String())
				ctx = obscontext.WithActor(ctx, obscontext.ActorTypeSystem, "cli")
				res, err := gen.Generate(ctx, invoicegen.GenerateRequest{
					TermID:              termID,
					IncludeOptionalFees: includeOptional,
					ApplyArrears:        applyArrears,
				})
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}, infra(), server.Domain, fx.Populate(&gen))
		},
	}
	cmd.Flags().StringVar(&schoolID, "school", "", "school id")
	cmd.Flags().StringVar(&termID, "term", "", "term id")
	cmd.Flags().BoolVar(&includeOptional, "include-optional", false, "bill optional fee items too")
	cmd.Flags().BoolVar(&applyArrears, "apply-arrears", true, "carry unpaid balances from the previous term")
	_ = cmd.MarkFlagRequired("school")
	_ = cmd.MarkFlagRequired("term")
	return cmd
}
