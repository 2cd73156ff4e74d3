package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/schoolpay/internal/clock"
	"github.com/smallbiznis/schoolpay/internal/config"
	"github.com/smallbiznis/schoolpay/internal/observability"
	"github.com/smallbiznis/schoolpay/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "schoolpay",
		Short:         "School fee invoicing and payment collection",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(generateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// infra is the shared base every command builds on.
func infra() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
	)
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}

// runOnce starts a short-lived app, hands control to fn and stops it again.
func runOnce(ctx context.Context, fn func(context.Context) error, opts ...fx.Option) error {
	app := fx.New(append(opts, fx.NopLogger)...)
	if err := app.Err(); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	runErr := fn(ctx)
	if err := app.Stop(context.Background()); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
