package cmd

import (
	"github.com/spf13/cobra"

	"github.com/kilianp07/eosbridge/app"
	"github.com/kilianp07/eosbridge/pkg/export"
)

var planFormat string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Run one optimizer cycle and print the plan",
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planFormat, "format", "f", "json", "output format: json or csv")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(planFormat)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	if err := svc.Fetcher.Fetch(ctx); err != nil {
		return err
	}
	return export.Write(cmd.OutOrStdout(), format, svc.Fetcher.Plan())
}
