package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "configuration ok: optimizer=%s url=%s\n", cfg.Optimizer.Source, cfg.Optimizer.URL)
		fmt.Fprintf(out, "battery: %.0f Wh, reader=%s\n", cfg.Battery.CapacityWh, cfg.Battery.Reader)
		fmt.Fprintf(out, "inputs: pv=%s price=%s load=%s\n", cfg.Inputs.PV.Type, cfg.Inputs.Price.Type, orDefault(cfg.Inputs.Load.Type, "default"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
