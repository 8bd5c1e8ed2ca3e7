package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/guimove/autoscaler/internal/config"
)

var (
	cfgFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "autoscaler",
	Short: "Autoscaling control loop for a two-tier VM/DB workload",
	Long: `autoscaler samples a remote API's usage statistic on a fixed cadence,
estimates per-pod overhead, forecasts near-future request volume, and
mutates the provisioned VM and DB fleets to keep predicted load within
a configured band at minimum aggregate cost.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile, cmd.Flags())
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: autoscaler.yaml)")
	rootCmd.PersistentFlags().String("host", "", "remote API base URL")
	rootCmd.PersistentFlags().String("token", "", "remote API auth token")
}
