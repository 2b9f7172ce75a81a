package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "racecontrol",
	Short: "Multi-lane race status controller",
	Long: `racecontrol sequences a timed multi-lane race: pre-race countdown,
lap counting, final lap, winner and disqualification. Status changes are
shown on the race indicator and broadcast as UDP telemetry.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (.yaml or .toml, default $RACECONTROL_CONFIG)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(simulateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
