package commands

import (
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := listDevices()
		if err != nil {
			return err
		}
		return printResult(cmd, devices)
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
