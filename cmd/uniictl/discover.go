package main

import (
	"fmt"

	"github.com/spf13/cobra"
	unii "github.com/unii-security/go-unii"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find panels on the local network",
	Long: `Broadcast a discovery probe and list every panel that answers.

Panels respond with their serial number, model, firmware version and
the TCP port the client protocol listens on.

Exit codes:
  0 - at least one panel found
  1 - no panels responded`,
	RunE: func(cmd *cobra.Command, args []string) error {
		panels, err := unii.Discover(cmd.Context(), timeout)
		if err != nil {
			return err
		}
		if len(panels) == 0 {
			return fmt.Errorf("no panels responded in %s", timeout)
		}
		for _, p := range panels {
			fmt.Printf("%s:%d\n", p.Host, p.Port)
			fmt.Printf("  serial:   %s\n", p.SerialNumber)
			fmt.Printf("  model:    %s\n", p.Model)
			fmt.Printf("  firmware: %s\n", p.FirmwareVersion)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}
