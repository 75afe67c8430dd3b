package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the panel's sections and inputs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = cli.Close() }()

		info := cli.EquipmentInformation()
		fmt.Printf("%s (%s)\n", info.DeviceName, info.Model)
		fmt.Printf("  serial:   %s\n", info.SerialNumber)
		fmt.Printf("  firmware: %s\n", info.FirmwareVersion)
		if len(info.Mac) > 0 {
			fmt.Printf("  mac:      %s\n", info.Mac)
		}

		fmt.Println("\nSections:")
		for _, sec := range cli.Sections() {
			fmt.Printf("  %3d  %-24s %s\n", sec.ID, sec.Name, sec.Status)
		}

		fmt.Println("\nInputs:")
		for _, in := range cli.Inputs() {
			extra := ""
			if in.Bypassed {
				extra += " [bypassed]"
			}
			if in.Disabled {
				extra += " [disabled]"
			}
			if in.Supervision {
				extra += " [supervision]"
			}
			fmt.Printf("  %3d  %-24s %s%s\n", in.ID, in.Name, in.Condition, extra)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
