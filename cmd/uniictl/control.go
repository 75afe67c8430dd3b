package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	unii "github.com/unii-security/go-unii"
)

var armCmd = &cobra.Command{
	Use:   "arm <section>",
	Short: "Arm a section",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return control(cmd.Context(), args[0], "armed", func(cli *unii.Client, ctx context.Context, id uint16) error {
			return cli.Arm(ctx, id)
		})
	},
}

var disarmCmd = &cobra.Command{
	Use:   "disarm <section>",
	Short: "Disarm a section",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return control(cmd.Context(), args[0], "disarmed", func(cli *unii.Client, ctx context.Context, id uint16) error {
			return cli.Disarm(ctx, id)
		})
	},
}

var bypassCmd = &cobra.Command{
	Use:   "bypass <input>",
	Short: "Exclude an input from triggering alarms",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return control(cmd.Context(), args[0], "bypassed", func(cli *unii.Client, ctx context.Context, id uint16) error {
			return cli.Bypass(ctx, id)
		})
	},
}

var unbypassCmd = &cobra.Command{
	Use:   "unbypass <input>",
	Short: "Re-include a bypassed input",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return control(cmd.Context(), args[0], "unbypassed", func(cli *unii.Client, ctx context.Context, id uint16) error {
			return cli.Unbypass(ctx, id)
		})
	},
}

func init() {
	rootCmd.AddCommand(armCmd, disarmCmd, bypassCmd, unbypassCmd)
}

func control(ctx context.Context, arg, verb string, fn func(*unii.Client, context.Context, uint16) error) error {
	id, err := strconv.ParseUint(arg, 10, 16)
	if err != nil {
		return fmt.Errorf("invalid identifier %q: %v", arg, err)
	}

	cli, err := connect(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	if err := fn(cli, ctx, uint16(id)); err != nil {
		return err
	}
	fmt.Printf("%s %d\n", verb, id)
	return nil
}
