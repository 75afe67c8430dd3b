package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	unii "github.com/unii-security/go-unii"
)

var (
	host      string
	port      string
	sharedKey string
	userCode  string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "uniictl",
	Short: "Control and inspect UNii intrusion panels",
	Long: `uniictl talks to UNii intrusion panels over their encrypted TCP
protocol.

Read commands (status) need only the shared key provisioned on the
panel. Write commands (arm, disarm, bypass, unbypass) additionally need
an operator user code via --code.

Examples:
  # Find panels on the local network
  uniictl discover

  # Show sections and inputs
  uniictl --host 10.0.0.9 --key secret status

  # Arm section 1
  uniictl --host 10.0.0.9 --key secret --code 1234 arm 1`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&host, "host", "H", "", "Panel address")
	rootCmd.PersistentFlags().StringVarP(&port, "port", "p", "25301", "Panel TCP port")
	rootCmd.PersistentFlags().StringVarP(&sharedKey, "key", "k", "", "Shared key provisioned on the panel")
	rootCmd.PersistentFlags().StringVarP(&userCode, "code", "c", "", "Operator user code (write commands only)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "Command timeout")
}

// connect dials the panel from the persistent flags and waits for the
// initial state sync.
func connect(ctx context.Context) (*unii.Client, error) {
	if host == "" {
		return nil, fmt.Errorf("--host is required, try 'uniictl discover'")
	}
	if sharedKey == "" {
		return nil, fmt.Errorf("--key is required")
	}

	opts := []unii.Option{unii.WithCommandTimeout(timeout)}
	if userCode != "" {
		opts = append(opts, unii.WithUserCode(userCode))
	}
	cli := unii.New(host, port, []byte(sharedKey), opts...)
	if err := cli.Connect(ctx); err != nil {
		return nil, err
	}
	return cli, nil
}
