package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/granobox/spool/internal/discovery"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var paired bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List Bluetooth printers known to this host",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			scanner := discovery.NewScanner(discovery.Options{Timeout: cfg.Discovery.Timeout})
			var devices []discovery.PrinterDevice
			if paired {
				devices, err = scanner.ListPaired(cmd.Context())
			} else {
				devices, err = scanner.Scan(cmd.Context())
			}
			if err != nil {
				return formatDiscoveryError(err)
			}

			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "No devices found")
				return nil
			}
			fmt.Fprintln(out, devicesTable(devices))
			return nil
		},
	}

	cmd.Flags().BoolVar(&paired, "paired", false, "List every paired device, not only printers")
	return cmd
}

func formatDiscoveryError(err error) error {
	var de *discovery.DiscoveryError
	if errors.As(err, &de) && strings.TrimSpace(de.Suggestion) != "" {
		return fmt.Errorf("%w\nhint: %s", err, de.Suggestion)
	}
	return err
}
