package main

import (
	"context"
	"fmt"

	"github.com/ruminaider/euiccctl/internal/commands"
	"github.com/ruminaider/euiccctl/internal/slot"
	"github.com/spf13/cobra"
)

var enableCmd = &cobra.Command{
	Use:   "enable <profile>",
	Short: "Enable a profile (ICCID, ICCID suffix or name)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSwitch(cmd, args[0], commands.Enable, "Enabled")
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable <profile>",
	Short: "Disable a profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSwitch(cmd, args[0], commands.Disable, "Disabled")
	},
}

type switchFunc func(ctx context.Context, reg *slot.Registry, id int, ref string) (*commands.SwitchResult, error)

func runSwitch(cmd *cobra.Command, ref string, fn switchFunc, verb string) error {
	a, err := loadApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := fn(cmd.Context(), a.reg, slotID, ref)
	if err != nil {
		return withHint(err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s.\n", verb, res.Profile.DisplayName())
	if res.RestartRequired {
		fmt.Fprintln(out, "The modem is reloading the card; profiles are back in a few seconds.")
	}
	return nil
}
