package main

import (
	"fmt"

	"github.com/ruminaider/euiccctl/internal/commands"
	"github.com/ruminaider/euiccctl/internal/profile"
	"github.com/spf13/cobra"
)

var renameCmd = &cobra.Command{
	Use:   "rename <profile> <nickname>",
	Short: "Set a profile's nickname",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		p, err := commands.Rename(cmd.Context(), a.reg, slotID, args[0], args[1])
		if err != nil {
			return withHint(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %s.\n", profile.MaskICCID(p.ICCID), p.DisplayName())
		return nil
	},
}
