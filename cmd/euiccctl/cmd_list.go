package main

import (
	"fmt"

	"github.com/ruminaider/euiccctl/internal/commands"
	"github.com/spf13/cobra"
)

var showICCID bool

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List profiles on a slot",
	RunE:    runList,
}

func init() {
	listCmd.Flags().BoolVar(&showICCID, "show-iccid", false, "print full ICCIDs")
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := loadApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := commands.List(cmd.Context(), a.reg, slotID, showICCID)
	if err != nil {
		return withHint(err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", res.Slot)
	if len(res.Profiles) == 0 {
		fmt.Fprintln(out, "  No profiles installed. Run 'euiccctl download' to add one.")
		return nil
	}
	for _, p := range res.Profiles {
		mark := " "
		if p.Enabled {
			mark = "●"
		}
		fmt.Fprintf(out, "  %s %-24s %-20s %s\n", mark, p.Name, p.Provider, p.ICCID)
	}
	return nil
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-read the profile list from the card",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := commands.Refresh(cmd.Context(), a.reg, slotID)
		if err != nil {
			return withHint(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d profiles on slot %d\n", n, slotID)
		return nil
	},
}
