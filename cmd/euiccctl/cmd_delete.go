package main

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/ruminaider/euiccctl/internal/commands"
	"github.com/ruminaider/euiccctl/internal/profile"
	"github.com/spf13/cobra"
)

var deleteYes bool

var deleteCmd = &cobra.Command{
	Use:   "delete <profile>",
	Short: "Delete a disabled profile from the card",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip the confirmation prompt")
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := loadApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	target, err := commands.Target(cmd.Context(), a.reg, slotID, args[0])
	if err != nil {
		return withHint(err)
	}
	if !target.Allows(profile.ActionDelete) {
		return fmt.Errorf("%s is enabled; disable it before deleting", target.DisplayName())
	}

	if !deleteYes {
		if !isTerminal() {
			return errors.New("refusing to delete without --yes when stdin is not a terminal")
		}
		confirmed := false
		err := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("Delete %s (%s)?", target.DisplayName(), profile.MaskICCID(target.ICCID))).
					Description("The profile is removed from the card. This cannot be undone.").
					Affirmative("Delete").
					Negative("Cancel").
					Value(&confirmed),
			),
		).Run()
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil
		}
	}

	if err := commands.Delete(cmd.Context(), a.reg, slotID, target.ICCID); err != nil {
		return withHint(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", target.DisplayName())
	return nil
}
