package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/ruminaider/euiccctl/cmd/euiccctl/tui"
	"github.com/ruminaider/euiccctl/internal/config"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Manage profiles interactively",
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	// TTY guard: fall back to the plain list when stdin is not a terminal
	// (piping, scripts, etc.)
	if !isTerminal() {
		return runList(cmd, args)
	}

	a, err := loadApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	id := slotID
	if !cmd.Flags().Changed("slot") && len(a.cfg.Slots) > 1 {
		if id, err = pickSlot(a.cfg); err != nil {
			return err
		}
	}

	p := tea.NewProgram(tui.New(a.reg, id), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	final, err := p.Run()
	if err != nil {
		return err
	}
	m := final.(tui.Model)
	if m.Restarted {
		fmt.Fprintln(cmd.OutOrStdout(), m.Status())
		fmt.Fprintln(cmd.OutOrStdout(), "Run 'euiccctl' again once the card is back.")
	}
	return nil
}

func pickSlot(cfg config.Config) (int, error) {
	var options []huh.Option[int]
	for _, id := range cfg.SlotIDs() {
		sc, _ := cfg.Slot(id)
		options = append(options, huh.NewOption(fmt.Sprintf("%d  %s", id, sc.Label()), id))
	}
	var id int
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Which slot?").
				Options(options...).
				Value(&id),
		),
	).Run()
	return id, err
}
