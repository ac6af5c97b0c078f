package main

import (
	"fmt"

	"github.com/ruminaider/euiccctl/internal/commands"
	"github.com/ruminaider/euiccctl/internal/hotplug"
	"github.com/spf13/cobra"
)

var slotsCmd = &cobra.Command{
	Use:   "slots",
	Short: "Show configured slots and serial ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := commands.Slots(a.reg, hotplug.SystemPorts)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "SLOTS")
		for _, s := range res.Slots {
			mark := "✓"
			if !s.DevicePresent {
				mark = "✗"
			}
			fmt.Fprintf(out, "  %s %d  %-16s %-7s %s\n", mark, s.ID, s.Name, s.Backend, s.Device)
		}
		if len(res.Ports) > 0 {
			fmt.Fprintln(out)
			fmt.Fprintln(out, "SERIAL PORTS")
			for _, p := range res.Ports {
				desc := p.Product
				if p.USB {
					desc = fmt.Sprintf("%s [%s:%s]", p.Product, p.VID, p.PID)
				}
				fmt.Fprintf(out, "  %-20s %s\n", p.Name, desc)
			}
		}
		return nil
	},
}
