package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ruminaider/euiccctl/internal/config"
	"github.com/ruminaider/euiccctl/internal/hotplug"
	"github.com/ruminaider/euiccctl/internal/slot"
)

// SlotRow is one line of `euiccctl slots`.
type SlotRow struct {
	slot.Status
	DevicePresent bool
}

// SlotsResult lists configured slots and the serial ports on the machine.
type SlotsResult struct {
	Slots []SlotRow
	Ports []hotplug.Port
}

// Slots describes the configured slots. lister may be nil to skip the
// serial port scan.
func Slots(reg *slot.Registry, lister hotplug.Lister) (*SlotsResult, error) {
	res := &SlotsResult{}
	var seen map[string]bool
	if lister != nil {
		ports, err := lister()
		if err != nil {
			return nil, fmt.Errorf("listing serial ports: %w", err)
		}
		res.Ports = ports
		seen = make(map[string]bool, len(ports))
		for _, p := range ports {
			seen[p.Name] = true
		}
	}
	for _, st := range reg.Statuses() {
		row := SlotRow{Status: st}
		switch {
		case st.Backend == config.BackendMemory:
			row.DevicePresent = true
		case st.Device == "":
			row.DevicePresent = true
		case seen[st.Device]:
			row.DevicePresent = true
		default:
			_, err := os.Stat(st.Device)
			row.DevicePresent = err == nil
		}
		res.Slots = append(res.Slots, row)
	}
	return res, nil
}

// ConfigInit writes the default config to path. An existing file is kept
// unless force is set.
func ConfigInit(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return config.Write(path, config.Default())
}
