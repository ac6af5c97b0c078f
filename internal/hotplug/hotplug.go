// Package hotplug watches the serial ports that modems expose and turns
// their coming and going into slot signals.
package hotplug

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"
)

// Port is one serial port seen on the system.
type Port struct {
	Name    string `json:"name"`
	USB     bool   `json:"usb"`
	VID     string `json:"vid,omitempty"`
	PID     string `json:"pid,omitempty"`
	Serial  string `json:"serial,omitempty"`
	Product string `json:"product,omitempty"`
}

// Lister returns the ports currently present.
type Lister func() ([]Port, error)

// SystemPorts lists the serial ports of this machine, sorted by name.
func SystemPorts() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	ports := make([]Port, 0, len(details))
	for _, d := range details {
		if d == nil {
			continue
		}
		ports = append(ports, Port{
			Name:    d.Name,
			USB:     d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Serial:  d.SerialNumber,
			Product: d.Product,
		})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}

// Invalidator drops a slot's channel handle.
type Invalidator interface {
	Invalidate(slot int) bool
}

// Kind says what happened to a slot's port.
type Kind string

const (
	Appeared    Kind = "appeared"
	Disappeared Kind = "disappeared"
)

// Event is a change in a watched port.
type Event struct {
	Slot   int    `json:"slot"`
	Device string `json:"device"`
	Kind   Kind   `json:"kind"`
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLister replaces the system port lister.
func WithLister(l Lister) Option {
	return func(w *Watcher) { w.list = l }
}

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(w *Watcher) { w.log = log.Named("hotplug") }
}

// Watcher polls for the device ports of the configured slots. When a port
// disappears the slot's handle is invalidated; when it comes back the slot
// gets a profiles-changed signal.
type Watcher struct {
	devices    map[int]string
	invalidate Invalidator
	list       Lister
	interval   time.Duration
	log        *zap.Logger

	mu      sync.Mutex
	present map[int]bool
	primed  bool
	changed map[int]chan struct{}
	subs    []chan Event
}

// NewWatcher watches devices, a map from slot id to device path.
func NewWatcher(devices map[int]string, inv Invalidator, opts ...Option) *Watcher {
	w := &Watcher{
		devices:    make(map[int]string, len(devices)),
		invalidate: inv,
		list:       SystemPorts,
		interval:   2 * time.Second,
		log:        zap.NewNop(),
		present:    make(map[int]bool),
		changed:    make(map[int]chan struct{}),
	}
	for slot, dev := range devices {
		if dev == "" {
			continue
		}
		w.devices[slot] = dev
		w.changed[slot] = make(chan struct{}, 1)
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Changed returns the profiles-changed signal for slot. Signals coalesce.
// Slots without a device get a channel that never fires.
func (w *Watcher) Changed(slot int) <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch, ok := w.changed[slot]
	if !ok {
		return nil
	}
	return ch
}

// Events returns a channel receiving every port event. Slow readers miss
// events.
func (w *Watcher) Events() <-chan Event {
	ch := make(chan Event, 16)
	w.mu.Lock()
	w.subs = append(w.subs, ch)
	w.mu.Unlock()
	return ch
}

// Present reports whether slot's device was seen by the last poll.
func (w *Watcher) Present(slot int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.present[slot]
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if len(w.devices) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Poll()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Poll()
		}
	}
}

// Poll lists ports once and emits events for changes since the last poll.
// The first poll only records what is present.
func (w *Watcher) Poll() []Event {
	ports, err := w.list()
	if err != nil {
		w.log.Debug("listing serial ports failed", zap.Error(err))
		return nil
	}
	seen := make(map[string]bool, len(ports))
	for _, p := range ports {
		seen[p.Name] = true
	}

	w.mu.Lock()
	var events []Event
	for slot, dev := range w.devices {
		now := seen[dev]
		was := w.present[slot]
		w.present[slot] = now
		if !w.primed || now == was {
			continue
		}
		kind := Appeared
		if !now {
			kind = Disappeared
		}
		events = append(events, Event{Slot: slot, Device: dev, Kind: kind})
	}
	w.primed = true
	subs := append([]chan Event(nil), w.subs...)
	w.mu.Unlock()

	sort.Slice(events, func(i, j int) bool { return events[i].Slot < events[j].Slot })
	for _, ev := range events {
		w.log.Info("slot device changed", zap.Int("slot", ev.Slot), zap.String("device", ev.Device), zap.String("kind", string(ev.Kind)))
		switch ev.Kind {
		case Disappeared:
			if w.invalidate != nil {
				w.invalidate.Invalidate(ev.Slot)
			}
		case Appeared:
			select {
			case w.changed[ev.Slot] <- struct{}{}:
			default:
			}
		}
		for _, ch := range subs {
			select {
			case ch <- ev:
			default:
			}
		}
	}
	return events
}
