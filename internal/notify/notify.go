// Package notify tells the user about slot events that happen out of view,
// such as a modem restarting after a profile switch.
package notify

import (
	"fmt"
	"strings"

	"github.com/gen2brain/beeep"
	"github.com/ruminaider/euiccctl/internal/config"
	"go.uber.org/zap"
)

// EventType is the kind of slot event.
type EventType string

const (
	EventRestartRequired EventType = "restart_required"
	EventDownloaded      EventType = "downloaded"
	EventError           EventType = "error"
)

// Event describes something worth telling the user about.
type Event struct {
	Slot    string
	Type    EventType
	Title   string
	Message string
}

// Notifier sends desktop notifications when enabled.
type Notifier struct {
	enabled bool
	send    func(title, message string) error
	log     *zap.Logger
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithSender replaces the desktop backend.
func WithSender(send func(title, message string) error) Option {
	return func(n *Notifier) { n.send = send }
}

// New returns a notifier for cfg.
func New(cfg config.NotifyConfig, log *zap.Logger, opts ...Option) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	n := &Notifier{
		enabled: cfg.Desktop,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
		log: log,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enabled reports whether notifications are delivered.
func (n *Notifier) Enabled() bool {
	return n != nil && n.enabled
}

// Notify delivers ev. Delivery failures are logged, not returned.
func (n *Notifier) Notify(ev Event) {
	if !n.Enabled() {
		return
	}
	title := strings.TrimSpace(ev.Title)
	if title == "" {
		title = "euiccctl"
		if ev.Slot != "" {
			title = fmt.Sprintf("euiccctl: %s", ev.Slot)
		}
	}
	message := strings.TrimSpace(ev.Message)
	if message == "" {
		message = string(ev.Type)
	}
	if len(message) > 400 {
		message = message[:400] + "..."
	}
	if err := n.send(title, message); err != nil {
		n.log.Warn("desktop notification failed", zap.String("event", string(ev.Type)), zap.Error(err))
	}
}

// RestartRequired is the event sent after a profile switch.
func RestartRequired(slot, profileName string, enabled bool) Event {
	verb := "disabled"
	if enabled {
		verb = "enabled"
	}
	return Event{
		Slot:    slot,
		Type:    EventRestartRequired,
		Message: fmt.Sprintf("%s %s. The modem is restarting; reconnect to the slot to continue.", profileName, verb),
	}
}

// Downloaded is the event sent after a profile download completes.
func Downloaded(slot string, profileNames []string) Event {
	installed := "A new profile"
	if len(profileNames) > 0 {
		installed = strings.Join(profileNames, ", ")
	}
	return Event{
		Slot:    slot,
		Type:    EventDownloaded,
		Message: fmt.Sprintf("%s installed. Enable it to start using it.", installed),
	}
}

// Failed is the event sent when a long-running operation gives up.
func Failed(slot, op string, err error) Event {
	return Event{
		Slot:    slot,
		Type:    EventError,
		Message: fmt.Sprintf("%s failed: %v", op, err),
	}
}
