package notify

import (
	"errors"
	"strings"
	"testing"

	"github.com/ruminaider/euiccctl/internal/config"
	"github.com/stretchr/testify/assert"
)

type sent struct {
	title, message string
}

func recorder(n *Notifier, err error) *[]sent {
	var out []sent
	n.send = func(title, message string) error {
		out = append(out, sent{title, message})
		return err
	}
	return &out
}

func TestNotify_Disabled(t *testing.T) {
	n := New(config.NotifyConfig{}, nil)
	got := recorder(n, nil)

	n.Notify(Event{Type: EventError, Message: "boom"})
	assert.Empty(t, *got)
	assert.False(t, n.Enabled())

	var nilNotifier *Notifier
	nilNotifier.Notify(Event{Type: EventError})
}

func TestNotify_Defaults(t *testing.T) {
	n := New(config.NotifyConfig{Desktop: true}, nil)
	got := recorder(n, nil)

	n.Notify(Event{Type: EventDownloaded})
	n.Notify(Event{Slot: "modem", Type: EventError, Message: strings.Repeat("x", 500)})

	assert.Equal(t, "euiccctl", (*got)[0].title)
	assert.Equal(t, "downloaded", (*got)[0].message)
	assert.Equal(t, "euiccctl: modem", (*got)[1].title)
	assert.Len(t, (*got)[1].message, 403)
}

func TestNotify_SendFailureIsSwallowed(t *testing.T) {
	n := New(config.NotifyConfig{Desktop: true}, nil)
	got := recorder(n, errors.New("no dbus"))

	n.Notify(Event{Title: "t", Message: "m"})
	assert.Len(t, *got, 1)
}

func TestRestartRequired(t *testing.T) {
	ev := RestartRequired("modem", "Acme Mobile", true)
	assert.Equal(t, EventRestartRequired, ev.Type)
	assert.Contains(t, ev.Message, "Acme Mobile enabled")

	ev = RestartRequired("modem", "Acme Mobile", false)
	assert.Contains(t, ev.Message, "Acme Mobile disabled")
}

func TestDownloaded(t *testing.T) {
	ev := Downloaded("modem", []string{"Fresh"})
	assert.Equal(t, EventDownloaded, ev.Type)
	assert.Equal(t, "Fresh installed. Enable it to start using it.", ev.Message)

	ev = Downloaded("modem", nil)
	assert.Contains(t, ev.Message, "A new profile installed")
}

func TestFailed(t *testing.T) {
	ev := Failed("modem", "Profile download", errors.New("smdp unreachable"))
	assert.Equal(t, EventError, ev.Type)
	assert.Equal(t, "modem", ev.Slot)
	assert.Equal(t, "Profile download failed: smdp unreachable", ev.Message)
}
