package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/ruminaider/euiccctl/internal/config"
	"github.com/ruminaider/euiccctl/internal/lpa"
	"github.com/ruminaider/euiccctl/internal/profile"
	"github.com/ruminaider/euiccctl/internal/slot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	acme   = "8931000000000000001"
	globex = "8931000000000000002"
)

func sendKey(m tea.Model, key string) (tea.Model, tea.Cmd) {
	return m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})
}

func sendSpecialKey(m tea.Model, key tea.KeyType) (tea.Model, tea.Cmd) {
	return m.Update(tea.KeyMsg{Type: key})
}

// drain runs cmd and feeds every resulting message back into m until no
// work is left. Timer-driven messages are dropped so the loop ends.
func drain(t *testing.T, m tea.Model, cmd tea.Cmd) tea.Model {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case spinner.TickMsg, cursor.BlinkMsg, tea.QuitMsg:
		default:
			var next tea.Cmd
			m, next = m.Update(msg)
			queue = append(queue, next)
		}
	}
	return m
}

func newModel(t *testing.T) (Model, *lpa.Memory) {
	t.Helper()
	card := lpa.NewMemory(lpa.DemoProfiles()...)
	cfg := config.Default()
	cfg.Slots = []config.SlotConfig{{ID: 0, Name: "esim", Backend: config.BackendMemory}}
	reg := slot.NewRegistry(cfg, slot.WithOpener(func(context.Context, int) (lpa.Client, error) { return card, nil }))
	t.Cleanup(reg.Close)

	m := New(reg, 0)
	loaded := drain(t, m, m.Init())
	return loaded.(Model), card
}

func TestModel_InitLoadsProfiles(t *testing.T) {
	m, _ := newModel(t)

	assert.False(t, m.busy)
	assert.Equal(t, "esim", m.label)
	require.Len(t, m.profiles, 2, "testing profiles are hidden")
	assert.Equal(t, "2 profiles", m.Status())

	view := m.View()
	assert.Contains(t, view, "Acme Mobile")
	assert.Contains(t, view, "Travel")
	assert.NotContains(t, view, acme)
}

func TestModel_CursorMovement(t *testing.T) {
	m, _ := newModel(t)

	var tm tea.Model = m
	tm, _ = sendKey(tm, "j")
	assert.Equal(t, 1, tm.(Model).cursor)
	tm, _ = sendSpecialKey(tm, tea.KeyDown)
	assert.Equal(t, 1, tm.(Model).cursor, "cursor stops at the last row")
	tm, _ = sendSpecialKey(tm, tea.KeyUp)
	tm, _ = sendKey(tm, "k")
	assert.Equal(t, 0, tm.(Model).cursor)
}

func TestModel_RevealICCID(t *testing.T) {
	m, _ := newModel(t)

	tm, _ := sendKey(m, "i")
	assert.Contains(t, tm.View(), acme)
	tm, _ = sendKey(tm, "i")
	assert.NotContains(t, tm.View(), acme)
}

func TestModel_EnableQuitsOnRestart(t *testing.T) {
	m, card := newModel(t)

	tm, _ := sendKey(m, "j")
	tm, cmd := sendKey(tm, "e")
	assert.True(t, tm.(Model).busy)
	tm = drain(t, tm, cmd)

	got := tm.(Model)
	assert.True(t, got.Restarted)
	assert.Contains(t, got.Status(), "reloading")
	enabled, _ := profile.Enabled(card.Profiles())
	assert.Equal(t, globex, enabled.ICCID)
}

func TestModel_EnableAlreadyEnabled(t *testing.T) {
	m, card := newModel(t)

	tm, cmd := sendKey(m, "e")
	assert.Nil(t, cmd)
	assert.True(t, tm.(Model).statusErr)
	assert.Contains(t, tm.(Model).Status(), "already enabled")
	assert.Equal(t, 0, card.Calls("enable"))
}

func TestModel_DisableQuitsOnRestart(t *testing.T) {
	m, _ := newModel(t)

	tm, cmd := sendKey(m, "d")
	tm = drain(t, tm, cmd)
	assert.True(t, tm.(Model).Restarted)
}

func TestModel_Rename(t *testing.T) {
	m, card := newModel(t)

	tm, _ := sendKey(m, "j")
	tm, _ = sendKey(tm, "r")
	require.True(t, tm.(Model).overlay.Active())
	assert.Equal(t, "Travel", tm.(Model).overlay.Value(), "prefilled with the current nickname")

	for i := 0; i < len("Travel"); i++ {
		tm, _ = sendSpecialKey(tm, tea.KeyBackspace)
	}
	tm, _ = sendKey(tm, "Work")
	assert.Contains(t, tm.View(), "Rename Travel")
	tm, cmd := sendSpecialKey(tm, tea.KeyEnter)
	tm = drain(t, tm, cmd)

	got := tm.(Model)
	assert.False(t, got.overlay.Active())
	assert.False(t, got.statusErr, got.Status())
	p, ok := profile.Find(card.Profiles(), globex)
	require.True(t, ok)
	assert.Equal(t, "Work", p.Nickname)
	assert.Equal(t, "Work", got.profiles[1].DisplayName())
}

func TestModel_RenameCountsBytesNotRunes(t *testing.T) {
	m, card := newModel(t)

	tm, _ := sendKey(m, "j")
	tm, _ = sendKey(tm, "r")
	for i := 0; i < len("Travel"); i++ {
		tm, _ = sendSpecialKey(tm, tea.KeyBackspace)
	}
	// 40 runes fit the input, but at two bytes each they exceed the card's
	// 64-byte nickname field.
	tm, _ = sendKey(tm, strings.Repeat("é", 40))
	tm, cmd := sendSpecialKey(tm, tea.KeyEnter)
	assert.Nil(t, cmd)

	got := tm.(Model)
	require.True(t, got.overlay.Active(), "overlay stays open on an invalid nickname")
	assert.Contains(t, got.View(), "80 bytes, max 64")
	assert.Equal(t, 0, card.Calls("nickname"))

	for i := 0; i < 10; i++ {
		tm, _ = sendSpecialKey(tm, tea.KeyBackspace)
	}
	assert.NotContains(t, tm.View(), "max 64", "editing clears the error")
	tm, cmd = sendSpecialKey(tm, tea.KeyEnter)
	tm = drain(t, tm, cmd)

	assert.False(t, tm.(Model).overlay.Active())
	p, ok := profile.Find(card.Profiles(), globex)
	require.True(t, ok)
	assert.Equal(t, strings.Repeat("é", 30), p.Nickname)
}

func TestModel_RenameCancelled(t *testing.T) {
	m, card := newModel(t)

	tm, _ := sendKey(m, "r")
	tm, cmd := sendSpecialKey(tm, tea.KeyEsc)
	tm = drain(t, tm, cmd)

	assert.False(t, tm.(Model).overlay.Active())
	assert.Equal(t, pendingNone, tm.(Model).pending)
	assert.Equal(t, 0, card.Calls("nickname"))
}

func TestModel_DeleteRequiresDisabled(t *testing.T) {
	m, _ := newModel(t)

	tm, _ := sendKey(m, "x")
	assert.False(t, tm.(Model).overlay.Active())
	assert.Contains(t, tm.(Model).Status(), "disable Acme Mobile before deleting it")
}

func TestModel_DeleteConfirmed(t *testing.T) {
	m, card := newModel(t)

	tm, _ := sendKey(m, "j")
	tm, _ = sendKey(tm, "x")
	require.True(t, tm.(Model).overlay.Active())
	assert.Equal(t, 0, tm.(Model).overlay.cursor, "cursor starts on Cancel")

	tm, cmd := sendKey(tm, "y")
	tm = drain(t, tm, cmd)

	got := tm.(Model)
	require.Len(t, got.profiles, 1)
	assert.Equal(t, 0, got.cursor, "cursor clamps to the remaining rows")
	_, ok := profile.Find(card.Profiles(), globex)
	assert.False(t, ok)
}

func TestModel_DeleteCancelledWithEnter(t *testing.T) {
	m, card := newModel(t)

	tm, _ := sendKey(m, "j")
	tm, _ = sendKey(tm, "x")
	tm, cmd := sendSpecialKey(tm, tea.KeyEnter)
	tm = drain(t, tm, cmd)

	assert.Len(t, tm.(Model).profiles, 2)
	assert.Equal(t, 0, card.Calls("delete"))
}

func TestModel_Download(t *testing.T) {
	m, _ := newModel(t)

	tm, _ := sendKey(m, "n")
	tm, _ = sendKey(tm, "LPA:1$smdp.example.com$Fresh")
	tm, cmd := sendSpecialKey(tm, tea.KeyEnter)
	tm = drain(t, tm, cmd)

	got := tm.(Model)
	assert.False(t, got.statusErr, got.Status())
	require.Len(t, got.profiles, 3)
	assert.Equal(t, "Fresh", got.profiles[2].DisplayName())
}

func TestModel_DownloadAsksForConfirmationCode(t *testing.T) {
	m, _ := newModel(t)

	tm, _ := sendKey(m, "n")
	tm, _ = sendKey(tm, "LPA:1$smdp.example.com$Fresh$$1")
	tm, cmd := sendSpecialKey(tm, tea.KeyEnter)
	tm = drain(t, tm, cmd)

	require.True(t, tm.(Model).overlay.Active())
	assert.Equal(t, pendingConfirmationCode, tm.(Model).pending)

	tm, _ = sendKey(tm, "1234")
	tm, cmd = sendSpecialKey(tm, tea.KeyEnter)
	tm = drain(t, tm, cmd)
	assert.Len(t, tm.(Model).profiles, 3)
}

func TestModel_DownloadInvalidCode(t *testing.T) {
	m, card := newModel(t)

	tm, _ := sendKey(m, "n")
	tm, _ = sendKey(tm, "not-a-code")
	tm, cmd := sendSpecialKey(tm, tea.KeyEnter)
	tm = drain(t, tm, cmd)

	assert.True(t, tm.(Model).statusErr)
	assert.Contains(t, tm.(Model).Status(), "download failed")
	assert.Equal(t, 0, card.Calls("download"))
}

func TestModel_RefreshFailureKeepsList(t *testing.T) {
	m, card := newModel(t)
	card.FailNext("list", errors.New("card busy"))

	tm, cmd := sendKey(m, "R")
	tm = drain(t, tm, cmd)

	got := tm.(Model)
	assert.True(t, got.statusErr)
	assert.Contains(t, got.Status(), "try again")
	assert.Len(t, got.profiles, 2)
}

func TestModel_BusyIgnoresActions(t *testing.T) {
	m, card := newModel(t)

	tm, _ := sendKey(m, "j")
	tm, _ = sendKey(tm, "e")
	tm, cmd := sendKey(tm, "x")
	assert.Nil(t, cmd)
	assert.False(t, tm.(Model).overlay.Active())
	assert.Contains(t, tm.(Model).Status(), "in progress")
	assert.Equal(t, 0, card.Calls("enable"), "the enable command has not run yet")
}

func TestModel_Quit(t *testing.T) {
	m, _ := newModel(t)

	tm, cmd := sendKey(m, "q")
	assert.True(t, tm.(Model).Quitting)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	tm, _ = sendKey(m, "r")
	tm, _ = sendKey(tm, "q")
	assert.False(t, tm.(Model).Quitting, "q is text inside an overlay")
	tm, _ = sendSpecialKey(tm, tea.KeyCtrlC)
	assert.True(t, tm.(Model).Quitting)
}

func TestComposite(t *testing.T) {
	bg := "aaaaaaaaaa\nbbbbbbbbbb\ncccccccccc"
	out := Composite(bg, "XX", 10, 3)
	assert.Equal(t, "aaaaaaaaaa\nbbbbXXbbbb\ncccccccccc", out)

	assert.Equal(t, bg, Composite(bg, "", 10, 3))
}
