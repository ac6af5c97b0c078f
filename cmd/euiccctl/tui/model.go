// Package tui is the interactive profile manager for one slot.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/ruminaider/euiccctl/internal/commands"
	"github.com/ruminaider/euiccctl/internal/controller"
	"github.com/ruminaider/euiccctl/internal/download"
	"github.com/ruminaider/euiccctl/internal/profile"
	"github.com/ruminaider/euiccctl/internal/slot"
)

// opTimeout bounds a single card operation. Downloads talk to the SM-DP+
// and get longer.
const (
	opTimeout       = 30 * time.Second
	downloadTimeout = 5 * time.Minute
)

type pending int

const (
	pendingNone pending = iota
	pendingRename
	pendingDelete
	pendingDownload
	pendingConfirmationCode
)

// loadedMsg carries the result of opening the slot and refreshing it.
type loadedMsg struct {
	label    string
	profiles []profile.Profile
	err      error
}

// opDoneMsg carries the result of a mutating operation.
type opDoneMsg struct {
	op       string
	subject  string
	outcome  controller.Outcome
	profiles []profile.Profile
	err      error
}

// Model is the profile list of one slot.
type Model struct {
	reg    *slot.Registry
	slotID int
	label  string

	profiles  []profile.Profile
	cursor    int
	showICCID bool

	busy    bool
	spinner spinner.Model

	overlay Overlay
	pending pending
	target  profile.Profile
	code    string // activation code waiting for a confirmation code

	status    string
	statusErr bool

	width  int
	height int

	// Restarted is set when a switch succeeded and the modem is
	// reloading the card. The program quits right after.
	Restarted bool
	// Quitting is set when the user asked to leave.
	Quitting bool
}

// New returns a model for slot id of reg.
func New(reg *slot.Registry, id int) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = StatusStyle
	label := fmt.Sprintf("slot %d", id)
	if sc, ok := reg.Config().Slot(id); ok {
		label = sc.Label()
	}
	return Model{
		reg:     reg,
		slotID:  id,
		label:   label,
		spinner: sp,
		busy:    true,
		status:  "reading profiles",
	}
}

// Init loads the profile list.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.load())
}

func (m Model) load() tea.Cmd {
	reg, id := m.reg, m.slotID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		sess, err := reg.Session(ctx, id)
		if err != nil {
			return loadedMsg{err: err}
		}
		err = sess.Controller.Refresh(ctx)
		return loadedMsg{label: sess.Label(), profiles: sess.Controller.CurrentProfiles(), err: err}
	}
}

// run starts op on the slot's current session in the background.
func (m Model) run(op, subject string, timeout time.Duration, fn func(context.Context, *slot.Session) (controller.Outcome, error)) (Model, tea.Cmd) {
	m.busy = true
	m.status = fmt.Sprintf("%s %s", op, subject)
	m.statusErr = false
	reg, id := m.reg, m.slotID
	cmd := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		sess, err := reg.Session(ctx, id)
		if err != nil {
			return opDoneMsg{op: op, subject: subject, err: err}
		}
		outcome, err := fn(ctx, sess)
		return opDoneMsg{op: op, subject: subject, outcome: outcome, profiles: sess.Controller.CurrentProfiles(), err: err}
	}
	return m, tea.Batch(m.spinner.Tick, cmd)
}

// Selected returns the profile under the cursor.
func (m Model) Selected() (profile.Profile, bool) {
	if m.cursor < 0 || m.cursor >= len(m.profiles) {
		return profile.Profile{}, false
	}
	return m.profiles[m.cursor], true
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loadedMsg:
		m.busy = false
		if msg.label != "" {
			m.label = msg.label
		}
		m.setProfiles(msg.profiles)
		if msg.err != nil {
			m.fail("refresh", msg.err)
			return m, nil
		}
		m.status = fmt.Sprintf("%d profiles", len(m.profiles))
		m.statusErr = false
		return m, nil

	case opDoneMsg:
		return m.finish(msg)

	case OverlayCloseMsg:
		return m.closeOverlay(msg)

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.Quitting = true
			return m, tea.Quit
		}
		if m.overlay.Active() {
			var cmd tea.Cmd
			m.overlay, cmd = m.overlay.Update(msg)
			return m, cmd
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.Quitting = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if m.cursor < len(m.profiles)-1 {
			m.cursor++
		}
		return m, nil
	case "i":
		m.showICCID = !m.showICCID
		return m, nil
	}

	if m.busy {
		m.status = "an operation is in progress"
		m.statusErr = true
		return m, nil
	}

	switch msg.String() {
	case "R":
		m.busy = true
		m.status = "reading profiles"
		m.statusErr = false
		return m, tea.Batch(m.spinner.Tick, m.load())
	case "n":
		m.pending = pendingDownload
		m.overlay = NewTextInputOverlay("Download profile", "LPA:1$smdp.example.com$MATCHING-ID", "", 255)
		return m, nil
	}

	p, ok := m.Selected()
	if !ok {
		return m, nil
	}
	switch msg.String() {
	case "e":
		if !m.allowed(p, profile.ActionEnable) {
			return m, nil
		}
		return m.run("enabling", p.DisplayName(), opTimeout, func(ctx context.Context, s *slot.Session) (controller.Outcome, error) {
			return s.Enable(ctx, p.ICCID)
		})
	case "d":
		if !m.allowed(p, profile.ActionDisable) {
			return m, nil
		}
		return m.run("disabling", p.DisplayName(), opTimeout, func(ctx context.Context, s *slot.Session) (controller.Outcome, error) {
			return s.Disable(ctx, p.ICCID)
		})
	case "r":
		m.pending = pendingRename
		m.target = p
		m.overlay = NewTextInputOverlay("Rename "+p.DisplayName(), "nickname", p.Nickname, profile.MaxNicknameLen).
			WithValidate(profile.ValidateNickname)
		return m, nil
	case "x":
		if !m.allowed(p, profile.ActionDelete) {
			return m, nil
		}
		m.pending = pendingDelete
		m.target = p
		m.overlay = NewConfirmOverlay("Delete profile",
			fmt.Sprintf("Delete %s (%s)?\nThis cannot be undone.", p.DisplayName(), profile.MaskICCID(p.ICCID)))
		return m, nil
	}
	return m, nil
}

func (m *Model) allowed(p profile.Profile, a profile.Action) bool {
	if p.Allows(a) {
		return true
	}
	if a == profile.ActionDelete {
		m.status = fmt.Sprintf("disable %s before deleting it", p.DisplayName())
	} else {
		m.status = fmt.Sprintf("%s is already %s", p.DisplayName(), p.State)
	}
	m.statusErr = true
	return false
}

func (m Model) closeOverlay(msg OverlayCloseMsg) (tea.Model, tea.Cmd) {
	action, target := m.pending, m.target
	m.pending = pendingNone
	if !msg.Confirmed {
		return m, nil
	}

	switch action {
	case pendingRename:
		return m.run("renaming", target.DisplayName(), opTimeout, func(ctx context.Context, s *slot.Session) (controller.Outcome, error) {
			return s.Controller.Rename(ctx, target.ICCID, msg.Result)
		})

	case pendingDelete:
		return m.run("deleting", target.DisplayName(), opTimeout, func(ctx context.Context, s *slot.Session) (controller.Outcome, error) {
			return s.Controller.Delete(ctx, target.ICCID)
		})

	case pendingDownload:
		req, err := commands.DownloadOptions{ActivationCode: msg.Result}.Request()
		if errors.Is(err, download.ErrConfirmationRequired) {
			m.code = msg.Result
			m.pending = pendingConfirmationCode
			m.overlay = NewTextInputOverlay("Confirmation code", "code from your carrier", "", 64)
			return m, nil
		}
		if err != nil {
			m.fail("download", err)
			return m, nil
		}
		return m.download(req.SMDP, commands.DownloadOptions{ActivationCode: msg.Result})

	case pendingConfirmationCode:
		opts := commands.DownloadOptions{ActivationCode: m.code, ConfirmationCode: msg.Result}
		m.code = ""
		req, err := opts.Request()
		if err != nil {
			m.fail("download", err)
			return m, nil
		}
		return m.download(req.SMDP, opts)
	}
	return m, nil
}

func (m Model) download(smdp string, opts commands.DownloadOptions) (tea.Model, tea.Cmd) {
	return m.run("downloading from", smdp, downloadTimeout, func(ctx context.Context, s *slot.Session) (controller.Outcome, error) {
		req, err := opts.Request()
		if err != nil {
			return controller.Failed, err
		}
		outcome, _, err := s.Download(ctx, req, nil)
		return outcome, err
	})
}

func (m Model) finish(msg opDoneMsg) (tea.Model, tea.Cmd) {
	m.busy = false
	if msg.err != nil {
		m.fail(msg.op, msg.err)
		return m, nil
	}
	if msg.outcome == controller.RestartRequired {
		m.Restarted = true
		m.status = fmt.Sprintf("%s %s: the modem is reloading the card", msg.op, msg.subject)
		m.statusErr = false
		return m, tea.Quit
	}
	m.setProfiles(msg.profiles)
	m.status = fmt.Sprintf("done %s %s", msg.op, msg.subject)
	m.statusErr = false
	return m, nil
}

func (m *Model) setProfiles(ps []profile.Profile) {
	if ps == nil {
		return
	}
	m.profiles = ps
	if m.cursor >= len(ps) {
		m.cursor = max(len(ps)-1, 0)
	}
}

func (m *Model) fail(op string, err error) {
	m.status = fmt.Sprintf("%s failed: %v", op, err)
	if hint := commands.Hint(err); hint != "" {
		m.status += " (" + hint + ")"
	}
	m.statusErr = true
}

// View renders the profile list.
func (m Model) View() string {
	if m.Quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("euiccctl " + m.label))
	b.WriteString("\n\n")
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("   %-24s %-20s %s", "NAME", "PROVIDER", "ICCID")))
	b.WriteString("\n")

	if len(m.profiles) == 0 && !m.busy {
		b.WriteString(DimStyle.Render("   no profiles installed"))
		b.WriteString("\n")
	}
	for i, p := range m.profiles {
		mark := " "
		if p.IsEnabled() {
			mark = EnabledMarkStyle.Render("●")
		}
		iccid := profile.MaskICCID(p.ICCID)
		if m.showICCID {
			iccid = p.ICCID
		}
		row := fmt.Sprintf(" %-24s %-20s %s", truncate(p.DisplayName(), 24), truncate(p.ProviderName, 20), iccid)
		if i == m.cursor {
			row = CursorRowStyle.Render(">" + row)
		} else {
			row = RowStyle.Render(" " + row)
		}
		b.WriteString(mark + row)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("e enable  d disable  r rename  x delete  n download  R refresh  i iccid  q quit"))

	return Composite(b.String(), m.overlay.View(), m.width, m.height)
}

func (m Model) statusLine() string {
	switch {
	case m.busy:
		return m.spinner.View() + " " + StatusStyle.Render(m.status)
	case m.Restarted:
		return WarningStyle.Render(m.status)
	case m.statusErr:
		return ErrorStyle.Render(m.status)
	}
	return StatusStyle.Render(m.status)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// Status is the last status line, for printing after the program exits.
func (m Model) Status() string {
	return m.status
}
