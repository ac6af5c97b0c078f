package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// OverlayType identifies the kind of modal overlay.
type OverlayType int

const (
	OverlayConfirm   OverlayType = iota // Cancel/OK confirmation
	OverlayTextInput                    // Single-line text input
)

// OverlayCloseMsg is sent when an overlay is dismissed.
type OverlayCloseMsg struct {
	Result    string
	Confirmed bool
}

// Overlay is a centered modal box drawn over the profile list.
type Overlay struct {
	overlayType OverlayType
	title       string
	message     string
	cursor      int // button index for Confirm: 0=Cancel, 1=OK
	input       textinput.Model
	validate    func(string) error
	err         error
	active      bool
}

// NewConfirmOverlay creates a confirmation dialog. The cursor starts on
// Cancel since confirmations guard destructive actions.
func NewConfirmOverlay(title, message string) Overlay {
	return Overlay{
		overlayType: OverlayConfirm,
		title:       title,
		message:     message,
		active:      true,
	}
}

// NewTextInputOverlay creates a text input dialog prefilled with value.
func NewTextInputOverlay(title, placeholder, value string, limit int) Overlay {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.SetValue(value)
	ti.Focus()
	ti.CharLimit = limit
	ti.Width = 40
	return Overlay{
		overlayType: OverlayTextInput,
		title:       title,
		input:       ti,
		active:      true,
	}
}

// WithValidate checks the text input on submit. While fn returns an error
// the overlay stays open and shows it.
func (o Overlay) WithValidate(fn func(string) error) Overlay {
	o.validate = fn
	return o
}

// Active reports whether the overlay is showing.
func (o Overlay) Active() bool {
	return o.active
}

// Value is the current text of a text input overlay.
func (o Overlay) Value() string {
	return o.input.Value()
}

// Update handles keys while the overlay is active.
func (o Overlay) Update(msg tea.Msg) (Overlay, tea.Cmd) {
	if !o.active {
		return o, nil
	}
	if o.overlayType == OverlayTextInput {
		return o.updateTextInput(msg)
	}
	return o.updateConfirm(msg)
}

func (o Overlay) updateConfirm(msg tea.Msg) (Overlay, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return o, nil
	}
	switch key.String() {
	case "esc", "n":
		o.active = false
		return o, closeOverlay("", false)
	case "y":
		o.active = false
		return o, closeOverlay("", true)
	case "tab", "left", "right", "h", "l":
		o.cursor = 1 - o.cursor
	case "enter":
		o.active = false
		return o, closeOverlay("", o.cursor == 1)
	}
	return o, nil
}

func (o Overlay) updateTextInput(msg tea.Msg) (Overlay, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "esc":
			o.active = false
			return o, closeOverlay("", false)
		case "enter":
			value := strings.TrimSpace(o.input.Value())
			if value == "" {
				return o, nil
			}
			if o.validate != nil {
				if o.err = o.validate(value); o.err != nil {
					return o, nil
				}
			}
			o.active = false
			return o, closeOverlay(value, true)
		}
	}

	var cmd tea.Cmd
	before := o.input.Value()
	o.input, cmd = o.input.Update(msg)
	if o.input.Value() != before {
		o.err = nil
	}
	return o, cmd
}

func closeOverlay(result string, confirmed bool) tea.Cmd {
	return func() tea.Msg {
		return OverlayCloseMsg{Result: result, Confirmed: confirmed}
	}
}

// View renders the overlay box. Compositing over the background is done
// by Composite.
func (o Overlay) View() string {
	if !o.active {
		return ""
	}

	var b strings.Builder
	b.WriteString(OverlayTitleStyle.Render(o.title))
	b.WriteString("\n\n")
	switch o.overlayType {
	case OverlayConfirm:
		b.WriteString(o.message)
		b.WriteString("\n\n")
		b.WriteString(o.renderButtons("Cancel", "OK"))
	case OverlayTextInput:
		b.WriteString(o.input.View())
		if o.err != nil {
			b.WriteString("\n")
			b.WriteString(ErrorStyle.Render(o.err.Error()))
		}
		b.WriteString("\n\n")
		b.WriteString(lipgloss.NewStyle().Foreground(colorOverlay0).Render("Enter: submit  Esc: cancel"))
	}
	return OverlayStyle.Render(b.String())
}

func (o Overlay) renderButtons(cancel, ok string) string {
	if o.cursor == 0 {
		return OverlayButtonActiveStyle.Render(cancel) + "  " + OverlayButtonInactiveStyle.Render(ok)
	}
	return OverlayButtonInactiveStyle.Render(cancel) + "  " + OverlayButtonActiveStyle.Render(ok)
}

// Composite places the overlay box centered on top of the background.
func Composite(background, overlay string, totalWidth, totalHeight int) string {
	if overlay == "" {
		return background
	}

	bgLines := strings.Split(background, "\n")
	for len(bgLines) < totalHeight {
		bgLines = append(bgLines, "")
	}

	overlayLines := strings.Split(overlay, "\n")
	overlayWidth := 0
	for _, line := range overlayLines {
		if w := ansi.StringWidth(line); w > overlayWidth {
			overlayWidth = w
		}
	}

	startRow := max((totalHeight-len(overlayLines))/2, 0)
	startCol := max((totalWidth-overlayWidth)/2, 0)

	for i, line := range overlayLines {
		row := startRow + i
		if row >= len(bgLines) {
			bgLines = append(bgLines, "")
		}
		bg := ansi.Strip(bgLines[row])
		bgRunes := []rune(bg)

		left := string(bgRunes[:min(startCol, len(bgRunes))])
		if pad := startCol - len(bgRunes); pad > 0 {
			left += strings.Repeat(" ", pad)
		}
		right := ""
		if end := startCol + ansi.StringWidth(line); end < len(bgRunes) {
			right = string(bgRunes[end:])
		}
		bgLines[row] = left + line + right
	}

	if totalHeight > 0 && len(bgLines) > totalHeight {
		bgLines = bgLines[:totalHeight]
	}
	return strings.Join(bgLines, "\n")
}
