// Package profile models the eSIM profiles stored on a card: their state and
// class, how they are named and matched, and which of them a user gets to see.
package profile

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Class is the profile class assigned by the issuer.
type Class int

const (
	ClassOperational Class = iota
	ClassProvisioning
	ClassTesting
)

// String returns the lowercase name used by lpac and in config/JSON.
func (c Class) String() string {
	switch c {
	case ClassOperational:
		return "operational"
	case ClassProvisioning:
		return "provisioning"
	case ClassTesting:
		return "testing"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Class) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// ParseClass parses a class name. Empty input is treated as operational,
// which is what eUICCs report when the optional field is absent.
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "operational":
		return ClassOperational, nil
	case "provisioning":
		return ClassProvisioning, nil
	case "testing", "test":
		return ClassTesting, nil
	default:
		return 0, fmt.Errorf("unknown profile class %q", s)
	}
}

// State is whether the profile is the active one on its slot.
type State int

const (
	StateDisabled State = iota
	StateEnabled
)

func (s State) String() string {
	if s == StateEnabled {
		return "enabled"
	}
	return "disabled"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseState parses "enabled" or "disabled".
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "enabled":
		return StateEnabled, nil
	case "disabled":
		return StateDisabled, nil
	default:
		return 0, fmt.Errorf("unknown profile state %q", s)
	}
}

// Profile is one entry in a slot's installed-profile list.
type Profile struct {
	ICCID        string `json:"iccid"`
	Nickname     string `json:"nickname,omitempty"`
	Name         string `json:"name"`
	ProviderName string `json:"provider_name"`
	Class        Class  `json:"class"`
	State        State  `json:"state"`
}

// DisplayName returns the nickname when set, otherwise the operator name.
// It never returns an empty string.
func (p Profile) DisplayName() string {
	for _, s := range []string{p.Nickname, p.Name, p.ProviderName, p.ICCID} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return "(unnamed)"
}

// IsEnabled reports whether the profile is the active one.
func (p Profile) IsEnabled() bool {
	return p.State == StateEnabled
}

// Action is a user operation offered for a profile.
type Action string

const (
	ActionEnable  Action = "enable"
	ActionDisable Action = "disable"
	ActionRename  Action = "rename"
	ActionDelete  Action = "delete"
)

// Actions returns the operations that make sense for the profile's state.
// The enabled profile can only be disabled or renamed; it has to be
// disabled before it can be deleted.
func (p Profile) Actions() []Action {
	if p.IsEnabled() {
		return []Action{ActionDisable, ActionRename}
	}
	return []Action{ActionEnable, ActionRename, ActionDelete}
}

// Allows reports whether a is one of p.Actions().
func (p Profile) Allows(a Action) bool {
	for _, x := range p.Actions() {
		if x == a {
			return true
		}
	}
	return false
}

// Visible returns the profiles that should be shown to users, in order.
// Testing-class profiles are dropped.
func Visible(profiles []Profile) []Profile {
	out := make([]Profile, 0, len(profiles))
	for _, p := range profiles {
		if p.Class == ClassTesting {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Find returns the profile with the given ICCID.
func Find(profiles []Profile, iccid string) (Profile, bool) {
	for _, p := range profiles {
		if p.ICCID == iccid {
			return p, true
		}
	}
	return Profile{}, false
}

// Enabled returns the enabled profile, if any.
func Enabled(profiles []Profile) (Profile, bool) {
	for _, p := range profiles {
		if p.IsEnabled() {
			return p, true
		}
	}
	return Profile{}, false
}

// MaskICCID hides all but the last four digits.
func MaskICCID(iccid string) string {
	if len(iccid) <= 4 {
		return iccid
	}
	return strings.Repeat("•", len(iccid)-4) + iccid[len(iccid)-4:]
}

// MaxNicknameLen is the profileNickname limit from SGP.22, in bytes.
const MaxNicknameLen = 64

var ErrInvalidNickname = errors.New("invalid nickname")

// ValidateNickname checks that a nickname fits on the card. An empty
// nickname is valid and clears the label.
func ValidateNickname(s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: not valid UTF-8", ErrInvalidNickname)
	}
	if len(s) > MaxNicknameLen {
		return fmt.Errorf("%w: %d bytes, max %d", ErrInvalidNickname, len(s), MaxNicknameLen)
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: contains control characters", ErrInvalidNickname)
		}
	}
	return nil
}
