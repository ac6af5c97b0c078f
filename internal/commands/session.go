package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ruminaider/euiccctl/internal/controller"
	"github.com/ruminaider/euiccctl/internal/profile"
	"github.com/ruminaider/euiccctl/internal/slot"
)

// ErrAmbiguous is returned when a profile reference matches more than one
// profile.
var ErrAmbiguous = errors.New("profile reference is ambiguous")

// open returns slot's session with a fresh profile list.
func open(ctx context.Context, reg *slot.Registry, id int) (*slot.Session, error) {
	sess, err := reg.Session(ctx, id)
	if err != nil {
		if errors.Is(err, slot.ErrUnknownSlot) {
			return nil, fmt.Errorf("slot %d is not configured", id)
		}
		return nil, fmt.Errorf("opening slot %d: %w", id, err)
	}
	if err := sess.Controller.Refresh(ctx); err != nil {
		return nil, err
	}
	return sess, nil
}

// Resolve finds the visible profile ref points at. ref may be a full ICCID,
// the last digits of one, or a display name (case-insensitive).
func Resolve(profiles []profile.Profile, ref string) (profile.Profile, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return profile.Profile{}, fmt.Errorf("%w: empty profile reference", controller.ErrUnknownProfile)
	}
	if p, ok := profile.Find(profiles, ref); ok {
		return p, nil
	}

	var matches []profile.Profile
	for _, p := range profiles {
		if strings.EqualFold(p.DisplayName(), ref) {
			matches = append(matches, p)
		}
	}
	if len(matches) == 0 && isDigits(ref) {
		for _, p := range profiles {
			if strings.HasSuffix(p.ICCID, ref) {
				matches = append(matches, p)
			}
		}
	}

	switch len(matches) {
	case 0:
		return profile.Profile{}, fmt.Errorf("%w: %q", controller.ErrUnknownProfile, ref)
	case 1:
		return matches[0], nil
	default:
		return profile.Profile{}, fmt.Errorf("%w: %q matches %d profiles", ErrAmbiguous, ref, len(matches))
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// Hint turns controller errors into a short instruction for the user, or
// "" when there is nothing useful to add.
func Hint(err error) string {
	switch {
	case errors.Is(err, controller.ErrBusy):
		return "another operation is running on this slot; try again"
	case errors.Is(err, controller.ErrChannelUnavailable):
		return "the modem is restarting or unplugged; wait a moment and try again"
	case controller.IsRetryable(err):
		return "the card did not answer; try again"
	}
	return ""
}
