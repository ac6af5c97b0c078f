package commands

import (
	"context"
	"fmt"

	"github.com/ruminaider/euiccctl/internal/controller"
	"github.com/ruminaider/euiccctl/internal/download"
	"github.com/ruminaider/euiccctl/internal/lpa"
	"github.com/ruminaider/euiccctl/internal/profile"
	"github.com/ruminaider/euiccctl/internal/slot"
)

// ProfileRow is one line of `euiccctl list`.
type ProfileRow struct {
	ICCID    string
	Name     string
	Provider string
	Enabled  bool
}

// ListResult is the visible profile list of a slot.
type ListResult struct {
	Slot       string
	Generation uint64
	Profiles   []ProfileRow
}

// List refreshes slot and returns its visible profiles. ICCIDs are masked
// unless showICCID is set.
func List(ctx context.Context, reg *slot.Registry, id int, showICCID bool) (*ListResult, error) {
	sess, err := open(ctx, reg, id)
	if err != nil {
		return nil, err
	}
	res := &ListResult{Slot: sess.Label(), Generation: sess.Controller.Snapshot().Generation}
	for _, p := range sess.Controller.CurrentProfiles() {
		iccid := p.ICCID
		if !showICCID {
			iccid = profile.MaskICCID(iccid)
		}
		res.Profiles = append(res.Profiles, ProfileRow{
			ICCID:    iccid,
			Name:     p.DisplayName(),
			Provider: p.ProviderName,
			Enabled:  p.IsEnabled(),
		})
	}
	return res, nil
}

// Refresh re-reads the slot's profile list and reports how many profiles
// are visible.
func Refresh(ctx context.Context, reg *slot.Registry, id int) (int, error) {
	sess, err := open(ctx, reg, id)
	if err != nil {
		return 0, err
	}
	return len(sess.Controller.CurrentProfiles()), nil
}

// SwitchResult reports an enable or disable.
type SwitchResult struct {
	Profile         profile.Profile
	RestartRequired bool
}

// Enable enables the profile ref points at.
func Enable(ctx context.Context, reg *slot.Registry, id int, ref string) (*SwitchResult, error) {
	return switchProfile(ctx, reg, id, ref, profile.ActionEnable)
}

// Disable disables the profile ref points at.
func Disable(ctx context.Context, reg *slot.Registry, id int, ref string) (*SwitchResult, error) {
	return switchProfile(ctx, reg, id, ref, profile.ActionDisable)
}

func switchProfile(ctx context.Context, reg *slot.Registry, id int, ref string, action profile.Action) (*SwitchResult, error) {
	sess, err := open(ctx, reg, id)
	if err != nil {
		return nil, err
	}
	p, err := Resolve(sess.Controller.CurrentProfiles(), ref)
	if err != nil {
		return nil, err
	}
	if !p.Allows(action) {
		return nil, fmt.Errorf("%s is already %s", p.DisplayName(), p.State)
	}

	var outcome controller.Outcome
	if action == profile.ActionEnable {
		outcome, err = sess.Enable(ctx, p.ICCID)
	} else {
		outcome, err = sess.Disable(ctx, p.ICCID)
	}
	if err != nil {
		return nil, err
	}
	return &SwitchResult{Profile: p, RestartRequired: outcome == controller.RestartRequired}, nil
}

// Rename sets the nickname of the profile ref points at and returns the
// updated record.
func Rename(ctx context.Context, reg *slot.Registry, id int, ref, nickname string) (profile.Profile, error) {
	sess, err := open(ctx, reg, id)
	if err != nil {
		return profile.Profile{}, err
	}
	p, err := Resolve(sess.Controller.CurrentProfiles(), ref)
	if err != nil {
		return profile.Profile{}, err
	}
	if _, err := sess.Controller.Rename(ctx, p.ICCID, nickname); err != nil {
		return profile.Profile{}, err
	}
	updated, ok := profile.Find(sess.Controller.CurrentProfiles(), p.ICCID)
	if !ok {
		return p, nil
	}
	return updated, nil
}

// Target resolves ref on slot without changing anything. The CLI uses it
// to show what a delete would remove before asking for confirmation.
func Target(ctx context.Context, reg *slot.Registry, id int, ref string) (profile.Profile, error) {
	sess, err := open(ctx, reg, id)
	if err != nil {
		return profile.Profile{}, err
	}
	return Resolve(sess.Controller.CurrentProfiles(), ref)
}

// Delete removes the profile with iccid from slot.
func Delete(ctx context.Context, reg *slot.Registry, id int, iccid string) error {
	sess, err := reg.Session(ctx, id)
	if err != nil {
		return fmt.Errorf("opening slot %d: %w", id, err)
	}
	_, err = sess.Controller.Delete(ctx, iccid)
	return err
}

// DownloadOptions is what `euiccctl download` collects.
type DownloadOptions struct {
	ActivationCode   string
	SMDP             string
	MatchingID       string
	ConfirmationCode string
	IMEI             string
}

// Request builds the LPA request, parsing the activation code if one was
// given.
func (o DownloadOptions) Request() (lpa.DownloadRequest, error) {
	if o.ActivationCode == "" {
		req := lpa.DownloadRequest{SMDP: o.SMDP, MatchingID: o.MatchingID, ConfirmationCode: o.ConfirmationCode, IMEI: o.IMEI}
		return req, download.Validate(req)
	}
	ac, err := download.ParseActivationCode(o.ActivationCode)
	if err != nil {
		return lpa.DownloadRequest{}, err
	}
	if ac.ConfirmationRequired && o.ConfirmationCode == "" {
		return lpa.DownloadRequest{}, download.ErrConfirmationRequired
	}
	req := ac.Request(o.ConfirmationCode)
	req.IMEI = o.IMEI
	return req, nil
}

// Download installs a profile on slot and returns the profiles that were
// not there before.
func Download(ctx context.Context, reg *slot.Registry, id int, opts DownloadOptions, progress lpa.ProgressFunc) ([]profile.Profile, error) {
	req, err := opts.Request()
	if err != nil {
		return nil, err
	}
	sess, err := open(ctx, reg, id)
	if err != nil {
		return nil, err
	}
	_, added, err := sess.Download(ctx, req, progress)
	if err != nil {
		return nil, err
	}
	return added, nil
}
