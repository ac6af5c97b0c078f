// Package lpa talks to a Local Profile Assistant: the agent that issues
// profile-management commands to an eUICC over an APDU channel.
package lpa

import (
	"context"

	"github.com/ruminaider/euiccctl/internal/profile"
)

// Client is the set of LPA operations the controller needs. Every call may
// block on the card; implementations must honor ctx cancellation.
type Client interface {
	ListProfiles(ctx context.Context) ([]profile.Profile, error)
	EnableProfile(ctx context.Context, iccid string) error
	DisableProfile(ctx context.Context, iccid string) error
	SetNickname(ctx context.Context, iccid, nickname string) error
	DeleteProfile(ctx context.Context, iccid string) error
	Download(ctx context.Context, req DownloadRequest, progress ProgressFunc) error
}

// DownloadRequest identifies a profile to fetch from an SM-DP+ server.
type DownloadRequest struct {
	SMDP             string `json:"smdp"`
	MatchingID       string `json:"matching_id,omitempty"`
	ConfirmationCode string `json:"confirmation_code,omitempty"`
	IMEI             string `json:"imei,omitempty"`
}

// Progress is one step reported while a download runs.
type Progress struct {
	Step string `json:"step"`
}

// ProgressFunc receives download progress. It may be nil.
type ProgressFunc func(Progress)
