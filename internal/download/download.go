// Package download prepares and runs profile downloads from an SM-DP+
// server.
package download

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ruminaider/euiccctl/internal/lpa"
	"go.uber.org/zap"
)

const activationPrefix = "LPA:"

var (
	// ErrInvalidActivationCode is returned for codes that do not follow
	// the "LPA:1$server$matching-id" layout.
	ErrInvalidActivationCode = errors.New("invalid activation code")

	// ErrConfirmationRequired is returned when the activation code says a
	// confirmation code is needed and none was given.
	ErrConfirmationRequired = errors.New("confirmation code required")
)

// ActivationCode is a parsed eSIM activation code, as found in the QR code
// handed out by an operator.
type ActivationCode struct {
	SMDP                 string
	MatchingID           string
	OID                  string
	ConfirmationRequired bool
}

// ParseActivationCode parses "LPA:1$<smdp>$<matching-id>[$<oid>[$<flag>]]".
// The "LPA:" prefix may be omitted.
func ParseActivationCode(s string) (ActivationCode, error) {
	s = strings.TrimSpace(s)
	if len(s) >= len(activationPrefix) && strings.EqualFold(s[:len(activationPrefix)], activationPrefix) {
		s = s[len(activationPrefix):]
	}

	parts := strings.Split(s, "$")
	if len(parts) < 3 || len(parts) > 5 {
		return ActivationCode{}, fmt.Errorf("%w: expected 3 to 5 fields, got %d", ErrInvalidActivationCode, len(parts))
	}
	if parts[0] != "1" {
		return ActivationCode{}, fmt.Errorf("%w: unsupported format %q", ErrInvalidActivationCode, parts[0])
	}

	ac := ActivationCode{
		SMDP:       strings.TrimSpace(parts[1]),
		MatchingID: strings.TrimSpace(parts[2]),
	}
	if ac.SMDP == "" {
		return ActivationCode{}, fmt.Errorf("%w: missing SM-DP+ address", ErrInvalidActivationCode)
	}
	if len(parts) > 3 {
		ac.OID = parts[3]
	}
	if len(parts) > 4 {
		switch parts[4] {
		case "", "0":
		case "1":
			ac.ConfirmationRequired = true
		default:
			return ActivationCode{}, fmt.Errorf("%w: bad confirmation flag %q", ErrInvalidActivationCode, parts[4])
		}
	}
	return ac, nil
}

// Request turns the code into an LPA download request.
func (ac ActivationCode) Request(confirmationCode string) lpa.DownloadRequest {
	return lpa.DownloadRequest{
		SMDP:             ac.SMDP,
		MatchingID:       ac.MatchingID,
		ConfirmationCode: confirmationCode,
	}
}

// Validate checks a request before it is sent to the card.
func Validate(req lpa.DownloadRequest) error {
	smdp := strings.TrimSpace(req.SMDP)
	if smdp == "" {
		return fmt.Errorf("%w: missing SM-DP+ address", ErrInvalidActivationCode)
	}
	if strings.ContainsAny(smdp, " /$") {
		return fmt.Errorf("%w: SM-DP+ address %q is not a host name", ErrInvalidActivationCode, smdp)
	}
	if strings.Contains(req.MatchingID, "$") {
		return fmt.Errorf("%w: matching id contains '$'", ErrInvalidActivationCode)
	}
	for _, r := range req.IMEI {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: IMEI must be digits", ErrInvalidActivationCode)
		}
	}
	return nil
}

// stepLabels maps LPA download steps to what a user sees.
var stepLabels = map[string]string{
	"es10b_get_euicc_challenge_and_info": "Reading eUICC info",
	"es9p_initiate_authentication":       "Contacting server",
	"es10b_authenticate_server":          "Authenticating server",
	"es9p_authenticate_client":           "Authenticating card",
	"es10b_prepare_download":             "Preparing download",
	"es9p_get_bound_profile_package":     "Downloading profile",
	"es10b_load_bound_profile_package":   "Installing profile",
}

// Describe returns a readable label for a progress step.
func Describe(p lpa.Progress) string {
	if label, ok := stepLabels[p.Step]; ok {
		return label
	}
	return p.Step
}

// Workflow validates requests and runs them through the LPA client.
type Workflow struct {
	log *zap.Logger
}

// NewWorkflow returns a workflow that logs progress to log. A nil logger
// discards output.
func NewWorkflow(log *zap.Logger) *Workflow {
	if log == nil {
		log = zap.NewNop()
	}
	return &Workflow{log: log.Named("download")}
}

// Download validates req, then downloads it with client. Validation
// failures are reported as rejected LPA errors so callers treat them as
// not retryable.
func (w *Workflow) Download(ctx context.Context, client lpa.Client, req lpa.DownloadRequest, progress lpa.ProgressFunc) error {
	if err := Validate(req); err != nil {
		return &lpa.Error{Op: "download", Reason: lpa.ReasonInvalidRequest, Err: err}
	}

	log := w.log.With(zap.String("smdp", req.SMDP))
	log.Info("download started")
	err := client.Download(ctx, req, func(p lpa.Progress) {
		log.Debug("download progress", zap.String("step", p.Step))
		if progress != nil {
			progress(p)
		}
	})
	if err != nil {
		var lerr *lpa.Error
		if errors.As(err, &lerr) && lerr.Reason == lpa.ReasonConfirmationNeeded {
			err = fmt.Errorf("%w: %w", ErrConfirmationRequired, err)
		}
		log.Warn("download failed", zap.Error(err))
		return err
	}
	log.Info("download finished")
	return nil
}
