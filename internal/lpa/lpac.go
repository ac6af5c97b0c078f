package lpa

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/ruminaider/euiccctl/internal/profile"
	"go.uber.org/zap"
)

// Runner starts lpac with args and the extra environment, calling line for
// every line written to stdout. It returns the process error, if any.
type Runner func(ctx context.Context, env []string, args []string, line func([]byte)) error

// Lpac drives the lpac command-line LPA. Every method runs one lpac process,
// which opens the APDU channel, issues the command and closes it again.
type Lpac struct {
	path string
	env  []string
	run  Runner
	log  *zap.Logger
}

// LpacOption configures an Lpac client.
type LpacOption func(*Lpac)

// WithRunner replaces the process runner, mainly for tests.
func WithRunner(r Runner) LpacOption {
	return func(l *Lpac) {
		l.run = r
	}
}

// WithLogger sets the logger used for lpac diagnostics.
func WithLogger(log *zap.Logger) LpacOption {
	return func(l *Lpac) {
		l.log = log
	}
}

// NewLpac returns a client that runs the lpac binary at path with env added
// to the process environment (LPAC_APDU, AT_DEVICE, ...).
func NewLpac(path string, env map[string]string, opts ...LpacOption) *Lpac {
	if path == "" {
		path = "lpac"
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	l := &Lpac{
		path: path,
		run:  execRunner(path),
		log:  zap.NewNop(),
	}
	for _, k := range keys {
		l.env = append(l.env, k+"="+env[k])
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func execRunner(path string) Runner {
	return func(ctx context.Context, env []string, args []string, line func([]byte)) error {
		cmd := exec.CommandContext(ctx, path, args...)
		cmd.Env = append(os.Environ(), env...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return err
		}
		if err := cmd.Start(); err != nil {
			return err
		}
		sc := bufio.NewScanner(stdout)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			line(sc.Bytes())
		}
		// A scan error stops reading early; lpac must not block on a full pipe.
		_, _ = io.Copy(io.Discard, stdout)
		if err := cmd.Wait(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("%w: %s", err, msg)
			}
			return err
		}
		return sc.Err()
	}
}

// message is one JSON line printed by lpac.
type message struct {
	Type    string `json:"type"`
	Payload struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	} `json:"payload"`
}

// exec runs lpac and returns the data of the final "lpa" message.
func (l *Lpac) exec(ctx context.Context, op string, progress ProgressFunc, args ...string) (json.RawMessage, error) {
	var result *message
	runErr := l.run(ctx, l.env, args, func(b []byte) {
		var m message
		if err := json.Unmarshal(b, &m); err != nil {
			l.log.Debug("lpac: non-JSON output", zap.String("op", op), zap.ByteString("line", b))
			return
		}
		switch m.Type {
		case "progress":
			if progress != nil {
				progress(Progress{Step: m.Payload.Message})
			}
		case "lpa":
			result = &m
		}
	})

	if err := ctx.Err(); err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	if result == nil {
		if runErr == nil {
			runErr = errors.New("no result from lpac")
		}
		return nil, transportErr(op, runErr)
	}
	if result.Payload.Code != 0 {
		return nil, &Error{Op: op, Message: result.Payload.Message, Reason: decodeReason(result.Payload.Data)}
	}
	return result.Payload.Data, nil
}

// decodeReason extracts the failure reason, which lpac prints as a string
// (or null when the failure happened below the LPA layer).
func decodeReason(data json.RawMessage) string {
	var s string
	if len(data) == 0 || json.Unmarshal(data, &s) != nil {
		return ""
	}
	return s
}

type lpacProfile struct {
	ICCID    string  `json:"iccid"`
	State    string  `json:"profileState"`
	Nickname *string `json:"profileNickname"`
	Provider *string `json:"serviceProviderName"`
	Name     *string `json:"profileName"`
	Class    *string `json:"profileClass"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ListProfiles runs `lpac profile list`.
func (l *Lpac) ListProfiles(ctx context.Context) ([]profile.Profile, error) {
	data, err := l.exec(ctx, "list", nil, "profile", "list")
	if err != nil {
		return nil, err
	}
	var raw []lpacProfile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &Error{Op: "list", Err: fmt.Errorf("decoding profile list: %w", err)}
	}
	out := make([]profile.Profile, 0, len(raw))
	for _, r := range raw {
		state, err := profile.ParseState(r.State)
		if err != nil {
			return nil, &Error{Op: "list", Err: err}
		}
		class, err := profile.ParseClass(deref(r.Class))
		if err != nil {
			return nil, &Error{Op: "list", Err: err}
		}
		out = append(out, profile.Profile{
			ICCID:        r.ICCID,
			Nickname:     deref(r.Nickname),
			Name:         deref(r.Name),
			ProviderName: deref(r.Provider),
			Class:        class,
			State:        state,
		})
	}
	return out, nil
}

// EnableProfile runs `lpac profile enable`. On success the modem refreshes
// the SIM and the APDU channel stops working.
func (l *Lpac) EnableProfile(ctx context.Context, iccid string) error {
	_, err := l.exec(ctx, "enable", nil, "profile", "enable", iccid)
	return err
}

// DisableProfile runs `lpac profile disable`.
func (l *Lpac) DisableProfile(ctx context.Context, iccid string) error {
	_, err := l.exec(ctx, "disable", nil, "profile", "disable", iccid)
	return err
}

// SetNickname runs `lpac profile nickname`.
func (l *Lpac) SetNickname(ctx context.Context, iccid, nickname string) error {
	_, err := l.exec(ctx, "nickname", nil, "profile", "nickname", iccid, nickname)
	return err
}

// DeleteProfile runs `lpac profile delete`.
func (l *Lpac) DeleteProfile(ctx context.Context, iccid string) error {
	_, err := l.exec(ctx, "delete", nil, "profile", "delete", iccid)
	return err
}

// Download runs `lpac profile download`, relaying progress lines.
func (l *Lpac) Download(ctx context.Context, req DownloadRequest, progress ProgressFunc) error {
	args := []string{"profile", "download", "-s", req.SMDP}
	if req.MatchingID != "" {
		args = append(args, "-m", req.MatchingID)
	}
	if req.ConfirmationCode != "" {
		args = append(args, "-c", req.ConfirmationCode)
	}
	if req.IMEI != "" {
		args = append(args, "-i", req.IMEI)
	}
	_, err := l.exec(ctx, "download", progress, args...)
	return err
}
