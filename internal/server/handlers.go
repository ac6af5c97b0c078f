package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ruminaider/euiccctl/internal/controller"
	"github.com/ruminaider/euiccctl/internal/download"
	"github.com/ruminaider/euiccctl/internal/lpa"
	"github.com/ruminaider/euiccctl/internal/profile"
	"github.com/ruminaider/euiccctl/internal/slot"
	"github.com/ruminaider/euiccctl/internal/store"
	"go.uber.org/zap"
)

// retryAfterSeconds is sent with 503 while a slot's modem restarts.
const retryAfterSeconds = "5"

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
}

type profileView struct {
	profile.Profile
	DisplayName string           `json:"display_name"`
	Actions     []profile.Action `json:"actions"`
}

type profilesResponse struct {
	Slot       int           `json:"slot"`
	Generation uint64        `json:"generation"`
	Profiles   []profileView `json:"profiles"`
}

type operationResponse struct {
	Outcome         string            `json:"outcome"`
	RestartRequired bool              `json:"restart_required"`
	Profiles        *profilesResponse `json:"profiles,omitempty"`
}

type nicknameRequest struct {
	Nickname string `json:"nickname"`
}

type downloadRequest struct {
	ActivationCode   string `json:"activation_code,omitempty"`
	SMDP             string `json:"smdp,omitempty"`
	MatchingID       string `json:"matching_id,omitempty"`
	ConfirmationCode string `json:"confirmation_code,omitempty"`
	IMEI             string `json:"imei,omitempty"`
}

func views(id int, snap store.Snapshot) profilesResponse {
	visible := profile.Visible(snap.Profiles)
	out := profilesResponse{Slot: id, Generation: snap.Generation, Profiles: make([]profileView, 0, len(visible))}
	for _, p := range visible {
		out.Profiles = append(out.Profiles, profileView{Profile: p, DisplayName: p.DisplayName(), Actions: p.Actions()})
	}
	return out
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "internal"

	var (
		oerr *controller.OperationError
		ferr *controller.FetchError
	)
	switch {
	case errors.Is(err, slot.ErrUnknownSlot):
		status, kind = http.StatusNotFound, "unknown_slot"
	case errors.Is(err, controller.ErrBusy):
		status, kind = http.StatusConflict, "busy"
	case errors.Is(err, controller.ErrChannelUnavailable):
		status, kind = http.StatusServiceUnavailable, "channel_unavailable"
		w.Header().Set("Retry-After", retryAfterSeconds)
	case errors.As(err, &oerr):
		kind = oerr.Kind.String()
		status = http.StatusServiceUnavailable
		if oerr.Kind == controller.Rejected {
			status = http.StatusUnprocessableEntity
		}
	case errors.As(err, &ferr):
		status, kind = http.StatusServiceUnavailable, "fetch_failed"
	case errors.Is(err, errBadRequest), errors.Is(err, download.ErrInvalidActivationCode):
		status, kind = http.StatusBadRequest, "bad_request"
	}

	if status >= 500 {
		s.log.Warn("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind, Retryable: controller.IsRetryable(err)})
}

var errBadRequest = errors.New("bad request")

func (s *Server) session(r *http.Request) (*slot.Session, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		return nil, slot.ErrUnknownSlot
	}
	return s.reg.Session(r.Context(), id)
}

func (s *Server) listSlots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"slots": s.reg.Statuses()})
}

func (s *Server) listProfiles(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if sess.Controller.Snapshot().Generation == 0 {
		if err := sess.Controller.Refresh(r.Context()); err != nil {
			s.writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, views(sess.ID, sess.Controller.Snapshot()))
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := sess.Controller.Refresh(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views(sess.ID, sess.Controller.Snapshot()))
}

func (s *Server) enable(w http.ResponseWriter, r *http.Request) {
	s.switchProfile(w, r, (*slot.Session).Enable)
}

func (s *Server) disable(w http.ResponseWriter, r *http.Request) {
	s.switchProfile(w, r, (*slot.Session).Disable)
}

func (s *Server) switchProfile(w http.ResponseWriter, r *http.Request, call func(*slot.Session, context.Context, string) (controller.Outcome, error)) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	outcome, err := call(sess, r.Context(), chi.URLParam(r, "iccid"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, operationResponse{
		Outcome:         outcome.String(),
		RestartRequired: outcome == controller.RestartRequired,
	})
}

func (s *Server) rename(w http.ResponseWriter, r *http.Request) {
	var req nicknameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	outcome, err := sess.Controller.Rename(r.Context(), chi.URLParam(r, "iccid"), req.Nickname)
	s.completed(w, sess, outcome, err)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	outcome, err := sess.Controller.Delete(r.Context(), chi.URLParam(r, "iccid"))
	s.completed(w, sess, outcome, err)
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	var body downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	req := lpa.DownloadRequest{
		SMDP:             body.SMDP,
		MatchingID:       body.MatchingID,
		ConfirmationCode: body.ConfirmationCode,
		IMEI:             body.IMEI,
	}
	if body.ActivationCode != "" {
		ac, err := download.ParseActivationCode(body.ActivationCode)
		if err != nil {
			s.writeError(w, err)
			return
		}
		req = ac.Request(body.ConfirmationCode)
		req.IMEI = body.IMEI
		if ac.ConfirmationRequired && req.ConfirmationCode == "" {
			s.writeError(w, fmt.Errorf("%w: %w", errBadRequest, download.ErrConfirmationRequired))
			return
		}
	}

	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	outcome, _, err := sess.Download(r.Context(), req, nil)
	s.completed(w, sess, outcome, err)
}

func (s *Server) completed(w http.ResponseWriter, sess *slot.Session, outcome controller.Outcome, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	profiles := views(sess.ID, sess.Controller.Snapshot())
	writeJSON(w, http.StatusOK, operationResponse{Outcome: outcome.String(), Profiles: &profiles})
}
