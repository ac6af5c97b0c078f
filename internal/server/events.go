package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 5 * time.Second

// Event types sent on the events stream.
const (
	eventSnapshot   = "snapshot"
	eventTerminated = "terminated"
)

type eventMessage struct {
	Type     string            `json:"type"`
	Slot     int               `json:"slot"`
	Profiles *profilesResponse `json:"profiles,omitempty"`
}

// events streams the slot's profile list: once on connect, then on every
// store change. When the slot's handle is invalidated a terminated event is
// sent and the socket is closed.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	updates, cancel := sess.Store.Subscribe()
	defer cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(msg eventMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(msg)
	}

	initial := views(sess.ID, sess.Store.Snapshot())
	if err := send(eventMessage{Type: eventSnapshot, Slot: sess.ID, Profiles: &initial}); err != nil {
		return
	}

	for {
		select {
		case snap := <-updates:
			v := views(sess.ID, snap)
			if err := send(eventMessage{Type: eventSnapshot, Slot: sess.ID, Profiles: &v}); err != nil {
				return
			}
		case <-sess.Controller.Terminated():
			_ = send(eventMessage{Type: eventTerminated, Slot: sess.ID})
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "channel invalidated"),
				time.Now().Add(writeWait))
			return
		case <-closed:
			return
		}
	}
}
