package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruminaider/euiccctl/internal/channel"
	"github.com/ruminaider/euiccctl/internal/config"
	"github.com/ruminaider/euiccctl/internal/lpa"
	"github.com/ruminaider/euiccctl/internal/server"
	"github.com/ruminaider/euiccctl/internal/slot"
	"github.com/ruminaider/euiccctl/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	acme   = "8931000000000000001"
	globex = "8931000000000000002"
)

type profileJSON struct {
	ICCID       string   `json:"iccid"`
	Nickname    string   `json:"nickname"`
	Class       string   `json:"class"`
	State       string   `json:"state"`
	DisplayName string   `json:"display_name"`
	Actions     []string `json:"actions"`
}

type profilesJSON struct {
	Slot       int           `json:"slot"`
	Generation uint64        `json:"generation"`
	Profiles   []profileJSON `json:"profiles"`
}

type operationJSON struct {
	Outcome         string        `json:"outcome"`
	RestartRequired bool          `json:"restart_required"`
	Profiles        *profilesJSON `json:"profiles"`
}

type errorJSON struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable"`
}

type testServer struct {
	*httptest.Server
	card *lpa.Memory
}

func newTestServer(t *testing.T, opts ...slot.Option) *testServer {
	t.Helper()
	card := lpa.NewMemory(lpa.DemoProfiles()...)
	cfg := config.Default()
	cfg.Slots = []config.SlotConfig{{ID: 0, Name: "esim", Backend: config.BackendMemory}}

	opts = append([]slot.Option{slot.WithOpener(func(context.Context, int) (lpa.Client, error) { return card, nil })}, opts...)
	reg := slot.NewRegistry(cfg, opts...)
	t.Cleanup(reg.Close)

	registry := prometheus.NewRegistry()
	srv := server.New(reg, server.WithGatherer(registry), server.WithVersion("test"))
	telemetry.NewMetrics(registry).ObserveRefresh(0, true)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, card: card}
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"healthy","version":"test"}`, string(body))

	resp, body = ts.do(t, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "euiccctl_refreshes_total")
}

func TestListSlots(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, "GET", "/v1/slots", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[struct {
		Slots []slot.Status `json:"slots"`
	}](t, body)
	require.Len(t, got.Slots, 1)
	assert.Equal(t, "esim", got.Slots[0].Name)
	assert.False(t, got.Slots[0].Active)
}

func TestListProfiles(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, "GET", "/v1/slots/0/profiles", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[profilesJSON](t, body)

	require.Len(t, got.Profiles, 2, "testing profile is hidden")
	assert.Equal(t, uint64(1), got.Generation)
	assert.Equal(t, "Acme Mobile", got.Profiles[0].DisplayName)
	assert.Equal(t, "enabled", got.Profiles[0].State)
	assert.Equal(t, []string{"disable", "rename"}, got.Profiles[0].Actions)
	assert.Equal(t, "Travel", got.Profiles[1].DisplayName)
	assert.Equal(t, []string{"enable", "rename", "delete"}, got.Profiles[1].Actions)
}

func TestUnknownSlot(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/v1/slots/9/profiles", "/v1/slots/abc/profiles"} {
		resp, body := ts.do(t, "GET", path, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		assert.Equal(t, "unknown_slot", decode[errorJSON](t, body).Kind)
	}
}

func TestEnable_RestartRequired(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, "GET", "/v1/slots/0/profiles", "")

	resp, body := ts.do(t, "POST", "/v1/slots/0/profiles/"+globex+"/enable", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	got := decode[operationJSON](t, body)
	assert.True(t, got.RestartRequired)
	assert.Equal(t, "restart_required", got.Outcome)

	// The next request opens a fresh session on the switched card.
	resp, body = ts.do(t, "GET", "/v1/slots/0/profiles", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profiles := decode[profilesJSON](t, body)
	assert.Equal(t, "disabled", profiles.Profiles[0].State)
	assert.Equal(t, "enabled", profiles.Profiles[1].State)
}

func TestEnable_UnknownProfile(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, "GET", "/v1/slots/0/profiles", "")

	resp, body := ts.do(t, "POST", "/v1/slots/0/profiles/8999/enable", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	got := decode[errorJSON](t, body)
	assert.Equal(t, "rejected", got.Kind)
	assert.False(t, got.Retryable)
}

func TestDisable_TransientFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, "GET", "/v1/slots/0/profiles", "")
	ts.card.FailNext("disable", &lpa.Error{Op: "disable", Err: errors.New("apdu timeout")})

	resp, body := ts.do(t, "POST", "/v1/slots/0/profiles/"+acme+"/disable", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	got := decode[errorJSON](t, body)
	assert.Equal(t, "transient", got.Kind)
	assert.True(t, got.Retryable)
}

func TestBusy(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, "GET", "/v1/slots/0/profiles", "")
	entered, release := ts.card.Block()

	enabled := make(chan int, 1)
	go func() {
		resp, err := http.Post(ts.URL+"/v1/slots/0/profiles/"+globex+"/enable", "application/json", nil)
		if err != nil {
			enabled <- 0
			return
		}
		resp.Body.Close()
		enabled <- resp.StatusCode
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("enable never reached the card")
	}

	resp, body := ts.do(t, "DELETE", "/v1/slots/0/profiles/"+acme, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	got := decode[errorJSON](t, body)
	assert.Equal(t, "busy", got.Kind)
	assert.True(t, got.Retryable)

	release()
	assert.Equal(t, http.StatusAccepted, <-enabled)
}

func TestChannelUnavailable(t *testing.T) {
	ts := newTestServer(t, slot.WithOpener(func(context.Context, int) (lpa.Client, error) {
		return nil, channel.ErrUnavailable
	}))

	resp, body := ts.do(t, "GET", "/v1/slots/0/profiles", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "5", resp.Header.Get("Retry-After"))
	assert.Equal(t, "channel_unavailable", decode[errorJSON](t, body).Kind)
}

func TestRename(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, "PUT", "/v1/slots/0/profiles/"+globex+"/nickname", `{"nickname":"Work"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	got := decode[operationJSON](t, body)
	assert.Equal(t, "completed", got.Outcome)
	require.NotNil(t, got.Profiles)
	assert.Equal(t, "Work", got.Profiles.Profiles[1].DisplayName)

	resp, _ = ts.do(t, "PUT", "/v1/slots/0/profiles/"+globex+"/nickname", `{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = ts.do(t, "PUT", "/v1/slots/0/profiles/"+globex+"/nickname", `{"nickname":"a\u0007b"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "rejected", decode[errorJSON](t, body).Kind)
}

func TestDelete(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, "DELETE", "/v1/slots/0/profiles/"+acme, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "enabled profile cannot be deleted")
	assert.Equal(t, "rejected", decode[errorJSON](t, body).Kind)

	resp, body = ts.do(t, "DELETE", "/v1/slots/0/profiles/"+globex, "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	got := decode[operationJSON](t, body)
	require.Len(t, got.Profiles.Profiles, 1)
	assert.Equal(t, acme, got.Profiles.Profiles[0].ICCID)
}

func TestDownload(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, "POST", "/v1/slots/0/downloads", `{"activation_code":"LPA:1$smdp.example.com$Fresh"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	got := decode[operationJSON](t, body)
	require.Len(t, got.Profiles.Profiles, 3)
	assert.Equal(t, "Fresh", got.Profiles.Profiles[2].DisplayName)

	resp, _ = ts.do(t, "POST", "/v1/slots/0/downloads", `{"activation_code":"LPA:9$x$y"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = ts.do(t, "POST", "/v1/slots/0/downloads", `{"activation_code":"LPA:1$smdp.example.com$X$$1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "confirmation code required")

	resp, body = ts.do(t, "POST", "/v1/slots/0/downloads", `{"smdp":"not a host"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "rejected", decode[errorJSON](t, body).Kind)
}

func TestEvents(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, "GET", "/v1/slots/0/profiles", "")

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/slots/0/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	type event struct {
		Type     string        `json:"type"`
		Slot     int           `json:"slot"`
		Profiles *profilesJSON `json:"profiles"`
	}

	var ev event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "snapshot", ev.Type)
	require.NotNil(t, ev.Profiles)
	assert.Len(t, ev.Profiles.Profiles, 2)

	resp, _ := ts.do(t, "PUT", "/v1/slots/0/profiles/"+globex+"/nickname", `{"nickname":"Work"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "snapshot", ev.Type)
	assert.Equal(t, "Work", ev.Profiles.Profiles[1].DisplayName)

	resp, _ = ts.do(t, "POST", "/v1/slots/0/profiles/"+globex+"/enable", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "terminated", ev.Type)

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
}
