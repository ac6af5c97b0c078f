// Package slot ties each configured SIM slot to a live controller. A
// session lasts as long as its channel handle; once the handle is
// invalidated the next lookup opens a fresh one.
package slot

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/ruminaider/euiccctl/internal/channel"
	"github.com/ruminaider/euiccctl/internal/config"
	"github.com/ruminaider/euiccctl/internal/controller"
	"github.com/ruminaider/euiccctl/internal/download"
	"github.com/ruminaider/euiccctl/internal/lpa"
	"github.com/ruminaider/euiccctl/internal/notify"
	"github.com/ruminaider/euiccctl/internal/profile"
	"github.com/ruminaider/euiccctl/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrUnknownSlot is returned for slot ids missing from the config.
var ErrUnknownSlot = errors.New("unknown slot")

// Session is one slot's handle together with its store, controller and
// refresh coordinator.
type Session struct {
	ID          int
	Config      config.SlotConfig
	Controller  *controller.Controller
	Coordinator *controller.Coordinator
	Store       *store.Store

	notifier *notify.Notifier
}

// Label is the slot's display name.
func (s *Session) Label() string {
	return s.Config.Label()
}

// Enable enables iccid and sends a desktop notification when the card
// starts switching.
func (s *Session) Enable(ctx context.Context, iccid string) (controller.Outcome, error) {
	name := s.displayName(iccid)
	outcome, err := s.Controller.Enable(ctx, iccid)
	if outcome == controller.RestartRequired {
		s.notifier.Notify(notify.RestartRequired(s.Label(), name, true))
	}
	return outcome, err
}

// Disable disables iccid and sends a desktop notification when the card
// starts switching.
func (s *Session) Disable(ctx context.Context, iccid string) (controller.Outcome, error) {
	name := s.displayName(iccid)
	outcome, err := s.Controller.Disable(ctx, iccid)
	if outcome == controller.RestartRequired {
		s.notifier.Notify(notify.RestartRequired(s.Label(), name, false))
	}
	return outcome, err
}

// Download installs a profile and returns the profiles that were not on
// the card before. A desktop notification reports the install, or the
// failure unless the caller cancelled.
func (s *Session) Download(ctx context.Context, req lpa.DownloadRequest, progress lpa.ProgressFunc) (controller.Outcome, []profile.Profile, error) {
	before := s.Store.Current()
	outcome, err := s.Controller.Download(ctx, req, progress)
	if err != nil {
		var opErr *controller.OperationError
		if errors.As(err, &opErr) && !errors.Is(err, context.Canceled) {
			s.notifier.Notify(notify.Failed(s.Label(), "Profile download", opErr.Err))
		}
		return outcome, nil, err
	}

	var added []profile.Profile
	var names []string
	for _, p := range profile.Visible(s.Store.Current()) {
		if _, ok := profile.Find(before, p.ICCID); !ok {
			added = append(added, p)
			names = append(names, p.DisplayName())
		}
	}
	s.notifier.Notify(notify.Downloaded(s.Label(), names))
	return outcome, added, nil
}

func (s *Session) displayName(iccid string) string {
	if p, ok := profile.Find(s.Store.Current(), iccid); ok {
		return p.DisplayName()
	}
	return iccid
}

// Status describes a configured slot.
type Status struct {
	ID            int    `json:"id"`
	Name          string `json:"name"`
	Backend       string `json:"backend"`
	Device        string `json:"device,omitempty"`
	DevicePresent bool   `json:"device_present"`
	Active        bool   `json:"active"`
	Generation    uint64 `json:"generation"`
	Profiles      int    `json:"profiles"`
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger handed to controllers and lpac.
func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) { r.log = log }
}

// WithMetrics sets the metrics collector for every controller.
func WithMetrics(m controller.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithNotifier sets the desktop notifier.
func WithNotifier(n *notify.Notifier) Option {
	return func(r *Registry) { r.notifier = n }
}

// WithOpener replaces the config-derived channel opener.
func WithOpener(open channel.Opener) Option {
	return func(r *Registry) { r.open = open }
}

// WithChangeSignals supplies per-slot profiles-changed channels, such as
// hotplug.Watcher.Changed.
func WithChangeSignals(changed func(slot int) <-chan struct{}) Option {
	return func(r *Registry) { r.changed = changed }
}

// WithDevicePresence reports whether a slot's device is attached, such as
// hotplug.Watcher.Present.
func WithDevicePresence(present func(slot int) bool) Option {
	return func(r *Registry) { r.present = present }
}

// WithBackgroundRefresh starts a refresh coordinator for every session,
// refreshing once at start.
func WithBackgroundRefresh() Option {
	return func(r *Registry) { r.background = true }
}

// WithOnTerminate registers a hook called when a session's handle is
// invalidated.
func WithOnTerminate(fn func(slot int)) Option {
	return func(r *Registry) { r.onTerminate = fn }
}

// WithOnRefresh registers a hook called after each background refresh.
func WithOnRefresh(fn func(slot int, err error)) Option {
	return func(r *Registry) { r.onRefresh = fn }
}

// Registry hands out sessions for the configured slots.
type Registry struct {
	cfg         config.Config
	log         *zap.Logger
	metrics     controller.Metrics
	notifier    *notify.Notifier
	open        channel.Opener
	changed     func(slot int) <-chan struct{}
	present     func(slot int) bool
	background  bool
	onTerminate func(slot int)
	onRefresh   func(slot int, err error)

	manager  *channel.Manager
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	sessions map[int]*Session
	opening  map[int]*semaphore.Weighted
	wg       sync.WaitGroup
}

// NewRegistry returns a registry for cfg's slots.
func NewRegistry(cfg config.Config, opts ...Option) *Registry {
	r := &Registry{
		cfg:      cfg,
		log:      zap.NewNop(),
		sessions: make(map[int]*Session),
		opening:  make(map[int]*semaphore.Weighted),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.open == nil {
		r.open = NewOpener(cfg, r.log)
	}
	r.manager = channel.NewManager(r.open)
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// Manager returns the channel manager, for out-of-band invalidation.
func (r *Registry) Manager() *channel.Manager {
	return r.manager
}

// Config returns the configuration the registry was built from.
func (r *Registry) Config() config.Config {
	return r.cfg
}

// Session returns the live session for slot, opening one if the previous
// handle was invalidated or none exists yet. Only callers for the same slot
// wait on each other while a channel is being opened.
func (r *Registry) Session(ctx context.Context, id int) (*Session, error) {
	sc, ok := r.cfg.Slot(id)
	if !ok {
		return nil, ErrUnknownSlot
	}
	if s := r.live(id); s != nil {
		return s, nil
	}

	sem := r.openLock(id)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer sem.Release(1)
	if s := r.live(id); s != nil {
		return s, nil
	}

	h, err := r.manager.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	s := r.newSession(sc, h)
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	r.log.Info("slot session opened", zap.Int("slot", id), zap.String("backend", sc.Backend))
	r.watch(s)
	return s, nil
}

func (r *Registry) live(id int) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok && s.Controller.Valid() {
		return s
	}
	return nil
}

func (r *Registry) openLock(id int) *semaphore.Weighted {
	r.mu.Lock()
	defer r.mu.Unlock()
	sem, ok := r.opening[id]
	if !ok {
		sem = semaphore.NewWeighted(1)
		r.opening[id] = sem
	}
	return sem
}

func (r *Registry) newSession(sc config.SlotConfig, h *channel.Handle) *Session {
	st := store.New()
	opts := []controller.Option{
		controller.WithLogger(r.log.With(zap.Int("slot", sc.ID))),
		controller.WithDownloader(download.NewWorkflow(r.log)),
	}
	if r.metrics != nil {
		opts = append(opts, controller.WithMetrics(r.metrics))
	}
	ctrl := controller.New(h, st, opts...)

	id := sc.ID
	co := controller.NewCoordinator(ctrl, func(err error) {
		if r.onRefresh != nil {
			r.onRefresh(id, err)
		}
	})
	return &Session{
		ID:          id,
		Config:      sc,
		Controller:  ctrl,
		Coordinator: co,
		Store:       st,
		notifier:    r.notifier,
	}
}

// watch runs the session's background work until its handle dies or the
// registry closes.
func (r *Registry) watch(s *Session) {
	if r.background {
		var changed <-chan struct{}
		if r.changed != nil {
			changed = r.changed(s.ID)
		}
		s.Coordinator.RequestRefresh()
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			_ = s.Coordinator.Run(r.ctx, changed)
		}()
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		select {
		case <-s.Controller.Terminated():
			r.log.Info("slot session terminated", zap.Int("slot", s.ID))
			if r.onTerminate != nil {
				r.onTerminate(s.ID)
			}
		case <-r.ctx.Done():
		}
	}()
}

// Statuses describes every configured slot in id order. A slot is active
// while the channel manager holds a live handle for it.
func (r *Registry) Statuses() []Status {
	live := r.manager.Slots()

	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Status, 0, len(r.cfg.Slots))
	for _, id := range r.cfg.SlotIDs() {
		sc, _ := r.cfg.Slot(id)
		st := Status{ID: id, Name: sc.Label(), Backend: sc.Backend, Device: sc.Device}
		if r.present != nil && sc.Device != "" {
			st.DevicePresent = r.present(id)
		}
		s, ok := r.sessions[id]
		if ok && slices.Contains(live, id) && s.Controller.Valid() {
			snap := s.Controller.Snapshot()
			st.Active = true
			st.Generation = snap.Generation
			st.Profiles = len(profile.Visible(snap.Profiles))
		}
		out = append(out, st)
	}
	return out
}

// Close stops background work.
func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()
}
