// Package controller runs profile operations against one slot's channel.
//
// At most one operation is in flight per handle. Mutating operations that
// find the slot busy fail with ErrBusy; refreshes wait their turn. A
// successful enable or disable ends the handle's life: the caller gets
// RestartRequired and has to acquire a new handle before doing anything
// else on the slot.
package controller

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ruminaider/euiccctl/internal/channel"
	"github.com/ruminaider/euiccctl/internal/lpa"
	"github.com/ruminaider/euiccctl/internal/profile"
	"github.com/ruminaider/euiccctl/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Outcome is how a mutating operation ended.
type Outcome int

const (
	// Failed means the operation did not complete; the error says why.
	Failed Outcome = iota
	// Completed means the card accepted the change and the store was
	// brought up to date.
	Completed
	// RestartRequired means the card switched profiles. The handle is
	// invalidated and the slot must be re-acquired.
	RestartRequired
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case RestartRequired:
		return "restart_required"
	default:
		return "failed"
	}
}

// Controller serializes operations on one channel handle and keeps the
// slot's store current.
type Controller struct {
	handle     *channel.Handle
	store      *store.Store
	guard      *semaphore.Weighted
	log        *zap.Logger
	metrics    Metrics
	downloader Downloader
}

// New returns a controller for h that publishes profile lists to s.
func New(h *channel.Handle, s *store.Store, opts ...Option) *Controller {
	c := &Controller{
		handle:     h,
		store:      s,
		guard:      semaphore.NewWeighted(1),
		log:        zap.NewNop(),
		metrics:    nopMetrics{},
		downloader: directDownloader{},
	}
	for _, opt := range opts {
		opt(c)
	}
	slot := h.Slot()
	c.metrics.SetChannelValid(slot, true)
	h.OnInvalidate(func() { c.metrics.SetChannelValid(slot, false) })
	return c
}

// Slot returns the slot the controller operates on.
func (c *Controller) Slot() int {
	return c.handle.Slot()
}

// Terminated is closed once the handle is invalidated, either by an
// enable/disable or from outside.
func (c *Controller) Terminated() <-chan struct{} {
	return c.handle.Done()
}

// Valid reports whether the handle can still be used.
func (c *Controller) Valid() bool {
	return c.handle.Valid()
}

// CurrentProfiles returns the stored profiles a user may see, in fetch
// order. Testing-class profiles are left out.
func (c *Controller) CurrentProfiles() []profile.Profile {
	return profile.Visible(c.store.Current())
}

// Snapshot returns the full stored snapshot, Testing-class profiles
// included.
func (c *Controller) Snapshot() store.Snapshot {
	return c.store.Snapshot()
}

// op is the bookkeeping for one operation call.
type op struct {
	name  string
	start time.Time
	log   *zap.Logger
}

func (c *Controller) begin(name, iccid string) op {
	fields := []zap.Field{
		zap.String("op_id", uuid.NewString()),
		zap.String("op", name),
		zap.Int("slot", c.handle.Slot()),
	}
	if iccid != "" {
		fields = append(fields, zap.String("iccid", iccid))
	}
	return op{name: name, start: time.Now(), log: c.log.With(fields...)}
}

func (c *Controller) finish(o op, outcome Outcome, err error) {
	label := outcomeLabel(outcome, err)
	c.metrics.ObserveOperation(c.handle.Slot(), o.name, label, time.Since(o.start))
	if err != nil {
		o.log.Warn("operation failed", zap.String("outcome", label), zap.Error(err))
		return
	}
	o.log.Info("operation finished", zap.String("outcome", label), zap.Duration("took", time.Since(o.start)))
}

// tryLock claims the guard without waiting.
func (c *Controller) tryLock() (func(), error) {
	if !c.handle.Valid() {
		return nil, ErrChannelUnavailable
	}
	if !c.guard.TryAcquire(1) {
		return nil, ErrBusy
	}
	if !c.handle.Valid() {
		c.guard.Release(1)
		return nil, ErrChannelUnavailable
	}
	return func() { c.guard.Release(1) }, nil
}

// lock waits for the guard.
func (c *Controller) lock(ctx context.Context) (func(), error) {
	if !c.handle.Valid() {
		return nil, ErrChannelUnavailable
	}
	if err := c.guard.Acquire(ctx, 1); err != nil {
		return nil, &FetchError{Err: err}
	}
	if !c.handle.Valid() {
		c.guard.Release(1)
		return nil, ErrChannelUnavailable
	}
	return func() { c.guard.Release(1) }, nil
}

// Enable switches the card to iccid. On success the handle is invalidated
// and the outcome is RestartRequired.
func (c *Controller) Enable(ctx context.Context, iccid string) (Outcome, error) {
	return c.switchProfile(ctx, "enable", iccid, c.handle.Client().EnableProfile)
}

// Disable disables iccid. On success the handle is invalidated and the
// outcome is RestartRequired.
func (c *Controller) Disable(ctx context.Context, iccid string) (Outcome, error) {
	return c.switchProfile(ctx, "disable", iccid, c.handle.Client().DisableProfile)
}

func (c *Controller) switchProfile(ctx context.Context, name, iccid string, call func(context.Context, string) error) (outcome Outcome, err error) {
	o := c.begin(name, iccid)
	defer func() { c.finish(o, outcome, err) }()

	unlock, err := c.tryLock()
	if err != nil {
		return Failed, err
	}
	defer unlock()

	if _, ok := profile.Find(c.store.Current(), iccid); !ok {
		return Failed, rejectedErr(name, iccid, ErrUnknownProfile)
	}
	if err := call(ctx, iccid); err != nil {
		return Failed, classify(name, iccid, err)
	}

	// The store is left as is. It describes the card as it was before the
	// switch and will be rebuilt against the next handle.
	c.handle.Invalidate()
	return RestartRequired, nil
}

// Rename sets the nickname of iccid. An empty nickname clears it.
func (c *Controller) Rename(ctx context.Context, iccid, nickname string) (outcome Outcome, err error) {
	o := c.begin("rename", iccid)
	defer func() { c.finish(o, outcome, err) }()

	unlock, err := c.tryLock()
	if err != nil {
		return Failed, err
	}
	defer unlock()

	if err := profile.ValidateNickname(nickname); err != nil {
		return Failed, rejectedErr("rename", iccid, err)
	}
	if err := c.handle.Client().SetNickname(ctx, iccid, nickname); err != nil {
		return Failed, classify("rename", iccid, err)
	}
	c.sync(ctx, o, func(ps []profile.Profile) []profile.Profile {
		for i := range ps {
			if ps[i].ICCID == iccid {
				ps[i].Nickname = nickname
			}
		}
		return ps
	})
	return Completed, nil
}

// Delete removes iccid from the card. The card refuses to delete the
// enabled profile; that surfaces as a Rejected error.
func (c *Controller) Delete(ctx context.Context, iccid string) (outcome Outcome, err error) {
	o := c.begin("delete", iccid)
	defer func() { c.finish(o, outcome, err) }()

	unlock, err := c.tryLock()
	if err != nil {
		return Failed, err
	}
	defer unlock()

	if err := c.handle.Client().DeleteProfile(ctx, iccid); err != nil {
		return Failed, classify("delete", iccid, err)
	}
	c.sync(ctx, o, func(ps []profile.Profile) []profile.Profile {
		out := ps[:0]
		for _, p := range ps {
			if p.ICCID != iccid {
				out = append(out, p)
			}
		}
		return out
	})
	return Completed, nil
}

// Download installs a new profile. The new profile arrives disabled, so
// the handle stays valid.
func (c *Controller) Download(ctx context.Context, req lpa.DownloadRequest, progress lpa.ProgressFunc) (outcome Outcome, err error) {
	o := c.begin("download", "")
	defer func() { c.finish(o, outcome, err) }()

	unlock, err := c.tryLock()
	if err != nil {
		return Failed, err
	}
	defer unlock()

	if err := c.downloader.Download(ctx, c.handle.Client(), req, progress); err != nil {
		return Failed, classify("download", "", err)
	}
	c.sync(ctx, o, nil)
	return Completed, nil
}

// Refresh fetches the profile list and replaces the store. If another
// operation is in flight it waits for it. On failure the store keeps its
// previous snapshot.
func (c *Controller) Refresh(ctx context.Context) (err error) {
	o := c.begin("refresh", "")
	defer func() {
		outcome := Completed
		if err != nil {
			outcome = Failed
		}
		c.finish(o, outcome, err)
	}()

	unlock, err := c.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()
	return c.fetch(ctx)
}

// fetch must be called with the guard held.
func (c *Controller) fetch(ctx context.Context) error {
	profiles, err := c.handle.Client().ListProfiles(ctx)
	if err != nil {
		c.metrics.ObserveRefresh(c.handle.Slot(), false)
		return &FetchError{Err: err}
	}
	c.store.Replace(profiles)
	c.metrics.ObserveRefresh(c.handle.Slot(), true)
	return nil
}

// sync brings the store up to date after a successful change. When the
// card cannot be re-read, patch is applied to the current snapshot so the
// store still reflects the change.
func (c *Controller) sync(ctx context.Context, o op, patch func([]profile.Profile) []profile.Profile) {
	err := c.fetch(ctx)
	if err == nil {
		return
	}
	if patch == nil {
		o.log.Warn("refresh after change failed, profile list is stale", zap.Error(err))
		return
	}
	o.log.Warn("refresh after change failed, patching profile list", zap.Error(err))
	c.store.Replace(patch(c.store.Current()))
}
