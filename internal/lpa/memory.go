package lpa

import (
	"context"
	"fmt"
	"sync"

	"github.com/ruminaider/euiccctl/internal/profile"
)

// Memory is an in-memory eUICC. It enforces the card-side rules the real
// chip does (one enabled profile, enabled profiles cannot be deleted) and
// lets tests hold an operation in flight or inject failures.
type Memory struct {
	mu       sync.Mutex
	profiles []profile.Profile
	failures map[string]error
	calls    map[string]int
	gate     *gate
	nextID   int
}

type gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

// NewMemory returns a card holding a copy of profiles.
func NewMemory(profiles ...profile.Profile) *Memory {
	m := &Memory{
		failures: make(map[string]error),
		calls:    make(map[string]int),
		nextID:   1,
	}
	m.profiles = append(m.profiles, profiles...)
	return m
}

// DemoProfiles is the card every slot with backend "memory" starts with.
func DemoProfiles() []profile.Profile {
	return []profile.Profile{
		{ICCID: "8931000000000000001", Name: "Acme Mobile", ProviderName: "Acme", State: profile.StateEnabled},
		{ICCID: "8931000000000000002", Name: "Globex Data", ProviderName: "Globex", Nickname: "Travel"},
		{ICCID: "8931000000000000003", Name: "Test Profile", ProviderName: "GSMA", Class: profile.ClassTesting},
	}
}

// Block makes the next operation that reaches the card wait. entered is
// closed once an operation is waiting; release lets it continue.
func (m *Memory) Block() (entered <-chan struct{}, release func()) {
	g := &gate{entered: make(chan struct{}), release: make(chan struct{})}
	m.mu.Lock()
	m.gate = g
	m.mu.Unlock()
	return g.entered, func() {
		g.once.Do(func() { close(g.release) })
	}
}

// FailNext makes the next call of op return err. op is one of list, enable,
// disable, nickname, delete, download.
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = err
}

// Calls returns how many times op reached the card.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Profiles returns a copy of the card content.
func (m *Memory) Profiles() []profile.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]profile.Profile, len(m.profiles))
	copy(out, m.profiles)
	return out
}

// enter records the call, waits on any gate and returns an injected failure.
func (m *Memory) enter(ctx context.Context, op string) error {
	m.mu.Lock()
	m.calls[op]++
	g := m.gate
	m.gate = nil
	err := m.failures[op]
	delete(m.failures, op)
	m.mu.Unlock()

	if g != nil {
		close(g.entered)
		select {
		case <-g.release:
		case <-ctx.Done():
			return &Error{Op: op, Err: ctx.Err()}
		}
	}
	return err
}

func (m *Memory) index(iccid string) int {
	for i, p := range m.profiles {
		if p.ICCID == iccid {
			return i
		}
	}
	return -1
}

func (m *Memory) ListProfiles(ctx context.Context) ([]profile.Profile, error) {
	if err := m.enter(ctx, "list"); err != nil {
		return nil, err
	}
	return m.Profiles(), nil
}

func (m *Memory) EnableProfile(ctx context.Context, iccid string) error {
	if err := m.enter(ctx, "enable"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(iccid)
	if i < 0 {
		return rejected("enable", ReasonNotFound)
	}
	if m.profiles[i].IsEnabled() {
		return rejected("enable", ReasonNotDisabled)
	}
	for j := range m.profiles {
		m.profiles[j].State = profile.StateDisabled
	}
	m.profiles[i].State = profile.StateEnabled
	return nil
}

func (m *Memory) DisableProfile(ctx context.Context, iccid string) error {
	if err := m.enter(ctx, "disable"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(iccid)
	if i < 0 {
		return rejected("disable", ReasonNotFound)
	}
	if !m.profiles[i].IsEnabled() {
		return rejected("disable", ReasonNotEnabled)
	}
	m.profiles[i].State = profile.StateDisabled
	return nil
}

func (m *Memory) SetNickname(ctx context.Context, iccid, nickname string) error {
	if err := m.enter(ctx, "nickname"); err != nil {
		return err
	}
	if len(nickname) > profile.MaxNicknameLen {
		return rejected("nickname", ReasonNicknameTooLong)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(iccid)
	if i < 0 {
		return rejected("nickname", ReasonNotFound)
	}
	m.profiles[i].Nickname = nickname
	return nil
}

func (m *Memory) DeleteProfile(ctx context.Context, iccid string) error {
	if err := m.enter(ctx, "delete"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(iccid)
	if i < 0 {
		return rejected("delete", ReasonNotFound)
	}
	if m.profiles[i].IsEnabled() {
		return rejected("delete", ReasonNotDisabled)
	}
	m.profiles = append(m.profiles[:i], m.profiles[i+1:]...)
	return nil
}

// Download installs a new disabled profile named after the request.
func (m *Memory) Download(ctx context.Context, req DownloadRequest, progress ProgressFunc) error {
	if err := m.enter(ctx, "download"); err != nil {
		return err
	}
	if req.SMDP == "" {
		return rejected("download", ReasonInvalidRequest)
	}
	for _, step := range []string{"es9p_initiate_authentication", "es9p_authenticate_client", "es9p_get_bound_profile_package", "es10b_load_bound_profile_package"} {
		if progress != nil {
			progress(Progress{Step: step})
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	iccid := fmt.Sprintf("89990000000000%05d", m.nextID)
	m.nextID++
	name := req.MatchingID
	if name == "" {
		name = req.SMDP
	}
	m.profiles = append(m.profiles, profile.Profile{
		ICCID:        iccid,
		Name:         name,
		ProviderName: req.SMDP,
	})
	return nil
}
