package lpa_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ruminaider/euiccctl/internal/lpa"
	"github.com/ruminaider/euiccctl/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_EnableSwitchesActiveProfile(t *testing.T) {
	m := lpa.NewMemory(lpa.DemoProfiles()...)
	ctx := context.Background()

	require.NoError(t, m.EnableProfile(ctx, "8931000000000000002"))

	got := m.Profiles()
	assert.Equal(t, profile.StateDisabled, got[0].State)
	assert.Equal(t, profile.StateEnabled, got[1].State)

	err := m.EnableProfile(ctx, "8931000000000000002")
	assert.True(t, lpa.IsRejected(err))
}

func TestMemory_DisableRequiresEnabled(t *testing.T) {
	m := lpa.NewMemory(lpa.DemoProfiles()...)
	ctx := context.Background()

	err := m.DisableProfile(ctx, "8931000000000000002")
	assert.True(t, lpa.IsRejected(err))

	require.NoError(t, m.DisableProfile(ctx, "8931000000000000001"))
	_, ok := profile.Enabled(m.Profiles())
	assert.False(t, ok)
}

func TestMemory_DeleteEnabledIsRejected(t *testing.T) {
	m := lpa.NewMemory(lpa.DemoProfiles()...)
	ctx := context.Background()

	err := m.DeleteProfile(ctx, "8931000000000000001")
	var lerr *lpa.Error
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, lpa.ReasonNotDisabled, lerr.Reason)

	require.NoError(t, m.DeleteProfile(ctx, "8931000000000000002"))
	assert.Len(t, m.Profiles(), 2)

	err = m.DeleteProfile(ctx, "8931000000000000002")
	assert.True(t, lpa.IsRejected(err))
}

func TestMemory_SetNickname(t *testing.T) {
	m := lpa.NewMemory(lpa.DemoProfiles()...)
	require.NoError(t, m.SetNickname(context.Background(), "8931000000000000001", "Work"))

	p, ok := profile.Find(m.Profiles(), "8931000000000000001")
	require.True(t, ok)
	assert.Equal(t, "Work", p.DisplayName())
}

func TestMemory_Download(t *testing.T) {
	m := lpa.NewMemory()
	var steps int
	err := m.Download(context.Background(), lpa.DownloadRequest{SMDP: "smdp.example.com", MatchingID: "XYZ"}, func(lpa.Progress) { steps++ })
	require.NoError(t, err)

	got := m.Profiles()
	require.Len(t, got, 1)
	assert.Equal(t, "XYZ", got[0].Name)
	assert.Equal(t, profile.StateDisabled, got[0].State)
	assert.Greater(t, steps, 0)

	err = m.Download(context.Background(), lpa.DownloadRequest{}, nil)
	assert.True(t, lpa.IsRejected(err))
}

func TestMemory_FailNext(t *testing.T) {
	m := lpa.NewMemory(lpa.DemoProfiles()...)
	boom := errors.New("boom")
	m.FailNext("list", boom)

	_, err := m.ListProfiles(context.Background())
	assert.ErrorIs(t, err, boom)

	_, err = m.ListProfiles(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 2, m.Calls("list"))
}

func TestMemory_Block(t *testing.T) {
	m := lpa.NewMemory(lpa.DemoProfiles()...)
	entered, release := m.Block()

	done := make(chan error, 1)
	go func() {
		done <- m.EnableProfile(context.Background(), "8931000000000000002")
	}()

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("operation never reached the card")
	}

	select {
	case <-done:
		t.Fatal("operation finished while blocked")
	default:
	}

	release()
	require.NoError(t, <-done)
}

func TestMemory_BlockHonorsCancel(t *testing.T) {
	m := lpa.NewMemory(lpa.DemoProfiles()...)
	entered, release := m.Block()
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.ListProfiles(ctx)
		done <- err
	}()

	<-entered
	cancel()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
}
