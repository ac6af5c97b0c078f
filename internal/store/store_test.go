package store_test

import (
	"testing"

	"github.com/ruminaider/euiccctl/internal/profile"
	"github.com/ruminaider/euiccctl/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_EmptyAtStart(t *testing.T) {
	s := store.New()
	assert.Empty(t, s.Current())
	assert.Equal(t, uint64(0), s.Snapshot().Generation)
}

func TestStore_ReplaceKeepsOrderAndEverything(t *testing.T) {
	s := store.New()
	in := []profile.Profile{
		{ICCID: "3"},
		{ICCID: "1", Class: profile.ClassTesting},
		{ICCID: "2"},
	}

	snap := s.Replace(in)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.False(t, snap.FetchedAt.IsZero())

	got := s.Current()
	require.Len(t, got, 3)
	assert.Equal(t, "3", got[0].ICCID)
	assert.Equal(t, "1", got[1].ICCID)
	assert.Equal(t, "2", got[2].ICCID)
}

func TestStore_ReplaceIsWholesale(t *testing.T) {
	s := store.New()
	s.Replace([]profile.Profile{{ICCID: "1"}, {ICCID: "2"}})
	s.Replace([]profile.Profile{{ICCID: "9"}})

	got := s.Current()
	require.Len(t, got, 1)
	assert.Equal(t, "9", got[0].ICCID)
	assert.Equal(t, uint64(2), s.Snapshot().Generation)
}

func TestStore_ReadersGetCopies(t *testing.T) {
	s := store.New()
	in := []profile.Profile{{ICCID: "1", Nickname: "a"}}
	s.Replace(in)

	in[0].Nickname = "mutated input"
	got := s.Current()
	got[0].Nickname = "mutated output"

	assert.Equal(t, "a", s.Current()[0].Nickname)
}

func TestStore_Subscribe(t *testing.T) {
	s := store.New()
	ch, cancel := s.Subscribe()
	defer cancel()

	s.Replace([]profile.Profile{{ICCID: "1"}})
	s.Replace([]profile.Profile{{ICCID: "2"}})

	snap := <-ch
	assert.Equal(t, uint64(2), snap.Generation, "slow subscribers only see the newest snapshot")
	assert.Equal(t, "2", snap.Profiles[0].ICCID)

	cancel()
	s.Replace(nil)
	select {
	case <-ch:
		t.Fatal("cancelled subscription received a snapshot")
	default:
	}
}
