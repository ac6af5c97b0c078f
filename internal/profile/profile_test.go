package profile_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ruminaider/euiccctl/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayName(t *testing.T) {
	t.Run("falls back to operator name", func(t *testing.T) {
		p := profile.Profile{ICCID: "8931000000000000001", Name: "Acme Mobile"}
		assert.Equal(t, "Acme Mobile", p.DisplayName())
	})

	t.Run("nickname wins", func(t *testing.T) {
		p := profile.Profile{ICCID: "8931000000000000001", Name: "Acme Mobile", Nickname: "My Travel SIM"}
		assert.Equal(t, "My Travel SIM", p.DisplayName())
	})

	t.Run("never empty", func(t *testing.T) {
		assert.Equal(t, "Acme", profile.Profile{ProviderName: "Acme"}.DisplayName())
		assert.Equal(t, "8931", profile.Profile{ICCID: "8931"}.DisplayName())
		assert.NotEmpty(t, profile.Profile{}.DisplayName())
	})

	t.Run("whitespace nickname ignored", func(t *testing.T) {
		p := profile.Profile{Name: "Acme Mobile", Nickname: "  "}
		assert.Equal(t, "Acme Mobile", p.DisplayName())
	})
}

func TestVisible(t *testing.T) {
	in := []profile.Profile{
		{ICCID: "1", Class: profile.ClassOperational},
		{ICCID: "2", Class: profile.ClassTesting},
		{ICCID: "3", Class: profile.ClassProvisioning},
	}

	out := profile.Visible(in)
	require.Len(t, out, 2)
	assert.Equal(t, "1", out[0].ICCID)
	assert.Equal(t, "3", out[1].ICCID)
	assert.Len(t, in, 3, "input must not be modified")
}

func TestActions(t *testing.T) {
	enabled := profile.Profile{State: profile.StateEnabled}
	disabled := profile.Profile{State: profile.StateDisabled}

	assert.Equal(t, []profile.Action{profile.ActionDisable, profile.ActionRename}, enabled.Actions())
	assert.Equal(t, []profile.Action{profile.ActionEnable, profile.ActionRename, profile.ActionDelete}, disabled.Actions())
	assert.False(t, enabled.Allows(profile.ActionDelete))
	assert.True(t, disabled.Allows(profile.ActionDelete))
}

func TestFindAndEnabled(t *testing.T) {
	in := []profile.Profile{
		{ICCID: "1"},
		{ICCID: "2", State: profile.StateEnabled},
	}

	p, ok := profile.Find(in, "2")
	require.True(t, ok)
	assert.True(t, p.IsEnabled())

	_, ok = profile.Find(in, "9")
	assert.False(t, ok)

	e, ok := profile.Enabled(in)
	require.True(t, ok)
	assert.Equal(t, "2", e.ICCID)

	_, ok = profile.Enabled(in[:1])
	assert.False(t, ok)
}

func TestParseClassAndState(t *testing.T) {
	c, err := profile.ParseClass("Testing")
	require.NoError(t, err)
	assert.Equal(t, profile.ClassTesting, c)

	c, err = profile.ParseClass("")
	require.NoError(t, err)
	assert.Equal(t, profile.ClassOperational, c)

	_, err = profile.ParseClass("bogus")
	assert.Error(t, err)

	s, err := profile.ParseState("enabled")
	require.NoError(t, err)
	assert.Equal(t, profile.StateEnabled, s)

	_, err = profile.ParseState("")
	assert.Error(t, err)
}

func TestMaskICCID(t *testing.T) {
	assert.Equal(t, "•••••••••••••••0001", profile.MaskICCID("8931000000000000001"))
	assert.Equal(t, "123", profile.MaskICCID("123"))
}

func TestValidateNickname(t *testing.T) {
	assert.NoError(t, profile.ValidateNickname(""))
	assert.NoError(t, profile.ValidateNickname("Work"))
	assert.NoError(t, profile.ValidateNickname(strings.Repeat("a", profile.MaxNicknameLen)))

	err := profile.ValidateNickname(strings.Repeat("a", profile.MaxNicknameLen+1))
	assert.ErrorIs(t, err, profile.ErrInvalidNickname)

	err = profile.ValidateNickname("bad\nname")
	assert.ErrorIs(t, err, profile.ErrInvalidNickname)
}

func TestProfileJSON(t *testing.T) {
	p := profile.Profile{
		ICCID: "8931000000000000001",
		Name:  "Acme Mobile",
		Class: profile.ClassOperational,
		State: profile.StateEnabled,
	}
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"iccid":"8931000000000000001","name":"Acme Mobile","provider_name":"","class":"operational","state":"enabled"}`, string(data))
}
