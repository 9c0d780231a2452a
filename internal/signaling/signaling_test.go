package signaling

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyChannel(t *testing.T) {
	tests := []struct {
		name string
		want ChannelRole
	}{
		{"PJSIP/2000-00000001", AgentChannel{Extension: "2000"}},
		{"SIP/101-0000a1b2", AgentChannel{Extension: "101"}},
		{"2003-00000007", AgentChannel{Extension: "2003"}},
		{"PJSIP/trunk-00000003", UnknownChannel{}},
		{"PJSIP/2000", UnknownChannel{}},
		{"Local/s@default", UnknownChannel{}},
		{"", UnknownChannel{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyChannel(tt.name))
		})
	}
}

func TestExtensionOf(t *testing.T) {
	ext, ok := ExtensionOf("PJSIP/2001-000000ff")
	require.True(t, ok)
	assert.Equal(t, "2001", ext)

	_, ok = ExtensionOf("PJSIP/provider-000000ff")
	assert.False(t, ok)
}

func TestNormalizeNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+254712345678", "254712345678"},
		{"254712345678", "254712345678"},
		{"0712345678", "2540712345678"},
		{"712345678", "254712345678"},
		{"+44207946000", "25444207946000"},
		{"2000", "2000"},
		{"+1234", "1234"},
		{"12345", "25412345"},
		{"anonymous", "anonymous"},
		{"", UnknownNumber},
		{"  ", UnknownNumber},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeNumber(tt.in))
		})
	}
}

func TestNormalizeNumberIsIdempotent(t *testing.T) {
	for _, in := range []string{"+254712345678", "0712345678", "2000", "", "anonymous"} {
		once := NormalizeNumber(in)
		assert.Equal(t, once, NormalizeNumber(once), "input %q", in)
	}
}

func TestCauseName(t *testing.T) {
	assert.Equal(t, CauseNormalClearing, CauseName(16))
	assert.Equal(t, CauseUserBusy, CauseName(17))
	assert.Equal(t, CauseNoAnswer, CauseName(19))
	assert.Equal(t, CauseCallRejected, CauseName(21))
	assert.Equal(t, CauseUnknown, CauseName(999))
	assert.Equal(t, "", CauseName(0))
}

func TestEventValidate(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{"appeared", Event{Kind: KindChannelAppeared, ChannelID: "c1"}, false},
		{"missing channel", Event{Kind: KindChannelAppeared}, true},
		{"unknown kind", Event{Kind: "ChannelTalking", ChannelID: "c1"}, true},
		{"state without state", Event{Kind: KindStateChanged, ChannelID: "c1"}, true},
		{"bridge without id", Event{Kind: KindEnteredBridge, ChannelID: "c1"}, true},
		{"bridge", Event{Kind: KindEnteredBridge, ChannelID: "c1", BridgeID: "b1"}, false},
		{"terminated", Event{Kind: KindChannelTerminated, ChannelID: "c1", Cause: CauseNormalClearing}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidEvent))
				return
			}
			require.NoError(t, err)
		})
	}
}
