package recording

import (
	"strings"
	"testing"

	"git.brightsales.dev/crm/golang/callweaver/internal/callrecord"
	"git.brightsales.dev/crm/golang/callweaver/internal/provider"
	"github.com/stretchr/testify/require"
)

func recordingSid(suffix string) string {
	return "RE" + strings.Repeat("0", 32-len(suffix)) + suffix
}

func TestAnyDualRecordingSupersedesMono(t *testing.T) {
	monoSid := recordingSid("1")

	listing := []provider.Recording{
		{
			Sid:      monoSid,
			Channels: 1,
			Source:   callrecord.RecordingSourceDialVerb,
			Status:   callrecord.RecordingStatusCompleted,
		},
		{
			Sid:      recordingSid("2"),
			Channels: 2,
			Source:   callrecord.RecordingSourceRestAPI,
			Status:   callrecord.RecordingStatusInProgress,
		},
	}

	require.True(t, anyDualRecording(listing, monoSid))
}

func TestAnyDualRecordingIgnoresFailedDual(t *testing.T) {
	monoSid := recordingSid("1")

	listing := []provider.Recording{
		{Sid: monoSid, Channels: 1, Status: callrecord.RecordingStatusCompleted},
		{Sid: recordingSid("2"), Channels: 2, Status: callrecord.RecordingStatusFailed},
	}

	require.False(t, anyDualRecording(listing, monoSid))
}

func TestAnyDualRecordingExcludesSelf(t *testing.T) {
	dualSid := recordingSid("3")

	listing := []provider.Recording{
		{Sid: dualSid, Channels: 2, Status: callrecord.RecordingStatusCompleted},
	}

	require.False(t, anyDualRecording(listing, dualSid))
	require.True(t, anyDualRecording(listing, recordingSid("4")))
}

func TestBestLegPrefersExternalChild(t *testing.T) {
	parent := "CA" + strings.Repeat("0", 32)

	children := []provider.Call{
		{Sid: "CA" + strings.Repeat("1", 32), To: "client:agent_7", Status: callrecord.CallStatusInProgress},
		{Sid: "CA" + strings.Repeat("2", 32), To: "+15551234567", Status: callrecord.CallStatusInProgress},
	}

	require.Equal(t, "CA"+strings.Repeat("2", 32), bestLeg(parent, children))
}

func TestBestLegFallsBackToClientThenParent(t *testing.T) {
	parent := "CA" + strings.Repeat("0", 32)

	clientOnly := []provider.Call{
		{Sid: "CA" + strings.Repeat("1", 32), To: "client:agent_7", Status: callrecord.CallStatusRinging},
	}
	require.Equal(t, "CA"+strings.Repeat("1", 32), bestLeg(parent, clientOnly))

	allDone := []provider.Call{
		{Sid: "CA" + strings.Repeat("1", 32), To: "+15551234567", Status: callrecord.CallStatusCompleted},
	}
	require.Equal(t, parent, bestLeg(parent, allDone))

	require.Equal(t, parent, bestLeg(parent, nil))
}

func TestUsableStatus(t *testing.T) {
	require.True(t, usableStatus(callrecord.RecordingStatusInProgress))
	require.True(t, usableStatus(callrecord.RecordingStatusCompleted))
	require.False(t, usableStatus(callrecord.RecordingStatusFailed))
	require.False(t, usableStatus(callrecord.RecordingStatusAbsent))
	require.False(t, usableStatus(callrecord.RecordingStatusStopped))
}
