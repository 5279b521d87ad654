package callrecord

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func applyUpdates(doc map[string]any, updates map[string]any) {
	for key, value := range PruneAbsent(updates) {
		doc[key] = value
	}
}

func TestPruneAbsentDropsNilValues(t *testing.T) {
	var nilStr *string

	summary := "short call"

	pruned := PruneAbsent(map[string]any{
		"summary":   summary,
		"status":    nil,
		"sentiment": nilStr,
	})

	require.Equal(t, map[string]any{"summary": summary}, pruned)
}

func TestPruneAbsentKeepsZeroValues(t *testing.T) {
	// A present zero is a legitimate write; only absence is pruned.
	pruned := PruneAbsent(map[string]any{
		"duration_seconds": 0,
		"summary":          "",
	})

	require.Len(t, pruned, 2)
}

func TestMergeIdempotence(t *testing.T) {
	a := map[string]any{"status": CallStatusInProgress, "from_number": "+15550100"}
	b := map[string]any{"recording_sid": "RE" + "00000000000000000000000000000001", "recording_channels": 2}

	sequential := map[string]any{}
	applyUpdates(sequential, a)
	applyUpdates(sequential, b)

	merged := map[string]any{}
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}

	combined := map[string]any{}
	applyUpdates(combined, merged)

	require.Equal(t, combined, sequential)

	// Duplicate delivery of the same partial is a no-op.
	applyUpdates(sequential, a)
	require.Equal(t, combined, sequential)
}

func TestAbsentNeverClobbersPresent(t *testing.T) {
	doc := map[string]any{}
	applyUpdates(doc, map[string]any{"recording_url": "https://api.example.com/rec.wav"})

	var nilURL *string

	applyUpdates(doc, map[string]any{"recording_url": nilURL, "status": CallStatusCompleted})

	require.Equal(t, "https://api.example.com/rec.wav", doc["recording_url"])
	require.Equal(t, CallStatusCompleted, doc["status"])
}

func TestFinalCallStatus(t *testing.T) {
	require.True(t, FinalCallStatus(CallStatusCompleted))
	require.True(t, FinalCallStatus(CallStatusCanceled))
	require.False(t, FinalCallStatus(CallStatusRinging))
	require.False(t, FinalCallStatus(CallStatusInProgress))
}
