package orchestrator

import (
	"testing"

	"git.brightsales.dev/crm/golang/callweaver/internal/provider"
	"github.com/stretchr/testify/require"
)

func TestLiveDialStatus(t *testing.T) {
	require.True(t, liveDialStatus("answered"))
	require.True(t, liveDialStatus("in-progress"))

	// Finished or failed dial outcomes describe a leg that already ended.
	require.False(t, liveDialStatus("completed"))
	require.False(t, liveDialStatus("busy"))
	require.False(t, liveDialStatus("no-answer"))
	require.False(t, liveDialStatus("failed"))
	require.False(t, liveDialStatus(""))
}

func TestExtractOperatorSignals(t *testing.T) {
	results := []provider.OperatorResult{
		{
			Name:              "conversation-summary",
			OperatorType:      "text-generation",
			TextGenerationRes: map[string]any{"result": "Customer asked for a renewal quote."},
		},
		{
			Name:           "sentiment",
			OperatorType:   "text-classification",
			PredictedLabel: "positive",
		},
	}

	summary, sentiment := extractOperatorSignals(results)

	require.Equal(t, "Customer asked for a renewal quote.", summary)
	require.Equal(t, "positive", sentiment)
}

func TestExtractOperatorSignalsEmpty(t *testing.T) {
	summary, sentiment := extractOperatorSignals(nil)

	require.Empty(t, summary)
	require.Empty(t, sentiment)
}
