package transcript

import (
	"sort"
	"testing"

	"git.brightsales.dev/crm/golang/callweaver/internal/channelrole"
	"git.brightsales.dev/crm/golang/callweaver/internal/provider"
	"github.com/stretchr/testify/require"
)

var testAssignment = channelrole.Assignment{AgentChannel: 1, CustomerChannel: 2}

func TestUtterancesFromSentencesOrdersByStartTime(t *testing.T) {
	sentences := []provider.Sentence{
		{Text: "Sure, Tuesday works.", MediaChannel: 2, StartTime: 12.4, EndTime: 14.0},
		{Text: "Hi, this is Dana from Brightsales.", MediaChannel: 1, StartTime: 0.5, EndTime: 3.2},
		{Text: "Can we schedule a demo?", MediaChannel: 1, StartTime: 8.1, EndTime: 10.9},
	}

	utterances, attributed := UtterancesFromSentences(sentences, testAssignment)

	require.True(t, attributed)
	require.Len(t, utterances, 3)

	require.True(t, sort.SliceIsSorted(utterances, func(i, j int) bool {
		return utterances[i].StartTime < utterances[j].StartTime
	}))

	require.Equal(t, channelrole.RoleAgent, utterances[0].Role)
	require.Equal(t, channelrole.RoleAgent, utterances[1].Role)
	require.Equal(t, channelrole.RoleCustomer, utterances[2].Role)
}

func TestUtterancesFromSentencesUnattributed(t *testing.T) {
	sentences := []provider.Sentence{
		{Text: "hello", MediaChannel: 0, StartTime: 0.1},
		{Text: "world", MediaChannel: 0, StartTime: 1.0},
	}

	utterances, attributed := UtterancesFromSentences(sentences, testAssignment)

	require.False(t, attributed)
	require.Nil(t, utterances)
}

func TestUtterancesFromSentencesSkipsBlankText(t *testing.T) {
	sentences := []provider.Sentence{
		{Text: "  ", MediaChannel: 1, StartTime: 0.1},
		{Text: "real content", MediaChannel: 2, StartTime: 1.0},
	}

	utterances, attributed := UtterancesFromSentences(sentences, testAssignment)

	require.True(t, attributed)
	require.Len(t, utterances, 1)
	require.Equal(t, "real content", utterances[0].Text)
}

func TestUtterancesFromWordsGroupsByChannelAndGap(t *testing.T) {
	words := []provider.Word{
		{Text: "Hi", MediaChannel: 1, StartTime: 0.0, EndTime: 0.3},
		{Text: "there", MediaChannel: 1, StartTime: 0.4, EndTime: 0.7},
		{Text: "Hello", MediaChannel: 2, StartTime: 1.0, EndTime: 1.4},
		// Same channel as the previous word but past the gap threshold.
		{Text: "Anyway", MediaChannel: 2, StartTime: 4.0, EndTime: 4.5},
		{Text: "thanks", MediaChannel: 2, StartTime: 4.6, EndTime: 5.0},
	}

	utterances := UtterancesFromWords(words, testAssignment, 1.5)

	require.Len(t, utterances, 3)

	require.Equal(t, "Hi there", utterances[0].Text)
	require.Equal(t, channelrole.RoleAgent, utterances[0].Role)
	require.Equal(t, 0.0, utterances[0].StartTime)
	require.Equal(t, 0.7, utterances[0].EndTime)

	require.Equal(t, "Hello", utterances[1].Text)
	require.Equal(t, channelrole.RoleCustomer, utterances[1].Role)

	require.Equal(t, "Anyway thanks", utterances[2].Text)
	require.Equal(t, 4.0, utterances[2].StartTime)
	require.Equal(t, 5.0, utterances[2].EndTime)
}

func TestUtterancesFromWordsSortsOutOfOrderInput(t *testing.T) {
	words := []provider.Word{
		{Text: "second", MediaChannel: 1, StartTime: 2.0, EndTime: 2.4},
		{Text: "first", MediaChannel: 2, StartTime: 0.0, EndTime: 0.4},
	}

	utterances := UtterancesFromWords(words, testAssignment, 1.5)

	require.Len(t, utterances, 2)
	require.Equal(t, "first", utterances[0].Text)
	require.Equal(t, "second", utterances[1].Text)
}

func TestFlatUtterance(t *testing.T) {
	utterances := FlatUtterance("  the whole call as one blob  ", 42)

	require.Len(t, utterances, 1)
	require.Equal(t, "the whole call as one blob", utterances[0].Text)
	require.Equal(t, "Unknown", utterances[0].Role)
	require.Equal(t, 42.0, utterances[0].EndTime)

	require.Nil(t, FlatUtterance("   ", 42))
}
