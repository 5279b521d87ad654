package insight

import (
	"testing"

	"git.brightsales.dev/crm/golang/callweaver/internal/channelrole"
	"git.brightsales.dev/crm/golang/callweaver/internal/transcript"
	"github.com/stretchr/testify/require"
)

func salesCallUtterances() []transcript.Utterance {
	return []transcript.Utterance{
		{Role: channelrole.RoleAgent, Text: "Hi, this is Dana from Brightsales, calling about your renewal.", StartTime: 0},
		{Role: channelrole.RoleCustomer, Text: "The pricing feels too expensive and the dashboard is slow.", StartTime: 5},
		{Role: channelrole.RoleAgent, Text: "We can offer a discount on a 12-month contract for 25 seats.", StartTime: 12},
		{Role: channelrole.RoleCustomer, Text: "That sounds great, I'm definitely interested.", StartTime: 20},
		{Role: channelrole.RoleAgent, Text: "Perfect, I'll send over the $4,500 quote and follow up next week.", StartTime: 25},
	}
}

func TestHeuristicTopicsAndFacts(t *testing.T) {
	insight := Heuristic(salesCallUtterances())

	require.Contains(t, insight.KeyTopics, "renewal")
	require.Contains(t, insight.KeyTopics, "pricing")
	require.Contains(t, insight.KeyTopics, "contract")

	require.Equal(t, "12-month", insight.ContractFacts["term"])
	require.Equal(t, "25 seats", insight.ContractFacts["seats"])
	require.Contains(t, insight.ContractFacts["amount"], "4,500")
}

func TestHeuristicNextStepsFromAgentOnly(t *testing.T) {
	insight := Heuristic(salesCallUtterances())

	require.Len(t, insight.NextSteps, 1)
	require.Contains(t, insight.NextSteps[0], "follow up")
}

func TestHeuristicPainPointsFromCustomerOnly(t *testing.T) {
	insight := Heuristic(salesCallUtterances())

	require.Len(t, insight.PainPoints, 1)
	require.Contains(t, insight.PainPoints[0], "too expensive")
}

func TestHeuristicSentiment(t *testing.T) {
	insight := Heuristic(salesCallUtterances())
	require.Equal(t, SentimentPositive, insight.Sentiment)

	negative := Heuristic([]transcript.Utterance{
		{Role: channelrole.RoleCustomer, Text: "This is a frustrating problem, the product is broken and slow."},
	})
	require.Equal(t, SentimentNegative, negative.Sentiment)

	require.Equal(t, SentimentNeutral, Heuristic(nil).Sentiment)
}

func TestHeuristicCompositeSummary(t *testing.T) {
	insight := Heuristic(salesCallUtterances())

	require.Contains(t, insight.Summary, "calling about your renewal")
	require.Contains(t, insight.Summary, "follow up next week")

	require.Empty(t, Heuristic(nil).Summary)

	single := Heuristic([]transcript.Utterance{{Role: channelrole.RoleAgent, Text: "Quick voicemail."}})
	require.Equal(t, "Quick voicemail.", single.Summary)
}

func TestStripCodeFence(t *testing.T) {
	fenced := "```json\n{\"summary\":\"ok\"}\n```"
	require.Equal(t, `{"summary":"ok"}`, stripCodeFence(fenced))

	plain := `{"summary":"ok"}`
	require.Equal(t, plain, stripCodeFence(plain))
}
