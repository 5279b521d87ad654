package channelrole

import (
	"testing"

	"git.brightsales.dev/crm/golang/callweaver/internal/config"
	"github.com/stretchr/testify/require"
)

func newTestClassifier(t *testing.T, businessNumbers string) *Classifier {
	t.Helper()

	previous := config.Conf.BusinessPhoneNumbers
	config.Conf.BusinessPhoneNumbers = businessNumbers

	t.Cleanup(func() {
		config.Conf.BusinessPhoneNumbers = previous
	})

	return NewClassifier()
}

func TestClassifyClientEndpointIsAgent(t *testing.T) {
	classifier := newTestClassifier(t, "")

	assignment := classifier.Classify("client:agent_42", "+15551234567")

	require.Equal(t, 1, assignment.AgentChannel)
	require.Equal(t, 2, assignment.CustomerChannel)
	require.Equal(t, "client:agent_42", assignment.BusinessPhone)
	require.Equal(t, "+15551234567", assignment.CounterpartyPhone)
}

func TestClassifyInboundToBusinessNumber(t *testing.T) {
	classifier := newTestClassifier(t, "+15550000100,+15550000200")

	assignment := classifier.Classify("+15551234567", "+15550000100")

	require.Equal(t, 2, assignment.AgentChannel)
	require.Equal(t, 1, assignment.CustomerChannel)
	require.Equal(t, "+15550000100", assignment.BusinessPhone)
	require.Equal(t, "+15551234567", assignment.CounterpartyPhone)
}

func TestClassifyOutboundFromBusinessNumber(t *testing.T) {
	classifier := newTestClassifier(t, "+15550000100")

	assignment := classifier.Classify("+15550000100", "+15551234567")

	require.Equal(t, 1, assignment.AgentChannel)
	require.Equal(t, 2, assignment.CustomerChannel)
}

func TestClassifyNormalizesNumberFormatting(t *testing.T) {
	classifier := newTestClassifier(t, "+1 (555) 000-0100")

	assignment := classifier.Classify("5550000100", "+15551234567")

	require.Equal(t, 1, assignment.AgentChannel)
}

func TestClassifyAmbiguousDefaultsToFromLeg(t *testing.T) {
	classifier := newTestClassifier(t, "")

	// Neither side is recognizably the business; the from-leg wins.
	assignment := classifier.Classify("+15551111111", "+15552222222")

	require.Equal(t, 1, assignment.AgentChannel)
	require.Equal(t, 2, assignment.CustomerChannel)

	// Both sides are agents; still the from-leg.
	both := newTestClassifier(t, "+15551111111,+15552222222")
	assignment = both.Classify("+15551111111", "+15552222222")

	require.Equal(t, 1, assignment.AgentChannel)
}
