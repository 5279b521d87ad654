package channelrole

import (
	"strings"

	"git.brightsales.dev/crm/golang/callweaver/internal/config"
)

const (
	RoleAgent    = "Agent"
	RoleCustomer = "Customer"
)

// Assignment pins each dual-recording media channel to a conversational role
// for one call. It is computed once and reused by every transcript attempt so
// retries cannot flip speakers.
type Assignment struct {
	AgentChannel      int
	CustomerChannel   int
	BusinessPhone     string
	CounterpartyPhone string
}

// Classifier decides which channel carries the sales agent. Channel 1 is
// always the from-leg of the recording, channel 2 the to-leg.
type Classifier struct {
	businessNumbers map[string]struct{}
}

func NewClassifier() *Classifier {
	numbers := make(map[string]struct{})
	for _, number := range config.Conf.BusinessNumbers() {
		numbers[normalizeNumber(number)] = struct{}{}
	}

	return &Classifier{businessNumbers: numbers}
}

// Classify maps the from and to endpoints of a call onto agent and customer
// channels. SIP client endpoints belong to agents; otherwise the business
// phone number set decides. When both or neither side matches, the from-leg
// is assumed to be the agent, since outbound dialing from the CRM is the
// dominant traffic pattern.
func (classifier *Classifier) Classify(from, to string) Assignment {
	fromIsAgent := classifier.isAgentEndpoint(from)
	toIsAgent := classifier.isAgentEndpoint(to)

	if toIsAgent && !fromIsAgent {
		return Assignment{
			AgentChannel:      2,
			CustomerChannel:   1,
			BusinessPhone:     to,
			CounterpartyPhone: from,
		}
	}

	return Assignment{
		AgentChannel:      1,
		CustomerChannel:   2,
		BusinessPhone:     from,
		CounterpartyPhone: to,
	}
}

func (classifier *Classifier) isAgentEndpoint(endpoint string) bool {
	if strings.HasPrefix(endpoint, "client:") || strings.HasPrefix(endpoint, "sip:") {
		return true
	}

	_, ok := classifier.businessNumbers[normalizeNumber(endpoint)]

	return ok
}

// normalizeNumber strips formatting and compares on the last ten digits, so
// "+1 (555) 123-4567" and "5551234567" match.
func normalizeNumber(number string) string {
	var digits strings.Builder

	for _, r := range number {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}

	s := digits.String()
	if len(s) > 10 {
		s = s[len(s)-10:]
	}

	return s
}
