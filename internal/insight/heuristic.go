package insight

import (
	"regexp"
	"strings"

	"git.brightsales.dev/crm/golang/callweaver/internal/channelrole"
	"git.brightsales.dev/crm/golang/callweaver/internal/transcript"
)

var topicVocabulary = map[string]string{
	"price":       "pricing",
	"pricing":     "pricing",
	"cost":        "pricing",
	"quote":       "pricing",
	"discount":    "pricing",
	"budget":      "budget",
	"contract":    "contract",
	"agreement":   "contract",
	"renewal":     "renewal",
	"renew":       "renewal",
	"demo":        "demo",
	"trial":       "demo",
	"integration": "integration",
	"integrate":   "integration",
	"api":         "integration",
	"onboarding":  "onboarding",
	"support":     "support",
	"competitor":  "competition",
	"timeline":    "timeline",
	"deadline":    "timeline",
}

var positiveWords = map[string]struct{}{
	"great": {}, "good": {}, "perfect": {}, "excellent": {}, "love": {},
	"happy": {}, "interested": {}, "awesome": {}, "thanks": {}, "helpful": {},
	"definitely": {}, "excited": {},
}

var negativeWords = map[string]struct{}{
	"problem": {}, "issue": {}, "unhappy": {}, "frustrated": {}, "frustrating": {},
	"expensive": {}, "cancel": {}, "disappointed": {}, "slow": {}, "difficult": {},
	"confusing": {}, "broken": {}, "unfortunately": {},
}

var nextStepMarkers = []string{
	"i'll send", "i will send", "follow up", "followup", "schedule",
	"get back to you", "send over", "set up a", "next week", "tomorrow",
	"circle back", "loop in",
}

var painPointMarkers = []string{
	"problem", "issue", "frustrat", "too expensive", "difficult",
	"not working", "doesn't work", "slow", "confusing", "struggle",
}

var (
	moneyPattern    = regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d+)?(?:\s?(?:k|thousand|million))?`)
	termPattern     = regexp.MustCompile(`(?i)\b(\d+)[\s-](?:month|year)s?\b`)
	seatsPattern    = regexp.MustCompile(`(?i)\b(\d+)\s(?:seats?|users?|licenses?|agents?)\b`)
	nonWordSplitter = regexp.MustCompile(`[^a-z']+`)
)

// Heuristic extracts a best-effort insight by keyword matching against fixed
// vocabularies. Precision is explicitly not the goal; a wrong topic tag costs
// a salesperson a glance, a missing record costs them the call.
func Heuristic(utterances []transcript.Utterance) *Insight {
	insight := &Insight{
		Summary:       compositeSummary(utterances),
		Sentiment:     scoreSentiment(utterances),
		ContractFacts: map[string]string{},
	}

	seenTopics := map[string]struct{}{}

	for _, utterance := range utterances {
		lower := strings.ToLower(utterance.Text)

		for _, token := range nonWordSplitter.Split(lower, -1) {
			if topic, ok := topicVocabulary[token]; ok {
				if _, seen := seenTopics[topic]; !seen {
					seenTopics[topic] = struct{}{}
					insight.KeyTopics = append(insight.KeyTopics, topic)
				}
			}
		}

		if utterance.Role == channelrole.RoleAgent && containsAny(lower, nextStepMarkers) {
			insight.NextSteps = append(insight.NextSteps, utterance.Text)
		}

		if utterance.Role == channelrole.RoleCustomer && containsAny(lower, painPointMarkers) {
			insight.PainPoints = append(insight.PainPoints, utterance.Text)
		}

		if amount := moneyPattern.FindString(utterance.Text); amount != "" {
			insight.ContractFacts["amount"] = amount
		}

		if term := termPattern.FindString(utterance.Text); term != "" {
			insight.ContractFacts["term"] = strings.ToLower(term)
		}

		if seats := seatsPattern.FindString(utterance.Text); seats != "" {
			insight.ContractFacts["seats"] = strings.ToLower(seats)
		}
	}

	return insight
}

// compositeSummary joins the opening and closing utterances, which in sales
// calls usually carry the intent and the agreed outcome.
func compositeSummary(utterances []transcript.Utterance) string {
	if len(utterances) == 0 {
		return ""
	}

	first := strings.TrimSpace(utterances[0].Text)
	if len(utterances) == 1 {
		return first
	}

	last := strings.TrimSpace(utterances[len(utterances)-1].Text)

	return first + " ... " + last
}

func scoreSentiment(utterances []transcript.Utterance) string {
	score := 0

	for _, utterance := range utterances {
		lower := strings.ToLower(utterance.Text)

		for _, token := range nonWordSplitter.Split(lower, -1) {
			if _, ok := positiveWords[token]; ok {
				score++
			}

			if _, ok := negativeWords[token]; ok {
				score--
			}
		}
	}

	switch {
	case score > 1:
		return SentimentPositive
	case score < -1:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

func containsAny(s string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(s, marker) {
			return true
		}
	}

	return false
}
