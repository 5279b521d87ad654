package insight

import (
	"context"
	"time"

	"git.brightsales.dev/crm/golang/callweaver/internal/config"
	"git.brightsales.dev/crm/golang/callweaver/internal/logging"
	"git.brightsales.dev/crm/golang/callweaver/internal/prometheus"
	"git.brightsales.dev/crm/golang/callweaver/internal/transcript"
	"go.uber.org/zap"
)

// Insight is the structured, best-effort signal extracted from a transcript.
// It is derived data: regenerated wholesale whenever a richer transcript
// shows up, never merged with an older one.
type Insight struct {
	Summary       string            `json:"summary"`
	Sentiment     string            `json:"sentiment"`
	KeyTopics     []string          `json:"key_topics"`
	NextSteps     []string          `json:"next_steps"`
	PainPoints    []string          `json:"pain_points"`
	ContractFacts map[string]string `json:"contract_facts"`
	Source        string            `json:"source"`
}

const (
	SourceHeuristic  = "heuristic"
	SourceGenerative = "generative"
	SourceOperator   = "operator"
)

const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// Synthesizer turns an utterance sequence into an Insight. The generative
// strategy is used when an API key is configured; any failure there silently
// downgrades to the keyword heuristic, never to an error.
type Synthesizer struct {
	Generative *GenerativeClient
}

func NewSynthesizer() *Synthesizer {
	var generative *GenerativeClient
	if config.Conf.OpenAIAPIKey != "" {
		generative = NewGenerativeClient()
	}

	return &Synthesizer{Generative: generative}
}

// Synthesize produces the insight for a call. An operator-supplied summary,
// when present, outranks anything we compute ourselves.
func (synthesizer *Synthesizer) Synthesize(
	ctx context.Context,
	callSid string,
	utterances []transcript.Utterance,
	operatorSummary string,
) *Insight {
	start := time.Now()

	insight, strategy := synthesizer.synthesize(ctx, callSid, utterances)

	if operatorSummary != "" {
		insight.Summary = operatorSummary
		insight.Source = SourceOperator
	}

	prometheus.InsightSynthesisDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())

	return insight
}

func (synthesizer *Synthesizer) synthesize(
	ctx context.Context,
	callSid string,
	utterances []transcript.Utterance,
) (*Insight, string) {
	if synthesizer.Generative != nil {
		insight, err := synthesizer.Generative.Synthesize(ctx, utterances)
		if err == nil {
			insight.Source = SourceGenerative
			return insight, SourceGenerative
		}

		logging.Logger.Warn("generative synthesis failed, falling back to heuristic",
			zap.String("call_sid", callSid),
			zap.String("error", err.Error()),
		)
	}

	insight := Heuristic(utterances)
	insight.Source = SourceHeuristic

	return insight, SourceHeuristic
}
