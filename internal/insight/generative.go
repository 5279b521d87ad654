package insight

import (
	"context"
	"errors"
	"strings"
	"time"

	"git.brightsales.dev/crm/golang/callweaver/internal/circuitbreak"
	"git.brightsales.dev/crm/golang/callweaver/internal/config"
	"git.brightsales.dev/crm/golang/callweaver/internal/logging"
	"git.brightsales.dev/crm/golang/callweaver/internal/transcript"
	"github.com/avast/retry-go"
	"github.com/goccy/go-json"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var ErrEmptyCompletion = errors.New("model returned no choices")

const synthesisSystemPrompt = `You analyze sales call transcripts. ` +
	`Reply with a single JSON object with keys: summary (string, two sentences max), ` +
	`sentiment (one of "positive", "neutral", "negative"), key_topics (array of short strings), ` +
	`next_steps (array of strings), pain_points (array of strings), ` +
	`contract_facts (object mapping fact name to value). No prose outside the JSON.`

// GenerativeClient asks a chat model for the structured insight. It shares
// the flat-transcription credentials and circuit breaker policy.
type GenerativeClient struct {
	Client         *openai.Client
	CircuitBreaker *gobreaker.CircuitBreaker[[]byte]
}

func NewGenerativeClient() *GenerativeClient {
	opts := []option.RequestOption{
		option.WithAPIKey(config.Conf.OpenAIAPIKey),
		option.WithRequestTimeout(time.Duration(config.Conf.OpenAITimeout) * time.Second),
	}

	if config.Conf.OpenAIBaseUrl != "" {
		opts = append(opts, option.WithBaseURL(config.Conf.OpenAIBaseUrl))
	}

	client := openai.NewClient(opts...)

	settings := gobreaker.Settings{
		Name:     "InsightGenerative",
		Interval: time.Duration(config.Conf.OpenAIIntervalCB) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.Conf.OpenAIConsecutiveFailsCB
		},
		OnStateChange: func(name string, fromState, toState gobreaker.State) {
			logging.Logger.Info("Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromState.String()),
				zap.String("to", toState.String()),
			)

			if toState == gobreaker.StateOpen {
				circuitbreak.TriggerError(circuitbreak.OpenAIService)
			}
		},
	}

	return &GenerativeClient{
		Client:         &client,
		CircuitBreaker: gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

// Synthesize sends the transcript to the model and parses its JSON reply.
func (generative *GenerativeClient) Synthesize(
	ctx context.Context,
	utterances []transcript.Utterance,
) (*Insight, error) {
	prompt := renderTranscript(utterances)

	raw, err := generative.CircuitBreaker.Execute(func() ([]byte, error) {
		return generative.doCompletionRequest(ctx, prompt)
	})
	if err != nil {
		return nil, err
	}

	var insight Insight

	err = json.Unmarshal(raw, &insight)
	if err != nil {
		return nil, err
	}

	if insight.ContractFacts == nil {
		insight.ContractFacts = map[string]string{}
	}

	return &insight, nil
}

func (generative *GenerativeClient) doCompletionRequest(ctx context.Context, prompt string) ([]byte, error) {
	var raw []byte

	err := retry.Do(
		func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			resp, err := generative.Client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
				Model: openai.ChatModel(config.Conf.OpenAIModel),
				Messages: []openai.ChatCompletionMessageParamUnion{
					openai.SystemMessage(synthesisSystemPrompt),
					openai.UserMessage(prompt),
				},
			})
			if err != nil {
				return err
			}

			if len(resp.Choices) == 0 {
				return ErrEmptyCompletion
			}

			raw = []byte(stripCodeFence(resp.Choices[0].Message.Content))

			return nil
		},
		retry.Attempts(config.Conf.OpenAIRetryMaxAttempts),
		retry.DelayType(retry.BackOffDelay),
		retry.Delay(time.Duration(config.Conf.OpenAIRetryBackoffMin)*time.Second),
		retry.MaxDelay(time.Duration(config.Conf.OpenAIRetryBackoffMax)*time.Second),
	)
	if err != nil {
		return nil, err
	}

	return raw, nil
}

func renderTranscript(utterances []transcript.Utterance) string {
	var b strings.Builder

	for _, utterance := range utterances {
		b.WriteString(utterance.Role)
		b.WriteString(": ")
		b.WriteString(utterance.Text)
		b.WriteString("\n")
	}

	return b.String()
}

// stripCodeFence tolerates models that wrap the JSON in a markdown fence.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}

	return strings.TrimSpace(s)
}
