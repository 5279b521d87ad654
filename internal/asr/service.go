package asr

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"time"

	"git.brightsales.dev/crm/golang/callweaver/internal/circuitbreak"
	"git.brightsales.dev/crm/golang/callweaver/internal/config"
	"git.brightsales.dev/crm/golang/callweaver/internal/logging"
	"github.com/avast/retry-go"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Client is the flat transcription fallback. It runs the mixed-down call
// audio through an OpenAI-compatible transcription endpoint when the
// intelligence service cannot produce a diarized transcript.
type Client struct {
	Client         *openai.Client
	CircuitBreaker *gobreaker.CircuitBreaker[[]byte]
}

func NewClient() *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(config.Conf.OpenAIAPIKey),
		option.WithRequestTimeout(time.Duration(config.Conf.OpenAITimeout) * time.Second),
	}

	if config.Conf.OpenAIBaseUrl != "" {
		opts = append(opts, option.WithBaseURL(config.Conf.OpenAIBaseUrl))
	}

	client := openai.NewClient(opts...)

	return &Client{
		Client:         &client,
		CircuitBreaker: newCircuitBreaker(),
	}
}

func newCircuitBreaker() *gobreaker.CircuitBreaker[[]byte] {
	settings := gobreaker.Settings{
		Name:     "ASRClient",
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

	return gobreaker.NewCircuitBreaker[[]byte](settings)
}

// Transcribe converts the raw call audio into plain text.
func (asrClient *Client) Transcribe(ctx context.Context, buffer *bytes.Buffer, callSid string) (string, error) {
	logging.Logger.Info("Starting flat transcription",
		zap.String("call_sid", callSid),
		zap.Int("buffer_size", buffer.Len()),
	)

	result, err := asrClient.CircuitBreaker.Execute(func() ([]byte, error) {
		return asrClient.doTranscriptionRequest(ctx, buffer, callSid)
	})
	if err != nil {
		return "", err
	}

	return string(result), nil
}

func (asrClient *Client) doTranscriptionRequest(
	ctx context.Context,
	buffer *bytes.Buffer,
	callSid string,
) ([]byte, error) {
	var resultBytes []byte

	if ctx.Err() != nil {
		logging.Logger.Warn("[doTranscriptionRequest] Context already canceled before starting request",
			zap.String("call_sid", callSid),
			zap.Error(ctx.Err()),
		)

		return nil, ctx.Err()
	}

	err := retry.Do(
		func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			body, contentType, err := createTranscriptionBody(buffer)
			if err != nil {
				return err
			}

			opts := []option.RequestOption{
				option.WithHeader("x-request-id", callSid),
				option.WithRequestBody(contentType, body),
			}

			resp, err := asrClient.Client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{}, opts...)
			if err != nil {
				logging.Logger.Error("Transcription request failed",
					zap.String("call_sid", callSid),
					zap.String("error", err.Error()),
				)

				return err
			}

			resultBytes = []byte(resp.Text)

			logging.Logger.Info("Flat transcription completed",
				zap.String("call_sid", callSid),
				zap.Int("text_length", len(resultBytes)),
			)

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

	return resultBytes, nil
}

func createTranscriptionBody(buffer *bytes.Buffer) ([]byte, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", err
	}

	_, err = io.Copy(part, bytes.NewReader(buffer.Bytes()))
	if err != nil {
		return nil, "", err
	}

	err = writer.WriteField("model", config.Conf.ASRModel)
	if err != nil {
		return nil, "", err
	}

	contentType := writer.FormDataContentType()
	_ = writer.Close()

	return body.Bytes(), contentType, nil
}
