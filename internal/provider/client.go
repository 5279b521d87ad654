package provider

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"git.brightsales.dev/crm/golang/callweaver/internal/circuitbreak"
	"git.brightsales.dev/crm/golang/callweaver/internal/config"
	"git.brightsales.dev/crm/golang/callweaver/internal/logging"
	"github.com/avast/retry-go"
	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

var (
	ErrProviderUnavailable = errors.New("provider server error")
	ErrProviderRequest     = errors.New("provider request failed")
	ErrResourceNotFound    = errors.New("provider resource not found")
)

// Client talks to the telephony provider REST API and its intelligence
// service. Both share account credentials, the retry policy and the circuit
// breaker; only the base URL differs.
type Client struct {
	CircuitBreaker *gobreaker.CircuitBreaker[[]byte]
}

func NewClient() *Client {
	cbSettings := gobreaker.Settings{
		Name:     "Provider",
		Interval: time.Duration(config.Conf.ProviderIntervalCB) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.Conf.ProviderConsecutiveFailuresCB
		},
		OnStateChange: func(name string, fromSate, toSate gobreaker.State) {
			logging.Logger.Info("Circuit state changed",
				zap.String("service", name),
				zap.String("from", fromSate.String()),
				zap.String("to", toSate.String()),
			)

			if toSate == gobreaker.StateOpen {
				circuitbreak.TriggerError(circuitbreak.ProviderService)
			}
		},
		IsSuccessful: func(err error) bool {
			return !errors.Is(err, ErrProviderUnavailable)
		},
	}

	return &Client{
		CircuitBreaker: gobreaker.NewCircuitBreaker[[]byte](cbSettings),
	}
}

// GetCall fetches the call resource for a call SID.
func (client *Client) GetCall(ctx context.Context, callSid string) (*Call, error) {
	apiUrl, err := url.JoinPath(config.Conf.ProviderBaseUrl, "Calls", callSid)
	if err != nil {
		return nil, err
	}

	body, statusCode, err := client.doRequestWithRetry(ctx, http.MethodGet, apiUrl, nil)
	if err != nil {
		return nil, err
	}

	if statusCode == http.StatusNotFound {
		return nil, ErrResourceNotFound
	}

	if statusCode != http.StatusOK {
		return nil, ErrProviderRequest
	}

	var call Call

	err = json.Unmarshal(body, &call)
	if err != nil {
		return nil, err
	}

	return &call, nil
}

// ListChildCalls fetches the child legs dialed out from a parent call.
func (client *Client) ListChildCalls(ctx context.Context, parentCallSid string) ([]Call, error) {
	apiUrl, err := url.JoinPath(config.Conf.ProviderBaseUrl, "Calls")
	if err != nil {
		return nil, err
	}

	apiUrl += "?ParentCallSid=" + url.QueryEscape(parentCallSid)

	body, statusCode, err := client.doRequestWithRetry(ctx, http.MethodGet, apiUrl, nil)
	if err != nil {
		return nil, err
	}

	if statusCode != http.StatusOK {
		return nil, ErrProviderRequest
	}

	var list CallList

	err = json.Unmarshal(body, &list)
	if err != nil {
		return nil, err
	}

	return list.Calls, nil
}

// ListRecordings returns every recording the provider holds for a call.
func (client *Client) ListRecordings(ctx context.Context, callSid string) ([]Recording, error) {
	apiUrl, err := url.JoinPath(config.Conf.ProviderBaseUrl, "Calls", callSid, "Recordings")
	if err != nil {
		return nil, err
	}

	body, statusCode, err := client.doRequestWithRetry(ctx, http.MethodGet, apiUrl, nil)
	if err != nil {
		return nil, err
	}

	if statusCode == http.StatusNotFound {
		return nil, ErrResourceNotFound
	}

	if statusCode != http.StatusOK {
		return nil, ErrProviderRequest
	}

	var list RecordingList

	err = json.Unmarshal(body, &list)
	if err != nil {
		return nil, err
	}

	return list.Recordings, nil
}

// CreateRecording starts a dual-channel recording on a live call. The status
// callback points back at our webhook ingress so completion re-enters the
// coordinator.
func (client *Client) CreateRecording(ctx context.Context, callSid string) (*Recording, error) {
	apiUrl, err := url.JoinPath(config.Conf.ProviderBaseUrl, "Calls", callSid, "Recordings")
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("RecordingChannels", "dual")
	form.Set("RecordingStatusCallback", config.Conf.RecordingStatusCallbackUrl)
	form.Set("RecordingStatusCallbackEvent", "completed")

	body, statusCode, err := client.doFormRequestWithRetry(ctx, apiUrl, form)
	if err != nil {
		return nil, err
	}

	logging.Logger.Info("Create recording response",
		zap.String("call_sid", callSid),
		zap.Int("status_code", statusCode),
		zap.ByteString("response_body", body),
	)

	if statusCode == http.StatusNotFound {
		return nil, ErrResourceNotFound
	}

	if statusCode != http.StatusOK && statusCode != http.StatusCreated {
		return nil, ErrProviderRequest
	}

	var recording Recording

	err = json.Unmarshal(body, &recording)
	if err != nil {
		return nil, err
	}

	return &recording, nil
}

// StopRecording stops an in-progress recording on a call.
func (client *Client) StopRecording(ctx context.Context, callSid, recordingSid string) error {
	apiUrl, err := url.JoinPath(config.Conf.ProviderBaseUrl, "Calls", callSid, "Recordings", recordingSid)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("Status", "stopped")

	_, statusCode, err := client.doFormRequestWithRetry(ctx, apiUrl, form)
	if err != nil {
		return err
	}

	if statusCode != http.StatusOK {
		return ErrProviderRequest
	}

	return nil
}

// DownloadRecordingMedia fetches the raw audio bytes for a recording.
func (client *Client) DownloadRecordingMedia(ctx context.Context, mediaURL string) (*bytes.Buffer, error) {
	body, statusCode, err := client.doRequestWithRetry(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, err
	}

	logging.Logger.Info("Recording media response",
		zap.String("media_url", mediaURL),
		zap.Int("status_code", statusCode),
		zap.Int("content_length", len(body)),
	)

	if statusCode == http.StatusNotFound {
		return nil, ErrResourceNotFound
	}

	if statusCode != http.StatusOK {
		return nil, ErrProviderRequest
	}

	return bytes.NewBuffer(body), nil
}

// ListTranscripts returns transcript jobs previously created for a recording.
func (client *Client) ListTranscripts(ctx context.Context, recordingSid string) ([]Transcript, error) {
	apiUrl, err := url.JoinPath(config.Conf.IntelligenceBaseUrl, "Transcripts")
	if err != nil {
		return nil, err
	}

	apiUrl += "?SourceSid=" + url.QueryEscape(recordingSid)

	body, statusCode, err := client.doRequestWithRetry(ctx, http.MethodGet, apiUrl, nil)
	if err != nil {
		return nil, err
	}

	if statusCode != http.StatusOK {
		return nil, ErrProviderRequest
	}

	var list TranscriptList

	err = json.Unmarshal(body, &list)
	if err != nil {
		return nil, err
	}

	return list.Transcripts, nil
}

// CreateTranscript submits a diarized transcript job for a recording. The
// call SID rides along as the customer key so downstream operator callbacks
// can be resolved without another lookup.
func (client *Client) CreateTranscript(
	ctx context.Context,
	recordingSid, callSid string,
	participants []Participant,
) (*Transcript, error) {
	apiUrl, err := url.JoinPath(config.Conf.IntelligenceBaseUrl, "Transcripts")
	if err != nil {
		return nil, err
	}

	reqBody, err := json.Marshal(map[string]any{
		"service_sid":  config.Conf.IntelligenceServiceSid,
		"source_sid":   recordingSid,
		"customer_key": callSid,
		"participants": participants,
	})
	if err != nil {
		return nil, err
	}

	body, statusCode, err := client.doRequestWithRetry(ctx, http.MethodPost, apiUrl, reqBody)
	if err != nil {
		return nil, err
	}

	logging.Logger.Info("Create transcript response",
		zap.String("recording_sid", recordingSid),
		zap.String("call_sid", callSid),
		zap.Int("status_code", statusCode),
		zap.ByteString("response_body", body),
	)

	if statusCode != http.StatusOK && statusCode != http.StatusCreated {
		return nil, ErrProviderRequest
	}

	var transcript Transcript

	err = json.Unmarshal(body, &transcript)
	if err != nil {
		return nil, err
	}

	return &transcript, nil
}

// GetTranscript fetches the current state of a transcript job.
func (client *Client) GetTranscript(ctx context.Context, transcriptSid string) (*Transcript, error) {
	apiUrl, err := url.JoinPath(config.Conf.IntelligenceBaseUrl, "Transcripts", transcriptSid)
	if err != nil {
		return nil, err
	}

	body, statusCode, err := client.doRequestWithRetry(ctx, http.MethodGet, apiUrl, nil)
	if err != nil {
		return nil, err
	}

	if statusCode == http.StatusNotFound {
		return nil, ErrResourceNotFound
	}

	if statusCode != http.StatusOK {
		return nil, ErrProviderRequest
	}

	var transcript Transcript

	err = json.Unmarshal(body, &transcript)
	if err != nil {
		return nil, err
	}

	return &transcript, nil
}

// DeleteTranscript discards a transcript job whose output is unusable.
func (client *Client) DeleteTranscript(ctx context.Context, transcriptSid string) error {
	apiUrl, err := url.JoinPath(config.Conf.IntelligenceBaseUrl, "Transcripts", transcriptSid)
	if err != nil {
		return err
	}

	_, statusCode, err := client.doRequestWithRetry(ctx, http.MethodDelete, apiUrl, nil)
	if err != nil {
		return err
	}

	if statusCode != http.StatusOK && statusCode != http.StatusNoContent && statusCode != http.StatusNotFound {
		return ErrProviderRequest
	}

	return nil
}

// ListSentences returns the sentence-level output of a completed transcript.
func (client *Client) ListSentences(ctx context.Context, transcriptSid string) ([]Sentence, error) {
	apiUrl, err := url.JoinPath(config.Conf.IntelligenceBaseUrl, "Transcripts", transcriptSid, "Sentences")
	if err != nil {
		return nil, err
	}

	body, statusCode, err := client.doRequestWithRetry(ctx, http.MethodGet, apiUrl, nil)
	if err != nil {
		return nil, err
	}

	if statusCode != http.StatusOK {
		return nil, ErrProviderRequest
	}

	var list SentenceList

	err = json.Unmarshal(body, &list)
	if err != nil {
		return nil, err
	}

	return list.Sentences, nil
}

// ListWords returns the word-level output of a completed transcript.
func (client *Client) ListWords(ctx context.Context, transcriptSid string) ([]Word, error) {
	apiUrl, err := url.JoinPath(config.Conf.IntelligenceBaseUrl, "Transcripts", transcriptSid, "Words")
	if err != nil {
		return nil, err
	}

	body, statusCode, err := client.doRequestWithRetry(ctx, http.MethodGet, apiUrl, nil)
	if err != nil {
		return nil, err
	}

	if statusCode != http.StatusOK {
		return nil, ErrProviderRequest
	}

	var list WordList

	err = json.Unmarshal(body, &list)
	if err != nil {
		return nil, err
	}

	return list.Words, nil
}

// GetOperatorResults returns analyzer artifacts for a completed transcript.
func (client *Client) GetOperatorResults(ctx context.Context, transcriptSid string) ([]OperatorResult, error) {
	apiUrl, err := url.JoinPath(config.Conf.IntelligenceBaseUrl, "Transcripts", transcriptSid, "OperatorResults")
	if err != nil {
		return nil, err
	}

	body, statusCode, err := client.doRequestWithRetry(ctx, http.MethodGet, apiUrl, nil)
	if err != nil {
		return nil, err
	}

	if statusCode != http.StatusOK {
		return nil, ErrProviderRequest
	}

	var list struct {
		OperatorResults []OperatorResult `json:"operator_results"`
	}

	err = json.Unmarshal(body, &list)
	if err != nil {
		return nil, err
	}

	return list.OperatorResults, nil
}

func (client *Client) doFormRequestWithRetry(
	ctx context.Context,
	apiUrl string,
	form url.Values,
) ([]byte, int, error) {
	return client.execute(ctx, func(reqCtx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(
			reqCtx,
			http.MethodPost,
			apiUrl,
			strings.NewReader(form.Encode()),
		)
		if err != nil {
			return nil, err
		}

		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		return req, nil
	})
}

func (client *Client) doRequestWithRetry(
	ctx context.Context,
	method, apiUrl string,
	reqBody []byte,
) ([]byte, int, error) {
	return client.execute(ctx, func(reqCtx context.Context) (*http.Request, error) {
		var reader io.Reader
		if reqBody != nil {
			reader = bytes.NewReader(reqBody)
		}

		req, err := http.NewRequestWithContext(reqCtx, method, apiUrl, reader)
		if err != nil {
			return nil, err
		}

		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json;charset=utf-8")
		}

		return req, nil
	})
}

func (client *Client) execute(
	ctx context.Context,
	build func(context.Context) (*http.Request, error),
) ([]byte, int, error) {
	var (
		body       []byte
		statusCode int
	)

	body, err := client.CircuitBreaker.Execute(func() ([]byte, error) {
		err := retry.Do(
			func() error {
				var err error

				body, statusCode, err = client.doRequest(ctx, build)

				return err
			},
			retry.Attempts(config.Conf.ProviderRetryMaxAttempts),
			retry.DelayType(retry.BackOffDelay),
			retry.Delay(time.Duration(config.Conf.ProviderRetryBackoffMin)*time.Second),
			retry.MaxDelay(time.Duration(config.Conf.ProviderRetryBackoffMax)*time.Second),
		)

		if statusCode >= http.StatusInternalServerError || (statusCode == 0 && err != nil) {
			return nil, ErrProviderUnavailable
		}

		if err != nil {
			return nil, err
		}

		return body, nil
	})
	if err != nil {
		return nil, statusCode, err
	}

	return body, statusCode, nil
}

func (client *Client) doRequest(
	ctx context.Context,
	build func(context.Context) (*http.Request, error),
) ([]byte, int, error) {
	req, err := build(ctx)
	if err != nil {
		return nil, 0, err
	}

	req.SetBasicAuth(config.Conf.ProviderAccountSid, config.Conf.ProviderAuthToken)

	httpClient := &http.Client{
		Timeout: time.Duration(config.Conf.ProviderTimeout) * time.Second,
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}

	defer func() {
		cerr := resp.Body.Close()
		if cerr != nil {
			logging.Logger.Error("Failed to close response body", zap.String("error", cerr.Error()))
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	return respBody, resp.StatusCode, nil
}
