package webhook

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type capturingHandler struct {
	events    []*Event
	triggered []string
	err       error
}

func (h *capturingHandler) record(event *Event) error {
	h.events = append(h.events, event)
	return h.err
}

func (h *capturingHandler) HandleCallStatus(_ context.Context, e *Event) error { return h.record(e) }
func (h *capturingHandler) HandleDialStatus(_ context.Context, e *Event) error { return h.record(e) }
func (h *capturingHandler) HandleRecordingStatus(_ context.Context, e *Event) error {
	return h.record(e)
}
func (h *capturingHandler) HandleTranscriptStatus(_ context.Context, e *Event) error {
	return h.record(e)
}
func (h *capturingHandler) HandleOperatorResult(_ context.Context, e *Event) error {
	return h.record(e)
}
func (h *capturingHandler) TriggerTranscript(callSid string) {
	h.triggered = append(h.triggered, callSid)
}

func postForm(t *testing.T, router http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	return recorder
}

func testCallSid() string {
	return "CA" + strings.Repeat("a", 32)
}

func TestCallStatusEndpointNormalizesForm(t *testing.T) {
	handler := &capturingHandler{}
	router := NewServer(handler).routes()

	form := url.Values{}
	form.Set("CallSid", testCallSid())
	form.Set("CallStatus", "in-progress")
	form.Set("From", "client:agent_9")
	form.Set("To", "+15551234567")
	form.Set("Direction", "outbound-api")
	form.Set("CallDuration", "0")

	recorder := postForm(t, router, "/webhooks/voice/status", form)

	require.Equal(t, http.StatusNoContent, recorder.Code)
	require.Len(t, handler.events, 1)

	event := handler.events[0]
	require.Equal(t, EventCallStatus, event.Kind)
	require.Equal(t, testCallSid(), event.CallSid)
	require.Equal(t, "in-progress", event.CallStatus)
	require.Equal(t, "client:agent_9", event.From)
}

func TestRecordingStatusEndpointParsesNumericFields(t *testing.T) {
	handler := &capturingHandler{}
	router := NewServer(handler).routes()

	form := url.Values{}
	form.Set("CallSid", testCallSid())
	form.Set("RecordingSid", "RE"+strings.Repeat("b", 32))
	form.Set("RecordingStatus", "completed")
	form.Set("RecordingChannels", "2")
	form.Set("RecordingDuration", "187")
	form.Set("RecordingSource", "StartCallRecordingAPI")
	form.Set("RecordingUrl", "https://api.example.com/rec.wav")

	recorder := postForm(t, router, "/webhooks/voice/recording", form)

	require.Equal(t, http.StatusNoContent, recorder.Code)
	require.Len(t, handler.events, 1)

	event := handler.events[0]
	require.Equal(t, 2, event.RecordingChannels)
	require.Equal(t, 187, event.RecordingDuration)
	require.Equal(t, "StartCallRecordingAPI", event.RecordingSource)
}

func TestTranscriptEndpointAcceptsJSON(t *testing.T) {
	handler := &capturingHandler{}
	router := NewServer(handler).routes()

	body := `{"transcript_sid":"GT` + strings.Repeat("c", 32) + `","status":"completed","customer_key":"` + testCallSid() + `"}`

	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/transcript", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusNoContent, recorder.Code)
	require.Len(t, handler.events, 1)

	event := handler.events[0]
	require.Equal(t, EventTranscriptStatus, event.Kind)
	require.Equal(t, "completed", event.TranscriptStatus)
	require.Equal(t, testCallSid(), event.CustomerKey)
}

func TestOperatorEndpointKeepsRawPayload(t *testing.T) {
	handler := &capturingHandler{}
	router := NewServer(handler).routes()

	body := `{"customer_key":"` + testCallSid() + `","operator_results":[{"operator_type":"text-classification","predicted_label":"positive"}]}`

	req := httptest.NewRequest(http.MethodPost, "/webhooks/voice/operator", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusNoContent, recorder.Code)
	require.Len(t, handler.events, 1)
	require.NotEmpty(t, handler.events[0].OperatorPayload)
}

func TestHandlerErrorStillAcknowledged(t *testing.T) {
	handler := &capturingHandler{err: errors.New("db down")}
	router := NewServer(handler).routes()

	form := url.Values{}
	form.Set("CallSid", testCallSid())
	form.Set("CallStatus", "completed")

	recorder := postForm(t, router, "/webhooks/voice/status", form)

	// The provider retries failed webhooks, which duplicates side effects.
	require.Equal(t, http.StatusNoContent, recorder.Code)
}

func TestTriggerTranscriptValidatesCallSid(t *testing.T) {
	handler := &capturingHandler{}
	router := NewServer(handler).routes()

	recorder := postForm(t, router, "/calls/"+testCallSid()+"/transcript", url.Values{})
	require.Equal(t, http.StatusAccepted, recorder.Code)
	require.Equal(t, []string{testCallSid()}, handler.triggered)

	recorder = postForm(t, router, "/calls/not-a-sid/transcript", url.Values{})
	require.Equal(t, http.StatusNotFound, recorder.Code)
	require.Len(t, handler.triggered, 1)
}
