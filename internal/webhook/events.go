package webhook

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

type EventKind string

const (
	EventCallStatus       EventKind = "call-status"
	EventDialStatus       EventKind = "dial-status"
	EventRecordingStatus  EventKind = "recording-status"
	EventTranscriptStatus EventKind = "transcript-status"
	EventOperatorResult   EventKind = "operator-result"
)

// Event is the normalized form of an inbound provider callback. The provider
// posts telephony callbacks as form data and intelligence callbacks as JSON;
// both are flattened here so the orchestrator never touches the raw request.
type Event struct {
	Kind EventKind

	CallSid       string
	ParentCallSid string
	From          string
	To            string
	Direction     string
	CallStatus    string
	Duration      int

	DialCallSid    string
	DialCallStatus string

	RecordingSid      string
	RecordingStatus   string
	RecordingURL      string
	RecordingChannels int
	RecordingDuration int
	RecordingSource   string

	TranscriptSid    string
	TranscriptStatus string
	CustomerKey      string

	OperatorPayload json.RawMessage
}

// ParseFormEvent flattens a form-encoded telephony callback.
func ParseFormEvent(r *http.Request, kind EventKind) (*Event, error) {
	err := r.ParseForm()
	if err != nil {
		return nil, err
	}

	form := r.PostForm

	event := &Event{
		Kind:          kind,
		CallSid:       form.Get("CallSid"),
		ParentCallSid: form.Get("ParentCallSid"),
		From:          form.Get("From"),
		To:            form.Get("To"),
		Direction:     form.Get("Direction"),
		CallStatus:    form.Get("CallStatus"),
		Duration:      atoi(form.Get("CallDuration")),

		DialCallSid:    form.Get("DialCallSid"),
		DialCallStatus: form.Get("DialCallStatus"),

		RecordingSid:      form.Get("RecordingSid"),
		RecordingStatus:   form.Get("RecordingStatus"),
		RecordingURL:      form.Get("RecordingUrl"),
		RecordingChannels: atoi(form.Get("RecordingChannels")),
		RecordingDuration: atoi(form.Get("RecordingDuration")),
		RecordingSource:   form.Get("RecordingSource"),

		TranscriptSid:    form.Get("TranscriptSid"),
		TranscriptStatus: form.Get("Status"),
		CustomerKey:      form.Get("CustomerKey"),
	}

	return event, nil
}

type jsonCallback struct {
	TranscriptSid string `json:"transcript_sid"`
	Status        string `json:"status"`
	CustomerKey   string `json:"customer_key"`
	SourceSid     string `json:"source_sid"`
}

// ParseJSONEvent flattens a JSON-encoded intelligence callback. The full raw
// body is kept on operator results, whose payload shape is analyzer-defined.
func ParseJSONEvent(r *http.Request, kind EventKind) (*Event, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}

	// Transcript callbacks occasionally arrive form-encoded as well.
	if !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		r.Body = io.NopCloser(strings.NewReader(string(body)))
		return ParseFormEvent(r, kind)
	}

	var callback jsonCallback

	err = json.Unmarshal(body, &callback)
	if err != nil {
		return nil, err
	}

	event := &Event{
		Kind:             kind,
		TranscriptSid:    callback.TranscriptSid,
		TranscriptStatus: callback.Status,
		CustomerKey:      callback.CustomerKey,
		RecordingSid:     callback.SourceSid,
	}

	if kind == EventOperatorResult {
		event.OperatorPayload = json.RawMessage(body)
	}

	return event, nil
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}

	return n
}
