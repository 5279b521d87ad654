package provider

// Payload shapes for the telephony REST API and the intelligence service.
// Both echo SID-keyed resources; the intelligence service additionally echoes
// the customer key we attach at job creation unchanged.

type Call struct {
	Sid           string `json:"sid"`
	ParentCallSid string `json:"parent_call_sid"`
	From          string `json:"from"`
	To            string `json:"to"`
	Direction     string `json:"direction"`
	Status        string `json:"status"`
	Duration      string `json:"duration"`
}

type CallList struct {
	Calls []Call `json:"calls"`
}

type Recording struct {
	Sid             string `json:"sid"`
	CallSid         string `json:"call_sid"`
	Channels        int    `json:"channels"`
	Source          string `json:"source"`
	Status          string `json:"status"`
	DurationSeconds int    `json:"duration"`
	MediaURL        string `json:"media_url"`
}

type RecordingList struct {
	Recordings []Recording `json:"recordings"`
}

type Transcript struct {
	Sid         string `json:"sid"`
	Status      string `json:"status"`
	SourceSid   string `json:"source_sid"`
	CustomerKey string `json:"customer_key"`
}

type TranscriptList struct {
	Transcripts []Transcript `json:"transcripts"`
}

const (
	TranscriptStatusQueued     = "queued"
	TranscriptStatusInProgress = "in-progress"
	TranscriptStatusCompleted  = "completed"
	TranscriptStatusFailed     = "failed"
)

// Participant maps a media channel to a conversational role when creating a
// transcript job; without it the service may skip diarization entirely.
type Participant struct {
	ChannelParticipant int    `json:"channel_participant"`
	Role               string `json:"role"`
	MediaParticipantID string `json:"media_participant_id,omitempty"`
}

// Sentence is one diarized sentence-level unit. MediaChannel is zero when the
// service failed to attribute the sentence to a channel.
type Sentence struct {
	Text         string  `json:"transcript"`
	MediaChannel int     `json:"media_channel"`
	StartTime    float64 `json:"start_time"`
	EndTime      float64 `json:"end_time"`
	Confidence   float64 `json:"confidence"`
}

type SentenceList struct {
	Sentences []Sentence `json:"sentences"`
}

// Word is one word-level unit, used to reconstruct utterances when sentences
// arrive without speaker attribution.
type Word struct {
	Text         string  `json:"word"`
	MediaChannel int     `json:"media_channel"`
	StartTime    float64 `json:"start_time"`
	EndTime      float64 `json:"end_time"`
}

type WordList struct {
	Words []Word `json:"words"`
}

// OperatorResult is one analyzer artifact attached to a completed transcript.
type OperatorResult struct {
	Name              string         `json:"name"`
	OperatorType      string         `json:"operator_type"`
	TextGenerationRes map[string]any `json:"text_generation_results"`
	PredictedLabel    string         `json:"predicted_label"`
}
