package callrecord

import (
	"time"

	"gorm.io/datatypes"
)

// CallRecord is the single merge-store document for a call. Every component
// upserts the subset of columns it owns; the row is only ever keyed by the
// provider call SID.
type CallRecord struct {
	CallSid           string  `gorm:"column:call_sid;type:varchar(64);primaryKey" json:"call_sid"`
	From              *string `gorm:"column:from_number"        json:"from"`
	To                *string `gorm:"column:to_number"          json:"to"`
	Direction         *string `gorm:"column:direction"          json:"direction"`
	Status            *string `gorm:"column:status"             json:"status"`
	DurationSeconds   *int    `gorm:"column:duration_seconds"   json:"duration_seconds"`
	BusinessPhone     *string `gorm:"column:business_phone"     json:"business_phone"`
	CounterpartyPhone *string `gorm:"column:counterparty_phone" json:"counterparty_phone"`

	RecordingSid             *string `gorm:"column:recording_sid"              json:"recording_sid"`
	RecordingURL             *string `gorm:"column:recording_url"              json:"recording_url"`
	RecordingChannels        *int    `gorm:"column:recording_channels"         json:"recording_channels"`
	RecordingDurationSeconds *int    `gorm:"column:recording_duration_seconds" json:"recording_duration_seconds"`
	RecordingArchiveURL      *string `gorm:"column:recording_archive_url"      json:"recording_archive_url"`

	TranscriptSid        *string        `gorm:"column:transcript_sid"        json:"transcript_sid"`
	TranscriptStatus     *string        `gorm:"column:transcript_status"     json:"transcript_status"`
	TranscriptProvenance *string        `gorm:"column:transcript_provenance" json:"transcript_provenance"`
	Utterances           datatypes.JSON `gorm:"column:utterances;type:jsonb" json:"utterances"`

	Summary           *string        `gorm:"column:summary"                   json:"summary"`
	Sentiment         *string        `gorm:"column:sentiment"                 json:"sentiment"`
	KeyTopics         datatypes.JSON `gorm:"column:key_topics;type:jsonb"     json:"key_topics"`
	NextSteps         datatypes.JSON `gorm:"column:next_steps;type:jsonb"     json:"next_steps"`
	PainPoints        datatypes.JSON `gorm:"column:pain_points;type:jsonb"    json:"pain_points"`
	ContractFacts     datatypes.JSON `gorm:"column:contract_facts;type:jsonb" json:"contract_facts"`
	InsightSource     *string        `gorm:"column:insight_source"            json:"insight_source"`
	OperatorSummary   *string        `gorm:"column:operator_summary"          json:"operator_summary"`
	OperatorSentiment *string        `gorm:"column:operator_sentiment"        json:"operator_sentiment"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (CallRecord) TableName() string {
	return "call_records"
}

const (
	CallStatusQueued     = "queued"
	CallStatusRinging    = "ringing"
	CallStatusInProgress = "in-progress"
	CallStatusCompleted  = "completed"
	CallStatusBusy       = "busy"
	CallStatusNoAnswer   = "no-answer"
	CallStatusFailed     = "failed"
	CallStatusCanceled   = "canceled"
)

// FinalCallStatuses are the statuses after which the call lifecycle fields
// stop mutating.
var FinalCallStatuses = []string{
	CallStatusCompleted,
	CallStatusBusy,
	CallStatusNoAnswer,
	CallStatusFailed,
	CallStatusCanceled,
}

// FinalCallStatus reports whether a status supersedes all further mutation
// of the call lifecycle fields.
func FinalCallStatus(status string) bool {
	switch status {
	case CallStatusCompleted, CallStatusBusy, CallStatusNoAnswer, CallStatusFailed, CallStatusCanceled:
		return true
	default:
		return false
	}
}

// Recording is the recording-SID → call-SID index row backing identity
// resolution; the audio itself stays with the provider (or the archive).
type Recording struct {
	RecordingSid    string     `gorm:"column:recording_sid;type:varchar(64);primaryKey" json:"recording_sid"`
	CallSid         string     `gorm:"column:call_sid;type:varchar(64);index;not null"  json:"call_sid"`
	Channels        int        `gorm:"column:channels"         json:"channels"`
	Source          string     `gorm:"column:source"           json:"source"`
	Status          string     `gorm:"column:status"           json:"status"`
	URL             string     `gorm:"column:url"              json:"url"`
	DurationSeconds int        `gorm:"column:duration_seconds" json:"duration_seconds"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       *time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Recording) TableName() string {
	return "recordings"
}

const (
	RecordingSourceDialVerb = "DialVerb"
	RecordingSourceRestAPI  = "StartCallRecordingAPI"
)

const (
	RecordingStatusInProgress = "in-progress"
	RecordingStatusCompleted  = "completed"
	RecordingStatusAbsent     = "absent"
	RecordingStatusStopped    = "stopped"
	RecordingStatusFailed     = "failed"
)

// Transcript tracks one intelligence-service transcript job. It doubles as
// the redrive queue: jobs that ran out of poll attempts sit at status
// "pending" until the worker re-enters them.
type Transcript struct {
	TranscriptSid   string     `gorm:"column:transcript_sid;type:varchar(64);primaryKey" json:"transcript_sid"`
	RecordingSid    string     `gorm:"column:recording_sid;type:varchar(64);index;not null" json:"recording_sid"`
	CallSid         string     `gorm:"column:call_sid;type:varchar(64);index;not null"      json:"call_sid"`
	Status          string     `gorm:"column:status"           json:"status"`
	Provenance      string     `gorm:"column:provenance"       json:"provenance"`
	AgentChannel    int        `gorm:"column:agent_channel"    json:"agent_channel"`
	CustomerChannel int        `gorm:"column:customer_channel" json:"customer_channel"`
	RedriveCount    int        `gorm:"column:redrive_count;default:0" json:"redrive_count"`
	LastPolledAt    *time.Time `gorm:"column:last_polled_at"   json:"last_polled_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       *time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Transcript) TableName() string {
	return "transcripts"
}

const (
	TranscriptStatusQueued     = "queued"
	TranscriptStatusInProgress = "in-progress"
	TranscriptStatusPending    = "pending"
	TranscriptStatusCompleted  = "completed"
	TranscriptStatusFailed     = "failed"
)
