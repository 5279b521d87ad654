package identity

import (
	"context"
	"errors"
	"regexp"

	"git.brightsales.dev/crm/golang/callweaver/internal/callrecord"
	"git.brightsales.dev/crm/golang/callweaver/internal/logging"
	"go.uber.org/zap"
)

var (
	ErrNoCallIdentity      = errors.New("event carries no resolvable call identity")
	ErrUnknownRecordingSid = errors.New("recording sid is not indexed to any call")
)

var callSidPattern = regexp.MustCompile(`^CA[0-9a-f]{32}$`)

// ValidCallSid reports whether s is a canonical provider call SID. Records
// are only ever keyed by these; synthetic fallback keys are rejected so a
// late-arriving real SID never leaves an orphan row behind.
func ValidCallSid(s string) bool {
	return callSidPattern.MatchString(s)
}

// Resolver maps webhook payloads onto the canonical call SID. Direct call
// SIDs win; recording SIDs resolve through the recording index; transcript
// callbacks resolve through the customer key echoed by the intelligence
// service.
type Resolver struct {
	Repository *callrecord.Repository
}

func NewResolver(repository *callrecord.Repository) *Resolver {
	return &Resolver{Repository: repository}
}

// Resolve returns the canonical call SID for an event, given whichever
// identifiers the payload carried. Resolution order: direct call SID, then
// the recording index, then the transcript job (which points at its source
// recording), then the customer key.
func (resolver *Resolver) Resolve(
	ctx context.Context,
	callSid, recordingSid, transcriptSid, customerKey string,
) (string, error) {
	if ValidCallSid(callSid) {
		return callSid, nil
	}

	if recordingSid != "" {
		resolved, err := resolver.resolveByRecording(ctx, recordingSid)
		if err == nil {
			return resolved, nil
		}
	}

	if transcriptSid != "" {
		job, err := resolver.Repository.GetTranscript(ctx, transcriptSid)
		if err != nil {
			logging.Logger.Warn("transcript sid lookup failed",
				zap.String("transcript_sid", transcriptSid),
				zap.String("error", err.Error()),
			)
		} else {
			if ValidCallSid(job.CallSid) {
				return job.CallSid, nil
			}

			resolved, err := resolver.resolveByRecording(ctx, job.RecordingSid)
			if err == nil {
				return resolved, nil
			}
		}
	}

	if ValidCallSid(customerKey) {
		return customerKey, nil
	}

	return "", ErrNoCallIdentity
}

func (resolver *Resolver) resolveByRecording(ctx context.Context, recordingSid string) (string, error) {
	recording, err := resolver.Repository.GetRecording(ctx, recordingSid)
	if err != nil {
		logging.Logger.Warn("recording sid lookup failed",
			zap.String("recording_sid", recordingSid),
			zap.String("error", err.Error()),
		)

		return "", ErrUnknownRecordingSid
	}

	if !ValidCallSid(recording.CallSid) {
		return "", ErrUnknownRecordingSid
	}

	return recording.CallSid, nil
}
