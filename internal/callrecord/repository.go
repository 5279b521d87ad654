package callrecord

import (
	"context"
	"errors"
	"time"

	"git.brightsales.dev/crm/golang/callweaver/internal/config"
	"git.brightsales.dev/crm/golang/callweaver/internal/database"
	"git.brightsales.dev/crm/golang/callweaver/internal/logging"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrInvalidCallRecordResult = errors.New("invalid result type, it should be pointer to CallRecord struct")
	ErrInvalidRecordingResult  = errors.New("invalid result type, it should be pointer to Recording struct")
	ErrInvalidTranscriptResult = errors.New("invalid result type, it should be pointer to Transcript struct")
	ErrInvalidTranscriptSlice  = errors.New("invalid result type, it should be slice of Transcript")
	ErrInvalidStatusResult     = errors.New("invalid result type, it should be bool")
)

type Repository struct {
	DBConn         *gorm.DB
	CircuitBreaker *gobreaker.CircuitBreaker[any]
}

func NewRepository(dbConn *gorm.DB) *Repository {
	cbSettings := database.GetCircuitBreakerSettings()

	return &Repository{
		DBConn:         dbConn,
		CircuitBreaker: gobreaker.NewCircuitBreaker[any](cbSettings),
	}
}

// Upsert merges partial fields into the call record keyed by callSid.
// Merge is field-by-field, last-writer-wins per field; absent (nil) values
// never clobber present ones, which is what makes concurrent and duplicate
// upserts from independent webhook handlers converge.
func (repo *Repository) Upsert(ctx context.Context, callSid string, updates map[string]any) error {
	pruned := PruneAbsent(updates)

	_, err := repo.CircuitBreaker.Execute(func() (any, error) {
		if ctx.Err() != nil {
			logging.Logger.Warn("[Upsert] Context canceled before DB operation",
				zap.String("call_sid", callSid),
				zap.Error(ctx.Err()),
			)

			return nil, ctx.Err()
		}

		record := CallRecord{CallSid: callSid}

		err := repo.DBConn.WithContext(ctx).
			Where("call_sid = ?", callSid).
			FirstOrCreate(&record).Error
		if err != nil {
			logging.Logger.Error("[Upsert] Failed to ensure call record",
				zap.String("call_sid", callSid),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		if len(pruned) == 0 {
			return &record, nil
		}

		err = repo.DBConn.WithContext(ctx).
			Model(&CallRecord{}).
			Where("call_sid = ?", callSid).
			Updates(pruned).Error
		if err != nil {
			logging.Logger.Error("[Upsert] Failed to merge call record fields",
				zap.String("call_sid", callSid),
				zap.Any("updates", pruned),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return &record, nil
	})

	return err
}

// SetStatusIfNotFinal merges a non-final lifecycle status, refusing to touch
// a record that already reached a final status. The condition lives in the
// UPDATE itself so a redelivered early status racing a concurrent final write
// cannot land last. Reports whether the status was written.
func (repo *Repository) SetStatusIfNotFinal(ctx context.Context, callSid, status string) (bool, error) {
	result, err := repo.CircuitBreaker.Execute(func() (any, error) {
		record := CallRecord{CallSid: callSid}

		err := repo.DBConn.WithContext(ctx).
			Where("call_sid = ?", callSid).
			FirstOrCreate(&record).Error
		if err != nil {
			logging.Logger.Error("[SetStatusIfNotFinal] Failed to ensure call record",
				zap.String("call_sid", callSid),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		res := repo.DBConn.WithContext(ctx).
			Model(&CallRecord{}).
			Where("call_sid = ? AND (status IS NULL OR status NOT IN ?)", callSid, FinalCallStatuses).
			Update("status", status)
		if res.Error != nil {
			logging.Logger.Error("[SetStatusIfNotFinal] Failed to merge status",
				zap.String("call_sid", callSid),
				zap.String("status", status),
				zap.String("error", res.Error.Error()),
			)

			return nil, res.Error
		}

		return res.RowsAffected > 0, nil
	})
	if err != nil {
		return false, err
	}

	updated, ok := result.(bool)
	if !ok {
		return false, ErrInvalidStatusResult
	}

	return updated, nil
}

// GetCallRecord retrieves a call record by its callSid.
func (repo *Repository) GetCallRecord(ctx context.Context, callSid string) (*CallRecord, error) {
	result, err := repo.CircuitBreaker.Execute(func() (any, error) {
		var record CallRecord

		err := repo.DBConn.WithContext(ctx).
			Where("call_sid = ?", callSid).
			First(&record).Error
		if err != nil {
			return nil, err
		}

		return &record, nil
	})
	if err != nil {
		return nil, err
	}

	record, ok := result.(*CallRecord)
	if !ok {
		return nil, ErrInvalidCallRecordResult
	}

	return record, nil
}

// SaveRecording upserts the recording index row keyed by recordingSid.
func (repo *Repository) SaveRecording(ctx context.Context, recording *Recording) error {
	_, err := repo.CircuitBreaker.Execute(func() (any, error) {
		err := repo.DBConn.WithContext(ctx).
			Where("recording_sid = ?", recording.RecordingSid).
			Assign(map[string]any{
				"call_sid":         recording.CallSid,
				"channels":         recording.Channels,
				"source":           recording.Source,
				"status":           recording.Status,
				"url":              recording.URL,
				"duration_seconds": recording.DurationSeconds,
			}).
			FirstOrCreate(recording).Error
		if err != nil {
			logging.Logger.Error("failed to save recording index row",
				zap.String("recording_sid", recording.RecordingSid),
				zap.String("call_sid", recording.CallSid),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return recording, nil
	})

	return err
}

// GetRecording retrieves a recording index row by its recordingSid.
func (repo *Repository) GetRecording(ctx context.Context, recordingSid string) (*Recording, error) {
	result, err := repo.CircuitBreaker.Execute(func() (any, error) {
		var recording Recording

		err := repo.DBConn.WithContext(ctx).
			Where("recording_sid = ?", recordingSid).
			First(&recording).Error
		if err != nil {
			return nil, err
		}

		return &recording, nil
	})
	if err != nil {
		return nil, err
	}

	recording, ok := result.(*Recording)
	if !ok {
		return nil, ErrInvalidRecordingResult
	}

	return recording, nil
}

// SaveTranscript upserts the transcript job row keyed by transcriptSid.
func (repo *Repository) SaveTranscript(ctx context.Context, transcript *Transcript) error {
	_, err := repo.CircuitBreaker.Execute(func() (any, error) {
		err := repo.DBConn.WithContext(ctx).
			Where("transcript_sid = ?", transcript.TranscriptSid).
			Assign(map[string]any{
				"recording_sid":    transcript.RecordingSid,
				"call_sid":         transcript.CallSid,
				"status":           transcript.Status,
				"provenance":       transcript.Provenance,
				"agent_channel":    transcript.AgentChannel,
				"customer_channel": transcript.CustomerChannel,
				"last_polled_at":   transcript.LastPolledAt,
			}).
			FirstOrCreate(transcript).Error
		if err != nil {
			logging.Logger.Error("failed to save transcript job row",
				zap.String("transcript_sid", transcript.TranscriptSid),
				zap.String("call_sid", transcript.CallSid),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return transcript, nil
	})

	return err
}

// GetTranscript retrieves a transcript job row by its transcriptSid.
func (repo *Repository) GetTranscript(ctx context.Context, transcriptSid string) (*Transcript, error) {
	result, err := repo.CircuitBreaker.Execute(func() (any, error) {
		var transcript Transcript

		err := repo.DBConn.WithContext(ctx).
			Where("transcript_sid = ?", transcriptSid).
			First(&transcript).Error
		if err != nil {
			return nil, err
		}

		return &transcript, nil
	})
	if err != nil {
		return nil, err
	}

	transcript, ok := result.(*Transcript)
	if !ok {
		return nil, ErrInvalidTranscriptResult
	}

	return transcript, nil
}

// DeleteTranscript removes a discarded transcript job row (the pipeline
// recreates jobs whose first attempt lacked diarization).
func (repo *Repository) DeleteTranscript(ctx context.Context, transcriptSid string) error {
	_, err := repo.CircuitBreaker.Execute(func() (any, error) {
		err := repo.DBConn.WithContext(ctx).
			Where("transcript_sid = ?", transcriptSid).
			Delete(&Transcript{}).Error

		return nil, err
	})

	return err
}

// GetPendingTranscripts returns transcript jobs waiting for a redrive pass,
// oldest first, bounded by the configured limit and redrive ceiling.
func (repo *Repository) GetPendingTranscripts(ctx context.Context) ([]Transcript, error) {
	result, err := repo.CircuitBreaker.Execute(func() (any, error) {
		var transcripts []Transcript

		err := repo.DBConn.WithContext(ctx).
			Where(
				"status = ? AND redrive_count < ?",
				TranscriptStatusPending,
				config.Conf.TranscriptRedriveMaxRuns,
			).
			Order("created_at ASC").
			Limit(config.Conf.TranscriptRedriveLimit).
			Find(&transcripts).Error
		if err != nil {
			logging.Logger.Info("failed to fetch pending transcripts", zap.String("error", err.Error()))
			return nil, err
		}

		return transcripts, nil
	})
	if err != nil {
		return nil, err
	}

	transcripts, ok := result.([]Transcript)
	if !ok {
		return nil, ErrInvalidTranscriptSlice
	}

	return transcripts, nil
}

// IncreaseRedriveCount bumps the redrive counter after an unsuccessful pass.
func (repo *Repository) IncreaseRedriveCount(ctx context.Context, transcript *Transcript) error {
	_, err := repo.CircuitBreaker.Execute(func() (any, error) {
		updates := map[string]any{
			"redrive_count":  gorm.Expr("redrive_count + 1"),
			"last_polled_at": time.Now(),
			"status":         TranscriptStatusPending,
		}

		err := repo.DBConn.WithContext(ctx).
			Model(transcript).
			Where("transcript_sid = ?", transcript.TranscriptSid).
			Updates(updates).Error
		if err != nil {
			logging.Logger.Error("failed to increase transcript redrive count",
				zap.String("transcript_sid", transcript.TranscriptSid),
				zap.String("error", err.Error()),
			)

			return nil, err
		}

		return transcript, nil
	})

	return err
}

// PruneAbsent drops nil values (and typed-nil pointers) from an update map so
// an absent field can never overwrite a present one.
func PruneAbsent(updates map[string]any) map[string]any {
	pruned := make(map[string]any, len(updates))

	for key, value := range updates {
		if value == nil {
			continue
		}

		switch v := value.(type) {
		case *string:
			if v == nil {
				continue
			}
		case *int:
			if v == nil {
				continue
			}
		case *float64:
			if v == nil {
				continue
			}
		case *time.Time:
			if v == nil {
				continue
			}
		case []byte:
			if v == nil {
				continue
			}
		}

		pruned[key] = value
	}

	return pruned
}
