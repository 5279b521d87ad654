package audio

import (
	"context"
	"fmt"

	"git.brightsales.dev/crm/golang/callweaver/internal/callrecord"
	"git.brightsales.dev/crm/golang/callweaver/internal/logging"
	"git.brightsales.dev/crm/golang/callweaver/internal/minio"
	"git.brightsales.dev/crm/golang/callweaver/internal/provider"
	"git.brightsales.dev/crm/golang/callweaver/internal/voice"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Archiver copies completed recordings off the provider into our own object
// storage. Providers expire recording media; the archive URL on the call
// record is what the CRM links to long-term.
type Archiver struct {
	Provider   *provider.Client
	Minio      *minio.MinioClient
	Duration   *voice.DurationService
	Repository *callrecord.Repository
}

func NewArchiver(
	providerClient *provider.Client,
	minioClient *minio.MinioClient,
	repository *callrecord.Repository,
) *Archiver {
	return &Archiver{
		Provider:   providerClient,
		Minio:      minioClient,
		Duration:   voice.NewDurationService(),
		Repository: repository,
	}
}

// Archive downloads the recording audio, uploads it to the archive bucket
// and fills in the measured duration when the callback omitted it. Failures
// are logged and swallowed: archiving is best-effort and must never block
// transcript processing.
func (archiver *Archiver) Archive(ctx context.Context, rec *callrecord.Recording) {
	if rec.URL == "" {
		return
	}

	audio, err := archiver.Provider.DownloadRecordingMedia(ctx, rec.URL)
	if err != nil {
		logging.Logger.Error("failed to download recording for archive",
			zap.String("call_sid", rec.CallSid),
			zap.String("recording_sid", rec.RecordingSid),
			zap.String("error", err.Error()),
		)

		return
	}

	var (
		archiveURL      string
		durationSeconds int
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		objectKey := fmt.Sprintf("%s/%s.wav", rec.CallSid, rec.RecordingSid)

		var uploadErr error

		archiveURL, uploadErr = archiver.Minio.Upload(groupCtx, audio, objectKey)

		return uploadErr
	})

	group.Go(func() error {
		if rec.DurationSeconds > 0 {
			durationSeconds = rec.DurationSeconds
			return nil
		}

		var probeErr error

		durationSeconds, probeErr = archiver.Duration.GetDuration(groupCtx, audio, rec.CallSid)
		if probeErr != nil {
			logging.Logger.Warn("duration probe failed",
				zap.String("call_sid", rec.CallSid),
				zap.String("error", probeErr.Error()),
			)

			durationSeconds = 0
		}

		return nil
	})

	err = group.Wait()
	if err != nil {
		logging.Logger.Error("recording archive failed",
			zap.String("call_sid", rec.CallSid),
			zap.String("recording_sid", rec.RecordingSid),
			zap.String("error", err.Error()),
		)

		return
	}

	updates := map[string]any{
		"recording_archive_url": archiveURL,
	}
	if durationSeconds > 0 {
		updates["recording_duration_seconds"] = durationSeconds
	}

	err = archiver.Repository.Upsert(ctx, rec.CallSid, updates)
	if err != nil {
		logging.Logger.Error("failed to record archive url",
			zap.String("call_sid", rec.CallSid),
			zap.String("error", err.Error()),
		)
	}
}
