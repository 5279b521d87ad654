package transcript

import (
	"context"
	"time"

	"git.brightsales.dev/crm/golang/callweaver/internal/callrecord"
	"git.brightsales.dev/crm/golang/callweaver/internal/config"
	"git.brightsales.dev/crm/golang/callweaver/internal/logging"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Worker periodically re-enters transcript jobs that ran out of poll budget.
// Apply receives terminal results so the caller can merge them into the call
// record without this package knowing about the merge.
type Worker struct {
	WorkerPool *ants.Pool
	Pipeline   *Pipeline
	Repository *callrecord.Repository
	Apply      func(ctx context.Context, callSid string, result *Result)
}

func NewWorker(
	pipeline *Pipeline,
	repository *callrecord.Repository,
	apply func(ctx context.Context, callSid string, result *Result),
) (*Worker, error) {
	workerPool, err := ants.NewPool(config.Conf.TranscriptRedrivePoolSize, ants.WithPreAlloc(true))
	if err != nil {
		return nil, err
	}

	return &Worker{
		WorkerPool: workerPool,
		Pipeline:   pipeline,
		Repository: repository,
		Apply:      apply,
	}, nil
}

func (worker *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(config.Conf.TranscriptRedriveInterval) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			worker.processPendingTranscripts(ctx)
		}
	}
}

func (worker *Worker) processPendingTranscripts(ctx context.Context) {
	jobs, err := worker.Repository.GetPendingTranscripts(ctx)
	if err != nil {
		return
	}

	if len(jobs) == 0 {
		logging.Logger.Info("no pending transcripts to redrive")
		return
	}

	logging.Logger.Info("start redriving pending transcripts", zap.Int("count_pending", len(jobs)))

	for idx := range jobs {
		job := jobs[idx]

		err := worker.WorkerPool.Submit(func() {
			worker.redrive(ctx, &job)
		})
		if err != nil {
			logging.Logger.Error("failed to submit transcript redrive pool",
				zap.String("transcript_sid", job.TranscriptSid),
				zap.String("error", err.Error()),
			)
		}
	}
}

func (worker *Worker) redrive(ctx context.Context, job *callrecord.Transcript) {
	result, err := worker.Pipeline.Resume(ctx, job)
	if err != nil {
		logging.Logger.Error("transcript redrive attempt failed",
			zap.String("transcript_sid", job.TranscriptSid),
			zap.String("call_sid", job.CallSid),
			zap.String("error", err.Error()),
		)

		cerr := worker.Repository.IncreaseRedriveCount(ctx, job)
		if cerr != nil {
			logging.Logger.Error("failed to bump redrive count",
				zap.String("transcript_sid", job.TranscriptSid),
				zap.String("error", cerr.Error()),
			)
		}

		return
	}

	if result.Status == callrecord.TranscriptStatusPending {
		cerr := worker.Repository.IncreaseRedriveCount(ctx, job)
		if cerr != nil {
			logging.Logger.Error("failed to bump redrive count",
				zap.String("transcript_sid", job.TranscriptSid),
				zap.String("error", cerr.Error()),
			)
		}

		return
	}

	if worker.Apply != nil {
		worker.Apply(ctx, job.CallSid, result)
	}
}
