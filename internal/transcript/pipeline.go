package transcript

import (
	"context"
	"time"

	"git.brightsales.dev/crm/golang/callweaver/internal/asr"
	"git.brightsales.dev/crm/golang/callweaver/internal/callrecord"
	"git.brightsales.dev/crm/golang/callweaver/internal/channelrole"
	"git.brightsales.dev/crm/golang/callweaver/internal/config"
	"git.brightsales.dev/crm/golang/callweaver/internal/logging"
	"git.brightsales.dev/crm/golang/callweaver/internal/prometheus"
	"git.brightsales.dev/crm/golang/callweaver/internal/provider"
	"go.uber.org/zap"
)

// Result is what a pipeline run hands back to the orchestrator. Status
// "pending" means the poll budget ran out while the job was still cooking;
// the redrive worker picks it up later, so pending is not an error.
type Result struct {
	TranscriptSid string
	Status        string
	Provenance    string
	Utterances    []Utterance
}

// Pipeline drives one recording from audio to ordered, speaker-attributed
// utterances. It prefers the intelligence service's diarized sentences, falls
// back to word-level reconstruction, recreates the job once if diarization
// never happened, and finally degrades to a flat single-speaker transcript.
type Pipeline struct {
	Provider   *provider.Client
	Repository *callrecord.Repository
	Classifier *channelrole.Classifier
	ASR        *asr.Client
}

func NewPipeline(
	providerClient *provider.Client,
	repository *callrecord.Repository,
	classifier *channelrole.Classifier,
	asrClient *asr.Client,
) *Pipeline {
	return &Pipeline{
		Provider:   providerClient,
		Repository: repository,
		Classifier: classifier,
		ASR:        asrClient,
	}
}

// Process runs the full pipeline for a completed recording.
func (pipeline *Pipeline) Process(
	ctx context.Context,
	callSid string,
	rec *callrecord.Recording,
) (*Result, error) {
	start := time.Now()

	assignment, err := pipeline.channelAssignment(ctx, callSid)
	if err != nil {
		return nil, err
	}

	job, err := pipeline.acquireJob(ctx, callSid, rec, assignment)
	if err != nil {
		return nil, err
	}

	result, err := pipeline.run(ctx, callSid, rec, job, assignment, true)

	outcome := "error"
	if result != nil {
		outcome = result.Status
		if result.Status == callrecord.TranscriptStatusCompleted {
			outcome = result.Provenance
		}
	}

	prometheus.TranscriptPipelineDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	return result, err
}

// Resume re-enters the pipeline for a job parked at status pending. The
// channel assignment is read back from the job row rather than recomputed so
// a later configuration change cannot flip speakers mid-call.
func (pipeline *Pipeline) Resume(ctx context.Context, job *callrecord.Transcript) (*Result, error) {
	rec, err := pipeline.Repository.GetRecording(ctx, job.RecordingSid)
	if err != nil {
		return nil, err
	}

	assignment := channelrole.Assignment{
		AgentChannel:    job.AgentChannel,
		CustomerChannel: job.CustomerChannel,
	}

	return pipeline.run(ctx, job.CallSid, rec, job, assignment, true)
}

func (pipeline *Pipeline) channelAssignment(
	ctx context.Context,
	callSid string,
) (channelrole.Assignment, error) {
	record, err := pipeline.Repository.GetCallRecord(ctx, callSid)
	if err == nil && record.From != nil && record.To != nil {
		return pipeline.Classifier.Classify(*record.From, *record.To), nil
	}

	call, err := pipeline.Provider.GetCall(ctx, callSid)
	if err != nil {
		return channelrole.Assignment{}, err
	}

	return pipeline.Classifier.Classify(call.From, call.To), nil
}

// acquireJob reuses an existing transcript job for the recording when the
// service already has one, otherwise creates a fresh job with explicit
// channel participants.
func (pipeline *Pipeline) acquireJob(
	ctx context.Context,
	callSid string,
	rec *callrecord.Recording,
	assignment channelrole.Assignment,
) (*callrecord.Transcript, error) {
	existing, err := pipeline.Provider.ListTranscripts(ctx, rec.RecordingSid)
	if err != nil {
		logging.Logger.Warn("transcript listing failed, creating fresh job",
			zap.String("recording_sid", rec.RecordingSid),
			zap.String("error", err.Error()),
		)
	}

	for _, candidate := range existing {
		if candidate.Status == provider.TranscriptStatusFailed {
			continue
		}

		logging.Logger.Info("reusing existing transcript job",
			zap.String("call_sid", callSid),
			zap.String("transcript_sid", candidate.Sid),
			zap.String("status", candidate.Status),
		)

		return pipeline.saveJob(ctx, candidate.Sid, callSid, rec.RecordingSid, candidate.Status, assignment)
	}

	return pipeline.createJob(ctx, callSid, rec.RecordingSid, assignment)
}

func (pipeline *Pipeline) createJob(
	ctx context.Context,
	callSid, recordingSid string,
	assignment channelrole.Assignment,
) (*callrecord.Transcript, error) {
	participants := []provider.Participant{
		{ChannelParticipant: assignment.AgentChannel, Role: channelrole.RoleAgent},
		{ChannelParticipant: assignment.CustomerChannel, Role: channelrole.RoleCustomer},
	}

	created, err := pipeline.Provider.CreateTranscript(ctx, recordingSid, callSid, participants)
	if err != nil {
		return nil, err
	}

	return pipeline.saveJob(ctx, created.Sid, callSid, recordingSid, created.Status, assignment)
}

func (pipeline *Pipeline) saveJob(
	ctx context.Context,
	transcriptSid, callSid, recordingSid, status string,
	assignment channelrole.Assignment,
) (*callrecord.Transcript, error) {
	job := &callrecord.Transcript{
		TranscriptSid:   transcriptSid,
		RecordingSid:    recordingSid,
		CallSid:         callSid,
		Status:          status,
		AgentChannel:    assignment.AgentChannel,
		CustomerChannel: assignment.CustomerChannel,
	}

	err := pipeline.Repository.SaveTranscript(ctx, job)
	if err != nil {
		return nil, err
	}

	return job, nil
}

func (pipeline *Pipeline) run(
	ctx context.Context,
	callSid string,
	rec *callrecord.Recording,
	job *callrecord.Transcript,
	assignment channelrole.Assignment,
	allowRecreate bool,
) (*Result, error) {
	status, err := pipeline.poll(ctx, job)
	if err != nil {
		return nil, err
	}

	switch status {
	case provider.TranscriptStatusCompleted:
		return pipeline.collect(ctx, callSid, rec, job, assignment, allowRecreate)

	case provider.TranscriptStatusFailed:
		logging.Logger.Warn("transcript job failed, degrading to flat transcription",
			zap.String("call_sid", callSid),
			zap.String("transcript_sid", job.TranscriptSid),
		)

		return pipeline.flatFallback(ctx, callSid, rec, job)

	default:
		// Poll ceiling reached while the job is still running. Park it for
		// the redrive worker instead of surfacing an error.
		job.Status = callrecord.TranscriptStatusPending

		err = pipeline.Repository.SaveTranscript(ctx, job)
		if err != nil {
			return nil, err
		}

		return &Result{
			TranscriptSid: job.TranscriptSid,
			Status:        callrecord.TranscriptStatusPending,
		}, nil
	}
}

// poll watches the job until it reaches a terminal state or the attempt
// budget runs out, in which case it returns the last observed status.
func (pipeline *Pipeline) poll(ctx context.Context, job *callrecord.Transcript) (string, error) {
	interval := time.Duration(config.Conf.TranscriptPollInterval) * time.Second

	status := job.Status

	for attempt := range config.Conf.TranscriptPollMaxAttempts {
		current, err := pipeline.Provider.GetTranscript(ctx, job.TranscriptSid)
		if err != nil {
			return "", err
		}

		status = current.Status

		if status == provider.TranscriptStatusCompleted || status == provider.TranscriptStatusFailed {
			prometheus.TranscriptPollAttempts.Observe(float64(attempt + 1))
			return status, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(interval):
		}
	}

	prometheus.TranscriptPollAttempts.Observe(float64(config.Conf.TranscriptPollMaxAttempts))

	return status, nil
}

func (pipeline *Pipeline) collect(
	ctx context.Context,
	callSid string,
	rec *callrecord.Recording,
	job *callrecord.Transcript,
	assignment channelrole.Assignment,
	allowRecreate bool,
) (*Result, error) {
	sentences, err := pipeline.Provider.ListSentences(ctx, job.TranscriptSid)
	if err != nil {
		return nil, err
	}

	utterances, attributed := UtterancesFromSentences(sentences, assignment)
	if attributed {
		return pipeline.complete(ctx, job, ProvenanceDiarizedSentences, utterances)
	}

	words, err := pipeline.Provider.ListWords(ctx, job.TranscriptSid)
	if err != nil {
		return nil, err
	}

	if hasChannelAttribution(words) {
		utterances = UtterancesFromWords(words, assignment, config.Conf.TranscriptWordGapSeconds)

		return pipeline.complete(ctx, job, ProvenanceDiarizedWords, utterances)
	}

	if allowRecreate {
		logging.Logger.Info("transcript completed without diarization, recreating job once",
			zap.String("call_sid", callSid),
			zap.String("transcript_sid", job.TranscriptSid),
		)

		err = pipeline.discardJob(ctx, job)
		if err != nil {
			return nil, err
		}

		fresh, err := pipeline.createJob(ctx, callSid, rec.RecordingSid, assignment)
		if err != nil {
			return nil, err
		}

		return pipeline.run(ctx, callSid, rec, fresh, assignment, false)
	}

	return pipeline.flatFallback(ctx, callSid, rec, job)
}

func (pipeline *Pipeline) discardJob(ctx context.Context, job *callrecord.Transcript) error {
	err := pipeline.Provider.DeleteTranscript(ctx, job.TranscriptSid)
	if err != nil {
		return err
	}

	return pipeline.Repository.DeleteTranscript(ctx, job.TranscriptSid)
}

func (pipeline *Pipeline) flatFallback(
	ctx context.Context,
	callSid string,
	rec *callrecord.Recording,
	job *callrecord.Transcript,
) (*Result, error) {
	if pipeline.ASR == nil || rec.URL == "" {
		return pipeline.fail(ctx, job)
	}

	audio, err := pipeline.Provider.DownloadRecordingMedia(ctx, rec.URL)
	if err != nil {
		logging.Logger.Error("failed to download recording for flat transcription",
			zap.String("call_sid", callSid),
			zap.String("recording_sid", rec.RecordingSid),
			zap.String("error", err.Error()),
		)

		return pipeline.fail(ctx, job)
	}

	text, err := pipeline.ASR.Transcribe(ctx, audio, callSid)
	if err != nil {
		return pipeline.fail(ctx, job)
	}

	return pipeline.complete(ctx, job, ProvenanceFlat, FlatUtterance(text, rec.DurationSeconds))
}

func (pipeline *Pipeline) complete(
	ctx context.Context,
	job *callrecord.Transcript,
	provenance string,
	utterances []Utterance,
) (*Result, error) {
	job.Status = callrecord.TranscriptStatusCompleted
	job.Provenance = provenance

	err := pipeline.Repository.SaveTranscript(ctx, job)
	if err != nil {
		return nil, err
	}

	return &Result{
		TranscriptSid: job.TranscriptSid,
		Status:        callrecord.TranscriptStatusCompleted,
		Provenance:    provenance,
		Utterances:    utterances,
	}, nil
}

func (pipeline *Pipeline) fail(ctx context.Context, job *callrecord.Transcript) (*Result, error) {
	job.Status = callrecord.TranscriptStatusFailed

	err := pipeline.Repository.SaveTranscript(ctx, job)
	if err != nil {
		return nil, err
	}

	return &Result{
		TranscriptSid: job.TranscriptSid,
		Status:        callrecord.TranscriptStatusFailed,
	}, nil
}

func hasChannelAttribution(words []provider.Word) bool {
	for _, word := range words {
		if word.MediaChannel != 0 {
			return true
		}
	}

	return false
}
