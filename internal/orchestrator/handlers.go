package orchestrator

import (
	"context"
	"time"

	"git.brightsales.dev/crm/golang/callweaver/internal/callrecord"
	"git.brightsales.dev/crm/golang/callweaver/internal/config"
	"git.brightsales.dev/crm/golang/callweaver/internal/identity"
	"git.brightsales.dev/crm/golang/callweaver/internal/kafka"
	"git.brightsales.dev/crm/golang/callweaver/internal/logging"
	"git.brightsales.dev/crm/golang/callweaver/internal/provider"
	"git.brightsales.dev/crm/golang/callweaver/internal/transcript"
	"git.brightsales.dev/crm/golang/callweaver/internal/webhook"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// HandleCallStatus merges the lifecycle fields and drives recording
// acquisition. The merge happens synchronously so the provider's retry on a
// failed response cannot lose the write; provider round trips are offloaded.
func (app *App) HandleCallStatus(ctx context.Context, event *webhook.Event) error {
	callSid, err := app.Resolver.Resolve(ctx, event.CallSid, "", "", "")
	if err != nil {
		logging.Logger.Warn("skipping call-status event without identity",
			zap.String("call_sid", event.CallSid),
			zap.String("error", err.Error()),
		)

		return nil
	}

	updates := map[string]any{}

	if callrecord.FinalCallStatus(event.CallStatus) {
		updates["status"] = event.CallStatus
	}

	if event.From != "" && event.To != "" {
		assignment := app.Classifier.Classify(event.From, event.To)

		updates["from_number"] = event.From
		updates["to_number"] = event.To
		updates["business_phone"] = assignment.BusinessPhone
		updates["counterparty_phone"] = assignment.CounterpartyPhone
	}

	if event.Direction != "" {
		updates["direction"] = event.Direction
	}

	if event.Duration > 0 {
		updates["duration_seconds"] = event.Duration
	}

	err = app.Repository.Upsert(ctx, callSid, updates)
	if err != nil {
		return err
	}

	live := true

	// A non-final status goes through the conditional write so a redelivered
	// "ringing" cannot roll a finished call back to life, even when it races
	// a concurrent final write.
	if event.CallStatus != "" && !callrecord.FinalCallStatus(event.CallStatus) {
		live, err = app.Repository.SetStatusIfNotFinal(ctx, callSid, event.CallStatus)
		if err != nil {
			return err
		}
	}

	switch event.CallStatus {
	case callrecord.CallStatusInProgress:
		if !live {
			break
		}

		app.submit(func(taskCtx context.Context) {
			cerr := app.Coordinator.EnsureDualRecording(taskCtx, callSid)
			if cerr != nil {
				logging.Logger.Warn("recording acquisition failed, next webhook will retry",
					zap.String("call_sid", callSid),
					zap.String("error", cerr.Error()),
				)
			}
		})

	case callrecord.CallStatusCompleted:
		if config.Conf.AutoProcessTranscripts {
			app.submit(func(taskCtx context.Context) {
				app.ProcessTranscript(taskCtx, callSid)
			})
		}
	}

	return nil
}

// HandleDialStatus re-enters the coordinator when a dialed leg is answered.
// The coordinator is idempotent, so firing from both the status and the
// dial-status callbacks is safe and gives recording startup two chances.
// Anything but a live dial outcome is ignored.
func (app *App) HandleDialStatus(ctx context.Context, event *webhook.Event) error {
	parentSid := event.CallSid
	if identity.ValidCallSid(event.ParentCallSid) {
		parentSid = event.ParentCallSid
	}

	callSid, err := app.Resolver.Resolve(ctx, parentSid, "", "", "")
	if err != nil {
		logging.Logger.Warn("skipping dial-status event without identity",
			zap.String("call_sid", event.CallSid),
			zap.String("parent_call_sid", event.ParentCallSid),
			zap.String("error", err.Error()),
		)

		return nil
	}

	// Only an answered leg is a liveness signal. Dial outcomes such as
	// "completed" or "busy" describe a leg that already ended and must not
	// revive the call or restart recording acquisition.
	if !liveDialStatus(event.DialCallStatus) {
		return nil
	}

	live, err := app.Repository.SetStatusIfNotFinal(ctx, callSid, callrecord.CallStatusInProgress)
	if err != nil {
		return err
	}

	if !live {
		return nil
	}

	app.submit(func(taskCtx context.Context) {
		cerr := app.Coordinator.EnsureDualRecording(taskCtx, callSid)
		if cerr != nil {
			logging.Logger.Warn("recording acquisition failed, next webhook will retry",
				zap.String("call_sid", callSid),
				zap.String("error", cerr.Error()),
			)
		}
	})

	return nil
}

// HandleRecordingStatus indexes the recording and, when the coordinator
// adopts it as the call's artifact, merges its fields and kicks off
// archiving plus transcript processing.
func (app *App) HandleRecordingStatus(ctx context.Context, event *webhook.Event) error {
	callSid, err := app.Resolver.Resolve(ctx, event.CallSid, event.RecordingSid, "", "")
	if err != nil {
		logging.Logger.Warn("skipping recording-status event without identity",
			zap.String("recording_sid", event.RecordingSid),
			zap.String("error", err.Error()),
		)

		return nil
	}

	source := event.RecordingSource
	if source == "" {
		source = callrecord.RecordingSourceDialVerb
	}

	rec := &callrecord.Recording{
		RecordingSid:    event.RecordingSid,
		CallSid:         callSid,
		Channels:        event.RecordingChannels,
		Source:          source,
		Status:          event.RecordingStatus,
		URL:             event.RecordingURL,
		DurationSeconds: event.RecordingDuration,
	}

	adopted, err := app.Coordinator.Adopt(ctx, rec)
	if err != nil {
		return err
	}

	if !adopted {
		return nil
	}

	updates := map[string]any{
		"recording_sid":      rec.RecordingSid,
		"recording_url":      nonEmpty(rec.URL),
		"recording_channels": rec.Channels,
	}
	if rec.DurationSeconds > 0 {
		updates["recording_duration_seconds"] = rec.DurationSeconds
	}

	err = app.Repository.Upsert(ctx, callSid, updates)
	if err != nil {
		return err
	}

	if app.Archiver != nil {
		app.submit(func(taskCtx context.Context) {
			app.Archiver.Archive(taskCtx, rec)
		})
	}

	if config.Conf.AutoProcessTranscripts {
		app.submit(func(taskCtx context.Context) {
			app.processRecording(taskCtx, callSid, rec)
		})
	}

	return nil
}

// HandleTranscriptStatus reacts to the intelligence service finishing (or
// failing) a job. The pipeline re-enters through its reuse path, so a
// completed job is collected without re-polling from scratch.
func (app *App) HandleTranscriptStatus(ctx context.Context, event *webhook.Event) error {
	callSid, err := app.Resolver.Resolve(ctx, "", event.RecordingSid, event.TranscriptSid, event.CustomerKey)
	if err != nil {
		logging.Logger.Warn("skipping transcript-status event without identity",
			zap.String("transcript_sid", event.TranscriptSid),
			zap.String("customer_key", event.CustomerKey),
			zap.String("error", err.Error()),
		)

		return nil
	}

	switch event.TranscriptStatus {
	case callrecord.TranscriptStatusCompleted:
		app.submit(func(taskCtx context.Context) {
			app.ProcessTranscript(taskCtx, callSid)
		})

	case callrecord.TranscriptStatusFailed:
		return app.Repository.Upsert(ctx, callSid, map[string]any{
			"transcript_sid":    nonEmpty(event.TranscriptSid),
			"transcript_status": callrecord.TranscriptStatusFailed,
		})
	}

	return nil
}

type operatorCallback struct {
	CustomerKey     string                    `json:"customer_key"`
	TranscriptSid   string                    `json:"transcript_sid"`
	OperatorResults []provider.OperatorResult `json:"operator_results"`
}

// HandleOperatorResult extracts the analyzer summary and sentiment from the
// nested payload and merges them. A provider summary outranks anything the
// synthesizer produced, so the insight summary is overwritten as well.
func (app *App) HandleOperatorResult(ctx context.Context, event *webhook.Event) error {
	var callback operatorCallback

	err := json.Unmarshal(event.OperatorPayload, &callback)
	if err != nil {
		return err
	}

	callSid, err := app.Resolver.Resolve(ctx, "", "", callback.TranscriptSid, callback.CustomerKey)
	if err != nil {
		logging.Logger.Warn("skipping operator-result event without identity",
			zap.String("customer_key", callback.CustomerKey),
			zap.String("error", err.Error()),
		)

		return nil
	}

	summary, sentiment := extractOperatorSignals(callback.OperatorResults)

	updates := map[string]any{
		"operator_summary":   nonEmpty(summary),
		"operator_sentiment": nonEmpty(sentiment),
	}
	if summary != "" {
		updates["summary"] = summary
		updates["insight_source"] = "operator"
	}

	return app.Repository.Upsert(ctx, callSid, updates)
}

func extractOperatorSignals(results []provider.OperatorResult) (summary, sentiment string) {
	for _, result := range results {
		if result.TextGenerationRes != nil {
			if text, ok := result.TextGenerationRes["result"].(string); ok && summary == "" {
				summary = text
			}
		}

		if result.OperatorType == "text-classification" && result.PredictedLabel != "" {
			sentiment = result.PredictedLabel
		}
	}

	return summary, sentiment
}

// TriggerTranscript is the on-demand entry point behind the trigger
// endpoint; it acknowledges immediately and processes in the background.
func (app *App) TriggerTranscript(callSid string) {
	app.submit(func(taskCtx context.Context) {
		app.ProcessTranscript(taskCtx, callSid)
	})
}

// ProcessTranscript runs the transcript pipeline for a call using its best
// available recording. Used by the completed-call path, the transcript
// callback path and the on-demand trigger endpoint.
func (app *App) ProcessTranscript(ctx context.Context, callSid string) {
	rec, err := app.Coordinator.PickBest(ctx, callSid)
	if err != nil {
		logging.Logger.Warn("no usable recording for transcript processing",
			zap.String("call_sid", callSid),
			zap.String("error", err.Error()),
		)

		return
	}

	app.processRecording(ctx, callSid, rec)
}

func (app *App) processRecording(ctx context.Context, callSid string, rec *callrecord.Recording) {
	result, err := app.Pipeline.Process(ctx, callSid, rec)
	if err != nil {
		logging.Logger.Error("transcript pipeline failed",
			zap.String("call_sid", callSid),
			zap.String("recording_sid", rec.RecordingSid),
			zap.String("error", err.Error()),
		)

		return
	}

	app.applyTranscriptResult(ctx, callSid, result)
}

// applyTranscriptResult merges a pipeline result into the call record and,
// on completion, replaces the insight wholesale and announces the call.
func (app *App) applyTranscriptResult(ctx context.Context, callSid string, result *transcript.Result) {
	updates := map[string]any{
		"transcript_sid":    nonEmpty(result.TranscriptSid),
		"transcript_status": result.Status,
	}

	if result.Status != callrecord.TranscriptStatusCompleted {
		err := app.Repository.Upsert(ctx, callSid, updates)
		if err != nil {
			logging.Logger.Error("failed to merge transcript status",
				zap.String("call_sid", callSid),
				zap.String("error", err.Error()),
			)
		}

		return
	}

	updates["transcript_provenance"] = result.Provenance

	utterances, err := json.Marshal(result.Utterances)
	if err == nil {
		updates["utterances"] = utterances
	}

	operatorSummary := ""

	record, err := app.Repository.GetCallRecord(ctx, callSid)
	if err == nil && record.OperatorSummary != nil {
		operatorSummary = *record.OperatorSummary
	}

	// The operator callback may simply not have arrived yet; ask the
	// intelligence service directly before settling for our own synthesis.
	if operatorSummary == "" && result.TranscriptSid != "" {
		results, oerr := app.Provider.GetOperatorResults(ctx, result.TranscriptSid)
		if oerr != nil {
			logging.Logger.Info("operator results not available",
				zap.String("call_sid", callSid),
				zap.String("transcript_sid", result.TranscriptSid),
				zap.String("error", oerr.Error()),
			)
		} else {
			var operatorSentiment string

			operatorSummary, operatorSentiment = extractOperatorSignals(results)
			updates["operator_summary"] = nonEmpty(operatorSummary)
			updates["operator_sentiment"] = nonEmpty(operatorSentiment)
		}
	}

	generated := app.Synthesizer.Synthesize(ctx, callSid, result.Utterances, operatorSummary)

	updates["summary"] = nonEmpty(generated.Summary)
	updates["sentiment"] = nonEmpty(generated.Sentiment)
	updates["insight_source"] = generated.Source
	updates["key_topics"] = marshalList(generated.KeyTopics)
	updates["next_steps"] = marshalList(generated.NextSteps)
	updates["pain_points"] = marshalList(generated.PainPoints)

	if facts, merr := json.Marshal(generated.ContractFacts); merr == nil {
		updates["contract_facts"] = facts
	}

	err = app.Repository.Upsert(ctx, callSid, updates)
	if err != nil {
		logging.Logger.Error("failed to merge transcript result",
			zap.String("call_sid", callSid),
			zap.String("error", err.Error()),
		)

		return
	}

	app.announceProcessed(callSid, result, generated.Source)
}

func (app *App) announceProcessed(callSid string, result *transcript.Result, insightSource string) {
	if app.Producer == nil {
		return
	}

	err := app.Producer.PublishCallProcessed(&kafka.CallProcessedEvent{
		CallSid:          callSid,
		TranscriptStatus: result.Status,
		Provenance:       result.Provenance,
		InsightSource:    insightSource,
		ProcessedAt:      time.Now().Unix(),
	})
	if err != nil {
		logging.Logger.Error("failed to publish call processed event",
			zap.String("call_sid", callSid),
			zap.String("error", err.Error()),
		)
	}
}

// liveDialStatus reports whether a dial outcome means the dialed leg is
// currently up.
func liveDialStatus(status string) bool {
	switch status {
	case "answered", callrecord.CallStatusInProgress:
		return true
	default:
		return false
	}
}

// nonEmpty maps "" to nil so the merge never clobbers a present value with
// an absent one.
func nonEmpty(s string) any {
	if s == "" {
		return nil
	}

	return s
}

func marshalList(items []string) any {
	if len(items) == 0 {
		items = []string{}
	}

	data, err := json.Marshal(items)
	if err != nil {
		return nil
	}

	return data
}
