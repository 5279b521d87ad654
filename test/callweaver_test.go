package test

import (
	"context"
	"sync"
	"testing"

	"git.brightsales.dev/crm/golang/callweaver/internal/callrecord"
	"git.brightsales.dev/crm/golang/callweaver/internal/circuitbreak"
	"git.brightsales.dev/crm/golang/callweaver/internal/config"
	"git.brightsales.dev/crm/golang/callweaver/internal/identity"
	"git.brightsales.dev/crm/golang/callweaver/internal/orchestrator"
	"git.brightsales.dev/crm/golang/callweaver/internal/provider"
	"git.brightsales.dev/crm/golang/callweaver/internal/recording"
	"git.brightsales.dev/crm/golang/callweaver/internal/webhook"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	circuitbreak.Init()
	m.Run()
}

func TestMergeStoreConvergesUnderConcurrentUpserts(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	dbConn := startPostgres(t)
	repository := callrecord.NewRepository(dbConn)

	ctx := context.Background()
	sid := callSid("1")

	partials := []map[string]any{
		{"status": callrecord.CallStatusInProgress, "from_number": "+15550000100", "to_number": "+15551234567"},
		{"recording_sid": recordingSid("1"), "recording_channels": 2},
		{"transcript_sid": transcriptSid("1"), "transcript_status": callrecord.TranscriptStatusCompleted},
		{"summary": "intro call", "sentiment": "positive"},
	}

	// Fire each partial several times from concurrent writers, the way
	// redelivered webhooks do.
	var wg sync.WaitGroup

	for range 3 {
		for _, partial := range partials {
			wg.Add(1)

			go func(updates map[string]any) {
				defer wg.Done()
				require.NoError(t, repository.Upsert(ctx, sid, updates))
			}(partial)
		}
	}

	wg.Wait()

	record, err := repository.GetCallRecord(ctx, sid)
	require.NoError(t, err)

	require.Equal(t, callrecord.CallStatusInProgress, *record.Status)
	require.Equal(t, "+15550000100", *record.From)
	require.Equal(t, recordingSid("1"), *record.RecordingSid)
	require.Equal(t, 2, *record.RecordingChannels)
	require.Equal(t, "intro call", *record.Summary)
}

func TestMergeStoreAbsentFieldNeverClobbers(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	dbConn := startPostgres(t)
	repository := callrecord.NewRepository(dbConn)

	ctx := context.Background()
	sid := callSid("2")

	require.NoError(t, repository.Upsert(ctx, sid, map[string]any{
		"recording_url": "https://api.example.com/rec.wav",
	}))

	// A later event that knows nothing about the recording.
	require.NoError(t, repository.Upsert(ctx, sid, map[string]any{
		"status":        callrecord.CallStatusCompleted,
		"recording_url": nil,
	}))

	record, err := repository.GetCallRecord(ctx, sid)
	require.NoError(t, err)

	require.Equal(t, "https://api.example.com/rec.wav", *record.RecordingURL)
	require.Equal(t, callrecord.CallStatusCompleted, *record.Status)
}

func TestIdentityResolutionPaths(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	dbConn := startPostgres(t)
	repository := callrecord.NewRepository(dbConn)
	resolver := identity.NewResolver(repository)

	ctx := context.Background()
	sid := callSid("3")

	require.NoError(t, repository.SaveRecording(ctx, &callrecord.Recording{
		RecordingSid: recordingSid("3"),
		CallSid:      sid,
		Channels:     2,
		Source:       callrecord.RecordingSourceRestAPI,
		Status:       callrecord.RecordingStatusCompleted,
	}))

	require.NoError(t, repository.SaveTranscript(ctx, &callrecord.Transcript{
		TranscriptSid: transcriptSid("3"),
		RecordingSid:  recordingSid("3"),
		CallSid:       sid,
		Status:        callrecord.TranscriptStatusInProgress,
	}))

	// Every non-empty subset of known identifiers resolves to the same sid.
	byCall, err := resolver.Resolve(ctx, sid, "", "", "")
	require.NoError(t, err)

	byRecording, err := resolver.Resolve(ctx, "", recordingSid("3"), "", "")
	require.NoError(t, err)

	byTranscript, err := resolver.Resolve(ctx, "", "", transcriptSid("3"), "")
	require.NoError(t, err)

	byCustomerKey, err := resolver.Resolve(ctx, "", "", "", sid)
	require.NoError(t, err)

	require.Equal(t, sid, byCall)
	require.Equal(t, sid, byRecording)
	require.Equal(t, sid, byTranscript)
	require.Equal(t, sid, byCustomerKey)

	// No identity means no write, never a synthetic key.
	_, err = resolver.Resolve(ctx, "bogus", recordingSid("99"), "", "")
	require.Error(t, err)
}

func TestCoordinatorSuppressesMonoWhenDualOutstanding(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	dbConn := startPostgres(t)
	repository := callrecord.NewRepository(dbConn)
	mock := newProviderMock(t)

	coordinator := recording.NewCoordinator(provider.NewClient(), repository)

	sid := callSid("4")

	mock.addRecording(sid, map[string]any{
		"sid":      recordingSid("40"),
		"call_sid": sid,
		"channels": 1,
		"source":   callrecord.RecordingSourceDialVerb,
		"status":   callrecord.RecordingStatusCompleted,
	})
	mock.addRecording(sid, map[string]any{
		"sid":      recordingSid("41"),
		"call_sid": sid,
		"channels": 2,
		"source":   callrecord.RecordingSourceRestAPI,
		"status":   callrecord.RecordingStatusInProgress,
	})

	ctx := context.Background()

	adopted, err := coordinator.Adopt(ctx, &callrecord.Recording{
		RecordingSid:    recordingSid("40"),
		CallSid:         sid,
		Channels:        1,
		Source:          callrecord.RecordingSourceDialVerb,
		Status:          callrecord.RecordingStatusCompleted,
		URL:             "https://api.example.com/mono.wav",
		DurationSeconds: 60,
	})
	require.NoError(t, err)
	require.False(t, adopted)

	// The dual completion is adopted as-is.
	adopted, err = coordinator.Adopt(ctx, &callrecord.Recording{
		RecordingSid:    recordingSid("41"),
		CallSid:         sid,
		Channels:        2,
		Source:          callrecord.RecordingSourceRestAPI,
		Status:          callrecord.RecordingStatusCompleted,
		URL:             "https://api.example.com/dual.wav",
		DurationSeconds: 60,
	})
	require.NoError(t, err)
	require.True(t, adopted)
}

func TestPendingTranscriptQueueHonorsRedriveCeiling(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	dbConn := startPostgres(t)
	repository := callrecord.NewRepository(dbConn)

	ctx := context.Background()

	parked := &callrecord.Transcript{
		TranscriptSid: transcriptSid("50"),
		RecordingSid:  recordingSid("50"),
		CallSid:       callSid("5"),
		Status:        callrecord.TranscriptStatusPending,
	}
	require.NoError(t, repository.SaveTranscript(ctx, parked))

	exhausted := &callrecord.Transcript{
		TranscriptSid: transcriptSid("51"),
		RecordingSid:  recordingSid("51"),
		CallSid:       callSid("5"),
		Status:        callrecord.TranscriptStatusPending,
	}
	require.NoError(t, repository.SaveTranscript(ctx, exhausted))

	for range config.Conf.TranscriptRedriveMaxRuns {
		require.NoError(t, repository.IncreaseRedriveCount(ctx, exhausted))
	}

	pending, err := repository.GetPendingTranscripts(ctx)
	require.NoError(t, err)

	require.Len(t, pending, 1)
	require.Equal(t, parked.TranscriptSid, pending[0].TranscriptSid)
}

func TestDialStatusDoesNotResurrectFinishedCall(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	dbConn := startPostgres(t)
	repository := callrecord.NewRepository(dbConn)
	newProviderMock(t)

	app, err := orchestrator.NewApp(context.Background(), dbConn)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	ctx := context.Background()
	sid := callSid("6")

	require.NoError(t, app.HandleCallStatus(ctx, &webhook.Event{
		Kind:       webhook.EventCallStatus,
		CallSid:    sid,
		CallStatus: callrecord.CallStatusCompleted,
	}))

	// A retried dial-status arriving after the final status must not roll
	// the call back to in-progress.
	require.NoError(t, app.HandleDialStatus(ctx, &webhook.Event{
		Kind:           webhook.EventDialStatus,
		CallSid:        sid,
		DialCallStatus: "answered",
	}))

	record, err := repository.GetCallRecord(ctx, sid)
	require.NoError(t, err)
	require.Equal(t, callrecord.CallStatusCompleted, *record.Status)

	// A finished dial outcome on a live call is not a liveness signal.
	liveSid := callSid("61")

	require.NoError(t, app.HandleCallStatus(ctx, &webhook.Event{
		Kind:       webhook.EventCallStatus,
		CallSid:    liveSid,
		CallStatus: callrecord.CallStatusRinging,
	}))

	require.NoError(t, app.HandleDialStatus(ctx, &webhook.Event{
		Kind:           webhook.EventDialStatus,
		CallSid:        liveSid,
		DialCallStatus: "completed",
	}))

	record, err = repository.GetCallRecord(ctx, liveSid)
	require.NoError(t, err)
	require.Equal(t, callrecord.CallStatusRinging, *record.Status)
}

func TestRedeliveredEarlyStatusCannotRevertFinal(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	dbConn := startPostgres(t)
	repository := callrecord.NewRepository(dbConn)
	newProviderMock(t)

	app, err := orchestrator.NewApp(context.Background(), dbConn)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	ctx := context.Background()
	sid := callSid("7")

	require.NoError(t, app.HandleCallStatus(ctx, &webhook.Event{
		Kind:       webhook.EventCallStatus,
		CallSid:    sid,
		CallStatus: callrecord.CallStatusCompleted,
	}))

	require.NoError(t, app.HandleCallStatus(ctx, &webhook.Event{
		Kind:       webhook.EventCallStatus,
		CallSid:    sid,
		CallStatus: callrecord.CallStatusRinging,
	}))

	record, err := repository.GetCallRecord(ctx, sid)
	require.NoError(t, err)
	require.Equal(t, callrecord.CallStatusCompleted, *record.Status)

	// The guard is a conditional update, not read-then-write.
	updated, err := repository.SetStatusIfNotFinal(ctx, sid, callrecord.CallStatusInProgress)
	require.NoError(t, err)
	require.False(t, updated)

	freshSid := callSid("71")

	updated, err = repository.SetStatusIfNotFinal(ctx, freshSid, callrecord.CallStatusRinging)
	require.NoError(t, err)
	require.True(t, updated)

	record, err = repository.GetCallRecord(ctx, freshSid)
	require.NoError(t, err)
	require.Equal(t, callrecord.CallStatusRinging, *record.Status)
}

func TestPipelineParksJobAtPollCeiling(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	dbConn := startPostgres(t)
	repository := callrecord.NewRepository(dbConn)
	mock := newProviderMock(t)

	restoreAttempts := config.Conf.TranscriptPollMaxAttempts
	restoreInterval := config.Conf.TranscriptPollInterval
	config.Conf.TranscriptPollMaxAttempts = 1
	config.Conf.TranscriptPollInterval = 0
	t.Cleanup(func() {
		config.Conf.TranscriptPollMaxAttempts = restoreAttempts
		config.Conf.TranscriptPollInterval = restoreInterval
	})

	app, err := orchestrator.NewApp(context.Background(), dbConn)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	ctx := context.Background()
	sid := callSid("8")
	recSid := recordingSid("8")
	trSid := transcriptSid("8")

	require.NoError(t, repository.Upsert(ctx, sid, map[string]any{
		"from_number": "+15550000100",
		"to_number":   "+15551234567",
	}))

	mock.addRecording(sid, map[string]any{
		"sid":       recSid,
		"call_sid":  sid,
		"channels":  2,
		"source":    callrecord.RecordingSourceRestAPI,
		"status":    callrecord.RecordingStatusCompleted,
		"media_url": "https://api.example.com/dual.wav",
	})

	// The job never leaves in-progress, so the poll budget runs out.
	mock.addTranscript(map[string]any{
		"sid":          trSid,
		"status":       provider.TranscriptStatusInProgress,
		"source_sid":   recSid,
		"customer_key": sid,
	})

	app.ProcessTranscript(ctx, sid)

	record, err := repository.GetCallRecord(ctx, sid)
	require.NoError(t, err)

	require.Equal(t, trSid, *record.TranscriptSid)
	require.Equal(t, callrecord.TranscriptStatusPending, *record.TranscriptStatus)

	// Parked, not failed, and no insight was synthesized.
	require.Nil(t, record.Summary)
	require.Nil(t, record.InsightSource)
	require.Nil(t, record.TranscriptProvenance)

	job, err := repository.GetTranscript(ctx, trSid)
	require.NoError(t, err)
	require.Equal(t, callrecord.TranscriptStatusPending, job.Status)
}

func TestCompletedTranscriptPullsOperatorResults(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}

	dbConn := startPostgres(t)
	repository := callrecord.NewRepository(dbConn)
	mock := newProviderMock(t)

	app, err := orchestrator.NewApp(context.Background(), dbConn)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	ctx := context.Background()
	sid := callSid("9")
	recSid := recordingSid("9")
	trSid := transcriptSid("9")

	require.NoError(t, repository.Upsert(ctx, sid, map[string]any{
		"from_number": "client:agent",
		"to_number":   "+15551234567",
	}))

	mock.addRecording(sid, map[string]any{
		"sid":       recSid,
		"call_sid":  sid,
		"channels":  2,
		"source":    callrecord.RecordingSourceRestAPI,
		"status":    callrecord.RecordingStatusCompleted,
		"media_url": "https://api.example.com/dual.wav",
	})

	mock.addTranscript(map[string]any{
		"sid":          trSid,
		"status":       provider.TranscriptStatusCompleted,
		"source_sid":   recSid,
		"customer_key": sid,
	})

	mock.addSentence(trSid, map[string]any{
		"transcript":    "Thanks for calling, how can I help?",
		"media_channel": 1,
		"start_time":    0.4,
		"end_time":      2.1,
	})
	mock.addSentence(trSid, map[string]any{
		"transcript":    "I'd like to renew our contract.",
		"media_channel": 2,
		"start_time":    2.8,
		"end_time":      4.9,
	})

	mock.addOperatorResult(trSid, map[string]any{
		"name":                    "conversation-summary",
		"operator_type":           "text-generation",
		"text_generation_results": map[string]any{"result": "Customer confirmed the renewal."},
	})
	mock.addOperatorResult(trSid, map[string]any{
		"name":            "sentiment",
		"operator_type":   "text-classification",
		"predicted_label": "positive",
	})

	app.ProcessTranscript(ctx, sid)

	record, err := repository.GetCallRecord(ctx, sid)
	require.NoError(t, err)

	require.Equal(t, callrecord.TranscriptStatusCompleted, *record.TranscriptStatus)
	require.Equal(t, "diarized-sentences", *record.TranscriptProvenance)
	require.NotEmpty(t, record.Utterances)

	// Operator results were pulled even though their callback never fired.
	require.Equal(t, "Customer confirmed the renewal.", *record.OperatorSummary)
	require.Equal(t, "positive", *record.OperatorSentiment)
	require.Equal(t, "Customer confirmed the renewal.", *record.Summary)
	require.Equal(t, "operator", *record.InsightSource)
}
