package recording

import (
	"context"
	"errors"
	"strings"

	"git.brightsales.dev/crm/golang/callweaver/internal/callrecord"
	"git.brightsales.dev/crm/golang/callweaver/internal/logging"
	"git.brightsales.dev/crm/golang/callweaver/internal/prometheus"
	"git.brightsales.dev/crm/golang/callweaver/internal/provider"
	"go.uber.org/zap"
)

var ErrNoUsableRecording = errors.New("call has no usable recording")

// Coordinator owns recording acquisition for live calls. Dual-channel REST
// recordings are the preferred artifact; mono recordings started by dial verbs
// are tolerated but superseded the moment a dual recording exists for the
// same call.
type Coordinator struct {
	Provider   *provider.Client
	Repository *callrecord.Repository
}

func NewCoordinator(providerClient *provider.Client, repository *callrecord.Repository) *Coordinator {
	return &Coordinator{
		Provider:   providerClient,
		Repository: repository,
	}
}

// EnsureDualRecording makes sure an answered call ends up with a dual-channel
// recording. Existing provider recordings are indexed first; a dual recording
// in any live state satisfies the requirement, otherwise one is started via
// the REST API. The operation is idempotent so re-delivered call-status
// events cannot stack recordings.
func (coordinator *Coordinator) EnsureDualRecording(ctx context.Context, callSid string) error {
	recordings, err := coordinator.Provider.ListRecordings(ctx, callSid)
	if err != nil {
		if errors.Is(err, provider.ErrResourceNotFound) {
			recordings = nil
		} else {
			return err
		}
	}

	hasDual := false

	for _, rec := range recordings {
		err = coordinator.index(ctx, callSid, rec)
		if err != nil {
			return err
		}

		if rec.Channels == 2 && usableStatus(rec.Status) {
			hasDual = true
		}
	}

	if hasDual {
		return nil
	}

	// A running mono recording is stopped before the dual one starts so the
	// call never ends with two concurrently active recordings.
	for _, rec := range recordings {
		if rec.Channels == 1 && rec.Status == callrecord.RecordingStatusInProgress {
			err = coordinator.Provider.StopRecording(ctx, callSid, rec.Sid)
			if err != nil {
				logging.Logger.Warn("failed to stop mono recording",
					zap.String("call_sid", callSid),
					zap.String("recording_sid", rec.Sid),
					zap.String("error", err.Error()),
				)
			} else {
				prometheus.RecordingCoordinatorActions.WithLabelValues("stop_mono").Inc()
			}
		}
	}

	targetSid := coordinator.pickRecordingLeg(ctx, callSid)

	created, err := coordinator.Provider.CreateRecording(ctx, targetSid)
	if err != nil {
		logging.Logger.Error("failed to start dual-channel recording",
			zap.String("call_sid", callSid),
			zap.String("target_sid", targetSid),
			zap.String("error", err.Error()),
		)

		return err
	}

	prometheus.RecordingCoordinatorActions.WithLabelValues("create_dual").Inc()

	logging.Logger.Info("started dual-channel recording",
		zap.String("call_sid", callSid),
		zap.String("target_sid", targetSid),
		zap.String("recording_sid", created.Sid),
	)

	return coordinator.index(ctx, callSid, provider.Recording{
		Sid:      created.Sid,
		CallSid:  callSid,
		Channels: 2,
		Source:   callrecord.RecordingSourceRestAPI,
		Status:   callrecord.RecordingStatusInProgress,
		MediaURL: created.MediaURL,
	})
}

// pickRecordingLeg chooses which leg of the call to record. An external PSTN
// child leg captures both parties cleanly; a softphone client leg comes next;
// the parent call itself is the last resort. Leg listing failures fall back
// to the parent, since recording the parent is always valid.
func (coordinator *Coordinator) pickRecordingLeg(ctx context.Context, callSid string) string {
	children, err := coordinator.Provider.ListChildCalls(ctx, callSid)
	if err != nil || len(children) == 0 {
		return callSid
	}

	return bestLeg(callSid, children)
}

func bestLeg(parentSid string, children []provider.Call) string {
	var clientLeg string

	for _, child := range children {
		if child.Status != callrecord.CallStatusInProgress && child.Status != callrecord.CallStatusRinging {
			continue
		}

		if strings.HasPrefix(child.To, "client:") || strings.HasPrefix(child.To, "sip:") {
			if clientLeg == "" {
				clientLeg = child.Sid
			}

			continue
		}

		return child.Sid
	}

	if clientLeg != "" {
		return clientLeg
	}

	return parentSid
}

// Adopt records a completed recording in the index and reports whether it is
// the artifact the rest of the pipeline should consume. A mono dial-verb
// recording is suppressed whenever a dual REST recording exists for the call,
// either still running or already done, so the transcript never attaches to
// the single-channel audio.
func (coordinator *Coordinator) Adopt(ctx context.Context, rec *callrecord.Recording) (bool, error) {
	err := coordinator.Repository.SaveRecording(ctx, rec)
	if err != nil {
		return false, err
	}

	if rec.Status != callrecord.RecordingStatusCompleted {
		return false, nil
	}

	if rec.Channels == 2 {
		prometheus.RecordingCoordinatorActions.WithLabelValues("adopt_dual").Inc()
		return true, nil
	}

	if rec.Source == callrecord.RecordingSourceDialVerb {
		superseded, err := coordinator.dualRecordingExists(ctx, rec.CallSid, rec.RecordingSid)
		if err != nil {
			return false, err
		}

		if superseded {
			prometheus.RecordingCoordinatorActions.WithLabelValues("suppress_mono").Inc()

			logging.Logger.Info("suppressing mono dial-verb recording",
				zap.String("call_sid", rec.CallSid),
				zap.String("recording_sid", rec.RecordingSid),
			)

			return false, nil
		}
	}

	prometheus.RecordingCoordinatorActions.WithLabelValues("adopt_mono").Inc()

	return true, nil
}

// PickBest returns the preferred completed recording for a call, dual REST
// first, then any completed recording, used when transcript processing is
// triggered on demand rather than by a recording callback.
func (coordinator *Coordinator) PickBest(ctx context.Context, callSid string) (*callrecord.Recording, error) {
	recordings, err := coordinator.Provider.ListRecordings(ctx, callSid)
	if err != nil {
		return nil, err
	}

	var best *callrecord.Recording

	for _, rec := range recordings {
		if rec.Status != callrecord.RecordingStatusCompleted {
			continue
		}

		candidate := &callrecord.Recording{
			RecordingSid:    rec.Sid,
			CallSid:         callSid,
			Channels:        rec.Channels,
			Source:          rec.Source,
			Status:          rec.Status,
			URL:             rec.MediaURL,
			DurationSeconds: rec.DurationSeconds,
		}

		err = coordinator.Repository.SaveRecording(ctx, candidate)
		if err != nil {
			return nil, err
		}

		if best == nil || (candidate.Channels == 2 && best.Channels != 2) {
			best = candidate
		}
	}

	if best == nil {
		return nil, ErrNoUsableRecording
	}

	return best, nil
}

func (coordinator *Coordinator) dualRecordingExists(ctx context.Context, callSid, excludeSid string) (bool, error) {
	recordings, err := coordinator.Provider.ListRecordings(ctx, callSid)
	if err != nil {
		return false, err
	}

	return anyDualRecording(recordings, excludeSid), nil
}

// anyDualRecording reports whether the listing holds a live or finished
// dual-channel recording other than excludeSid.
func anyDualRecording(recordings []provider.Recording, excludeSid string) bool {
	for _, rec := range recordings {
		if rec.Sid == excludeSid {
			continue
		}

		if rec.Channels == 2 && usableStatus(rec.Status) {
			return true
		}
	}

	return false
}

func (coordinator *Coordinator) index(ctx context.Context, callSid string, rec provider.Recording) error {
	source := rec.Source
	if source == "" {
		source = callrecord.RecordingSourceDialVerb
	}

	return coordinator.Repository.SaveRecording(ctx, &callrecord.Recording{
		RecordingSid:    rec.Sid,
		CallSid:         callSid,
		Channels:        rec.Channels,
		Source:          source,
		Status:          rec.Status,
		URL:             rec.MediaURL,
		DurationSeconds: rec.DurationSeconds,
	})
}

func usableStatus(status string) bool {
	switch status {
	case callrecord.RecordingStatusInProgress, callrecord.RecordingStatusCompleted:
		return true
	default:
		return false
	}
}
