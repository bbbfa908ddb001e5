package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"github.com/structhub/asset-ingest/internal/store"
	"github.com/structhub/asset-ingest/internal/store/model"
	"github.com/structhub/asset-ingest/pkg/metrics"
)

const (
	stallMessage        = "worker stalled"
	neverStartedMessage = "worker stalled before processing started"

	// bounded retries against an active worker racing on the same session
	saveRetries = 3
)

// Decision classifies what the sweeper must do with a stalled session.
type Decision int

const (
	// DecisionNone: session is not stalled, leave it alone.
	DecisionNone Decision = iota
	// DecisionFailSession: nothing was ever processed, fail the whole run.
	DecisionFailSession
	// DecisionFailPending: some batches completed, fail the abandoned rest.
	DecisionFailPending
	// DecisionRecompute: processing finished but the terminal state was never
	// written; reconciling the derived status is enough.
	DecisionRecompute
)

// Sweeper periodically detects upload sessions abandoned by a crashed worker
// and resolves them to a terminal state. It never deletes documents; it only
// reconciles session and batch status so operators can issue retries.
type Sweeper struct {
	store          store.Store
	interval       time.Duration
	stallThreshold time.Duration
	startupDelay   time.Duration
}

func New(s store.Store, interval, stallThreshold, startupDelay time.Duration) *Sweeper {
	return &Sweeper{
		store:          s,
		interval:       interval,
		stallThreshold: stallThreshold,
		startupDelay:   startupDelay,
	}
}

// Run blocks until the context is cancelled, sweeping once shortly after
// start and then on every (jittered) tick.
func (s *Sweeper) Run(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.startupDelay):
	}
	s.sweepOnce(ctx)

	ticker := jitterbug.New(s.interval, &jitterbug.Norm{Stdev: 500 * time.Millisecond})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s.sweepOnce(ctx)
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	cutoff := time.Now().Add(-s.stallThreshold)

	sessions, err := s.store.UploadSession().List(ctx, store.NewUploadSessionQueryFilter().
		ByStatus(model.SessionStatusInProgress).
		UpdatedBefore(cutoff))
	if err != nil {
		zap.S().Named("sweeper").Errorf("failed to list stalled sessions: %s", err)
		return
	}

	for i := range sessions {
		if err := s.resolve(ctx, sessions[i].ID); err != nil {
			zap.S().Named("sweeper").Errorf("failed to resolve session %s: %s", sessions[i].ID, err)
		}
	}
}

// Decide classifies a session known to be in_progress and stale.
func Decide(session *model.UploadSession) Decision {
	if session.Batches == nil {
		return DecisionNone
	}

	everProcessed := false
	hasPending := false
	for _, b := range session.Batches.Data {
		switch b.Status {
		case model.BatchStatusSuccess, model.BatchStatusFailed:
			everProcessed = true
		default:
			hasPending = true
		}
	}

	switch {
	case !everProcessed:
		return DecisionFailSession
	case hasPending:
		return DecisionFailPending
	default:
		return DecisionRecompute
	}
}

// Apply mutates the session according to the decision. The caller persists.
func Apply(session *model.UploadSession, decision Decision) {
	switch decision {
	case DecisionFailSession:
		for i := range session.Batches.Data {
			session.Batches.Data[i].MarkFailed(neverStartedMessage, "")
		}
	case DecisionFailPending:
		for i := range session.Batches.Data {
			if session.Batches.Data[i].Status == model.BatchStatusPending {
				session.Batches.Data[i].MarkFailed(stallMessage, "")
			}
		}
	}
	session.Recompute()
}

// resolve reloads, decides and saves under the optimistic version guard. A
// worker committing a batch the instant before the sweeper decides wins the
// race: the save conflicts, the session is reloaded and re-evaluated.
func (s *Sweeper) resolve(ctx context.Context, sessionID uuid.UUID) error {
	var lastErr error

	for attempt := 0; attempt < saveRetries; attempt++ {
		session, err := s.store.UploadSession().Get(ctx, sessionID)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return nil // deleted meanwhile
			}
			return err
		}

		if session.Status != model.SessionStatusInProgress ||
			time.Since(session.UpdatedAt) < s.stallThreshold {
			return nil // the worker came back
		}

		decision := Decide(session)
		if decision == DecisionNone {
			return nil
		}
		Apply(session, decision)

		if _, err := s.store.UploadSession().Update(ctx, session); err != nil {
			if errors.Is(err, store.ErrConcurrentUpdate) {
				lastErr = err
				continue
			}
			return err
		}

		metrics.IncreaseSessionsStalledMetric()
		zap.S().Named("sweeper").Infof("resolved stalled session %s to %s", session.ID, session.Status)
		return nil
	}

	return lastErr
}
