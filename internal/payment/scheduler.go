package payment

import (
	"github.com/noah-isme/payment-mock/internal/obs"
)

// startPipeline creates one queued job per pipeline stage and arms the timer
// for the first stage. Each completed stage arms the next one, so stage k
// completes stageDelay after stage k-1 and never before it. Callers hold the
// store lock.
func (s *Service) startPipeline(intent *Intent) {
	now := s.clock.Now().UTC()
	jobs := make([]Job, len(Pipeline))
	for i, stage := range Pipeline {
		started := now
		jobs[i] = Job{
			ID:        s.ids.NewID(prefixJob),
			Type:      stage,
			Status:    JobQueued,
			StartedAt: &started,
		}
	}
	intent.Jobs = jobs
	s.armStage(intent.ID, 0)
}

// armStage schedules completion of stage. Callers hold the store lock.
func (s *Service) armStage(intentID string, stage int) {
	s.store.pending[intentID] = s.clock.AfterFunc(s.stageDelay, func() {
		s.completeStage(intentID, stage)
	})
}

func (s *Service) completeStage(intentID string, stage int) {
	s.store.mu.Lock()
	defer s.store.mu.Unlock()
	if s.store.closed {
		return
	}
	intent, ok := s.store.intents[intentID]
	if !ok || stage >= len(intent.Jobs) {
		delete(s.store.pending, intentID)
		return
	}

	now := s.clock.Now().UTC()
	job := &intent.Jobs[stage]
	job.Status = JobCompleted
	job.CompletedAt = &now
	if obs.JobStagesTotal != nil {
		obs.JobStagesTotal.WithLabelValues(string(job.Type)).Inc()
	}
	s.logger.Debug().Str("intent_id", intentID).Str("stage", string(job.Type)).Msg("job completed")

	if stage < len(intent.Jobs)-1 {
		s.armStage(intentID, stage+1)
		return
	}

	delete(s.store.pending, intentID)
	intent.Status = StatusSucceeded
	s.store.payments[intentID] = &Payment{
		ID:                  s.ids.NewID(prefixPayment),
		IntentID:            intentID,
		Amount:              intent.Amount,
		Currency:            intent.Currency,
		CapturedAt:          now,
		RefundableRemaining: intent.Amount,
	}
	if obs.PaymentsCapturedTotal != nil {
		obs.PaymentsCapturedTotal.Inc()
	}
	s.logger.Debug().Str("intent_id", intentID).Msg("payment captured")
}
