package service

import (
	"context"
	"encoding/json"

	v1 "github.com/muudzo/moometrics2/api/v1"
	"github.com/muudzo/moometrics2/internal/biz"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

const (
	defaultDeadLetterLimit = 50
	maxDeadLetterLimit     = 500
)

// OpsService implements the OpsService HTTP interface: dead letters, breakers and health.
type OpsService struct {
	deadLetters *biz.DeadLetterUsecase
	breakers    *biz.BreakerRegistry
	health      *biz.HealthUsecase
	logger      *log.Helper
}

// NewOpsService creates a new OpsService instance.
func NewOpsService(
	deadLetters *biz.DeadLetterUsecase,
	breakers *biz.BreakerRegistry,
	health *biz.HealthUsecase,
	logger log.Logger,
) *OpsService {
	return &OpsService{
		deadLetters: deadLetters,
		breakers:    breakers,
		health:      health,
		logger:      log.NewHelper(logger),
	}
}

// ListDeadLetters returns the most recent dead letters. Read-only: replay is an operator action.
func (s *OpsService) ListDeadLetters(ctx context.Context, req *v1.ListDeadLettersRequest) (*v1.ListDeadLettersReply, error) {
	limit := req.Limit
	switch {
	case limit < 0:
		return nil, errors.BadRequest("INVALID_LIMIT", "limit must be positive")
	case limit == 0:
		limit = defaultDeadLetterLimit
	case limit > maxDeadLetterLimit:
		limit = maxDeadLetterLimit
	}

	records, err := s.deadLetters.List(ctx, limit)
	if err != nil {
		s.logger.Errorw("failed to list dead letters", "error", err)
		return nil, errors.ServiceUnavailable("DEAD_LETTER_STORE_UNAVAILABLE", "dead-letter store is unavailable")
	}

	reply := &v1.ListDeadLettersReply{DeadLetters: make([]*v1.DeadLetter, 0, len(records))}
	for _, r := range records {
		payload := json.RawMessage(r.Payload)
		if !json.Valid(payload) {
			// non-JSON payloads are returned as a JSON string
			payload, _ = json.Marshal(r.Payload)
		}
		reply.DeadLetters = append(reply.DeadLetters, &v1.DeadLetter{
			ID:         r.ID,
			TaskID:     r.TaskID,
			TaskName:   r.TaskName,
			Payload:    payload,
			Exception:  r.Exception,
			RetryCount: r.RetryCount,
			RecordedAt: r.RecordedAt,
		})
	}
	return reply, nil
}

// ListBreakers returns a snapshot of every circuit breaker.
func (s *OpsService) ListBreakers(ctx context.Context, _ *v1.HealthRequest) (*v1.ListBreakersReply, error) {
	snaps := s.breakers.Snapshots()
	reply := &v1.ListBreakersReply{Breakers: make([]*v1.Breaker, 0, len(snaps))}
	for _, snap := range snaps {
		reply.Breakers = append(reply.Breakers, &v1.Breaker{
			Name:             snap.Name,
			State:            string(snap.State),
			FailuresInWindow: snap.FailuresInWindow,
			FailureThreshold: snap.FailureThreshold,
			RecoveryTimeout:  snap.RecoveryTimeout,
			TimeWindow:       snap.TimeWindow,
			OpenedAt:         snap.OpenedAt,
			TrialInFlight:    snap.TrialInFlight,
		})
	}
	return reply, nil
}

// Health reports liveness. It answers 200 even when a store is down.
func (s *OpsService) Health(ctx context.Context, _ *v1.HealthRequest) (*v1.HealthReply, error) {
	status, checks := s.health.Check(ctx)
	return &v1.HealthReply{Status: status, Checks: checks}, nil
}
