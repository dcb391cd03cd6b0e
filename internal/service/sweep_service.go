package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util"
)

// SweepResult summarizes one sweep run.
type SweepResult struct {
	Cutoff   time.Time `json:"cutoff"`
	Reminded int       `json:"reminded"`
}

// SweepService reminds customers about tickets left unresolved too long.
// It changes no state and keeps no record of earlier reminders.
type SweepService struct {
	tickets       repository.TicketRepository
	dispatcher    events.Dispatcher
	thresholdDays int
	concurrency   int
	logger        *zap.Logger
	now           func() time.Time
}

// NewSweepService builds the sweep.
func NewSweepService(tickets repository.TicketRepository, dispatcher events.Dispatcher, cfg config.SweepConfig, logger *zap.Logger, clock func() time.Time) *SweepService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = time.Now
	}
	days := cfg.ThresholdDays
	if days <= 0 {
		days = 7
	}
	workers := cfg.Concurrency
	if workers <= 0 {
		workers = 1
	}
	return &SweepService{
		tickets:       tickets,
		dispatcher:    dispatcher,
		thresholdDays: days,
		concurrency:   workers,
		logger:        logger,
		now:           clock,
	}
}

// Run publishes an unresolved reminder for every ticket opened at or
// before now minus the threshold that is neither solved nor closed.
func (s *SweepService) Run(ctx context.Context) (SweepResult, error) {
	now := s.now()
	cutoff := now.AddDate(0, 0, -s.thresholdDays)
	result := SweepResult{Cutoff: cutoff}

	listed, err := s.tickets.ListUnresolved(ctx, cutoff)
	if err != nil {
		return result, apperrors.NewInternalError(err)
	}
	// The date bound belongs to the store; the state is rechecked here.
	stale := make([]domain.Ticket, 0, len(listed))
	for _, ticket := range listed {
		if ticket.State.Unresolved() {
			stale = append(stale, ticket)
		}
	}

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for i := range stale {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		result.Reminded++
		go func(event events.Event) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := s.dispatcher.Publish(ctx, event); err != nil {
				s.logger.Warn("publish unresolved reminder", zap.String("ticket_id", event.TicketID), zap.Error(err))
			}
		}(events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventUnresolvedReminder,
			TicketID:  stale[i].ID,
			Timestamp: now,
			Ticket:    *stale[i].Clone(),
			Payload:   events.ReminderPayload{ThresholdDays: s.thresholdDays},
		})
	}
	wg.Wait()

	s.logger.Info("unresolved ticket sweep finished",
		zap.Time("cutoff", cutoff),
		zap.Int("matched", len(stale)),
		zap.Int("reminded", result.Reminded))
	return result, ctx.Err()
}
