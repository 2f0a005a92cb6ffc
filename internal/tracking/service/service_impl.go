package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/reconcile/internal/clock"
	"github.com/smallbiznis/reconcile/internal/event"
	obsmetrics "github.com/smallbiznis/reconcile/internal/observability/metrics"
	"github.com/smallbiznis/reconcile/internal/statemachine"
	trackingdomain "github.com/smallbiznis/reconcile/internal/tracking/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxTrackingIDLength = 255

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       trackingdomain.Repository
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       trackingdomain.Repository
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) trackingdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("tracking.service"),
		repo:       p.Repo,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

// RecordOpen marks the first open and counts every open of a tracking id.
// It only touches open-tracking columns.
func (s *Service) RecordOpen(ctx context.Context, trackingID string) (trackingdomain.OpenResult, error) {
	trackingID = strings.TrimSpace(trackingID)
	if trackingID == "" || len(trackingID) > maxTrackingIDLength {
		s.record(ctx, event.OutcomeRejected)
		return trackingdomain.OpenResult{}, trackingdomain.ErrInvalidTrackingID
	}

	for _, source := range trackingdomain.Sources {
		recipient, err := s.repo.Find(ctx, s.db, source, trackingID)
		if err != nil {
			s.record(ctx, event.OutcomeFailed)
			return trackingdomain.OpenResult{}, err
		}
		if recipient == nil {
			continue
		}

		result, err := s.apply(ctx, source, recipient)
		if err != nil {
			s.record(ctx, event.OutcomeFailed)
			return trackingdomain.OpenResult{}, err
		}
		if result.FirstOpen {
			s.record(ctx, event.OutcomeApplied)
		} else {
			s.record(ctx, event.OutcomeDuplicate)
		}
		return result, nil
	}

	s.record(ctx, event.OutcomeUnmatched)
	return trackingdomain.OpenResult{}, trackingdomain.ErrRecipientNotFound
}

func (s *Service) apply(ctx context.Context, source trackingdomain.Source, recipient *trackingdomain.Recipient) (trackingdomain.OpenResult, error) {
	result := trackingdomain.OpenResult{Source: source, RecipientID: recipient.ID}
	decision := statemachine.RecordOpen(recipient)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, effect := range decision.Effects {
			switch effect.Type {
			case statemachine.EffectMarkOpened:
				first, err := s.repo.MarkOpened(ctx, tx, source, recipient.ID, s.clock.Now())
				if err != nil {
					return err
				}
				result.FirstOpen = first
			case statemachine.EffectIncrementOpenCount:
				if err := s.repo.IncrementOpenCount(ctx, tx, source, recipient.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return result, err
}

func (s *Service) record(ctx context.Context, outcome event.Outcome) {
	s.obsMetrics.RecordEvent(ctx, event.ChannelEmailOpen.String(), string(event.KindEmailOpen), outcome.String())
}
