package service

import (
	"context"
	"strings"

	auditdomain "github.com/smallbiznis/reconcile/internal/audit/domain"
	"github.com/smallbiznis/reconcile/internal/clock"
	"github.com/smallbiznis/reconcile/internal/event"
	guestorderdomain "github.com/smallbiznis/reconcile/internal/guestorder/domain"
	obsmetrics "github.com/smallbiznis/reconcile/internal/observability/metrics"
	"github.com/smallbiznis/reconcile/internal/statemachine"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       guestorderdomain.Repository
	AuditSvc   auditdomain.Service
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	repo       guestorderdomain.Repository
	auditSvc   auditdomain.Service
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) guestorderdomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("guestorder.service"),
		repo:       p.Repo,
		auditSvc:   p.AuditSvc,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

// Link binds a guest order to the authenticated user. The bind is a
// conditional update on user_id IS NULL, so of two racing requests only one
// succeeds and the other sees ErrOrderAlreadyLinked.
func (s *Service) Link(ctx context.Context, req guestorderdomain.LinkRequest) (guestorderdomain.GuestOrder, error) {
	req.OrderNumber = strings.TrimSpace(req.OrderNumber)
	req.Email = strings.TrimSpace(req.Email)
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return guestorderdomain.GuestOrder{}, guestorderdomain.ErrUnauthenticated
	}
	if req.OrderNumber == "" || req.Email == "" || !strings.Contains(req.Email, "@") {
		return guestorderdomain.GuestOrder{}, guestorderdomain.ErrInvalidRequest
	}

	order, err := s.repo.FindByOrderNumber(ctx, s.db, req.OrderNumber)
	if err != nil {
		return guestorderdomain.GuestOrder{}, err
	}

	decision, err := statemachine.LinkGuestOrder(order, req.Email, req.UserID)
	if err != nil {
		s.audit(ctx, req.UserID, statemachine.LinkRejected(req.OrderNumber, req.UserID, statemachine.LinkRejectionReason(err)))
		s.record(ctx, decision.Outcome)
		return guestorderdomain.GuestOrder{}, err
	}

	now := s.clock.Now()
	bound, err := s.repo.BindUser(ctx, s.db, order.ID, req.UserID, now)
	if err != nil {
		s.record(ctx, event.OutcomeFailed)
		return guestorderdomain.GuestOrder{}, err
	}
	if !bound {
		s.audit(ctx, req.UserID, statemachine.LinkRejected(req.OrderNumber, req.UserID, statemachine.LinkReasonBindRaceLost))
		s.record(ctx, event.OutcomeDuplicate)
		return guestorderdomain.GuestOrder{}, guestorderdomain.ErrOrderAlreadyLinked
	}

	for _, effect := range decision.Audits() {
		s.audit(ctx, req.UserID, effect)
	}

	s.record(ctx, event.OutcomeApplied)
	userID := req.UserID
	order.UserID = &userID
	order.LinkedAt = &now
	return *order, nil
}

// audit is best-effort; a lost audit row never changes the response.
func (s *Service) audit(ctx context.Context, userID string, effect statemachine.Effect) {
	if s.auditSvc == nil {
		return
	}
	if err := s.auditSvc.Record(ctx, auditdomain.Entry{
		ActorType:  auditdomain.ActorTypeUser,
		ActorID:    userID,
		Action:     effect.Action,
		TargetType: effect.TargetType,
		TargetID:   effect.TargetID,
		Metadata:   effect.Metadata,
	}); err != nil {
		s.log.Warn("failed to audit guest order link", zap.String("action", effect.Action), zap.String("target_id", effect.TargetID), zap.Error(err))
	}
}

func (s *Service) record(ctx context.Context, outcome event.Outcome) {
	s.obsMetrics.RecordEvent(ctx, event.ChannelOrderLink.String(), string(event.KindOrderLink), outcome.String())
}
