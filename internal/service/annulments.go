package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tessera/internal/clock"
	apperrors "tessera/internal/errors"
	"tessera/internal/logger"
	"tessera/internal/models"
	"tessera/internal/store"
)

// AnnulmentWindow is how long after a redemption it may still be voided.
const AnnulmentWindow = 7 * 24 * time.Hour

const (
	defaultAnnullableLimit = 50
	maxAnnullableLimit     = 1000
)

type AnnulmentService struct {
	uow    store.UnitOfWork
	clock  clock.Clock
	cache  ReportCache
	events *eventSink
}

func NewAnnulmentService(uow store.UnitOfWork, clk clock.Clock, cache ReportCache, events *eventSink) *AnnulmentService {
	return &AnnulmentService{uow: uow, clock: clk, cache: cache, events: events}
}

// Annul voids an ok redemption and its paired sale.
func (s *AnnulmentService) Annul(ctx context.Context, redemptionID, reason, operator string) (resp *models.AnnulResponse, err error) {
	defer func() { finish(ctx, "annul", err, "redemption_id", redemptionID) }()

	if strings.TrimSpace(reason) == "" || strings.TrimSpace(operator) == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Errorf("reason and operator are required"))
	}

	var (
		rd  *models.Redemption
		now time.Time
	)
	err = s.uow.WithTx(ctx, func(ctx context.Context, st store.Store) error {
		rd, err = st.Redemptions().GetByID(ctx, redemptionID)
		if err != nil {
			return apperrors.Internal("get redemption", err)
		}
		if rd == nil {
			return apperrors.ErrRedemptionNotFound
		}
		if rd.Annulled {
			return apperrors.ErrAlreadyAnnulled
		}
		if rd.Outcome != models.OutcomeOK {
			return apperrors.ErrNotAnnullable
		}

		now = s.clock.Now()
		if now.Sub(rd.CreatedAt) > AnnulmentWindow {
			return apperrors.ErrWindowExpired
		}

		if err := st.Redemptions().Annul(ctx, redemptionID, models.Annulment{At: now, Operator: operator, Reason: reason}); err != nil {
			return apperrors.Internal("annul redemption", err)
		}
		if rd.SaleID != "" {
			if err := st.Sales().MarkAnnulled(ctx, rd.SaleID); err != nil {
				return apperrors.Internal("annul sale", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Internal("annul", err)
	}

	invalidateReports(ctx, s.cache)

	s.events.publish(ctx, models.EventRedemptionAnnulled, models.RedemptionAnnulledEvent{
		RedemptionID: rd.ID,
		CardID:       rd.CardID,
		EventID:      rd.EventID,
		Reason:       reason,
		Operator:     operator,
		Timestamp:    now,
	})

	logger.WithContext(ctx).Info("Redemption annulled", "redemption_id", rd.ID, "card_id", rd.CardID, "event_id", rd.EventID)
	return &models.AnnulResponse{OK: true, RedemptionID: rd.ID, AnnulledAt: now}, nil
}

// ListAnnullable returns ok, non-annulled redemptions still inside the
// window, newest first.
func (s *AnnulmentService) ListAnnullable(ctx context.Context, limit int) ([]models.Redemption, error) {
	if limit <= 0 {
		limit = defaultAnnullableLimit
	}
	if limit > maxAnnullableLimit {
		limit = maxAnnullableLimit
	}
	since := s.clock.Now().Add(-AnnulmentWindow)

	var list []models.Redemption
	err := s.uow.WithReadTx(ctx, func(ctx context.Context, st store.Store) error {
		var err error
		list, err = st.Redemptions().ListAnnullable(ctx, since, limit)
		return err
	})
	if err != nil {
		return nil, apperrors.Internal("list annullable", err)
	}
	return list, nil
}
