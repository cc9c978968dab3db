package service

import (
	"context"
	"fmt"
	"strings"

	"tessera/internal/clock"
	apperrors "tessera/internal/errors"
	"tessera/internal/logger"
	"tessera/internal/metrics"
	"tessera/internal/models"
	"tessera/internal/store"
)

// SaleService coordinates the sell unit: card check, pricing, then the
// sale and its ok redemption, committed together or not at all.
type SaleService struct {
	uow               store.UnitOfWork
	machine           *CardStateMachine
	pricing           *PricingResolver
	clock             clock.Clock
	cache             ReportCache
	events            *eventSink
	defaultRegisterID string
}

func NewSaleService(uow store.UnitOfWork, machine *CardStateMachine, pricing *PricingResolver, opts Options, events *eventSink) *SaleService {
	return &SaleService{
		uow:               uow,
		machine:           machine,
		pricing:           pricing,
		clock:             opts.Clock,
		cache:             opts.ReportCache,
		events:            events,
		defaultRegisterID: opts.DefaultRegisterID,
	}
}

// Sell продает билет по карте: проверка карты, цена, продажа и погашение
func (s *SaleService) Sell(ctx context.Context, req *models.SellRequest) (resp *models.SellResponse, err error) {
	defer func() { finish(ctx, "sell", err, "card_id", req.CardID, "event_id", req.EventID) }()

	if strings.TrimSpace(req.CardID) == "" || strings.TrimSpace(req.EventID) == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Errorf("card_id and event_id are required"))
	}
	if strings.TrimSpace(req.Operator) == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Errorf("operator is required"))
	}
	registerID := strings.TrimSpace(req.RegisterID)
	if registerID == "" {
		registerID = s.defaultRegisterID
	}

	var (
		sale       *models.Sale
		redemption *models.Redemption
	)
	err = s.uow.WithTx(ctx, func(ctx context.Context, st store.Store) error {
		if _, err := s.machine.CheckValidity(ctx, st, req.CardID); err != nil {
			return err
		}

		price, err := s.pricing.Price(ctx, st, req.CardID, req.EventID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		sale, err = models.NewSale(newID(), req.CardID, req.EventID, price, registerID, now)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInvalidInput, err)
		}
		if err := st.Sales().Create(ctx, sale); err != nil {
			return apperrors.Internal("create sale", err)
		}

		redemption, err = models.NewRedemption(newID(), req.CardID, req.EventID, req.Operator, models.OutcomeOK, now)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInvalidInput, err)
		}
		redemption.SaleID = sale.ID
		if err := st.Redemptions().Create(ctx, redemption); err != nil {
			return apperrors.Internal("create redemption", err)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Internal("sell", err)
	}

	metrics.SalesRevenue.Add(sale.PricePaid.InexactFloat64())
	invalidateReports(ctx, s.cache)

	s.events.publish(ctx, models.EventRedemptionRecorded, models.RedemptionRecordedEvent{
		RedemptionID: redemption.ID,
		SaleID:       sale.ID,
		CardID:       sale.CardID,
		EventID:      sale.EventID,
		Price:        sale.PricePaid.StringFixed(2),
		RegisterID:   sale.RegisterID,
		Operator:     redemption.Operator,
		Timestamp:    sale.CreatedAt,
	})

	logger.WithContext(ctx).Info("Ticket sold",
		"card_id", sale.CardID,
		"event_id", sale.EventID,
		"price", sale.PricePaid.StringFixed(2),
		"register_id", sale.RegisterID)

	return &models.SellResponse{
		OK:           true,
		Price:        sale.PricePaid,
		SaleID:       sale.ID,
		RedemptionID: redemption.ID,
	}, nil
}

// ListRedemptions returns redemptions newest first.
func (s *SaleService) ListRedemptions(ctx context.Context, filter models.RedemptionFilter) ([]models.Redemption, error) {
	var list []models.Redemption
	err := s.uow.WithReadTx(ctx, func(ctx context.Context, st store.Store) error {
		var err error
		list, err = st.Redemptions().List(ctx, filter)
		return err
	})
	if err != nil {
		return nil, apperrors.Internal("list redemptions", err)
	}
	return list, nil
}

func invalidateReports(ctx context.Context, cache ReportCache) {
	if cache == nil {
		return
	}
	if err := cache.InvalidateReports(ctx); err != nil {
		logger.WithContext(ctx).Warn("Failed to invalidate report cache", "error", err)
	}
}
