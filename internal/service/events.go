package service

import (
	"context"

	apperrors "tessera/internal/errors"
	"tessera/internal/models"
	"tessera/internal/store"
)

// EventService lists the festival programme. Events are owned by the
// registration side and are never written here.
type EventService struct {
	uow     store.UnitOfWork
	pricing *PricingResolver
}

func NewEventService(uow store.UnitOfWork, pricing *PricingResolver) *EventService {
	return &EventService{uow: uow, pricing: pricing}
}

// List returns events ordered by date. With a category it also resolves
// the price a holder of that category would pay.
func (s *EventService) List(ctx context.Context, category string) ([]models.EventListItem, error) {
	var cat models.Category
	if category != "" {
		var err error
		if cat, err = models.ParseCategory(category); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err)
		}
	}

	var items []models.EventListItem
	err := s.uow.WithReadTx(ctx, func(ctx context.Context, st store.Store) error {
		events, err := st.Events().List(ctx)
		if err != nil {
			return err
		}
		items = make([]models.EventListItem, 0, len(events))
		for _, ev := range events {
			item := models.EventListItem{Event: ev}
			if cat != "" {
				price, err := s.pricing.ForCategory(ctx, st, cat, ev.BasePrice)
				if err != nil {
					return err
				}
				item.Price = &price
			}
			items = append(items, item)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Internal("list events", err)
	}
	return items, nil
}
