package service

import (
	"context"

	apperrors "tessera/internal/errors"
	"tessera/internal/models"
	"tessera/internal/store"

	"github.com/shopspring/decimal"
)

// PricingResolver picks the price a card pays for an event: the tariff of
// the holder's category if one exists, else the event's base price.
type PricingResolver struct{}

func NewPricingResolver() *PricingResolver {
	return &PricingResolver{}
}

func (p *PricingResolver) Price(ctx context.Context, st store.Store, cardID, eventID string) (decimal.Decimal, error) {
	base, err := st.Events().BasePriceOf(ctx, eventID)
	if err != nil {
		return decimal.Zero, apperrors.Internal("get event price", err)
	}

	card, err := st.Cards().GetByID(ctx, cardID)
	if err != nil {
		return decimal.Zero, apperrors.Internal("get card", err)
	}
	if card == nil {
		return decimal.Zero, apperrors.ErrCardNotFound
	}

	category, err := st.Persons().CategoryOf(ctx, card.PersonID)
	if err != nil {
		return decimal.Zero, apperrors.Internal("get person category", err)
	}

	return p.ForCategory(ctx, st, category, base)
}

// ForCategory applies the category tariff over an already known base price.
func (p *PricingResolver) ForCategory(ctx context.Context, st store.Store, category models.Category, base decimal.Decimal) (decimal.Decimal, error) {
	tariff, ok, err := st.Tariffs().TariffFor(ctx, category)
	if err != nil {
		return decimal.Zero, apperrors.Internal("get tariff", err)
	}
	if ok {
		return tariff, nil
	}
	return base, nil
}
