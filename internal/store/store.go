// Package store declares the persistence contracts the card services run
// against. Implementations enforce the uniqueness rules themselves: a
// second active card for a person and a second valid redemption for a
// (card, event) pair are rejected at insert time.
package store

import (
	"context"
	"time"

	"tessera/internal/models"

	"github.com/shopspring/decimal"
)

// UnitOfWork runs fn against a transaction-scoped Store. WithTx commits when
// fn returns nil and rolls back otherwise; write intent is acquired on
// entry. WithReadTx gives fn a read-only snapshot.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, st Store) error) error
	WithReadTx(ctx context.Context, fn func(ctx context.Context, st Store) error) error
}

// Store groups the tx-scoped stores.
type Store interface {
	Persons() PersonStore
	Events() EventStore
	Tariffs() TariffStore
	Cards() CardStore
	Sales() SaleStore
	Redemptions() RedemptionStore
	Revocations() RevocationStore
	Reports() ReportStore
}

// PersonStore is owned by the registration side; read-only here.
type PersonStore interface {
	Exists(ctx context.Context, personID string) (bool, error)
	// CategoryOf returns errors.ErrPersonNotFound for unknown persons.
	CategoryOf(ctx context.Context, personID string) (models.Category, error)
	GetByID(ctx context.Context, personID string) (*models.Person, error)
}

// EventStore is read-only here.
type EventStore interface {
	// BasePriceOf returns errors.ErrEventNotFound for unknown events.
	BasePriceOf(ctx context.Context, eventID string) (decimal.Decimal, error)
	List(ctx context.Context) ([]models.Event, error)
}

// TariffStore is read-only here.
type TariffStore interface {
	TariffFor(ctx context.Context, category models.Category) (decimal.Decimal, bool, error)
}

type CardStore interface {
	// GetByID returns nil, nil when the card does not exist.
	GetByID(ctx context.Context, cardID string) (*models.Card, error)
	GetActiveByPerson(ctx context.Context, personID string) (*models.Card, error)
	// Create returns errors.ErrActiveCardExists if the person already holds
	// an active card.
	Create(ctx context.Context, card *models.Card) error
	UpdateState(ctx context.Context, cardID string, state models.CardState) error
	List(ctx context.Context, filter models.CardFilter) ([]models.CardListItem, error)
	ListExpiring(ctx context.Context, from, to string) ([]models.CardListItem, error)
	Stats(ctx context.Context, today string) (models.CardStats, error)
}

type SaleStore interface {
	Create(ctx context.Context, sale *models.Sale) error
	MarkAnnulled(ctx context.Context, saleID string) error
}

type RedemptionStore interface {
	// Create returns errors.ErrDuplicateRedemption if a non-annulled ok
	// redemption already exists for the same (card, event).
	Create(ctx context.Context, r *models.Redemption) error
	// GetByID returns nil, nil when the redemption does not exist.
	GetByID(ctx context.Context, redemptionID string) (*models.Redemption, error)
	Annul(ctx context.Context, redemptionID string, a models.Annulment) error
	// ListAnnullable returns ok, non-annulled redemptions created at or
	// after since, newest first.
	ListAnnullable(ctx context.Context, since time.Time, limit int) ([]models.Redemption, error)
	List(ctx context.Context, filter models.RedemptionFilter) ([]models.Redemption, error)
	EventUsage(ctx context.Context, cardID string) ([]models.CardEventUsage, error)
}

type RevocationStore interface {
	Create(ctx context.Context, r *models.Revocation) error
	ListByCard(ctx context.Context, cardID string) ([]models.Revocation, error)
	Count(ctx context.Context) (int64, error)
}

type ReportStore interface {
	Daily(ctx context.Context, from, to string) ([]models.DailyReportRow, error)
}
