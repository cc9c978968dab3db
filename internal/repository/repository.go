package repository

import (
	"context"
	"database/sql"

	"tessera/internal/database"
	"tessera/internal/store"
)

// Repositories binds every store to one Querier, usually a *sql.Tx.
type Repositories struct {
	persons     *PersonRepository
	events      *EventRepository
	tariffs     *TariffRepository
	cards       *CardRepository
	sales       *SaleRepository
	redemptions *RedemptionRepository
	revocations *RevocationRepository
	reports     *ReportRepository
}

var _ store.Store = (*Repositories)(nil)

func NewRepositories(q database.Querier) *Repositories {
	return &Repositories{
		persons:     NewPersonRepository(q),
		events:      NewEventRepository(q),
		tariffs:     NewTariffRepository(q),
		cards:       NewCardRepository(q),
		sales:       NewSaleRepository(q),
		redemptions: NewRedemptionRepository(q),
		revocations: NewRevocationRepository(q),
		reports:     NewReportRepository(q),
	}
}

func (r *Repositories) Persons() store.PersonStore         { return r.persons }
func (r *Repositories) Events() store.EventStore           { return r.events }
func (r *Repositories) Tariffs() store.TariffStore         { return r.tariffs }
func (r *Repositories) Cards() store.CardStore             { return r.cards }
func (r *Repositories) Sales() store.SaleStore             { return r.sales }
func (r *Repositories) Redemptions() store.RedemptionStore { return r.redemptions }
func (r *Repositories) Revocations() store.RevocationStore { return r.revocations }
func (r *Repositories) Reports() store.ReportStore         { return r.reports }

// UnitOfWork runs store callbacks inside database transactions.
type UnitOfWork struct {
	db *database.DB
}

var _ store.UnitOfWork = (*UnitOfWork)(nil)

func NewUnitOfWork(db *database.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

func (u *UnitOfWork) WithTx(ctx context.Context, fn func(ctx context.Context, st store.Store) error) error {
	return u.db.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, NewRepositories(tx))
	})
}

func (u *UnitOfWork) WithReadTx(ctx context.Context, fn func(ctx context.Context, st store.Store) error) error {
	return u.db.WithReadTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, NewRepositories(tx))
	})
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
