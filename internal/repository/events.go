package repository

import (
	"context"
	"database/sql"
	"fmt"

	"tessera/internal/database"
	apperrors "tessera/internal/errors"
	"tessera/internal/models"

	"github.com/shopspring/decimal"
)

type EventRepository struct {
	db database.Querier
}

func NewEventRepository(db database.Querier) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) BasePriceOf(ctx context.Context, eventID string) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := r.db.QueryRowContext(ctx, `SELECT base_price FROM events WHERE id = $1`, eventID).Scan(&price)
	if err == sql.ErrNoRows {
		return decimal.Zero, apperrors.ErrEventNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get event price: %w", err)
	}
	return price, nil
}

func (r *EventRepository) List(ctx context.Context) ([]models.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, to_char(date, 'YYYY-MM-DD'), venue, base_price
		FROM events
		ORDER BY date, name`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.Name, &e.Date, &e.Venue, &e.BasePrice); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Create is used by the seed tool; events are otherwise managed elsewhere.
func (r *EventRepository) Create(ctx context.Context, e *models.Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO events (id, name, date, venue, base_price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.Name, e.Date, e.Venue, e.BasePrice)
	return err
}

type TariffRepository struct {
	db database.Querier
}

func NewTariffRepository(db database.Querier) *TariffRepository {
	return &TariffRepository{db: db}
}

func (r *TariffRepository) TariffFor(ctx context.Context, category models.Category) (decimal.Decimal, bool, error) {
	var price decimal.Decimal
	err := r.db.QueryRowContext(ctx, `SELECT price FROM tariffs WHERE category = $1`, string(category)).Scan(&price)
	if err == sql.ErrNoRows {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("get tariff: %w", err)
	}
	return price, true, nil
}

func (r *TariffRepository) Upsert(ctx context.Context, t models.Tariff) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tariffs (category, price) VALUES ($1, $2)
		ON CONFLICT (category) DO UPDATE SET price = EXCLUDED.price`,
		string(t.Category), t.Price)
	return err
}
