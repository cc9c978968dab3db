package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"tessera/internal/database"
	apperrors "tessera/internal/errors"
	"tessera/internal/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

type CardRepository struct {
	db database.Querier
}

func NewCardRepository(db database.Querier) *CardRepository {
	return &CardRepository{db: db}
}

const cardColumns = `id, person_id, state, token, to_char(expiry_date, 'YYYY-MM-DD'), created_at`

func scanCard(row interface{ Scan(...interface{}) error }) (*models.Card, error) {
	c := &models.Card{}
	if err := row.Scan(&c.ID, &c.PersonID, &c.State, &c.Token, &c.ExpiryDate, &c.CreatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CardRepository) GetByID(ctx context.Context, cardID string) (*models.Card, error) {
	card, err := scanCard(r.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = $1`, cardID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get card: %w", err)
	}
	return card, nil
}

func (r *CardRepository) GetActiveByPerson(ctx context.Context, personID string) (*models.Card, error) {
	card, err := scanCard(r.db.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE person_id = $1 AND state = 'active'`, personID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active card: %w", err)
	}
	return card, nil
}

func (r *CardRepository) Create(ctx context.Context, card *models.Card) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cards (id, person_id, state, token, expiry_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		card.ID, card.PersonID, string(card.State), card.Token, card.ExpiryDate, card.CreatedAt)
	if database.IsUniqueViolation(err, database.ActiveCardIndex) {
		return apperrors.Wrap(apperrors.ErrActiveCardExists, err)
	}
	if err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}

func (r *CardRepository) UpdateState(ctx context.Context, cardID string, state models.CardState) error {
	res, err := r.db.ExecContext(ctx, `UPDATE cards SET state = $2 WHERE id = $1`, cardID, string(state))
	if err != nil {
		return fmt.Errorf("update card state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.ErrCardNotFound
	}
	return nil
}

const cardListColumns = `c.id, c.person_id, p.name, p.category, c.state, to_char(c.expiry_date, 'YYYY-MM-DD'), c.created_at`

func scanCardList(rows *sql.Rows) ([]models.CardListItem, error) {
	defer rows.Close()
	items := []models.CardListItem{}
	for rows.Next() {
		var it models.CardListItem
		if err := rows.Scan(&it.CardID, &it.PersonID, &it.PersonName, &it.Category, &it.State, &it.ExpiryDate, &it.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *CardRepository) List(ctx context.Context, filter models.CardFilter) ([]models.CardListItem, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.State != "" {
		args = append(args, string(filter.State))
		conditions = append(conditions, fmt.Sprintf("c.state = $%d", len(args)))
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		conditions = append(conditions, fmt.Sprintf("(p.name ILIKE $%d OR c.id ILIKE $%d)", len(args), len(args)))
	}

	query := `SELECT ` + cardListColumns + ` FROM cards c JOIN persons p ON p.id = c.person_id`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, clampLimit(filter.Limit, defaultListLimit, maxListLimit), max(filter.Offset, 0))
	query += fmt.Sprintf(" ORDER BY c.created_at DESC, c.id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return scanCardList(rows)
}

func (r *CardRepository) ListExpiring(ctx context.Context, from, to string) ([]models.CardListItem, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+cardListColumns+`
		FROM cards c JOIN persons p ON p.id = c.person_id
		WHERE c.state = 'active' AND c.expiry_date BETWEEN $1 AND $2
		ORDER BY c.expiry_date, p.name`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list expiring cards: %w", err)
	}
	return scanCardList(rows)
}

func (r *CardRepository) Stats(ctx context.Context, today string) (models.CardStats, error) {
	stats := models.CardStats{ByCategory: map[models.Category]int{}}
	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE state = 'active' AND expiry_date >= $1),
			COUNT(*) FILTER (WHERE state = 'revoked'),
			COUNT(*) FILTER (WHERE state = 'active' AND expiry_date < $1)
		FROM cards`, today).Scan(&stats.Total, &stats.Active, &stats.Revoked, &stats.Expired)
	if err != nil {
		return stats, fmt.Errorf("card stats: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT p.category, COUNT(*)
		FROM cards c JOIN persons p ON p.id = c.person_id
		WHERE c.state = 'active' AND c.expiry_date >= $1
		GROUP BY p.category`, today)
	if err != nil {
		return stats, fmt.Errorf("card stats by category: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			category models.Category
			n        int
		)
		if err := rows.Scan(&category, &n); err != nil {
			return stats, err
		}
		stats.ByCategory[category] = n
	}
	return stats, rows.Err()
}
