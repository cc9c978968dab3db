package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"tessera/internal/database"
	apperrors "tessera/internal/errors"
	"tessera/internal/models"
)

type SaleRepository struct {
	db database.Querier
}

func NewSaleRepository(db database.Querier) *SaleRepository {
	return &SaleRepository{db: db}
}

func (r *SaleRepository) Create(ctx context.Context, s *models.Sale) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sales (id, card_id, event_id, price_paid, register_id, annulled, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)`,
		s.ID, s.CardID, s.EventID, s.PricePaid, s.RegisterID, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert sale: %w", err)
	}
	return nil
}

func (r *SaleRepository) MarkAnnulled(ctx context.Context, saleID string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE sales SET annulled = TRUE WHERE id = $1`, saleID); err != nil {
		return fmt.Errorf("annul sale: %w", err)
	}
	return nil
}

type RedemptionRepository struct {
	db database.Querier
}

func NewRedemptionRepository(db database.Querier) *RedemptionRepository {
	return &RedemptionRepository{db: db}
}

func (r *RedemptionRepository) Create(ctx context.Context, rd *models.Redemption) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO redemptions (id, card_id, event_id, sale_id, operator, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rd.ID, rd.CardID, rd.EventID, nullString(rd.SaleID), rd.Operator, rd.Outcome, rd.CreatedAt)
	if database.IsUniqueViolation(err, database.ValidRedemptionIndex) {
		return apperrors.Wrap(apperrors.ErrDuplicateRedemption, err)
	}
	if err != nil {
		return fmt.Errorf("insert redemption: %w", err)
	}
	return nil
}

const redemptionColumns = `r.id, r.card_id, r.event_id, r.sale_id, r.operator, r.outcome, r.created_at,
	r.annulled, r.annulled_at, r.annulled_by, r.annul_reason, e.name, p.name`

const redemptionFrom = `
	FROM redemptions r
	JOIN events e ON e.id = r.event_id
	JOIN cards c ON c.id = r.card_id
	JOIN persons p ON p.id = c.person_id`

func scanRedemption(row interface{ Scan(...interface{}) error }) (*models.Redemption, error) {
	var (
		rd     models.Redemption
		saleID sql.NullString
	)
	err := row.Scan(&rd.ID, &rd.CardID, &rd.EventID, &saleID, &rd.Operator, &rd.Outcome, &rd.CreatedAt,
		&rd.Annulled, &rd.AnnulledAt, &rd.AnnulledBy, &rd.AnnulReason, &rd.EventName, &rd.PersonName)
	if err != nil {
		return nil, err
	}
	rd.SaleID = saleID.String
	return &rd, nil
}

func (r *RedemptionRepository) GetByID(ctx context.Context, redemptionID string) (*models.Redemption, error) {
	rd, err := scanRedemption(r.db.QueryRowContext(ctx,
		`SELECT `+redemptionColumns+redemptionFrom+` WHERE r.id = $1`, redemptionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get redemption: %w", err)
	}
	return rd, nil
}

func (r *RedemptionRepository) Annul(ctx context.Context, redemptionID string, a models.Annulment) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE redemptions
		SET annulled = TRUE, annulled_at = $2, annulled_by = $3, annul_reason = $4
		WHERE id = $1 AND NOT annulled`,
		redemptionID, a.At, a.Operator, a.Reason)
	if err != nil {
		return fmt.Errorf("annul redemption: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.ErrAlreadyAnnulled
	}
	return nil
}

func (r *RedemptionRepository) ListAnnullable(ctx context.Context, since time.Time, limit int) ([]models.Redemption, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+redemptionColumns+redemptionFrom+`
		WHERE r.outcome = 'ok' AND NOT r.annulled AND r.created_at >= $1
		ORDER BY r.created_at DESC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list annullable redemptions: %w", err)
	}
	return scanRedemptions(rows)
}

func (r *RedemptionRepository) List(ctx context.Context, filter models.RedemptionFilter) ([]models.Redemption, error) {
	var (
		conditions []string
		args       []interface{}
	)
	if filter.CardID != "" {
		args = append(args, filter.CardID)
		conditions = append(conditions, fmt.Sprintf("r.card_id = $%d", len(args)))
	}
	if filter.EventID != "" {
		args = append(args, filter.EventID)
		conditions = append(conditions, fmt.Sprintf("r.event_id = $%d", len(args)))
	}
	if filter.Operator != "" {
		args = append(args, filter.Operator)
		conditions = append(conditions, fmt.Sprintf("r.operator = $%d", len(args)))
	}
	if !filter.IncludeAnnulled {
		conditions = append(conditions, "NOT r.annulled")
	}

	query := `SELECT ` + redemptionColumns + redemptionFrom
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	args = append(args, clampLimit(filter.Limit, defaultListLimit, maxListLimit), max(filter.Offset, 0))
	query += fmt.Sprintf(" ORDER BY r.created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	return scanRedemptions(rows)
}

func scanRedemptions(rows *sql.Rows) ([]models.Redemption, error) {
	defer rows.Close()
	list := []models.Redemption{}
	for rows.Next() {
		rd, err := scanRedemption(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *rd)
	}
	return list, rows.Err()
}

// EventUsage lists every event with whether cardID holds a valid
// redemption for it.
func (r *RedemptionRepository) EventUsage(ctx context.Context, cardID string) ([]models.CardEventUsage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.name, to_char(e.date, 'YYYY-MM-DD'),
			EXISTS (
				SELECT 1 FROM redemptions r
				WHERE r.card_id = $1 AND r.event_id = e.id AND r.outcome = 'ok' AND NOT r.annulled
			)
		FROM events e
		ORDER BY e.date, e.name`, cardID)
	if err != nil {
		return nil, fmt.Errorf("card event usage: %w", err)
	}
	defer rows.Close()

	usage := []models.CardEventUsage{}
	for rows.Next() {
		var u models.CardEventUsage
		if err := rows.Scan(&u.EventID, &u.Name, &u.Date, &u.Redeemed); err != nil {
			return nil, err
		}
		usage = append(usage, u)
	}
	return usage, rows.Err()
}

type RevocationRepository struct {
	db database.Querier
}

func NewRevocationRepository(db database.Querier) *RevocationRepository {
	return &RevocationRepository{db: db}
}

func (r *RevocationRepository) Create(ctx context.Context, rv *models.Revocation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO revocations (id, card_id, reason, operator, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rv.ID, rv.CardID, rv.Reason, rv.Operator, rv.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert revocation: %w", err)
	}
	return nil
}

func (r *RevocationRepository) ListByCard(ctx context.Context, cardID string) ([]models.Revocation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, card_id, reason, operator, created_at
		FROM revocations
		WHERE card_id = $1
		ORDER BY created_at`, cardID)
	if err != nil {
		return nil, fmt.Errorf("list revocations: %w", err)
	}
	defer rows.Close()

	list := []models.Revocation{}
	for rows.Next() {
		var rv models.Revocation
		if err := rows.Scan(&rv.ID, &rv.CardID, &rv.Reason, &rv.Operator, &rv.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, rv)
	}
	return list, rows.Err()
}

func (r *RevocationRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM revocations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count revocations: %w", err)
	}
	return n, nil
}
