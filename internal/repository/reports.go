package repository

import (
	"context"
	"fmt"

	"tessera/internal/database"
	"tessera/internal/models"

	"github.com/shopspring/decimal"
)

type ReportRepository struct {
	db database.Querier
}

func NewReportRepository(db database.Querier) *ReportRepository {
	return &ReportRepository{db: db}
}

// Daily aggregates ok redemptions per UTC day in [from, to].
func (r *ReportRepository) Daily(ctx context.Context, from, to string) ([]models.DailyReportRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			to_char(r.created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
			p.category,
			COUNT(*) FILTER (WHERE NOT r.annulled),
			COUNT(*) FILTER (WHERE r.annulled),
			COALESCE(SUM(s.price_paid) FILTER (WHERE NOT s.annulled), 0)
		FROM redemptions r
		JOIN cards c ON c.id = r.card_id
		JOIN persons p ON p.id = c.person_id
		LEFT JOIN sales s ON s.id = r.sale_id
		WHERE r.outcome = 'ok'
			AND r.created_at >= ($1::date)::timestamp AT TIME ZONE 'UTC'
			AND r.created_at < ($2::date + 1)::timestamp AT TIME ZONE 'UTC'
		GROUP BY day, p.category
		ORDER BY day`, from, to)
	if err != nil {
		return nil, fmt.Errorf("daily report: %w", err)
	}
	defer rows.Close()

	var (
		report []models.DailyReportRow
		byDay  = map[string]int{}
	)
	for rows.Next() {
		var (
			day, category   string
			valid, annulled int64
			revenue         decimal.Decimal
		)
		if err := rows.Scan(&day, &category, &valid, &annulled, &revenue); err != nil {
			return nil, err
		}
		i, ok := byDay[day]
		if !ok {
			report = append(report, models.DailyReportRow{Day: day, Revenue: decimal.Zero, ByCategory: map[string]int{}})
			i = len(report) - 1
			byDay[day] = i
		}
		row := &report[i]
		row.Redemptions += valid
		row.Annulled += annulled
		row.Revenue = row.Revenue.Add(revenue)
		row.ByCategory[category] += int(valid)
	}
	return report, rows.Err()
}
