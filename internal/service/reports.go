package service

import (
	"context"
	"fmt"
	"time"

	"tessera/internal/clock"
	apperrors "tessera/internal/errors"
	"tessera/internal/logger"
	"tessera/internal/models"
	"tessera/internal/store"
)

const (
	defaultReportDays = 7
	maxReportDays     = 366
)

type ReportService struct {
	uow   store.UnitOfWork
	clock clock.Clock
	cache ReportCache
}

func NewReportService(uow store.UnitOfWork, clk clock.Clock, cache ReportCache) *ReportService {
	return &ReportService{uow: uow, clock: clk, cache: cache}
}

// Daily returns per-day totals for [from, to]. Empty to means today and
// empty from means a week before to.
func (s *ReportService) Daily(ctx context.Context, from, to string) ([]models.DailyReportRow, error) {
	if to == "" {
		to = s.clock.Now().UTC().Format(time.DateOnly)
	}
	toDate, err := time.Parse(time.DateOnly, to)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Errorf("invalid to date %q", to))
	}
	if from == "" {
		from = toDate.AddDate(0, 0, -(defaultReportDays - 1)).Format(time.DateOnly)
	}
	fromDate, err := time.Parse(time.DateOnly, from)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Errorf("invalid from date %q", from))
	}
	if fromDate.After(toDate) {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Errorf("from must not be after to"))
	}
	if toDate.Sub(fromDate) >= maxReportDays*24*time.Hour {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Errorf("range must be at most %d days", maxReportDays))
	}

	var report []models.DailyReportRow
	if s.cache != nil {
		hit, err := s.cache.GetDailyReport(ctx, from, to, &report)
		if err != nil {
			logger.WithContext(ctx).Warn("Report cache lookup failed", "error", err)
		} else if hit {
			return report, nil
		}
	}

	err = s.uow.WithReadTx(ctx, func(ctx context.Context, st store.Store) error {
		var err error
		report, err = st.Reports().Daily(ctx, from, to)
		return err
	})
	if err != nil {
		return nil, apperrors.Internal("daily report", err)
	}
	if report == nil {
		report = []models.DailyReportRow{}
	}

	if s.cache != nil {
		if err := s.cache.SetDailyReport(ctx, from, to, report); err != nil {
			logger.WithContext(ctx).Warn("Report cache store failed", "error", err)
		}
	}
	return report, nil
}
