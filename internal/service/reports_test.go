package service_test

import (
	"context"
	"testing"
	"time"

	apperrors "tessera/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.issue(t, "alice")
	bob := f.issue(t, "bob")

	_, err := f.sell(alice.CardID, "concert")
	require.NoError(t, err)
	bobSale, err := f.sell(bob.CardID, "concert")
	require.NoError(t, err)
	_, err = f.svc.Annulments.Annul(ctx, bobSale.RedemptionID, "refund", "op1")
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	_, err = f.sell(bob.CardID, "recital")
	require.NoError(t, err)

	report, err := f.svc.Reports.Daily(ctx, "2025-07-15", "2025-07-16")
	require.NoError(t, err)
	require.Len(t, report, 2)

	day1 := report[0]
	assert.Equal(t, "2025-07-15", day1.Day)
	assert.EqualValues(t, 1, day1.Redemptions)
	assert.EqualValues(t, 1, day1.Annulled)
	assert.True(t, day1.Revenue.Equal(dec("9")), "annulled sale excluded, got %s", day1.Revenue)
	assert.Equal(t, 1, day1.ByCategory["studente"])

	day2 := report[1]
	assert.Equal(t, "2025-07-16", day2.Day)
	assert.True(t, day2.Revenue.Equal(dec("15")))
	assert.Equal(t, 1, day2.ByCategory["altro"])
}

func TestDailyReportUsesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.issue(t, "alice")
	_, err := f.sell(card.CardID, "concert")
	require.NoError(t, err)

	first, err := f.svc.Reports.Daily(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Len(t, f.cache.reports, 1, "default range is the last week")
	assert.Contains(t, f.cache.reports, "2025-07-09:2025-07-15")

	second, err := f.svc.Reports.Daily(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = f.sell(card.CardID, "recital")
	require.NoError(t, err)
	assert.Empty(t, f.cache.reports, "a sale drops cached reports")
}

func TestDailyReportValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Reports.Daily(ctx, "2025-07-20", "2025-07-10")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.svc.Reports.Daily(ctx, "yesterday", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.svc.Reports.Daily(ctx, "2024-01-01", "2025-07-15")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	report, err := f.svc.Reports.Daily(ctx, "2025-07-01", "2025-07-02")
	require.NoError(t, err)
	assert.NotNil(t, report)
	assert.Empty(t, report)
}
