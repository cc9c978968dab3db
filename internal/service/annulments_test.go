package service_test

import (
	"context"
	"testing"
	"time"

	apperrors "tessera/internal/errors"
	"tessera/internal/models"
	"tessera/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sellOne(t *testing.T, f *fixture) *models.SellResponse {
	t.Helper()
	card := f.issue(t, "alice")
	resp, err := f.sell(card.CardID, "concert")
	require.NoError(t, err)
	return resp
}

func TestAnnulWithinWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sold := sellOne(t, f)

	f.clock.Advance(6 * 24 * time.Hour)
	resp, err := f.svc.Annulments.Annul(ctx, sold.RedemptionID, "wrong event", "op2")
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, t0.Add(6*24*time.Hour), resp.AnnulledAt)

	rds := f.mem.Redemptions()
	require.Len(t, rds, 1)
	assert.True(t, rds[0].Annulled)
	require.NotNil(t, rds[0].AnnulledBy)
	assert.Equal(t, "op2", *rds[0].AnnulledBy)
	require.NotNil(t, rds[0].AnnulReason)
	assert.Equal(t, "wrong event", *rds[0].AnnulReason)
	assert.True(t, f.mem.Sales()[0].Annulled)

	_, err = f.svc.Annulments.Annul(ctx, sold.RedemptionID, "again", "op2")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyAnnulled)

	assert.Contains(t, f.pub.subjects(), models.EventRedemptionAnnulled)
}

func TestAnnulAfterWindow(t *testing.T) {
	f := newFixture(t)
	sold := sellOne(t, f)

	f.clock.Advance(8 * 24 * time.Hour)
	_, err := f.svc.Annulments.Annul(context.Background(), sold.RedemptionID, "late", "op2")
	assert.ErrorIs(t, err, apperrors.ErrWindowExpired)
	assert.False(t, f.mem.Redemptions()[0].Annulled)
	assert.False(t, f.mem.Sales()[0].Annulled)
}

func TestAnnulExactlyAtWindowEdge(t *testing.T) {
	f := newFixture(t)
	sold := sellOne(t, f)

	f.clock.Advance(service.AnnulmentWindow)
	_, err := f.svc.Annulments.Annul(context.Background(), sold.RedemptionID, "edge", "op2")
	assert.NoError(t, err)
}

func TestAnnulErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Annulments.Annul(ctx, "missing", "r", "op")
	assert.ErrorIs(t, err, apperrors.ErrRedemptionNotFound)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))

	card := f.issue(t, "alice")
	f.mem.AddRedemption(models.Redemption{
		ID:        "failed-1",
		CardID:    card.CardID,
		EventID:   "concert",
		Operator:  "op1",
		Outcome:   "card_revoked",
		CreatedAt: t0,
	})
	_, err = f.svc.Annulments.Annul(ctx, "failed-1", "r", "op")
	assert.ErrorIs(t, err, apperrors.ErrNotAnnullable)

	_, err = f.svc.Annulments.Annul(ctx, "failed-1", "", "op")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestResaleAfterAnnulment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.issue(t, "alice")

	first, err := f.sell(card.CardID, "concert")
	require.NoError(t, err)
	_, err = f.svc.Annulments.Annul(ctx, first.RedemptionID, "mistake", "op1")
	require.NoError(t, err)

	second, err := f.sell(card.CardID, "concert")
	require.NoError(t, err)
	assert.NotEqual(t, first.RedemptionID, second.RedemptionID)

	_, err = f.sell(card.CardID, "concert")
	assert.ErrorIs(t, err, apperrors.ErrDuplicateRedemption)
}

func TestListAnnullable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.issue(t, "alice")
	bob := f.issue(t, "bob")

	old, err := f.sell(alice.CardID, "concert")
	require.NoError(t, err)

	f.clock.Advance(3 * 24 * time.Hour)
	mid, err := f.sell(alice.CardID, "recital")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	recent, err := f.sell(bob.CardID, "concert")
	require.NoError(t, err)

	_, err = f.svc.Annulments.Annul(ctx, mid.RedemptionID, "mistake", "op1")
	require.NoError(t, err)

	list, err := f.svc.Annulments.ListAnnullable(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, recent.RedemptionID, list[0].ID)
	assert.Equal(t, old.RedemptionID, list[1].ID)

	list, err = f.svc.Annulments.ListAnnullable(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, recent.RedemptionID, list[0].ID)

	// Five more days push the first sale outside the window.
	f.clock.Advance(5 * 24 * time.Hour)
	list, err = f.svc.Annulments.ListAnnullable(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, recent.RedemptionID, list[0].ID)
}
