package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "tessera/internal/errors"
	"tessera/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAliceScenario(t *testing.T) {
	f := newFixture(t)
	card := f.issue(t, "alice")

	resp, err := f.sell(card.CardID, "concert")
	require.NoError(t, err)
	assert.True(t, resp.Price.Equal(dec("9")), "studente tariff wins over base price, got %s", resp.Price)

	_, err = f.sell(card.CardID, "concert")
	assert.ErrorIs(t, err, apperrors.ErrDuplicateRedemption)
	assert.Equal(t, apperrors.KindDuplicateRedemption, apperrors.KindOf(err))

	assert.Len(t, f.mem.Sales(), 1)
	assert.Len(t, f.mem.Redemptions(), 1)
}

func TestPricingFallsBackToBasePrice(t *testing.T) {
	f := newFixture(t)
	card := f.issue(t, "bob")

	resp, err := f.sell(card.CardID, "recital")
	require.NoError(t, err)
	assert.True(t, resp.Price.Equal(dec("15")))
}

func TestSellRecordsSaleAndRedemption(t *testing.T) {
	f := newFixture(t)
	card := f.issue(t, "alice")

	resp, err := f.svc.Sales.Sell(context.Background(), &models.SellRequest{
		CardID:     card.CardID,
		EventID:    "concert",
		Operator:   "op7",
		RegisterID: "cassa2",
	})
	require.NoError(t, err)

	sales := f.mem.Sales()
	require.Len(t, sales, 1)
	assert.Equal(t, resp.SaleID, sales[0].ID)
	assert.Equal(t, "cassa2", sales[0].RegisterID)
	assert.True(t, sales[0].PricePaid.Equal(dec("9")))
	assert.False(t, sales[0].Annulled)

	redemptions := f.mem.Redemptions()
	require.Len(t, redemptions, 1)
	assert.Equal(t, resp.RedemptionID, redemptions[0].ID)
	assert.Equal(t, resp.SaleID, redemptions[0].SaleID)
	assert.Equal(t, models.OutcomeOK, redemptions[0].Outcome)
	assert.Equal(t, "op7", redemptions[0].Operator)

	assert.Equal(t, []string{models.EventCardIssued, models.EventRedemptionRecorded}, f.pub.subjects())
	assert.Equal(t, 1, f.cache.invalidated)
}

func TestSellDefaultsRegisterID(t *testing.T) {
	f := newFixture(t)
	card := f.issue(t, "alice")

	_, err := f.sell(card.CardID, "concert")
	require.NoError(t, err)
	assert.Equal(t, "cassa1", f.mem.Sales()[0].RegisterID)
}

func TestSellErrorPriority(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.issue(t, "alice")

	_, err := f.sell("missing", "nowhere")
	assert.ErrorIs(t, err, apperrors.ErrCardNotFound, "card existence is checked before the event")

	_, err = f.sell(card.CardID, "nowhere")
	assert.ErrorIs(t, err, apperrors.ErrEventNotFound)

	_, err = f.svc.Revocations.Revoke(ctx, card.CardID, "lost", "op1")
	require.NoError(t, err)
	_, err = f.sell(card.CardID, "nowhere")
	assert.ErrorIs(t, err, apperrors.ErrCardRevoked, "card state is checked before the event")

	_, err = f.svc.Sales.Sell(ctx, &models.SellRequest{CardID: card.CardID, EventID: "concert"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	assert.Empty(t, f.mem.Sales())
	assert.Empty(t, f.mem.Redemptions())
}

func TestConcurrentSellExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	card := f.issue(t, "alice")

	const workers = 16
	var (
		wg         sync.WaitGroup
		successes  atomic.Int32
		duplicates atomic.Int32
		start      = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.sell(card.CardID, "concert")
			switch {
			case err == nil:
				successes.Add(1)
			case apperrors.KindOf(err) == apperrors.KindDuplicateRedemption:
				duplicates.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, successes.Load())
	assert.EqualValues(t, workers-1, duplicates.Load())
	assert.Len(t, f.mem.Sales(), 1)
	assert.Len(t, f.mem.Redemptions(), 1)
}

func TestSellContention(t *testing.T) {
	f := newFixture(t)
	card := f.issue(t, "alice")

	f.mem.SetLockTimeout(20 * time.Millisecond)
	release := f.mem.Hold()
	_, err := f.sell(card.CardID, "concert")
	release()

	assert.ErrorIs(t, err, apperrors.ErrContention)
	assert.Equal(t, apperrors.KindContention, apperrors.KindOf(err))
	assert.Empty(t, f.mem.Sales())

	_, err = f.sell(card.CardID, "concert")
	assert.NoError(t, err)
}

func TestListRedemptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := f.issue(t, "alice")
	bob := f.issue(t, "bob")

	_, err := f.sell(alice.CardID, "concert")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.sell(alice.CardID, "recital")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.sell(bob.CardID, "concert")
	require.NoError(t, err)

	all, err := f.svc.Sales.ListRedemptions(ctx, models.RedemptionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, bob.CardID, all[0].CardID, "newest first")
	assert.Equal(t, "Bob Verdi", all[0].PersonName)
	assert.Equal(t, "Concert", all[0].EventName)

	byCard, err := f.svc.Sales.ListRedemptions(ctx, models.RedemptionFilter{CardID: alice.CardID})
	require.NoError(t, err)
	assert.Len(t, byCard, 2)

	byEvent, err := f.svc.Sales.ListRedemptions(ctx, models.RedemptionFilter{EventID: "concert", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, byEvent, 1)
}
