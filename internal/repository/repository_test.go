package repository_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tessera/internal/clock"
	"tessera/internal/credential"
	"tessera/internal/database"
	apperrors "tessera/internal/errors"
	"tessera/internal/models"
	"tessera/internal/repository"
	"tessera/internal/service"
	"tessera/internal/store"
	"tessera/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type pgFixture struct {
	db    *database.DB
	uow   *repository.UnitOfWork
	svc   *service.Services
	clock *clock.Manual
}

func setup(t *testing.T, lockTimeout time.Duration) *pgFixture {
	t.Helper()
	db := testutil.OpenPostgres(t, lockTimeout)

	testutil.Exec(t, db.DB, `INSERT INTO persons (id, name, category) VALUES
		('alice', 'Alice Bianchi', 'studente'), ('bob', 'Bob Verdi', 'altro')`)
	testutil.Exec(t, db.DB, `INSERT INTO events (id, name, date, venue, base_price) VALUES
		('concert', 'Concert', '2025-07-20', 'Teatro Sanzio', 20.00)`)
	testutil.Exec(t, db.DB, `INSERT INTO tariffs (category, price) VALUES ('studente', 9.00)`)

	clk := clock.NewManual(time.Now().UTC().Truncate(time.Microsecond))
	uow := repository.NewUnitOfWork(db)
	return &pgFixture{
		db:    db,
		uow:   uow,
		clock: clk,
		svc: service.NewServices(uow, service.Options{
			Secrets: credential.StaticSecret(testSecret),
			Clock:   clk,
		}),
	}
}

func (f *pgFixture) issue(t *testing.T, personID string) *models.IssueCardResponse {
	t.Helper()
	resp, err := f.svc.Cards.Issue(context.Background(), &models.IssueCardRequest{PersonID: personID})
	require.NoError(t, err)
	return resp
}

func TestActiveCardIndex(t *testing.T) {
	f := setup(t, time.Second)
	ctx := context.Background()
	card := f.issue(t, "alice")

	_, err := f.svc.Cards.Issue(ctx, &models.IssueCardRequest{PersonID: "alice"})
	assert.ErrorIs(t, err, apperrors.ErrActiveCardExists)

	// a second active row is rejected by the partial index itself
	err = f.uow.WithTx(ctx, func(ctx context.Context, st store.Store) error {
		return st.Cards().Create(ctx, &models.Card{
			ID: "manual", PersonID: "alice", State: models.CardActive, Token: "x",
			ExpiryDate: card.ExpiryDate, CreatedAt: f.clock.Now(),
		})
	})
	assert.ErrorIs(t, err, apperrors.ErrActiveCardExists)

	_, err = f.svc.Revocations.Revoke(ctx, card.CardID, "lost", "op1")
	require.NoError(t, err)
	f.issue(t, "alice")
}

func TestSellAnnulResell(t *testing.T) {
	f := setup(t, time.Second)
	ctx := context.Background()
	card := f.issue(t, "alice")

	sale, err := f.svc.Sales.Sell(ctx, &models.SellRequest{CardID: card.CardID, EventID: "concert", Operator: "op1"})
	require.NoError(t, err)
	assert.True(t, sale.Price.Equal(decimal.RequireFromString("9")))

	_, err = f.svc.Sales.Sell(ctx, &models.SellRequest{CardID: card.CardID, EventID: "concert", Operator: "op1"})
	assert.ErrorIs(t, err, apperrors.ErrDuplicateRedemption)

	_, err = f.svc.Annulments.Annul(ctx, sale.RedemptionID, "wrong event", "op2")
	require.NoError(t, err)
	_, err = f.svc.Annulments.Annul(ctx, sale.RedemptionID, "again", "op2")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyAnnulled)

	_, err = f.svc.Sales.Sell(ctx, &models.SellRequest{CardID: card.CardID, EventID: "concert", Operator: "op1"})
	require.NoError(t, err)

	report, err := f.svc.Reports.Daily(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, int64(1), report[0].Redemptions)
	assert.Equal(t, int64(1), report[0].Annulled)
	assert.True(t, report[0].Revenue.Equal(decimal.RequireFromString("9")))
}

func TestBasePriceAndUnknownEvent(t *testing.T) {
	f := setup(t, time.Second)
	ctx := context.Background()
	card := f.issue(t, "bob")

	sale, err := f.svc.Sales.Sell(ctx, &models.SellRequest{CardID: card.CardID, EventID: "concert", Operator: "op1"})
	require.NoError(t, err)
	assert.True(t, sale.Price.Equal(decimal.RequireFromString("20")))

	_, err = f.svc.Sales.Sell(ctx, &models.SellRequest{CardID: card.CardID, EventID: "missing", Operator: "op1"})
	assert.ErrorIs(t, err, apperrors.ErrEventNotFound)
}

func TestConcurrentSellsOneWinner(t *testing.T) {
	f := setup(t, 5*time.Second)
	card := f.issue(t, "alice")

	var (
		wg   sync.WaitGroup
		ok   atomic.Int32
		dups atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Sales.Sell(context.Background(), &models.SellRequest{CardID: card.CardID, EventID: "concert", Operator: "op1"})
			switch {
			case err == nil:
				ok.Add(1)
			case apperrors.KindOf(err) == apperrors.KindDuplicateRedemption:
				dups.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(7), dups.Load())
}

func TestWriterLockTimeoutIsContention(t *testing.T) {
	f := setup(t, 100*time.Millisecond)
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- f.uow.WithTx(ctx, func(ctx context.Context, st store.Store) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	_, err := f.svc.Cards.Issue(ctx, &models.IssueCardRequest{PersonID: "bob"})
	assert.Equal(t, apperrors.KindContention, apperrors.KindOf(err))

	close(release)
	require.NoError(t, <-done)
	f.issue(t, "bob")
}

func TestCardQueries(t *testing.T) {
	f := setup(t, time.Second)
	ctx := context.Background()
	alice := f.issue(t, "alice")
	f.issue(t, "bob")

	items, err := f.svc.Cards.List(ctx, models.CardFilter{Query: "bianchi"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, alice.CardID, items[0].CardID)

	details, err := f.svc.Cards.Get(ctx, alice.CardID)
	require.NoError(t, err)
	require.Len(t, details.Events, 1)
	assert.False(t, details.Events[0].Redeemed)

	stats, err := f.svc.Cards.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(2), stats.Active)
}
