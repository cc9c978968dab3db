package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"tessera/internal/credential"
	apperrors "tessera/internal/errors"
	"tessera/internal/models"
	"tessera/internal/service"
	"tessera/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueCard(t *testing.T) {
	f := newFixture(t)

	resp := f.issue(t, "alice")

	assert.Equal(t, "alice", resp.PersonID)
	assert.Equal(t, "2026-07-15", resp.ExpiryDate)

	claims, err := credential.NewSigner(f.clock.Now).Verify(resp.Token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, resp.CardID, claims.CardID)

	card, ok := f.mem.Card(resp.CardID)
	require.True(t, ok)
	assert.Equal(t, models.CardActive, card.State)
	assert.Equal(t, []string{models.EventCardIssued}, f.pub.subjects())
}

func TestIssueCardExplicitExpiry(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Cards.Issue(context.Background(), &models.IssueCardRequest{PersonID: "alice", ExpiryDate: "2025-09-30"})
	require.NoError(t, err)
	assert.Equal(t, "2025-09-30", resp.ExpiryDate)

	_, err = f.svc.Cards.Issue(context.Background(), &models.IssueCardRequest{PersonID: "bob", ExpiryDate: "30/09/2025"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestIssueCardUnknownPerson(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Cards.Issue(context.Background(), &models.IssueCardRequest{PersonID: "nobody"})
	assert.ErrorIs(t, err, apperrors.ErrPersonNotFound)
	assert.Equal(t, apperrors.KindNotFound, apperrors.KindOf(err))
	assert.Empty(t, f.pub.subjects())
}

func TestIssueCardWithoutSecretLeavesNoCard(t *testing.T) {
	mem := testutil.NewMemStore()
	mem.AddPerson(models.Person{ID: "alice", Name: "Alice", Category: models.CategoryStudent})
	svc := service.NewServices(mem, service.Options{})

	_, err := svc.Cards.Issue(context.Background(), &models.IssueCardRequest{PersonID: "alice"})
	assert.ErrorIs(t, err, apperrors.ErrSecretMissing)
	assert.Empty(t, mem.CardsOf("alice"))
}

func TestActiveCardExistsUntilRevoked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.issue(t, "alice")

	_, err := f.svc.Cards.Issue(ctx, &models.IssueCardRequest{PersonID: "alice"})
	require.ErrorIs(t, err, apperrors.ErrActiveCardExists)

	_, err = f.svc.Revocations.Revoke(ctx, first.CardID, "lost", "op1")
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	second := f.issue(t, "alice")
	assert.NotEqual(t, first.CardID, second.CardID)

	cards := f.mem.CardsOf("alice")
	require.Len(t, cards, 2)
	assert.Equal(t, models.CardRevoked, cards[0].State)
	assert.Equal(t, models.CardActive, cards[1].State)
}

func TestRevokeScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.issue(t, "alice")

	rv, err := f.svc.Revocations.Revoke(ctx, card.CardID, "lost", "op1")
	require.NoError(t, err)
	assert.Equal(t, "lost", rv.Reason)
	assert.Equal(t, "op1", rv.Operator)
	assert.Equal(t, t0, rv.CreatedAt)

	_, err = f.svc.Sales.Sell(ctx, &models.SellRequest{CardID: card.CardID, EventID: "concert", Operator: "op1"})
	assert.ErrorIs(t, err, apperrors.ErrCardRevoked)

	_, err = f.svc.Revocations.Revoke(ctx, card.CardID, "lost", "op1")
	assert.ErrorIs(t, err, apperrors.ErrCardNotActive)

	assert.Len(t, f.mem.Revocations(), 1)
	assert.Contains(t, f.pub.subjects(), models.EventCardRevoked)
}

func TestRevokeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Revocations.Revoke(ctx, "missing", "lost", "op1")
	assert.ErrorIs(t, err, apperrors.ErrCardNotFound)

	card := f.issue(t, "alice")
	_, err = f.svc.Revocations.Revoke(ctx, card.CardID, " ", "op1")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	stored, _ := f.mem.Card(card.CardID)
	assert.Equal(t, models.CardActive, stored.State)
}

func TestVerifyToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.issue(t, "alice")

	resp, err := f.svc.Verification.Verify(ctx, card.Token)
	require.NoError(t, err)
	assert.Equal(t, card.CardID, resp.CardID)
	assert.Equal(t, "Alice Bianchi", resp.PersonName)
	assert.Equal(t, models.CategoryStudent, resp.Category)

	_, err = f.svc.Verification.Verify(ctx, "UMA24|x|2030-01-01|sig")
	assert.ErrorIs(t, err, apperrors.ErrPrefixInvalid)

	_, err = f.svc.Revocations.Revoke(ctx, card.CardID, "stolen", "op1")
	require.NoError(t, err)
	_, err = f.svc.Verification.Verify(ctx, card.Token)
	assert.ErrorIs(t, err, apperrors.ErrCardRevoked)
}

func TestVerifyTokenForUnknownCard(t *testing.T) {
	f := newFixture(t)

	token, err := credential.NewSigner(f.clock.Now).Generate("ghost", "2030-01-01", testSecret)
	require.NoError(t, err)

	_, err = f.svc.Verification.Verify(context.Background(), token)
	assert.ErrorIs(t, err, apperrors.ErrCardNotFound)
}

func TestVerifyExpiredToken(t *testing.T) {
	f := newFixture(t)
	resp, err := f.svc.Cards.Issue(context.Background(), &models.IssueCardRequest{PersonID: "alice", ExpiryDate: "2025-07-16"})
	require.NoError(t, err)

	f.clock.Advance(48 * time.Hour)
	_, err = f.svc.Verification.Verify(context.Background(), resp.Token)
	assert.ErrorIs(t, err, apperrors.ErrExpired)
}

func TestRenewCard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := f.issue(t, "alice")

	renewed, err := f.svc.Cards.Renew(ctx, old.CardID, &models.RenewCardRequest{Operator: "op2"})
	require.NoError(t, err)
	assert.Equal(t, old.CardID, renewed.RevokedCardID)
	assert.NotEqual(t, old.CardID, renewed.Card.CardID)

	stored, _ := f.mem.Card(old.CardID)
	assert.Equal(t, models.CardRevoked, stored.State)

	revs := f.mem.Revocations()
	require.Len(t, revs, 1)
	assert.Equal(t, service.RenewalReason, revs[0].Reason)
	assert.Equal(t, "op2", revs[0].Operator)

	// Renewing the revoked card issues nothing new while another card is active.
	_, err = f.svc.Cards.Renew(ctx, old.CardID, &models.RenewCardRequest{Operator: "op2"})
	assert.ErrorIs(t, err, apperrors.ErrActiveCardExists)
	assert.Len(t, f.mem.CardsOf("alice"), 2)
	assert.Len(t, f.mem.Revocations(), 1)
}

func TestRenewRequiresOperator(t *testing.T) {
	f := newFixture(t)
	old := f.issue(t, "alice")

	_, err := f.svc.Cards.Renew(context.Background(), old.CardID, &models.RenewCardRequest{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.svc.Cards.Renew(context.Background(), "missing", &models.RenewCardRequest{Operator: "op"})
	assert.ErrorIs(t, err, apperrors.ErrCardNotFound)
}

func TestCardDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	card := f.issue(t, "alice")

	_, err := f.sell(card.CardID, "concert")
	require.NoError(t, err)

	details, err := f.svc.Cards.Get(ctx, card.CardID)
	require.NoError(t, err)
	require.NotNil(t, details.Person)
	assert.Equal(t, "Alice Bianchi", details.Person.Name)
	require.Len(t, details.Events, 2)
	assert.Equal(t, "concert", details.Events[0].EventID)
	assert.True(t, details.Events[0].Redeemed)
	assert.False(t, details.Events[1].Redeemed)

	_, err = f.svc.Cards.Get(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrCardNotFound)
}

func TestCardStatsAndExpiring(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Cards.Issue(ctx, &models.IssueCardRequest{PersonID: "alice", ExpiryDate: "2025-08-01"})
	require.NoError(t, err)
	bob := f.issue(t, "bob")
	_, err = f.svc.Revocations.Revoke(ctx, bob.CardID, "duplicate", "op1")
	require.NoError(t, err)

	stats, err := f.svc.Cards.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Total)
	assert.EqualValues(t, 1, stats.Active)
	assert.EqualValues(t, 1, stats.Revoked)
	assert.EqualValues(t, 1, stats.Revocations)
	assert.Equal(t, 1, stats.ByCategory[models.CategoryStudent])

	expiring, err := f.svc.Cards.Expiring(ctx, 30)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, "alice", expiring[0].PersonID)

	expiring, err = f.svc.Cards.Expiring(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, expiring)

	_, err = f.svc.Cards.Expiring(ctx, 1000)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	f.clock.Advance(30 * 24 * time.Hour)
	stats, err = f.svc.Cards.Stats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Expired)
	assert.EqualValues(t, 0, stats.Active)
}

type failingSearcher struct{ calls int }

func (s *failingSearcher) SearchCards(context.Context, string, models.CardState, int) ([]models.CardListItem, error) {
	s.calls++
	return nil, errors.New("index unavailable")
}

func TestSearchFallsBackToDatabase(t *testing.T) {
	mem := testutil.NewMemStore()
	mem.AddPerson(models.Person{ID: "p1", Name: "Giulia Neri", Category: models.CategoryTeacher})
	mem.AddPerson(models.Person{ID: "p2", Name: "Marco Rossi", Category: models.CategoryOther})
	searcher := &failingSearcher{}
	svc := service.NewServices(mem, service.Options{
		Secrets: credential.StaticSecret(testSecret),
		Search:  searcher,
	})
	ctx := context.Background()

	for _, id := range []string{"p1", "p2"} {
		_, err := svc.Cards.Issue(ctx, &models.IssueCardRequest{PersonID: id})
		require.NoError(t, err)
	}

	items, err := svc.Cards.Search(ctx, "neri", "", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, searcher.calls)
	require.Len(t, items, 1)
	assert.Equal(t, "Giulia Neri", items[0].PersonName)

	_, err = svc.Cards.List(ctx, models.CardFilter{State: "lost"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestPublishFailureDoesNotFailIssue(t *testing.T) {
	f := newFixture(t)
	f.pub.fail = true

	resp, err := f.svc.Cards.Issue(context.Background(), &models.IssueCardRequest{PersonID: "alice"})
	require.NoError(t, err)
	_, ok := f.mem.Card(resp.CardID)
	assert.True(t, ok)
}
