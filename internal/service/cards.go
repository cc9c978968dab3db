package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tessera/internal/clock"
	"tessera/internal/credential"
	apperrors "tessera/internal/errors"
	"tessera/internal/logger"
	"tessera/internal/models"
	"tessera/internal/store"
)

// RenewalReason is recorded on the revocation row a renewal writes.
const RenewalReason = "renewal"

// CardStateMachine owns the active -> revoked lifecycle. Its methods run
// inside a unit supplied by the caller and never open their own.
type CardStateMachine struct {
	signer *credential.Signer
	clock  clock.Clock
}

func NewCardStateMachine(signer *credential.Signer, clk clock.Clock) *CardStateMachine {
	return &CardStateMachine{signer: signer, clock: clk}
}

// CheckValidity returns the card if it exists and is active.
func (m *CardStateMachine) CheckValidity(ctx context.Context, st store.Store, cardID string) (*models.Card, error) {
	card, err := st.Cards().GetByID(ctx, cardID)
	if err != nil {
		return nil, apperrors.Internal("get card", err)
	}
	if card == nil {
		return nil, apperrors.ErrCardNotFound
	}
	if card.State == models.CardRevoked {
		return nil, apperrors.ErrCardRevoked
	}
	if !card.IsActive() {
		return nil, apperrors.ErrCardNotActive
	}
	return card, nil
}

// AssertIssuable fails with ActiveCardExists if personID already holds an
// active card. The unique index on cards backs this up at insert time.
func (m *CardStateMachine) AssertIssuable(ctx context.Context, st store.Store, personID string) error {
	existing, err := st.Cards().GetActiveByPerson(ctx, personID)
	if err != nil {
		return apperrors.Internal("get active card", err)
	}
	if existing != nil {
		return apperrors.ErrActiveCardExists
	}
	return nil
}

// Issue creates and signs a new active card for personID.
func (m *CardStateMachine) Issue(ctx context.Context, st store.Store, personID, expiryDate, secretHex string) (*models.Card, error) {
	exists, err := st.Persons().Exists(ctx, personID)
	if err != nil {
		return nil, apperrors.Internal("check person", err)
	}
	if !exists {
		return nil, apperrors.ErrPersonNotFound
	}

	if err := m.AssertIssuable(ctx, st, personID); err != nil {
		return nil, err
	}

	cardID := newID()
	token, err := m.signer.Generate(cardID, expiryDate, secretHex)
	if err != nil {
		return nil, err
	}

	card, err := models.NewCard(cardID, personID, token, expiryDate, m.clock.Now())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err)
	}
	if err := st.Cards().Create(ctx, card); err != nil {
		return nil, apperrors.Internal("create card", err)
	}
	return card, nil
}

// Revoke moves an active card to revoked. Revoked is terminal.
func (m *CardStateMachine) Revoke(ctx context.Context, st store.Store, cardID string) (*models.Card, error) {
	card, err := st.Cards().GetByID(ctx, cardID)
	if err != nil {
		return nil, apperrors.Internal("get card", err)
	}
	if card == nil {
		return nil, apperrors.ErrCardNotFound
	}
	if !card.IsActive() {
		return nil, apperrors.ErrCardNotActive
	}
	if err := st.Cards().UpdateState(ctx, cardID, models.CardRevoked); err != nil {
		return nil, apperrors.Internal("revoke card", err)
	}
	card.State = models.CardRevoked
	return card, nil
}

type CardService struct {
	uow          store.UnitOfWork
	machine      *CardStateMachine
	secrets      credential.SecretProvider
	clock        clock.Clock
	search       CardSearcher
	events       *eventSink
	validityDays int
}

func NewCardService(uow store.UnitOfWork, machine *CardStateMachine, opts Options, events *eventSink) *CardService {
	return &CardService{
		uow:          uow,
		machine:      machine,
		secrets:      opts.Secrets,
		clock:        opts.Clock,
		search:       opts.Search,
		events:       events,
		validityDays: opts.CardValidityDays,
	}
}

func (s *CardService) resolveExpiry(expiry string) (string, error) {
	if strings.TrimSpace(expiry) == "" {
		return credential.ExpiryFrom(s.clock.Now(), s.validityDays), nil
	}
	parsed, err := models.ParseExpiryDate(expiry)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInvalidInput, err)
	}
	return parsed, nil
}

func (s *CardService) currentSecret() string {
	secret, _ := s.secrets.CurrentSecret()
	return secret
}

// Issue выпускает новую карту для участника
func (s *CardService) Issue(ctx context.Context, req *models.IssueCardRequest) (resp *models.IssueCardResponse, err error) {
	defer func() { finish(ctx, "issue", err, "person_id", req.PersonID) }()

	if strings.TrimSpace(req.PersonID) == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Errorf("person_id is required"))
	}
	expiry, err := s.resolveExpiry(req.ExpiryDate)
	if err != nil {
		return nil, err
	}

	var card *models.Card
	err = s.uow.WithTx(ctx, func(ctx context.Context, st store.Store) error {
		card, err = s.machine.Issue(ctx, st, req.PersonID, expiry, s.currentSecret())
		return err
	})
	if err != nil {
		return nil, apperrors.Internal("issue card", err)
	}

	s.events.publish(ctx, models.EventCardIssued, models.CardIssuedEvent{
		CardID:     card.ID,
		PersonID:   card.PersonID,
		ExpiryDate: card.ExpiryDate,
		Operator:   req.Operator,
		Timestamp:  card.CreatedAt,
	})

	logger.WithContext(ctx).Info("Card issued", "card_id", card.ID, "person_id", card.PersonID, "expiry_date", card.ExpiryDate)
	return issueResponse(card), nil
}

func issueResponse(card *models.Card) *models.IssueCardResponse {
	return &models.IssueCardResponse{
		CardID:     card.ID,
		PersonID:   card.PersonID,
		Token:      card.Token,
		ExpiryDate: card.ExpiryDate,
	}
}

// Renew revokes cardID if it is still active and issues a replacement for
// the same person in one unit.
func (s *CardService) Renew(ctx context.Context, cardID string, req *models.RenewCardRequest) (resp *models.RenewCardResponse, err error) {
	defer func() { finish(ctx, "renew", err, "card_id", cardID) }()

	if strings.TrimSpace(req.Operator) == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Errorf("operator is required"))
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = RenewalReason
	}
	expiry, err := s.resolveExpiry(req.ExpiryDate)
	if err != nil {
		return nil, err
	}

	var old, fresh *models.Card
	err = s.uow.WithTx(ctx, func(ctx context.Context, st store.Store) error {
		old, err = st.Cards().GetByID(ctx, cardID)
		if err != nil {
			return apperrors.Internal("get card", err)
		}
		if old == nil {
			return apperrors.ErrCardNotFound
		}

		if old.IsActive() {
			if _, err := s.machine.Revoke(ctx, st, cardID); err != nil {
				return err
			}
			rv, err := models.NewRevocation(newID(), cardID, reason, req.Operator, s.clock.Now())
			if err != nil {
				return apperrors.Wrap(apperrors.ErrInvalidInput, err)
			}
			if err := st.Revocations().Create(ctx, rv); err != nil {
				return apperrors.Internal("create revocation", err)
			}
		}

		fresh, err = s.machine.Issue(ctx, st, old.PersonID, expiry, s.currentSecret())
		return err
	})
	if err != nil {
		return nil, apperrors.Internal("renew card", err)
	}

	s.events.publish(ctx, models.EventCardRenewed, models.CardRenewedEvent{
		OldCardID:  old.ID,
		NewCardID:  fresh.ID,
		PersonID:   fresh.PersonID,
		ExpiryDate: fresh.ExpiryDate,
		Operator:   req.Operator,
		Timestamp:  fresh.CreatedAt,
	})

	logger.WithContext(ctx).Info("Card renewed", "old_card_id", old.ID, "card_id", fresh.ID)
	return &models.RenewCardResponse{RevokedCardID: old.ID, Card: *issueResponse(fresh)}, nil
}

// Get возвращает карту с владельцем, отметками о погашении и отзывами
func (s *CardService) Get(ctx context.Context, cardID string) (*models.CardDetails, error) {
	var details *models.CardDetails
	err := s.uow.WithReadTx(ctx, func(ctx context.Context, st store.Store) error {
		card, err := st.Cards().GetByID(ctx, cardID)
		if err != nil {
			return apperrors.Internal("get card", err)
		}
		if card == nil {
			return apperrors.ErrCardNotFound
		}
		person, err := st.Persons().GetByID(ctx, card.PersonID)
		if err != nil {
			return apperrors.Internal("get person", err)
		}
		usage, err := st.Redemptions().EventUsage(ctx, cardID)
		if err != nil {
			return apperrors.Internal("card event usage", err)
		}
		revocations, err := st.Revocations().ListByCard(ctx, cardID)
		if err != nil {
			return apperrors.Internal("list revocations", err)
		}
		details = &models.CardDetails{Card: *card, Person: person, Events: usage, Revocations: revocations}
		return nil
	})
	if err != nil {
		return nil, apperrors.Internal("get card details", err)
	}
	return details, nil
}

func (s *CardService) List(ctx context.Context, filter models.CardFilter) ([]models.CardListItem, error) {
	if filter.State != "" && filter.State != models.CardActive && filter.State != models.CardRevoked {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Errorf("unknown state %q", filter.State))
	}

	var items []models.CardListItem
	err := s.uow.WithReadTx(ctx, func(ctx context.Context, st store.Store) error {
		var err error
		items, err = st.Cards().List(ctx, filter)
		return err
	})
	if err != nil {
		return nil, apperrors.Internal("list cards", err)
	}
	return items, nil
}

// Search queries the card index and falls back to the database when the
// index is not configured or fails.
func (s *CardService) Search(ctx context.Context, query string, state models.CardState, limit int) ([]models.CardListItem, error) {
	if s.search != nil {
		items, err := s.search.SearchCards(ctx, query, state, limit)
		if err == nil {
			return items, nil
		}
		logger.WithContext(ctx).Warn("Card index search failed, falling back to database", "error", err)
	}
	return s.List(ctx, models.CardFilter{State: state, Query: query, Limit: limit})
}

const (
	defaultExpiringDays = 30
	maxExpiringDays     = 365
)

// Expiring lists active cards whose expiry falls within the next days days.
func (s *CardService) Expiring(ctx context.Context, days int) ([]models.CardListItem, error) {
	if days <= 0 {
		days = defaultExpiringDays
	}
	if days > maxExpiringDays {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Errorf("days must be at most %d", maxExpiringDays))
	}

	now := s.clock.Now()
	from := now.UTC().Format(time.DateOnly)
	to := credential.ExpiryFrom(now, days)

	var items []models.CardListItem
	err := s.uow.WithReadTx(ctx, func(ctx context.Context, st store.Store) error {
		var err error
		items, err = st.Cards().ListExpiring(ctx, from, to)
		return err
	})
	if err != nil {
		return nil, apperrors.Internal("list expiring cards", err)
	}
	return items, nil
}

func (s *CardService) Stats(ctx context.Context) (*models.CardStats, error) {
	today := s.clock.Now().UTC().Format(time.DateOnly)

	var stats models.CardStats
	err := s.uow.WithReadTx(ctx, func(ctx context.Context, st store.Store) error {
		var err error
		if stats, err = st.Cards().Stats(ctx, today); err != nil {
			return err
		}
		stats.Revocations, err = st.Revocations().Count(ctx)
		return err
	})
	if err != nil {
		return nil, apperrors.Internal("card stats", err)
	}
	return &stats, nil
}
