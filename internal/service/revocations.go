package service

import (
	"context"
	"fmt"
	"strings"

	"tessera/internal/clock"
	apperrors "tessera/internal/errors"
	"tessera/internal/logger"
	"tessera/internal/models"
	"tessera/internal/store"
)

type RevocationService struct {
	uow     store.UnitOfWork
	machine *CardStateMachine
	clock   clock.Clock
	events  *eventSink
}

func NewRevocationService(uow store.UnitOfWork, machine *CardStateMachine, clk clock.Clock, events *eventSink) *RevocationService {
	return &RevocationService{uow: uow, machine: machine, clock: clk, events: events}
}

// Revoke отзывает карту и пишет запись в журнал отзывов
func (s *RevocationService) Revoke(ctx context.Context, cardID, reason, operator string) (rv *models.Revocation, err error) {
	defer func() { finish(ctx, "revoke", err, "card_id", cardID) }()

	if strings.TrimSpace(reason) == "" || strings.TrimSpace(operator) == "" {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, fmt.Errorf("reason and operator are required"))
	}

	var card *models.Card
	err = s.uow.WithTx(ctx, func(ctx context.Context, st store.Store) error {
		card, err = s.machine.Revoke(ctx, st, cardID)
		if err != nil {
			return err
		}
		rv, err = models.NewRevocation(newID(), cardID, reason, operator, s.clock.Now())
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInvalidInput, err)
		}
		if err := st.Revocations().Create(ctx, rv); err != nil {
			return apperrors.Internal("create revocation", err)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Internal("revoke card", err)
	}

	s.events.publish(ctx, models.EventCardRevoked, models.CardRevokedEvent{
		CardID:    card.ID,
		PersonID:  card.PersonID,
		Reason:    rv.Reason,
		Operator:  rv.Operator,
		Timestamp: rv.CreatedAt,
	})

	logger.WithContext(ctx).Info("Card revoked", "card_id", cardID, "reason", reason)
	return rv, nil
}
