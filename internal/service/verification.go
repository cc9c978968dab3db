package service

import (
	"context"

	"tessera/internal/credential"
	apperrors "tessera/internal/errors"
	"tessera/internal/metrics"
	"tessera/internal/models"
	"tessera/internal/store"
)

type VerificationService struct {
	uow     store.UnitOfWork
	machine *CardStateMachine
	secrets credential.SecretProvider
}

func NewVerificationService(uow store.UnitOfWork, machine *CardStateMachine, secrets credential.SecretProvider) *VerificationService {
	return &VerificationService{uow: uow, machine: machine, secrets: secrets}
}

// Verify checks the token signature and expiry, then the card state.
func (s *VerificationService) Verify(ctx context.Context, token string) (resp *models.VerifyTokenResponse, err error) {
	defer func() {
		metrics.TokenVerifications.WithLabelValues(resultOf(err)).Inc()
	}()

	secret, _ := s.secrets.CurrentSecret()
	claims, err := s.machine.signer.Verify(token, secret)
	if err != nil {
		return nil, err
	}

	err = s.uow.WithReadTx(ctx, func(ctx context.Context, st store.Store) error {
		card, err := s.machine.CheckValidity(ctx, st, claims.CardID)
		if err != nil {
			return err
		}
		resp = &models.VerifyTokenResponse{
			CardID:     card.ID,
			ExpiryDate: claims.ExpiryDate,
			State:      card.State,
			PersonID:   card.PersonID,
		}
		person, err := st.Persons().GetByID(ctx, card.PersonID)
		if err != nil {
			return apperrors.Internal("get person", err)
		}
		if person != nil {
			resp.PersonName = person.Name
			resp.Category = person.Category
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Internal("verify token", err)
	}
	return resp, nil
}

func resultOf(err error) string {
	if err == nil {
		return "ok"
	}
	return apperrors.CodeOf(err)
}
