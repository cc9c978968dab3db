package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tessera/internal/logger"
	"tessera/internal/models"
	"tessera/internal/search"
	"tessera/internal/store"

	"github.com/nats-io/stan.go"
)

// CardIndex is the part of the search client the indexer writes to.
type CardIndex interface {
	IndexCard(ctx context.Context, doc search.CardDocument) error
	UpdateCardState(ctx context.Context, cardID string, state models.CardState) error
}

// ReportInvalidator drops cached reports when redemptions change.
type ReportInvalidator interface {
	InvalidateReports(ctx context.Context) error
}

const handlerTimeout = 10 * time.Second

type Handlers struct {
	uow     store.UnitOfWork
	index   CardIndex
	reports ReportInvalidator
}

func NewHandlers(uow store.UnitOfWork, index CardIndex, reports ReportInvalidator) *Handlers {
	return &Handlers{uow: uow, index: index, reports: reports}
}

// Ack wraps a data handler for a manual-ack subscription. Malformed
// payloads are acked and dropped; other failures are left for redelivery.
func (h *Handlers) Ack(subject string, handle func(ctx context.Context, data []byte) error) stan.MsgHandler {
	return func(m *stan.Msg) {
		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		err := handle(ctx, m.Data)
		if err != nil {
			if !errors.Is(err, errMalformed) {
				logger.Get().Error("Failed to process event, awaiting redelivery",
					"subject", subject, "sequence", m.Sequence, "error", err)
				return
			}
			logger.Get().Error("Dropping malformed event", "subject", subject, "sequence", m.Sequence, "error", err)
		}

		if err := m.Ack(); err != nil {
			logger.Get().Error("Failed to ack event", "subject", subject, "sequence", m.Sequence, "error", err)
		}
	}
}

// HandleCardIssued indexes the new card with its holder.
func (h *Handlers) HandleCardIssued(ctx context.Context, data []byte) error {
	var event models.CardIssuedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return malformed(err)
	}
	logger.Get().Info("Processing card issued event", "card_id", event.CardID)
	return h.indexCard(ctx, event.CardID)
}

func (h *Handlers) HandleCardRevoked(ctx context.Context, data []byte) error {
	var event models.CardRevokedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return malformed(err)
	}
	logger.Get().Info("Processing card revoked event", "card_id", event.CardID)
	if err := h.index.UpdateCardState(ctx, event.CardID, models.CardRevoked); err != nil {
		return fmt.Errorf("update card %s: %w", event.CardID, err)
	}
	return nil
}

// HandleCardRenewed marks the old card revoked and indexes the new one.
func (h *Handlers) HandleCardRenewed(ctx context.Context, data []byte) error {
	var event models.CardRenewedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return malformed(err)
	}
	logger.Get().Info("Processing card renewed event", "old_card_id", event.OldCardID, "card_id", event.NewCardID)
	if err := h.index.UpdateCardState(ctx, event.OldCardID, models.CardRevoked); err != nil {
		return fmt.Errorf("update card %s: %w", event.OldCardID, err)
	}
	return h.indexCard(ctx, event.NewCardID)
}

// HandleRedemptionChanged drops cached reports for both recorded and
// annulled redemptions.
func (h *Handlers) HandleRedemptionChanged(ctx context.Context, data []byte) error {
	var event struct {
		RedemptionID string `json:"redemption_id"`
	}
	if err := json.Unmarshal(data, &event); err != nil {
		return malformed(err)
	}
	if h.reports == nil {
		return nil
	}
	return h.reports.InvalidateReports(ctx)
}

// indexCard reads the committed card and holder and upserts the document.
// A card that no longer exists is skipped.
func (h *Handlers) indexCard(ctx context.Context, cardID string) error {
	var doc *search.CardDocument
	err := h.uow.WithReadTx(ctx, func(ctx context.Context, st store.Store) error {
		card, err := st.Cards().GetByID(ctx, cardID)
		if err != nil || card == nil {
			return err
		}
		person, err := st.Persons().GetByID(ctx, card.PersonID)
		if err != nil {
			return err
		}
		d := search.CardDocument{
			CardID:     card.ID,
			PersonID:   card.PersonID,
			State:      card.State,
			ExpiryDate: card.ExpiryDate,
			CreatedAt:  card.CreatedAt,
		}
		if person != nil {
			d.PersonName = person.Name
			d.Category = person.Category
		}
		doc = &d
		return nil
	})
	if err != nil {
		return fmt.Errorf("load card %s: %w", cardID, err)
	}
	if doc == nil {
		logger.Get().Warn("Card not found, skipping index", "card_id", cardID)
		return nil
	}
	if err := h.index.IndexCard(ctx, *doc); err != nil {
		return fmt.Errorf("index card %s: %w", cardID, err)
	}
	return nil
}

var errMalformed = errors.New("malformed event payload")

func malformed(err error) error {
	return fmt.Errorf("%w: %v", errMalformed, err)
}
