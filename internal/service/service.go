package service

import (
	"context"

	"tessera/internal/clock"
	"tessera/internal/credential"
	apperrors "tessera/internal/errors"
	"tessera/internal/logger"
	"tessera/internal/metrics"
	"tessera/internal/models"
	"tessera/internal/store"

	"github.com/google/uuid"
)

// Publisher sends domain events after a unit commits.
type Publisher interface {
	Publish(subject string, data interface{}) error
}

// CardSearcher is the optional full-text card index.
type CardSearcher interface {
	SearchCards(ctx context.Context, query string, state models.CardState, limit int) ([]models.CardListItem, error)
}

// ReportCache is the optional daily report cache.
type ReportCache interface {
	GetDailyReport(ctx context.Context, from, to string, dst interface{}) (bool, error)
	SetDailyReport(ctx context.Context, from, to string, report interface{}) error
	InvalidateReports(ctx context.Context) error
}

type Options struct {
	Secrets           credential.SecretProvider
	Clock             clock.Clock
	Publisher         Publisher
	Search            CardSearcher
	ReportCache       ReportCache
	CardValidityDays  int
	DefaultRegisterID string
}

type Services struct {
	Cards        *CardService
	Verification *VerificationService
	Revocations  *RevocationService
	Sales        *SaleService
	Annulments   *AnnulmentService
	Reports      *ReportService
	Events       *EventService
}

func NewServices(uow store.UnitOfWork, opts Options) *Services {
	if opts.Clock == nil {
		opts.Clock = clock.NewSystem()
	}
	if opts.Secrets == nil {
		opts.Secrets = credential.StaticSecret("")
	}
	if opts.CardValidityDays <= 0 {
		opts.CardValidityDays = 365
	}
	if opts.DefaultRegisterID == "" {
		opts.DefaultRegisterID = "cassa1"
	}

	events := newEventSink(opts.Publisher)
	machine := NewCardStateMachine(credential.NewSigner(opts.Clock.Now), opts.Clock)
	pricing := NewPricingResolver()

	return &Services{
		Cards:        NewCardService(uow, machine, opts, events),
		Verification: NewVerificationService(uow, machine, opts.Secrets),
		Revocations:  NewRevocationService(uow, machine, opts.Clock, events),
		Sales:        NewSaleService(uow, machine, pricing, opts, events),
		Annulments:   NewAnnulmentService(uow, opts.Clock, opts.ReportCache, events),
		Reports:      NewReportService(uow, opts.Clock, opts.ReportCache),
		Events:       NewEventService(uow, pricing),
	}
}

// eventSink publishes and never fails the caller: the unit has already
// committed by the time it runs.
type eventSink struct {
	pub Publisher
}

func newEventSink(pub Publisher) *eventSink {
	return &eventSink{pub: pub}
}

func (s *eventSink) publish(ctx context.Context, subject string, data interface{}) {
	if s == nil || s.pub == nil {
		return
	}
	if err := s.pub.Publish(subject, data); err != nil {
		metrics.PublishFailures.WithLabelValues(subject).Inc()
		// Log error but don't fail the operation
		logger.WithContext(ctx).Error("Failed to publish event",
			"error", err,
			"event_type", subject)
	}
}

// finish records the outcome of a unit and logs failures at a level that
// matches their kind.
func finish(ctx context.Context, operation string, err error, attrs ...any) {
	if err == nil {
		metrics.ObserveOperation(operation, "ok")
		return
	}

	code := apperrors.CodeOf(err)
	metrics.ObserveOperation(operation, code)

	log := logger.WithContext(ctx)
	args := append([]any{"operation", operation, "code", code, "error", err}, attrs...)
	switch apperrors.KindOf(err) {
	case apperrors.KindInternal, apperrors.KindSecretMissing:
		log.Error("Operation failed", args...)
	case apperrors.KindContention:
		log.Warn("Operation hit contention", args...)
	default:
		log.Warn("Operation rejected", args...)
	}
}

func newID() string {
	return uuid.NewString()
}
