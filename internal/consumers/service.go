package consumers

import (
	"context"
	"fmt"

	"tessera/internal/cache"
	"tessera/internal/config"
	"tessera/internal/database"
	"tessera/internal/logger"
	"tessera/internal/messaging"
	"tessera/internal/models"
	"tessera/internal/repository"
	"tessera/internal/search"
	"tessera/internal/store"

	"github.com/nats-io/stan.go"
)

const queueGroup = "card-indexers"

// ConsumerService keeps the card search index and report cache in step
// with the domain events published by the API.
type ConsumerService struct {
	db       *database.DB
	nats     *messaging.NATSClient
	valkey   *cache.ValkeyClient
	es       *search.ElasticsearchClient
	uow      store.UnitOfWork
	handlers *Handlers
	subs     []stan.Subscription
}

func NewConsumerService(cfg *config.Config) (*ConsumerService, error) {
	if !cfg.NATS.Enabled() {
		return nil, fmt.Errorf("NATS_URL is required for consumers")
	}
	if !cfg.Elasticsearch.Enabled() {
		return nil, fmt.Errorf("ELASTICSEARCH_URL is required for consumers")
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		db.Close()
		return nil, err
	}

	es, err := search.NewElasticsearchClient(cfg.Elasticsearch)
	if err != nil {
		natsClient.Close()
		db.Close()
		return nil, err
	}

	cs := &ConsumerService{
		db:   db,
		nats: natsClient,
		es:   es,
		uow:  repository.NewUnitOfWork(db),
	}

	var reports ReportInvalidator
	if cfg.Valkey.Enabled() {
		if cs.valkey, err = cache.NewValkeyClient(cfg.Valkey); err != nil {
			logger.Get().Warn("Valkey unavailable, report cache will expire on its own", "error", err)
		} else {
			reports = cs.valkey
		}
	}

	cs.handlers = NewHandlers(cs.uow, es, reports)
	return cs, nil
}

// Index exposes the search client for background jobs.
func (cs *ConsumerService) Index() CardIndex {
	return cs.es
}

// Store exposes the unit of work for background jobs.
func (cs *ConsumerService) Store() store.UnitOfWork {
	return cs.uow
}

func (cs *ConsumerService) Start() error {
	logger.Get().Info("Starting NATS consumers...")

	routes := map[string]func(context.Context, []byte) error{
		models.EventCardIssued:         cs.handlers.HandleCardIssued,
		models.EventCardRevoked:        cs.handlers.HandleCardRevoked,
		models.EventCardRenewed:        cs.handlers.HandleCardRenewed,
		models.EventRedemptionRecorded: cs.handlers.HandleRedemptionChanged,
		models.EventRedemptionAnnulled: cs.handlers.HandleRedemptionChanged,
	}

	for subject, handle := range routes {
		sub, err := cs.nats.SubscribeQueue(subject, queueGroup, cs.handlers.Ack(subject, handle))
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		cs.subs = append(cs.subs, sub)
	}

	logger.Get().Info("All consumers started successfully", "subjects", len(cs.subs))
	return nil
}

func (cs *ConsumerService) Shutdown(ctx context.Context) error {
	log := logger.Get()
	log.Info("Shutting down consumer service...")

	for _, sub := range cs.subs {
		if err := sub.Close(); err != nil {
			log.Error("Error closing subscription", "error", err)
		}
	}

	if cs.nats != nil {
		if err := cs.nats.Close(); err != nil {
			log.Error("Error closing NATS connection", "error", err)
		}
	}

	if cs.valkey != nil {
		if err := cs.valkey.Close(); err != nil {
			log.Error("Error closing Valkey connection", "error", err)
		}
	}

	if cs.db != nil {
		if err := cs.db.Close(); err != nil {
			log.Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}
