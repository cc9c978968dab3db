package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"tessera/internal/cache"
	"tessera/internal/config"
	"tessera/internal/credential"
	"tessera/internal/database"
	"tessera/internal/handlers"
	"tessera/internal/logger"
	"tessera/internal/messaging"
	"tessera/internal/middleware"
	"tessera/internal/repository"
	"tessera/internal/search"
	"tessera/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const serviceName = "tessera-api"

// Server представляет HTTP сервер API
type Server struct {
	router   *gin.Engine
	config   *config.Config
	db       *database.DB
	nats     *messaging.NATSClient
	valkey   *cache.ValkeyClient
	es       *search.ElasticsearchClient
	services *service.Services
}

// NewServer подключает хранилища и собирает роутер
func NewServer(cfg *config.Config) (*Server, error) {
	gin.SetMode(cfg.GinMode)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Server{config: cfg, db: db}

	// NATS, Valkey and Elasticsearch are optional; failures degrade features
	// instead of stopping the API.
	s.nats, err = messaging.NewNATSClient(cfg.NATS)
	if err != nil {
		logger.Get().Warn("NATS unavailable, events will not be published", "error", err)
		s.nats = nil
	}

	opts := service.Options{
		Secrets:           credential.StaticSecret(cfg.HMACSecretHex),
		CardValidityDays:  cfg.CardValidityDays,
		DefaultRegisterID: cfg.DefaultRegisterID,
	}
	if s.nats != nil {
		opts.Publisher = s.nats
	}

	if cfg.Valkey.Enabled() {
		if s.valkey, err = cache.NewValkeyClient(cfg.Valkey); err != nil {
			logger.Get().Warn("Valkey unavailable, report cache disabled", "error", err)
		} else {
			opts.ReportCache = s.valkey
		}
	}

	if cfg.Elasticsearch.Enabled() {
		if s.es, err = search.NewElasticsearchClient(cfg.Elasticsearch); err != nil {
			logger.Get().Warn("Elasticsearch unavailable, card search uses the database", "error", err)
		} else {
			opts.Search = s.es
		}
	}

	if cfg.HMACSecretHex == "" {
		logger.Get().Warn("HMAC_SECRET_HEX is not set, issuing and verification will fail")
	}

	s.services = service.NewServices(repository.NewUnitOfWork(db), opts)
	s.router = s.newRouter()
	return s, nil
}

func (s *Server) newRouter() *gin.Engine {
	router := gin.New()

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())
	if s.config.MetricsEnabled {
		router.Use(middleware.Metrics())
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	router.GET("/health", s.healthCheck)

	api := router.Group("/api")
	api.Use(middleware.Timeout(s.config.RequestTimeout))
	handlers.NewHandlers(s.services, s.config.Production()).RegisterRoutes(api)

	return router
}

// healthCheck обрабатывает health check запросы
func (s *Server) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbHealth := s.db.HealthCheck(ctx)
	s.db.ReportPoolStats()

	deps := gin.H{
		"database": dbHealth,
		"nats":     s.nats.Enabled(),
	}
	if s.valkey != nil {
		deps["valkey"] = errStatus(s.valkey.Ping(ctx))
	}
	if s.es != nil {
		deps["elasticsearch"] = errStatus(s.es.HealthCheck(ctx))
	}

	status := http.StatusOK
	overall := "ok"
	if dbHealth.Status != "healthy" {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	c.JSON(status, gin.H{
		"status":       overall,
		"service":      serviceName,
		"dependencies": deps,
	})
}

func errStatus(err error) string {
	if err != nil {
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}

// GetRouter возвращает роутер для тестирования
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// Cleanup закрывает соединения
func (s *Server) Cleanup() error {
	log := logger.Get()
	if s.nats != nil {
		if err := s.nats.Close(); err != nil {
			log.Error("Error closing NATS connection", "error", err)
		}
	}

	if s.valkey != nil {
		if err := s.valkey.Close(); err != nil {
			log.Error("Error closing Valkey connection", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			log.Error("Error closing database connection", "error", err)
			return err
		}
	}

	return nil
}
