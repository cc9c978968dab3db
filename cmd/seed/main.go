package main

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"

	"tessera/internal/config"
	"tessera/internal/database"
	"tessera/internal/logger"
	"tessera/internal/models"
	"tessera/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
)

var (
	personCount = pflag.Int("persons", 50, "Number of persons to generate")
	randomSeed  = pflag.Int64("seed", 1, "Random seed for generated names and categories")
	dryRun      = pflag.Bool("dry-run", false, "Show what would be inserted without making changes")
)

// Seed is the development data set: tariffs, a festival programme and
// generated attendees.
type Seed struct {
	Tariffs []models.Tariff
	Events  []models.Event
	Persons []models.Person
}

var (
	firstNames = []string{"Giulia", "Marco", "Sofia", "Luca", "Chiara", "Matteo", "Anna", "Davide", "Elena", "Paolo"}
	lastNames  = []string{"Rossi", "Bianchi", "Neri", "Romano", "Colombo", "Ricci", "Marino", "Greco", "Bruno", "Gallo"}
)

func defaultTariffs() []models.Tariff {
	prices := map[models.Category]string{
		models.CategoryStudent:      "5.00",
		models.CategoryTeacher:      "8.00",
		models.CategoryInstrumental: "5.00",
		models.CategoryLocalU18O70:  "7.00",
	}
	var out []models.Tariff
	for _, c := range models.Categories {
		if p, ok := prices[c]; ok {
			out = append(out, models.Tariff{Category: c, Price: decimal.RequireFromString(p)})
		}
	}
	return out
}

func defaultEvents() []models.Event {
	return []models.Event{
		{ID: "EV-01", Name: "Concerto di apertura", Date: "2025-07-18", Venue: "Teatro Sanzio", BasePrice: decimal.RequireFromString("20.00")},
		{ID: "EV-02", Name: "Vespri in San Domenico", Date: "2025-07-19", Venue: "Chiesa di San Domenico", BasePrice: decimal.RequireFromString("15.00")},
		{ID: "EV-03", Name: "Recital al clavicembalo", Date: "2025-07-21", Venue: "Palazzo Ducale", BasePrice: decimal.RequireFromString("15.00")},
		{ID: "EV-04", Name: "Madrigali a lume di candela", Date: "2025-07-23", Venue: "Oratorio di San Giovanni", BasePrice: decimal.RequireFromString("12.00")},
		{ID: "EV-05", Name: "Concerto finale", Date: "2025-07-27", Venue: "Teatro Sanzio", BasePrice: decimal.RequireFromString("25.00")},
	}
}

// BuildSeed generates n persons deterministically from rng.
func BuildSeed(n int, rng *rand.Rand) Seed {
	persons := make([]models.Person, 0, n)
	for i := 1; i <= n; i++ {
		persons = append(persons, models.Person{
			ID:          fmt.Sprintf("P-%04d", i),
			Name:        firstNames[rng.Intn(len(firstNames))] + " " + lastNames[rng.Intn(len(lastNames))],
			Category:    models.Categories[rng.Intn(len(models.Categories))],
			DocVerified: rng.Intn(4) != 0,
		})
	}
	return Seed{Tariffs: defaultTariffs(), Events: defaultEvents(), Persons: persons}
}

func main() {
	pflag.Parse()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, "text")
	log := logger.Get()

	seed := BuildSeed(*personCount, rand.New(rand.NewSource(*randomSeed)))

	if *dryRun {
		for _, t := range seed.Tariffs {
			log.Info("[DRY RUN] tariff", "category", t.Category, "price", t.Price.StringFixed(2))
		}
		for _, e := range seed.Events {
			log.Info("[DRY RUN] event", "id", e.ID, "name", e.Name, "date", e.Date, "base_price", e.BasePrice.StringFixed(2))
		}
		log.Info("[DRY RUN] persons", "count", len(seed.Persons))
		return
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		log.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	if err := insert(context.Background(), db, seed); err != nil {
		log.Error("Failed to seed database", "error", err)
		os.Exit(1)
	}

	log.Info("Seeding completed",
		"tariffs", len(seed.Tariffs),
		"events", len(seed.Events),
		"persons", len(seed.Persons))
}

// insert writes the seed in one transaction; existing rows are kept.
func insert(ctx context.Context, db *database.DB, seed Seed) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		tariffs := repository.NewTariffRepository(tx)
		events := repository.NewEventRepository(tx)
		persons := repository.NewPersonRepository(tx)

		for _, t := range seed.Tariffs {
			if err := tariffs.Upsert(ctx, t); err != nil {
				return fmt.Errorf("tariff %s: %w", t.Category, err)
			}
		}
		for i := range seed.Events {
			if err := events.Create(ctx, &seed.Events[i]); err != nil {
				return fmt.Errorf("event %s: %w", seed.Events[i].ID, err)
			}
		}
		for i := range seed.Persons {
			if err := persons.Create(ctx, &seed.Persons[i]); err != nil {
				return fmt.Errorf("person %s: %w", seed.Persons[i].ID, err)
			}
		}
		return nil
	})
}
