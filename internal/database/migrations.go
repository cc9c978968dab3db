package database

import (
	"fmt"
	"log/slog"
)

// Index names the repositories match unique violations against.
const (
	ActiveCardIndex      = "ux_cards_active_person"
	ValidRedemptionIndex = "ux_redemptions_ok"
)

func (db *DB) RunMigrations() error {
	slog.Info("Running database migrations...")

	migrations := []string{
		createPersonsTable,
		createEventsTable,
		createTariffsTable,
		createCardsTable,
		createActiveCardIndex,
		createCardsExpiryIndex,
		createSalesTable,
		createSalesCreatedIndex,
		createRedemptionsTable,
		createValidRedemptionIndex,
		createRedemptionsCreatedIndex,
		createRevocationsTable,
	}

	for i, migration := range migrations {
		slog.Info("Running migration", "step", i+1)
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

const createPersonsTable = `
CREATE TABLE IF NOT EXISTS persons (
    id TEXT PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    category VARCHAR(32) NOT NULL
        CHECK (category IN ('studente','docente','strumentista','urbinate_u18_o70','altro')),
    doc_verified BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    name VARCHAR(500) NOT NULL,
    date DATE NOT NULL,
    venue VARCHAR(255) NOT NULL DEFAULT '',
    base_price NUMERIC(10,2) NOT NULL CHECK (base_price >= 0)
);`

const createTariffsTable = `
CREATE TABLE IF NOT EXISTS tariffs (
    category VARCHAR(32) PRIMARY KEY,
    price NUMERIC(10,2) NOT NULL CHECK (price >= 0)
);`

const createCardsTable = `
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    person_id TEXT NOT NULL REFERENCES persons(id),
    state VARCHAR(16) NOT NULL CHECK (state IN ('active','revoked')),
    token TEXT NOT NULL,
    expiry_date DATE NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createActiveCardIndex = `
CREATE UNIQUE INDEX IF NOT EXISTS ux_cards_active_person
ON cards (person_id) WHERE state = 'active';`

const createCardsExpiryIndex = `
CREATE INDEX IF NOT EXISTS idx_cards_expiry_date
ON cards (expiry_date) WHERE state = 'active';`

const createSalesTable = `
CREATE TABLE IF NOT EXISTS sales (
    id TEXT PRIMARY KEY,
    card_id TEXT NOT NULL REFERENCES cards(id),
    event_id TEXT NOT NULL REFERENCES events(id),
    price_paid NUMERIC(10,2) NOT NULL CHECK (price_paid >= 0),
    register_id VARCHAR(64) NOT NULL,
    annulled BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createSalesCreatedIndex = `
CREATE INDEX IF NOT EXISTS idx_sales_created_at ON sales (created_at);`

const createRedemptionsTable = `
CREATE TABLE IF NOT EXISTS redemptions (
    id TEXT PRIMARY KEY,
    card_id TEXT NOT NULL REFERENCES cards(id),
    event_id TEXT NOT NULL REFERENCES events(id),
    sale_id TEXT REFERENCES sales(id),
    operator VARCHAR(255) NOT NULL,
    outcome VARCHAR(32) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    annulled BOOLEAN NOT NULL DEFAULT FALSE,
    annulled_at TIMESTAMPTZ,
    annulled_by VARCHAR(255),
    annul_reason TEXT
);`

// Annulled rows drop out of the index, so a voided redemption frees its
// (card, event) pair for a new sale.
const createValidRedemptionIndex = `
CREATE UNIQUE INDEX IF NOT EXISTS ux_redemptions_ok
ON redemptions (card_id, event_id) WHERE outcome = 'ok' AND NOT annulled;`

const createRedemptionsCreatedIndex = `
CREATE INDEX IF NOT EXISTS idx_redemptions_created_at ON redemptions (created_at DESC);`

const createRevocationsTable = `
CREATE TABLE IF NOT EXISTS revocations (
    id TEXT PRIMARY KEY,
    card_id TEXT NOT NULL REFERENCES cards(id),
    reason TEXT NOT NULL,
    operator VARCHAR(255) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`
