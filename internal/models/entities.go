package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Category is the fixed set of person categories tariffs are keyed on.
type Category string

const (
	CategoryStudent      Category = "studente"
	CategoryTeacher      Category = "docente"
	CategoryInstrumental Category = "strumentista"
	CategoryLocalU18O70  Category = "urbinate_u18_o70"
	CategoryOther        Category = "altro"
)

// Categories lists every valid category in report order.
var Categories = []Category{
	CategoryStudent,
	CategoryTeacher,
	CategoryInstrumental,
	CategoryLocalU18O70,
	CategoryOther,
}

// ParseCategory validates a category name
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// ParseExpiryDate checks a YYYY-MM-DD calendar date
func ParseExpiryDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) != len(dateLayout) {
		return "", fmt.Errorf("invalid expiry date %q", s)
	}
	if _, err := time.Parse(dateLayout, s); err != nil {
		return "", fmt.Errorf("invalid expiry date %q", s)
	}
	return s, nil
}

const dateLayout = "2006-01-02"

// CardState is the lifecycle state of a card
type CardState string

const (
	CardActive  CardState = "active"
	CardRevoked CardState = "revoked"
)

// OutcomeOK marks a valid redemption; anything else is a failure tag.
const OutcomeOK = "ok"

// Person represents a registered festival attendee
type Person struct {
	ID          string   `json:"id" db:"id"`
	Name        string   `json:"name" db:"name"`
	Category    Category `json:"category" db:"category"`
	DocVerified bool     `json:"doc_verified" db:"doc_verified"`
}

// Card represents a signed credential bound to one person
type Card struct {
	ID         string    `json:"id" db:"id"`
	PersonID   string    `json:"person_id" db:"person_id"`
	State      CardState `json:"state" db:"state"`
	Token      string    `json:"token" db:"token"`
	ExpiryDate string    `json:"expiry_date" db:"expiry_date"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// NewCard builds an active card, rejecting empty fields
func NewCard(id, personID, token, expiryDate string, createdAt time.Time) (*Card, error) {
	if id == "" || personID == "" || token == "" {
		return nil, fmt.Errorf("card id, person id and token are required")
	}
	if _, err := ParseExpiryDate(expiryDate); err != nil {
		return nil, err
	}
	return &Card{
		ID:         id,
		PersonID:   personID,
		State:      CardActive,
		Token:      token,
		ExpiryDate: expiryDate,
		CreatedAt:  createdAt,
	}, nil
}

// IsActive reports whether the card can be used
func (c *Card) IsActive() bool {
	return c.State == CardActive
}

// Event represents a festival event
type Event struct {
	ID        string          `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Date      string          `json:"date" db:"date"`
	Venue     string          `json:"venue" db:"venue"`
	BasePrice decimal.Decimal `json:"base_price" db:"base_price"`
}

// Tariff is the category-keyed price overriding an event's base price
type Tariff struct {
	Category Category        `json:"category" db:"category"`
	Price    decimal.Decimal `json:"price" db:"price"`
}

// Sale is the monetary side of a valid redemption
type Sale struct {
	ID         string          `json:"id" db:"id"`
	CardID     string          `json:"card_id" db:"card_id"`
	EventID    string          `json:"event_id" db:"event_id"`
	PricePaid  decimal.Decimal `json:"price_paid" db:"price_paid"`
	RegisterID string          `json:"register_id" db:"register_id"`
	Annulled   bool            `json:"annulled" db:"annulled"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// NewSale validates and builds a sale record
func NewSale(id, cardID, eventID string, price decimal.Decimal, registerID string, at time.Time) (*Sale, error) {
	if id == "" || cardID == "" || eventID == "" || registerID == "" {
		return nil, fmt.Errorf("sale id, card id, event id and register id are required")
	}
	if price.IsNegative() {
		return nil, fmt.Errorf("sale price must not be negative")
	}
	return &Sale{
		ID:         id,
		CardID:     cardID,
		EventID:    eventID,
		PricePaid:  price,
		RegisterID: registerID,
		CreatedAt:  at,
	}, nil
}

// Redemption records a card being used against an event
type Redemption struct {
	ID          string     `json:"id" db:"id"`
	CardID      string     `json:"card_id" db:"card_id"`
	EventID     string     `json:"event_id" db:"event_id"`
	SaleID      string     `json:"sale_id,omitempty" db:"sale_id"`
	Operator    string     `json:"operator" db:"operator"`
	Outcome     string     `json:"outcome" db:"outcome"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	Annulled    bool       `json:"annulled" db:"annulled"`
	AnnulledAt  *time.Time `json:"annulled_at,omitempty" db:"annulled_at"`
	AnnulledBy  *string    `json:"annulled_by,omitempty" db:"annulled_by"`
	AnnulReason *string    `json:"annul_reason,omitempty" db:"annul_reason"`
	EventName   string     `json:"event_name,omitempty" db:"-"`
	PersonName  string     `json:"person_name,omitempty" db:"-"`
}

// NewRedemption validates and builds a redemption record
func NewRedemption(id, cardID, eventID, operator, outcome string, at time.Time) (*Redemption, error) {
	if id == "" || cardID == "" || eventID == "" {
		return nil, fmt.Errorf("redemption id, card id and event id are required")
	}
	if strings.TrimSpace(operator) == "" {
		return nil, fmt.Errorf("operator is required")
	}
	if outcome == "" {
		return nil, fmt.Errorf("outcome is required")
	}
	return &Redemption{
		ID:        id,
		CardID:    cardID,
		EventID:   eventID,
		Operator:  operator,
		Outcome:   outcome,
		CreatedAt: at,
	}, nil
}

// Annulment is the sub-record set when a redemption is voided
type Annulment struct {
	At       time.Time
	Operator string
	Reason   string
}

// Revocation is an append-only audit row for an active->revoked transition
type Revocation struct {
	ID        string    `json:"id" db:"id"`
	CardID    string    `json:"card_id" db:"card_id"`
	Reason    string    `json:"reason" db:"reason"`
	Operator  string    `json:"operator" db:"operator"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewRevocation validates and builds a revocation record
func NewRevocation(id, cardID, reason, operator string, at time.Time) (*Revocation, error) {
	if id == "" || cardID == "" {
		return nil, fmt.Errorf("revocation id and card id are required")
	}
	if strings.TrimSpace(reason) == "" || strings.TrimSpace(operator) == "" {
		return nil, fmt.Errorf("reason and operator are required")
	}
	return &Revocation{
		ID:        id,
		CardID:    cardID,
		Reason:    reason,
		Operator:  operator,
		CreatedAt: at,
	}, nil
}
