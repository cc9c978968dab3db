package models

import "time"

// NATS Event Types
const (
	EventCardIssued         = "card.issued"
	EventCardRevoked        = "card.revoked"
	EventCardRenewed        = "card.renewed"
	EventRedemptionRecorded = "redemption.recorded"
	EventRedemptionAnnulled = "redemption.annulled"
)

// CardEventSubjects lists the subjects the search indexer follows.
var CardEventSubjects = []string{
	EventCardIssued,
	EventCardRevoked,
	EventCardRenewed,
}

// CardIssuedEvent is published after a card commit
type CardIssuedEvent struct {
	CardID     string    `json:"card_id"`
	PersonID   string    `json:"person_id"`
	ExpiryDate string    `json:"expiry_date"`
	Operator   string    `json:"operator,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// CardRevokedEvent is published after a revocation commit
type CardRevokedEvent struct {
	CardID    string    `json:"card_id"`
	PersonID  string    `json:"person_id"`
	Reason    string    `json:"reason"`
	Operator  string    `json:"operator"`
	Timestamp time.Time `json:"timestamp"`
}

// CardRenewedEvent carries both sides of a renewal
type CardRenewedEvent struct {
	OldCardID  string    `json:"old_card_id"`
	NewCardID  string    `json:"new_card_id"`
	PersonID   string    `json:"person_id"`
	ExpiryDate string    `json:"expiry_date"`
	Operator   string    `json:"operator"`
	Timestamp  time.Time `json:"timestamp"`
}

// RedemptionRecordedEvent is published after a sale commit
type RedemptionRecordedEvent struct {
	RedemptionID string    `json:"redemption_id"`
	SaleID       string    `json:"sale_id"`
	CardID       string    `json:"card_id"`
	EventID      string    `json:"event_id"`
	Price        string    `json:"price"`
	RegisterID   string    `json:"register_id"`
	Operator     string    `json:"operator"`
	Timestamp    time.Time `json:"timestamp"`
}

// RedemptionAnnulledEvent is published after an annulment commit
type RedemptionAnnulledEvent struct {
	RedemptionID string    `json:"redemption_id"`
	CardID       string    `json:"card_id"`
	EventID      string    `json:"event_id"`
	Reason       string    `json:"reason"`
	Operator     string    `json:"operator"`
	Timestamp    time.Time `json:"timestamp"`
}
