package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// IssueCardRequest - запрос на выпуск карты
type IssueCardRequest struct {
	PersonID   string `json:"person_id" binding:"required"`
	ExpiryDate string `json:"expiry_date,omitempty"`
	Operator   string `json:"operator,omitempty"`
}

// IssueCardResponse - выпущенная карта с токеном для печати QR
type IssueCardResponse struct {
	CardID     string `json:"card_id"`
	PersonID   string `json:"person_id"`
	Token      string `json:"token"`
	ExpiryDate string `json:"expiry_date"`
}

// RevokeCardRequest - запрос на отзыв карты
type RevokeCardRequest struct {
	Reason   string `json:"reason" binding:"required"`
	Operator string `json:"operator" binding:"required"`
}

// RenewCardRequest - перевыпуск: старая карта отзывается, новая выпускается
type RenewCardRequest struct {
	Reason     string `json:"reason,omitempty"`
	Operator   string `json:"operator" binding:"required"`
	ExpiryDate string `json:"expiry_date,omitempty"`
}

// RenewCardResponse - результат перевыпуска
type RenewCardResponse struct {
	RevokedCardID string            `json:"revoked_card_id"`
	Card          IssueCardResponse `json:"card"`
}

// VerifyTokenRequest - запрос на проверку токена из QR
type VerifyTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// VerifyTokenResponse - содержимое валидного токена и состояние карты
type VerifyTokenResponse struct {
	CardID     string    `json:"card_id"`
	ExpiryDate string    `json:"expiry_date"`
	State      CardState `json:"state"`
	PersonID   string    `json:"person_id"`
	PersonName string    `json:"person_name"`
	Category   Category  `json:"category"`
}

// SellRequest - продажа билета по карте на событие
type SellRequest struct {
	CardID     string `json:"card_id" binding:"required"`
	EventID    string `json:"event_id" binding:"required"`
	Operator   string `json:"operator" binding:"required"`
	RegisterID string `json:"register_id,omitempty"`
}

// SellResponse - результат продажи
type SellResponse struct {
	OK           bool            `json:"ok"`
	Price        decimal.Decimal `json:"price"`
	SaleID       string          `json:"sale_id"`
	RedemptionID string          `json:"redemption_id"`
}

// AnnulRequest - запрос на аннулирование погашения
type AnnulRequest struct {
	Reason   string `json:"reason" binding:"required"`
	Operator string `json:"operator" binding:"required"`
}

// AnnulResponse - результат аннулирования
type AnnulResponse struct {
	OK           bool      `json:"ok"`
	RedemptionID string    `json:"redemption_id"`
	AnnulledAt   time.Time `json:"annulled_at"`
}

// CardEventUsage - событие и признак того, что карта на него уже погашена
type CardEventUsage struct {
	EventID  string `json:"event_id"`
	Name     string `json:"name"`
	Date     string `json:"date"`
	Redeemed bool   `json:"redeemed"`
}

// CardDetails - карта с владельцем и историей
type CardDetails struct {
	Card        Card             `json:"card"`
	Person      *Person          `json:"person,omitempty"`
	Events      []CardEventUsage `json:"events"`
	Revocations []Revocation     `json:"revocations"`
}

// CardListItem - элемент списка карт
type CardListItem struct {
	CardID     string    `json:"card_id"`
	PersonID   string    `json:"person_id"`
	PersonName string    `json:"person_name"`
	Category   Category  `json:"category"`
	State      CardState `json:"state"`
	ExpiryDate string    `json:"expiry_date"`
	CreatedAt  time.Time `json:"created_at"`
}

// CardFilter - параметры выборки карт
type CardFilter struct {
	State  CardState
	Query  string
	Limit  int
	Offset int
}

// CardStats - сводка по картам
type CardStats struct {
	Total       int64            `json:"total"`
	Active      int64            `json:"active"`
	Revoked     int64            `json:"revoked"`
	Expired     int64            `json:"expired"`
	ByCategory  map[Category]int `json:"by_category"`
	Revocations int64            `json:"revocations"`
}

// RedemptionFilter - параметры выборки погашений
type RedemptionFilter struct {
	CardID          string
	EventID         string
	Operator        string
	IncludeAnnulled bool
	Limit           int
	Offset          int
}

// DailyReportRow - одна строка дневного отчёта
type DailyReportRow struct {
	Day         string          `json:"day"`
	Redemptions int64           `json:"redemptions"`
	Annulled    int64           `json:"annulled"`
	Revenue     decimal.Decimal `json:"revenue"`
	ByCategory  map[string]int  `json:"by_category"`
}

// ErrorResponse - тело ответа с ошибкой
type ErrorResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// EventListItem - событие программы; Price заполняется, если задана категория
type EventListItem struct {
	Event
	Price *decimal.Decimal `json:"price,omitempty"`
}
