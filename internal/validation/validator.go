package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tessera/internal/logger"
	"tessera/internal/models"
)

// SmokeValidator прогоняет сценарий выпуска, проверки, продажи и
// аннулирования против запущенного API
type SmokeValidator struct {
	baseURL  string
	personID string
	eventID  string
	operator string
	client   *http.Client
}

// NewSmokeValidator создает новый валидатор. personID и eventID должны
// существовать в базе (см. cmd/seed).
func NewSmokeValidator(baseURL, personID, eventID string) *SmokeValidator {
	return &SmokeValidator{
		baseURL:  baseURL,
		personID: personID,
		eventID:  eventID,
		operator: "smoke",
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// ValidateAll runs the whole scenario and stops at the first mismatch.
func (v *SmokeValidator) ValidateAll() error {
	log := logger.Get()
	log.Info("Starting smoke validation", "base_url", v.baseURL, "person_id", v.personID, "event_id", v.eventID)

	if err := v.expect("GET", "/health", nil, http.StatusOK, nil); err != nil {
		return err
	}

	card, err := v.issueFreshCard()
	if err != nil {
		return fmt.Errorf("issue card: %w", err)
	}
	log.Info("Card issued", "card_id", card.CardID)

	var verified models.VerifyTokenResponse
	if err := v.expect("POST", "/api/cards/verify", models.VerifyTokenRequest{Token: card.Token}, http.StatusOK, &verified); err != nil {
		return err
	}
	if verified.CardID != card.CardID {
		return fmt.Errorf("verify: expected card %s, got %s", card.CardID, verified.CardID)
	}

	tampered := card.Token[:len(card.Token)-1] + flip(card.Token[len(card.Token)-1])
	if err := v.expectError("POST", "/api/cards/verify", models.VerifyTokenRequest{Token: tampered}, http.StatusUnprocessableEntity, "signature_invalid"); err != nil {
		return err
	}

	sell := models.SellRequest{CardID: card.CardID, EventID: v.eventID, Operator: v.operator}
	var sold models.SellResponse
	if err := v.expect("POST", "/api/sales", sell, http.StatusCreated, &sold); err != nil {
		return err
	}
	log.Info("Ticket sold", "price", sold.Price.StringFixed(2), "redemption_id", sold.RedemptionID)

	if err := v.expectError("POST", "/api/sales", sell, http.StatusConflict, "duplicate"); err != nil {
		return err
	}

	var annullable []models.Redemption
	if err := v.expect("GET", "/api/redemptions/annullable", nil, http.StatusOK, &annullable); err != nil {
		return err
	}
	if !containsRedemption(annullable, sold.RedemptionID) {
		return fmt.Errorf("annullable list does not contain redemption %s", sold.RedemptionID)
	}

	annul := models.AnnulRequest{Reason: "smoke validation", Operator: v.operator}
	if err := v.expect("POST", "/api/redemptions/"+sold.RedemptionID+"/annul", annul, http.StatusOK, nil); err != nil {
		return err
	}
	if err := v.expectError("POST", "/api/redemptions/"+sold.RedemptionID+"/annul", annul, http.StatusConflict, "already_annulled"); err != nil {
		return err
	}

	if err := v.expect("GET", "/api/reports/daily", nil, http.StatusOK, nil); err != nil {
		return err
	}

	log.Info("Smoke validation passed")
	return nil
}

// issueFreshCard issues a card, renewing the person's current card when
// one is already active so reruns start from a clean redemption history.
func (v *SmokeValidator) issueFreshCard() (*models.IssueCardResponse, error) {
	status, body, err := v.do("POST", "/api/cards", models.IssueCardRequest{PersonID: v.personID, Operator: v.operator})
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusCreated:
		var card models.IssueCardResponse
		return &card, json.Unmarshal(body, &card)
	case http.StatusConflict:
	default:
		return nil, fmt.Errorf("POST /api/cards: expected 201, got %d: %s", status, body)
	}

	var cards []models.CardListItem
	if err := v.expect("GET", "/api/cards?state=active&limit=1000", nil, http.StatusOK, &cards); err != nil {
		return nil, err
	}
	for _, c := range cards {
		if c.PersonID != v.personID {
			continue
		}
		var renewed models.RenewCardResponse
		req := models.RenewCardRequest{Operator: v.operator, Reason: "smoke validation"}
		if err := v.expect("POST", "/api/cards/"+c.CardID+"/renew", req, http.StatusCreated, &renewed); err != nil {
			return nil, err
		}
		return &renewed.Card, nil
	}
	return nil, fmt.Errorf("person %s has an active card that is not listed", v.personID)
}

func (v *SmokeValidator) expect(method, path string, body interface{}, want int, dst interface{}) error {
	status, raw, err := v.do(method, path, body)
	if err != nil {
		return err
	}
	if status != want {
		return fmt.Errorf("%s %s: expected %d, got %d: %s", method, path, want, status, raw)
	}
	if dst != nil {
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
		}
	}
	return nil
}

func (v *SmokeValidator) expectError(method, path string, body interface{}, want int, code string) error {
	var resp models.ErrorResponse
	if err := v.expect(method, path, body, want, &resp); err != nil {
		return err
	}
	if resp.Error != code {
		return fmt.Errorf("%s %s: expected error %q, got %q", method, path, code, resp.Error)
	}
	return nil
}

func (v *SmokeValidator) do(method, path string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, v.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Operator", v.operator)

	resp, err := v.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func containsRedemption(list []models.Redemption, id string) bool {
	for _, r := range list {
		if r.ID == id {
			return true
		}
	}
	return false
}

func flip(b byte) string {
	if b == 'A' {
		return "B"
	}
	return "A"
}
