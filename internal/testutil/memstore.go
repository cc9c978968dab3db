// Package testutil provides an in-memory store.UnitOfWork for service and
// handler tests. It keeps the Postgres semantics the services rely on:
// write units are serialized, a failing unit leaves no trace, and the two
// partial unique indexes are enforced on insert.
package testutil

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"time"

	apperrors "tessera/internal/errors"
	"tessera/internal/models"
	"tessera/internal/store"

	"github.com/shopspring/decimal"
)

type state struct {
	persons     map[string]models.Person
	events      map[string]models.Event
	tariffs     map[models.Category]decimal.Decimal
	cards       map[string]models.Card
	sales       map[string]models.Sale
	redemptions map[string]models.Redemption
	revocations []models.Revocation
}

func (s *state) clone() *state {
	return &state{
		persons:     maps.Clone(s.persons),
		events:      maps.Clone(s.events),
		tariffs:     maps.Clone(s.tariffs),
		cards:       maps.Clone(s.cards),
		sales:       maps.Clone(s.sales),
		redemptions: maps.Clone(s.redemptions),
		revocations: append([]models.Revocation(nil), s.revocations...),
	}
}

// MemStore is safe for concurrent use.
type MemStore struct {
	sem         chan struct{}
	lockTimeout time.Duration
	data        *state
}

var _ store.UnitOfWork = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		sem:         make(chan struct{}, 1),
		lockTimeout: 2 * time.Second,
		data: &state{
			persons:     map[string]models.Person{},
			events:      map[string]models.Event{},
			tariffs:     map[models.Category]decimal.Decimal{},
			cards:       map[string]models.Card{},
			sales:       map[string]models.Sale{},
			redemptions: map[string]models.Redemption{},
		},
	}
}

// SetLockTimeout changes how long a unit waits for the store lock.
func (m *MemStore) SetLockTimeout(d time.Duration) {
	m.lockTimeout = d
}

func (m *MemStore) acquire(ctx context.Context) error {
	timer := time.NewTimer(m.lockTimeout)
	defer timer.Stop()
	select {
	case m.sem <- struct{}{}:
		return nil
	case <-timer.C:
		return apperrors.Wrap(apperrors.ErrContention, fmt.Errorf("lock timeout after %s", m.lockTimeout))
	case <-ctx.Done():
		return apperrors.Wrap(apperrors.ErrContention, ctx.Err())
	}
}

func (m *MemStore) release() {
	<-m.sem
}

// Hold takes the store lock until the returned func is called, simulating
// a long-running writer.
func (m *MemStore) Hold() func() {
	m.sem <- struct{}{}
	return m.release
}

func (m *MemStore) WithTx(ctx context.Context, fn func(ctx context.Context, st store.Store) error) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	work := m.data.clone()
	if err := fn(ctx, &txStore{s: work}); err != nil {
		return err
	}
	m.data = work
	return nil
}

func (m *MemStore) WithReadTx(ctx context.Context, fn func(ctx context.Context, st store.Store) error) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	snapshot := m.data.clone()
	m.release()

	return fn(ctx, &txStore{s: snapshot, readOnly: true})
}

// Seeding helpers. They bypass the lock and are meant for test setup.

func (m *MemStore) AddPerson(p models.Person) {
	m.data.persons[p.ID] = p
}

func (m *MemStore) AddEvent(e models.Event) {
	m.data.events[e.ID] = e
}

func (m *MemStore) SetTariff(c models.Category, price decimal.Decimal) {
	m.data.tariffs[c] = price
}

func (m *MemStore) AddCard(c models.Card) {
	m.data.cards[c.ID] = c
}

func (m *MemStore) AddRedemption(r models.Redemption) {
	m.data.redemptions[r.ID] = r
}

// Inspection helpers.

func (m *MemStore) Card(id string) (models.Card, bool) {
	c, ok := m.data.cards[id]
	return c, ok
}

func (m *MemStore) Sales() []models.Sale {
	out := make([]models.Sale, 0, len(m.data.sales))
	for _, s := range m.data.sales {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MemStore) Redemptions() []models.Redemption {
	out := make([]models.Redemption, 0, len(m.data.redemptions))
	for _, r := range m.data.redemptions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *MemStore) Revocations() []models.Revocation {
	return append([]models.Revocation(nil), m.data.revocations...)
}

func (m *MemStore) CardsOf(personID string) []models.Card {
	var out []models.Card
	for _, c := range m.data.cards {
		if c.PersonID == personID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

type txStore struct {
	s        *state
	readOnly bool
}

func (t *txStore) Persons() store.PersonStore         { return persons{t} }
func (t *txStore) Events() store.EventStore           { return events{t} }
func (t *txStore) Tariffs() store.TariffStore         { return tariffs{t} }
func (t *txStore) Cards() store.CardStore             { return cards{t} }
func (t *txStore) Sales() store.SaleStore             { return sales{t} }
func (t *txStore) Redemptions() store.RedemptionStore { return redemptions{t} }
func (t *txStore) Revocations() store.RevocationStore { return revocations{t} }
func (t *txStore) Reports() store.ReportStore         { return reports{t} }

func (t *txStore) writable() error {
	if t.readOnly {
		return fmt.Errorf("write in read-only transaction")
	}
	return nil
}

type persons struct{ *txStore }

func (p persons) Exists(_ context.Context, id string) (bool, error) {
	_, ok := p.s.persons[id]
	return ok, nil
}

func (p persons) CategoryOf(_ context.Context, id string) (models.Category, error) {
	person, ok := p.s.persons[id]
	if !ok {
		return "", apperrors.ErrPersonNotFound
	}
	return person.Category, nil
}

func (p persons) GetByID(_ context.Context, id string) (*models.Person, error) {
	person, ok := p.s.persons[id]
	if !ok {
		return nil, nil
	}
	return &person, nil
}

type events struct{ *txStore }

func (e events) BasePriceOf(_ context.Context, id string) (decimal.Decimal, error) {
	ev, ok := e.s.events[id]
	if !ok {
		return decimal.Zero, apperrors.ErrEventNotFound
	}
	return ev.BasePrice, nil
}

func (e events) List(_ context.Context) ([]models.Event, error) {
	out := make([]models.Event, 0, len(e.s.events))
	for _, ev := range e.s.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

type tariffs struct{ *txStore }

func (t tariffs) TariffFor(_ context.Context, c models.Category) (decimal.Decimal, bool, error) {
	price, ok := t.s.tariffs[c]
	return price, ok, nil
}

type cards struct{ *txStore }

func (c cards) GetByID(_ context.Context, id string) (*models.Card, error) {
	card, ok := c.s.cards[id]
	if !ok {
		return nil, nil
	}
	return &card, nil
}

func (c cards) GetActiveByPerson(_ context.Context, personID string) (*models.Card, error) {
	for _, card := range c.s.cards {
		if card.PersonID == personID && card.State == models.CardActive {
			return &card, nil
		}
	}
	return nil, nil
}

func (c cards) Create(ctx context.Context, card *models.Card) error {
	if err := c.writable(); err != nil {
		return err
	}
	if _, ok := c.s.persons[card.PersonID]; !ok {
		return fmt.Errorf("foreign key violation: person %q", card.PersonID)
	}
	if card.State == models.CardActive {
		if existing, _ := c.GetActiveByPerson(ctx, card.PersonID); existing != nil {
			return apperrors.ErrActiveCardExists
		}
	}
	c.s.cards[card.ID] = *card
	return nil
}

func (c cards) UpdateState(ctx context.Context, id string, st models.CardState) error {
	if err := c.writable(); err != nil {
		return err
	}
	card, ok := c.s.cards[id]
	if !ok {
		return apperrors.ErrCardNotFound
	}
	if st == models.CardActive && card.State != models.CardActive {
		if existing, _ := c.GetActiveByPerson(ctx, card.PersonID); existing != nil {
			return apperrors.ErrActiveCardExists
		}
	}
	card.State = st
	c.s.cards[id] = card
	return nil
}

func (c cards) listItem(card models.Card) models.CardListItem {
	p := c.s.persons[card.PersonID]
	return models.CardListItem{
		CardID:     card.ID,
		PersonID:   card.PersonID,
		PersonName: p.Name,
		Category:   p.Category,
		State:      card.State,
		ExpiryDate: card.ExpiryDate,
		CreatedAt:  card.CreatedAt,
	}
}

func (c cards) List(_ context.Context, f models.CardFilter) ([]models.CardListItem, error) {
	items := []models.CardListItem{}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	for _, card := range c.s.cards {
		if f.State != "" && card.State != f.State {
			continue
		}
		it := c.listItem(card)
		if q != "" && !strings.Contains(strings.ToLower(it.PersonName), q) && !strings.Contains(strings.ToLower(it.CardID), q) {
			continue
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].CardID < items[j].CardID
	})
	return page(items, f.Limit, f.Offset), nil
}

func (c cards) ListExpiring(_ context.Context, from, to string) ([]models.CardListItem, error) {
	items := []models.CardListItem{}
	for _, card := range c.s.cards {
		if card.State == models.CardActive && card.ExpiryDate >= from && card.ExpiryDate <= to {
			items = append(items, c.listItem(card))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].ExpiryDate != items[j].ExpiryDate {
			return items[i].ExpiryDate < items[j].ExpiryDate
		}
		return items[i].PersonName < items[j].PersonName
	})
	return items, nil
}

func (c cards) Stats(_ context.Context, today string) (models.CardStats, error) {
	stats := models.CardStats{ByCategory: map[models.Category]int{}}
	for _, card := range c.s.cards {
		stats.Total++
		switch {
		case card.State == models.CardRevoked:
			stats.Revoked++
		case card.ExpiryDate < today:
			stats.Expired++
		default:
			stats.Active++
			stats.ByCategory[c.s.persons[card.PersonID].Category]++
		}
	}
	return stats, nil
}

type sales struct{ *txStore }

func (s sales) Create(_ context.Context, sale *models.Sale) error {
	if err := s.writable(); err != nil {
		return err
	}
	if _, ok := s.s.sales[sale.ID]; ok {
		return fmt.Errorf("duplicate sale id %q", sale.ID)
	}
	s.s.sales[sale.ID] = *sale
	return nil
}

func (s sales) MarkAnnulled(_ context.Context, id string) error {
	if err := s.writable(); err != nil {
		return err
	}
	sale, ok := s.s.sales[id]
	if !ok {
		return nil
	}
	sale.Annulled = true
	s.s.sales[id] = sale
	return nil
}

type redemptions struct{ *txStore }

func (r redemptions) enrich(rd models.Redemption) models.Redemption {
	rd.EventName = r.s.events[rd.EventID].Name
	if card, ok := r.s.cards[rd.CardID]; ok {
		rd.PersonName = r.s.persons[card.PersonID].Name
	}
	return rd
}

func (r redemptions) Create(_ context.Context, rd *models.Redemption) error {
	if err := r.writable(); err != nil {
		return err
	}
	if rd.Outcome == models.OutcomeOK {
		for _, existing := range r.s.redemptions {
			if existing.CardID == rd.CardID && existing.EventID == rd.EventID &&
				existing.Outcome == models.OutcomeOK && !existing.Annulled {
				return apperrors.ErrDuplicateRedemption
			}
		}
	}
	r.s.redemptions[rd.ID] = *rd
	return nil
}

func (r redemptions) GetByID(_ context.Context, id string) (*models.Redemption, error) {
	rd, ok := r.s.redemptions[id]
	if !ok {
		return nil, nil
	}
	rd = r.enrich(rd)
	return &rd, nil
}

func (r redemptions) Annul(_ context.Context, id string, a models.Annulment) error {
	if err := r.writable(); err != nil {
		return err
	}
	rd, ok := r.s.redemptions[id]
	if !ok || rd.Annulled {
		return apperrors.ErrAlreadyAnnulled
	}
	at, by, reason := a.At, a.Operator, a.Reason
	rd.Annulled = true
	rd.AnnulledAt = &at
	rd.AnnulledBy = &by
	rd.AnnulReason = &reason
	r.s.redemptions[id] = rd
	return nil
}

func (r redemptions) sorted(keep func(models.Redemption) bool) []models.Redemption {
	out := []models.Redemption{}
	for _, rd := range r.s.redemptions {
		if keep(rd) {
			out = append(out, r.enrich(rd))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r redemptions) ListAnnullable(_ context.Context, since time.Time, limit int) ([]models.Redemption, error) {
	out := r.sorted(func(rd models.Redemption) bool {
		return rd.Outcome == models.OutcomeOK && !rd.Annulled && !rd.CreatedAt.Before(since)
	})
	return page(out, limit, 0), nil
}

func (r redemptions) List(_ context.Context, f models.RedemptionFilter) ([]models.Redemption, error) {
	out := r.sorted(func(rd models.Redemption) bool {
		if f.CardID != "" && rd.CardID != f.CardID {
			return false
		}
		if f.EventID != "" && rd.EventID != f.EventID {
			return false
		}
		if f.Operator != "" && rd.Operator != f.Operator {
			return false
		}
		return f.IncludeAnnulled || !rd.Annulled
	})
	return page(out, f.Limit, f.Offset), nil
}

func (r redemptions) EventUsage(ctx context.Context, cardID string) ([]models.CardEventUsage, error) {
	evs, _ := events{r.txStore}.List(ctx)
	usage := make([]models.CardEventUsage, 0, len(evs))
	for _, ev := range evs {
		u := models.CardEventUsage{EventID: ev.ID, Name: ev.Name, Date: ev.Date}
		for _, rd := range r.s.redemptions {
			if rd.CardID == cardID && rd.EventID == ev.ID && rd.Outcome == models.OutcomeOK && !rd.Annulled {
				u.Redeemed = true
				break
			}
		}
		usage = append(usage, u)
	}
	return usage, nil
}

type revocations struct{ *txStore }

func (r revocations) Create(_ context.Context, rv *models.Revocation) error {
	if err := r.writable(); err != nil {
		return err
	}
	r.s.revocations = append(r.s.revocations, *rv)
	return nil
}

func (r revocations) ListByCard(_ context.Context, cardID string) ([]models.Revocation, error) {
	out := []models.Revocation{}
	for _, rv := range r.s.revocations {
		if rv.CardID == cardID {
			out = append(out, rv)
		}
	}
	return out, nil
}

func (r revocations) Count(_ context.Context) (int64, error) {
	return int64(len(r.s.revocations)), nil
}

type reports struct{ *txStore }

func (r reports) Daily(_ context.Context, from, to string) ([]models.DailyReportRow, error) {
	byDay := map[string]*models.DailyReportRow{}
	for _, rd := range r.s.redemptions {
		if rd.Outcome != models.OutcomeOK {
			continue
		}
		day := rd.CreatedAt.UTC().Format("2006-01-02")
		if day < from || day > to {
			continue
		}
		row, ok := byDay[day]
		if !ok {
			row = &models.DailyReportRow{Day: day, Revenue: decimal.Zero, ByCategory: map[string]int{}}
			byDay[day] = row
		}
		if rd.Annulled {
			row.Annulled++
			continue
		}
		row.Redemptions++
		if sale, ok := r.s.sales[rd.SaleID]; ok && !sale.Annulled {
			row.Revenue = row.Revenue.Add(sale.PricePaid)
		}
		category := r.s.persons[r.s.cards[rd.CardID].PersonID].Category
		row.ByCategory[string(category)]++
	}

	out := make([]models.DailyReportRow, 0, len(byDay))
	for _, row := range byDay {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
