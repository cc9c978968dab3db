package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tessera/internal/clock"
	"tessera/internal/credential"
	"tessera/internal/models"
	"tessera/internal/service"
	"tessera/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testSecret = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

var t0 = time.Date(2025, 7, 15, 18, 30, 0, 0, time.UTC)

type publishedEvent struct {
	subject string
	data    interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	fail   bool
}

func (p *recordingPublisher) Publish(subject string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("nats down")
	}
	p.events = append(p.events, publishedEvent{subject: subject, data: data})
	return nil
}

func (p *recordingPublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.subject
	}
	return out
}

type fakeCache struct {
	mu          sync.Mutex
	reports     map[string][]models.DailyReportRow
	gets        int
	invalidated int
}

func newFakeCache() *fakeCache {
	return &fakeCache{reports: map[string][]models.DailyReportRow{}}
}

func (c *fakeCache) GetDailyReport(_ context.Context, from, to string, dst interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	r, ok := c.reports[from+":"+to]
	if !ok {
		return false, nil
	}
	*(dst.(*[]models.DailyReportRow)) = r
	return true, nil
}

func (c *fakeCache) SetDailyReport(_ context.Context, from, to string, report interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports[from+":"+to] = report.([]models.DailyReportRow)
	return nil
}

func (c *fakeCache) InvalidateReports(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated++
	c.reports = map[string][]models.DailyReportRow{}
	return nil
}

type fixture struct {
	svc   *service.Services
	mem   *testutil.MemStore
	clock *clock.Manual
	pub   *recordingPublisher
	cache *fakeCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		mem:   testutil.NewMemStore(),
		clock: clock.NewManual(t0),
		pub:   &recordingPublisher{},
		cache: newFakeCache(),
	}
	f.svc = service.NewServices(f.mem, service.Options{
		Secrets:     credential.StaticSecret(testSecret),
		Clock:       f.clock,
		Publisher:   f.pub,
		ReportCache: f.cache,
	})

	f.mem.AddPerson(models.Person{ID: "alice", Name: "Alice Bianchi", Category: models.CategoryStudent, DocVerified: true})
	f.mem.AddPerson(models.Person{ID: "bob", Name: "Bob Verdi", Category: models.CategoryOther})
	f.mem.AddEvent(models.Event{ID: "concert", Name: "Concert", Date: "2025-07-20", Venue: "Teatro Sanzio", BasePrice: dec("20")})
	f.mem.AddEvent(models.Event{ID: "recital", Name: "Recital", Date: "2025-07-22", Venue: "Oratorio", BasePrice: dec("15")})
	f.mem.SetTariff(models.CategoryStudent, dec("9"))
	return f
}

func (f *fixture) issue(t *testing.T, personID string) *models.IssueCardResponse {
	t.Helper()
	resp, err := f.svc.Cards.Issue(context.Background(), &models.IssueCardRequest{PersonID: personID})
	require.NoError(t, err)
	return resp
}

func (f *fixture) sell(cardID, eventID string) (*models.SellResponse, error) {
	return f.svc.Sales.Sell(context.Background(), &models.SellRequest{CardID: cardID, EventID: eventID, Operator: "op1"})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
