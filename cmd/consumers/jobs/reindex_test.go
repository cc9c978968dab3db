package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"tessera/internal/models"
	"tessera/internal/search"
	"tessera/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memIndex struct {
	mu   sync.Mutex
	docs map[string]search.CardDocument
	fail error
}

func (m *memIndex) IndexCard(_ context.Context, doc search.CardDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.docs[doc.CardID] = doc
	return nil
}

func (m *memIndex) UpdateCardState(context.Context, string, models.CardState) error {
	return nil
}

func (m *memIndex) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func storeWithCards(n int) *testutil.MemStore {
	st := testutil.NewMemStore()
	base := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		pid := fmt.Sprintf("P-%04d", i)
		st.AddPerson(models.Person{ID: pid, Name: "Holder " + pid, Category: models.CategoryOther})
		st.AddCard(models.Card{
			ID: fmt.Sprintf("C-%04d", i), PersonID: pid, State: models.CardActive, Token: "t",
			ExpiryDate: "2025-12-31", CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return st
}

func TestReindexPagesThroughAllCards(t *testing.T) {
	n := reindexPageSize*2 + 7
	index := &memIndex{docs: map[string]search.CardDocument{}}
	job := NewReindexJob(storeWithCards(n), index, time.Hour)

	indexed, err := job.Reindex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, n, indexed)
	assert.Equal(t, n, index.count())
	assert.Equal(t, "Holder P-0003", index.docs["C-0003"].PersonName)
}

func TestReindexEmptyStore(t *testing.T) {
	index := &memIndex{docs: map[string]search.CardDocument{}}
	indexed, err := NewReindexJob(testutil.NewMemStore(), index, time.Hour).Reindex(context.Background())
	require.NoError(t, err)
	assert.Zero(t, indexed)
}

func TestReindexStopsOnIndexError(t *testing.T) {
	index := &memIndex{docs: map[string]search.CardDocument{}, fail: errors.New("es down")}
	indexed, err := NewReindexJob(storeWithCards(3), index, time.Hour).Reindex(context.Background())
	require.Error(t, err)
	assert.Zero(t, indexed)
}

func TestStartRunsImmediately(t *testing.T) {
	index := &memIndex{docs: map[string]search.CardDocument{}}
	job := NewReindexJob(storeWithCards(5), index, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job.Start(ctx)
	defer job.Stop()

	assert.Eventually(t, func() bool { return index.count() == 5 }, time.Second, 10*time.Millisecond)
}

func TestDefaultInterval(t *testing.T) {
	job := NewReindexJob(testutil.NewMemStore(), &memIndex{}, 0)
	assert.Equal(t, DefaultReindexInterval, job.interval)
}
