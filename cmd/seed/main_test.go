package main

import (
	"math/rand"
	"testing"

	"tessera/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSeedIsDeterministic(t *testing.T) {
	a := BuildSeed(20, rand.New(rand.NewSource(7)))
	b := BuildSeed(20, rand.New(rand.NewSource(7)))
	assert.Equal(t, a, b)

	require.Len(t, a.Persons, 20)
	assert.Equal(t, "P-0001", a.Persons[0].ID)
	assert.Equal(t, "P-0020", a.Persons[19].ID)
	for _, p := range a.Persons {
		_, err := models.ParseCategory(string(p.Category))
		assert.NoError(t, err)
	}
}

func TestDefaultTariffsLeaveOtherOnBasePrice(t *testing.T) {
	tariffs := defaultTariffs()
	require.Len(t, tariffs, 4)
	for _, tr := range tariffs {
		assert.NotEqual(t, models.CategoryOther, tr.Category)
	}
}

func TestDefaultEventsHaveValidDates(t *testing.T) {
	for _, e := range defaultEvents() {
		_, err := models.ParseExpiryDate(e.Date)
		assert.NoError(t, err, e.ID)
		assert.True(t, e.BasePrice.IsPositive(), e.ID)
	}
}
