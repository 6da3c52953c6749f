package catalog

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-hotspot/billing"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	plans := c.List()
	require.Len(t, plans, 3)
	assert.Equal(t, []string{"Instant Surf", "Flexi Surf", "Endless Surf"},
		[]string{plans[0].Name, plans[1].Name, plans[2].Name})

	flexi, err := c.Get("2")
	require.NoError(t, err)
	assert.Equal(t, 168*time.Hour, flexi.Duration())
	assert.Equal(t, int64(9975), flexi.PriceUGX)
	assert.Equal(t, int64(10500), flexi.ListPrice())
}

func TestGetUnknownPlan(t *testing.T) {
	_, err := Default().Get("42")
	assert.ErrorIs(t, err, billing.ErrInvalidPlan)
}

func TestInactivePlansAreHidden(t *testing.T) {
	c, err := New([]Plan{
		{ID: "a", Name: "A", DurationHours: 1, Type: Daily},
		{ID: "b", Name: "B", DurationHours: 2, Type: Daily, Inactive: true},
	})
	require.NoError(t, err)

	assert.Len(t, c.List(), 1)
	_, err = c.Get("b")
	assert.ErrorIs(t, err, billing.ErrInvalidPlan)
}

func TestNewRejectsInvalidPlans(t *testing.T) {
	tests := []struct {
		name string
		plan Plan
	}{
		{"missing id", Plan{Name: "x", DurationHours: 1, Type: Daily}},
		{"zero duration", Plan{ID: "x", Name: "x", Type: Daily}},
		{"negative price", Plan{ID: "x", Name: "x", DurationHours: 1, PriceUGX: -1, Type: Daily}},
		{"full discount", Plan{ID: "x", Name: "x", DurationHours: 1, DiscountPercent: 100, Type: Daily}},
		{"unknown type", Plan{ID: "x", Name: "x", DurationHours: 1, Type: "yearly"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New([]Plan{tt.plan})
			assert.ErrorIs(t, err, billing.ErrInvalidInput)
		})
	}

	_, err := New([]Plan{
		{ID: "x", Name: "x", DurationHours: 1, Type: Daily},
		{ID: "x", Name: "y", DurationHours: 2, Type: Daily},
	})
	assert.ErrorContains(t, err, "duplicate")
}

func TestReplaceKeepsOldSnapshotOnError(t *testing.T) {
	c := Default()

	err := c.Replace([]Plan{{ID: "9", Name: "Broken", Type: Daily}})
	require.Error(t, err)
	assert.Len(t, c.List(), 3)

	require.NoError(t, c.Replace([]Plan{{ID: "9", Name: "Night Owl", DurationHours: 8, PriceUGX: 500, Type: Daily}}))
	assert.Len(t, c.List(), 1)
	_, err = c.Get("1")
	assert.ErrorIs(t, err, billing.ErrInvalidPlan)
}

func TestReplaceConcurrentReaders(t *testing.T) {
	c := Default()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				n := len(c.List())
				assert.True(t, n == 3 || n == 1)
			}
		}()
	}
	for j := 0; j < 50; j++ {
		if j%2 == 0 {
			require.NoError(t, c.Replace(defaultPlans()[:1]))
		} else {
			require.NoError(t, c.Replace(defaultPlans()))
		}
	}
	wg.Wait()
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
plans:
  - id: night
    name: Night Owl
    duration_hours: 8
    price_ugx: 500
    type: daily
  - id: "2"
    name: Flexi Surf
    duration_hours: 168
    price_ugx: 9975
    discount_percent: 5
    type: weekly
`), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)

	p, err := c.Get("night")
	require.NoError(t, err)
	assert.Equal(t, 8*time.Hour, p.Duration())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
