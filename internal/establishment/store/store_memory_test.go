package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cleanplate/internal/establishment/models"
	"cleanplate/internal/platform/metrics"
	"cleanplate/pkg/platform/sentinel"
	"cleanplate/pkg/requestcontext"
)

func TestInMemoryCache(t *testing.T) {
	start := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) context.Context {
		return requestcontext.WithTime(context.Background(), start.Add(d))
	}
	m := metrics.New(prometheus.NewRegistry())
	cache := NewInMemoryCache(5*time.Minute, m)

	record := models.Establishment{CAMIS: "41234567", Name: "JOE'S PIZZA"}
	require.NoError(t, cache.Save(at(0), record))

	t.Run("hit within ttl", func(t *testing.T) {
		got, err := cache.Find(at(4*time.Minute), "41234567")
		require.NoError(t, err)
		assert.Equal(t, "JOE'S PIZZA", got.Name)
	})

	t.Run("miss after ttl", func(t *testing.T) {
		_, err := cache.Find(at(5*time.Minute), "41234567")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.True(t, errors.Is(err, sentinel.ErrNotFound))
	})

	t.Run("newer fetch replaces the snapshot", func(t *testing.T) {
		require.NoError(t, cache.Save(at(10*time.Minute), models.Establishment{CAMIS: "41234567", Name: "JOE'S"}))
		got, err := cache.Find(at(11*time.Minute), "41234567")
		require.NoError(t, err)
		assert.Equal(t, "JOE'S", got.Name)
	})

	t.Run("records without identifier are ignored", func(t *testing.T) {
		require.NoError(t, cache.Save(at(0), models.Establishment{Name: "ANON"}))
		_, err := cache.Find(at(0), "")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, cache.Delete(context.Background(), "41234567"))
		_, err := cache.Find(at(11*time.Minute), "41234567")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("memory", "hit")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("memory", "miss")))
}

func TestInMemoryCacheReturnsCopies(t *testing.T) {
	cache := NewInMemoryCache(time.Minute, nil)
	ctx := context.Background()
	require.NoError(t, cache.Save(ctx, models.Establishment{CAMIS: "1", Name: "ORIGINAL"}))

	got, err := cache.Find(ctx, "1")
	require.NoError(t, err)
	got.Name = "MUTATED"

	again, err := cache.Find(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "ORIGINAL", again.Name)
}
