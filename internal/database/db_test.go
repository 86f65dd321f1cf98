package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoulah/meterwatch/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestReadingsRoundTrip(t *testing.T) {
	db := openTestDB(t)

	latest, err := db.LatestReading()
	require.NoError(t, err)
	assert.Nil(t, latest)

	for i, remaining := range []float64{20, 19.5, 18.75} {
		r := &models.Reading{Name: "meter", Number: "001", RemainingPower: remaining, RemainingAmount: remaining, UnitPrice: 1, Status: "success"}
		id, err := db.InsertReading(r)
		require.NoError(t, err)
		assert.Equal(t, i+1, id)
	}

	readings, err := db.LatestReadings(2)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, 18.75, readings[0].RemainingPower)
	assert.Equal(t, 19.5, readings[1].RemainingPower)

	latest, err = db.LatestReading()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "success", latest.Status)
}

func TestTrimReadings(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 5; i++ {
		_, err := db.InsertReading(&models.Reading{Name: "m", Number: "1", RemainingPower: float64(i)})
		require.NoError(t, err)
	}

	require.NoError(t, db.TrimReadings(3))

	n, err := db.CountReadings()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	latest, err := db.LatestReading()
	require.NoError(t, err)
	assert.Equal(t, 4.0, latest.RemainingPower)
}

func TestUpsertBucketAccumulates(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.UpsertBucket(models.Daily, "2025-09-17", 0.5, 12, true))
	require.NoError(t, db.UpsertBucket(models.Daily, "2025-09-17", 0.25, 15, true))
	require.NoError(t, db.UpsertBucket(models.Daily, "2025-09-17", 0, 11, true))

	b, err := db.GetBucket(models.Daily, "2025-09-17")
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.InDelta(t, 0.75, b.Usage, 1e-9)
	assert.Equal(t, 3, b.Count)
	assert.Equal(t, 11.0, b.AvgPower)
	require.NotNil(t, b.PeakPower)
	assert.Equal(t, 15.0, *b.PeakPower)
}

func TestUpsertBucketWithoutPeak(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.UpsertBucket(models.Hourly, "2025-09-17-14", 1, 10, false))

	b, err := db.GetBucket(models.Hourly, "2025-09-17-14")
	require.NoError(t, err)
	assert.Nil(t, b.PeakPower)

	missing, err := db.GetBucket(models.Hourly, "2025-09-17-15")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListAndPruneBuckets(t *testing.T) {
	db := openTestDB(t)
	for _, key := range []string{"2025-09-15", "2025-09-17", "2025-09-16"} {
		require.NoError(t, db.UpsertBucket(models.Daily, key, 1, 10, true))
	}
	require.NoError(t, db.UpsertBucket(models.Hourly, "2025-09-01-00", 1, 10, false))

	buckets, err := db.ListBuckets(models.Daily)
	require.NoError(t, err)
	require.Len(t, buckets, 3)
	assert.Equal(t, "2025-09-15", buckets[0].Key)
	assert.Equal(t, "2025-09-17", buckets[2].Key)

	removed, err := db.PruneBuckets(models.Daily, "2025-09-16")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	n, err := db.CountBuckets(models.Daily)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// other granularities are untouched
	n, err = db.CountBuckets(models.Hourly)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSettings(t *testing.T) {
	db := openTestDB(t)

	_, ok, err := db.GetSetting("alertSettings")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.PutSetting("alertSettings", `{"balanceAlert":5}`))
	require.NoError(t, db.PutSetting("alertSettings", `{"balanceAlert":7}`))

	v, ok, err := db.GetSetting("alertSettings")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"balanceAlert":7}`, v)
}

func TestReadingTimestampPreserved(t *testing.T) {
	db := openTestDB(t)
	ts := time.Date(2025, 9, 17, 14, 0, 0, 123, time.UTC)

	_, err := db.InsertReading(&models.Reading{Name: "m", Number: "1", Timestamp: ts})
	require.NoError(t, err)

	latest, err := db.LatestReading()
	require.NoError(t, err)
	assert.True(t, ts.Equal(latest.Timestamp))
}
