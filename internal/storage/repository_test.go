package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleObservation() Observation {
	price, volume := 65000.5, 3.2e10
	return Observation{
		Name:             "BTC.main",
		Height:           800000,
		Hash:             "abc",
		Time:             time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		LatestURL:        "https://example.test/blocks/abc",
		PreviousHash:     "prev",
		PreviousURL:      "https://example.test/blocks/prev",
		PeerCount:        250,
		UnconfirmedCount: 4200,
		HighFeePerKB:     30000,
		MediumFeePerKB:   20000,
		LowFeePerKB:      10000,
		LastForkHeight:   799990,
		LastForkHash:     "fork",
		Price:            &price,
		Volume24h:        &volume,
	}
}

func TestInsertObservationBindsAllColumns(t *testing.T) {
	db := newFakeDB()
	store := newStore(db, DefaultSchema(""))

	require.NoError(t, store.InsertObservation(context.Background(), sampleObservation()))

	rows := db.rows[DefaultTable]
	require.Len(t, rows, 1)
	args := rows[0]
	require.Len(t, args, len(insertColumns))
	assert.Equal(t, "BTC.main", args[0])
	assert.Equal(t, int64(800000), args[1])
	assert.Equal(t, "abc", args[2])
	assert.Equal(t, 65000.5, args[14])
	assert.Equal(t, 3.2e10, args[15])

	assert.NotContains(t, store.insertSQL, `"id"`)
	assert.NotContains(t, store.insertSQL, `"timestamp"`)
	assert.Contains(t, store.insertSQL, "$16)")
}

func TestInsertObservationNullPrice(t *testing.T) {
	db := newFakeDB()
	store := newStore(db, DefaultSchema(""))

	obs := sampleObservation()
	obs.Price, obs.Volume24h = nil, nil
	require.NoError(t, store.InsertObservation(context.Background(), obs))

	args := db.rows[DefaultTable][0]
	assert.Nil(t, args[14])
	assert.Nil(t, args[15])
}

func TestInsertObservationFailureWritesNothing(t *testing.T) {
	db := newFakeDB()
	db.failOn = "INSERT INTO"
	db.failErr = errors.New("conn closed")
	store := newStore(db, DefaultSchema(""))

	err := store.InsertObservation(context.Background(), sampleObservation())

	var persistErr *PersistenceError
	require.ErrorAs(t, err, &persistErr)
	assert.ErrorIs(t, err, db.failErr)
	assert.Empty(t, db.rows[DefaultTable])
}

func TestInsertObservationZeroRowsAffected(t *testing.T) {
	db := newFakeDB()
	db.affectNil = true
	store := newStore(db, DefaultSchema(""))

	err := store.InsertObservation(context.Background(), sampleObservation())

	var persistErr *PersistenceError
	require.ErrorAs(t, err, &persistErr)
}

func TestInsertObservationWithoutPool(t *testing.T) {
	store := NewStore(nil, DefaultSchema(""))

	err := store.InsertObservation(context.Background(), sampleObservation())

	var persistErr *PersistenceError
	require.ErrorAs(t, err, &persistErr)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAdvisoryLockWithoutPool(t *testing.T) {
	store := NewStore(nil, DefaultSchema(""))
	_, acquired, err := store.TryAdvisoryLock(context.Background(), 42)
	assert.False(t, acquired)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
