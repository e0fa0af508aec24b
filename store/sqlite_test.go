package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()

	path := filepath.Join(t.TempDir(), "trades_test.db")
	s, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func runningRecord(id string) Record {
	return Record{
		TradeID:      id,
		Symbol:       "EURUSD",
		Direction:    "BUY",
		EntryPrice:   1.1727,
		CurrentBid:   1.1726,
		CurrentAsk:   1.1728,
		StartTime:    time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
		Status:       StatusRunning,
		TargetPrice:  1.1827,
		TargetKind:   "PROFIT",
		TargetAmount: 100,
		LotSize:      0.1,
		Commission:   1,
	}
}

func closedRecord(id string) Record {
	rec := runningRecord(id)
	rec.Status = StatusCompleted
	end := rec.StartTime.Add(time.Hour)
	rec.EndTime = &end
	price := 1.1827
	rec.ClosingPrice = &price
	rec.ProfitLoss = 100
	return rec
}

func TestUpsertClosedInsertAndGet(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	rec := closedRecord("1000000001")
	require.NoError(t, s.UpsertClosed(rec))

	got, err := s.Get("1000000001")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100.0, got.ProfitLoss)
	require.NotNil(t, got.ClosingPrice)
	assert.InDelta(t, 1.1827, *got.ClosingPrice, 1e-9)
	require.NotNil(t, got.EndTime)
	assert.True(t, got.EndTime.Equal(rec.StartTime.Add(time.Hour)))
}

func TestUpsertClosedIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	rec := closedRecord("1000000002")
	require.NoError(t, s.UpsertClosed(rec))
	once, err := s.Get(rec.TradeID)
	require.NoError(t, err)

	require.NoError(t, s.UpsertClosed(rec))
	twice, err := s.Get(rec.TradeID)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestUpsertClosedDoesNotClobberSettledRow(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	rec := closedRecord("1000000003")
	require.NoError(t, s.UpsertClosed(rec))

	// Admin edit through the unconditional path.
	edited := rec
	edited.ProfitLoss = 42
	require.NoError(t, s.Put(edited))

	// A stale engine snapshot must not undo the edit.
	require.NoError(t, s.UpsertClosed(rec))

	got, err := s.Get(rec.TradeID)
	require.NoError(t, err)
	assert.Equal(t, 42.0, got.ProfitLoss)
}

func TestUpsertClosedOverwritesRunningRow(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	run := runningRecord("1000000004")
	_, err := s.SnapshotRunning([]Record{run})
	require.NoError(t, err)

	closed := closedRecord("1000000004")
	require.NoError(t, s.UpsertClosed(closed))

	got, err := s.Get("1000000004")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestSnapshotRunningBatch(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	recs := []Record{runningRecord("2000000001"), runningRecord("2000000002")}
	n, err := s.SnapshotRunning(recs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Second snapshot updates prices in place.
	recs[0].CurrentBid = 1.1800
	n, err = s.SnapshotRunning(recs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.Get("2000000001")
	require.NoError(t, err)
	assert.InDelta(t, 1.1800, got.CurrentBid, 1e-9)

	n, err = s.SnapshotRunning(nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListClosedOrdersAndFilters(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)

	early := closedRecord("3000000001")
	late := closedRecord("3000000002")
	lateEnd := early.EndTime.Add(2 * time.Hour)
	late.EndTime = &lateEnd
	other := closedRecord("3000000003")
	other.Symbol = "USDJPY"

	require.NoError(t, s.UpsertClosed(early))
	require.NoError(t, s.UpsertClosed(late))
	require.NoError(t, s.UpsertClosed(other))

	// A RUNNING snapshot must not appear in history.
	_, err := s.SnapshotRunning([]Record{runningRecord("3000000004")})
	require.NoError(t, err)

	all, err := s.ListClosed("")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "3000000002", all[0].TradeID) // most recently closed first

	eur, err := s.ListClosed("EURUSD")
	require.NoError(t, err)
	assert.Len(t, eur, 2)
}

func TestDeleteAndExists(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	rec := closedRecord("4000000001")
	require.NoError(t, s.UpsertClosed(rec))

	ok, err := s.Exists(rec.TradeID)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Delete(rec.TradeID))
	assert.ErrorIs(t, s.Delete(rec.TradeID), ErrNotFound)

	_, err = s.Get(rec.TradeID)
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err = s.Exists(rec.TradeID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteAll(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.UpsertClosed(closedRecord("5000000001")))
	require.NoError(t, s.UpsertClosed(closedRecord("5000000002")))
	require.NoError(t, s.DeleteAll())

	all, err := s.ListClosed("")
	require.NoError(t, err)
	assert.Empty(t, all)
}
