package availability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/kalos-marketplace/internal/schedule"
	"github.com/wolfman30/kalos-marketplace/internal/timeofday"
	"github.com/wolfman30/kalos-marketplace/pkg/logging"
)

func newTestManager(store Store) *Manager {
	return NewManager(store, logging.Default(), WithClock(func() time.Time { return fixedNow }))
}

func generate(t *testing.T, m *Manager, dates ...string) {
	t.Helper()
	_, err := m.GenerateAvailability(context.Background(), "pro-1", dates, standardSchedule())
	require.NoError(t, err)
}

func book(t *testing.T, store Store, date, start, bookingID string) {
	t.Helper()
	ctx := context.Background()
	rec, err := store.Get(ctx, "pro-1", date)
	require.NoError(t, err)
	i := rec.SlotIndex(start)
	require.GreaterOrEqual(t, i, 0, "slot %s missing", start)
	rec.TimeSlots[i].BookingID = bookingID
	require.NoError(t, store.Replace(ctx, rec, rec.Version))
}

func TestGenerateAvailability_StandardDay(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(store)

	res, err := m.GenerateAvailability(context.Background(), "pro-1", []string{monday, sunday}, standardSchedule())
	require.NoError(t, err)
	assert.Equal(t, 2, res.GeneratedCount)

	rec, err := m.GetByDate(context.Background(), "pro-1", monday)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.IsWorkingDay)
	assert.Equal(t, 1, rec.DayOfWeek)
	assert.Equal(t, []string{"09:00", "10:00", "11:00", "12:00", "14:00", "15:00", "16:00", "17:00"}, slotStarts(rec))
	for _, s := range rec.TimeSlots {
		assert.True(t, s.Available)
		assert.False(t, s.Locked)
		assert.Nil(t, s.LockedUntil)
		assert.Empty(t, s.BookingID)
	}

	closed, err := m.GetByDate(context.Background(), "pro-1", sunday)
	require.NoError(t, err)
	assert.False(t, closed.IsWorkingDay)
	assert.Equal(t, 0, closed.DayOfWeek)
	assert.Empty(t, closed.TimeSlots)
}

func TestGenerateAvailability_IsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(store)
	generate(t, m, monday)
	book(t, store, monday, "10:00", "booking-1")

	res, err := m.GenerateAvailability(context.Background(), "pro-1", []string{monday, "2024-06-04"}, standardSchedule())
	require.NoError(t, err)
	assert.Equal(t, 1, res.GeneratedCount)
	assert.Equal(t, "2024-06-04", res.Records[0].Date)

	rec, err := store.Get(context.Background(), "pro-1", monday)
	require.NoError(t, err)
	assert.Equal(t, "booking-1", rec.TimeSlots[1].BookingID)
	assert.Equal(t, int64(2), rec.Version)
}

func TestGenerateAvailability_Validation(t *testing.T) {
	m := newTestManager(NewMemoryStore())
	ctx := context.Background()

	_, err := m.GenerateAvailability(ctx, " ", []string{monday}, standardSchedule())
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = m.GenerateAvailability(ctx, "pro-1", []string{"2024-13-01"}, standardSchedule())
	assert.ErrorIs(t, err, ErrInvalidDate)

	bad := standardSchedule()
	bad.End = "25:00"
	_, err = m.GenerateAvailability(ctx, "pro-1", []string{monday}, bad)
	assert.ErrorIs(t, err, schedule.ErrInvalidSchedule)
}

func TestGetByDate_Missing(t *testing.T) {
	m := newTestManager(NewMemoryStore())
	rec, err := m.GetByDate(context.Background(), "pro-1", monday)
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestGetRange(t *testing.T) {
	m := newTestManager(NewMemoryStore())
	dates, err := DateRange("2024-06-03", "2024-06-09")
	require.NoError(t, err)
	generate(t, m, dates...)

	recs, err := m.GetRange(context.Background(), "pro-1", "2024-06-04", "2024-06-06")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "2024-06-04", recs[0].Date)
	assert.Equal(t, "2024-06-06", recs[2].Date)

	_, err = m.GetRange(context.Background(), "pro-1", "2024-06-06", "2024-06-04")
	assert.ErrorIs(t, err, ErrInvalidDate)

	empty, err := m.GetRange(context.Background(), "pro-2", "2024-06-04", "2024-06-06")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestExceptions_AllDayRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(store)
	generate(t, m, monday)
	ctx := context.Background()

	rec, err := m.AddException(ctx, "pro-1", monday, Exception{AllDay: true, Reason: "holiday"})
	require.NoError(t, err)
	assert.False(t, rec.IsWorkingDay)
	assert.Empty(t, rec.TimeSlots)
	require.Len(t, rec.Exceptions, 1)

	rec, err = m.RemoveException(ctx, "pro-1", monday, 0)
	require.NoError(t, err)
	assert.True(t, rec.IsWorkingDay)
	assert.Empty(t, rec.Exceptions)
	require.Len(t, rec.TimeSlots, 8)
	for _, s := range rec.TimeSlots {
		assert.True(t, s.Offerable(fixedNow))
	}
}

func TestExceptions_RemoveOnNonWorkingDay(t *testing.T) {
	m := newTestManager(NewMemoryStore())
	generate(t, m, sunday)
	ctx := context.Background()

	_, err := m.AddException(ctx, "pro-1", sunday, Exception{AllDay: true})
	require.NoError(t, err)
	rec, err := m.RemoveException(ctx, "pro-1", sunday, 0)
	require.NoError(t, err)
	assert.False(t, rec.IsWorkingDay)
	assert.Empty(t, rec.TimeSlots)
}

func TestExceptions_Partial(t *testing.T) {
	m := newTestManager(NewMemoryStore())
	generate(t, m, monday)
	ctx := context.Background()

	rec, err := m.AddException(ctx, "pro-1", monday, Exception{Start: "10:30", End: "11:15", Reason: "errand"})
	require.NoError(t, err)
	assert.True(t, rec.IsWorkingDay)
	require.Len(t, rec.TimeSlots, 8)
	blocked := map[string]bool{}
	for _, s := range rec.TimeSlots {
		if !s.Available {
			blocked[s.Start] = true
		}
	}
	assert.Equal(t, map[string]bool{"10:00": true, "11:00": true}, blocked)

	openings, err := AvailableSlots(rec, 60, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "12:00", "14:00", "15:00", "16:00", "17:00"}, openingStarts(openings))

	rec, err = m.RemoveException(ctx, "pro-1", monday, 0)
	require.NoError(t, err)
	for _, s := range rec.TimeSlots {
		assert.True(t, s.Available, s.Start)
	}
}

func TestExceptions_PartialSurvivesAllDayRemoval(t *testing.T) {
	m := newTestManager(NewMemoryStore())
	generate(t, m, monday)
	ctx := context.Background()

	_, err := m.AddException(ctx, "pro-1", monday, Exception{Start: "09:00", End: "10:00"})
	require.NoError(t, err)
	_, err = m.AddException(ctx, "pro-1", monday, Exception{AllDay: true})
	require.NoError(t, err)

	rec, err := m.RemoveException(ctx, "pro-1", monday, 1)
	require.NoError(t, err)
	require.Len(t, rec.TimeSlots, 8)
	assert.False(t, rec.TimeSlots[0].Available)
	assert.True(t, rec.TimeSlots[1].Available)
}

func TestExceptions_RejectBookedSlots(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(store)
	generate(t, m, monday)
	book(t, store, monday, "15:00", "booking-1")
	ctx := context.Background()

	_, err := m.AddException(ctx, "pro-1", monday, Exception{AllDay: true})
	assert.ErrorIs(t, err, ErrOrphanedBookings)

	_, err = m.AddException(ctx, "pro-1", monday, Exception{Start: "14:30", End: "15:30"})
	assert.ErrorIs(t, err, ErrOrphanedBookings)

	rec, err := m.AddException(ctx, "pro-1", monday, Exception{Start: "09:00", End: "10:00"})
	require.NoError(t, err)
	assert.Len(t, rec.Exceptions, 1)
}

func TestExceptions_PartialDropsLocks(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(store)
	generate(t, m, monday)
	ctx := context.Background()

	rec, err := store.Get(ctx, "pro-1", monday)
	require.NoError(t, err)
	rec.TimeSlots[0].Lock("hold-1", fixedNow.Add(5*time.Minute))
	require.NoError(t, store.Replace(ctx, rec, rec.Version))

	rec, err = m.AddException(ctx, "pro-1", monday, Exception{Start: "09:00", End: "09:30"})
	require.NoError(t, err)
	assert.False(t, rec.TimeSlots[0].Locked)
	assert.Empty(t, rec.TimeSlots[0].LockID)
}

func TestExceptions_Errors(t *testing.T) {
	m := newTestManager(NewMemoryStore())
	generate(t, m, monday)
	ctx := context.Background()

	_, err := m.AddException(ctx, "pro-1", "2024-06-04", Exception{AllDay: true})
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = m.AddException(ctx, "pro-1", monday, Exception{Start: "11:00", End: "10:00"})
	assert.ErrorIs(t, err, ErrInvalidException)

	_, err = m.RemoveException(ctx, "pro-1", monday, 0)
	assert.ErrorIs(t, err, ErrInvalidException)

	_, err = m.RemoveException(ctx, "pro-1", monday, -1)
	assert.ErrorIs(t, err, ErrInvalidException)
}

func TestUpdateBaseSchedule_MergesBookingsAndLocks(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(store)
	generate(t, m, monday, "2024-06-04")
	book(t, store, monday, "10:00", "booking-1")
	ctx := context.Background()

	rec, err := store.Get(ctx, "pro-1", monday)
	require.NoError(t, err)
	rec.TimeSlots[5].Lock("hold-1", fixedNow.Add(5*time.Minute))
	require.NoError(t, store.Replace(ctx, rec, rec.Version))

	longer := standardSchedule()
	longer.End = "20:00"
	res, err := m.UpdateBaseSchedule(ctx, "pro-1", longer, UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.UpdatedCount)
	assert.Empty(t, res.Orphaned)

	rec, err = store.Get(ctx, "pro-1", monday)
	require.NoError(t, err)
	assert.Len(t, rec.TimeSlots, 10)
	assert.Equal(t, "20:00", rec.BaseSchedule.End)
	assert.Equal(t, "booking-1", rec.TimeSlots[rec.SlotIndex("10:00")].BookingID)
	held := rec.TimeSlots[rec.SlotIndex("15:00")]
	assert.True(t, held.HeldBy("hold-1", fixedNow))
}

func TestUpdateBaseSchedule_RejectsOrphans(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(store)
	generate(t, m, monday)
	book(t, store, monday, "17:00", "booking-1")
	ctx := context.Background()

	shorter := standardSchedule()
	shorter.End = "17:00"
	res, err := m.UpdateBaseSchedule(ctx, "pro-1", shorter, UpdateOptions{})
	assert.ErrorIs(t, err, ErrOrphanedBookings)
	require.Len(t, res.Orphaned, 1)
	assert.Equal(t, Orphan{Date: monday, BookingID: "booking-1", Start: "17:00", End: "18:00"}, res.Orphaned[0])

	rec, err := store.Get(ctx, "pro-1", monday)
	require.NoError(t, err)
	assert.Len(t, rec.TimeSlots, 8)
	assert.Equal(t, "18:00", rec.BaseSchedule.End)

	res, err = m.UpdateBaseSchedule(ctx, "pro-1", shorter, UpdateOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedCount)
	require.Len(t, res.Orphaned, 1)

	rec, err = store.Get(ctx, "pro-1", monday)
	require.NoError(t, err)
	assert.Len(t, rec.TimeSlots, 7)
}

func TestUpdateBaseSchedule_SkipsPastDates(t *testing.T) {
	store := NewMemoryStore()
	m := newTestManager(store)
	generate(t, m, "2024-05-31", monday)

	longer := standardSchedule()
	longer.End = "19:00"
	res, err := m.UpdateBaseSchedule(context.Background(), "pro-1", longer, UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.UpdatedCount)

	past, err := store.Get(context.Background(), "pro-1", "2024-05-31")
	require.NoError(t, err)
	assert.Equal(t, "18:00", past.BaseSchedule.End)
}

func TestUpdateBaseSchedule_KeepsAllDayException(t *testing.T) {
	m := newTestManager(NewMemoryStore())
	generate(t, m, monday)
	ctx := context.Background()
	_, err := m.AddException(ctx, "pro-1", monday, Exception{AllDay: true})
	require.NoError(t, err)

	_, err = m.UpdateBaseSchedule(ctx, "pro-1", standardSchedule(), UpdateOptions{})
	require.NoError(t, err)

	rec, err := m.GetByDate(ctx, "pro-1", monday)
	require.NoError(t, err)
	assert.False(t, rec.IsWorkingDay)
	assert.Empty(t, rec.TimeSlots)
}

// flakyStore loses the first n compare-and-swap attempts.
type flakyStore struct {
	*MemoryStore
	mu        sync.Mutex
	conflicts int
	replaces  int
}

func (s *flakyStore) Replace(ctx context.Context, rec *Record, expected int64) error {
	s.mu.Lock()
	s.replaces++
	if s.conflicts > 0 {
		s.conflicts--
		s.mu.Unlock()
		return ErrConflict
	}
	s.mu.Unlock()
	return s.MemoryStore.Replace(ctx, rec, expected)
}

func TestMutate_RetriesConflicts(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), conflicts: 2}
	m := newTestManager(store)
	generate(t, m, monday)

	_, err := m.AddException(context.Background(), "pro-1", monday, Exception{AllDay: true})
	require.NoError(t, err)
	assert.Equal(t, 3, store.replaces)
}

func TestMutate_GivesUp(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), conflicts: 100}
	m := NewManager(store, nil, WithClock(func() time.Time { return fixedNow }), WithMaxAttempts(3))
	generate(t, m, monday)

	_, err := m.AddException(context.Background(), "pro-1", monday, Exception{AllDay: true})
	assert.True(t, errors.Is(err, ErrConflict))
	assert.Equal(t, 3, store.replaces)
}

func TestConcurrentExceptions_AllApplied(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, nil, WithClock(func() time.Time { return fixedNow }), WithMaxAttempts(50))
	generate(t, m, monday)

	var wg sync.WaitGroup
	for _, start := range []string{"09:00", "10:00", "11:00", "14:00"} {
		wg.Add(1)
		go func(start string) {
			defer wg.Done()
			end, err := timeofday.AddDuration(start, 60)
			assert.NoError(t, err)
			_, err = m.AddException(context.Background(), "pro-1", monday, Exception{Start: start, End: end})
			assert.NoError(t, err)
		}(start)
	}
	wg.Wait()

	rec, err := store.Get(context.Background(), "pro-1", monday)
	require.NoError(t, err)
	assert.Len(t, rec.Exceptions, 4)
}
