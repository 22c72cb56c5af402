package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"rps_duel/internal/room"

	"github.com/jonboulle/clockwork"
)

func TestMemoryTransactionCreateAndAbort(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(clockwork.NewFakeClock())

	committed, rec, err := m.RunTransaction(ctx, "ABCD", func(cur *room.Record) (*room.Record, error) {
		if cur != nil {
			t.Fatal("expected empty room")
		}
		return room.New("alice", ServerTimestamp), nil
	})
	if err != nil || !committed {
		t.Fatalf("create: committed=%v err=%v", committed, err)
	}
	if rec.Player1.Timestamp == nil || *rec.Player1.Timestamp == ServerTimestamp {
		t.Fatal("server timestamp sentinel not resolved")
	}

	committed, rec, err = m.RunTransaction(ctx, "ABCD", func(cur *room.Record) (*room.Record, error) {
		return nil, ErrAborted
	})
	if err != nil {
		t.Fatalf("abort: %v", err)
	}
	if committed {
		t.Fatal("aborted transaction reported committed")
	}
	if rec == nil || !rec.Player1.HeldBy("alice") {
		t.Fatal("abort should return the current record")
	}
}

func TestMemoryTimestampsMonotonic(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(clockwork.NewFakeClock())

	var last int64
	for i := 0; i < 5; i++ {
		_, rec, err := m.RunTransaction(ctx, "ABCD", func(cur *room.Record) (*room.Record, error) {
			return room.New("alice", ServerTimestamp), nil
		})
		if err != nil {
			t.Fatal(err)
		}
		ts := *rec.Player1.Timestamp
		// fake clock never advances, the store still must order commits
		if ts <= last {
			t.Fatalf("timestamp %d not after %d", ts, last)
		}
		last = ts
	}
}

func TestMemorySubscribeDeliversInOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(clockwork.NewFakeClock())

	sub, err := m.Subscribe(ctx, "ABCD")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	// initial snapshot is nil: room does not exist yet
	if rec := <-sub.C; rec != nil {
		t.Fatal("expected nil initial snapshot")
	}

	for i := 1; i <= 3; i++ {
		round := i
		if _, _, err := m.RunTransaction(ctx, "ABCD", func(cur *room.Record) (*room.Record, error) {
			rec := room.New("alice", ServerTimestamp)
			rec.Round = round
			return rec, nil
		}); err != nil {
			t.Fatal(err)
		}
	}

	for i := 1; i <= 3; i++ {
		select {
		case rec := <-sub.C:
			if rec == nil || rec.Round != i {
				t.Fatalf("snapshot %d out of order: %+v", i, rec)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for snapshot %d", i)
		}
	}
}

func TestMemoryDeleteNotifiesNil(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(clockwork.NewFakeClock())

	if err := m.Set(ctx, "ABCD", room.New("alice", ServerTimestamp)); err != nil {
		t.Fatal(err)
	}

	sub, err := m.Subscribe(ctx, "ABCD")
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()

	if rec := <-sub.C; rec == nil {
		t.Fatal("expected initial record")
	}

	if err := m.Delete(ctx, "ABCD"); err != nil {
		t.Fatal(err)
	}

	select {
	case rec := <-sub.C:
		if rec != nil {
			t.Fatalf("expected nil snapshot after delete, got %+v", rec)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delete notification")
	}

	if rec, _ := m.Get(ctx, "ABCD"); rec != nil {
		t.Fatal("record still present after delete")
	}
}

func TestMemorySeatClaimRace(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(clockwork.NewFakeClock())

	if err := m.Set(ctx, "ABCD", room.New("host", ServerTimestamp)); err != nil {
		t.Fatal(err)
	}

	claim := func(id string) bool {
		committed, _, err := m.RunTransaction(ctx, "ABCD", func(cur *room.Record) (*room.Record, error) {
			if cur == nil || cur.Player2.Occupied() {
				return nil, ErrAborted
			}
			cur.Player2 = room.Seat{ID: &id}
			return cur, nil
		})
		if err != nil {
			t.Error(err)
		}
		return committed
	}

	const racers = 8
	results := make([]bool, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = claim(string(rune('a' + i)))
		}(i)
	}
	wg.Wait()

	won := 0
	for _, ok := range results {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("%d racers claimed seat2; want exactly 1", won)
	}
}

func TestMemoryTransactionIsolation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(clockwork.NewFakeClock())

	if err := m.Set(ctx, "ABCD", room.New("alice", ServerTimestamp)); err != nil {
		t.Fatal(err)
	}

	// mutating the snapshot a transaction aborted on must not leak into
	// the stored record
	_, _, err := m.RunTransaction(ctx, "ABCD", func(cur *room.Record) (*room.Record, error) {
		cur.Round = 99
		return nil, ErrAborted
	})
	if err != nil {
		t.Fatal(err)
	}

	rec, _ := m.Get(ctx, "ABCD")
	if rec.Round != 0 {
		t.Fatalf("aborted mutation leaked: round=%d", rec.Round)
	}
}

func memRoomCount(m *Memory) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

func TestMemoryPrunesEmptyEntries(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(clockwork.NewFakeClock())

	// reads of unknown codes leave no trace
	rec, err := m.Get(ctx, "GONE")
	if err != nil || rec != nil {
		t.Fatalf("unknown room: rec=%v err=%v", rec, err)
	}
	if n := memRoomCount(m); n != 0 {
		t.Fatalf("get of unknown room grew the map to %d entries", n)
	}

	// an aborted create leaves no trace either
	if _, _, err := m.RunTransaction(ctx, "GONE", func(cur *room.Record) (*room.Record, error) {
		return nil, ErrAborted
	}); err != nil {
		t.Fatalf("abort txn: %v", err)
	}
	if n := memRoomCount(m); n != 0 {
		t.Fatalf("aborted transaction grew the map to %d entries", n)
	}

	// delete of an existing room removes its entry
	if _, _, err := m.RunTransaction(ctx, "ABCD", func(cur *room.Record) (*room.Record, error) {
		return room.New("alice", ServerTimestamp), nil
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if n := memRoomCount(m); n != 1 {
		t.Fatalf("expected 1 entry after create, got %d", n)
	}
	if err := m.Delete(ctx, "ABCD"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n := memRoomCount(m); n != 0 {
		t.Fatalf("expected 0 entries after delete, got %d", n)
	}

	// a subscription keeps its entry alive until closed
	sub, err := m.Subscribe(ctx, "WXYZ")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if n := memRoomCount(m); n != 1 {
		t.Fatalf("expected 1 entry while subscribed, got %d", n)
	}
	sub.Close()
	if n := memRoomCount(m); n != 0 {
		t.Fatalf("expected 0 entries after subscription closed, got %d", n)
	}
}
