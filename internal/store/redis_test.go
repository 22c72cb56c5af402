package store

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"

	"rps_duel/internal/room"
)

// Integration-style test: runs only if REDIS_ADDR env is set.
func redisStore(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set; skipping integration test")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unreachable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewRedis(client)
}

func TestRedisTransactionIntegration(t *testing.T) {
	s := redisStore(t)
	ctx := context.Background()
	code := "IT" + room.NewCode()[:2]
	defer s.Delete(ctx, code)

	committed, rec, err := s.RunTransaction(ctx, code, func(cur *room.Record) (*room.Record, error) {
		if cur != nil {
			return nil, ErrAborted
		}
		return room.New("host", ServerTimestamp), nil
	})
	if err != nil {
		t.Fatalf("create txn: %v", err)
	}
	if !committed {
		t.Fatal("expected create to commit")
	}
	if rec.Player1.ID == nil || *rec.Player1.ID != "host" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if rec.Player1.Timestamp == nil || *rec.Player1.Timestamp <= 0 {
		t.Fatal("server timestamp was not resolved")
	}

	// second creator must observe the room and abort
	committed, _, err = s.RunTransaction(ctx, code, func(cur *room.Record) (*room.Record, error) {
		if cur != nil {
			return nil, ErrAborted
		}
		return room.New("other", ServerTimestamp), nil
	})
	if err != nil {
		t.Fatalf("abort txn: %v", err)
	}
	if committed {
		t.Fatal("expected abort, got commit")
	}
}

func TestRedisSeatRaceIntegration(t *testing.T) {
	s := redisStore(t)
	ctx := context.Background()
	code := "IR" + room.NewCode()[:2]
	defer s.Delete(ctx, code)

	if _, _, err := s.RunTransaction(ctx, code, func(cur *room.Record) (*room.Record, error) {
		return room.New("host", ServerTimestamp), nil
	}); err != nil {
		t.Fatalf("seed room: %v", err)
	}

	var wg sync.WaitGroup
	wins := make(chan string, 8)
	for i := 0; i < 8; i++ {
		id := "guest" + string(rune('A'+i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			committed, _, err := s.RunTransaction(ctx, code, func(cur *room.Record) (*room.Record, error) {
				if cur == nil || cur.Player2.Occupied() {
					return nil, ErrAborted
				}
				next := cur.Clone()
				next.Player2.ID = &id
				return next, nil
			})
			if err == nil && committed {
				wins <- id
			}
		}()
	}
	wg.Wait()
	close(wins)

	var winners []string
	for id := range wins {
		winners = append(winners, id)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one seat winner, got %v", winners)
	}
}

func TestRedisSubscribeIntegration(t *testing.T) {
	s := redisStore(t)
	ctx := context.Background()
	code := "IS" + room.NewCode()[:2]
	defer s.Delete(ctx, code)

	sub, err := s.Subscribe(ctx, code)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	// initial snapshot for a missing room is nil
	select {
	case rec := <-sub.C:
		if rec != nil {
			t.Fatalf("expected nil initial snapshot, got %+v", rec)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial snapshot")
	}

	if _, _, err := s.RunTransaction(ctx, code, func(cur *room.Record) (*room.Record, error) {
		return room.New("host", ServerTimestamp), nil
	}); err != nil {
		t.Fatalf("seed room: %v", err)
	}

	select {
	case rec := <-sub.C:
		if rec == nil || rec.Player1.ID == nil || *rec.Player1.ID != "host" {
			t.Fatalf("unexpected snapshot: %+v", rec)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no commit notification")
	}

	if err := s.Delete(ctx, code); err != nil {
		t.Fatalf("delete: %v", err)
	}
	select {
	case rec := <-sub.C:
		if rec != nil {
			t.Fatalf("expected nil snapshot after delete, got %+v", rec)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no delete notification")
	}
}

func TestVersionGateDropsStaleSnapshots(t *testing.T) {
	at := func(v uint64) *room.Record {
		r := room.New("host", 1)
		r.Version = v
		return r
	}

	var g versionGate
	g.last = 3 // initial snapshot at version 3

	if g.admit(at(2)) {
		t.Fatal("stale snapshot admitted")
	}
	if g.admit(at(3)) {
		t.Fatal("duplicate snapshot admitted")
	}
	if !g.admit(at(4)) {
		t.Fatal("newer snapshot dropped")
	}
	if g.admit(at(4)) {
		t.Fatal("replayed snapshot admitted")
	}

	// deletion always passes and resets the sequence for a recreated room
	if !g.admit(nil) {
		t.Fatal("deletion dropped")
	}
	if !g.admit(at(1)) {
		t.Fatal("recreated room dropped")
	}
}
