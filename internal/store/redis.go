package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"rps_duel/internal/room"

	"github.com/prometheus/client_golang/prometheus"
	redis "github.com/redis/go-redis/v9"
)

const txnMaxRetries = 16

var txnRetries = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "room_store_txn_retries_total",
	Help: "Conditional transactions retried after losing the optimistic check",
})

func init() {
	prometheus.MustRegister(txnRetries)
}

// Redis is a RoomStore over a Redis instance shared by all server nodes.
// Records live as JSON under room:<code>; conditional transactions use
// WATCH/MULTI keyed on the record version, change fan-out uses pub/sub
// carrying the committed record.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func roomKey(code string) string     { return "room:" + code }
func roomChannel(code string) string { return "room_events:" + code }

func (r *Redis) now(ctx context.Context) int64 {
	// server-assigned time so both seats agree on move ordering
	if t, err := r.client.Time(ctx).Result(); err == nil {
		return t.UnixMilli()
	}
	return time.Now().UnixMilli()
}

func decodeRecord(data []byte) (*room.Record, error) {
	var rec *room.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode room record: %w", err)
	}
	return rec, nil
}

func (r *Redis) Get(ctx context.Context, code string) (*room.Record, error) {
	data, err := r.client.Get(ctx, roomKey(code)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(data)
}

func (r *Redis) Set(ctx context.Context, code string, rec *room.Record) error {
	_, _, err := r.RunTransaction(ctx, code, func(*room.Record) (*room.Record, error) {
		return rec.Clone(), nil
	})
	return err
}

func (r *Redis) RunTransaction(ctx context.Context, code string, fn TxnFunc) (bool, *room.Record, error) {
	key := roomKey(code)

	var (
		committed bool
		result    *room.Record
	)

	attempt := func(tx *redis.Tx) error {
		committed = false

		data, err := tx.Get(ctx, key).Bytes()
		var cur *room.Record
		if err == redis.Nil {
			cur = nil
		} else if err != nil {
			return err
		} else {
			if cur, err = decodeRecord(data); err != nil {
				return err
			}
		}

		next, err := fn(cur.Clone())
		if err == ErrAborted || (err == nil && next == nil) {
			result = cur
			return nil
		}
		if err != nil {
			return err
		}

		stampServerTime(next, r.now(ctx))
		if cur != nil {
			next.Version = cur.Version + 1
		} else {
			next.Version = 1
		}

		buf, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, buf, 0)
			pipe.Publish(ctx, roomChannel(code), buf)
			return nil
		})
		if err != nil {
			return err
		}

		committed = true
		result = next
		return nil
	}

	for i := 0; i < txnMaxRetries; i++ {
		err := r.client.Watch(ctx, attempt, key)
		if err == redis.TxFailedErr {
			// someone else committed between WATCH and EXEC
			txnRetries.Inc()
			continue
		}
		if err != nil {
			return false, nil, err
		}
		return committed, result, nil
	}
	return false, nil, fmt.Errorf("room %s: transaction contention, gave up after %d attempts", code, txnMaxRetries)
}

func (r *Redis) Delete(ctx context.Context, code string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, roomKey(code))
		pipe.Publish(ctx, roomChannel(code), []byte("null"))
		return nil
	})
	return err
}

// versionGate drops snapshots older than the last delivered one. Commits
// published between a subscriber's SUBSCRIBE and its initial read arrive
// after the newer initial snapshot; without the gate they would be
// delivered out of order.
type versionGate struct {
	last uint64
}

func (g *versionGate) admit(rec *room.Record) bool {
	if rec == nil {
		// deletion; a recreated room starts versioning over
		g.last = 0
		return true
	}
	if rec.Version <= g.last {
		return false
	}
	g.last = rec.Version
	return true
}

func (r *Redis) Subscribe(ctx context.Context, code string) (*Subscription, error) {
	ps := r.client.Subscribe(ctx, roomChannel(code))
	// force the SUBSCRIBE to complete before the initial Get, otherwise a
	// commit between the two could be missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	out := make(chan *room.Record)
	done := make(chan struct{})

	initial, err := r.Get(ctx, code)
	if err != nil {
		_ = ps.Close()
		return nil, err
	}

	go func() {
		defer close(out)

		var gate versionGate
		if initial != nil {
			gate.last = initial.Version
		}
		select {
		case out <- initial:
		case <-done:
			return
		}

		for msg := range ps.Channel() {
			rec, err := decodeRecord([]byte(msg.Payload))
			if err != nil {
				continue
			}
			if !gate.admit(rec) {
				continue
			}
			select {
			case out <- rec:
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}
	return newSubscription(out, stop), nil
}
