package store

import (
	"context"
	"errors"

	"rps_duel/internal/room"
)

// ServerTimestamp is a sentinel value for timestamp fields. Writers put it
// into a record; the store replaces it with its own monotonic millisecond
// clock at commit time, so both seats see the same ordering.
const ServerTimestamp int64 = -1

// ErrAborted is returned by a TxnFunc to cancel the commit. RunTransaction
// reports it as committed=false with a nil error: losing a conditional
// transaction is an expected outcome, not a failure.
var ErrAborted = errors.New("store: transaction aborted")

// TxnFunc maps the current record (nil if the room does not exist) to the
// record to commit. The store guarantees the commit only happens if the
// record was not changed by anyone else in between.
type TxnFunc func(cur *room.Record) (*room.Record, error)

// RoomStore is the shared mutable document store the whole protocol runs
// on: a KV with conditional transactions and change subscriptions.
type RoomStore interface {
	// Get returns the current record, or (nil, nil) if the room does not exist.
	Get(ctx context.Context, code string) (*room.Record, error)

	// Set overwrites the record unconditionally.
	Set(ctx context.Context, code string, rec *room.Record) error

	// RunTransaction applies fn atomically against the value present at
	// commit time. committed=false with nil error means fn aborted or lost
	// the conditional check; rec is the record as of the attempt.
	RunTransaction(ctx context.Context, code string, fn TxnFunc) (committed bool, rec *room.Record, err error)

	// Delete removes the record. Subscribers observe a nil snapshot.
	Delete(ctx context.Context, code string) error

	// Subscribe delivers an ordered stream of committed snapshots, starting
	// with the current state. A nil snapshot means the record was deleted.
	Subscribe(ctx context.Context, code string) (*Subscription, error)
}

// Subscription streams record snapshots until closed.
type Subscription struct {
	C    <-chan *room.Record
	stop func()
}

func newSubscription(c <-chan *room.Record, stop func()) *Subscription {
	return &Subscription{C: c, stop: stop}
}

// Close stops delivery and releases the subscription. Safe to call more
// than once.
func (s *Subscription) Close() {
	if s.stop != nil {
		s.stop()
	}
}

// stampServerTime resolves ServerTimestamp sentinels against the store clock.
func stampServerTime(r *room.Record, now int64) {
	if r == nil {
		return
	}
	for _, ts := range []**int64{&r.Player1.Timestamp, &r.Player2.Timestamp} {
		if *ts != nil && **ts == ServerTimestamp {
			v := now
			*ts = &v
		}
	}
	if r.ResetRequest != nil && r.ResetRequest.Timestamp == ServerTimestamp {
		r.ResetRequest.Timestamp = now
	}
	if r.ResetResponse != nil && r.ResetResponse.Timestamp == ServerTimestamp {
		r.ResetResponse.Timestamp = now
	}
	if r.LastUpdated == ServerTimestamp {
		r.LastUpdated = now
	}
}
