package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/johnwards/hsevents/internal/state"
)

// LockTTL is how long a sync lock is honoured before it is considered
// abandoned.
const LockTTL = 600 * time.Second

// Clock returns the current time.
type Clock func() time.Time

// Lock is the advisory, self-expiring sync lock. Its value is the epoch
// second it was taken.
type Lock struct {
	state state.Store
	now   Clock
	ttl   time.Duration
}

// NewLock creates a Lock on st. A nil clock uses time.Now.
func NewLock(st state.Store, now Clock) *Lock {
	if now == nil {
		now = time.Now
	}
	return &Lock{state: st, now: now, ttl: LockTTL}
}

// read returns the raw lock value and whether it is still live. A missing or
// unreadable value is not live.
func (l *Lock) read(ctx context.Context) ([]byte, bool, error) {
	raw, err := l.state.Get(ctx, state.KeySyncLock)
	if errors.Is(err, state.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var taken int64
	if err := json.Unmarshal(raw, &taken); err != nil {
		return raw, false, nil
	}
	return raw, l.now().Unix()-taken < int64(l.ttl/time.Second), nil
}

// Held reports whether a live lock exists.
func (l *Lock) Held(ctx context.Context) (bool, error) {
	_, live, err := l.read(ctx)
	return live, err
}

// Acquire takes the lock unless a live one exists. An expired lock is
// replaced. A stale stop request is cleared on success; if that fails the
// lock is given back.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	cur, live, err := l.read(ctx)
	if err != nil {
		return false, fmt.Errorf("read sync lock: %w", err)
	}
	if live {
		return false, nil
	}

	next, err := json.Marshal(l.now().Unix())
	if err != nil {
		return false, err
	}
	ok, err := l.state.CompareAndSwap(ctx, state.KeySyncLock, cur, next)
	if err != nil || !ok {
		return false, err
	}
	if err := l.state.Delete(ctx, state.KeyStopRequested); err != nil {
		if rerr := l.state.Delete(ctx, state.KeySyncLock); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return false, fmt.Errorf("clear stop flag: %w", err)
	}
	return true, nil
}

// Release drops the lock and any pending stop request.
func (l *Lock) Release(ctx context.Context) error {
	return l.state.Delete(ctx, state.KeySyncLock, state.KeyStopRequested)
}

// RequestStop asks the running sync to stop before its next record.
func (l *Lock) RequestStop(ctx context.Context) error {
	return state.Save(ctx, l.state, state.KeyStopRequested, true)
}

// StopRequested reports whether a stop has been requested.
func (l *Lock) StopRequested(ctx context.Context) (bool, error) {
	v, _, err := state.Load[bool](ctx, l.state, state.KeyStopRequested)
	return v, err
}
