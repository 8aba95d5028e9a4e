package state_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/johnwards/hsevents/internal/domain"
	"github.com/johnwards/hsevents/internal/state"
	"github.com/johnwards/hsevents/internal/testhelpers"
)

var _ state.Store = (*state.BadgerStore)(nil)

func TestGetMissing(t *testing.T) {
	st := testhelpers.NewTestState(t)

	_, err := st.Get(context.Background(), state.KeyLastSyncTime)
	if !errors.Is(err, state.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSetGetDelete(t *testing.T) {
	st := testhelpers.NewTestState(t)
	ctx := context.Background()

	if err := st.Set(ctx, state.KeyEventTypes, []byte(`["Webinar"]`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := st.Get(ctx, state.KeyEventTypes)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `["Webinar"]` {
		t.Errorf("value = %s", got)
	}

	if err := st.Delete(ctx, state.KeyEventTypes, state.KeySyncLock); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.Get(ctx, state.KeyEventTypes); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("after delete err = %v, want ErrNotFound", err)
	}
}

func TestCompareAndSwap(t *testing.T) {
	st := testhelpers.NewTestState(t)
	ctx := context.Background()

	ok, err := st.CompareAndSwap(ctx, state.KeySyncLock, nil, []byte("100"))
	if err != nil || !ok {
		t.Fatalf("first swap = %v, %v; want true", ok, err)
	}

	ok, err = st.CompareAndSwap(ctx, state.KeySyncLock, nil, []byte("200"))
	if err != nil || ok {
		t.Fatalf("swap on present key with nil prev = %v, %v; want false", ok, err)
	}

	ok, err = st.CompareAndSwap(ctx, state.KeySyncLock, []byte("999"), []byte("200"))
	if err != nil || ok {
		t.Fatalf("swap with stale prev = %v, %v; want false", ok, err)
	}

	ok, err = st.CompareAndSwap(ctx, state.KeySyncLock, []byte("100"), []byte("200"))
	if err != nil || !ok {
		t.Fatalf("swap with current prev = %v, %v; want true", ok, err)
	}

	got, _ := st.Get(ctx, state.KeySyncLock)
	if string(got) != "200" {
		t.Errorf("value = %s, want 200", got)
	}
}

func TestCompareAndSwapSingleWinner(t *testing.T) {
	st := testhelpers.NewTestState(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := st.CompareAndSwap(ctx, state.KeySyncLock, nil, []byte("1"))
			if err != nil {
				t.Errorf("swap: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("wins = %d, want 1", wins)
	}
}

func TestSetWithTTLExpires(t *testing.T) {
	st := testhelpers.NewTestState(t)
	ctx := context.Background()

	if err := st.SetWithTTL(ctx, state.KeyFirstSyncNotice, []byte(`{}`), time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := st.Get(ctx, state.KeyFirstSyncNotice); err != nil {
		t.Fatalf("get before expiry: %v", err)
	}

	time.Sleep(2100 * time.Millisecond)

	if _, err := st.Get(ctx, state.KeyFirstSyncNotice); !errors.Is(err, state.ErrNotFound) {
		t.Errorf("get after expiry err = %v, want ErrNotFound", err)
	}
}

func TestLoadSaveGeneric(t *testing.T) {
	st := testhelpers.NewTestState(t)
	ctx := context.Background()

	_, ok, err := state.Load[domain.SyncResult](ctx, st, state.KeyLastSyncResult)
	if err != nil || ok {
		t.Fatalf("load missing = %v, %v", ok, err)
	}

	want := domain.SyncResult{Success: true, Created: 3, SyncType: domain.SyncFull}
	if err := state.Save(ctx, st, state.KeyLastSyncResult, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := state.Load[domain.SyncResult](ctx, st, state.KeyLastSyncResult)
	if err != nil || !ok {
		t.Fatalf("load = %v, %v", ok, err)
	}
	if got.Created != 3 || got.SyncType != domain.SyncFull || !got.Success {
		t.Errorf("loaded = %+v", got)
	}
}

func TestCanceledContext(t *testing.T) {
	st := testhelpers.NewTestState(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := st.Set(ctx, state.KeyEventTypes, []byte("[]")); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
