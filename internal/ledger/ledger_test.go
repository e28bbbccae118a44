package ledger

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mmynk/zehem/internal/accounts"
	"github.com/mmynk/zehem/internal/errs"
	"github.com/mmynk/zehem/internal/models"
	"github.com/mmynk/zehem/internal/storage"
	"github.com/mmynk/zehem/internal/storage/sqlite"
)

func setupLedger(t *testing.T) (*Ledger, storage.Store) {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if _, err := accounts.New(store).Register(context.Background(), "u1", "alice"); err != nil {
		t.Fatalf("failed to register account: %v", err)
	}
	return New(store), store
}

func TestApplyDeltaClampsAtZero(t *testing.T) {
	l, _ := setupLedger(t)
	ctx := context.Background()

	if _, err := l.ApplyDelta(ctx, "u1", 3, ""); err != nil {
		t.Fatalf("ApplyDelta failed: %v", err)
	}

	entry, err := l.ApplyDelta(ctx, "u1", -1000, models.ActionPostDeleted)
	if err != nil {
		t.Fatalf("ApplyDelta over-deduction returned error: %v", err)
	}
	if entry.BalanceAfter != 0 {
		t.Errorf("BalanceAfter = %d, want 0", entry.BalanceAfter)
	}
	if entry.Requested != -1000 || entry.Applied != -3 {
		t.Errorf("Requested/Applied = %d/%d, want -1000/-3", entry.Requested, entry.Applied)
	}
	if !entry.Clamped() {
		t.Error("expected entry to be marked clamped")
	}

	balance, err := l.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance != 0 {
		t.Errorf("balance = %d, want 0", balance)
	}
}

func TestApplyDeltaDefaultsToAdjustment(t *testing.T) {
	l, _ := setupLedger(t)

	entry, err := l.ApplyDelta(context.Background(), "u1", 5, "")
	if err != nil {
		t.Fatalf("ApplyDelta failed: %v", err)
	}
	if entry.Action != models.ActionAdjustment {
		t.Errorf("Action = %q, want %q", entry.Action, models.ActionAdjustment)
	}
	if entry.Clamped() {
		t.Error("credit must not be clamped")
	}
}

func TestApplyDeltaRejectsOverflow(t *testing.T) {
	l, _ := setupLedger(t)
	ctx := context.Background()

	if _, err := l.ApplyDelta(ctx, "u1", 7, ""); err != nil {
		t.Fatalf("ApplyDelta failed: %v", err)
	}
	if _, err := l.ApplyDelta(ctx, "u1", math.MaxInt64, ""); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}

	balance, err := l.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance != 7 {
		t.Errorf("balance = %d, want 7", balance)
	}
}

func TestApplyDeltaUnknownAccount(t *testing.T) {
	l, _ := setupLedger(t)

	if _, err := l.ApplyDelta(context.Background(), "ghost", 1, ""); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentDeltasLoseNothing(t *testing.T) {
	l, _ := setupLedger(t)
	ctx := context.Background()

	if _, err := l.ApplyDelta(ctx, "u1", 100, ""); err != nil {
		t.Fatalf("ApplyDelta failed: %v", err)
	}

	const n = 40
	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			action := models.ActionPostCreated
			if i%2 == 1 {
				action = models.ActionCommentCreated
			}
			if _, err := l.Reward(ctx, "u1", action); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("Reward failed: %v", err)
	}

	balance, err := l.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if balance != 100+n {
		t.Errorf("balance = %d, want %d", balance, 100+n)
	}

	entries, err := l.Entries(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != n+1 {
		t.Errorf("got %d entries, want %d", len(entries), n+1)
	}
}

func TestReward(t *testing.T) {
	l, _ := setupLedger(t)
	ctx := context.Background()

	steps := []struct {
		action models.Action
		want   int64
	}{
		{models.ActionGroupCreated, 1},
		{models.ActionPostCreated, 2},
		{models.ActionCommentCreated, 3},
		{models.ActionCommentDeleted, 2},
		{models.ActionPostDeleted, 1},
		{models.ActionGroupDeleted, 0},
		{models.ActionGroupDeleted, 0},
	}
	for _, step := range steps {
		entry, err := l.Reward(ctx, "u1", step.action)
		if err != nil {
			t.Fatalf("Reward(%s) failed: %v", step.action, err)
		}
		if entry.BalanceAfter != step.want {
			t.Errorf("after %s balance = %d, want %d", step.action, entry.BalanceAfter, step.want)
		}
	}

	if _, err := l.Reward(ctx, "u1", models.ActionCoinsBought); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for non-social action, got %v", err)
	}
}

func TestExchange(t *testing.T) {
	l, _ := setupLedger(t)
	ctx := context.Background()

	if _, err := l.Exchange(ctx, "u1", Sell); !errors.Is(err, errs.ErrInsufficientFunds) {
		t.Fatalf("sell on empty balance: expected ErrInsufficientFunds, got %v", err)
	}

	entry, err := l.Exchange(ctx, "u1", Buy)
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if entry.BalanceAfter != ExchangeAmount || entry.Action != models.ActionCoinsBought {
		t.Errorf("unexpected buy entry: %+v", entry)
	}

	entry, err = l.Exchange(ctx, "u1", Sell)
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}
	if entry.BalanceAfter != 0 || entry.Action != models.ActionCoinsSold {
		t.Errorf("unexpected sell entry: %+v", entry)
	}

	if _, err := l.Exchange(ctx, "u1", "gift"); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}

	// A failed sell leaves no trace.
	entries, err := l.Entries(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}
}

func TestWatch(t *testing.T) {
	l, _ := setupLedger(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *models.LedgerEntry, 4)
	sub, err := l.Watch(ctx, "u1", func(e *models.LedgerEntry) { got <- e })
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	defer sub.Cancel()

	if _, err := l.Reward(ctx, "u1", models.ActionPostCreated); err != nil {
		t.Fatalf("Reward failed: %v", err)
	}

	select {
	case e := <-got:
		if e.BalanceAfter != 1 || e.AccountID != "u1" {
			t.Errorf("unexpected entry: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no balance notification")
	}
}
