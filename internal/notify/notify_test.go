package notify

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mmynk/zehem/internal/accounts"
	"github.com/mmynk/zehem/internal/directory"
	"github.com/mmynk/zehem/internal/errs"
	"github.com/mmynk/zehem/internal/messagelog"
	"github.com/mmynk/zehem/internal/storage/sqlite"
)

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()

	accts := accounts.New(store)
	for _, name := range []string{"olga", "bob"} {
		if _, err := accts.Register(ctx, name, name); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	dir := directory.New(store, 0)
	log := messagelog.New(store)
	tracker := New(store)

	var groups []string
	for _, name := range []string{"A", "B"} {
		g, err := dir.CreateGroup(ctx, "olga", name, "", "")
		if err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}
		if _, err := dir.Join(ctx, g.ID, "bob"); err != nil {
			t.Fatalf("Join failed: %v", err)
		}
		groups = append(groups, g.ID)
	}

	for _, body := range []string{"@bob one", "@bob two", "no mention"} {
		if _, err := log.Append(ctx, groups[0], "olga", body); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if _, err := log.Append(ctx, groups[1], "olga", "@everyone hi"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	counts, err := tracker.UnreadCounts(ctx, "bob")
	if err != nil {
		t.Fatalf("UnreadCounts failed: %v", err)
	}
	if counts[groups[0]] != 2 || counts[groups[1]] != 1 {
		t.Errorf("counts = %v, want 2 and 1", counts)
	}

	n, err := tracker.MarkRead(ctx, groups[0], "bob")
	if err != nil {
		t.Fatalf("MarkRead failed: %v", err)
	}
	if n != 2 {
		t.Errorf("MarkRead changed %d mentions, want 2", n)
	}

	n, err = tracker.MarkRead(ctx, groups[0], "bob")
	if err != nil {
		t.Fatalf("second MarkRead failed: %v", err)
	}
	if n != 0 {
		t.Errorf("second MarkRead changed %d mentions, want 0", n)
	}

	unread, err := tracker.Unread(ctx, "bob")
	if err != nil {
		t.Fatalf("Unread failed: %v", err)
	}
	if len(unread) != 1 || unread[0].GroupID != groups[1] {
		t.Errorf("unread = %+v, want one mention in group B", unread)
	}

	// Marking a group with no mentions for the account is fine.
	if _, err := tracker.MarkRead(ctx, groups[0], "olga"); err != nil {
		t.Errorf("MarkRead without mentions failed: %v", err)
	}
	if _, err := tracker.MarkRead(ctx, "missing", "bob"); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("missing group: expected ErrNotFound, got %v", err)
	}
}
