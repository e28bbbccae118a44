// Package notify tracks which mentions each account has not yet seen.
//
// Read state is coarse: opening a group's message view marks every mention
// for that account in that group as read.
package notify

import (
	"context"
	"fmt"

	"github.com/mmynk/zehem/internal/directory"
	"github.com/mmynk/zehem/internal/models"
	"github.com/mmynk/zehem/internal/storage"
)

// Tracker reads and updates mention read state.
type Tracker struct {
	store storage.Store
}

// New creates a Tracker backed by store.
func New(store storage.Store) *Tracker {
	return &Tracker{store: store}
}

// MarkRead marks every unread mention of accountID in the group as read and
// returns how many changed. Calling it again is a no-op.
func (t *Tracker) MarkRead(ctx context.Context, groupID, accountID string) (int64, error) {
	if _, err := directory.RequireGroup(ctx, t.store, groupID); err != nil {
		return 0, err
	}

	n, err := t.store.Update(ctx, storage.Mentions,
		storage.Filter{"group_id": groupID, "account_id": accountID, "read": false},
		storage.Row{"read": true},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark mentions read: %w", err)
	}
	return n, nil
}

// Unread returns the account's unread mentions, oldest first.
func (t *Tracker) Unread(ctx context.Context, accountID string) ([]*models.Mention, error) {
	rows, err := t.store.Query(ctx, storage.Mentions, storage.Query{
		Where:   storage.Filter{"account_id": accountID, "read": false},
		OrderBy: []storage.Order{{Column: "created_at"}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list unread mentions: %w", err)
	}
	mentions := make([]*models.Mention, len(rows))
	for i, r := range rows {
		mentions[i] = models.MentionFromRow(r)
	}
	return mentions, nil
}

// UnreadCounts returns the number of unread mentions per group.
func (t *Tracker) UnreadCounts(ctx context.Context, accountID string) (map[string]int, error) {
	mentions, err := t.Unread(ctx, accountID)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, m := range mentions {
		counts[m.GroupID]++
	}
	return counts, nil
}
