// Package messagelog is the append-only message history of each group.
//
// A message and the mentions it produces are written in one transaction,
// so readers never see a message without its mentions or a mention
// without its message.
package messagelog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/zehem/internal/directory"
	"github.com/mmynk/zehem/internal/errs"
	"github.com/mmynk/zehem/internal/mention"
	"github.com/mmynk/zehem/internal/metrics"
	"github.com/mmynk/zehem/internal/models"
	"github.com/mmynk/zehem/internal/storage"
)

// historyOrder is the canonical message order: creation time, then
// insertion sequence.
var historyOrder = []storage.Order{{Column: "created_at"}, {Column: "seq"}}

// Log appends and reads group messages.
type Log struct {
	store storage.Store
}

// New creates a Log backed by store.
func New(store storage.Store) *Log {
	return &Log{store: store}
}

// Appended is the result of Append.
type Appended struct {
	Message  *models.Message
	Mentions []*models.Mention
}

// Append writes a message from authorID to the group together with its
// mentions. The author must be a member of the group.
func (l *Log) Append(ctx context.Context, groupID, authorID, body string) (*Appended, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%w: message body is empty", errs.ErrInvalidArgument)
	}

	var out Appended
	err := l.store.Atomically(ctx, func(tx storage.Tx) error {
		if _, err := directory.RequireGroup(ctx, tx, groupID); err != nil {
			return err
		}

		members, err := directory.LoadMembers(ctx, tx, groupID)
		if err != nil {
			return err
		}
		isMember := false
		for _, m := range members {
			if m.AccountID == authorID {
				isMember = true
				break
			}
		}
		if !isMember {
			return fmt.Errorf("%s is not a member of group %s: %w", authorID, groupID, errs.ErrForbidden)
		}

		resolved := mention.Resolve(body, authorID, members)
		now := time.Now().UnixMilli()

		row, err := tx.Insert(ctx, storage.Messages, storage.Row{
			"id":          uuid.NewString(),
			"group_id":    groupID,
			"author_id":   authorID,
			"body":        body,
			"mention_all": resolved.MentionAll,
			"created_at":  now,
		})
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		out.Message = models.MessageFromRow(row)

		for _, target := range resolved.Targets {
			row, err := tx.Insert(ctx, storage.Mentions, storage.Row{
				"id":         uuid.NewString(),
				"group_id":   groupID,
				"message_id": out.Message.ID,
				"account_id": target,
				"read":       false,
				"created_at": now,
			})
			if err != nil {
				return fmt.Errorf("failed to insert mention: %w", err)
			}
			out.Mentions = append(out.Mentions, models.MentionFromRow(row))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordMessage(len(out.Mentions), out.Message.MentionAll)
	return &out, nil
}

// History returns every message of the group in order.
func (l *Log) History(ctx context.Context, groupID string) ([]*models.Message, error) {
	if _, err := directory.RequireGroup(ctx, l.store, groupID); err != nil {
		return nil, err
	}
	return l.history(ctx, groupID)
}

func (l *Log) history(ctx context.Context, groupID string) ([]*models.Message, error) {
	rows, err := l.store.Query(ctx, storage.Messages, storage.Query{
		Where:   storage.Filter{"group_id": groupID},
		OrderBy: historyOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	messages := make([]*models.Message, len(rows))
	for i, r := range rows {
		messages[i] = models.MessageFromRow(r)
	}
	return messages, nil
}
